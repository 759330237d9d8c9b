// Command cori runs the security kernel that sits between MCP agents and
// a relational database: capability tokens, role-driven tool synthesis,
// request validation, SQL rewriting, and the human approval queue.
package main

import (
	"fmt"
	"os"

	"github.com/cori-do/cori/cmd/cori/app"
)

func main() {
	if err := app.Command().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
