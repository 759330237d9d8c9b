// Package app wires the cobra command tree for the cori binary.
package app

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cori-do/cori/internal/config"
)

var configPath string

// Command returns the root cori command.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cori",
		Short: "Capability-token security kernel for MCP agents talking to a database",
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "path to cori.toml (default: search CORI_CONFIG, ./cori.toml, ~/.config/cori/cori.toml)")

	cmd.AddCommand(
		serveCommand(),
		tokenCommand(),
		approvalCommand(),
		schemaCommand(),
	)
	return cmd
}

func loadConfig() (*config.Config, error) {
	return config.Load(configPath)
}

func newLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Log.Level)}
	if strings.ToLower(cfg.Log.Format) == "text" {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func fail(format string, args ...any) error {
	return fmt.Errorf(format, args...)
}
