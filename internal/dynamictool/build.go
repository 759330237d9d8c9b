package dynamictool

import (
	"github.com/cori-do/cori/internal/mcp"
	"github.com/cori-do/cori/internal/permission"
	"github.com/cori-do/cori/internal/toolsynth"
)

// BuildTools synthesizes the tool catalog for one role (C3) and wraps
// each descriptor in an orchestration Tool, ready for mcp.Registry.Register.
func BuildTools(role *permission.Role, deps *Deps) []mcp.Tool {
	descs := toolsynth.Synthesize(role, deps.Model, deps.Schema)
	tools := make([]mcp.Tool, 0, len(descs))
	for _, d := range descs {
		tools = append(tools, New(d, deps))
	}
	return tools
}

// Register synthesizes and registers every tool a role is entitled to.
func Register(reg *mcp.Registry, role *permission.Role, deps *Deps) {
	for _, t := range BuildTools(role, deps) {
		reg.Register(t)
	}
}
