// Package dynamictool is the orchestration layer that wires C1–C6
// together into the concrete mcp.Tool instances a server registers: it
// is the "orchestration layer" spec 4.4's before/after-snapshot design
// note and spec 2's data-flow description both refer to without naming
// a package. Nothing here is itself one of the six core components —
// this package only sequences calls into them per incoming tool call.
package dynamictool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/cori-do/cori/internal/approval"
	"github.com/cori-do/cori/internal/audit"
	"github.com/cori-do/cori/internal/mcp"
	"github.com/cori-do/cori/internal/metrics"
	"github.com/cori-do/cori/internal/permission"
	"github.com/cori-do/cori/internal/schema"
	"github.com/cori-do/cori/internal/sqlgen"
	"github.com/cori-do/cori/internal/token"
	"github.com/cori-do/cori/internal/toolsynth"
	"github.com/cori-do/cori/internal/validate"
	"github.com/google/uuid"
)

// ApprovalStore is the subset of approval.FileStore's surface this
// package depends on, named as an interface so tests can substitute an
// in-memory fake without touching disk.
type ApprovalStore interface {
	Create(r *approval.Request) error
	Get(id string) (*approval.Request, error)
	AttachResult(id string, result json.RawMessage) error
	BindAudit(id, eventID, correlationID string) error
}

// Deps are the dependencies shared by every tool synthesized for one
// role. A Registry (see build.go) constructs one Tool per descriptor,
// all closing over the same Deps.
type Deps struct {
	RoleName    string
	Model       *permission.Model
	Schema      *schema.Schema
	Emitter     *sqlgen.Emitter
	Approvals   ApprovalStore
	Audit       audit.Sink
	ApprovalTTL time.Duration
	Logger      *slog.Logger
	Metrics     *metrics.Registry
}

// Tool adapts one toolsynth.ToolDescriptor into an mcp.Tool, running
// the full validate -> (approve | execute) pipeline on each call.
type Tool struct {
	desc      toolsynth.ToolDescriptor
	deps      *Deps
	validator *validate.Validator
}

// New builds the Tool for one descriptor.
func New(desc toolsynth.ToolDescriptor, deps *Deps) *Tool {
	return &Tool{
		desc:      desc,
		deps:      deps,
		validator: validate.New(deps.RoleName, deps.Model, deps.Schema),
	}
}

func (t *Tool) Name() string                 { return t.desc.Name }
func (t *Tool) Description() string          { return t.desc.Description }
func (t *Tool) InputSchema() json.RawMessage { return t.desc.InputSchema }

// Execute implements mcp.Tool. It authenticates the call against the
// verified token claims carried on ctx (never from arguments, I5),
// validates it with C4, and either routes it through the approval
// queue (C6) or executes it against the database (C5).
func (t *Tool) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	claims, ok := token.ClaimsFrom(ctx)
	if !ok {
		return mcp.ErrorResult("no verified capability token on this connection"), nil
	}
	if t.desc.Table != "" && t.deps.Model.TenantColumn(t.desc.Table).Kind != permission.Global && !claims.HasTenant {
		return mcp.ErrorResult("token carries no tenant claim; attenuate it for an agent-scoped call"), nil
	}

	var args map[string]any
	if len(params) > 0 {
		if err := json.Unmarshal(params, &args); err != nil {
			return mcp.ErrorResult(fmt.Sprintf("invalid arguments: %v", err)), nil
		}
	}
	if args == nil {
		args = map[string]any{}
	}

	correlationID := uuid.NewString()
	start := time.Now()

	req := validate.Request{
		Operation: t.desc.Operation,
		Table:     t.desc.Table,
		Arguments: args,
		TenantID:  claims.Tenant,
		RoleName:  claims.Role,
	}

	if t.desc.Operation == toolsynth.OpUpdate && t.deps.Model.RequiresCurrentRow(t.desc.Table) {
		current, err := t.fetchCurrentRow(ctx, args, claims.Tenant)
		if err != nil {
			return t.validationFailure(ctx, claims, correlationID, err)
		}
		req.CurrentRow = current
	}

	if err := t.validator.Validate(req); err != nil {
		return t.validationFailure(ctx, claims, correlationID, err)
	}
	t.deps.Metrics.ObserveValidation(t.desc.Table, string(t.desc.Operation), "accepted")

	switch t.desc.Operation {
	case toolsynth.OpGet:
		return t.executeGet(ctx, claims, correlationID, start, args)
	case toolsynth.OpList:
		return t.executeList(ctx, claims, correlationID, start, args)
	case toolsynth.OpCreate:
		return t.executeCreate(ctx, claims, correlationID, start, args)
	case toolsynth.OpUpdate:
		return t.executeUpdate(ctx, claims, correlationID, start, args, req.CurrentRow)
	case toolsynth.OpDelete:
		return t.executeDelete(ctx, claims, correlationID, start, args)
	default:
		return mcp.ErrorResult(fmt.Sprintf("unknown operation %q", t.desc.Operation)), nil
	}
}

func (t *Tool) validationFailure(ctx context.Context, claims token.Claims, correlationID string, err error) (*mcp.ToolsCallResult, error) {
	if verr, ok := err.(*validate.Error); ok {
		t.deps.Metrics.ObserveValidationError(t.desc.Table, string(t.desc.Operation), verr)
	} else {
		t.deps.Metrics.ObserveValidation(t.desc.Table, string(t.desc.Operation), "error")
	}
	t.emit(audit.Event{
		EventID:       uuid.NewString(),
		EventType:     audit.AuthorizationDenied,
		OccurredAt:    time.Now().UTC(),
		Role:          claims.Role,
		TenantID:      claims.Tenant,
		Action:        t.desc.Name,
		CorrelationID: correlationID,
		Error:         err.Error(),
	})
	return mcp.ErrorResult(err.Error()), nil
}

func (t *Tool) emit(ev audit.Event) {
	if t.deps.Audit == nil {
		return
	}
	t.deps.Audit.Emit(ev)
}

func durationPtr(start time.Time) *int64 {
	d := time.Since(start).Milliseconds()
	return &d
}

func rowCountPtr(n int) *int { return &n }
