package dynamictool

import (
	"context"
	"fmt"
	"time"

	"github.com/cori-do/cori/internal/approval"
	"github.com/cori-do/cori/internal/audit"
	"github.com/cori-do/cori/internal/mcp"
	"github.com/cori-do/cori/internal/sqlgen"
	"github.com/cori-do/cori/internal/token"
	"github.com/google/uuid"
)

// fetchCurrentRow re-fetches the row named by args' primary-key columns
// under the caller's verified tenant, for use as an only_when old.*
// context or an approval snapshot. A NotFoundOrWrongTenant error here
// is expected and surfaced as a validation-style failure, not a panic.
func (t *Tool) fetchCurrentRow(ctx context.Context, args map[string]any, tenant string) (map[string]any, error) {
	res, err := t.deps.Emitter.Get(ctx, t.desc.Table, args, tenant)
	if err != nil {
		return nil, err
	}
	if len(res.Rows) == 0 {
		return nil, fmt.Errorf("no row matches the given identifier for this tenant")
	}
	return res.Rows[0], nil
}

func (t *Tool) executeGet(ctx context.Context, claims token.Claims, correlationID string, start time.Time, args map[string]any) (*mcp.ToolsCallResult, error) {
	res, err := t.deps.Emitter.Get(ctx, t.desc.Table, args, claims.Tenant)
	if err != nil {
		return t.queryFailed(claims, correlationID, err)
	}
	t.emit(audit.Event{
		EventID: uuid.NewString(), EventType: audit.QueryExecuted, OccurredAt: time.Now().UTC(),
		Role: claims.Role, TenantID: claims.Tenant, Action: t.desc.Name, SQL: res.ExecutedSQL,
		RowCount: rowCountPtr(len(res.Rows)), DurationMS: durationPtr(start), CorrelationID: correlationID,
	})
	var row map[string]any
	if len(res.Rows) > 0 {
		row = res.Rows[0]
	}
	return mcp.JSONResult(row)
}

func (t *Tool) executeList(ctx context.Context, claims token.Claims, correlationID string, start time.Time, args map[string]any) (*mcp.ToolsCallResult, error) {
	limit, _ := intArg(args, "limit")
	offset, _ := intArg(args, "offset")
	filters := map[string]any{}
	for k, v := range args {
		if k == "limit" || k == "offset" {
			continue
		}
		filters[k] = v
	}
	res, err := t.deps.Emitter.List(ctx, t.desc.Table, filters, limit, offset, claims.Tenant)
	if err != nil {
		return t.queryFailed(claims, correlationID, err)
	}
	t.emit(audit.Event{
		EventID: uuid.NewString(), EventType: audit.QueryExecuted, OccurredAt: time.Now().UTC(),
		Role: claims.Role, TenantID: claims.Tenant, Action: t.desc.Name, SQL: res.ExecutedSQL,
		RowCount: rowCountPtr(len(res.Rows)), DurationMS: durationPtr(start), CorrelationID: correlationID,
	})
	return mcp.JSONResult(res.Rows)
}

func (t *Tool) executeCreate(ctx context.Context, claims token.Claims, correlationID string, start time.Time, args map[string]any) (*mcp.ToolsCallResult, error) {
	approvalFields := t.deps.Model.ApprovalColumnsForCreate(t.desc.Table, args)
	if len(approvalFields) > 0 {
		// No row exists yet, so there is nothing to snapshot: the table
		// alone records where ExecuteApproved must insert.
		return t.requestApproval(claims, correlationID, args, approvalFields, t.desc.Table, nil, nil)
	}
	if mcp.IsDryRun(ctx) {
		return dryRunResult(t.desc.Name, args)
	}
	res, err := t.deps.Emitter.Create(ctx, t.desc.Table, args, claims.Tenant)
	if err != nil {
		return t.queryFailed(claims, correlationID, err)
	}
	t.deps.Metrics.ObserveMutation(t.desc.Table, string(t.desc.Operation), "success", len(res.Rows))
	t.emit(audit.Event{
		EventID: uuid.NewString(), EventType: audit.MutationExecuted, OccurredAt: time.Now().UTC(),
		Role: claims.Role, TenantID: claims.Tenant, Action: t.desc.Name, SQL: res.ExecutedSQL,
		Arguments: args, AfterState: res.AfterState, RowCount: rowCountPtr(len(res.Rows)),
		DurationMS: durationPtr(start), CorrelationID: correlationID,
	})
	return mcp.JSONResult(res.AfterState)
}

func (t *Tool) executeUpdate(ctx context.Context, claims token.Claims, correlationID string, start time.Time, args, current map[string]any) (*mcp.ToolsCallResult, error) {
	approvalFields := t.deps.Model.ApprovalColumnsForUpdate(t.desc.Table, args)
	if len(approvalFields) > 0 {
		if current == nil {
			row, err := t.fetchCurrentRow(ctx, args, claims.Tenant)
			if err != nil {
				return t.queryFailed(claims, correlationID, err)
			}
			current = row
		}
		return t.requestApproval(claims, correlationID, args, approvalFields, t.desc.Table, t.primaryKeyOf(args), current)
	}
	if mcp.IsDryRun(ctx) {
		return dryRunResult(t.desc.Name, args)
	}
	res, err := t.deps.Emitter.Update(ctx, t.desc.Table, args, args, claims.Tenant)
	if err != nil {
		return t.queryFailed(claims, correlationID, err)
	}
	t.deps.Metrics.ObserveMutation(t.desc.Table, string(t.desc.Operation), "success", len(res.Rows))
	t.emit(audit.Event{
		EventID: uuid.NewString(), EventType: audit.MutationExecuted, OccurredAt: time.Now().UTC(),
		Role: claims.Role, TenantID: claims.Tenant, Action: t.desc.Name, SQL: res.ExecutedSQL,
		Arguments: args, BeforeState: res.BeforeState, AfterState: res.AfterState,
		RowCount: rowCountPtr(len(res.Rows)), DurationMS: durationPtr(start), CorrelationID: correlationID,
	})
	return mcp.JSONResult(res.AfterState)
}

func (t *Tool) executeDelete(ctx context.Context, claims token.Claims, correlationID string, start time.Time, args map[string]any) (*mcp.ToolsCallResult, error) {
	if t.deps.Model.TableRequiresApproval(t.desc.Table) {
		row, err := t.fetchCurrentRow(ctx, args, claims.Tenant)
		if err != nil {
			return t.queryFailed(claims, correlationID, err)
		}
		return t.requestApproval(claims, correlationID, args, nil, t.desc.Table, t.primaryKeyOf(args), row)
	}
	if mcp.IsDryRun(ctx) {
		return dryRunResult(t.desc.Name, args)
	}
	tp, _ := t.deps.Model.Resolve(t.desc.Table)
	res, err := t.deps.Emitter.Delete(ctx, t.desc.Table, args, claims.Tenant, tp.Deletable.SoftDeleteColumn)
	if err != nil {
		return t.queryFailed(claims, correlationID, err)
	}
	t.deps.Metrics.ObserveMutation(t.desc.Table, string(t.desc.Operation), "success", len(res.Rows))
	t.emit(audit.Event{
		EventID: uuid.NewString(), EventType: audit.MutationExecuted, OccurredAt: time.Now().UTC(),
		Role: claims.Role, TenantID: claims.Tenant, Action: t.desc.Name, SQL: res.ExecutedSQL,
		Arguments: args, BeforeState: res.BeforeState, RowCount: rowCountPtr(len(res.Rows)),
		DurationMS: durationPtr(start), CorrelationID: correlationID,
	})
	return mcp.JSONResult(map[string]any{"deleted": true})
}

func (t *Tool) queryFailed(claims token.Claims, correlationID string, err error) (*mcp.ToolsCallResult, error) {
	t.deps.Metrics.ObserveMutation(t.desc.Table, string(t.desc.Operation), "error", 0)
	t.emit(audit.Event{
		EventID: uuid.NewString(), EventType: audit.QueryFailed, OccurredAt: time.Now().UTC(),
		Role: claims.Role, TenantID: claims.Tenant, Action: t.desc.Name,
		Error: err.Error(), CorrelationID: correlationID,
	})
	if sqlErr, ok := err.(*sqlgen.Error); ok && sqlErr.Kind == sqlgen.NotFoundOrWrongTenant {
		return mcp.ErrorResult(sqlErr.Error()), nil
	}
	return mcp.ErrorResult(err.Error()), nil
}

// requestApproval creates a Pending approval.Request through C6 and
// returns the pending_approval content block spec 6 names.
func (t *Tool) requestApproval(claims token.Claims, correlationID string, args map[string]any, fields []string, targetTable string, pk, snapshot map[string]any) (*mcp.ToolsCallResult, error) {
	ttl := t.deps.ApprovalTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	req := approval.New(t.desc.Name, string(t.desc.Operation), args, fields, claims.Tenant, claims.Role, ttl)
	if targetTable != "" {
		req = req.WithSnapshot(targetTable, pk, snapshot)
	}
	if err := t.deps.Approvals.Create(req); err != nil {
		return mcp.ErrorResult(fmt.Sprintf("failed to queue approval request: %v", err)), nil
	}
	t.deps.Metrics.ObserveApproval("requested")

	eventID := uuid.NewString()
	t.emit(audit.Event{
		EventID: eventID, EventType: audit.ApprovalRequested, OccurredAt: time.Now().UTC(),
		Role: claims.Role, TenantID: claims.Tenant, Action: t.desc.Name, Arguments: args,
		CorrelationID: correlationID,
	})
	_ = t.deps.Approvals.BindAudit(req.ID, eventID, correlationID)

	block, err := mcp.JSONContent(map[string]any{
		"pending_approval": true,
		"approval_id":      req.ID,
		"tool":             t.desc.Name,
		"fields":           fields,
		"expires_at":       req.ExpiresAt,
	})
	if err != nil {
		return nil, err
	}
	return &mcp.ToolsCallResult{Success: true, Content: []mcp.ContentBlock{block}}, nil
}

func dryRunResult(name string, args map[string]any) (*mcp.ToolsCallResult, error) {
	res, err := mcp.JSONResult(map[string]any{"would_execute": name, "arguments": args})
	if err != nil {
		return nil, err
	}
	res.IsDryRun = true
	return res, nil
}

// primaryKeyOf extracts just the identifying columns from args, so the
// approval snapshot's target_pk never carries a field the decision is
// actually about (e.g. the new value of an approval-gated column).
func (t *Tool) primaryKeyOf(args map[string]any) map[string]any {
	tbl, ok := t.deps.Schema.Table(t.desc.Table)
	if !ok {
		return args
	}
	pk := map[string]any{}
	for _, col := range tbl.PrimaryKey {
		if v, ok := args[col]; ok {
			pk[col] = v
		}
	}
	return pk
}

func intArg(args map[string]any, key string) (int, bool) {
	v, ok := args[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	default:
		return 0, false
	}
}
