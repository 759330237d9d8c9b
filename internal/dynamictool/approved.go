package dynamictool

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cori-do/cori/internal/approval"
	"github.com/cori-do/cori/internal/audit"
	"github.com/cori-do/cori/internal/metrics"
	"github.com/cori-do/cori/internal/permission"
	"github.com/cori-do/cori/internal/sqlgen"
	"github.com/cori-do/cori/internal/toolsynth"
	"github.com/google/uuid"
)

// ExecuteApproved runs the mutation behind an Approved request, called by
// the approval CLI/endpoint right after FileStore.Approve succeeds. For
// update and delete it re-validates the snapshot against the row's
// current state (P3) before touching the database, so a decision that
// arrives after the underlying row changed is refused rather than
// silently applied to stale data. Create has no prior row to snapshot,
// so it skips straight to the insert.
func ExecuteApproved(ctx context.Context, emitter *sqlgen.Emitter, model *permission.Model, sink audit.Sink, reg *metrics.Registry, req *approval.Request) (json.RawMessage, error) {
	if req.Status != approval.Approved {
		return nil, fmt.Errorf("request %s is %s, not approved", req.ID, req.Status)
	}
	if req.TargetTable == "" {
		return nil, fmt.Errorf("request %s carries no target table to execute against", req.ID)
	}

	switch toolsynth.Operation(req.Operation) {
	case toolsynth.OpCreate:
		return executeApprovedCreate(ctx, emitter, sink, reg, req)
	case toolsynth.OpDelete:
		return executeApprovedDelete(ctx, emitter, model, sink, reg, req)
	default:
		return executeApprovedUpdate(ctx, emitter, sink, reg, req)
	}
}

func executeApprovedCreate(ctx context.Context, emitter *sqlgen.Emitter, sink audit.Sink, reg *metrics.Registry, req *approval.Request) (json.RawMessage, error) {
	res, err := emitter.Create(ctx, req.TargetTable, req.Arguments, req.Tenant)
	if err != nil {
		reg.ObserveMutation(req.TargetTable, "create", "error", 0)
		emitEvent(sink, req, audit.QueryFailed, err.Error())
		return nil, err
	}
	reg.ObserveMutation(req.TargetTable, "create", "success", len(res.Rows))
	reg.ObserveApproval("approved")
	emitEvent(sink, req, audit.MutationExecuted, "")
	return marshalResult(res.AfterState)
}

func executeApprovedUpdate(ctx context.Context, emitter *sqlgen.Emitter, sink audit.Sink, reg *metrics.Registry, req *approval.Request) (json.RawMessage, error) {
	if _, err := snapshotCheck(ctx, emitter, sink, reg, req); err != nil {
		return nil, err
	}

	res, err := emitter.Update(ctx, req.TargetTable, req.TargetPK, req.Arguments, req.Tenant)
	if err != nil {
		reg.ObserveMutation(req.TargetTable, "update", "error", 0)
		emitEvent(sink, req, audit.QueryFailed, err.Error())
		return nil, err
	}
	reg.ObserveMutation(req.TargetTable, "update", "success", len(res.Rows))
	reg.ObserveApproval("approved")
	emitEvent(sink, req, audit.MutationExecuted, "")
	return marshalResult(res.AfterState)
}

func executeApprovedDelete(ctx context.Context, emitter *sqlgen.Emitter, model *permission.Model, sink audit.Sink, reg *metrics.Registry, req *approval.Request) (json.RawMessage, error) {
	if _, err := snapshotCheck(ctx, emitter, sink, reg, req); err != nil {
		return nil, err
	}

	softDeleteCol := ""
	if model != nil {
		if tp, ok := model.Resolve(req.TargetTable); ok {
			softDeleteCol = tp.Deletable.SoftDeleteColumn
		}
	}

	res, err := emitter.Delete(ctx, req.TargetTable, req.TargetPK, req.Tenant, softDeleteCol)
	if err != nil {
		reg.ObserveMutation(req.TargetTable, "delete", "error", 0)
		emitEvent(sink, req, audit.QueryFailed, err.Error())
		return nil, err
	}
	reg.ObserveMutation(req.TargetTable, "delete", "success", len(res.Rows))
	reg.ObserveApproval("approved")
	emitEvent(sink, req, audit.MutationExecuted, "")
	return marshalResult(map[string]any{"deleted": true})
}

// snapshotCheck re-fetches the target row and enforces P3 before an
// update or delete is allowed to proceed.
func snapshotCheck(ctx context.Context, emitter *sqlgen.Emitter, sink audit.Sink, reg *metrics.Registry, req *approval.Request) (map[string]any, error) {
	current, err := emitter.Get(ctx, req.TargetTable, req.TargetPK, req.Tenant)
	if err != nil {
		return nil, fmt.Errorf("re-fetching row before approved execution: %w", err)
	}
	var row map[string]any
	if len(current.Rows) > 0 {
		row = current.Rows[0]
	}
	if err := approval.ValidateSnapshot(req.OriginalValues, row); err != nil {
		reg.ObserveApproval("stale")
		emitEvent(sink, req, audit.ApprovalDenied, err.Error())
		return nil, err
	}
	return row, nil
}

func marshalResult(v any) (json.RawMessage, error) {
	out, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshaling approved-execution result: %w", err)
	}
	return out, nil
}

func emitEvent(sink audit.Sink, req *approval.Request, evType audit.EventType, errMsg string) {
	if sink == nil {
		return
	}
	sink.Emit(audit.Event{
		EventID:       uuid.NewString(),
		EventType:     evType,
		OccurredAt:    time.Now().UTC(),
		Role:          req.Role,
		TenantID:      req.Tenant,
		Action:        req.ToolName,
		ParentEventID: req.EventID,
		CorrelationID: req.CorrelationID,
		Error:         errMsg,
	})
}
