// Package approval implements C6: a persistent three-state queue for
// mutations that require a human decision before execution. Requests
// are backed by three append-only JSON-Lines logs (pending, approved,
// denied) plus an in-memory index, mirroring the file-storage design
// this system's original Rust approval layer used.
package approval

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Status is the closed set of approval-request states.
type Status string

const (
	Pending   Status = "pending"
	Approved  Status = "approved"
	Rejected  Status = "rejected"
	Cancelled Status = "cancelled"
	Expired   Status = "expired"
)

// Request is one approval-gated mutation, exactly as persisted to the
// on-disk logs. Field names are part of the public contract: external
// consumers (dashboards, SIEMs) tail these files.
type Request struct {
	ID             string          `json:"id"`
	CreatedAt      time.Time       `json:"created_at"`
	ExpiresAt      time.Time       `json:"expires_at"`
	Status         Status          `json:"status"`
	ToolName       string          `json:"tool_name"`
	Operation      string          `json:"operation"`
	Arguments      map[string]any  `json:"arguments"`
	ApprovalFields []string        `json:"approval_fields"`
	Tenant         string          `json:"tenant"`
	Role           string          `json:"role"`
	TargetTable    string          `json:"target_table,omitempty"`
	TargetPK       map[string]any  `json:"target_pk,omitempty"`
	OriginalValues map[string]any  `json:"original_values,omitempty"`
	DecidedAt      *time.Time      `json:"decided_at,omitempty"`
	DecidedBy      string          `json:"decided_by,omitempty"`
	DecisionReason string          `json:"decision_reason,omitempty"`
	ExecutionResult json.RawMessage `json:"execution_result,omitempty"`
	EventID        string          `json:"event_id,omitempty"`
	CorrelationID  string          `json:"correlation_id,omitempty"`
}

// IsExpired reports whether a still-pending request's TTL has elapsed
// as of now.
func (r *Request) IsExpired(now time.Time) bool {
	return r.Status == Pending && now.After(r.ExpiresAt)
}

// New builds a Pending request with a fresh opaque ID. operation is the
// tool's underlying CRUD operation ("create"/"update"/"delete"); execute
// -time dispatch (ExecuteApproved) uses it to pick the right SQL shape.
func New(toolName, operation string, args map[string]any, approvalFields []string, tenant, role string, ttl time.Duration) *Request {
	now := time.Now().UTC()
	return &Request{
		ID:             uuid.NewString(),
		CreatedAt:      now,
		ExpiresAt:      now.Add(ttl),
		Status:         Pending,
		ToolName:       toolName,
		Operation:      operation,
		Arguments:      args,
		ApprovalFields: approvalFields,
		Tenant:         tenant,
		Role:           role,
	}
}

// WithSnapshot attaches the target row identity and the before-state
// snapshot that execute-time validation will compare against (P3).
func (r *Request) WithSnapshot(table string, pk, originalValues map[string]any) *Request {
	r.TargetTable = table
	r.TargetPK = pk
	r.OriginalValues = originalValues
	return r
}

// ErrorKind is the closed set of approval-store failures (spec 4.6).
type ErrorKind string

const (
	NotFound       ErrorKind = "not_found"
	AlreadyDecided ErrorKind = "already_decided"
	ExpiredErr     ErrorKind = "expired"
	DataChanged    ErrorKind = "data_changed"
	IoError        ErrorKind = "io_error"
)

// Error is the typed error the approval store returns.
type Error struct {
	Kind ErrorKind
	ID   string
}

func (e *Error) Error() string {
	return string(e.Kind) + ": " + e.ID
}

func newErr(kind ErrorKind, id string) *Error {
	return &Error{Kind: kind, ID: id}
}
