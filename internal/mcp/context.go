package mcp

import "context"

type dryRunKey struct{}

// WithDryRun returns a context flagging that the in-flight tool call
// should validate and report what it would do without executing any
// mutation or creating an approval request (annotations.dry_run_supported
// in the tool descriptor, spec 4.3).
func WithDryRun(ctx context.Context, dryRun bool) context.Context {
	return context.WithValue(ctx, dryRunKey{}, dryRun)
}

// IsDryRun reports whether ctx was flagged for a dry run.
func IsDryRun(ctx context.Context) bool {
	v, _ := ctx.Value(dryRunKey{}).(bool)
	return v
}
