package token

import "context"

type claimsKey struct{}

// WithClaims returns a context carrying the verified Claims for the
// current request. Transport edges call this once, immediately after
// Verify succeeds, so every downstream layer (validator, SQL emitter,
// approval store) reads the same (role, tenant) pair that was
// cryptographically checked — never from request arguments (I5).
func WithClaims(ctx context.Context, c Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, c)
}

// ClaimsFrom extracts the verified Claims from ctx, if present.
func ClaimsFrom(ctx context.Context) (Claims, bool) {
	c, ok := ctx.Value(claimsKey{}).(Claims)
	return c, ok
}
