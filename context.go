package stepup

import "context"

type clientIPContextKey struct{}
type accountIDContextKey struct{}

// WithClientIP attaches the caller's IP address to ctx. The Engine uses it to
// key the two-factor-attempt rate limit and stamps it on audit events.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

// WithAccountID attaches an account identifier to ctx. Password-reset-adjacent
// flows use it as a secondary rate-limit key so a single account cannot be
// hammered from many source addresses.
func WithAccountID(ctx context.Context, accountID string) context.Context {
	return context.WithValue(ctx, accountIDContextKey{}, accountID)
}

func clientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	ip, _ := ctx.Value(clientIPContextKey{}).(string)
	return ip
}

func accountIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	accountID, _ := ctx.Value(accountIDContextKey{}).(string)
	return accountID
}
