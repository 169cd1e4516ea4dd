package api

import "context"

// contextKey is the type for context keys defined by this package.
type contextKey string

const callerKey contextKey = "caller"

// WithCaller attaches the caller context to ctx.
func WithCaller(ctx context.Context, caller *CallerContext) context.Context {
	return context.WithValue(ctx, callerKey, caller)
}

// CallerFrom retrieves the caller context from ctx. Requests without an
// attached caller get an empty one, which resolves to a denial for every
// action.
func CallerFrom(ctx context.Context) *CallerContext {
	if caller, ok := ctx.Value(callerKey).(*CallerContext); ok && caller != nil {
		return caller
	}
	return &CallerContext{}
}
