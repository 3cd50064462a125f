package authpipe

import "context"

type returnPathContextKey struct{}
type requestIDContextKey struct{}

// WithReturnPath attaches the path the user should come back to after
// logging in again. When a request made with ctx ends the session, the
// teardown navigation carries this path. Defaults to "/".
func WithReturnPath(ctx context.Context, path string) context.Context {
	return context.WithValue(ctx, returnPathContextKey{}, path)
}

// WithRequestID fixes the X-Request-ID sent with a request made with ctx.
// Without it each request gets a fresh UUID.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDContextKey{}, id)
}

func returnPathFromContext(ctx context.Context) string {
	if ctx == nil {
		return "/"
	}

	path, _ := ctx.Value(returnPathContextKey{}).(string)
	if path == "" {
		return "/"
	}
	return path
}

func requestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	id, _ := ctx.Value(requestIDContextKey{}).(string)
	return id
}
