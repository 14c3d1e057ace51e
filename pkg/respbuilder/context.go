package respbuilder

import "context"

type respCtxKey struct{}

// Tracer identifies the request a response belongs to. AppTraceID is echoed in every envelope and in the
// Tracer-ID header so a user report can be matched with the server log.
type Tracer struct {
	RemoteAddr string
	AppTraceID string
}

func Inject(ctx context.Context, stuff Tracer) context.Context {
	return context.WithValue(ctx, respCtxKey{}, stuff)
}

func Extract(ctx context.Context) (Tracer, bool) {
	if ctx == nil {
		return Tracer{}, false
	}

	stuff, ok := ctx.Value(respCtxKey{}).(Tracer)
	return stuff, ok
}

// MustExtract returns an empty Tracer when none was injected.
func MustExtract(ctx context.Context) Tracer {
	stuff, _ := Extract(ctx)
	return stuff
}
