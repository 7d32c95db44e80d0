package httpapi

import (
	"context"
	"net/http"
)

// serverBaseCtx is canceled on shutdown so in-flight inference stops too.
var serverBaseCtx = context.Background()

// SetBaseContext sets the process-level base context used by handlers.
func SetBaseContext(ctx context.Context) {
	if ctx == nil {
		serverBaseCtx = context.Background()
		return
	}
	serverBaseCtx = ctx
}

// requestContext derives the inference context: canceled by the client, by
// shutdown, or by the configured request timeout.
func requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(r.Context())
	stop := context.AfterFunc(serverBaseCtx, cancel)
	if requestTimeout > 0 {
		tctx, tcancel := context.WithTimeout(ctx, requestTimeout)
		return tctx, func() { tcancel(); stop(); cancel() }
	}
	return ctx, func() { stop(); cancel() }
}
