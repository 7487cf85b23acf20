package web

import (
	"context"
	"net/http"

	"github.com/JonMunkholm/tradejournal/internal/core"
)

// WithRequestMetadata adds IP and User-Agent to context for the run history.
func WithRequestMetadata(ctx context.Context, r *http.Request) context.Context {
	ctx = core.ContextWithIPAddress(ctx, clientIP(r)) // Already processed by TrustedRealIP
	ctx = core.ContextWithUserAgent(ctx, r.UserAgent())
	return ctx
}
