package web

import (
	"context"
	"net/http"

	"github.com/JonMunkholm/csvpreview/internal/logging"
)

// WithRequestMetadata returns ctx with a logger carrying the client IP and
// user agent, so preview runs started by the request log them.
func WithRequestMetadata(ctx context.Context, r *http.Request) context.Context {
	return logging.ContextWith(ctx,
		"ip", clientIP(r),
		"user_agent", r.UserAgent(),
	)
}
