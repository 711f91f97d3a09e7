// Package router provides centralized API route registration.
// All HTTP routes are registered here with the middleware that applies to them.
package router

import (
	"net/http"
	"time"

	"pdfdesk/internal/handler"
	"pdfdesk/internal/middleware"
)

// uploadOverhead covers multipart framing on top of the configured upload size.
const uploadOverhead = 10 << 20

// Access key lockout: 10 consecutive wrong keys lock the client IP for 15 minutes.
const (
	maxKeyFailures = 10
	keyLockout     = 15 * time.Minute
)

// Register registers all API routes on mux. The returned limiter tracks
// failed access key attempts; call its CleanOld periodically.
func Register(mux *http.ServeMux, app *handler.App) *middleware.FailureLimiter {
	base := middleware.Chain(
		middleware.SecurityHeaders(),
		middleware.RequestID(),
	)
	keyLimiter := middleware.NewFailureLimiter(maxKeyFailures, keyLockout)
	accessKey := middleware.AccessKey(func() string {
		return app.Config().Server.AccessKeyHash
	}, keyLimiter)
	bodyLimit := middleware.BodyLimit(func() int64 {
		return int64(app.Config().Server.MaxUploadMB)<<20 + uploadOverhead
	})

	// Routes behind the optional access key
	protected := func(h http.HandlerFunc) http.HandlerFunc {
		return base(accessKey(h))
	}
	// Upload routes additionally cap the body size
	upload := func(h http.HandlerFunc) http.HandlerFunc {
		return base(accessKey(bodyLimit(h)))
	}

	// ── Conversion ──
	mux.HandleFunc("/api/merge", upload(handler.HandleMerge(app)))
	mux.HandleFunc("/api/convert", upload(handler.HandleConvert(app)))

	// ── Job history ──
	mux.HandleFunc("/api/history", protected(handler.HandleHistory(app)))
	mux.HandleFunc("/api/history/", protected(handler.HandleHistoryByID(app)))

	// ── Health check ──
	mux.HandleFunc("/api/health", base(handler.HandleHealth(app)))

	return keyLimiter
}
