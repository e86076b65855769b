package web

import (
	"net/http"

	"github.com/JonMunkholm/insights/internal/core"
	"github.com/JonMunkholm/insights/internal/logging"
)

// logInfo logs msg with the request id and client address.
func (s *Server) logInfo(r *http.Request, msg string, args ...any) {
	ctx := r.Context()
	logging.WithFields(ctx, "ip", core.GetIPAddressFromContext(ctx), "path", r.URL.Path).Info(msg, args...)
}

// logWarn logs a recoverable failure that the page shows in place.
func (s *Server) logWarn(r *http.Request, msg string, err error) {
	ctx := r.Context()
	logging.WithFields(ctx, "ip", core.GetIPAddressFromContext(ctx), "path", r.URL.Path).Warn(msg, "error", err)
}
