// Package api provides the HTTP server and handlers.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/Fabeuss/oasis/internal/auth"
	"github.com/Fabeuss/oasis/internal/fserr"
	"github.com/Fabeuss/oasis/internal/logging"
	"github.com/Fabeuss/oasis/internal/metrics"
	"github.com/Fabeuss/oasis/internal/quota"
	"github.com/Fabeuss/oasis/internal/sharing"
	"github.com/Fabeuss/oasis/internal/storage"
	"github.com/Fabeuss/oasis/pkg/protocol"
)

const maxBodySize = 1 << 16

// Server is the HTTP server.
type Server struct {
	root   *storage.Root
	shares *sharing.Authority
	auth   *auth.Auth
	site   string

	// Per-user budget for authenticated routes, per-IP budget for the
	// public share and login routes.
	userLimiter   *quota.RateLimiter
	publicLimiter *quota.RateLimiter
}

// NewServer creates a new server.
func NewServer(
	root *storage.Root,
	shares *sharing.Authority,
	authHandler *auth.Auth,
	site string,
	userLimiter *quota.RateLimiter,
	publicLimiter *quota.RateLimiter,
) *Server {
	return &Server{
		root:          root,
		shares:        shares,
		auth:          authHandler,
		site:          site,
		userLimiter:   userLimiter,
		publicLimiter: publicLimiter,
	}
}

// Handler returns the HTTP handler with auth and metrics middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	perIP := quota.RateLimitMiddleware(s.publicLimiter, "share", quota.ClientIP)
	loginPerIP := quota.RateLimitMiddleware(s.publicLimiter, "login", quota.ClientIP)

	// Public endpoints (no auth required)
	handle(mux, "GET /health", http.HandlerFunc(s.handleHealth))
	handle(mux, "POST /api/v1/auth/token", loginPerIP(http.HandlerFunc(s.auth.HandleLogin)))

	// A share link is the only credential this route accepts, and it only
	// ever delivers the one file it was issued for.
	handle(mux, "GET /api/v1/file/share", perIP(http.HandlerFunc(s.handleShareDownload)))

	// Protected endpoints
	protected := http.NewServeMux()

	// Read endpoints
	handle(protected, "GET /api/v1/dir", http.HandlerFunc(s.handleListDir))
	handle(protected, "GET /api/v1/file/search", http.HandlerFunc(s.handleSearch))
	handle(protected, "GET /api/v1/file/{path...}", http.HandlerFunc(s.handleFile))
	handle(protected, "POST /api/v1/file/share", http.HandlerFunc(s.handleCreateShareLink))

	// Write endpoints (admin only)
	handle(protected, "POST /api/v1/dir", auth.RequireAdmin(http.HandlerFunc(s.handleCreateDir)))
	handle(protected, "PUT /api/v1/file/{path...}", auth.RequireAdmin(http.HandlerFunc(s.handleRename)))
	handle(protected, "DELETE /api/v1/file/{path...}", auth.RequireAdmin(http.HandlerFunc(s.handleDelete)))

	// Wrap protected routes with auth then the per-user rate limiter
	byUser := func(r *http.Request) (string, bool) {
		return auth.Username(r.Context())
	}
	rateLimited := quota.RateLimitMiddleware(s.userLimiter, "user", byUser)(protected)
	mux.Handle("/api/v1/", s.auth.Middleware(rateLimited))

	// Apply logging and metrics middleware
	return metrics.Middleware(logging.Middleware(mux))
}

// handle registers h and labels its requests with pattern for metrics.
func handle(mux *http.ServeMux, pattern string, h http.Handler) {
	mux.Handle(pattern, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		metrics.SetRoute(r.Context(), pattern)
		h.ServeHTTP(w, r)
	}))
}

// ─── Health ─────────────────────────────────────────────────────────────────

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, protocol.HealthResponse{Status: "ok", Site: s.site})
}

// ─── Helpers ────────────────────────────────────────────────────────────────

// rawQuery returns the still-encoded value of key. Paths travel encoded and
// are decoded exactly once, by the resolver.
func rawQuery(r *http.Request, key string) string {
	for _, kv := range strings.Split(r.URL.RawQuery, "&") {
		if k, v, _ := strings.Cut(kv, "="); k == key {
			return v
		}
	}
	return ""
}

// filePath returns the encoded path following /api/v1/file/.
func filePath(r *http.Request) string {
	return strings.TrimPrefix(r.URL.EscapedPath(), "/api/v1/file/")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(v)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) sendError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, protocol.ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// Causes whose text is safe to show a client. Anything else is reported by
// kind alone so OS errors and absolute paths stay in the server log.
var publicCauses = []error{
	fserr.ErrMalformedPath,
	fserr.ErrPathEscape,
	fserr.ErrNotDirectory,
	fserr.ErrNotFile,
	fserr.ErrInvalidName,
	fserr.ErrExists,
	fserr.ErrMalformedRange,
	fserr.ErrRangeNotSatisfiable,
	fserr.ErrShareLinkInvalid,
	fserr.ErrEmptyQuery,
}

// sendFSError maps a file access error to its HTTP status.
func (s *Server) sendFSError(w http.ResponseWriter, r *http.Request, err error) {
	kind := fserr.KindOf(err)
	code := statusFor(kind)
	message := kind.Message()
	for _, cause := range publicCauses {
		if errors.Is(err, cause) {
			message = cause.Error()
			break
		}
	}
	if errors.Is(err, fserr.ErrRangeNotSatisfiable) {
		code = http.StatusRequestedRangeNotSatisfiable
	}

	logger := logging.WithContext(r.Context())
	if code >= http.StatusInternalServerError {
		logger.Error("request failed", zap.String("kind", kind.String()), zap.Int("status", code))
	}
	logger.Debug("request error detail", zap.String("kind", kind.String()), zap.Error(err))

	s.sendError(w, code, message)
}

func statusFor(kind fserr.Kind) int {
	switch kind {
	case fserr.BadRequest:
		return http.StatusBadRequest
	case fserr.NotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
