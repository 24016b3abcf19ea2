package api

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/Fabeuss/oasis/internal/auth"
	"github.com/Fabeuss/oasis/internal/fserr"
	"github.com/Fabeuss/oasis/internal/logging"
	"github.com/Fabeuss/oasis/pkg/protocol"
)

// ─── Share Links ────────────────────────────────────────────────────────────

// handleCreateShareLink issues a link for an existing regular file and
// returns its query string form as plain text.
func (s *Server) handleCreateShareLink(w http.ResponseWriter, r *http.Request) {
	var req protocol.ShareLinkRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	p, err := s.root.ResolveDecoded(req.Path)
	if err != nil {
		s.sendFSError(w, r, err)
		return
	}
	if p.IsDir() {
		s.sendFSError(w, r, fserr.E(fserr.BadRequest, "share", fserr.ErrNotFile))
		return
	}

	token, err := s.shares.Issue(p.Rel(), req.Expire)
	if err != nil {
		s.sendFSError(w, r, err)
		return
	}

	username, _ := auth.Username(r.Context())
	logging.WithContext(r.Context()).Info("share link created",
		zap.String("path", token.Path),
		zap.Int64("expire", token.ExpireAt),
		zap.String("user", username))

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(token.String()))
}

// handleShareDownload delivers the single file a valid link is bound to.
func (s *Server) handleShareDownload(w http.ResponseWriter, r *http.Request) {
	path, err := s.shares.VerifyQuery(r.URL.Query())
	if err != nil {
		s.sendFSError(w, r, err)
		return
	}

	p, err := s.root.ResolveDecoded(path)
	if err != nil {
		s.sendFSError(w, r, err)
		return
	}

	s.deliver(w, r, p, true)
}
