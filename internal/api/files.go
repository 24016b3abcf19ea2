package api

import (
	"net/http"

	"github.com/Fabeuss/oasis/internal/fserr"
	"github.com/Fabeuss/oasis/internal/storage"
	"github.com/Fabeuss/oasis/pkg/models"
	"github.com/Fabeuss/oasis/pkg/protocol"
)

// ─── Listing & Search ───────────────────────────────────────────────────────

func (s *Server) handleListDir(w http.ResponseWriter, r *http.Request) {
	dir, err := s.root.Resolve(rawQuery(r, "path"))
	if err != nil {
		s.sendFSError(w, r, err)
		return
	}

	entries, err := s.root.List(dir)
	if err != nil {
		s.sendFSError(w, r, err)
		return
	}
	if entries == nil {
		entries = []models.FileEntry{}
	}

	writeJSON(w, http.StatusOK, protocol.ListResponse{
		Path:    dir.Rel(),
		Entries: entries,
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	keywords, err := storage.ParseKeywords(r.URL.Query().Get("keywords"))
	if err != nil {
		s.sendFSError(w, r, err)
		return
	}

	dir, err := s.root.Resolve(rawQuery(r, "path"))
	if err != nil {
		s.sendFSError(w, r, err)
		return
	}

	results, err := s.root.Search(r.Context(), dir, keywords)
	if err != nil {
		s.sendFSError(w, r, err)
		return
	}
	if results == nil {
		results = []models.FileEntry{}
	}

	writeJSON(w, http.StatusOK, protocol.SearchResponse{
		Path:     dir.Rel(),
		Keywords: keywords,
		Results:  results,
	})
}

// ─── Content ────────────────────────────────────────────────────────────────

func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	p, err := s.root.Resolve(filePath(r))
	if err != nil {
		s.sendFSError(w, r, err)
		return
	}
	s.deliver(w, r, p, false)
}

// ─── Mutations ──────────────────────────────────────────────────────────────

func (s *Server) handleCreateDir(w http.ResponseWriter, r *http.Request) {
	var req protocol.CreateDirRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	parent, err := s.root.Resolve(req.Parent)
	if fserr.Is(err, fserr.NotFound) {
		// A missing parent is a bad request here, not a missing resource.
		err = fserr.E(fserr.BadRequest, "mkdir", fserr.ErrNotDirectory)
	}
	if err != nil {
		s.sendFSError(w, r, err)
		return
	}

	dir, err := s.root.Mkdir(parent, req.Name)
	if err != nil {
		s.sendFSError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, storage.Entry(dir))
}

func (s *Server) handleRename(w http.ResponseWriter, r *http.Request) {
	var req protocol.RenameRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	p, err := s.root.Resolve(filePath(r))
	if err != nil {
		s.sendFSError(w, r, err)
		return
	}

	renamed, err := s.root.Rename(p, req.NewName)
	if err != nil {
		s.sendFSError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, storage.Entry(renamed))
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	p, err := s.root.Resolve(filePath(r))
	if err != nil {
		s.sendFSError(w, r, err)
		return
	}

	if err := s.root.Remove(p); err != nil {
		s.sendFSError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
