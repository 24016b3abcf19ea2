// Package protocol defines the API request/response types.
package protocol

import (
	"time"

	"github.com/Fabeuss/oasis/pkg/models"
)

// ErrorResponse is returned on API errors.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status string `json:"status"`
	Site   string `json:"site"`
}

// LoginRequest is the body for POST /api/v1/auth/token.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse is returned by POST /api/v1/auth/token.
type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      UserInfo  `json:"user"`
}

// UserInfo is the public view of an account.
type UserInfo struct {
	Username string `json:"username"`
	IsAdmin  bool   `json:"is_admin"`
}

// ListResponse is returned by GET /api/v1/dir.
type ListResponse struct {
	Path    string             `json:"path"`
	Entries []models.FileEntry `json:"entries"`
}

// SearchResponse is returned by GET /api/v1/file/search.
type SearchResponse struct {
	Path     string             `json:"path"`
	Keywords []string           `json:"keywords"`
	Results  []models.FileEntry `json:"results"`
}

// CreateDirRequest is the body for POST /api/v1/dir.
type CreateDirRequest struct {
	Parent string `json:"parent"` // URL-encoded, relative to the storage root
	Name   string `json:"name"`
}

// RenameRequest is the body for PUT /api/v1/file/{path}.
type RenameRequest struct {
	NewName string `json:"new_name"`
}

// ShareLinkRequest is the body for POST /api/v1/file/share.
// Expire is a unix timestamp in seconds.
type ShareLinkRequest struct {
	Path   string `json:"path"`
	Expire int64  `json:"expire"`
}
