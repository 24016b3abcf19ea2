// Package models contains shared data types returned by the file API.
package models

import "time"

// EntryKind classifies a filesystem entry for clients.
type EntryKind string

const (
	KindDirectory EntryKind = "directory"
	KindText      EntryKind = "text"
	KindBinary    EntryKind = "binary"
)

// FileEntry describes one file or directory under a storage root.
// It is built fresh from a stat on every listing or search and has no
// identity beyond Path.
type FileEntry struct {
	Name      string    `json:"name"`
	Path      string    `json:"path"` // slash-separated, relative to the storage root
	Kind      EntryKind `json:"kind"`
	Size      int64     `json:"size"`
	ModTime   time.Time `json:"-"`
	Modified  int64     `json:"modified"` // unix seconds
	HumanSize string    `json:"human_size"`
}

// IsDir reports whether the entry is a directory.
func (e FileEntry) IsDir() bool { return e.Kind == KindDirectory }
