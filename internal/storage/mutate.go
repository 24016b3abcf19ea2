package storage

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/Fabeuss/oasis/internal/fserr"
	"github.com/Fabeuss/oasis/internal/logging"
)

// ValidName reports whether name is a single usable path segment.
func ValidName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, "/\x00"+string(filepath.Separator))
}

// Mkdir creates the directory name inside parent and returns it resolved.
func (r *Root) Mkdir(parent ResolvedPath, name string) (ResolvedPath, error) {
	if !ValidName(name) {
		return ResolvedPath{}, fserr.E(fserr.BadRequest, "mkdir", fserr.ErrInvalidName)
	}
	if !parent.IsDir() {
		return ResolvedPath{}, fserr.E(fserr.BadRequest, "mkdir", fserr.ErrNotDirectory)
	}

	if err := os.Mkdir(filepath.Join(parent.abs, name), 0o755); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return ResolvedPath{}, fserr.E(fserr.BadRequest, "mkdir", fserr.ErrExists)
		}
		return ResolvedPath{}, statError("mkdir", err)
	}

	logging.Info("directory created", logging.String("path", joinRel(parent.rel, name)))
	return r.child(parent, name)
}

// Rename gives p a new name within its current parent directory.
func (r *Root) Rename(p ResolvedPath, newName string) (ResolvedPath, error) {
	if p.IsRoot() {
		return ResolvedPath{}, fserr.E(fserr.BadRequest, "rename", fserr.ErrPathEscape)
	}
	if !ValidName(newName) {
		return ResolvedPath{}, fserr.E(fserr.BadRequest, "rename", fserr.ErrInvalidName)
	}

	from := r.lexical(p)
	to := filepath.Join(filepath.Dir(from), newName)
	if _, err := os.Lstat(to); err == nil {
		return ResolvedPath{}, fserr.E(fserr.BadRequest, "rename", fserr.ErrExists)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return ResolvedPath{}, statError("rename", err)
	}

	if err := os.Rename(from, to); err != nil {
		return ResolvedPath{}, statError("rename", err)
	}

	parentRel := ""
	if i := strings.LastIndexByte(p.rel, '/'); i >= 0 {
		parentRel = p.rel[:i]
	}
	newRel := joinRel(parentRel, newName)
	logging.Info("entry renamed",
		logging.String("from", p.rel),
		logging.String("to", newRel))
	return r.ResolveDecoded(newRel)
}

// Remove deletes p. Directories are removed with their contents. A symlink
// is removed itself, never its target. The root cannot be removed.
func (r *Root) Remove(p ResolvedPath) error {
	if p.IsRoot() {
		return fserr.E(fserr.BadRequest, "remove", fserr.ErrPathEscape)
	}
	if err := os.RemoveAll(r.lexical(p)); err != nil {
		return statError("remove", err)
	}
	logging.Info("entry removed", logging.String("path", p.rel))
	return nil
}

// lexical is the path as the client named it, before symlink evaluation.
// Resolution already proved it stays inside the root.
func (r *Root) lexical(p ResolvedPath) string {
	return filepath.Join(r.path, filepath.FromSlash(p.rel))
}
