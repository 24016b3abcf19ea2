// Package storage resolves client paths against a storage root and reads the
// tree beneath it: listing, search, classification and safe opens.
//
// Every operation takes a ResolvedPath, so untrusted input must pass through
// Root.Resolve before anything touches the filesystem.
package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/Fabeuss/oasis/internal/fserr"
	"github.com/Fabeuss/oasis/internal/logging"
	"github.com/Fabeuss/oasis/internal/metrics"
)

// Root is a canonical storage root directory. It is immutable after NewRoot
// and safe for concurrent use.
type Root struct {
	path string
}

// NewRoot canonicalizes dir (absolute, symlinks evaluated) and checks that it
// is a directory.
func NewRoot(dir string) (*Root, error) {
	if dir == "" {
		return nil, fmt.Errorf("storage root is required")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("absolute storage root: %w", err)
	}
	canonical, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("evaluate storage root: %w", err)
	}
	info, err := os.Stat(canonical)
	if err != nil {
		return nil, fmt.Errorf("stat storage root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage root %s is not a directory", canonical)
	}
	return &Root{path: canonical}, nil
}

// Path returns the canonical absolute root directory.
func (r *Root) Path() string { return r.path }

// ResolvedPath is an existing path verified to lie inside a Root.
type ResolvedPath struct {
	abs   string // canonical absolute path, symlinks evaluated
	rel   string // client-facing slash path, "" for the root
	inner string // canonical path relative to the root, "." for the root
	info  fs.FileInfo
}

// Abs returns the canonical absolute path. Never send it to a client.
func (p ResolvedPath) Abs() string { return p.abs }

// Rel returns the slash-separated path relative to the root as the client
// named it, without a leading slash.
func (p ResolvedPath) Rel() string { return p.rel }

// Info returns the stat taken during resolution.
func (p ResolvedPath) Info() fs.FileInfo { return p.info }

// IsDir reports whether the path was a directory when resolved.
func (p ResolvedPath) IsDir() bool { return p.info.IsDir() }

// IsRoot reports whether the path is the storage root itself.
func (p ResolvedPath) IsRoot() bool { return p.inner == "." }

// Name returns the final element of the client-facing path.
func (p ResolvedPath) Name() string {
	if p.rel == "" {
		return ""
	}
	return path.Base(p.rel)
}

// Resolve URL-decodes an encoded client path and resolves it under the root.
func (r *Root) Resolve(encoded string) (ResolvedPath, error) {
	decoded, err := url.PathUnescape(encoded)
	if err != nil {
		return ResolvedPath{}, r.reject("resolve", fmt.Errorf("%w: %v", fserr.ErrMalformedPath, err))
	}
	return r.ResolveDecoded(decoded)
}

// ResolveDecoded resolves an already-decoded client path under the root.
//
// The path is always treated as relative: a leading slash is re-anchored at
// the root. Any ".." segment, NUL byte or volume prefix is rejected, and the
// canonical result must still lie within the root after symlinks are
// evaluated.
func (r *Root) ResolveDecoded(rel string) (ResolvedPath, error) {
	segs, err := splitClientPath(rel)
	if err != nil {
		return ResolvedPath{}, r.reject("resolve", err)
	}

	joined := filepath.Join(append([]string{r.path}, segs...)...)
	if !within(r.path, joined) {
		return ResolvedPath{}, r.reject("resolve", fserr.ErrPathEscape)
	}

	canonical, err := filepath.EvalSymlinks(joined)
	if err != nil {
		return ResolvedPath{}, statError("resolve", err)
	}
	if !within(r.path, canonical) {
		logging.Debug("symlink escapes storage root",
			logging.String("path", joined),
			logging.String("target", canonical))
		return ResolvedPath{}, r.reject("resolve", fserr.ErrPathEscape)
	}

	info, err := os.Stat(canonical)
	if err != nil {
		return ResolvedPath{}, statError("resolve", err)
	}

	inner, err := filepath.Rel(r.path, canonical)
	if err != nil {
		return ResolvedPath{}, fserr.E(fserr.Internal, "resolve", err)
	}

	return ResolvedPath{
		abs:   canonical,
		rel:   strings.Join(segs, "/"),
		inner: inner,
		info:  info,
	}, nil
}

// child resolves name directly under dir without decoding.
func (r *Root) child(dir ResolvedPath, name string) (ResolvedPath, error) {
	if dir.rel == "" {
		return r.ResolveDecoded(name)
	}
	return r.ResolveDecoded(dir.rel + "/" + name)
}

func (r *Root) reject(op string, err error) error {
	metrics.RecordPathRejection()
	return fserr.E(fserr.BadRequest, op, err)
}

// splitClientPath breaks a decoded client path into clean segments.
func splitClientPath(p string) ([]string, error) {
	if strings.ContainsRune(p, 0) {
		return nil, fserr.ErrMalformedPath
	}
	if filepath.VolumeName(filepath.FromSlash(p)) != "" {
		return nil, fserr.ErrPathEscape
	}

	fields := strings.FieldsFunc(p, func(c rune) bool {
		return c == '/' || c == filepath.Separator
	})
	segs := make([]string, 0, len(fields))
	for _, s := range fields {
		switch s {
		case ".":
			continue
		case "..":
			return nil, fserr.ErrPathEscape
		}
		segs = append(segs, s)
	}
	return segs, nil
}

// within reports whether p is root or lies beneath it. Both must be clean.
func within(root, p string) bool {
	if p == root {
		return true
	}
	prefix := root
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	return strings.HasPrefix(p, prefix)
}

// statError classifies a filesystem error. Missing targets and non-directory
// path components are NotFound; everything else is IO.
func statError(op string, err error) error {
	if errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ENOTDIR) {
		return fserr.E(fserr.NotFound, op, err)
	}
	return fserr.E(fserr.IO, op, err)
}
