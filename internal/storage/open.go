package storage

import (
	"errors"
	"os"

	"github.com/Fabeuss/oasis/internal/fserr"
)

// Open opens a resolved regular file for reading. The open is re-checked
// against the root at the kernel level where the platform allows it, so a
// component swapped for an escaping symlink after Resolve is refused.
func (r *Root) Open(p ResolvedPath) (*os.File, error) {
	if p.IsDir() {
		return nil, fserr.E(fserr.BadRequest, "open", fserr.ErrNotFile)
	}

	f, err := r.openBeneath(p.inner)
	if err != nil {
		if errors.Is(err, errEscape) {
			return nil, r.reject("open", fserr.ErrPathEscape)
		}
		return nil, statError("open", err)
	}
	return f, nil
}

var errEscape = errors.New("open escapes root")

// openInRoot opens inner through os.Root, which refuses paths and links that
// leave dir.
func openInRoot(dir, inner string) (*os.File, error) {
	root, err := os.OpenRoot(dir)
	if err != nil {
		return nil, err
	}
	defer root.Close()
	return root.Open(inner)
}
