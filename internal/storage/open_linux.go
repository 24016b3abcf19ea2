//go:build linux

package storage

import (
	"errors"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// openBeneath opens inner relative to the root with openat2 and
// RESOLVE_BENEATH. Kernels or sandboxes without openat2 fall back to
// os.Root.
func (r *Root) openBeneath(inner string) (*os.File, error) {
	dirfd, err := unix.Open(r.path, unix.O_RDONLY|unix.O_DIRECTORY|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, &os.PathError{Op: "open", Path: r.path, Err: err}
	}
	defer unix.Close(dirfd)

	how := unix.OpenHow{
		Flags:   unix.O_RDONLY | unix.O_CLOEXEC,
		Resolve: unix.RESOLVE_BENEATH | unix.RESOLVE_NO_MAGICLINKS,
	}
	fd, err := unix.Openat2(dirfd, inner, &how)
	switch {
	case err == nil:
		return os.NewFile(uintptr(fd), filepath.Join(r.path, inner)), nil
	case errors.Is(err, unix.ENOSYS), errors.Is(err, unix.EPERM):
		// EPERM is what seccomp profiles that predate openat2 return.
		return openInRoot(r.path, inner)
	case errors.Is(err, unix.EXDEV), errors.Is(err, unix.ELOOP):
		return nil, errEscape
	default:
		return nil, &os.PathError{Op: "openat2", Path: inner, Err: err}
	}
}
