//go:build !linux

package storage

import "os"

func (r *Root) openBeneath(inner string) (*os.File, error) {
	return openInRoot(r.path, inner)
}
