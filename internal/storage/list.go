package storage

import (
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"

	"github.com/Fabeuss/oasis/internal/fserr"
	"github.com/Fabeuss/oasis/internal/logging"
	"github.com/Fabeuss/oasis/pkg/models"
)

// List returns the immediate children of dir. Entries that cannot be
// stated, and symlinks whose target lies outside the root, are skipped.
// Order follows the directory read and is not significant.
func (r *Root) List(dir ResolvedPath) ([]models.FileEntry, error) {
	if !dir.IsDir() {
		return nil, fserr.E(fserr.BadRequest, "list", fserr.ErrNotDirectory)
	}

	des, err := os.ReadDir(dir.abs)
	if err != nil {
		return nil, statError("list", err)
	}

	entries := make([]models.FileEntry, 0, len(des))
	for _, de := range des {
		abs := filepath.Join(dir.abs, de.Name())
		if de.Type()&os.ModeSymlink != 0 {
			target, err := filepath.EvalSymlinks(abs)
			if err != nil || !within(r.path, target) {
				continue
			}
			abs = target
		}

		// os.Stat follows the link checked above, so size and kind describe the target.
		info, err := os.Stat(abs)
		if err != nil {
			logging.Debug("skipping unreadable entry",
				logging.String("name", de.Name()), logging.Err(err))
			continue
		}
		entries = append(entries, newEntry(de.Name(), joinRel(dir.rel, de.Name()), abs, info))
	}
	return entries, nil
}

// Entry describes a resolved path as a listing entry.
func Entry(p ResolvedPath) models.FileEntry {
	return newEntry(p.Name(), p.Rel(), p.abs, p.info)
}

func newEntry(name, rel, abs string, info os.FileInfo) models.FileEntry {
	mod := info.ModTime()
	size := info.Size()
	if info.IsDir() {
		size = 0
	}
	return models.FileEntry{
		Name:      name,
		Path:      rel,
		Kind:      Classify(abs, info),
		Size:      size,
		ModTime:   mod,
		Modified:  mod.Unix(),
		HumanSize: humanize.IBytes(uint64(size)),
	}
}

func joinRel(dir, name string) string {
	if dir == "" {
		return name
	}
	return dir + "/" + name
}
