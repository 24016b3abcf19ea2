package storage

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Fabeuss/oasis/internal/fserr"
	"github.com/Fabeuss/oasis/internal/logging"
	"github.com/Fabeuss/oasis/internal/metrics"
	"github.com/Fabeuss/oasis/pkg/models"
)

// ParseKeywords splits a decoded query on spaces and '+' and lower-cases
// each keyword. Order is preserved. An empty result is a BadRequest.
func ParseKeywords(raw string) ([]string, error) {
	fields := strings.FieldsFunc(raw, func(c rune) bool {
		return c == ' ' || c == '+' || c == '\t'
	})
	if len(fields) == 0 {
		return nil, fserr.E(fserr.BadRequest, "search", fserr.ErrEmptyQuery)
	}
	keywords := make([]string, len(fields))
	for i, f := range fields {
		keywords[i] = strings.ToLower(f)
	}
	return keywords, nil
}

// Matches reports whether an entry called name satisfies every keyword.
//
// Each keyword must be a substring of the lower-cased name. A keyword that
// starts with '.' is also an extension filter: the entry must be a file and
// its lower-cased extension must equal the keyword exactly, so ".js" does
// not match "foo.json".
func Matches(name string, isDir bool, keywords []string) bool {
	lower := strings.ToLower(name)
	ext := strings.ToLower(extension(name))
	for _, kw := range keywords {
		kw = strings.ToLower(kw)
		if !strings.Contains(lower, kw) {
			return false
		}
		if strings.HasPrefix(kw, ".") && (isDir || ext != kw) {
			return false
		}
	}
	return true
}

// extension is the dotted suffix after the last '.', or "" when the only dot
// leads the name (".js" has no extension).
func extension(name string) string {
	if strings.LastIndexByte(name, '.') <= 0 {
		return ""
	}
	return filepath.Ext(name)
}

// Search walks the tree under dir and returns every entry whose name matches
// all keywords. Symbolic links are never descended into; a link is reported
// as an entry describing its target when that target stays inside the root,
// the same rule List applies. The search root itself is not a candidate.
//
// Any walk or stat failure aborts the whole search with an IO error; partial
// results are never returned. Cancelling ctx stops the walk.
func (r *Root) Search(ctx context.Context, dir ResolvedPath, keywords []string) ([]models.FileEntry, error) {
	if !dir.IsDir() {
		return nil, fserr.E(fserr.BadRequest, "search", fserr.ErrNotDirectory)
	}
	if len(keywords) == 0 {
		return nil, fserr.E(fserr.BadRequest, "search", fserr.ErrEmptyQuery)
	}

	start := time.Now()
	var results []models.FileEntry

	err := filepath.WalkDir(dir.abs, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if p == dir.abs {
			return nil
		}

		abs := p
		var info fs.FileInfo
		if d.Type()&fs.ModeSymlink != 0 {
			target, err := filepath.EvalSymlinks(p)
			if err != nil || !within(r.path, target) {
				return nil
			}
			if info, err = os.Stat(target); err != nil {
				return nil
			}
			abs = target
		}
		isDir := d.IsDir()
		if info != nil {
			isDir = info.IsDir()
		}
		if !Matches(d.Name(), isDir, keywords) {
			return nil
		}

		if info == nil {
			if info, err = d.Info(); err != nil {
				return err
			}
		}
		rel, err := filepath.Rel(dir.abs, p)
		if err != nil {
			return err
		}
		results = append(results, newEntry(d.Name(), joinRel(dir.rel, filepath.ToSlash(rel)), abs, info))
		return nil
	})

	metrics.RecordSearch(time.Since(start), len(results), err == nil)
	if err != nil {
		logging.Warn("search aborted",
			logging.String("path", dir.rel),
			logging.Int("keywords", len(keywords)))
		logging.Debug("search walk error", logging.Err(err))
		if ctx.Err() != nil {
			return nil, fserr.E(fserr.IO, "search", ctx.Err())
		}
		return nil, fserr.E(fserr.IO, "search", err)
	}
	return results, nil
}
