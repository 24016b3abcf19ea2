package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Fabeuss/oasis/internal/fserr"
)

func TestMkdir(t *testing.T) {
	root := newTestRoot(t)
	parent, _ := root.Resolve("sub")

	created, err := root.Mkdir(parent, "new")
	if err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	if created.Rel() != "sub/new" || !created.IsDir() {
		t.Errorf("created = %q dir=%v", created.Rel(), created.IsDir())
	}

	if _, err := root.Mkdir(parent, "new"); !fserr.Is(err, fserr.BadRequest) {
		t.Errorf("second Mkdir err = %v, want BadRequest", err)
	}

	for _, name := range []string{"", ".", "..", "a/b", "nul\x00"} {
		if _, err := root.Mkdir(parent, name); !fserr.Is(err, fserr.BadRequest) {
			t.Errorf("Mkdir(%q) err = %v, want BadRequest", name, err)
		}
	}

	file, _ := root.Resolve("sub/a.txt")
	if _, err := root.Mkdir(file, "x"); !fserr.Is(err, fserr.BadRequest) {
		t.Errorf("Mkdir under file err = %v, want BadRequest", err)
	}
}

func TestRename(t *testing.T) {
	root := newTestRoot(t)
	mustWrite(t, filepath.Join(root.Path(), "sub", "b.txt"), "b")

	p, _ := root.Resolve("sub/a.txt")
	if _, err := root.Rename(p, "b.txt"); !fserr.Is(err, fserr.BadRequest) {
		t.Errorf("rename onto existing err = %v, want BadRequest", err)
	}

	renamed, err := root.Rename(p, "c.txt")
	if err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if renamed.Rel() != "sub/c.txt" {
		t.Errorf("Rel() = %q", renamed.Rel())
	}
	if _, err := os.Stat(filepath.Join(root.Path(), "sub", "a.txt")); !os.IsNotExist(err) {
		t.Errorf("old name still present: %v", err)
	}

	top, _ := root.Resolve("")
	if _, err := root.Rename(top, "x"); !fserr.Is(err, fserr.BadRequest) {
		t.Errorf("rename root err = %v, want BadRequest", err)
	}
}

func TestRemove(t *testing.T) {
	root := newTestRoot(t)

	// Removing a symlink leaves its target alone.
	link, err := root.Resolve("inner")
	if err != nil {
		t.Fatal(err)
	}
	if err := root.Remove(link); err != nil {
		t.Fatalf("Remove(inner): %v", err)
	}
	if _, err := os.Stat(filepath.Join(root.Path(), "sub", "a.txt")); err != nil {
		t.Errorf("symlink target removed: %v", err)
	}

	dir, _ := root.Resolve("sub")
	if err := root.Remove(dir); err != nil {
		t.Fatalf("Remove(sub): %v", err)
	}
	if _, err := root.Resolve("sub"); !fserr.Is(err, fserr.NotFound) {
		t.Errorf("resolve after remove err = %v, want NotFound", err)
	}

	top, _ := root.Resolve("")
	if err := root.Remove(top); !fserr.Is(err, fserr.BadRequest) {
		t.Errorf("remove root err = %v, want BadRequest", err)
	}
}
