package storage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Fabeuss/oasis/internal/fserr"
)

// newTestRoot builds:
//
//	root/
//	  sub/a.txt
//	  escape -> <outside>
//	  inner  -> sub
//	<outside>/secret.txt
func newTestRoot(t *testing.T) *Root {
	t.Helper()
	dir := t.TempDir()
	outside := t.TempDir()

	mustMkdir(t, filepath.Join(dir, "sub"))
	mustWrite(t, filepath.Join(dir, "sub", "a.txt"), "hello")
	mustWrite(t, filepath.Join(outside, "secret.txt"), "top secret")
	mustSymlink(t, outside, filepath.Join(dir, "escape"))
	mustSymlink(t, filepath.Join(dir, "sub"), filepath.Join(dir, "inner"))

	root, err := NewRoot(dir)
	if err != nil {
		t.Fatalf("NewRoot: %v", err)
	}
	return root
}

func TestResolve(t *testing.T) {
	root := newTestRoot(t)

	tests := []struct {
		name    string
		encoded string
		wantRel string
		wantErr bool
		kind    fserr.Kind
	}{
		{name: "root", encoded: "", wantRel: ""},
		{name: "slash is root", encoded: "/", wantRel: ""},
		{name: "file", encoded: "sub/a.txt", wantRel: "sub/a.txt"},
		{name: "leading slash re-anchored", encoded: "/sub/a.txt", wantRel: "sub/a.txt"},
		{name: "encoded separator", encoded: "sub%2Fa.txt", wantRel: "sub/a.txt"},
		{name: "dot segments", encoded: "./sub/./a.txt", wantRel: "sub/a.txt"},
		{name: "symlink inside root", encoded: "inner/a.txt", wantRel: "inner/a.txt"},
		{name: "parent", encoded: "..", wantErr: true, kind: fserr.BadRequest},
		{name: "parent prefix", encoded: "../etc/passwd", wantErr: true, kind: fserr.BadRequest},
		{name: "parent in middle", encoded: "sub/../../x", wantErr: true, kind: fserr.BadRequest},
		{name: "parent that stays inside", encoded: "sub/..", wantErr: true, kind: fserr.BadRequest},
		{name: "encoded parent", encoded: "%2e%2e/%2e%2e/etc/passwd", wantErr: true, kind: fserr.BadRequest},
		{name: "encoded slash parent", encoded: "..%2f..%2fetc", wantErr: true, kind: fserr.BadRequest},
		{name: "absolute override", encoded: "/../../etc/passwd", wantErr: true, kind: fserr.BadRequest},
		{name: "bad escape", encoded: "sub/%zz", wantErr: true, kind: fserr.BadRequest},
		{name: "nul byte", encoded: "sub/a%00.txt", wantErr: true, kind: fserr.BadRequest},
		{name: "symlink escape", encoded: "escape", wantErr: true, kind: fserr.BadRequest},
		{name: "through symlink escape", encoded: "escape/secret.txt", wantErr: true, kind: fserr.BadRequest},
		{name: "missing", encoded: "missing.txt", wantErr: true, kind: fserr.NotFound},
		{name: "file as directory", encoded: "sub/a.txt/x", wantErr: true, kind: fserr.NotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := root.Resolve(tt.encoded)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Resolve(%q) = %q, want error", tt.encoded, got.Abs())
				}
				if k := fserr.KindOf(err); k != tt.kind {
					t.Errorf("Resolve(%q) kind = %v, want %v (%v)", tt.encoded, k, tt.kind, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve(%q): %v", tt.encoded, err)
			}
			if got.Rel() != tt.wantRel {
				t.Errorf("Rel() = %q, want %q", got.Rel(), tt.wantRel)
			}
			if !within(root.Path(), got.Abs()) {
				t.Errorf("Abs() = %q escapes %q", got.Abs(), root.Path())
			}
		})
	}
}

func TestResolveSymlinkTargetIsCanonical(t *testing.T) {
	root := newTestRoot(t)

	got, err := root.Resolve("inner/a.txt")
	if err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(root.Path(), "sub", "a.txt")
	if got.Abs() != want {
		t.Errorf("Abs() = %q, want %q", got.Abs(), want)
	}
	if got.Name() != "a.txt" {
		t.Errorf("Name() = %q", got.Name())
	}
}

func TestResolveErrorsCarryNoPath(t *testing.T) {
	root := newTestRoot(t)

	_, err := root.Resolve("escape/secret.txt")
	if err == nil {
		t.Fatal("expected error")
	}
	if msg := fserr.KindOf(err).Message(); strings.Contains(msg, root.Path()) {
		t.Errorf("client message leaks root: %q", msg)
	}
}

func TestNewRootRejectsFile(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file")
	mustWrite(t, f, "x")
	if _, err := NewRoot(f); err == nil {
		t.Error("NewRoot on a file should fail")
	}
	if _, err := NewRoot(""); err == nil {
		t.Error("NewRoot with empty path should fail")
	}
}

func TestWithin(t *testing.T) {
	sep := string(filepath.Separator)
	root := sep + "srv" + sep + "data"
	tests := []struct {
		p    string
		want bool
	}{
		{root, true},
		{root + sep + "x", true},
		{root + "2", false},
		{sep + "srv", false},
	}
	for _, tt := range tests {
		if got := within(root, tt.p); got != tt.want {
			t.Errorf("within(%q, %q) = %v, want %v", root, tt.p, got, tt.want)
		}
	}
}

func mustMkdir(t *testing.T, p string) {
	t.Helper()
	if err := os.MkdirAll(p, 0o755); err != nil {
		t.Fatal(err)
	}
}

func mustWrite(t *testing.T, p, content string) {
	t.Helper()
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func mustSymlink(t *testing.T, target, link string) {
	t.Helper()
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
}
