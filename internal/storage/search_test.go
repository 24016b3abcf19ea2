package storage

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"testing"

	"github.com/Fabeuss/oasis/internal/fserr"
)

func newSearchRoot(t *testing.T) *Root {
	t.Helper()
	dir := t.TempDir()
	mustWrite(t, filepath.Join(dir, "foo.js"), "console.log(1)")
	mustWrite(t, filepath.Join(dir, "foo.json"), "{}")
	mustWrite(t, filepath.Join(dir, "bar.txt"), "bar")
	root, err := NewRoot(dir)
	if err != nil {
		t.Fatal(err)
	}
	return root
}

func searchPaths(t *testing.T, root *Root, rel string, keywords ...string) []string {
	t.Helper()
	dir, err := root.Resolve(rel)
	if err != nil {
		t.Fatal(err)
	}
	results, err := root.Search(context.Background(), dir, keywords)
	if err != nil {
		t.Fatalf("Search(%v): %v", keywords, err)
	}
	paths := make([]string, 0, len(results))
	for _, e := range results {
		paths = append(paths, e.Path)
	}
	sort.Strings(paths)
	return paths
}

func TestSearch(t *testing.T) {
	root := newSearchRoot(t)

	tests := []struct {
		keywords []string
		want     []string
	}{
		{[]string{".js"}, []string{"foo.js"}},
		{[]string{"foo"}, []string{"foo.js", "foo.json"}},
		{[]string{"FOO", ".JSON"}, []string{"foo.json"}},
		{[]string{"foo", "bar"}, []string{}},
		{[]string{".txt"}, []string{"bar.txt"}},
		{[]string{"o.j"}, []string{"foo.js", "foo.json"}},
	}

	for _, tt := range tests {
		got := searchPaths(t, root, "", tt.keywords...)
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("Search(%v) = %v, want %v", tt.keywords, got, tt.want)
		}
	}
}

func TestSearchRecursesAndMatchesDirectories(t *testing.T) {
	root := newSearchRoot(t)
	mustMkdir(t, filepath.Join(root.Path(), "src", "foo.js"))
	mustMkdir(t, filepath.Join(root.Path(), "src", "lib"))
	mustWrite(t, filepath.Join(root.Path(), "src", "lib", "foo.js"), "x")

	got := searchPaths(t, root, "", "foo")
	want := []string{"foo.js", "foo.json", "src/foo.js", "src/lib/foo.js"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Search(foo) = %v, want %v", got, want)
	}

	// A directory never satisfies an extension filter.
	got = searchPaths(t, root, "src", ".js")
	want = []string{"src/lib/foo.js"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Search(.js) under src = %v, want %v", got, want)
	}
}

func TestSearchSkipsEscapingSymlinks(t *testing.T) {
	root := newSearchRoot(t)
	outside := t.TempDir()
	mustWrite(t, filepath.Join(outside, "foo.secret"), "x")
	mustWrite(t, filepath.Join(outside, "foo.js"), "x")
	mustSymlink(t, outside, filepath.Join(root.Path(), "foolink"))
	mustSymlink(t, filepath.Join(outside, "foo.js"), filepath.Join(root.Path(), "foo2.js"))

	got := searchPaths(t, root, "", "foo")
	want := []string{"foo.js", "foo.json"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Search(foo) = %v, want %v", got, want)
	}
}

func TestSearchReportsSymlinksWithoutDescending(t *testing.T) {
	root := newSearchRoot(t)
	mustMkdir(t, filepath.Join(root.Path(), "src"))
	mustWrite(t, filepath.Join(root.Path(), "src", "main.js"), "x")
	mustSymlink(t, filepath.Join(root.Path(), "foo.js"), filepath.Join(root.Path(), "link.js"))
	mustSymlink(t, filepath.Join(root.Path(), "src"), filepath.Join(root.Path(), "srclink"))

	// The link is found under its own name, like List shows it.
	got := searchPaths(t, root, "", ".js")
	want := []string{"foo.js", "link.js", "src/main.js"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Search(.js) = %v, want %v", got, want)
	}

	listed := map[string]bool{}
	dir, _ := root.Resolve("")
	entries, err := root.List(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		listed[e.Path] = true
	}
	for _, p := range got {
		if !strings.Contains(p, "/") && !listed[p] {
			t.Errorf("search found %q which List does not show", p)
		}
	}

	// A directory link matches as a directory and is not walked into.
	got = searchPaths(t, root, "", "src")
	want = []string{"src", "srclink"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Search(src) = %v, want %v", got, want)
	}
	got = searchPaths(t, root, "", "main")
	want = []string{"src/main.js"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Search(main) = %v, want %v", got, want)
	}
}

func TestSearchDotfileHasNoExtension(t *testing.T) {
	root := newSearchRoot(t)
	mustWrite(t, filepath.Join(root.Path(), ".js"), "x")
	mustWrite(t, filepath.Join(root.Path(), ".eslintrc.js"), "x")

	got := searchPaths(t, root, "", ".js")
	want := []string{".eslintrc.js", "foo.js"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Search(.js) = %v, want %v", got, want)
	}
}

func TestSearchAbortsOnWalkError(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission checks do not apply to root")
	}
	root := newSearchRoot(t)
	locked := filepath.Join(root.Path(), "locked")
	mustMkdir(t, locked)
	mustWrite(t, filepath.Join(locked, "foo.txt"), "x")
	if err := os.Chmod(locked, 0o000); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chmod(locked, 0o755) })

	dir, _ := root.Resolve("")
	results, err := root.Search(context.Background(), dir, []string{"foo"})
	if !fserr.Is(err, fserr.IO) {
		t.Fatalf("err = %v, want IO", err)
	}
	if results != nil {
		t.Errorf("partial results returned: %v", results)
	}
}

func TestSearchCancelled(t *testing.T) {
	root := newSearchRoot(t)
	dir, _ := root.Resolve("")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := root.Search(ctx, dir, []string{"foo"}); err == nil {
		t.Error("expected error from cancelled search")
	}
}

func TestSearchRequiresDirectory(t *testing.T) {
	root := newSearchRoot(t)
	file, _ := root.Resolve("bar.txt")
	if _, err := root.Search(context.Background(), file, []string{"bar"}); !fserr.Is(err, fserr.BadRequest) {
		t.Errorf("err = %v, want BadRequest", err)
	}
}

func TestParseKeywords(t *testing.T) {
	tests := []struct {
		raw     string
		want    []string
		wantErr bool
	}{
		{raw: "foo", want: []string{"foo"}},
		{raw: "Foo Bar", want: []string{"foo", "bar"}},
		{raw: "foo+.JS", want: []string{"foo", ".js"}},
		{raw: " a  +b ", want: []string{"a", "b"}},
		{raw: "", wantErr: true},
		{raw: " + ", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseKeywords(tt.raw)
		if tt.wantErr {
			if !fserr.Is(err, fserr.BadRequest) {
				t.Errorf("ParseKeywords(%q) err = %v, want BadRequest", tt.raw, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseKeywords(%q): %v", tt.raw, err)
			continue
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("ParseKeywords(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestMatches(t *testing.T) {
	tests := []struct {
		name     string
		isDir    bool
		keywords []string
		want     bool
	}{
		{"foo.js", false, []string{".js"}, true},
		{"foo.json", false, []string{".js"}, false},
		{"FOO.JS", false, []string{".js"}, true},
		{"app.js", true, []string{".js"}, false},
		{"archive.tar.gz", false, []string{".gz"}, true},
		{"archive.tar.gz", false, []string{".tar"}, false},
		{"notes", true, []string{"not"}, true},
		{"notes", false, []string{"not", "x"}, false},
		{".js", false, []string{".js"}, false},
		{".eslintrc.js", false, []string{".js"}, true},
		{"..js", false, []string{".js"}, true},
		{".bashrc", false, []string{"bash"}, true},
	}
	for _, tt := range tests {
		if got := Matches(tt.name, tt.isDir, tt.keywords); got != tt.want {
			t.Errorf("Matches(%q, %v, %v) = %v, want %v", tt.name, tt.isDir, tt.keywords, got, tt.want)
		}
	}
}
