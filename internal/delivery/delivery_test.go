package delivery

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Fabeuss/oasis/internal/fserr"
	"github.com/Fabeuss/oasis/internal/storage"
)

func newRootWithFile(t *testing.T, name string, data []byte) (*storage.Root, storage.ResolvedPath) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, filepath.Dir(name)), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0o644))

	root, err := storage.NewRoot(dir)
	require.NoError(t, err)
	p, err := root.ResolveDecoded(name)
	require.NoError(t, err)
	return root, p
}

func testData(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i % 251)
	}
	return b
}

func TestDeliverFull(t *testing.T) {
	data := testData(3*ChunkSize + 17)
	root, p := newRootWithFile(t, "videos/a.mp4", data)

	c, err := Open(root, p, "")
	require.NoError(t, err)
	assert.False(t, c.Plan.Partial)
	assert.Equal(t, int64(len(data)), c.Plan.Length())
	assert.NotEmpty(t, c.ContentType)
	assert.NotContains(t, c.ContentType, "text/plain")
	assert.Equal(t, "a.mp4", c.Name)

	var buf bytes.Buffer
	n, err := c.WriteTo(context.Background(), &buf)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), n)
	assert.Equal(t, data, buf.Bytes())
}

func TestDeliverPartial(t *testing.T) {
	data := testData(4096)
	root, p := newRootWithFile(t, "videos/a.mp4", data)

	c, err := Open(root, p, "bytes=100-199")
	require.NoError(t, err)
	require.True(t, c.Plan.Partial)
	assert.Equal(t, ByteRange{Start: 100, End: 199, Total: 4096}, c.Plan.Range)

	var buf bytes.Buffer
	n, err := c.WriteTo(context.Background(), &buf)
	require.NoError(t, err)
	assert.Equal(t, int64(100), n)
	assert.Equal(t, data[100:200], buf.Bytes())
}

func TestDeliverSuffixAcrossChunks(t *testing.T) {
	data := testData(2*ChunkSize + 5)
	root, p := newRootWithFile(t, "blob.bin", data)

	c, err := Open(root, p, "bytes=-70000")
	require.NoError(t, err)

	var buf bytes.Buffer
	_, err = c.WriteTo(context.Background(), &buf)
	require.NoError(t, err)
	assert.Equal(t, data[len(data)-70000:], buf.Bytes())
}

func TestDeliverTextContentType(t *testing.T) {
	root, p := newRootWithFile(t, "notes/readme.md", []byte("# hi\n"))

	c, err := Open(root, p, "")
	require.NoError(t, err)
	defer c.Close()
	assert.Equal(t, "text/plain; charset=utf-8", c.ContentType)
}

func TestDeliverUnsatisfiable(t *testing.T) {
	root, p := newRootWithFile(t, "a.bin", testData(10))

	_, err := Open(root, p, "bytes=10-10")
	require.Error(t, err)
	assert.True(t, errors.Is(err, fserr.ErrRangeNotSatisfiable))
	assert.Equal(t, fserr.BadRequest, fserr.KindOf(err))

	var ue *UnsatisfiableError
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, int64(10), ue.Size)
}

func TestDeliverJudgesRangeAgainstSizeAtOpen(t *testing.T) {
	root, p := newRootWithFile(t, "a.bin", testData(10))
	require.NoError(t, os.WriteFile(p.Abs(), testData(40), 0o644))

	// The resolved stat still says 10 bytes; the open file has 40.
	c, err := Open(root, p, "bytes=20-29")
	require.NoError(t, err)
	defer c.Close()
	assert.Equal(t, ByteRange{20, 29, 40}, c.Plan.Range)

	require.NoError(t, os.WriteFile(p.Abs(), testData(5), 0o644))
	_, err = Open(root, p, "bytes=7-")
	var ue *UnsatisfiableError
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, int64(5), ue.Size)
}

func TestDeliverRejectsDirectory(t *testing.T) {
	root, _ := newRootWithFile(t, "d/a.bin", testData(10))
	dir, err := root.ResolveDecoded("d")
	require.NoError(t, err)

	_, err = Open(root, dir, "")
	assert.Equal(t, fserr.BadRequest, fserr.KindOf(err))
}

func TestDeliverCancelledClosesFile(t *testing.T) {
	root, p := newRootWithFile(t, "a.bin", testData(ChunkSize*4))

	c, err := Open(root, p, "")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var buf bytes.Buffer
	n, err := c.WriteTo(ctx, &buf)
	require.Error(t, err)
	assert.Equal(t, fserr.IO, fserr.KindOf(err))
	assert.Equal(t, int64(0), n)

	_, rerr := c.f.Read(make([]byte, 1))
	assert.True(t, errors.Is(rerr, os.ErrClosed), "file left open: %v", rerr)
	assert.NoError(t, c.Close())
}

type failingWriter struct{ after int }

func (w *failingWriter) Write(p []byte) (int, error) {
	if w.after <= 0 {
		return 0, errors.New("connection reset")
	}
	w.after--
	return len(p), nil
}

func TestDeliverWriteFailureStops(t *testing.T) {
	root, p := newRootWithFile(t, "a.bin", testData(ChunkSize*4))

	c, err := Open(root, p, "")
	require.NoError(t, err)

	n, err := c.WriteTo(context.Background(), &failingWriter{after: 1})
	require.Error(t, err)
	assert.Equal(t, fserr.IO, fserr.KindOf(err))
	assert.Equal(t, int64(ChunkSize), n)
}
