package delivery

import (
	"context"
	"errors"
	"io"
	"mime"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/Fabeuss/oasis/internal/fserr"
	"github.com/Fabeuss/oasis/internal/metrics"
	"github.com/Fabeuss/oasis/internal/storage"
)

// ChunkSize bounds each read during streaming.
const ChunkSize = 64 << 10

var chunkPool = sync.Pool{
	New: func() any {
		b := make([]byte, ChunkSize)
		return &b
	},
}

// Content is an open file positioned for delivery. WriteTo streams it once
// and closes it; Close must be called if WriteTo is never reached.
type Content struct {
	Name        string
	ContentType string
	ModTime     time.Time
	Plan        Plan

	f      *os.File
	body   io.Reader
	closed bool
}

// Open opens p beneath root, negotiates rangeHeader against the file's size
// at open time and positions the file at the first byte to send.
func Open(root *storage.Root, p storage.ResolvedPath, rangeHeader string) (*Content, error) {
	if p.IsDir() {
		return nil, fserr.E(fserr.BadRequest, "deliver", fserr.ErrNotFile)
	}

	f, err := root.Open(p)
	if err != nil {
		return nil, err
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fserr.E(fserr.IO, "deliver", err)
	}
	if !info.Mode().IsRegular() {
		f.Close()
		return nil, fserr.E(fserr.BadRequest, "deliver", fserr.ErrNotFile)
	}

	plan, err := Negotiate(rangeHeader, info.Size())
	if err != nil {
		f.Close()
		return nil, err
	}

	ct := contentType(f, p, info)

	if off := plan.Offset(); off > 0 {
		if _, err := f.Seek(off, io.SeekStart); err != nil {
			f.Close()
			return nil, fserr.E(fserr.IO, "deliver", err)
		}
	}

	return &Content{
		Name:        p.Name(),
		ContentType: ct,
		ModTime:     info.ModTime(),
		Plan:        plan,
		f:           f,
		body:        io.LimitReader(f, plan.Length()),
	}, nil
}

// Mode labels the plan for metrics and logs.
func (c *Content) Mode() string {
	if c.Plan.Partial {
		return "partial"
	}
	return "full"
}

// WriteTo streams the planned bytes to w in ChunkSize pieces and closes the
// file. It stops at the first read or write failure or when ctx is done.
// Bytes already written are not retried.
func (c *Content) WriteTo(ctx context.Context, w io.Writer) (int64, error) {
	defer c.Close()

	bp := chunkPool.Get().(*[]byte)
	defer chunkPool.Put(bp)
	buf := *bp

	want := c.Plan.Length()
	var written int64
	for written < want {
		if err := ctx.Err(); err != nil {
			c.record(written, false)
			return written, fserr.E(fserr.IO, "deliver", err)
		}

		n, rerr := c.body.Read(buf)
		if n > 0 {
			wn, werr := w.Write(buf[:n])
			written += int64(wn)
			if werr != nil {
				c.record(written, false)
				return written, fserr.E(fserr.IO, "deliver", werr)
			}
			if wn < n {
				c.record(written, false)
				return written, fserr.E(fserr.IO, "deliver", io.ErrShortWrite)
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			c.record(written, false)
			return written, fserr.E(fserr.IO, "deliver", rerr)
		}
	}

	if written != want {
		// The file shrank after it was opened.
		c.record(written, false)
		return written, fserr.E(fserr.IO, "deliver", io.ErrUnexpectedEOF)
	}
	c.record(written, true)
	return written, nil
}

// Close releases the file. It is safe to call more than once.
func (c *Content) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	if err := c.f.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		return err
	}
	return nil
}

func (c *Content) record(n int64, ok bool) {
	metrics.RecordDelivery(c.Mode(), n, ok)
}

// contentType picks a media type without moving the file offset. Text files
// are always served as UTF-8 plain text.
func contentType(f *os.File, p storage.ResolvedPath, info os.FileInfo) string {
	if storage.IsText(p.Abs(), info) {
		return "text/plain; charset=utf-8"
	}
	if ct := mime.TypeByExtension(filepath.Ext(info.Name())); ct != "" {
		return ct
	}
	if info.Size() <= storage.SniffLimit {
		if mt, err := mimetype.DetectReader(io.NewSectionReader(f, 0, info.Size())); err == nil {
			return mt.String()
		}
	}
	return "application/octet-stream"
}
