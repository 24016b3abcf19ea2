package api

import (
	"errors"
	"mime"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/Fabeuss/oasis/internal/delivery"
	"github.com/Fabeuss/oasis/internal/logging"
	"github.com/Fabeuss/oasis/internal/storage"
)

// deliver streams p honouring the request's Range header. attachment adds a
// Content-Disposition so browsers save rather than display the file.
func (s *Server) deliver(w http.ResponseWriter, r *http.Request, p storage.ResolvedPath, attachment bool) {
	c, err := delivery.Open(s.root, p, r.Header.Get("Range"))
	if err != nil {
		var ue *delivery.UnsatisfiableError
		if errors.As(err, &ue) {
			w.Header().Set("Content-Range", "bytes */"+strconv.FormatInt(ue.Size, 10))
		}
		s.sendFSError(w, r, err)
		return
	}
	defer c.Close()

	h := w.Header()
	h.Set("Accept-Ranges", "bytes")
	h.Set("Content-Type", c.ContentType)
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("Last-Modified", c.ModTime.UTC().Format(http.TimeFormat))
	h.Set("Content-Length", strconv.FormatInt(c.Plan.Length(), 10))
	if attachment {
		h.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": c.Name}))
	}

	status := http.StatusOK
	if c.Plan.Partial {
		h.Set("Content-Range", c.Plan.Range.ContentRange())
		status = http.StatusPartialContent
	}
	w.WriteHeader(status)

	if r.Method == http.MethodHead {
		return
	}

	n, err := c.WriteTo(r.Context(), w)
	if err != nil {
		// Headers are gone; the client sees a short body.
		logging.WithContext(r.Context()).Warn("content transfer error",
			zap.String("path", p.Rel()),
			zap.String("mode", c.Mode()),
			logging.Bytes("sent", n),
			logging.Bytes("planned", c.Plan.Length()),
		)
		logging.WithContext(r.Context()).Debug("content transfer error detail", zap.Error(err))
	}
}
