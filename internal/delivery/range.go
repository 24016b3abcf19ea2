// Package delivery negotiates byte ranges and streams file content from a
// storage root.
package delivery

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/Fabeuss/oasis/internal/fserr"
)

// Single range only. A list of ranges is rejected before this is applied.
var rangeRegex = regexp.MustCompile(`(?i)^bytes=(\d*)-(\d*)$`)

// ByteRange is an inclusive span of a file: 0 <= Start <= End < Total.
type ByteRange struct {
	Start int64
	End   int64
	Total int64
}

// Length is the number of bytes in the range.
func (r ByteRange) Length() int64 { return r.End - r.Start + 1 }

// ContentRange formats the range as a Content-Range header value.
func (r ByteRange) ContentRange() string {
	return fmt.Sprintf("bytes %d-%d/%d", r.Start, r.End, r.Total)
}

// Plan says whether to send the whole file or one range of it.
type Plan struct {
	Partial bool
	Range   ByteRange // meaningful only when Partial
	Size    int64
}

// Length is the number of bytes the plan delivers.
func (p Plan) Length() int64 {
	if p.Partial {
		return p.Range.Length()
	}
	return p.Size
}

// Offset is the first byte the plan delivers.
func (p Plan) Offset() int64 {
	if p.Partial {
		return p.Range.Start
	}
	return 0
}

// Full is the plan for sending all size bytes.
func Full(size int64) Plan { return Plan{Size: size} }

// Negotiate turns an optional Range header into a delivery plan for a file
// of the given size.
//
// An empty header means Full. Accepted forms are "bytes=a-b", "bytes=a-" and
// the suffix "bytes=-n". An end past the file is clamped and a suffix longer
// than the file covers all of it. Malformed syntax, including any request
// for more than one range, fails with fserr.ErrMalformedRange. Ranges that
// start past the end, run backwards or select nothing fail with
// fserr.ErrRangeNotSatisfiable. Both are BadRequest.
func Negotiate(header string, size int64) (Plan, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return Full(size), nil
	}
	if strings.Contains(header, ",") {
		return Plan{}, malformed("multiple ranges unsupported: %q", header)
	}

	matches := rangeRegex.FindStringSubmatch(strings.ReplaceAll(header, " ", ""))
	if matches == nil {
		return Plan{}, malformed("%q", header)
	}
	startStr, endStr := matches[1], matches[2]
	if startStr == "" && endStr == "" {
		return Plan{}, malformed("%q", header)
	}

	var start, end int64
	if startStr == "" {
		suffix := parsePos(endStr)
		if suffix == 0 || size == 0 {
			return Plan{}, unsatisfiable(header, size)
		}
		if suffix > size {
			suffix = size
		}
		start, end = size-suffix, size-1
	} else {
		start = parsePos(startStr)
		end = size - 1
		if endStr != "" {
			end = parsePos(endStr)
		}
		if start >= size || start > end {
			return Plan{}, unsatisfiable(header, size)
		}
		if end >= size {
			end = size - 1
		}
	}

	return Plan{
		Partial: true,
		Range:   ByteRange{Start: start, End: end, Total: size},
		Size:    size,
	}, nil
}

// parsePos parses a digits-only range bound. Values past int64 saturate to
// math.MaxInt64 so they clamp like any other bound beyond the file.
func parsePos(digits string) int64 {
	v, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return math.MaxInt64
	}
	return v
}

func malformed(format string, args ...any) error {
	return fserr.Errorf(fserr.BadRequest, "negotiate", "%w: "+format,
		append([]any{fserr.ErrMalformedRange}, args...)...)
}

// UnsatisfiableError carries the file size a rejected range was judged
// against, for the "bytes */size" Content-Range of the rejection.
type UnsatisfiableError struct {
	Size int64
	err  error
}

func (e *UnsatisfiableError) Error() string { return e.err.Error() }

func (e *UnsatisfiableError) Unwrap() error { return e.err }

func unsatisfiable(header string, size int64) error {
	return &UnsatisfiableError{
		Size: size,
		err: fserr.Errorf(fserr.BadRequest, "negotiate", "%w: %q for size %d",
			fserr.ErrRangeNotSatisfiable, header, size),
	}
}
