package delivery

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Fabeuss/oasis/internal/fserr"
)

func TestNegotiate(t *testing.T) {
	const size = 1000

	tests := []struct {
		name    string
		header  string
		size    int64
		want    Plan
		wantErr error
	}{
		{name: "no header", header: "", size: size, want: Full(size)},
		{name: "blank header", header: "   ", size: size, want: Full(size)},
		{name: "first byte", header: "bytes=0-0", size: size,
			want: Plan{Partial: true, Range: ByteRange{0, 0, size}, Size: size}},
		{name: "closed range", header: "bytes=100-199", size: size,
			want: Plan{Partial: true, Range: ByteRange{100, 199, size}, Size: size}},
		{name: "open end", header: "bytes=900-", size: size,
			want: Plan{Partial: true, Range: ByteRange{900, 999, size}, Size: size}},
		{name: "end clamped", header: "bytes=900-5000", size: size,
			want: Plan{Partial: true, Range: ByteRange{900, 999, size}, Size: size}},
		{name: "suffix", header: "bytes=-100", size: size,
			want: Plan{Partial: true, Range: ByteRange{900, 999, size}, Size: size}},
		{name: "suffix longer than file", header: "bytes=-5000", size: size,
			want: Plan{Partial: true, Range: ByteRange{0, 999, size}, Size: size}},
		{name: "unit case-insensitive", header: "Bytes=1-2", size: size,
			want: Plan{Partial: true, Range: ByteRange{1, 2, size}, Size: size}},
		{name: "last byte", header: "bytes=999-999", size: size,
			want: Plan{Partial: true, Range: ByteRange{999, 999, size}, Size: size}},
		{name: "end overflows int64", header: "bytes=0-99999999999999999999", size: size,
			want: Plan{Partial: true, Range: ByteRange{0, 999, size}, Size: size}},
		{name: "suffix overflows int64", header: "bytes=-99999999999999999999", size: size,
			want: Plan{Partial: true, Range: ByteRange{0, 999, size}, Size: size}},

		{name: "start equals size", header: "bytes=1000-1000", size: size, wantErr: fserr.ErrRangeNotSatisfiable},
		{name: "start past size", header: "bytes=2000-", size: size, wantErr: fserr.ErrRangeNotSatisfiable},
		{name: "backwards", header: "bytes=200-100", size: size, wantErr: fserr.ErrRangeNotSatisfiable},
		{name: "zero suffix", header: "bytes=-0", size: size, wantErr: fserr.ErrRangeNotSatisfiable},
		{name: "empty file", header: "bytes=0-", size: 0, wantErr: fserr.ErrRangeNotSatisfiable},
		{name: "empty file suffix", header: "bytes=-1", size: 0, wantErr: fserr.ErrRangeNotSatisfiable},
		{name: "start overflows int64", header: "bytes=99999999999999999999-", size: size, wantErr: fserr.ErrRangeNotSatisfiable},

		{name: "multiple ranges", header: "bytes=0-1,5-6", size: size, wantErr: fserr.ErrMalformedRange},
		{name: "wrong unit", header: "items=0-1", size: size, wantErr: fserr.ErrMalformedRange},
		{name: "no dash", header: "bytes=100", size: size, wantErr: fserr.ErrMalformedRange},
		{name: "bare dash", header: "bytes=-", size: size, wantErr: fserr.ErrMalformedRange},
		{name: "negative", header: "bytes=-1-5", size: size, wantErr: fserr.ErrMalformedRange},
		{name: "letters", header: "bytes=a-b", size: size, wantErr: fserr.ErrMalformedRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Negotiate(tt.header, tt.size)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantErr), "err = %v", err)
				assert.Equal(t, fserr.BadRequest, fserr.KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNegotiateRangeIsConsistent(t *testing.T) {
	for _, h := range []string{"bytes=0-0", "bytes=10-", "bytes=-7", "bytes=3-400"} {
		p, err := Negotiate(h, 50)
		require.NoError(t, err, h)
		r := p.Range
		assert.True(t, 0 <= r.Start && r.Start <= r.End && r.End < r.Total, "%s: %+v", h, r)
		assert.Equal(t, r.End-r.Start+1, p.Length())
		assert.Equal(t, int64(50), r.Total)
	}
}

func TestContentRangeHeader(t *testing.T) {
	r := ByteRange{Start: 100, End: 199, Total: 4096}
	assert.Equal(t, "bytes 100-199/4096", r.ContentRange())
	assert.Equal(t, int64(100), r.Length())
}
