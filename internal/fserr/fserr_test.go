package fserr

import (
	"errors"
	"fmt"
	"io/fs"
	"testing"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"bad request", E(BadRequest, "resolve", ErrPathEscape), BadRequest},
		{"not found", E(NotFound, "resolve", fs.ErrNotExist), NotFound},
		{"io", E(IO, "walk", errors.New("disk")), IO},
		{"wrapped twice", fmt.Errorf("list: %w", E(IO, "readdir", nil)), IO},
		{"foreign error", errors.New("boom"), Internal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSentinelsSurviveWrapping(t *testing.T) {
	err := Errorf(BadRequest, "negotiate", "bytes=9-1: %w", ErrRangeNotSatisfiable)
	if !errors.Is(err, ErrRangeNotSatisfiable) {
		t.Fatal("errors.Is lost the sentinel")
	}
	if !Is(err, BadRequest) {
		t.Errorf("kind = %v, want BadRequest", KindOf(err))
	}
	if Is(nil, BadRequest) {
		t.Error("nil error must not match any kind")
	}
}

func TestMessageHasNoDetail(t *testing.T) {
	err := E(IO, "open", &fs.PathError{Op: "open", Path: "/srv/secret/root/x", Err: errors.New("EIO")})
	msg := KindOf(err).Message()
	if msg != "i/o error" {
		t.Errorf("Message() = %q", msg)
	}
}
