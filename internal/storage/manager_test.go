package storage

import (
	"math"
	"strings"
	"testing"

	"github.com/bleepstore/objio/internal/auth"
	"github.com/bleepstore/objio/internal/engine"
	"github.com/bleepstore/objio/internal/request"
)

func TestJoinKey(t *testing.T) {
	tests := []struct {
		prefix, name, want string
	}{
		{"", "a.txt", "a.txt"},
		{"base", "a.txt", "base/a.txt"},
		{"/base/", "/a/b.txt", "base/a/b.txt"},
	}
	for _, tt := range tests {
		if got := joinKey(tt.prefix, tt.name); got != tt.want {
			t.Errorf("joinKey(%q, %q) = %q, want %q", tt.prefix, tt.name, got, tt.want)
		}
	}
}

func TestContentDisposition(t *testing.T) {
	if got := contentDisposition(""); got != "" {
		t.Errorf("contentDisposition(\"\") = %q, want empty", got)
	}
	if got := contentDisposition("a b.txt"); got != `attachment; filename="a b.txt"` {
		t.Errorf("contentDisposition = %q", got)
	}
}

func TestDetectContentType(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	tests := []struct {
		name        string
		contentType string
		data        [][]byte
		want        string
	}{
		{"explicit wins", "application/x-custom", [][]byte{png}, "application/x-custom"},
		{"sniffed png", "", [][]byte{nil, png}, "image/png"},
		{"empty payload", "", nil, "application/octet-stream"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := detectContentType(tt.contentType, tt.data)
			if !strings.HasPrefix(got, tt.want) {
				t.Errorf("detectContentType = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRangeHeaders(t *testing.T) {
	if h := rangeHeaders(request.IORange{Start: 7, End: 7}); h != nil {
		t.Errorf("whole range produced headers %v", h)
	}
	h := rangeHeaders(request.IORange{Start: 0, End: 99})
	if len(h) != 1 || h[0].Name != "range" || h[0].Value != "bytes=0-99" {
		t.Errorf("rangeHeaders = %v", h)
	}
}

func TestParseRangeHeader(t *testing.T) {
	tests := []struct {
		value      string
		wantOffset int64
		wantLength int64
		wantOK     bool
	}{
		{"bytes=0-9", 0, 10, true},
		{"bytes=5-5", 5, 1, true},
		{"bytes=3-9223372036854775807", 3, math.MaxInt64 - 2, true},
		{"bytes=0-9223372036854775807", 0, -1, true},
		{"bytes=9-3", 0, -1, false},
		{"bytes=-1-4", 0, -1, false},
		{"bytes=0-99999999999999999999", 0, -1, false},
		{"items=0-9", 0, -1, false},
	}
	for _, tt := range tests {
		d := &engine.Descriptor{Header: []auth.Header{{Name: "Range", Value: tt.value}}}
		offset, length, ok := parseRangeHeader(d)
		if offset != tt.wantOffset || length != tt.wantLength || ok != tt.wantOK {
			t.Errorf("parseRangeHeader(%q) = %d, %d, %v, want %d, %d, %v",
				tt.value, offset, length, ok, tt.wantOffset, tt.wantLength, tt.wantOK)
		}
	}
}

func TestResolveRangeClamps(t *testing.T) {
	tests := []struct {
		value      string
		size       int64
		wantStart  int64
		wantN      int64
		wantStatus int
	}{
		{"", 10, 0, 10, 200},
		{"bytes=2-5", 10, 2, 4, 206},
		{"bytes=8-20", 10, 8, 2, 206},
		{"bytes=4-9223372036854775807", 10, 4, 6, 206},
		{"bytes=0-9223372036854775807", 10, 0, 10, 206},
		{"bytes=10-12", 10, 0, 0, 416},
	}
	for _, tt := range tests {
		d := &engine.Descriptor{}
		if tt.value != "" {
			d.Header = []auth.Header{{Name: "range", Value: tt.value}}
		}
		start, n, status := resolveRange(d, tt.size)
		if start != tt.wantStart || n != tt.wantN || status != tt.wantStatus {
			t.Errorf("resolveRange(%q, %d) = %d, %d, %d, want %d, %d, %d",
				tt.value, tt.size, start, n, status, tt.wantStart, tt.wantN, tt.wantStatus)
		}
	}
}
