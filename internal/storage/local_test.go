package storage

import (
	"math"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bleepstore/objio/internal/config"
	ioerrors "github.com/bleepstore/objio/internal/errors"
	"github.com/bleepstore/objio/internal/request"
)

func newTestFileManager(t *testing.T) *FileManager {
	t.Helper()
	m, err := NewFileManager(config.FileConfig{RootDir: t.TempDir()}, testOptions())
	if err != nil {
		t.Fatalf("NewFileManager: %v", err)
	}
	closeManager(t, m)
	return m
}

func TestFileRoundTrip(t *testing.T) {
	m := newTestFileManager(t)

	w := m.WriteObject("nested/dir/obj.bin", "obj.bin", "application/octet-stream",
		[]Metadata{{Key: "Origin", Value: "test"}},
		[][]byte{[]byte("abc"), []byte("def")}, nil)
	if err := finish(t, w); err != nil {
		t.Fatalf("WriteObject: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(m.RootDir, "nested", "dir", "obj.bin"))
	if err != nil {
		t.Fatalf("reading object file: %v", err)
	}
	if string(data) != "abcdef" {
		t.Errorf("file contents = %q, want abcdef", data)
	}
	sidecar, err := os.ReadFile(filepath.Join(m.RootDir, fileMetaDir, "nested", "dir", "obj.bin.yaml"))
	if err != nil {
		t.Fatalf("reading sidecar: %v", err)
	}
	if !strings.Contains(string(sidecar), "origin") {
		t.Errorf("sidecar missing metadata:\n%s", sidecar)
	}

	c := newCollector()
	if err := finish(t, m.ReadObject("nested/dir/obj.bin", c, request.IORange{Start: 1, End: 3})); err != nil {
		t.Fatalf("ReadObject: %v", err)
	}
	if string(c.data) != "bcd" {
		t.Errorf("ranged data = %q, want bcd", c.data)
	}
	if c.metadata["origin"] != "test" {
		t.Errorf("metadata[origin] = %q, want test", c.metadata["origin"])
	}
	if c.metadata["content-disposition"] != `attachment; filename="obj.bin"` {
		t.Errorf("metadata[content-disposition] = %q", c.metadata["content-disposition"])
	}
}

func TestFileOverwrite(t *testing.T) {
	m := newTestFileManager(t)

	for _, body := range []string{"first version", "second"} {
		if err := finish(t, m.WriteObject("o", "", "", nil, [][]byte{[]byte(body)}, nil)); err != nil {
			t.Fatalf("WriteObject: %v", err)
		}
	}
	c := newCollector()
	if err := finish(t, m.ReadObjectInfo("o", c)); err != nil {
		t.Fatalf("ReadObjectInfo: %v", err)
	}
	if c.size != int64(len("second")) {
		t.Errorf("size = %d, want %d", c.size, len("second"))
	}

	entries, err := os.ReadDir(filepath.Join(m.RootDir, fileTempDir))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("temp directory holds %d leftover files", len(entries))
	}
}

func TestFileRangedReadToEnd(t *testing.T) {
	m := newTestFileManager(t)
	if err := finish(t, m.WriteObject("r", "", "", nil, [][]byte{[]byte("0123456789")}, nil)); err != nil {
		t.Fatalf("WriteObject: %v", err)
	}

	tests := []struct {
		name string
		r    request.IORange
		want string
	}{
		{"past end", request.IORange{Start: 8, End: 20}, "89"},
		{"open ended", request.IORange{Start: 6, End: math.MaxInt64}, "6789"},
		{"every byte", request.IORange{Start: 0, End: math.MaxInt64}, "0123456789"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newCollector()
			if err := finish(t, m.ReadObject("r", c, tt.r)); err != nil {
				t.Fatalf("ReadObject: %v", err)
			}
			if string(c.data) != tt.want {
				t.Errorf("data = %q, want %q", c.data, tt.want)
			}
		})
	}
}

func TestFileMissingObject(t *testing.T) {
	m := newTestFileManager(t)

	r := m.ReadObjectInfo("absent", newCollector())
	finish(t, r)
	if r.Code() != ioerrors.CodeNotFound {
		t.Errorf("Code() = %d, want %d", r.Code(), ioerrors.CodeNotFound)
	}
}

func TestFileRejectsEscapingNames(t *testing.T) {
	m := newTestFileManager(t)

	for _, name := range []string{"../outside", "a/../../b", ".meta/x", ".tmp/y"} {
		t.Run(name, func(t *testing.T) {
			var up uploadResult
			r := m.WriteObject(name, "", "", nil, [][]byte{[]byte("x")}, up.done)
			finish(t, r)
			if r.Code() != http.StatusBadRequest {
				t.Errorf("Code() = %d, want %d", r.Code(), http.StatusBadRequest)
			}
			if calls, err := up.result(); calls != 1 || err == nil {
				t.Errorf("completion calls=%d err=%v", calls, err)
			}
		})
	}
}

func TestFileCleansTempOnStart(t *testing.T) {
	root := t.TempDir()
	tmpDir := filepath.Join(root, fileTempDir)
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		t.Fatal(err)
	}
	stale := filepath.Join(tmpDir, "obj-stale.tmp")
	if err := os.WriteFile(stale, []byte("partial"), 0o644); err != nil {
		t.Fatal(err)
	}

	m, err := NewFileManager(config.FileConfig{RootDir: root}, testOptions())
	if err != nil {
		t.Fatalf("NewFileManager: %v", err)
	}
	closeManager(t, m)

	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Errorf("stale temp file still present (err=%v)", err)
	}
}
