package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/bleepstore/objio/internal/config"
	"github.com/bleepstore/objio/internal/engine"
	ioerrors "github.com/bleepstore/objio/internal/errors"
	"github.com/bleepstore/objio/internal/request"
	"github.com/bleepstore/objio/internal/uid"
)

const (
	fileTempDir = ".tmp"
	fileMetaDir = ".meta"
)

// fileTransport answers engine round trips from a directory tree. Objects
// live at {root}/{objectName}; their attributes live in a YAML sidecar at
// {root}/.meta/{objectName}.yaml.
type fileTransport struct {
	root string
}

func newFileTransport(root string) (*fileTransport, error) {
	for _, dir := range []string{root, filepath.Join(root, fileTempDir), filepath.Join(root, fileMetaDir)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating storage directory %q: %w", dir, err)
		}
	}
	t := &fileTransport{root: root}
	if err := t.cleanTempFiles(); err != nil {
		return nil, err
	}
	return t, nil
}

// cleanTempFiles removes writes left incomplete by a previous process.
func (t *fileTransport) cleanTempFiles() error {
	tmpDir := filepath.Join(t.root, fileTempDir)
	entries, err := os.ReadDir(tmpDir)
	if err != nil {
		return fmt.Errorf("reading temp directory: %w", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			os.Remove(filepath.Join(tmpDir, entry.Name()))
		}
	}
	return nil
}

// paths returns the data and sidecar paths for name. ok is false when
// name would escape the root or collide with the internal directories.
func (t *fileTransport) paths(name string) (data, meta string, ok bool) {
	name = strings.TrimLeft(name, "/")
	rel := filepath.FromSlash(name)
	if !filepath.IsLocal(rel) {
		return "", "", false
	}
	first, _, _ := strings.Cut(name, "/")
	if first == fileTempDir || first == fileMetaDir {
		return "", "", false
	}
	return filepath.Join(t.root, rel), filepath.Join(t.root, fileMetaDir, rel+".yaml"), true
}

func (t *fileTransport) RoundTrip(ctx context.Context, d *engine.Descriptor) (*engine.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name := d.Request.ObjectName()
	dataPath, metaPath, ok := t.paths(name)
	if !ok {
		return nil, ioerrors.New(http.StatusBadRequest, "Object name %q is outside the storage root", name)
	}
	switch d.Method {
	case http.MethodHead, http.MethodGet:
		return t.read(d, name, dataPath, metaPath)
	case http.MethodPut:
		return t.write(d, dataPath, metaPath)
	}
	return statusResponse(d, http.StatusMethodNotAllowed), nil
}

func (t *fileTransport) read(d *engine.Descriptor, name, dataPath, metaPath string) (*engine.Response, error) {
	file, err := os.Open(dataPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ioerrors.NotFound(name)
	}
	if err != nil {
		return nil, fmt.Errorf("opening object file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat object file: %w", err)
	}
	if info.IsDir() {
		return nil, ioerrors.NotFound(name)
	}
	attrs, err := readSidecar(metaPath)
	if err != nil {
		return nil, err
	}

	if d.Method == http.MethodHead {
		return &engine.Response{StatusCode: http.StatusOK, Header: attrs.responseHeader(info.Size(), info.ModTime()), URL: d.URL}, nil
	}
	start, n, status := resolveRange(d, info.Size())
	if status == http.StatusRequestedRangeNotSatisfiable {
		return statusResponse(d, status), nil
	}
	body := make([]byte, n)
	if _, err := file.ReadAt(body, start); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("reading object file: %w", err)
	}
	return &engine.Response{StatusCode: status, Header: attrs.responseHeader(n, info.ModTime()), Body: body, URL: d.URL}, nil
}

func (t *fileTransport) write(d *engine.Descriptor, dataPath, metaPath string) (*engine.Response, error) {
	sidecar, err := yaml.Marshal(attrsFromHeaders(d.Header))
	if err != nil {
		return nil, fmt.Errorf("encoding object attributes: %w", err)
	}
	if err := t.writeAtomic(metaPath, [][]byte{sidecar}); err != nil {
		return nil, err
	}
	if err := t.writeAtomic(dataPath, d.Body); err != nil {
		return nil, err
	}
	return statusResponse(d, http.StatusCreated), nil
}

// writeAtomic writes segments to a temp file, fsyncs it and renames it
// over path.
func (t *fileTransport) writeAtomic(path string, segments [][]byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating parent directories: %w", err)
	}
	tmpPath := filepath.Join(t.root, fileTempDir, uid.TempName("obj"))
	tmpFile, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	for _, seg := range segments {
		if _, err := tmpFile.Write(seg); err != nil {
			tmpFile.Close()
			os.Remove(tmpPath)
			return fmt.Errorf("writing temp file: %w", err)
		}
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming temp file to final path: %w", err)
	}
	return nil
}

func readSidecar(path string) (objectAttrs, error) {
	var attrs objectAttrs
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return attrs, nil
	}
	if err != nil {
		return attrs, fmt.Errorf("reading object attributes: %w", err)
	}
	if err := yaml.Unmarshal(data, &attrs); err != nil {
		return attrs, fmt.Errorf("parsing object attributes %q: %w", path, err)
	}
	return attrs, nil
}

// FileManager stores objects as files under a root directory. Writes are
// crash-safe: data goes to a temp file that is fsynced and renamed into
// place.
type FileManager struct {
	*manager

	RootDir string
}

// NewFileManager creates a FileManager rooted at cfg.RootDir, creating the
// directory if needed.
func NewFileManager(cfg config.FileConfig, opts engine.Options) (*FileManager, error) {
	t, err := newFileTransport(cfg.RootDir)
	if err != nil {
		return nil, err
	}
	return &FileManager{
		manager: newManager(config.File, t, opts),
		RootDir: cfg.RootDir,
	}, nil
}

func (m *FileManager) objectURL(objectName string) string {
	return "file://" + filepath.ToSlash(filepath.Join(m.RootDir, filepath.FromSlash(strings.TrimLeft(objectName, "/"))))
}

func (m *FileManager) ReadObjectInfo(objectName string, h request.Handler) *request.Request {
	return m.download(objectName, h, http.MethodHead, m.objectURL(objectName), nil)
}

func (m *FileManager) ReadObject(objectName string, h request.Handler, r request.IORange) *request.Request {
	return m.download(objectName, h, http.MethodGet, m.objectURL(objectName), rangeHeaders(r))
}

func (m *FileManager) WriteObject(objectName, contentDispositionFilename, contentType string, metadata []Metadata, data [][]byte, done request.CompletionFunc) *request.Request {
	headers := localUploadHeaders(contentDispositionFilename, contentType, metadata, data)
	return m.upload(objectName, done, m.objectURL(objectName), headers, data)
}

var (
	_ engine.Transport = (*fileTransport)(nil)
	_ IOManager        = (*FileManager)(nil)
)
