package storage

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver

	"github.com/bleepstore/objio/internal/config"
	"github.com/bleepstore/objio/internal/engine"
	ioerrors "github.com/bleepstore/objio/internal/errors"
	"github.com/bleepstore/objio/internal/request"
)

// memObject is one stored object.
type memObject struct {
	data     []byte
	attrs    objectAttrs
	modified time.Time
}

// memoryTransport answers engine round trips from a map. Reads copy the
// stored bytes so callers cannot mutate them.
type memoryTransport struct {
	mu      sync.RWMutex
	objects map[string]memObject
	now     func() time.Time
}

func newMemoryTransport() *memoryTransport {
	return &memoryTransport{objects: make(map[string]memObject), now: time.Now}
}

func (t *memoryTransport) RoundTrip(ctx context.Context, d *engine.Descriptor) (*engine.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name := d.Request.ObjectName()
	switch d.Method {
	case http.MethodHead, http.MethodGet:
		t.mu.RLock()
		obj, found := t.objects[name]
		t.mu.RUnlock()
		if !found {
			return nil, ioerrors.NotFound(name)
		}
		size := int64(len(obj.data))
		if d.Method == http.MethodHead {
			return &engine.Response{StatusCode: http.StatusOK, Header: obj.attrs.responseHeader(size, obj.modified), URL: d.URL}, nil
		}
		start, n, status := resolveRange(d, size)
		if status == http.StatusRequestedRangeNotSatisfiable {
			return statusResponse(d, status), nil
		}
		body := make([]byte, n)
		copy(body, obj.data[start:start+n])
		return &engine.Response{StatusCode: status, Header: obj.attrs.responseHeader(n, obj.modified), Body: body, URL: d.URL}, nil

	case http.MethodPut:
		data := make([]byte, 0, d.BodySize())
		for _, seg := range d.Body {
			data = append(data, seg...)
		}
		t.mu.Lock()
		_, existed := t.objects[name]
		t.objects[name] = memObject{data: data, attrs: attrsFromHeaders(d.Header), modified: t.now()}
		t.mu.Unlock()
		if existed {
			return statusResponse(d, http.StatusOK), nil
		}
		return statusResponse(d, http.StatusCreated), nil
	}
	return statusResponse(d, http.StatusMethodNotAllowed), nil
}

// InMemoryManager keeps objects in process memory. When a snapshot path
// is configured, objects are loaded from the SQLite file on start and
// written back on Close so data survives restarts.
type InMemoryManager struct {
	*manager

	store        *memoryTransport
	snapshotPath string
}

// NewInMemoryManager creates an InMemoryManager, loading any existing
// snapshot.
func NewInMemoryManager(cfg config.InMemoryConfig, opts engine.Options) (*InMemoryManager, error) {
	store := newMemoryTransport()
	if cfg.SnapshotPath != "" {
		if err := store.loadSnapshot(cfg.SnapshotPath); err != nil {
			return nil, fmt.Errorf("loading snapshot: %w", err)
		}
	}
	return &InMemoryManager{
		manager:      newManager(config.InMemory, store, opts),
		store:        store,
		snapshotPath: cfg.SnapshotPath,
	}, nil
}

func (m *InMemoryManager) objectURL(objectName string) string {
	return "memory:///" + objectName
}

func (m *InMemoryManager) ReadObjectInfo(objectName string, h request.Handler) *request.Request {
	return m.download(objectName, h, http.MethodHead, m.objectURL(objectName), nil)
}

func (m *InMemoryManager) ReadObject(objectName string, h request.Handler, r request.IORange) *request.Request {
	return m.download(objectName, h, http.MethodGet, m.objectURL(objectName), rangeHeaders(r))
}

func (m *InMemoryManager) WriteObject(objectName, contentDispositionFilename, contentType string, metadata []Metadata, data [][]byte, done request.CompletionFunc) *request.Request {
	headers := localUploadHeaders(contentDispositionFilename, contentType, metadata, data)
	return m.upload(objectName, done, m.objectURL(objectName), headers, data)
}

// Snapshot writes the current objects to the configured snapshot file.
// It is a no-op when no snapshot path is configured.
func (m *InMemoryManager) Snapshot() error {
	if m.snapshotPath == "" {
		return nil
	}
	return m.store.writeSnapshot(m.snapshotPath)
}

// Close stops the engine and writes a final snapshot.
func (m *InMemoryManager) Close() error {
	m.manager.Close()
	if err := m.Snapshot(); err != nil {
		return fmt.Errorf("writing final snapshot: %w", err)
	}
	return nil
}

// loadSnapshot restores objects from a SQLite snapshot file. A missing
// file is a fresh start.
func (t *memoryTransport) loadSnapshot(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("opening snapshot database: %w", err)
	}
	defer db.Close()

	var tableCount int
	err = db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name IN ('objects', 'object_metadata')`).Scan(&tableCount)
	if err != nil {
		return fmt.Errorf("checking snapshot tables: %w", err)
	}
	if tableCount < 2 {
		return nil
	}

	rows, err := db.Query("SELECT name, data, content_type, content_disposition, modified FROM objects")
	if err != nil {
		return fmt.Errorf("querying object snapshots: %w", err)
	}
	defer rows.Close()

	t.mu.Lock()
	defer t.mu.Unlock()
	for rows.Next() {
		var name string
		var obj memObject
		var modified int64
		if err := rows.Scan(&name, &obj.data, &obj.attrs.ContentType, &obj.attrs.ContentDisposition, &modified); err != nil {
			return fmt.Errorf("scanning object snapshot row: %w", err)
		}
		obj.modified = time.Unix(0, modified).UTC()
		t.objects[name] = obj
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating object snapshot rows: %w", err)
	}

	mdRows, err := db.Query("SELECT name, key, value FROM object_metadata ORDER BY name, position")
	if err != nil {
		return fmt.Errorf("querying metadata snapshots: %w", err)
	}
	defer mdRows.Close()
	for mdRows.Next() {
		var name string
		var md metaEntry
		if err := mdRows.Scan(&name, &md.Key, &md.Value); err != nil {
			return fmt.Errorf("scanning metadata snapshot row: %w", err)
		}
		obj, ok := t.objects[name]
		if !ok {
			continue
		}
		obj.attrs.Metadata = append(obj.attrs.Metadata, md)
		t.objects[name] = obj
	}
	return mdRows.Err()
}

// writeSnapshot writes every object to a temporary SQLite file and renames
// it over path.
func (t *memoryTransport) writeSnapshot(path string) error {
	t.mu.RLock()
	names := make([]string, 0, len(t.objects))
	objects := make(map[string]memObject, len(t.objects))
	for k, v := range t.objects {
		names = append(names, k)
		objects[k] = v
	}
	t.mu.RUnlock()
	sort.Strings(names)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating snapshot directory: %w", err)
	}
	tmpPath := path + ".tmp"
	os.Remove(tmpPath)

	if err := writeSnapshotFile(tmpPath, names, objects); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming snapshot file: %w", err)
	}
	os.Remove(tmpPath + "-wal")
	os.Remove(tmpPath + "-shm")
	return nil
}

func writeSnapshotFile(path string, names []string, objects map[string]memObject) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("creating temp snapshot database: %w", err)
	}
	defer db.Close()

	schema := `
		PRAGMA synchronous = FULL;

		CREATE TABLE objects (
			name                TEXT    NOT NULL PRIMARY KEY,
			data                BLOB    NOT NULL,
			content_type        TEXT    NOT NULL,
			content_disposition TEXT    NOT NULL,
			modified            INTEGER NOT NULL
		);

		CREATE TABLE object_metadata (
			name     TEXT    NOT NULL,
			position INTEGER NOT NULL,
			key      TEXT    NOT NULL,
			value    TEXT    NOT NULL,
			PRIMARY KEY (name, position)
		);
	`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("creating snapshot schema: %w", err)
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("beginning snapshot transaction: %w", err)
	}
	defer tx.Rollback()

	objStmt, err := tx.Prepare("INSERT INTO objects (name, data, content_type, content_disposition, modified) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("preparing object insert: %w", err)
	}
	defer objStmt.Close()
	mdStmt, err := tx.Prepare("INSERT INTO object_metadata (name, position, key, value) VALUES (?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("preparing metadata insert: %w", err)
	}
	defer mdStmt.Close()

	for _, name := range names {
		obj := objects[name]
		data := obj.data
		if data == nil {
			data = []byte{}
		}
		if _, err := objStmt.Exec(name, data, obj.attrs.ContentType, obj.attrs.ContentDisposition, obj.modified.UnixNano()); err != nil {
			return fmt.Errorf("inserting object snapshot for %q: %w", name, err)
		}
		for i, md := range obj.attrs.Metadata {
			if _, err := mdStmt.Exec(name, i, md.Key, md.Value); err != nil {
				return fmt.Errorf("inserting metadata snapshot for %q: %w", name, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing snapshot transaction: %w", err)
	}
	if err := db.Close(); err != nil {
		return fmt.Errorf("closing temp snapshot database: %w", err)
	}
	return nil
}

var (
	_ engine.Transport = (*memoryTransport)(nil)
	_ IOManager        = (*InMemoryManager)(nil)
)
