package storage

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bleepstore/objio/internal/engine"
	"github.com/bleepstore/objio/internal/request"
)

// collector records what a download delivers.
type collector struct {
	mu        sync.Mutex
	size      int64
	lastWrite string
	metadata  map[string]string
	data      []byte
	completed int
	err       error
}

func newCollector() *collector {
	return &collector{metadata: make(map[string]string)}
}

func (c *collector) HandleObjectSize(size int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.size = size
}

func (c *collector) HandleObjectLastWriteTime(v string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastWrite = v
}

func (c *collector) HandleMetadata(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metadata[key] = value
}

func (c *collector) HandleData(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = append(c.data, data...)
}

func (c *collector) Completed(_ *request.Request, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.completed++
	c.err = err
}

// uploadResult records an upload completion.
type uploadResult struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (u *uploadResult) done(_ *request.Request, err error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.calls++
	u.err = err
}

func (u *uploadResult) result() (int, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.calls, u.err
}

func testOptions() engine.Options {
	return engine.Options{
		ConcurrencyCap:  8,
		MaxAttempts:     2,
		TransferTimeout: 5 * time.Second,
		Logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// finish waits for r and fails the test if it takes too long.
func finish(t *testing.T, r *request.Request) error {
	t.Helper()
	select {
	case <-r.Done():
	case <-time.After(10 * time.Second):
		t.Fatalf("request for %q did not finish", r.ObjectName())
	}
	return r.Err()
}

func closeManager(t *testing.T, m IOManager) {
	t.Helper()
	t.Cleanup(func() {
		if err := m.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
}

// seenRequest is what recordingServer captured from one request.
type seenRequest struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
	Body   []byte
}

// recordingServer serves a single object body for any path and records
// every request it receives.
type recordingServer struct {
	*httptest.Server

	mu       sync.Mutex
	seen     []seenRequest
	body     string
	failures int
}

func newRecordingServer(t *testing.T, body string) *recordingServer {
	t.Helper()
	s := &recordingServer{body: body}

	r := chi.NewRouter()
	record := func(req *http.Request) {
		data, _ := io.ReadAll(req.Body)
		s.mu.Lock()
		defer s.mu.Unlock()
		s.seen = append(s.seen, seenRequest{
			Method: req.Method,
			Path:   req.URL.EscapedPath(),
			Query:  req.URL.Query(),
			Header: req.Header.Clone(),
			Body:   data,
		})
	}
	r.Get("/*", func(w http.ResponseWriter, req *http.Request) {
		record(req)
		if s.takeFailure() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Last-Modified", "Wed, 12 Oct 2022 17:50:01 GMT")
		w.Header().Set("X-Amz-Meta-Author", "alice")
		io.WriteString(w, s.body)
	})
	r.Head("/*", func(w http.ResponseWriter, req *http.Request) {
		record(req)
		w.Header().Set("Content-Length", strconv.Itoa(len(s.body)))
	})
	r.Put("/*", func(w http.ResponseWriter, req *http.Request) {
		record(req)
		w.WriteHeader(http.StatusCreated)
	})

	s.Server = httptest.NewServer(r)
	t.Cleanup(s.Close)
	return s
}

func (s *recordingServer) last(t *testing.T) seenRequest {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.seen) == 0 {
		t.Fatal("server saw no requests")
	}
	return s.seen[len(s.seen)-1]
}

func (s *recordingServer) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}

// failNext makes the next n GETs answer 503.
func (s *recordingServer) failNext(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = n
}

func (s *recordingServer) takeFailure() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures == 0 {
		return false
	}
	s.failures--
	return true
}

func (s *recordingServer) all() []seenRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]seenRequest(nil), s.seen...)
}
