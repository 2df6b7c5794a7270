package storage

import (
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bleepstore/objio/internal/auth"
	"github.com/bleepstore/objio/internal/config"
	"github.com/bleepstore/objio/internal/engine"
	ioerrors "github.com/bleepstore/objio/internal/errors"
	"github.com/bleepstore/objio/internal/request"
)

// devAccountKey is the well-known Azurite development key.
const devAccountKey = "Eby8vdM02xNOcqFlqUwJPLlmEtlCDXJ1OUzFT50uSRZ6IFsuFq2UVErCz4I6tq/K1SZFPTOtr/KBHBeksoGMGw=="

func newTestAzureManager(t *testing.T, srv *recordingServer) *AzureManager {
	t.Helper()
	cfg := config.AzureConfig{
		ConnectionString: "DefaultEndpointsProtocol=http;AccountName=devstoreaccount1;AccountKey=" + devAccountKey +
			";BlobEndpoint=" + srv.URL + "/devstoreaccount1;",
		Container: "backups",
		Prefix:    "nightly",
	}
	m, err := newAzureManager(cfg, engine.NewHTTPTransport(4), testOptions())
	if err != nil {
		t.Fatalf("newAzureManager: %v", err)
	}
	m.now = func() time.Time { return time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC) }
	closeManager(t, m)
	return m
}

func TestAzureReadObject(t *testing.T) {
	srv := newRecordingServer(t, "blob body")
	m := newTestAzureManager(t, srv)

	c := newCollector()
	if err := finish(t, m.ReadObject("db.dump", c, request.IORange{Start: 5, End: 8})); err != nil {
		t.Fatalf("ReadObject: %v", err)
	}

	got := srv.last(t)
	if got.Path != "/devstoreaccount1/backups/nightly/db.dump" {
		t.Errorf("path = %q", got.Path)
	}
	if got.Header.Get("X-Ms-Range") != "bytes=5-8" {
		t.Errorf("x-ms-range = %q", got.Header.Get("X-Ms-Range"))
	}
	if got.Header.Get("X-Ms-Version") != auth.AzureAPIVersion {
		t.Errorf("x-ms-version = %q", got.Header.Get("X-Ms-Version"))
	}
	if got.Header.Get("X-Ms-Date") != "Wed, 01 May 2024 10:00:00 GMT" {
		t.Errorf("x-ms-date = %q", got.Header.Get("X-Ms-Date"))
	}
	if !strings.HasPrefix(got.Header.Get("Authorization"), "SharedKey devstoreaccount1:") {
		t.Errorf("Authorization = %q", got.Header.Get("Authorization"))
	}
	if string(c.data) != "blob body" {
		t.Errorf("data = %q", c.data)
	}
}

func TestAzureWriteObject(t *testing.T) {
	srv := newRecordingServer(t, "")
	m := newTestAzureManager(t, srv)

	var up uploadResult
	w := m.WriteObject("state.json", "state.json", "application/json",
		[]Metadata{{Key: "Build", Value: "42"}}, [][]byte{[]byte(`{"ok":`), []byte(`true}`)}, up.done)
	if err := finish(t, w); err != nil {
		t.Fatalf("WriteObject: %v", err)
	}

	got := srv.last(t)
	if got.Method != http.MethodPut {
		t.Fatalf("method = %s", got.Method)
	}
	if string(got.Body) != `{"ok":true}` {
		t.Errorf("body = %q", got.Body)
	}
	checks := map[string]string{
		"X-Ms-Blob-Type":                "BlockBlob",
		"X-Ms-Meta-Build":               "42",
		"X-Ms-Blob-Content-Disposition": `attachment; filename="state.json"`,
		"Content-Type":                  "application/json",
	}
	for name, want := range checks {
		if v := got.Header.Get(name); v != want {
			t.Errorf("%s = %q, want %q", name, v, want)
		}
	}
	if calls, err := up.result(); calls != 1 || err != nil {
		t.Errorf("completion calls=%d err=%v", calls, err)
	}
}

func TestAzureInvalidKeyFailsImmediately(t *testing.T) {
	srv := newRecordingServer(t, "")
	m := newTestAzureManager(t, srv)
	m.accountKey = "not base64!"

	c := newCollector()
	r := m.ReadObjectInfo("x", c)
	if !r.IsDone() || r.Code() != ioerrors.CodeConfig {
		t.Errorf("done=%v code=%d, want done with %d", r.IsDone(), r.Code(), ioerrors.CodeConfig)
	}
	if c.completed != 1 {
		t.Errorf("Completed calls = %d, want 1", c.completed)
	}
	if srv.count() != 0 {
		t.Errorf("server saw %d requests", srv.count())
	}
}

func TestAzurePresignedReadWrite(t *testing.T) {
	srv := newRecordingServer(t, "shared")
	cfg := config.AzurePresignedConfig{
		BaseURL: srv.URL + "/devstoreaccount1/exports/daily?sv=2020-08-04&sr=c&sp=rw&sig=c2lnbmF0dXJl",
	}
	m, err := newAzurePresignedManager(cfg, engine.NewHTTPTransport(4), testOptions())
	if err != nil {
		t.Fatalf("newAzurePresignedManager: %v", err)
	}
	closeManager(t, m)

	c := newCollector()
	if err := finish(t, m.ReadObject("part-0001.csv", c, request.IORange{})); err != nil {
		t.Fatalf("ReadObject: %v", err)
	}
	got := srv.last(t)
	if got.Path != "/devstoreaccount1/exports/daily/part-0001.csv" {
		t.Errorf("path = %q", got.Path)
	}
	if got.Query.Get("sig") != "c2lnbmF0dXJl" {
		t.Errorf("sig = %q, query = %v", got.Query.Get("sig"), got.Query)
	}
	if got.Header.Get("Authorization") != "" {
		t.Errorf("presigned request carries Authorization %q", got.Header.Get("Authorization"))
	}
	if string(c.data) != "shared" {
		t.Errorf("data = %q", c.data)
	}

	if err := finish(t, m.WriteObject("out.txt", "", "text/plain", nil, [][]byte{[]byte("hi")}, nil)); err != nil {
		t.Fatalf("WriteObject: %v", err)
	}
	got = srv.last(t)
	if got.Method != http.MethodPut || got.Header.Get("X-Ms-Blob-Type") != "BlockBlob" || string(got.Body) != "hi" {
		t.Errorf("upload method=%s blob-type=%q body=%q", got.Method, got.Header.Get("X-Ms-Blob-Type"), got.Body)
	}
}

func TestAzurePresignedRejectsURLWithoutContainer(t *testing.T) {
	_, err := newAzurePresignedManager(config.AzurePresignedConfig{BaseURL: "https://acct.blob.core.windows.net/"}, engine.NewHTTPTransport(1), testOptions())
	if err == nil {
		t.Fatal("expected error for URL without container")
	}
}

func TestAzureRetryIsResigned(t *testing.T) {
	srv := newRecordingServer(t, "blob body")
	srv.failNext(1)
	m := newTestAzureManager(t, srv)
	var tick atomic.Int64
	m.now = func() time.Time {
		return time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC).Add(time.Duration(tick.Add(1)) * time.Minute)
	}

	c := newCollector()
	if err := finish(t, m.ReadObject("db.dump", c, request.IORange{})); err != nil {
		t.Fatalf("ReadObject: %v", err)
	}
	seen := srv.all()
	if len(seen) != 2 {
		t.Fatalf("server saw %d requests, want 2", len(seen))
	}
	first, second := seen[0].Header.Get("X-Ms-Date"), seen[1].Header.Get("X-Ms-Date")
	if first == second {
		t.Errorf("retry reused x-ms-date %q", first)
	}
	if seen[0].Header.Get("Authorization") == seen[1].Header.Get("Authorization") {
		t.Error("retry reused the Shared Key signature")
	}
	if string(c.data) != "blob body" {
		t.Errorf("data = %q", c.data)
	}
}
