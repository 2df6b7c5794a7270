package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/bleepstore/objio/internal/auth"
	"github.com/bleepstore/objio/internal/config"
	"github.com/bleepstore/objio/internal/engine"
	"github.com/bleepstore/objio/internal/request"
)

// gcsBaseURL is the address reported for GCS objects in errors.
const gcsBaseURL = "https://storage.googleapis.com/"

// GCSAPI defines the subset of the GCS client that the GCS transport
// uses. This allows mocking in tests.
type GCSAPI interface {
	// Attrs returns the attributes of the given object.
	Attrs(ctx context.Context, bucket, object string) (*GCSAttrs, error)
	// NewRangeReader reads length bytes from offset; length -1 reads to
	// the end.
	NewRangeReader(ctx context.Context, bucket, object string, offset, length int64) (io.ReadCloser, error)
	// NewWriter returns a writer that creates the object on Close.
	NewWriter(ctx context.Context, bucket, object string, attrs GCSAttrs) GCSWriter
}

// GCSWriter is a writer interface for writing to GCS objects.
type GCSWriter interface {
	io.WriteCloser
}

// GCSAttrs holds the object attributes objio reads and writes.
type GCSAttrs struct {
	Size               int64
	ContentType        string
	ContentDisposition string
	Updated            time.Time
	Metadata           map[string]string
}

// realGCSClient wraps the official GCS client to satisfy GCSAPI.
type realGCSClient struct {
	client *gcs.Client
}

func (c *realGCSClient) Attrs(ctx context.Context, bucket, object string) (*GCSAttrs, error) {
	attrs, err := c.client.Bucket(bucket).Object(object).Attrs(ctx)
	if err != nil {
		return nil, err
	}
	return &GCSAttrs{
		Size:               attrs.Size,
		ContentType:        attrs.ContentType,
		ContentDisposition: attrs.ContentDisposition,
		Updated:            attrs.Updated,
		Metadata:           attrs.Metadata,
	}, nil
}

func (c *realGCSClient) NewRangeReader(ctx context.Context, bucket, object string, offset, length int64) (io.ReadCloser, error) {
	return c.client.Bucket(bucket).Object(object).NewRangeReader(ctx, offset, length)
}

func (c *realGCSClient) NewWriter(ctx context.Context, bucket, object string, attrs GCSAttrs) GCSWriter {
	w := c.client.Bucket(bucket).Object(object).NewWriter(ctx)
	w.ContentType = attrs.ContentType
	w.ContentDisposition = attrs.ContentDisposition
	w.Metadata = attrs.Metadata
	return w
}

// gcsTransport performs engine round trips through the GCS client
// library. Responses are shaped like the JSON API's HTTP responses so the
// engine's header pipeline applies unchanged.
type gcsTransport struct {
	client GCSAPI
	bucket string
	prefix string
}

func (t *gcsTransport) RoundTrip(ctx context.Context, d *engine.Descriptor) (*engine.Response, error) {
	object := joinKey(t.prefix, d.Request.ObjectName())
	switch d.Method {
	case http.MethodHead, http.MethodGet:
		return t.read(ctx, d, object)
	case http.MethodPut:
		return t.write(ctx, d, object)
	}
	return &engine.Response{StatusCode: http.StatusMethodNotAllowed, Header: http.Header{}, URL: d.URL}, nil
}

func (t *gcsTransport) read(ctx context.Context, d *engine.Descriptor, object string) (*engine.Response, error) {
	attrs, err := t.client.Attrs(ctx, t.bucket, object)
	if err != nil {
		return gcsErrorResponse(d, err)
	}
	header := http.Header{}
	header.Set("Last-Modified", attrs.Updated.UTC().Format(http.TimeFormat))
	if attrs.ContentType != "" {
		header.Set("Content-Type", attrs.ContentType)
	}
	for k, v := range attrs.Metadata {
		header.Set("x-goog-meta-"+k, v)
	}

	if d.Method == http.MethodHead {
		header.Set("Content-Length", strconv.FormatInt(attrs.Size, 10))
		return &engine.Response{StatusCode: http.StatusOK, Header: header, URL: d.URL}, nil
	}

	offset, length, ranged := parseRangeHeader(d)
	rc, err := t.client.NewRangeReader(ctx, t.bucket, object, offset, length)
	if err != nil {
		return gcsErrorResponse(d, err)
	}
	defer rc.Close()
	body, err := io.ReadAll(rc)
	if err != nil {
		return gcsErrorResponse(d, fmt.Errorf("reading GCS object %q: %w", object, err))
	}
	header.Set("Content-Length", strconv.Itoa(len(body)))

	status := http.StatusOK
	if ranged {
		status = http.StatusPartialContent
	}
	return &engine.Response{StatusCode: status, Header: header, Body: body, URL: d.URL}, nil
}

func (t *gcsTransport) write(ctx context.Context, d *engine.Descriptor, object string) (*engine.Response, error) {
	attrs := GCSAttrs{Metadata: make(map[string]string)}
	for _, h := range d.Header {
		name := strings.ToLower(h.Name)
		switch {
		case name == "content-type":
			attrs.ContentType = h.Value
		case name == "content-disposition":
			attrs.ContentDisposition = h.Value
		case strings.HasPrefix(name, "x-goog-meta-"):
			attrs.Metadata[strings.TrimPrefix(name, "x-goog-meta-")] = h.Value
		}
	}

	w := t.client.NewWriter(ctx, t.bucket, object, attrs)
	for _, seg := range d.Body {
		if _, err := w.Write(seg); err != nil {
			w.Close()
			return gcsErrorResponse(d, fmt.Errorf("writing GCS object %q: %w", object, err))
		}
	}
	if err := w.Close(); err != nil {
		return gcsErrorResponse(d, err)
	}
	return &engine.Response{StatusCode: http.StatusOK, Header: http.Header{}, URL: d.URL}, nil
}

// gcsErrorResponse maps a client library error onto the HTTP status the
// JSON API would have returned. Errors without a status are handed back
// for transport classification.
func gcsErrorResponse(d *engine.Descriptor, err error) (*engine.Response, error) {
	if errors.Is(err, gcs.ErrObjectNotExist) || errors.Is(err, gcs.ErrBucketNotExist) {
		return &engine.Response{StatusCode: http.StatusNotFound, Header: http.Header{}, URL: d.URL}, nil
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code > 0 {
		return &engine.Response{StatusCode: gerr.Code, Header: http.Header{}, URL: d.URL}, nil
	}
	return nil, err
}

// parseRangeHeader extracts "range: bytes=start-end" from d. A length of
// -1 means through the end of the object.
func parseRangeHeader(d *engine.Descriptor) (offset, length int64, ok bool) {
	for _, h := range d.Header {
		if !strings.EqualFold(h.Name, "range") {
			continue
		}
		spec, found := strings.CutPrefix(h.Value, "bytes=")
		if !found {
			break
		}
		startStr, endStr, _ := strings.Cut(spec, "-")
		start, err1 := strconv.ParseInt(startStr, 10, 64)
		end, err2 := strconv.ParseInt(endStr, 10, 64)
		if err1 != nil || err2 != nil || start < 0 || end < start {
			break
		}
		if end-start == math.MaxInt64 {
			// The window spans every addressable byte: read to the end.
			return start, -1, true
		}
		return start, end - start + 1, true
	}
	return 0, -1, false
}

// GCSManager reads and writes objects in a Google Cloud Storage bucket.
//
// Key mapping:
//
//	Objects:  {prefix}/{objectName}
//
// Credentials are resolved via Application Default Credentials unless a
// credentials file is configured.
type GCSManager struct {
	*manager

	Bucket string
	Prefix string
}

// NewGCSManager creates a GCSManager backed by the official client.
func NewGCSManager(ctx context.Context, cfg config.GCSConfig, opts engine.Options) (*GCSManager, error) {
	var clientOpts []option.ClientOption
	if cfg.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	if cfg.Endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(cfg.Endpoint), option.WithoutAuthentication())
	}
	if cfg.Project != "" {
		clientOpts = append(clientOpts, option.WithQuotaProject(cfg.Project))
	}
	client, err := gcs.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("creating GCS client: %w", err)
	}
	return NewGCSManagerWithClient(&realGCSClient{client: client}, cfg, opts), nil
}

// NewGCSManagerWithClient creates a GCSManager with an injected client.
func NewGCSManagerWithClient(client GCSAPI, cfg config.GCSConfig, opts engine.Options) *GCSManager {
	prefix := strings.Trim(cfg.Prefix, "/")
	t := &gcsTransport{client: client, bucket: cfg.Bucket, prefix: prefix}
	return &GCSManager{
		manager: newManager(config.GoogleStorage, t, opts),
		Bucket:  cfg.Bucket,
		Prefix:  prefix,
	}
}

func (m *GCSManager) objectURL(objectName string) string {
	return gcsBaseURL + m.Bucket + "/" + joinKey(m.Prefix, objectName)
}

func (m *GCSManager) ReadObjectInfo(objectName string, h request.Handler) *request.Request {
	return m.download(objectName, h, http.MethodHead, m.objectURL(objectName), nil)
}

func (m *GCSManager) ReadObject(objectName string, h request.Handler, r request.IORange) *request.Request {
	return m.download(objectName, h, http.MethodGet, m.objectURL(objectName), rangeHeaders(r))
}

func (m *GCSManager) WriteObject(objectName, contentDispositionFilename, contentType string, metadata []Metadata, data [][]byte, done request.CompletionFunc) *request.Request {
	headers := []auth.Header{
		{Name: "content-type", Value: detectContentType(contentType, data)},
	}
	if cd := contentDisposition(contentDispositionFilename); cd != "" {
		headers = append(headers, auth.Header{Name: "content-disposition", Value: cd})
	}
	for _, md := range metadata {
		headers = append(headers, auth.Header{Name: "x-goog-meta-" + strings.ToLower(md.Key), Value: md.Value})
	}
	return m.upload(objectName, done, m.objectURL(objectName), headers, data)
}

var (
	_ engine.Transport = (*gcsTransport)(nil)
	_ IOManager        = (*GCSManager)(nil)
)
