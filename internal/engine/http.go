package engine

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
)

// maxCapacityHint bounds how much a declared Content-Length may
// preallocate.
const maxCapacityHint = 256 << 20

// HTTPTransport performs round trips with net/http.
type HTTPTransport struct {
	Client *http.Client
}

// NewHTTPTransport returns a transport with compression disabled and
// enough idle connections per host to keep a full engine busy.
func NewHTTPTransport(maxConnsPerHost int) *HTTPTransport {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.DisableCompression = true
	if maxConnsPerHost > 0 {
		tr.MaxIdleConnsPerHost = maxConnsPerHost
	}
	return &HTTPTransport{Client: &http.Client{Transport: tr}}
}

// RoundTrip sends d and reads the whole response body.
func (t *HTTPTransport) RoundTrip(ctx context.Context, d *Descriptor) (*Response, error) {
	var body io.Reader
	if len(d.Body) > 0 {
		readers := make([]io.Reader, len(d.Body))
		for i, seg := range d.Body {
			readers[i] = bytes.NewReader(seg)
		}
		body = io.MultiReader(readers...)
	}

	req, err := http.NewRequestWithContext(ctx, d.Method, d.URL, body)
	if err != nil {
		return nil, fmt.Errorf("building %s request: %w", d.Method, err)
	}
	req.ContentLength = d.BodySize()
	for _, h := range d.Header {
		switch strings.ToLower(h.Name) {
		case "host":
			req.Host = h.Value
		case "content-length":
			if n, err := strconv.ParseInt(h.Value, 10, 64); err == nil {
				req.ContentLength = n
			}
		default:
			req.Header.Add(h.Name, h.Value)
		}
	}

	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	// Content-Length only sizes the buffer; every byte sent is kept.
	hint := int64(0)
	if d.Method == http.MethodGet && resp.ContentLength > 0 {
		hint = min(resp.ContentLength, maxCapacityHint)
	}
	buf := bytes.NewBuffer(make([]byte, 0, hint))
	if _, err := io.Copy(buf, resp.Body); err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	header := resp.Header.Clone()
	if header == nil {
		header = http.Header{}
	}
	if header.Get("Content-Length") == "" && resp.ContentLength >= 0 {
		header.Set("Content-Length", strconv.FormatInt(resp.ContentLength, 10))
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     header,
		Body:       buf.Bytes(),
		URL:        d.URL,
	}, nil
}

var _ Transport = (*HTTPTransport)(nil)
