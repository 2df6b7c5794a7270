package storage

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bleepstore/objio/internal/auth"
	"github.com/bleepstore/objio/internal/engine"
)

// localMetaPrefix is the header prefix the in-process backends accept on
// upload and emit on read.
const localMetaPrefix = "x-amz-meta-"

// objectAttrs is what the in-process backends keep next to object data.
type objectAttrs struct {
	ContentType        string      `yaml:"content_type,omitempty"`
	ContentDisposition string      `yaml:"content_disposition,omitempty"`
	Metadata           []metaEntry `yaml:"metadata,omitempty"`
}

type metaEntry struct {
	Key   string `yaml:"key"`
	Value string `yaml:"value"`
}

// localUploadHeaders renders the upload headers understood by
// attrsFromHeaders.
func localUploadHeaders(filename, contentType string, metadata []Metadata, data [][]byte) []auth.Header {
	headers := []auth.Header{
		{Name: "content-type", Value: detectContentType(contentType, data)},
		{Name: "content-length", Value: strconv.FormatInt(totalSize(data), 10)},
	}
	if cd := contentDisposition(filename); cd != "" {
		headers = append(headers, auth.Header{Name: "content-disposition", Value: cd})
	}
	for _, md := range metadata {
		headers = append(headers, auth.Header{Name: localMetaPrefix + strings.ToLower(md.Key), Value: md.Value})
	}
	return headers
}

// attrsFromHeaders collects the stored attributes from upload headers.
func attrsFromHeaders(headers []auth.Header) objectAttrs {
	var a objectAttrs
	for _, h := range headers {
		name := strings.ToLower(h.Name)
		switch {
		case name == "content-type":
			a.ContentType = h.Value
		case name == "content-disposition":
			a.ContentDisposition = h.Value
		case strings.HasPrefix(name, localMetaPrefix):
			a.Metadata = append(a.Metadata, metaEntry{Key: strings.TrimPrefix(name, localMetaPrefix), Value: h.Value})
		}
	}
	return a
}

// responseHeader renders a for a response carrying length body bytes.
func (a objectAttrs) responseHeader(length int64, modified time.Time) http.Header {
	header := http.Header{}
	header.Set("Content-Length", strconv.FormatInt(length, 10))
	header.Set("Last-Modified", modified.UTC().Format(http.TimeFormat))
	if a.ContentType != "" {
		header.Set("Content-Type", a.ContentType)
	}
	if a.ContentDisposition != "" {
		header.Set("Content-Disposition", a.ContentDisposition)
	}
	for _, md := range a.Metadata {
		header.Set(localMetaPrefix+md.Key, md.Value)
	}
	return header
}

// resolveRange returns the slice of a size-byte object selected by d's
// range header, and the status to answer with.
func resolveRange(d *engine.Descriptor, size int64) (start, n int64, status int) {
	offset, length, ok := parseRangeHeader(d)
	if !ok {
		return 0, size, http.StatusOK
	}
	if offset >= size {
		return 0, 0, http.StatusRequestedRangeNotSatisfiable
	}
	if length < 0 || length > size-offset {
		length = size - offset
	}
	return offset, length, http.StatusPartialContent
}

func statusResponse(d *engine.Descriptor, status int) *engine.Response {
	return &engine.Response{StatusCode: status, Header: http.Header{}, URL: d.URL}
}
