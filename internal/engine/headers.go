package engine

import (
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/bleepstore/objio/internal/request"
)

// LastWriteTimeFormat is the layout handed to HandleObjectLastWriteTime.
const LastWriteTimeFormat = "2006-01-02 15:04:05Z"

// MetadataPrefixes are the backend-specific user-metadata prefixes removed
// from header names before they reach a handler.
var MetadataPrefixes = []string{"x-amz-meta-", "x-ms-meta-", "x-goog-meta-"}

// StripMetadataPrefix lower-cases name and removes a known metadata
// prefix.
func StripMetadataPrefix(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, p := range MetadataPrefixes {
		if strings.HasPrefix(name, p) && len(name) > len(p) {
			return name[len(p):]
		}
	}
	return name
}

// ConvertLastModified turns an HTTP date into LastWriteTimeFormat. Values
// that do not parse are returned unchanged.
func ConvertLastModified(value string) string {
	t, err := http.ParseTime(value)
	if err != nil {
		return value
	}
	return t.UTC().Format(LastWriteTimeFormat)
}

// deliverHeaders runs the header pipeline for a successful download:
// object size, last write time, then every header as metadata.
func deliverHeaders(h request.Handler, header http.Header) {
	if v := strings.TrimSpace(header.Get("Content-Length")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			h.HandleObjectSize(n)
		}
	}
	if v := strings.TrimSpace(header.Get("Last-Modified")); v != "" {
		h.HandleObjectLastWriteTime(ConvertLastModified(v))
	}

	names := make([]string, 0, len(header))
	for name := range header {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		key := StripMetadataPrefix(name)
		for _, v := range header[name] {
			h.HandleMetadata(key, strings.TrimSpace(v))
		}
	}
}

// deliverDownload hands a successful response to the request's handler.
// HEAD responses never produce HandleData.
func deliverDownload(h request.Handler, method string, resp *Response) {
	if h == nil {
		return
	}
	deliverHeaders(h, resp.Header)
	if method != http.MethodHead && len(resp.Body) > 0 {
		h.HandleData(resp.Body)
	}
}
