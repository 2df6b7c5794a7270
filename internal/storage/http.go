package storage

import (
	"net/http"
	"strings"

	"github.com/bleepstore/objio/internal/auth"
	"github.com/bleepstore/objio/internal/config"
	"github.com/bleepstore/objio/internal/engine"
	ioerrors "github.com/bleepstore/objio/internal/errors"
	"github.com/bleepstore/objio/internal/request"
)

// HTTPManager reads objects from a plain HTTP(S) location. Object URLs
// are {base}/{objectName}?{query}, where base and query come from the
// configured URL split at '?'. Writing is not supported.
type HTTPManager struct {
	*manager

	base   string
	suffix string
}

// NewHTTPManager creates an HTTPManager for the URL in cfg.
func NewHTTPManager(cfg config.HTTPConfig, opts engine.Options) *HTTPManager {
	return newHTTPManager(cfg, engine.NewHTTPTransport(opts.ConcurrencyCap), opts)
}

func newHTTPManager(cfg config.HTTPConfig, t engine.Transport, opts engine.Options) *HTTPManager {
	base, query, _ := strings.Cut(cfg.URL, "?")
	if base != "" && !strings.HasSuffix(base, "/") {
		base += "/"
	}
	suffix := ""
	if query != "" {
		suffix = "?" + query
	}
	return &HTTPManager{
		manager: newManager(config.HTTP, t, opts),
		base:    base,
		suffix:  suffix,
	}
}

func (m *HTTPManager) objectURL(objectName string) string {
	return m.base + auth.URIEncode(strings.TrimLeft(objectName, "/"), false) + m.suffix
}

func (m *HTTPManager) ReadObjectInfo(objectName string, h request.Handler) *request.Request {
	return m.download(objectName, h, http.MethodHead, m.objectURL(objectName), nil)
}

func (m *HTTPManager) ReadObject(objectName string, h request.Handler, r request.IORange) *request.Request {
	return m.download(objectName, h, http.MethodGet, m.objectURL(objectName), rangeHeaders(r))
}

// WriteObject always fails with a configuration error.
func (m *HTTPManager) WriteObject(objectName, _, _ string, _ []Metadata, _ [][]byte, done request.CompletionFunc) *request.Request {
	return m.failUpload(objectName, done, ioerrors.Config("The http IO backend does not support writing data"))
}

var _ IOManager = (*HTTPManager)(nil)
