package storage

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/bleepstore/objio/internal/auth"
	"github.com/bleepstore/objio/internal/config"
	"github.com/bleepstore/objio/internal/engine"
	ioerrors "github.com/bleepstore/objio/internal/errors"
	"github.com/bleepstore/objio/internal/logging"
	"github.com/bleepstore/objio/internal/request"
)

// manager holds what every adapter shares: the running engine and the
// helpers that turn descriptors into requests.
type manager struct {
	engine *engine.Engine
	logger *slog.Logger
	kind   config.ConnectionType
}

func newManager(kind config.ConnectionType, t engine.Transport, opts engine.Options) *manager {
	opts.Logger = logging.Component(opts.Logger, string(kind))
	e := engine.New(t, opts)
	e.Start()
	return &manager{engine: e, logger: opts.Logger, kind: kind}
}

// EngineOptions maps the engine section of cfg onto engine.Options.
func EngineOptions(cfg *config.Config, logger *slog.Logger) engine.Options {
	return engine.Options{
		ConcurrencyCap:  cfg.Engine.ConcurrencyCap,
		MaxAttempts:     cfg.Engine.MaxAttempts,
		TransferTimeout: cfg.Engine.TransferTimeout,
		Logger:          logger,
	}
}

func (m *manager) download(objectName string, h request.Handler, method, url string, headers []auth.Header) *request.Request {
	r := request.New(objectName, h)
	m.engine.Submit(&engine.Descriptor{Request: r, Method: method, URL: url, Header: headers})
	return r
}

func (m *manager) upload(objectName string, done request.CompletionFunc, url string, headers []auth.Header, body [][]byte) *request.Request {
	r := request.NewUpload(objectName, done)
	m.engine.Submit(&engine.Descriptor{Request: r, Method: http.MethodPut, URL: url, Header: headers, Body: body})
	return r
}

// signedDownload submits a read whose headers are produced by sign on
// every attempt.
func (m *manager) signedDownload(objectName string, h request.Handler, method, url string, sign engine.SignFunc) *request.Request {
	r := request.New(objectName, h)
	m.engine.Submit(&engine.Descriptor{Request: r, Method: method, URL: url, Sign: sign})
	return r
}

func (m *manager) signedUpload(objectName string, done request.CompletionFunc, url string, sign engine.SignFunc, body [][]byte) *request.Request {
	r := request.NewUpload(objectName, done)
	m.engine.Submit(&engine.Descriptor{Request: r, Method: http.MethodPut, URL: url, Sign: sign, Body: body})
	return r
}

func (m *manager) failDownload(objectName string, h request.Handler, err *ioerrors.Error) *request.Request {
	m.logger.Warn("request rejected", "object", objectName, "code", err.Code, "error", err.Message)
	return request.Failed(objectName, request.Download, h, nil, err)
}

func (m *manager) failUpload(objectName string, done request.CompletionFunc, err *ioerrors.Error) *request.Request {
	m.logger.Warn("request rejected", "object", objectName, "code", err.Code, "error", err.Message)
	return request.Failed(objectName, request.Upload, nil, done, err)
}

func (m *manager) Stats() engine.Stats { return m.engine.Stats() }

func (m *manager) Close() error {
	m.engine.Stop()
	return nil
}

// rangeHeaders returns the "range" header selecting r, or nil when r is
// the whole object.
func rangeHeaders(r request.IORange) []auth.Header {
	if r.IsWhole() {
		return nil
	}
	return []auth.Header{{Name: "range", Value: r.HeaderValue()}}
}

// joinKey prefixes name with prefix, collapsing duplicate slashes at the
// seam.
func joinKey(prefix, name string) string {
	prefix = strings.Trim(prefix, "/")
	name = strings.TrimLeft(name, "/")
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}

// contentDisposition renders the attachment header for filename, or ""
// when no filename was given.
func contentDisposition(filename string) string {
	if filename == "" {
		return ""
	}
	return fmt.Sprintf("attachment; filename=%q", filename)
}

// detectContentType returns contentType, or the type sniffed from the
// first payload segment when contentType is empty.
func detectContentType(contentType string, data [][]byte) string {
	if contentType != "" {
		return contentType
	}
	for _, seg := range data {
		if len(seg) > 0 {
			return mimetype.Detect(seg).String()
		}
	}
	return "application/octet-stream"
}

func totalSize(data [][]byte) int64 {
	var n int64
	for _, seg := range data {
		n += int64(len(seg))
	}
	return n
}
