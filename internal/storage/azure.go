package storage

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bleepstore/objio/internal/auth"
	"github.com/bleepstore/objio/internal/config"
	"github.com/bleepstore/objio/internal/engine"
	ioerrors "github.com/bleepstore/objio/internal/errors"
	"github.com/bleepstore/objio/internal/request"
)

// AzureManager reads and writes block blobs in one container with Shared
// Key authentication.
//
// Key mapping:
//
//	Blobs:  {prefix}/{objectName}
//
// The account URL comes from the connection string or is built as
// {protocol}://{account}.blob.{endpointSuffix}.
type AzureManager struct {
	*manager

	Account   string
	Container string
	Prefix    string

	accountKey string
	baseURL    string // account URL + "/" + container + "/"
	now        func() time.Time
}

// NewAzureManager creates an AzureManager from cfg.
func NewAzureManager(cfg config.AzureConfig, opts engine.Options) (*AzureManager, error) {
	return newAzureManager(cfg, engine.NewHTTPTransport(opts.ConcurrencyCap), opts)
}

func newAzureManager(cfg config.AzureConfig, t engine.Transport, opts engine.Options) (*AzureManager, error) {
	conn, err := cfg.ResolveAzure()
	if err != nil {
		return nil, fmt.Errorf("resolving Azure account: %w", err)
	}
	return &AzureManager{
		manager:    newManager(config.Azure, t, opts),
		Account:    conn.AccountName,
		Container:  cfg.Container,
		Prefix:     strings.Trim(cfg.Prefix, "/"),
		accountKey: conn.AccountKey,
		baseURL:    conn.BlobBaseURL() + "/" + cfg.Container + "/",
		now:        time.Now,
	}, nil
}

func (m *AzureManager) signingContext() auth.AzureContext {
	return auth.AzureContext{
		Account:    m.Account,
		AccountKey: m.accountKey,
		Container:  m.Container,
		Date:       auth.AzureDate(m.now()),
	}
}

// signer signs the request once up front, so a bad account or key fails
// synchronously, and again on every attempt so x-ms-date stays current.
// extra headers are appended after the signed set.
func (m *AzureManager) signer(verb, blob string, contentLength int64, contentType string, headers, extra []auth.Header) (engine.SignFunc, bool) {
	sign := func() []auth.Header {
		signed := auth.SignAzure(verb, blob, contentLength, contentType, headers, m.signingContext())
		if len(signed) == 0 {
			return nil
		}
		return append(signed, extra...)
	}
	if sign() == nil {
		return nil, false
	}
	return func(ctx context.Context) ([]auth.Header, error) {
		signed := sign()
		if signed == nil {
			return nil, ioerrors.Config("Azure account, key or container is not configured")
		}
		return signed, nil
	}, true
}

func (m *AzureManager) read(objectName string, h request.Handler, method string, r request.IORange) *request.Request {
	blob := joinKey(m.Prefix, objectName)
	var headers []auth.Header
	if !r.IsWhole() {
		headers = append(headers, auth.Header{Name: "x-ms-range", Value: r.HeaderValue()})
	}
	sign, ok := m.signer(method, blob, 0, "", headers, nil)
	if !ok {
		return m.failDownload(objectName, h, ioerrors.Config("Azure account, key or container is not configured"))
	}
	return m.signedDownload(objectName, h, method, m.baseURL+auth.EscapePath(blob), sign)
}

// ReadObjectInfo fetches blob properties and metadata.
func (m *AzureManager) ReadObjectInfo(objectName string, h request.Handler) *request.Request {
	return m.read(objectName, h, http.MethodHead, request.IORange{})
}

// ReadObject fetches the blob, ranged through x-ms-range when r selects
// part of it.
func (m *AzureManager) ReadObject(objectName string, h request.Handler, r request.IORange) *request.Request {
	return m.read(objectName, h, http.MethodGet, r)
}

// WriteObject uploads a block blob in a single Put Blob call.
func (m *AzureManager) WriteObject(objectName, contentDispositionFilename, contentType string, metadata []Metadata, data [][]byte, done request.CompletionFunc) *request.Request {
	blob := joinKey(m.Prefix, objectName)
	contentType = detectContentType(contentType, data)
	size := totalSize(data)

	headers := []auth.Header{
		{Name: "x-ms-blob-type", Value: "BlockBlob"},
	}
	if cd := contentDisposition(contentDispositionFilename); cd != "" {
		headers = append(headers, auth.Header{Name: "x-ms-blob-content-disposition", Value: cd})
	}
	for _, md := range metadata {
		headers = append(headers, auth.Header{Name: "x-ms-meta-" + strings.ToLower(md.Key), Value: md.Value})
	}

	extra := []auth.Header{
		{Name: "content-type", Value: contentType},
		{Name: "content-length", Value: strconv.FormatInt(size, 10)},
	}
	sign, ok := m.signer(http.MethodPut, blob, size, contentType, headers, extra)
	if !ok {
		return m.failUpload(objectName, done, ioerrors.Config("Azure account, key or container is not configured"))
	}
	return m.signedUpload(objectName, done, m.baseURL+auth.EscapePath(blob), sign, data)
}

var _ IOManager = (*AzureManager)(nil)
