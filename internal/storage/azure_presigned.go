package storage

import (
	"fmt"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"

	"github.com/bleepstore/objio/internal/auth"
	"github.com/bleepstore/objio/internal/config"
	"github.com/bleepstore/objio/internal/engine"
	"github.com/bleepstore/objio/internal/request"
)

// AzurePresignedManager reads and writes blobs under a container or
// directory URL that carries a SAS token. No request signing happens; the
// token travels in every object URL's query string.
type AzurePresignedManager struct {
	*manager

	base azblob.URLParts
}

// NewAzurePresignedManager creates an AzurePresignedManager for the SAS
// URL in cfg.
func NewAzurePresignedManager(cfg config.AzurePresignedConfig, opts engine.Options) (*AzurePresignedManager, error) {
	return newAzurePresignedManager(cfg, engine.NewHTTPTransport(opts.ConcurrencyCap), opts)
}

func newAzurePresignedManager(cfg config.AzurePresignedConfig, t engine.Transport, opts engine.Options) (*AzurePresignedManager, error) {
	parts, err := azblob.ParseURL(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing presigned URL: %w", err)
	}
	if parts.ContainerName == "" {
		return nil, fmt.Errorf("parsing presigned URL: no container in %q", parts.Host)
	}
	m := &AzurePresignedManager{
		manager: newManager(config.AzurePresigned, t, opts),
		base:    parts,
	}
	if parts.SAS.Signature() == "" {
		m.logger.Warn("presigned URL carries no SAS signature", "host", parts.Host, "container", parts.ContainerName)
	}
	return m, nil
}

// objectURL returns the SAS-bearing URL of objectName.
func (m *AzurePresignedManager) objectURL(objectName string) string {
	parts := m.base
	parts.BlobName = strings.TrimLeft(path.Join(m.base.BlobName, objectName), "/")
	return parts.String()
}

func (m *AzurePresignedManager) read(objectName string, h request.Handler, method string, r request.IORange) *request.Request {
	headers := []auth.Header{{Name: "x-ms-version", Value: auth.AzureAPIVersion}}
	if !r.IsWhole() {
		headers = append(headers, auth.Header{Name: "x-ms-range", Value: r.HeaderValue()})
	}
	return m.download(objectName, h, method, m.objectURL(objectName), headers)
}

func (m *AzurePresignedManager) ReadObjectInfo(objectName string, h request.Handler) *request.Request {
	return m.read(objectName, h, http.MethodHead, request.IORange{})
}

func (m *AzurePresignedManager) ReadObject(objectName string, h request.Handler, r request.IORange) *request.Request {
	return m.read(objectName, h, http.MethodGet, r)
}

func (m *AzurePresignedManager) WriteObject(objectName, contentDispositionFilename, contentType string, metadata []Metadata, data [][]byte, done request.CompletionFunc) *request.Request {
	headers := []auth.Header{
		{Name: "x-ms-version", Value: auth.AzureAPIVersion},
		{Name: "x-ms-blob-type", Value: "BlockBlob"},
		{Name: "content-type", Value: detectContentType(contentType, data)},
		{Name: "content-length", Value: strconv.FormatInt(totalSize(data), 10)},
	}
	if cd := contentDisposition(contentDispositionFilename); cd != "" {
		headers = append(headers, auth.Header{Name: "x-ms-blob-content-disposition", Value: cd})
	}
	for _, md := range metadata {
		headers = append(headers, auth.Header{Name: "x-ms-meta-" + strings.ToLower(md.Key), Value: md.Value})
	}
	return m.upload(objectName, done, m.objectURL(objectName), headers, data)
}

var _ IOManager = (*AzurePresignedManager)(nil)
