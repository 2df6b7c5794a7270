// Package storage implements the IOManager facade: a uniform, non-blocking
// read/write contract over S3-compatible, Azure Blob, Google Cloud
// Storage, plain HTTP, in-memory and local-directory object stores.
package storage

import (
	"github.com/bleepstore/objio/internal/engine"
	"github.com/bleepstore/objio/internal/request"
)

// Metadata is one user metadata entry attached to an upload. Keys are
// given without any backend prefix.
type Metadata struct {
	Key   string
	Value string
}

// IOManager reads and writes objects asynchronously. Every method returns
// a request immediately; results arrive through the handler or completion
// callback and the request's WaitForFinish. All methods must be safe for
// concurrent use.
type IOManager interface {
	// ReadObjectInfo fetches size, last write time and metadata without
	// the object body. HandleData is never called.
	ReadObjectInfo(objectName string, handler request.Handler) *request.Request

	// ReadObject fetches the object, or the byte range r of it when r is
	// not the whole-object range.
	ReadObject(objectName string, handler request.Handler, r request.IORange) *request.Request

	// WriteObject stores data (the concatenation of its segments) under
	// objectName. An empty contentType is detected from the payload.
	WriteObject(objectName, contentDispositionFilename, contentType string, metadata []Metadata, data [][]byte, done request.CompletionFunc) *request.Request

	// Stats reports the transfer engine counters.
	Stats() engine.Stats

	// Close stops the transfer engine. Outstanding requests finish as
	// cancelled.
	Close() error
}
