// Package request defines the caller-visible handle for one object
// operation and the callbacks through which its results are delivered.
package request

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	ioerrors "github.com/bleepstore/objio/internal/errors"
)

// State is the lifecycle position of a Request. It only moves forward.
type State int32

const (
	Pending State = iota
	InFlight
	Done
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case InFlight:
		return "in-flight"
	case Done:
		return "done"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Kind selects how the engine completes a transfer.
type Kind int

const (
	// Download covers GET and HEAD; results flow into a Handler.
	Download Kind = iota
	// Upload covers PUT; the outcome flows into a CompletionFunc.
	Upload
)

func (k Kind) String() string {
	if k == Upload {
		return "upload"
	}
	return "download"
}

// Handler receives the results of a download. On success the calls happen
// in this order: HandleObjectSize, HandleObjectLastWriteTime,
// HandleMetadata (zero or more), HandleData, each at most once except
// HandleMetadata. Completed is always called last, exactly once, unless
// the request was cancelled.
type Handler interface {
	HandleObjectSize(size int64)
	HandleObjectLastWriteTime(lastWriteTime string)
	HandleMetadata(key, value string)
	HandleData(data []byte)
	Completed(req *Request, err error)
}

// CompletionFunc receives the outcome of an upload.
type CompletionFunc func(req *Request, err error)

// Request is the handle for one GET, HEAD or PUT against one object.
// It is safe for concurrent use.
type Request struct {
	objectName string
	kind       Kind

	state           atomic.Int32
	cancelRequested atomic.Bool

	handler    Handler
	completion CompletionFunc

	mu         sync.Mutex
	err        error
	cancelHook func(*Request)

	done chan struct{}
}

// New returns a Pending download request for objectName.
func New(objectName string, h Handler) *Request {
	return &Request{
		objectName: objectName,
		kind:       Download,
		handler:    h,
		done:       make(chan struct{}),
	}
}

// NewUpload returns a Pending upload request for objectName.
func NewUpload(objectName string, fn CompletionFunc) *Request {
	return &Request{
		objectName: objectName,
		kind:       Upload,
		completion: fn,
		done:       make(chan struct{}),
	}
}

// Failed returns a request that is already Done with err. The handler or
// completion callback, when present, has already been told.
func Failed(objectName string, kind Kind, h Handler, fn CompletionFunc, err error) *Request {
	var r *Request
	if kind == Upload {
		r = NewUpload(objectName, fn)
	} else {
		r = New(objectName, h)
	}
	r.Complete(err)
	r.Finish(err)
	return r
}

func (r *Request) ObjectName() string { return r.objectName }
func (r *Request) Kind() Kind          { return r.kind }
func (r *Request) Handler() Handler    { return r.handler }
func (r *Request) State() State        { return State(r.state.Load()) }
func (r *Request) IsDone() bool        { return r.State() == Done }

// CancelRequested reports whether Cancel has been called.
func (r *Request) CancelRequested() bool { return r.cancelRequested.Load() }

// SetCancelHook installs the function Cancel uses to notify the owner of
// the transfer. It is set once by the engine on submission.
func (r *Request) SetCancelHook(fn func(*Request)) {
	r.mu.Lock()
	r.cancelHook = fn
	r.mu.Unlock()
}

// Cancel asks for the request to be abandoned. It never blocks, may be
// called any number of times and is a no-op once the request is Done.
func (r *Request) Cancel() {
	if r.IsDone() {
		return
	}
	if r.cancelRequested.Swap(true) {
		return
	}
	r.mu.Lock()
	hook := r.cancelHook
	r.mu.Unlock()
	if hook != nil {
		hook(r)
	}
}

// MarkInFlight moves a Pending request to InFlight. It reports false if
// the request was not Pending.
func (r *Request) MarkInFlight() bool {
	return r.state.CompareAndSwap(int32(Pending), int32(InFlight))
}

// Complete invokes the completion callback for the request's kind. It
// does not change the request state.
func (r *Request) Complete(err error) {
	switch r.kind {
	case Upload:
		if r.completion != nil {
			r.completion(r, err)
		}
	default:
		if r.handler != nil {
			r.handler.Completed(r, err)
		}
	}
}

// Finish stores err, moves the request to Done and wakes every waiter.
// Only the first call has any effect.
func (r *Request) Finish(err error) {
	r.mu.Lock()
	if r.State() == Done {
		r.mu.Unlock()
		return
	}
	r.err = err
	r.state.Store(int32(Done))
	r.cancelHook = nil
	r.mu.Unlock()
	close(r.done)
}

// Done returns a channel that is closed when the request finishes.
func (r *Request) Done() <-chan struct{} { return r.done }

// WaitForFinish blocks until the request is Done and returns its error.
// A nil result means success or cancellation.
func (r *Request) WaitForFinish() error {
	<-r.done
	return r.Err()
}

// Wait is WaitForFinish bounded by ctx.
func (r *Request) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		return r.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err returns the stored error, or nil while the request is not Done.
func (r *Request) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Code returns the error code of a finished request; 0 means success.
func (r *Request) Code() int {
	return ioerrors.CodeOf(r.Err())
}
