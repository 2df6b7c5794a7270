package engine

import (
	"context"
	"net/http"

	"github.com/bleepstore/objio/internal/auth"
	"github.com/bleepstore/objio/internal/request"
)

// Descriptor is one network exchange scheduled by the engine. Once passed
// to Submit it belongs to the engine and must not be touched by the caller.
type Descriptor struct {
	Request *request.Request
	Method  string
	URL     string
	// Header is sent in order; it usually comes straight from a signer.
	Header []auth.Header
	// Sign, when set, replaces Header before every attempt, so each round
	// trip carries a fresh timestamp and signature. It runs off the
	// caller's goroutine and may block on credential lookups.
	Sign SignFunc
	// Body holds the upload payload as contiguous segments.
	Body [][]byte
	// Attempt is 1 for the first round trip and grows on every retry.
	Attempt int
}

// next returns a fresh descriptor for the following attempt. Header and
// body slices are shared; they are never mutated after submission.
func (d *Descriptor) next() *Descriptor {
	c := *d
	c.Attempt++
	return &c
}

// SignFunc produces the signed header list for one attempt. Returned
// *errors.Error values reach the caller unchanged.
type SignFunc func(ctx context.Context) ([]auth.Header, error)

// signed returns the descriptor to hand to the transport for this
// attempt.
func (d *Descriptor) signed(ctx context.Context) (*Descriptor, error) {
	if d.Sign == nil {
		return d, nil
	}
	headers, err := d.Sign(ctx)
	if err != nil {
		return nil, err
	}
	c := *d
	c.Header = headers
	return &c, nil
}

// BodySize returns the total payload length.
func (d *Descriptor) BodySize() int64 {
	var n int64
	for _, s := range d.Body {
		n += int64(len(s))
	}
	return n
}

// Response is the outcome of a round trip that reached the server.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	// URL is the address reported in error messages.
	URL string
}

// Transport performs a single round trip for a descriptor. Implementations
// must return promptly once ctx is cancelled. A non-nil error means the
// exchange never produced a response; *errors.Error values are reported
// to the caller unchanged, anything else is classified as a transport or
// timeout failure.
type Transport interface {
	RoundTrip(ctx context.Context, d *Descriptor) (*Response, error)
}

// TransportFunc adapts a function to the Transport interface.
type TransportFunc func(ctx context.Context, d *Descriptor) (*Response, error)

func (f TransportFunc) RoundTrip(ctx context.Context, d *Descriptor) (*Response, error) {
	return f(ctx, d)
}
