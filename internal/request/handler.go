package request

import "fmt"

// IORange is a byte window for partial reads. Both ends are inclusive, as
// in an HTTP Range header. The zero value means the whole object.
type IORange struct {
	Start int64
	End   int64
}

// IsWhole reports whether the range selects the entire object. Only
// ranges with Start != End are sent on the wire.
func (r IORange) IsWhole() bool {
	return r.Start == r.End
}

// HeaderValue returns the range in "bytes=start-end" form.
func (r IORange) HeaderValue() string {
	return fmt.Sprintf("bytes=%d-%d", r.Start, r.End)
}

// HandlerFuncs adapts a set of optional functions to the Handler
// interface. Nil fields are skipped.
type HandlerFuncs struct {
	ObjectSize    func(size int64)
	LastWriteTime func(lastWriteTime string)
	Metadata      func(key, value string)
	Data          func(data []byte)
	Done          func(req *Request, err error)
}

func (h *HandlerFuncs) HandleObjectSize(size int64) {
	if h.ObjectSize != nil {
		h.ObjectSize(size)
	}
}

func (h *HandlerFuncs) HandleObjectLastWriteTime(lastWriteTime string) {
	if h.LastWriteTime != nil {
		h.LastWriteTime(lastWriteTime)
	}
}

func (h *HandlerFuncs) HandleMetadata(key, value string) {
	if h.Metadata != nil {
		h.Metadata(key, value)
	}
}

func (h *HandlerFuncs) HandleData(data []byte) {
	if h.Data != nil {
		h.Data(data)
	}
}

func (h *HandlerFuncs) Completed(req *Request, err error) {
	if h.Done != nil {
		h.Done(req, err)
	}
}

var _ Handler = (*HandlerFuncs)(nil)
