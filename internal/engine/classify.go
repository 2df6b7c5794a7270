package engine

import (
	"context"
	stderrors "errors"
	"net"

	ioerrors "github.com/bleepstore/objio/internal/errors"
)

type outcome int

const (
	outcomeSuccess outcome = iota
	outcomeRetry
	outcomeFailure
)

func (o outcome) String() string {
	switch o {
	case outcomeSuccess:
		return "success"
	case outcomeRetry:
		return "retry"
	}
	return "failure"
}

// classify maps the result of one round trip onto success, retry or
// terminal failure. The returned error is what the caller sees if the
// request finishes with this result.
func classify(resp *Response, err error) (outcome, *ioerrors.Error) {
	if err != nil {
		var e *ioerrors.Error
		if stderrors.As(err, &e) {
			if e.Code == ioerrors.CodeTimeout || ioerrors.IsRetryableStatus(e.Code) {
				return outcomeRetry, e
			}
			return outcomeFailure, e
		}
		if isTimeout(err) {
			return outcomeRetry, ioerrors.Timeout(err)
		}
		return outcomeFailure, ioerrors.Transport(err)
	}

	switch {
	case ioerrors.IsSuccessStatus(resp.StatusCode):
		return outcomeSuccess, nil
	case ioerrors.IsRetryableStatus(resp.StatusCode):
		return outcomeRetry, ioerrors.HTTP(resp.StatusCode, resp.URL)
	default:
		return outcomeFailure, ioerrors.HTTP(resp.StatusCode, resp.URL)
	}
}

func isTimeout(err error) bool {
	if stderrors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return stderrors.As(err, &ne) && ne.Timeout()
}
