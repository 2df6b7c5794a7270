package engine

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	ioerrors "github.com/bleepstore/objio/internal/errors"
)

func TestClassify(t *testing.T) {
	resp := func(code int) *Response {
		return &Response{StatusCode: code, Header: http.Header{}, URL: "https://h/o"}
	}
	tests := []struct {
		name     string
		resp     *Response
		err      error
		want     outcome
		wantCode int
	}{
		{"200", resp(200), nil, outcomeSuccess, 0},
		{"206", resp(206), nil, outcomeSuccess, 0},
		{"226", resp(226), nil, outcomeSuccess, 0},
		{"409", resp(409), nil, outcomeRetry, 409},
		{"500", resp(500), nil, outcomeRetry, 500},
		{"503", resp(503), nil, outcomeRetry, 503},
		{"404", resp(404), nil, outcomeFailure, 404},
		{"502", resp(502), nil, outcomeFailure, 502},
		{"deadline", nil, fmt.Errorf("get: %w", context.DeadlineExceeded), outcomeRetry, ioerrors.CodeTimeout},
		{"dial", nil, stderrors.New("dial tcp: connection refused"), outcomeFailure, ioerrors.CodeTransport},
		{"typed config", nil, ioerrors.Config("bad bucket"), outcomeFailure, ioerrors.CodeConfig},
		{"typed 503", nil, ioerrors.HTTP(503, "u"), outcomeRetry, 503},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := classify(tt.resp, tt.err)
			if got != tt.want {
				t.Errorf("outcome = %v, want %v", got, tt.want)
			}
			code := 0
			if err != nil {
				code = err.Code
			}
			if code != tt.wantCode {
				t.Errorf("code = %d, want %d", code, tt.wantCode)
			}
		})
	}
}

func TestClassifyMessage(t *testing.T) {
	_, err := classify(&Response{StatusCode: 404, URL: "https://bucket.s3.eu-west-1.amazonaws.com/p/o"}, nil)
	want := "http error: 404 -> https://bucket.s3.eu-west-1.amazonaws.com/p/o"
	if err == nil || err.Message != want {
		t.Errorf("message = %v, want %q", err, want)
	}
}
