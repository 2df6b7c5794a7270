package request

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	ioerrors "github.com/bleepstore/objio/internal/errors"
)

func TestStateOnlyMovesForward(t *testing.T) {
	r := New("obj", nil)
	if r.State() != Pending {
		t.Fatalf("initial state = %v", r.State())
	}
	if !r.MarkInFlight() {
		t.Fatal("MarkInFlight from Pending failed")
	}
	if r.MarkInFlight() {
		t.Fatal("MarkInFlight from InFlight succeeded")
	}
	r.Finish(nil)
	if r.State() != Done {
		t.Fatalf("state = %v, want done", r.State())
	}
	if r.MarkInFlight() {
		t.Fatal("MarkInFlight from Done succeeded")
	}
}

func TestFinishFirstCallWins(t *testing.T) {
	r := New("obj", nil)
	r.Finish(ioerrors.HTTP(404, "u"))
	r.Finish(nil)
	if got := r.Code(); got != 404 {
		t.Errorf("Code() = %d, want 404", got)
	}
}

func TestWaitForFinishBlocksUntilDone(t *testing.T) {
	r := New("obj", nil)
	returned := make(chan error, 1)
	go func() { returned <- r.WaitForFinish() }()

	select {
	case <-returned:
		t.Fatal("WaitForFinish returned before Finish")
	case <-time.After(20 * time.Millisecond):
	}

	r.Finish(nil)
	select {
	case err := <-returned:
		if err != nil {
			t.Errorf("WaitForFinish = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("WaitForFinish did not return")
	}
}

func TestWaitHonoursContext(t *testing.T) {
	r := New("obj", nil)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := r.Wait(ctx); err != context.DeadlineExceeded {
		t.Errorf("Wait = %v, want deadline exceeded", err)
	}
}

func TestCancelIsIdempotent(t *testing.T) {
	r := New("obj", nil)
	var hooks atomic.Int32
	r.SetCancelHook(func(*Request) { hooks.Add(1) })

	r.Cancel()
	r.Cancel()
	r.Cancel()

	if !r.CancelRequested() {
		t.Error("CancelRequested() = false")
	}
	if got := hooks.Load(); got != 1 {
		t.Errorf("cancel hook called %d times, want 1", got)
	}
}

func TestCancelAfterDoneIsNoop(t *testing.T) {
	r := New("obj", nil)
	r.SetCancelHook(func(*Request) { t.Error("hook called after Done") })
	r.Finish(nil)
	r.Cancel()
	if r.CancelRequested() {
		t.Error("CancelRequested() = true after late cancel")
	}
}

func TestFailedNotifiesCallbacks(t *testing.T) {
	var completed int
	h := &HandlerFuncs{Done: func(_ *Request, err error) {
		completed++
		if ioerrors.CodeOf(err) != ioerrors.CodeConfig {
			t.Errorf("err = %v", err)
		}
	}}
	r := Failed("obj", Download, h, nil, ioerrors.Config("no credentials"))
	if completed != 1 {
		t.Errorf("Completed called %d times", completed)
	}
	if !r.IsDone() || r.Code() != ioerrors.CodeConfig {
		t.Errorf("state=%v code=%d", r.State(), r.Code())
	}

	var uploaded int
	u := Failed("obj", Upload, nil, func(*Request, error) { uploaded++ }, ioerrors.Config("x"))
	if uploaded != 1 || u.Kind() != Upload {
		t.Errorf("upload callback count = %d kind = %v", uploaded, u.Kind())
	}
}

func TestIORange(t *testing.T) {
	tests := []struct {
		r     IORange
		whole bool
		value string
	}{
		{IORange{}, true, "bytes=0-0"},
		{IORange{Start: 0, End: 9}, false, "bytes=0-9"},
		{IORange{Start: 100, End: 100}, true, "bytes=100-100"},
	}
	for _, tt := range tests {
		if got := tt.r.IsWhole(); got != tt.whole {
			t.Errorf("%+v IsWhole = %v", tt.r, got)
		}
		if got := tt.r.HeaderValue(); got != tt.value {
			t.Errorf("%+v HeaderValue = %q", tt.r, got)
		}
	}
}
