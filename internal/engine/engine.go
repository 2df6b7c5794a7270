// Package engine runs object transfers on a single reactor goroutine. The
// reactor owns every queued and in-flight transfer, caps how many run at
// once, retries transient failures and delivers results to each request's
// handler.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	ioerrors "github.com/bleepstore/objio/internal/errors"
	"github.com/bleepstore/objio/internal/metrics"
	"github.com/bleepstore/objio/internal/request"
)

const (
	// DefaultConcurrencyCap is the number of transfers admitted at once.
	DefaultConcurrencyCap = 64
	// DefaultMaxAttempts bounds round trips per request, the first included.
	DefaultMaxAttempts = 4
)

// Options tunes an Engine. Zero values select the defaults.
type Options struct {
	ConcurrencyCap int
	MaxAttempts    int
	// TransferTimeout bounds a single round trip. Expiry counts as a
	// retryable timeout. Zero disables it.
	TransferTimeout time.Duration
	Logger          *slog.Logger
}

func (o *Options) applyDefaults() {
	if o.ConcurrencyCap <= 0 {
		o.ConcurrencyCap = DefaultConcurrencyCap
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Stats is a snapshot of the engine counters.
type Stats struct {
	Queued      int
	InFlight    int
	MaxInFlight int
	Attempts    int64
}

type transfer struct {
	desc    *Descriptor
	cancel  context.CancelFunc
	started time.Time
}

type result struct {
	t    *transfer
	resp *Response
	err  error
}

// Engine multiplexes requests onto a bounded set of concurrent round trips.
// Create one with New, call Start before submitting and Stop when done.
type Engine struct {
	transport Transport
	opts      Options
	logger    *slog.Logger

	// Shared with caller goroutines; guarded by mu.
	mu        sync.Mutex
	incoming  []*Descriptor
	cancelled []*request.Request
	started   bool
	stopped   bool

	wake     chan struct{}
	results  chan result
	quit     chan struct{}
	finished chan struct{}

	// Owned by the reactor goroutine.
	queued   []*transfer
	inFlight map[*request.Request]*transfer
	ctx      context.Context
	stop     context.CancelFunc

	queuedCount   atomic.Int64
	inFlightCount atomic.Int64
	maxInFlight   atomic.Int64
	attempts      atomic.Int64
}

// New returns an engine that performs round trips through t.
func New(t Transport, opts Options) *Engine {
	opts.applyDefaults()
	ctx, stop := context.WithCancel(context.Background())
	return &Engine{
		transport: t,
		opts:      opts,
		logger:    opts.Logger,
		wake:      make(chan struct{}, 1),
		results:   make(chan result),
		quit:      make(chan struct{}),
		finished:  make(chan struct{}),
		inFlight:  make(map[*request.Request]*transfer),
		ctx:       ctx,
		stop:      stop,
	}
}

// Start launches the reactor goroutine. Calling it again has no effect.
func (e *Engine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started || e.stopped {
		return
	}
	e.started = true
	go e.run()
}

// Stop shuts the reactor down. Transfers still queued or in flight are
// aborted and their requests finish as cancelled. Stop blocks until the
// reactor has exited.
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	e.stopped = true
	started := e.started
	e.mu.Unlock()

	if !started {
		e.stop()
		e.drainOnShutdown()
		close(e.finished)
		return
	}
	close(e.quit)
	<-e.finished
}

// Stats returns the current counters. MaxInFlight is the peak number of
// concurrently running transfers since the engine was created.
func (e *Engine) Stats() Stats {
	return Stats{
		Queued:      int(e.queuedCount.Load()),
		InFlight:    int(e.inFlightCount.Load()),
		MaxInFlight: int(e.maxInFlight.Load()),
		Attempts:    e.attempts.Load(),
	}
}

// Submit hands d to the engine and returns immediately. The request in d
// becomes cancellable through its Cancel method.
func (e *Engine) Submit(d *Descriptor) {
	r := d.Request
	if d.Attempt == 0 {
		d.Attempt = 1
	}
	r.SetCancelHook(e.requestCancel)

	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		err := ioerrors.New(ioerrors.CodeShutdown, "engine stopped: %s", r.ObjectName())
		r.Complete(err)
		r.Finish(err)
		return
	}
	e.incoming = append(e.incoming, d)
	e.mu.Unlock()
	e.signal()
}

// requestCancel is the cancel hook installed on every submitted request.
func (e *Engine) requestCancel(r *request.Request) {
	e.mu.Lock()
	e.cancelled = append(e.cancelled, r)
	e.mu.Unlock()
	e.signal()
}

func (e *Engine) signal() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

func (e *Engine) run() {
	defer close(e.finished)
	for {
		select {
		case <-e.wake:
			e.drain()
		case res := <-e.results:
			e.complete(res)
		case <-e.quit:
			e.stop()
			e.drainOnShutdown()
			return
		}
		e.admit()
	}
}

// drain moves new submissions into the queue and applies cancellations.
func (e *Engine) drain() {
	e.mu.Lock()
	incoming := e.incoming
	cancelled := e.cancelled
	e.incoming = nil
	e.cancelled = nil
	e.mu.Unlock()

	for _, d := range incoming {
		if d.Request.CancelRequested() {
			e.finishCancelled(d.Request)
			continue
		}
		e.queued = append(e.queued, &transfer{desc: d})
	}

	for _, r := range cancelled {
		if t, ok := e.inFlight[r]; ok {
			t.cancel()
			delete(e.inFlight, r)
			e.inFlightCount.Add(-1)
			e.logger.Debug("cancelled in-flight transfer", "object", r.ObjectName(), "attempt", t.desc.Attempt)
			e.finishCancelled(r)
			continue
		}
		for i, t := range e.queued {
			if t.desc.Request == r {
				e.queued = append(e.queued[:i], e.queued[i+1:]...)
				e.finishCancelled(r)
				break
			}
		}
	}
	e.publishGauges()
}

// admit starts queued transfers while slots are free.
func (e *Engine) admit() {
	toAdmit := min(e.opts.ConcurrencyCap-len(e.inFlight), len(e.queued))
	for toAdmit > 0 && len(e.queued) > 0 {
		t := e.queued[0]
		e.queued[0] = nil
		e.queued = e.queued[1:]

		r := t.desc.Request
		if r.CancelRequested() {
			e.finishCancelled(r)
			continue
		}
		r.MarkInFlight()

		var ctx context.Context
		if e.opts.TransferTimeout > 0 {
			ctx, t.cancel = context.WithTimeout(e.ctx, e.opts.TransferTimeout)
		} else {
			ctx, t.cancel = context.WithCancel(e.ctx)
		}
		t.started = time.Now()
		e.inFlight[r] = t
		toAdmit--

		n := e.inFlightCount.Add(1)
		for {
			peak := e.maxInFlight.Load()
			if n <= peak || e.maxInFlight.CompareAndSwap(peak, n) {
				break
			}
		}
		e.attempts.Add(1)
		metrics.TransferAttemptsTotal.WithLabelValues(t.desc.Method).Inc()
		if t.desc.Attempt > 1 {
			e.logger.Debug("retrying transfer", "object", r.ObjectName(), "attempt", t.desc.Attempt)
		}
		go e.roundTrip(ctx, t)
	}
	e.publishGauges()
}

func (e *Engine) roundTrip(ctx context.Context, t *transfer) {
	resp, err := e.safeRoundTrip(ctx, t.desc)
	metrics.TransferDuration.WithLabelValues(t.desc.Method).Observe(time.Since(t.started).Seconds())
	select {
	case e.results <- result{t: t, resp: resp, err: err}:
	case <-e.finished:
	}
}

// safeRoundTrip runs the transport, turning a panic into a transport error
// so it fails only the request that caused it.
func (e *Engine) safeRoundTrip(ctx context.Context, d *Descriptor) (resp *Response, err error) {
	defer func() {
		if p := recover(); p != nil {
			e.logger.Error("transport panicked", "object", d.Request.ObjectName(), "panic", p)
			resp, err = nil, ioerrors.Transport(fmt.Errorf("transport panic: %v", p))
		}
	}()
	attempt, err := d.signed(ctx)
	if err != nil {
		return nil, err
	}
	return e.transport.RoundTrip(ctx, attempt)
}

// complete handles a finished round trip.
func (e *Engine) complete(res result) {
	t := res.t
	r := t.desc.Request
	if cur, ok := e.inFlight[r]; !ok || cur != t {
		// Cancelled while the round trip was running.
		return
	}
	delete(e.inFlight, r)
	e.inFlightCount.Add(-1)
	t.cancel()

	kind, ioErr := classify(res.resp, res.err)
	if kind == outcomeRetry {
		if t.desc.Attempt < e.opts.MaxAttempts {
			metrics.TransferRetriesTotal.WithLabelValues(metrics.RetryReason(ioErr.Code)).Inc()
			e.queued = append([]*transfer{{desc: t.desc.next()}}, e.queued...)
			return
		}
		e.logger.Warn("transfer retries exhausted",
			"object", r.ObjectName(),
			"attempts", t.desc.Attempt,
			"code", ioErr.Code,
		)
		kind = outcomeFailure
	}

	if r.CancelRequested() {
		e.finishCancelled(r)
		return
	}

	if kind == outcomeSuccess {
		e.finishSuccess(t.desc, res.resp)
		return
	}
	e.logger.Debug("transfer failed", "object", r.ObjectName(), "code", ioErr.Code, "error", ioErr.Message)
	metrics.TransfersCompletedTotal.WithLabelValues(r.Kind().String(), "error").Inc()
	r.Complete(ioErr)
	r.Finish(ioErr)
}

func (e *Engine) finishSuccess(d *Descriptor, resp *Response) {
	r := d.Request
	switch r.Kind() {
	case request.Download:
		deliverDownload(r.Handler(), d.Method, resp)
		if d.Method != http.MethodHead {
			metrics.TransferBytesTotal.WithLabelValues("received").Add(float64(len(resp.Body)))
			metrics.TransferSize.WithLabelValues(d.Method).Observe(float64(len(resp.Body)))
		}
	case request.Upload:
		metrics.TransferBytesTotal.WithLabelValues("sent").Add(float64(d.BodySize()))
	}
	metrics.TransfersCompletedTotal.WithLabelValues(r.Kind().String(), "success").Inc()
	r.Complete(nil)
	r.Finish(nil)
}

// finishCancelled ends r without invoking any callback.
func (e *Engine) finishCancelled(r *request.Request) {
	metrics.TransfersCompletedTotal.WithLabelValues(r.Kind().String(), "cancelled").Inc()
	r.Finish(nil)
}

// drainOnShutdown cancels everything the engine still owns.
func (e *Engine) drainOnShutdown() {
	e.mu.Lock()
	incoming := e.incoming
	e.incoming = nil
	e.cancelled = nil
	e.mu.Unlock()

	for _, d := range incoming {
		e.finishCancelled(d.Request)
	}
	for _, t := range e.queued {
		e.finishCancelled(t.desc.Request)
	}
	e.queued = nil
	for r, t := range e.inFlight {
		t.cancel()
		e.finishCancelled(r)
	}
	clear(e.inFlight)
	e.inFlightCount.Store(0)
	e.publishGauges()
}

func (e *Engine) publishGauges() {
	e.queuedCount.Store(int64(len(e.queued)))
	metrics.TransfersQueued.Set(float64(len(e.queued)))
	metrics.TransfersInFlight.Set(float64(len(e.inFlight)))
}
