package delivery

import (
	"context"
	"log/slog"

	"github.com/karunahq/CarePing/internal/models"
)

// bridgeRequest is one unit of work marshalled onto the async worker.
type bridgeRequest struct {
	ctx  context.Context
	fn   func(context.Context) error
	done chan error // buffered so the worker never blocks on a timed-out caller
}

// asyncBridge is the single dedicated worker that executes all asynchronous
// channel calls. Synchronous callers submit work and block on the result
// with a timeout, so they never need to know a channel is async.
type asyncBridge struct {
	requests chan bridgeRequest
	stop     chan struct{}
}

func newAsyncBridge(queueSize int) *asyncBridge {
	return &asyncBridge{
		requests: make(chan bridgeRequest, queueSize),
		stop:     make(chan struct{}),
	}
}

// run is the worker loop. Exactly one goroutine runs it.
func (b *asyncBridge) run() {
	for {
		select {
		case <-b.stop:
			return
		case req := <-b.requests:
			select {
			case <-req.ctx.Done():
				// Caller already gave up; skip the work.
				req.done <- req.ctx.Err()
			default:
				req.done <- req.fn(req.ctx)
			}
		}
	}
}

// submit runs fn on the worker and waits for its result, bounded by ctx.
// A timeout is reported as models.ErrSendTimeout; the worker keeps running.
func (b *asyncBridge) submit(ctx context.Context, fn func(context.Context) error) error {
	req := bridgeRequest{ctx: ctx, fn: fn, done: make(chan error, 1)}

	select {
	case b.requests <- req:
	case <-ctx.Done():
		slog.Warn("Async bridge queue full or stalled, rejecting call")
		return models.ErrSendTimeout
	case <-b.stop:
		return models.ErrServiceStopped
	}

	select {
	case err := <-req.done:
		return err
	case <-ctx.Done():
		return models.ErrSendTimeout
	}
}

func (b *asyncBridge) shutdown() {
	close(b.stop)
}
