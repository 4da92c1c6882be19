package service

import (
	"context"
	"sync"
)

// runner owns one background goroutine. A runner starts at most once; Stop
// before Start leaves it permanently stopped and a later Start is a no-op.
type runner struct {
	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
	stopped bool
}

func newRunner() *runner {
	return &runner{done: make(chan struct{})}
}

// begin derives the worker context. ok is false when the runner was already
// started or stopped.
func (r *runner) begin(parent context.Context) (ctx context.Context, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started || r.stopped {
		return nil, false
	}
	r.started = true
	ctx, r.cancel = context.WithCancel(parent)
	return ctx, true
}

// run launches fn; done closes when it returns. Call only after a
// successful begin.
func (r *runner) run(ctx context.Context, fn func(context.Context)) {
	go func() {
		defer close(r.done)
		fn(ctx)
	}()
}

// stop cancels the worker and waits for it. Safe to call repeatedly.
func (r *runner) stop() {
	r.mu.Lock()
	if !r.stopped {
		r.stopped = true
		if r.started {
			r.cancel()
		} else {
			close(r.done)
		}
	}
	r.mu.Unlock()
	<-r.done
}
