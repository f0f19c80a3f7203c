package csp

import (
	"context"
	"sync"
)

// Outcome is the settled payload of a Future: exactly one of Value/Err is
// meaningful, distinguished by Err == nil.
type Outcome struct {
	Value any
	Err   error
}

// Future is a one-shot result cell: it starts pending and transitions to
// settled at most once, with either a value or an error. It is the building
// block both read/write operations and Select use to report a result
// without blocking the caller that created it.
//
// Future deliberately holds its value as 'any' rather than being generic:
// the matching engine that completes futures works across heterogeneously
// typed channels, and typed access is layered on top by ReadFuture /
// WriteFuture. This mirrors treating settled results as a dynamically typed
// payload rather than forcing every internal queue to be generic.
type Future struct {
	mu       sync.Mutex
	settled  bool
	value    any
	err      error
	waiters  []chan struct{}
	onDone   []func(Outcome)
	executor Executor
}

// NewFuture returns a pending Future. Callbacks registered via OnComplete
// are dispatched through exec; if exec is nil, DefaultExecutor() is used.
func NewFuture(exec Executor) *Future {
	if exec == nil {
		exec = DefaultExecutor()
	}
	return &Future{executor: exec}
}

// Complete settles the future with a value. It returns false if the future
// was already settled.
func (f *Future) Complete(v any) bool {
	return f.complete(Outcome{Value: v})
}

// CompleteError settles the future with an error.
func (f *Future) CompleteError(err error) bool {
	return f.complete(Outcome{Err: err})
}

// Cancel settles the future with ErrCanceled, unless it is already settled.
func (f *Future) Cancel() bool {
	return f.CompleteError(ErrCanceled)
}

func (f *Future) complete(o Outcome) bool {
	f.mu.Lock()
	if f.settled {
		f.mu.Unlock()
		return false
	}
	f.settled = true
	f.value = o.Value
	f.err = o.Err
	waiters := f.waiters
	f.waiters = nil
	callbacks := f.onDone
	f.onDone = nil
	exec := f.executor
	f.mu.Unlock()

	for _, w := range waiters {
		close(w)
	}
	for _, cb := range callbacks {
		cb := cb
		exec.Schedule(func() { cb(o) })
	}
	return true
}

// Result returns a snapshot of the future's state: the outcome (zero value
// if still pending) and whether it has settled. It never blocks.
func (f *Future) Result() (Outcome, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.settled {
		return Outcome{}, false
	}
	return Outcome{Value: f.value, Err: f.err}, true
}

// OnComplete registers cb to run, via the future's executor, once the
// future settles. If it is already settled, cb is scheduled immediately.
// cb is never invoked while the future's own lock is held. Whether it runs
// on the caller's goroutine depends on the executor: FIFOExecutor never
// does that, InlineExecutor always does.
func (f *Future) OnComplete(cb func(Outcome)) {
	f.mu.Lock()
	if f.settled {
		o := Outcome{Value: f.value, Err: f.err}
		exec := f.executor
		f.mu.Unlock()
		exec.Schedule(func() { cb(o) })
		return
	}
	f.onDone = append(f.onDone, cb)
	f.mu.Unlock()
}

// Await blocks the calling goroutine until the future settles or ctx is
// done, whichever comes first. A ctx cancellation does not retract any
// pending channel operation backing this future; it only stops waiting for
// it on this goroutine.
func (f *Future) Await(ctx context.Context) (any, error) {
	f.mu.Lock()
	if f.settled {
		v, err := f.value, f.err
		f.mu.Unlock()
		return v, err
	}
	ch := make(chan struct{})
	f.waiters = append(f.waiters, ch)
	f.mu.Unlock()

	select {
	case <-ch:
		o, _ := f.Result()
		return o.Value, o.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ToChannel returns a channel that receives exactly one Outcome once the
// future settles, then is closed. Useful for folding a Future into a
// select statement over native Go channels.
func (f *Future) ToChannel() <-chan Outcome {
	out := make(chan Outcome, 1)
	f.OnComplete(func(o Outcome) {
		out <- o
		close(out)
	})
	return out
}

// ReadFuture is the typed facade returned by Channel.ReadAsync.
type ReadFuture[T any] struct {
	f *Future
}

// Await waits for the read to settle, returning the received value or an
// error (one of the ErrorKind sentinels in this package, or a context
// error).
func (r *ReadFuture[T]) Await(ctx context.Context) (T, error) {
	v, err := r.f.Await(ctx)
	var zero T
	if err != nil {
		return zero, err
	}
	if v == nil {
		return zero, nil
	}
	return v.(T), nil
}

// OnComplete registers a typed callback, dispatched via the channel's
// executor once the read settles.
func (r *ReadFuture[T]) OnComplete(cb func(T, error)) {
	r.f.OnComplete(func(o Outcome) {
		var zero T
		if o.Err != nil {
			cb(zero, o.Err)
			return
		}
		if o.Value == nil {
			cb(zero, nil)
			return
		}
		cb(o.Value.(T), nil)
	})
}

// Underlying exposes the untyped Future backing this read, for composing
// with Select or other Future-based APIs.
func (r *ReadFuture[T]) Underlying() *Future { return r.f }

// WriteFuture is the typed facade returned by Channel.WriteAsync.
type WriteFuture struct {
	f *Future
}

// Await waits for the write to settle, returning nil on success.
func (w *WriteFuture) Await(ctx context.Context) error {
	_, err := w.f.Await(ctx)
	return err
}

// OnComplete registers a callback, dispatched via the channel's executor
// once the write settles.
func (w *WriteFuture) OnComplete(cb func(error)) {
	w.f.OnComplete(func(o Outcome) { cb(o.Err) })
}

// Underlying exposes the untyped Future backing this write.
func (w *WriteFuture) Underlying() *Future { return w.f }
