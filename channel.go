package csp

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// deadlineKindT distinguishes the three ways a single operation can bound
// how long it is willing to wait for a pairing.
type deadlineKindT int

const (
	deadlineNone deadlineKindT = iota
	deadlineImmediate
	deadlineAt
)

// OpOption configures a single ReadAsync/WriteAsync call.
type OpOption interface{ applyOp(*deadlineInfo) }

type opOptionFunc func(*deadlineInfo)

func (f opOptionFunc) applyOp(d *deadlineInfo) { f(d) }

// WithDeadline bounds an operation to complete by t, failing with
// ErrTimeout if no pairing has formed by then.
func WithDeadline(t time.Time) OpOption {
	return opOptionFunc(func(d *deadlineInfo) { *d = deadlineInfo{kind: deadlineAt, at: t} })
}

// WithTimeout is shorthand for WithDeadline(time.Now().Add(d)).
func WithTimeout(d time.Duration) OpOption {
	return opOptionFunc(func(di *deadlineInfo) { *di = deadlineInfo{kind: deadlineAt, at: time.Now().Add(d)} })
}

// WithImmediate requires the operation to pair right now, without ever
// being queued: if no counterpart (or buffer slot) is available at the
// instant it is submitted, it fails with ErrTimeout.
func WithImmediate() OpOption {
	return opOptionFunc(func(d *deadlineInfo) { *d = deadlineInfo{kind: deadlineImmediate} })
}

func resolveDeadline(opts []OpOption) deadlineInfo {
	var d deadlineInfo
	for _, o := range opts {
		o.applyOp(&d)
	}
	return d
}

// channelCore is the untyped matching engine shared by every Channel[T]. It
// is untyped so that the core queueing/matching/retirement logic is written
// once; type safety is restored at the Channel[T] / ReadFuture[T] /
// WriteFuture boundary.
type channelCore struct {
	name string

	mu         sync.Mutex
	capacity   int
	buf        []any
	readers    pendingQueue
	writers    pendingQueue
	seqCounter uint64
	lifecycle  lifecycleState
	retireFut  *Future // completes once retirement fully drains

	joinR       atomic.Int64
	joinW       atomic.Int64
	hadReadEnd  atomic.Bool
	hadWriteEnd atomic.Bool

	matched atomic.Uint64

	timers   *TimerService
	executor Executor
	logger   Logger
}

func newChannelCore(name string, o channelOptions) *channelCore {
	c := &channelCore{
		name:     name,
		capacity: o.capacity,
		readers:  newPendingQueue(o.readerLimit, o.overflow),
		writers:  newPendingQueue(o.writerLimit, o.overflow),
		timers:   o.timers,
		executor: o.executor,
		logger:   o.logger,
	}
	return c
}

func (c *channelCore) log(level LogLevel, msg string, fields map[string]any) {
	logAt(c.logger, level, msg, fields)
}

// ChannelStats is a point-in-time snapshot of a channel's internal queues,
// useful for diagnostics and tests.
type ChannelStats struct {
	Name            string
	Lifecycle       string
	BufferLen       int
	BufferCap       int
	PendingReaders  int
	PendingWriters  int
	MatchedCount    uint64
	ReadEndJoins    int64
	WriteEndJoins   int64
}

func (c *channelCore) stats() ChannelStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ChannelStats{
		Name:           c.name,
		Lifecycle:      c.lifecycle.Load().String(),
		BufferLen:      len(c.buf),
		BufferCap:      c.capacity,
		PendingReaders: c.readers.Len(),
		PendingWriters: c.writers.Len(),
		MatchedCount:   c.matched.Load(),
		ReadEndJoins:   c.joinR.Load(),
		WriteEndJoins:  c.joinW.Load(),
	}
}

func (c *channelCore) isRetired() bool { return c.lifecycle.Load() == lifecycleRetired }

// cancelTimerLocked cancels e's armed deadline timer, if any. Called with
// c.mu held, whenever e is removed from a queue by any path other than the
// timer itself firing.
func (c *channelCore) cancelTimerLocked(e *entry) {
	if e.hasTimer {
		c.timers.Cancel(e.timer)
		e.hasTimer = false
	}
}

// fillBufferFromWritersLocked admits queued writers into freed buffer
// capacity, in FIFO order, skipping any whose offer was already claimed by
// a concurrent commit on a sibling channel in the same select.
func (c *channelCore) fillBufferFromWritersLocked() {
	for c.capacity > 0 && len(c.buf) < c.capacity {
		w := c.writers.Peek()
		if w == nil {
			return
		}
		if w.off != nil && w.off.taken.Load() {
			c.writers.Remove(w)
			continue
		}
		ok, release := true, func() {}
		if w.off != nil {
			ok, release = w.off.probe()
			if !ok {
				return
			}
		}
		c.writers.Remove(w)
		c.cancelTimerLocked(w)
		if w.off != nil {
			w.off.commit()
			release()
		}
		c.buf = append(c.buf, w.value)
		c.matched.Add(1)
		w.future.Complete(nil)
	}
}

// tryMatchReadLocked attempts to satisfy e immediately: first against the
// buffer (FIFO order demands the oldest buffered value go out before a
// freshly queued writer ever gets a direct hand-off), and only once the
// buffer is empty against a queued writer directly — which is only
// possible with a zero-capacity rendezvous channel, since any nonzero
// buffer capacity keeps the buffer populated ahead of the writer queue via
// fillBufferFromWritersLocked. It returns whether a match was made; e.future
// has already been completed if so.
func (c *channelCore) tryMatchReadLocked(e *entry) bool {
	if e.off != nil && e.off.taken.Load() {
		return false
	}
	if len(c.buf) > 0 {
		ok, release := true, func() {}
		if e.off != nil {
			ok, release = e.off.probe()
			if !ok {
				return false
			}
		}
		val := c.buf[0]
		c.buf = c.buf[1:]
		if e.off != nil {
			e.off.commit()
			release()
		}
		c.matched.Add(1)
		e.future.Complete(val)
		c.fillBufferFromWritersLocked()
		return true
	}
	for {
		w := c.writers.Peek()
		if w == nil {
			break
		}
		if w.off != nil && w.off.taken.Load() {
			c.writers.Remove(w)
			continue
		}
		matched := pairAndCommit(e.off, w.off, func() {
			c.writers.Remove(w)
			c.cancelTimerLocked(w)
			val := w.value
			c.matched.Add(1)
			e.future.Complete(val)
			w.future.Complete(nil)
		})
		if matched {
			return true
		}
		if e.off != nil && e.off.taken.Load() {
			return false
		}
		if w.off != nil && w.off.taken.Load() {
			c.writers.Remove(w)
			continue
		}
		break
	}
	return false
}

// tryMatchWriteLocked is the mirror image of tryMatchReadLocked: it prefers
// a waiting reader, then falls back to appending to the buffer if there is
// room.
func (c *channelCore) tryMatchWriteLocked(e *entry) bool {
	if e.off != nil && e.off.taken.Load() {
		return false
	}
	for {
		r := c.readers.Peek()
		if r == nil {
			break
		}
		if r.off != nil && r.off.taken.Load() {
			c.readers.Remove(r)
			continue
		}
		matched := pairAndCommit(r.off, e.off, func() {
			c.readers.Remove(r)
			c.cancelTimerLocked(r)
			val := e.value
			c.matched.Add(1)
			r.future.Complete(val)
			e.future.Complete(nil)
		})
		if matched {
			return true
		}
		if e.off != nil && e.off.taken.Load() {
			return false
		}
		if r.off != nil && r.off.taken.Load() {
			c.readers.Remove(r)
			continue
		}
		break
	}
	if c.capacity > 0 && len(c.buf) < c.capacity {
		ok, release := true, func() {}
		if e.off != nil {
			ok, release = e.off.probe()
			if !ok {
				return false
			}
		}
		c.buf = append(c.buf, e.value)
		if e.off != nil {
			e.off.commit()
			release()
		}
		c.matched.Add(1)
		e.future.Complete(nil)
		return true
	}
	return false
}

func (c *channelCore) handleTimeout(e *entry, dir direction) {
	c.mu.Lock()
	if dir == dirRead {
		c.readers.Remove(e)
	} else {
		c.writers.Remove(e)
	}
	c.checkFullyRetiredLocked()
	c.mu.Unlock()
	if e.off != nil {
		e.off.withdraw()
	}
	e.future.CompleteError(timeoutError(c.name))
}

func (c *channelCore) failOverflowed(e *entry) {
	if e.hasTimer {
		c.timers.Cancel(e.timer)
	}
	if e.off != nil {
		e.off.withdraw()
	}
	c.log(LogLevelWarn, "pending operation evicted by overflow policy", map[string]any{"channel": c.name})
	e.future.CompleteError(overflowError(c.name))
}

// submitRead enqueues or immediately resolves a read entry.
func (c *channelCore) submitRead(e *entry) {
	c.mu.Lock()
	if e.off != nil && e.off.taken.Load() {
		c.mu.Unlock()
		e.future.CompleteError(canceledError(c.name, nil))
		return
	}
	if c.lifecycle.Load() == lifecycleRetired {
		c.mu.Unlock()
		e.future.CompleteError(retiredError(c.name))
		return
	}
	if c.tryMatchReadLocked(e) {
		c.checkFullyRetiredLocked()
		c.mu.Unlock()
		return
	}
	if e.deadline.kind == deadlineImmediate {
		c.mu.Unlock()
		e.future.CompleteError(timeoutError(c.name))
		return
	}
	if c.lifecycle.Load() != lifecycleOpen {
		c.mu.Unlock()
		e.future.CompleteError(retiredError(c.name))
		return
	}
	c.seqCounter++
	e.seq = c.seqCounter
	evicted, rejected := c.readers.Push(e)
	if rejected {
		c.mu.Unlock()
		e.future.CompleteError(overflowError(c.name))
		return
	}
	if e.deadline.kind == deadlineAt {
		e.hasTimer = true
		e.timer = c.timers.Schedule(e.deadline.at, c.executor, func() { c.handleTimeout(e, dirRead) })
	}
	c.mu.Unlock()
	if evicted != nil {
		c.failOverflowed(evicted)
	}
}

// submitWrite enqueues or immediately resolves a write entry.
func (c *channelCore) submitWrite(e *entry) {
	c.mu.Lock()
	if e.off != nil && e.off.taken.Load() {
		c.mu.Unlock()
		e.future.CompleteError(canceledError(c.name, nil))
		return
	}
	if c.lifecycle.Load() == lifecycleRetired {
		c.mu.Unlock()
		e.future.CompleteError(retiredError(c.name))
		return
	}
	if c.tryMatchWriteLocked(e) {
		c.checkFullyRetiredLocked()
		c.mu.Unlock()
		return
	}
	if e.deadline.kind == deadlineImmediate {
		c.mu.Unlock()
		e.future.CompleteError(timeoutError(c.name))
		return
	}
	if c.lifecycle.Load() != lifecycleOpen {
		c.mu.Unlock()
		e.future.CompleteError(retiredError(c.name))
		return
	}
	c.seqCounter++
	e.seq = c.seqCounter
	evicted, rejected := c.writers.Push(e)
	if rejected {
		c.mu.Unlock()
		e.future.CompleteError(overflowError(c.name))
		return
	}
	if e.deadline.kind == deadlineAt {
		e.hasTimer = true
		e.timer = c.timers.Schedule(e.deadline.at, c.executor, func() { c.handleTimeout(e, dirWrite) })
	}
	c.mu.Unlock()
	if evicted != nil {
		c.failOverflowed(evicted)
	}
}

// Channel is a typed CSP channel: a synchronous (or, with WithCapacity,
// bounded-buffer) handoff point between goroutines, with a matching engine
// that supports multi-channel Select via the two-phase offer protocol.
type Channel[T any] struct {
	core *channelCore
}

// NewChannel creates a standalone channel. Use a Registry instead when
// multiple independent producers/consumers need to look the same channel
// up by name.
func NewChannel[T any](name string, opts ...ChannelOption) *Channel[T] {
	o := resolveChannelOptions(opts)
	return &Channel[T]{core: newChannelCore(name, o)}
}

// Name returns the channel's name.
func (c *Channel[T]) Name() string { return c.core.name }

// Stats returns a snapshot of the channel's internal state.
func (c *Channel[T]) Stats() ChannelStats { return c.core.stats() }

// IsRetired reports whether the channel has fully drained and can no
// longer form any new pairing.
func (c *Channel[T]) IsRetired() bool { return c.core.isRetired() }

// ReadAsync queues a read for the next available value (or, if one is
// already available, resolves it immediately) and returns a future for the
// result. It never blocks the calling goroutine.
func (c *Channel[T]) ReadAsync(opts ...OpOption) *ReadFuture[T] {
	e := &entry{
		dir:      dirRead,
		future:   NewFuture(c.core.executor),
		deadline: resolveDeadline(opts),
	}
	c.core.submitRead(e)
	return &ReadFuture[T]{f: e.future}
}

// WriteAsync queues v for handoff (or, if a reader or buffer slot is
// already available, resolves it immediately) and returns a future for
// completion. It never blocks the calling goroutine.
func (c *Channel[T]) WriteAsync(v T, opts ...OpOption) *WriteFuture {
	e := &entry{
		dir:      dirWrite,
		value:    v,
		future:   NewFuture(c.core.executor),
		deadline: resolveDeadline(opts),
	}
	c.core.submitWrite(e)
	return &WriteFuture{f: e.future}
}

// Read is the blocking convenience form of ReadAsync.
func (c *Channel[T]) Read(ctx context.Context, opts ...OpOption) (T, error) {
	return c.ReadAsync(opts...).Await(ctx)
}

// Write is the blocking convenience form of WriteAsync.
func (c *Channel[T]) Write(ctx context.Context, v T, opts ...OpOption) error {
	return c.WriteAsync(v, opts...).Await(ctx)
}

// Retire begins graceful retirement: buffered values and already-queued
// operations still drain, but no new operation may newly queue (immediate
// matches are still honored). The returned future completes once the
// channel has fully drained and entered its terminal retired state.
func (c *Channel[T]) Retire() *Future {
	return c.core.retire(true)
}

// RetireNow immediately retires the channel: every pending operation fails
// with ErrRetired and any buffered values are discarded.
func (c *Channel[T]) RetireNow() {
	c.core.retire(false)
}
