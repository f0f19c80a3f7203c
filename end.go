package csp

import (
	"context"
	"sync/atomic"
)

// Lock-free helpers: join counts and "ever had an end of
// this kind" flags used to drive auto-retirement. A channel used directly
// (never turned into a ReadEnd/WriteEnd) never auto-retires this way.
//
// Releasing the last end of one direction retires that side immediately:
// the last read-end going away means no reader will ever arrive, so every
// currently queued writer is failed with Retired; symmetrically, the last
// write-end going away fails every currently queued reader. This fires
// independent of whether the opposite direction still has live ends. Once
// both directions have had at least one end created and both have dropped
// to zero, the channel transitions to fully Retired.
func (c *channelCore) noteEndCreated(dir direction) {
	if dir == dirRead {
		c.hadReadEnd.Store(true)
		c.joinR.Add(1)
	} else {
		c.hadWriteEnd.Store(true)
		c.joinW.Add(1)
	}
}

func (c *channelCore) releaseEnd(dir direction) {
	var remaining int64
	if dir == dirRead {
		remaining = c.joinR.Add(-1)
	} else {
		remaining = c.joinW.Add(-1)
	}
	if remaining < 0 {
		panic("csp: end released more times than it was created")
	}
	if remaining == 0 {
		if dir == dirRead {
			c.failQueuedOnReadSideClosed()
		} else {
			c.failQueuedOnWriteSideClosed()
		}
	}
	if c.hadReadEnd.Load() && c.hadWriteEnd.Load() && c.joinR.Load() == 0 && c.joinW.Load() == 0 {
		c.retire(true)
	}
}

// failQueuedOnReadSideClosed fails every writer currently queued with
// Retired: the read side has just fully released, so no reader will ever
// arrive to pair with them. It does not otherwise change the channel's
// lifecycle; the write side may still be open.
func (c *channelCore) failQueuedOnReadSideClosed() {
	c.mu.Lock()
	writers := c.writers.DrainAll()
	c.mu.Unlock()
	for _, w := range writers {
		c.cancelAndFailRetired(w)
	}
}

// failQueuedOnWriteSideClosed is the symmetric counterpart for the write
// side releasing its last end: every currently queued reader is failed
// with Retired, since no writer will ever arrive to supply a value.
func (c *channelCore) failQueuedOnWriteSideClosed() {
	c.mu.Lock()
	readers := c.readers.DrainAll()
	c.mu.Unlock()
	for _, r := range readers {
		c.cancelAndFailRetired(r)
	}
}

// ReadEnd is a reference-counted, read-only view of a Channel. Once every
// ReadEnd and every WriteEnd ever taken out on a channel has been released,
// the channel auto-retires gracefully.
type ReadEnd[T any] struct {
	ch       *Channel[T]
	released atomic.Bool
}

// AsReadOnly returns a new ReadEnd over c. Each call increments the
// channel's live read-end count; call Release when done with it.
func (c *Channel[T]) AsReadOnly() *ReadEnd[T] {
	c.core.noteEndCreated(dirRead)
	return &ReadEnd[T]{ch: c}
}

// Read is the blocking convenience form of ReadAsync.
func (e *ReadEnd[T]) Read(ctx context.Context, opts ...OpOption) (T, error) {
	return e.ch.Read(ctx, opts...)
}

// ReadAsync queues a read through the underlying channel.
func (e *ReadEnd[T]) ReadAsync(opts ...OpOption) *ReadFuture[T] {
	return e.ch.ReadAsync(opts...)
}

// Name returns the underlying channel's name.
func (e *ReadEnd[T]) Name() string { return e.ch.Name() }

// Release decrements the channel's live read-end count. It is idempotent:
// calling it more than once on the same ReadEnd has no additional effect.
func (e *ReadEnd[T]) Release() {
	if e.released.CompareAndSwap(false, true) {
		e.ch.core.releaseEnd(dirRead)
	}
}

// WriteEnd is a reference-counted, write-only view of a Channel. Once every
// ReadEnd and every WriteEnd ever taken out on a channel has been released,
// the channel auto-retires gracefully.
type WriteEnd[T any] struct {
	ch       *Channel[T]
	released atomic.Bool
}

// AsWriteOnly returns a new WriteEnd over c. Each call increments the
// channel's live write-end count; call Release when done with it.
func (c *Channel[T]) AsWriteOnly() *WriteEnd[T] {
	c.core.noteEndCreated(dirWrite)
	return &WriteEnd[T]{ch: c}
}

// Write is the blocking convenience form of WriteAsync.
func (e *WriteEnd[T]) Write(ctx context.Context, v T, opts ...OpOption) error {
	return e.ch.Write(ctx, v, opts...)
}

// WriteAsync queues v for handoff through the underlying channel.
func (e *WriteEnd[T]) WriteAsync(v T, opts ...OpOption) *WriteFuture {
	return e.ch.WriteAsync(v, opts...)
}

// Name returns the underlying channel's name.
func (e *WriteEnd[T]) Name() string { return e.ch.Name() }

// Release decrements the channel's live write-end count. It is idempotent.
func (e *WriteEnd[T]) Release() {
	if e.released.CompareAndSwap(false, true) {
		e.ch.core.releaseEnd(dirWrite)
	}
}
