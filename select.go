package csp

import (
	"context"
	"errors"
	"math/rand"
	"sort"
	"sync"
)

// Priority determines, among several candidates that could be submitted to
// a Select call, which is tried first when more than one turns out to be
// immediately satisfiable. Because at most one candidate can ever win (the
// shared offer they race on admits exactly one commit), submission order is
// the only lever a Select has over which one wins a simultaneous tie.
type Priority int

const (
	// PriorityFirst always submits candidates in the order they were
	// passed to Select. It is the default.
	PriorityFirst Priority = iota
	// PriorityAny declares that the caller has no preference among ready
	// candidates; it is submitted in the given order, identically to
	// PriorityFirst, but documents the caller's intent.
	PriorityAny
	// PriorityRandom shuffles submission order on every call, so that
	// repeated ties are not resolved the same way every time.
	PriorityRandom
	// PriorityFair consults a Selector's per-channel win counts and
	// submits the channels with the fewest recorded wins first, so that a channel
	// which has already won many ties yields to one that has won fewer.
	PriorityFair
)

// Request describes one candidate operation offered to a Select call: a
// read from, or a write to, a specific channel. Build one with ReadReq or
// WriteReq.
type Request struct {
	dir   direction
	core  *channelCore
	value any
	name  string
}

// ReadReq builds a read candidate for Select.
func ReadReq[T any](c *Channel[T]) Request {
	return Request{dir: dirRead, core: c.core, name: c.Name()}
}

// WriteReq builds a write candidate for Select, offering v.
func WriteReq[T any](c *Channel[T], v T) Request {
	return Request{dir: dirWrite, core: c.core, value: v, name: c.Name()}
}

// SelectResult reports which candidate a Select call committed to. Value is
// meaningful only for a read candidate (Requests[Index] was built with
// ReadReq); recover it with OutcomeValue[T].
type SelectResult struct {
	Index int
	Value any
}

// OutcomeValue type-asserts a SelectResult's Value. It panics if V does not
// match the channel's element type, exactly like a failed type assertion
// anywhere else in Go; callers that built the Select from ReadReq[V] calls
// do not need to guard against that.
func OutcomeValue[V any](r SelectResult) V {
	if r.Value == nil {
		var zero V
		return zero
	}
	return r.Value.(V)
}

// fairnessRebalanceThreshold bounds how large a Selector's usage counters
// are allowed to grow before they are rebalanced by subtracting the
// minimum observed count from every entry. This keeps long-lived Selectors
// from accumulating unbounded counters while preserving relative fairness.
const fairnessRebalanceThreshold = 1 << 20

// Selector drives repeated multi-channel choices and, for PriorityFair,
// remembers which channels have recently won so it can favor the others.
// The zero value is not usable; construct one with NewSelector. A Selector
// is safe for concurrent use.
type Selector struct {
	mu    sync.Mutex
	usage map[*channelCore]uint64
}

// NewSelector returns a Selector with empty fairness history.
func NewSelector() *Selector {
	return &Selector{usage: make(map[*channelCore]uint64)}
}

func (s *Selector) recordWin(core *channelCore) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usage[core]++
	if s.usage[core] > fairnessRebalanceThreshold {
		min := s.usage[core]
		for _, v := range s.usage {
			if v < min {
				min = v
			}
		}
		if min > 0 {
			for k, v := range s.usage {
				s.usage[k] = v - min
			}
		}
	}
}

func (s *Selector) order(requests []Request, p Priority) []int {
	idx := make([]int, len(requests))
	for i := range idx {
		idx[i] = i
	}
	switch p {
	case PriorityRandom:
		rand.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
	case PriorityFair:
		s.mu.Lock()
		usage := make([]uint64, len(requests))
		for i, r := range requests {
			usage[i] = s.usage[r.core]
		}
		s.mu.Unlock()
		sort.SliceStable(idx, func(i, j int) bool { return usage[idx[i]] < usage[idx[j]] })
	}
	return idx
}

type candidate struct {
	req Request
	e   *entry
}

func (c candidate) submit() {
	if c.req.dir == dirRead {
		c.req.core.submitRead(c.e)
	} else {
		c.req.core.submitWrite(c.e)
	}
}

// withdraw pulls a candidate entry out of its channel's pending queue (if
// still there), cancels any armed timer, withdraws the shared offer (a
// no-op if it was already committed elsewhere), and settles its future
// with ErrCanceled if nothing else has settled it yet.
func (c candidate) withdraw() {
	core := c.req.core
	core.mu.Lock()
	if c.req.dir == dirRead {
		core.readers.Remove(c.e)
	} else {
		core.writers.Remove(c.e)
	}
	core.cancelTimerLocked(c.e)
	core.checkFullyRetiredLocked()
	core.mu.Unlock()
	c.e.off.withdraw()
	c.e.future.CompleteError(canceledError(core.name, nil))
}

// Select queues requests across potentially many channels at once and
// blocks until exactly one of them pairs, or ctx is done. On success it
// reports which request won and, for a read, the value received. Every
// candidate that did not win is withdrawn before Select returns. If ctx's
// deadline passes first, the error is a timeout *Error that matches both
// ErrTimeout and context.DeadlineExceeded; if ctx is canceled first, it is
// ctx.Err(); if every candidate failed for another reason (for example,
// every channel is retired), it is the last of those failures.
//
// Select is the synchronous, native-Go-select-shaped entry point; the
// underlying per-channel ReadAsync/WriteAsync remain non-blocking and are
// what Select itself is built from.
func (s *Selector) Select(ctx context.Context, requests []Request, opts ...SelectOption) (SelectResult, error) {
	if len(requests) == 0 {
		return SelectResult{}, invalidArgumentError("select requires at least one request")
	}
	for _, r := range requests {
		if r.core == nil {
			return SelectResult{}, invalidArgumentError("select request has a nil channel")
		}
	}
	o := resolveSelectOptions(opts)
	order := s.order(requests, o.priority)

	var dl deadlineInfo
	if t, ok := ctx.Deadline(); ok {
		dl = deadlineInfo{kind: deadlineAt, at: t}
	}

	cands := make([]candidate, len(requests))
	off := newOffer()
	for _, idx := range order {
		req := requests[idx]
		e := &entry{dir: req.dir, value: req.value, future: NewFuture(DefaultExecutor()), off: off, deadline: dl}
		cands[idx] = candidate{req: req, e: e}
	}

	var (
		mu       sync.Mutex
		winner   = -1
		winValue any
		lastErr  error
		settled  int
		once     sync.Once
	)
	done := make(chan struct{})

	for i := range cands {
		i := i
		cands[i].e.future.OnComplete(func(outcome Outcome) {
			mu.Lock()
			settled++
			won := false
			if outcome.Err == nil && winner == -1 {
				winner = i
				winValue = outcome.Value
				won = true
			} else if outcome.Err != nil {
				lastErr = outcome.Err
			}
			allSettled := settled == len(cands)
			mu.Unlock()

			if won {
				s.recordWin(cands[i].req.core)
				for j, c := range cands {
					if j != i {
						c.withdraw()
					}
				}
				once.Do(func() { close(done) })
			} else if allSettled {
				once.Do(func() { close(done) })
			}
		})
	}

	for _, idx := range order {
		cands[idx].submit()
	}

	select {
	case <-done:
	case <-ctx.Done():
		for _, c := range cands {
			c.withdraw()
		}
		<-done
	}

	if winner == -1 {
		if _, hasDeadline := ctx.Deadline(); hasDeadline &&
			(errors.Is(lastErr, ErrTimeout) || errors.Is(ctx.Err(), context.DeadlineExceeded)) {
			return SelectResult{}, &Error{Kind: ErrorKindTimeout, Message: "select deadline exceeded", Cause: context.DeadlineExceeded}
		}
		if err := ctx.Err(); err != nil {
			return SelectResult{}, err
		}
		return SelectResult{}, lastErr
	}
	return SelectResult{Index: winner, Value: winValue}, nil
}

// Select is the stateless convenience form of Selector.Select: it creates a
// fresh Selector with no fairness history, so PriorityFair degenerates to
// submission order. Callers that want real fairness across repeated calls
// should keep their own *Selector.
func Select(ctx context.Context, requests []Request, opts ...SelectOption) (SelectResult, error) {
	return NewSelector().Select(ctx, requests, opts...)
}

// ReadAny races a read across several channels of the same type and
// returns the value and winning index.
func ReadAny[T any](ctx context.Context, chans ...*Channel[T]) (T, int, error) {
	reqs := make([]Request, len(chans))
	for i, c := range chans {
		reqs[i] = ReadReq(c)
	}
	res, err := Select(ctx, reqs)
	if err != nil {
		var zero T
		return zero, -1, err
	}
	return OutcomeValue[T](res), res.Index, nil
}

// WriteAny races the same value across several channels of the same type
// and returns the winning index.
func WriteAny[T any](ctx context.Context, value T, chans ...*Channel[T]) (int, error) {
	reqs := make([]Request, len(chans))
	for i, c := range chans {
		reqs[i] = WriteReq(c, value)
	}
	res, err := Select(ctx, reqs)
	if err != nil {
		return -1, err
	}
	return res.Index, nil
}
