package csp

import (
	"container/heap"
	"sync"
	"time"
)

var defaultTimerService struct {
	once sync.Once
	svc  *TimerService
}

// DefaultTimerService returns a process-wide lazily-started TimerService
// used wherever a channel is not explicitly given one.
func DefaultTimerService() *TimerService {
	defaultTimerService.once.Do(func() {
		defaultTimerService.svc = NewTimerService()
	})
	return defaultTimerService.svc
}

// TimerHandle identifies a scheduled callback for cancellation.
type TimerHandle uint64

type timerEntry struct {
	deadline  time.Time
	handle    TimerHandle
	cb        func()
	canceled  bool
	heapIndex int
}

type timerHeap []*timerEntry

func (h timerHeap) Len() int { return len(h) }
func (h timerHeap) Less(i, j int) bool { return h[i].deadline.Before(h[j].deadline) }
func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].heapIndex = i
	h[j].heapIndex = j
}
func (h *timerHeap) Push(x any) {
	e := x.(*timerEntry)
	e.heapIndex = len(*h)
	*h = append(*h, e)
}
func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.heapIndex = -1
	*h = old[:n-1]
	return e
}

// TimerService schedules one-shot deadline callbacks. It tolerates firing
// up to Slack early, which lets it coalesce a burst of nearly-simultaneous
// deadlines (typical of many channel operations racing the same
// wall-clock budget) onto a single wakeup instead of rearming a fine-grained
// OS timer for each one.
type TimerService struct {
	mu     sync.Mutex
	clock  Clock
	slack  time.Duration
	heap   timerHeap
	byID   map[TimerHandle]*timerEntry
	nextID TimerHandle
	wake   chan struct{}
	closed bool
	logger Logger
}

// TimerOption configures a TimerService at construction.
type TimerOption interface{ applyTimer(*timerOptions) }

type timerOptions struct {
	clock  Clock
	slack  time.Duration
	logger Logger
}

type timerOptionFunc func(*timerOptions)

func (f timerOptionFunc) applyTimer(o *timerOptions) { f(o) }

// WithClock overrides the Clock used to interpret deadlines.
func WithClock(c Clock) TimerOption {
	return timerOptionFunc(func(o *timerOptions) { o.clock = c })
}

// WithSlack sets the tolerance within which the service may fire a timer
// early, in exchange for coalescing nearby deadlines onto one wakeup.
func WithSlack(d time.Duration) TimerOption {
	return timerOptionFunc(func(o *timerOptions) { o.slack = d })
}

// WithTimerLogger overrides the logger used by the timer service.
func WithTimerLogger(l Logger) TimerOption {
	return timerOptionFunc(func(o *timerOptions) { o.logger = l })
}

func resolveTimerOptions(opts []TimerOption) timerOptions {
	o := timerOptions{clock: RealClock, slack: time.Millisecond}
	for _, opt := range opts {
		opt.applyTimer(&o)
	}
	return o
}

// NewTimerService starts a TimerService and its background goroutine.
func NewTimerService(opts ...TimerOption) *TimerService {
	o := resolveTimerOptions(opts)
	t := &TimerService{
		clock:  o.clock,
		slack:  o.slack,
		byID:   make(map[TimerHandle]*timerEntry),
		wake:   make(chan struct{}, 1),
		logger: o.logger,
	}
	heap.Init(&t.heap)
	go t.run()
	return t
}

// Schedule arranges for cb to run, via the caller-supplied Executor, no
// earlier than deadline (minus up to Slack). It returns a handle usable
// with Cancel.
func (t *TimerService) Schedule(deadline time.Time, exec Executor, cb func()) TimerHandle {
	t.mu.Lock()
	t.nextID++
	id := t.nextID
	e := &timerEntry{deadline: deadline, handle: id, cb: func() { exec.Schedule(cb) }}
	t.byID[id] = e
	heap.Push(&t.heap, e)
	t.mu.Unlock()
	t.poke()
	return id
}

// Cancel withdraws a previously scheduled callback. It returns false if the
// handle is unknown or already fired.
func (t *TimerService) Cancel(h TimerHandle) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.byID[h]
	if !ok {
		return false
	}
	delete(t.byID, h)
	e.canceled = true
	if e.heapIndex >= 0 {
		heap.Remove(&t.heap, e.heapIndex)
	}
	return true
}

// Close stops the background goroutine. Pending callbacks are dropped
// without running.
func (t *TimerService) Close() {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	t.poke()
}

func (t *TimerService) poke() {
	select {
	case t.wake <- struct{}{}:
	default:
	}
}

func (t *TimerService) run() {
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()
	for {
		t.mu.Lock()
		if t.closed {
			t.mu.Unlock()
			return
		}
		now := t.clock.Now()
		var due []*timerEntry
		for t.heap.Len() > 0 && !t.heap[0].deadline.After(now.Add(t.slack)) {
			e := heap.Pop(&t.heap).(*timerEntry)
			if e.canceled {
				continue
			}
			delete(t.byID, e.handle)
			due = append(due, e)
		}
		var wait time.Duration
		if t.heap.Len() > 0 {
			wait = t.heap[0].deadline.Add(-t.slack).Sub(now)
			if wait < 0 {
				wait = 0
			}
		} else {
			wait = time.Hour
		}
		t.mu.Unlock()

		for _, e := range due {
			e.cb()
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(wait)

		select {
		case <-timer.C:
		case <-t.wake:
		}
	}
}
