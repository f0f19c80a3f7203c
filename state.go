package csp

import "sync/atomic"

// channelLifecycle enumerates the lifecycle states of a Channel. The order
// matters only in that it is stable across releases; callers should use the
// exported IsRetired accessor rather than comparing the raw
// value.
type channelLifecycle uint32

const (
	lifecycleOpen channelLifecycle = iota
	lifecycleRetiringGraceful
	lifecycleRetired
)

func (s channelLifecycle) String() string {
	switch s {
	case lifecycleOpen:
		return "open"
	case lifecycleRetiringGraceful:
		return "retiring"
	case lifecycleRetired:
		return "retired"
	default:
		return "unknown"
	}
}

// lifecycleState wraps an atomic.Uint32 with CAS-guarded transitions, so the
// hot path (checking whether a channel still accepts new operations) never
// needs the channel's mutex.
type lifecycleState struct {
	v atomic.Uint32
}

func (s *lifecycleState) Load() channelLifecycle {
	return channelLifecycle(s.v.Load())
}

func (s *lifecycleState) Store(next channelLifecycle) {
	s.v.Store(uint32(next))
}

// TryTransition atomically moves the state from 'from' to 'to', returning
// whether it succeeded. It fails silently if the state has already moved on,
// which is always a benign race in this package (e.g. two goroutines both
// trying to move Open -> Retiring).
func (s *lifecycleState) TryTransition(from, to channelLifecycle) bool {
	return s.v.CompareAndSwap(uint32(from), uint32(to))
}

func (s *lifecycleState) IsOpen() bool {
	return s.Load() == lifecycleOpen
}

func (s *lifecycleState) IsRetired() bool {
	return s.Load() == lifecycleRetired
}
