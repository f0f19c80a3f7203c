package csp

import "sync/atomic"

var offerIDCounter atomic.Uint64

// offer implements the two-phase commit protocol shared by the pending
// entries participating in a single Select call. Exactly one offer across
// a logical choice may ever be committed; every multi-step pairing attempt
// must probe (and, on success, commit or withdraw) both sides' offers
// under a globally consistent lock order to avoid deadlock between two
// concurrent choosers racing each other across the same pair of channels.
type offer struct {
	id    uint64
	mu    chan struct{} // 1-buffered: acts as a non-reentrant mutex usable with a trylock
	taken atomic.Bool
	// onCommit, if set, records which candidate among a Select's requests
	// won, so the driving goroutine can report the right index/value.
	onCommit func()
}

func newOffer() *offer {
	o := &offer{id: offerIDCounter.Add(1), mu: make(chan struct{}, 1)}
	o.mu <- struct{}{}
	return o
}

// probe attempts to acquire the offer's arbitration lock without blocking.
// It returns false immediately if the offer was already committed, or if
// another in-flight pairing attempt currently holds the lock (the caller
// should treat that as "try the other candidate" rather than wait, since
// waiting here is what the global lock order exists to avoid).
func (o *offer) probe() (ok bool, release func()) {
	if o.taken.Load() {
		return false, nil
	}
	select {
	case <-o.mu:
	default:
		return false, nil
	}
	if o.taken.Load() {
		o.mu <- struct{}{}
		return false, nil
	}
	return true, func() { o.mu <- struct{}{} }
}

// commit marks the offer as settled. It must only be called while the
// caller holds the lock returned by probe, and the lock must still be
// released (commit does not release it) so that any other goroutine
// spinning on probe observes taken before it can reacquire the lock.
func (o *offer) commit() {
	o.taken.Store(true)
	if o.onCommit != nil {
		o.onCommit()
	}
}

// withdraw marks the offer as settled without it having won anything: it is
// the two-phase offer protocol's cancel path, used when an entry times out,
// is evicted by an overflow policy, or loses a multi-channel select to a
// sibling candidate. It goes through the same arbitration lock as commit so
// it can never race a concurrent committer on another channel: withdraw
// reports false if the offer was already committed elsewhere, in which case
// the caller's attempted cancellation is moot.
func (o *offer) withdraw() bool {
	if o == nil {
		return true
	}
	ok, release := o.probe()
	if !ok {
		return false
	}
	o.taken.Store(true)
	release()
	return true
}

// orderOffers returns a and b in ascending offer-id order, treating nil (an
// operation that is not part of a multi-channel choice, and therefore has
// nothing to arbitrate) as needing no lock at all. Both a and b may be nil.
func orderOffers(a, b *offer) (first, second *offer) {
	switch {
	case a == nil:
		return b, nil
	case b == nil:
		return a, nil
	case a.id < b.id:
		return a, b
	default:
		return b, a
	}
}

// pairAndCommit probes up to two offers in global lock order, and if both
// succeed (or are absent), invokes pairFn to perform the actual value
// transfer/bookkeeping, then commits both offers before releasing their
// locks in reverse acquisition order. It returns whether the pairing was
// committed.
//
// This is the only place this package acquires two offer locks at once;
// every caller goes through it, which is what makes the global ascending-id
// order actually global.
func pairAndCommit(a, b *offer, pairFn func()) bool {
	first, second := orderOffers(a, b)

	okFirst, releaseFirst := true, func() {}
	if first != nil {
		okFirst, releaseFirst = first.probe()
	}
	if !okFirst {
		return false
	}

	okSecond, releaseSecond := true, func() {}
	if second != nil {
		okSecond, releaseSecond = second.probe()
	}
	if !okSecond {
		releaseFirst()
		return false
	}

	pairFn()
	if a != nil {
		a.commit()
	}
	if b != nil {
		b.commit()
	}
	releaseSecond()
	releaseFirst()
	return true
}
