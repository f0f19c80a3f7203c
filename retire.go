package csp

// checkFullyRetiredLocked promotes a gracefully-retiring channel to fully
// retired once its queues and buffer have drained. Called with c.mu held,
// after any operation that might have emptied one of them.
func (c *channelCore) checkFullyRetiredLocked() {
	if c.lifecycle.Load() == lifecycleRetiringGraceful &&
		c.readers.Len() == 0 && c.writers.Len() == 0 && len(c.buf) == 0 {
		if c.lifecycle.TryTransition(lifecycleRetiringGraceful, lifecycleRetired) {
			c.log(LogLevelInfo, "channel fully retired", map[string]any{"channel": c.name})
			if c.retireFut != nil {
				c.retireFut.Complete(nil)
			}
		}
	}
}

// retire transitions the channel towards retirement. If graceful, already
// buffered values and already-queued operations still drain normally, but
// no new operation may be newly queued (immediate matches are still
// honored); once everything drains, the channel becomes fully retired. If
// not graceful, every pending operation fails immediately with ErrRetired
// and the buffer is discarded.
func (c *channelCore) retire(graceful bool) *Future {
	c.mu.Lock()
	cur := c.lifecycle.Load()
	if cur == lifecycleRetired {
		c.mu.Unlock()
		f := NewFuture(c.executor)
		f.Complete(nil)
		return f
	}
	if !graceful {
		readers := c.readers.DrainAll()
		writers := c.writers.DrainAll()
		c.buf = nil
		c.lifecycle.Store(lifecycleRetired)
		var fut *Future
		if c.retireFut != nil {
			fut = c.retireFut
		} else {
			fut = NewFuture(c.executor)
		}
		c.mu.Unlock()
		for _, e := range readers {
			c.cancelAndFailRetired(e)
		}
		for _, e := range writers {
			c.cancelAndFailRetired(e)
		}
		fut.Complete(nil)
		return fut
	}
	if cur == lifecycleOpen {
		c.lifecycle.TryTransition(lifecycleOpen, lifecycleRetiringGraceful)
	}
	if c.retireFut == nil {
		c.retireFut = NewFuture(c.executor)
	}
	fut := c.retireFut
	c.checkFullyRetiredLocked()
	c.mu.Unlock()
	return fut
}

func (c *channelCore) cancelAndFailRetired(e *entry) {
	if e.hasTimer {
		c.timers.Cancel(e.timer)
	}
	if e.off != nil {
		e.off.withdraw()
	}
	e.future.CompleteError(retiredError(c.name))
}
