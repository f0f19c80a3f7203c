// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package csp implements the core of a Communicating Sequential Processes
// runtime: synchronous, typed, bounded-buffer channels that support
// externally-coordinated multi-way choice (a select/ALT over a mixed set of
// reads and writes).
//
// Processes communicate exclusively by exchanging values on [Channel]
// instances obtained from [NewChannel] or a [Registry]. A single-channel
// operation ([Channel.ReadAsync], [Channel.WriteAsync]) returns a future
// immediately; [Select] lets one goroutine queue itself on several channels
// at once and commit to exactly one of them.
//
// # Layering
//
// The package is built bottom-up:
//
//   - [Future] is a one-shot result cell with at-most-one completion.
//   - [Executor] schedules callbacks off the commit path, breaking lock
//     cycles and bounding stack growth.
//   - [TimerService] fires a callback at most once (never, if canceled), no
//     earlier than its deadline less a configurable slack, and coalesces
//     nearby deadlines.
//   - The two-phase offer (unexported type offer) lets one choosing agent
//     be queued on many channels yet commit to exactly one pairing.
//   - [Channel] owns the matching engine: pending reader/writer queues, a
//     bounded buffer, overflow policy, and retirement.
//   - [ReadEnd] / [WriteEnd] are reference-counted views over a channel
//     that drive auto-retirement.
//   - [Select] drives the multi-channel offer protocol with a priority
//     policy and guaranteed cancellation of losing candidates.
//
// None of the mutations above ever run user callbacks while holding a
// channel or offer lock; completions and [Future.OnComplete] callbacks are
// always dispatched through an [Executor].
package csp
