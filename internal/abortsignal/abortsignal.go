// Package abortsignal implements the composable cancellation token
// described in spec §4.5. It is a thin wrapper over context.Context: every
// Execute/Complete/Run call in this module threads context.Context as the
// cancellation carrier already, so AbortSignal adds naming and a Clear
// operation for test reuse rather than a parallel cancellation mechanism.
package abortsignal

import (
	"context"
	"sync"
	"time"
)

// Signal is a cancellation token. A child Signal inherits its parent's
// already-aborted state at creation time (spec §4.5: "child signals inherit
// the parent's aborted state on creation"). mu guards ctx/cancel so Clear
// can safely rearm a Signal that other goroutines are concurrently reading
// via Context/Done/Aborted.
type Signal struct {
	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a root signal with no parent.
func New() *Signal {
	ctx, cancel := context.WithCancel(context.Background())
	return &Signal{ctx: ctx, cancel: cancel}
}

// FromContext wraps an existing context as a Signal, useful when a caller
// already has a context.Context (e.g. an inbound RPC) that should drive
// cancellation.
func FromContext(ctx context.Context) *Signal {
	ctx, cancel := context.WithCancel(ctx)
	return &Signal{ctx: ctx, cancel: cancel}
}

// Child derives a signal whose cancellation is tied to s: aborting s aborts
// every child, and if s is already aborted the child is born aborted.
func (s *Signal) Child() *Signal {
	if s == nil {
		return New()
	}
	ctx, cancel := context.WithCancel(s.Context())
	return &Signal{ctx: ctx, cancel: cancel}
}

// ChildWithTimeout derives a child signal that also aborts after d elapses,
// used for per-tool-call timeouts (spec §4.4).
func (s *Signal) ChildWithTimeout(d time.Duration) (*Signal, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(s.Context(), d)
	return &Signal{ctx: ctx, cancel: cancel}, cancel
}

// Abort signals cancellation. Idempotent.
func (s *Signal) Abort() {
	if s == nil {
		return
	}
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	cancel()
}

// Aborted reports whether Abort has been called on s or any ancestor.
func (s *Signal) Aborted() bool {
	if s == nil {
		return false
	}
	select {
	case <-s.Context().Done():
		return true
	default:
		return false
	}
}

// Clear resets s in place to a fresh, un-aborted root signal, detached from
// whatever parent it was derived from (spec §4.5's clear(s), kept mainly for
// test reuse: constructing a new Signal per test case is equally valid, but
// some callers hold a *Signal by reference and want to rearm it).
func (s *Signal) Clear() {
	if s == nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	oldCancel := s.cancel
	s.ctx = ctx
	s.cancel = cancel
	s.mu.Unlock()
	if oldCancel != nil {
		oldCancel()
	}
}

// Context exposes the underlying context.Context, e.g. to pass to a
// StreamFn or Tool.Execute that expects one directly.
func (s *Signal) Context() context.Context {
	if s == nil {
		return context.Background()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}

// Done returns the channel that closes when s is aborted, for select loops.
func (s *Signal) Done() <-chan struct{} {
	return s.Context().Done()
}
