package eval

import "context"

// semaphore is a counting semaphore bounding concurrent case tasks
// (spec §5 "maxConcurrency bounds parallel case tasks via a counting
// semaphore (acquire-before-start, release-on-finally)"). A buffered
// channel is the idiomatic Go counting semaphore; no third-party
// package in the pack wraps this pattern, and golang.org/x/sync's
// semaphore isn't one of the pack's dependencies.
type semaphore struct {
	slots chan struct{}
}

func newSemaphore(n int) *semaphore {
	if n <= 0 {
		n = 1
	}
	return &semaphore{slots: make(chan struct{}, n)}
}

// acquire blocks until a slot is free or ctx is done.
func (s *semaphore) acquire(ctx context.Context) error {
	select {
	case s.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *semaphore) release() {
	<-s.slots
}
