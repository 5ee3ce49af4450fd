// Package xsync implements synchronization tools used by the parallel datasets.
package xsync

import "sync"

// Latch is a signal that can be waited for until it is triggered.
// Once triggered it stays triggered forever.
type Latch struct {
	mu   sync.Mutex
	wait chan struct{}
}

// NewLatch returns an un-triggered latch.
func NewLatch() *Latch {
	return &Latch{wait: make(chan struct{})}
}

// Trigger the latch. It returns false if the latch was already triggered.
func (l *Latch) Trigger() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.Test() {
		return false
	}
	close(l.wait)
	return true
}

// Wait blocks until the latch is triggered.
func (l *Latch) Wait() {
	<-l.wait
}

// Test returns whether the latch has been triggered, without blocking.
func (l *Latch) Test() bool {
	select {
	case <-l.wait:
		return true
	default:
		return false
	}
}

// WaitChan returns a channel that is closed when the latch is triggered, to be used in a `select`.
func (l *Latch) WaitChan() <-chan struct{} {
	return l.wait
}
