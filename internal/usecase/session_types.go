package usecase

import (
	"context"
	"sync"
)

// commandSession is one wake or push-to-talk interaction. It may span several
// listen, respond rounds when auto-listen is on.
type commandSession struct {
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	wake   bool

	stopMu  sync.Mutex
	stop    chan struct{}
	stopped bool
}

func newCommandSession(parent context.Context, wake bool) *commandSession {
	ctx, cancel := context.WithCancel(parent)
	return &commandSession{
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
		wake:   wake,
	}
}

// armStop returns a fresh manual-stop signal for the next capture round.
func (s *commandSession) armStop() <-chan struct{} {
	s.stopMu.Lock()
	defer s.stopMu.Unlock()
	s.stop = make(chan struct{})
	s.stopped = false
	return s.stop
}

// requestStop ends the current capture round early. It reports false when no
// round is armed or it was already stopped.
func (s *commandSession) requestStop() bool {
	s.stopMu.Lock()
	defer s.stopMu.Unlock()
	if s.stop == nil || s.stopped {
		return false
	}
	close(s.stop)
	s.stopped = true
	return true
}

// abort cancels the session and waits for its goroutine.
func (s *commandSession) abort() {
	s.cancel()
	<-s.done
}
