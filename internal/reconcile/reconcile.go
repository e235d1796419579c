// Package reconcile tears a session down: releasing its pinned AER slot
// and completing it as a cancellation, per spec.md §5's "Cancellation"
// paragraph. Adapted from pkg/reconciler/orphan_reconciler.go's
// ticker-driven sweep loop, but the trigger here is never a timer — only
// an explicit teardown event — since there is no keep-alive timeout
// sweep in this core (see SPEC_FULL.md §9's Open Question decision).
package reconcile

import (
	"context"
	"sync"

	"k8s.io/klog/v2"

	"git.srvlab.io/whiskey/nvmf-targetd/internal/capsule"
	"git.srvlab.io/whiskey/nvmf-targetd/internal/session"
)

// Sweeper drains a queue of torn-down sessions and releases their AER
// slots, reporting each release through onRelease. It runs on its own goroutine
// started by Start, mirroring the teacher's ticker+stopCh+WaitGroup
// shutdown shape with the ticker replaced by an event channel.
type Sweeper struct {
	events chan *session.Session

	onRelease func(subnqn string, err error)

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewSweeper creates a Sweeper. onRelease, if non-nil, is called after
// each release of a pinned AER, with the error from completing it (nil
// on success). It is not called when the session had nothing pinned.
func NewSweeper(onRelease func(subnqn string, err error)) *Sweeper {
	return &Sweeper{
		events:    make(chan *session.Session, 64),
		onRelease: onRelease,
		stopCh:    make(chan struct{}),
	}
}

// Start begins the drain loop.
func (s *Sweeper) Start(ctx context.Context) {
	s.wg.Add(1)
	go s.run(ctx)
}

// Stop drains no further events and waits for the current pass to finish.
func (s *Sweeper) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

func (s *Sweeper) run(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case sess := <-s.events:
			s.release(sess)
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Sweeper) release(sess *session.Session) {
	pinned := sess.ReleaseAER()
	if pinned == nil {
		return
	}

	err := pinned.CompleteCancelled()
	if err != nil {
		klog.Warningf("AER release on teardown failed to complete: %v", err)
	}
	if s.onRelease != nil {
		s.onRelease(sess.Subsystem().NQN, err)
	}
}

// Teardown enqueues sess for AER release. It never blocks the caller's
// dispatch path: if the internal queue is full the release happens
// inline instead, since teardown correctness must not depend on queue
// capacity.
func (s *Sweeper) Teardown(sess *session.Session) {
	select {
	case s.events <- sess:
	default:
		s.release(sess)
	}
}

// cancelledCompletion is the completion a cancelled AER request receives
// when the sweeper completes it on teardown, per spec.md §5.
var cancelledCompletion = capsule.Completion{Status: capsule.StatusInternalDeviceError}

// CancelledCompletion returns the fixed completion a cancelled AER
// request is given when its session tears down mid-flight.
func CancelledCompletion() capsule.Completion { return cancelledCompletion }
