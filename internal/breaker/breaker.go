// Package breaker guards backend passthrough submissions with a
// per-subsystem circuit breaker, adapted from the teacher's per-volume
// circuit breaker (pkg/circuitbreaker/breaker.go): a wedged backing
// controller shared by many sessions must not be retried into a storm.
package breaker

import (
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"k8s.io/klog/v2"
)

const (
	// DefaultConsecutiveFailures is the number of passthrough submission
	// failures before a subsystem's circuit opens.
	DefaultConsecutiveFailures = 3

	// DefaultTimeout is how long the circuit stays open before allowing
	// a half-open retry.
	DefaultTimeout = 30 * time.Second

	// DefaultInterval is the cyclic period, in the closed state, after
	// which failure counts reset.
	DefaultInterval = 1 * time.Minute
)

// SubsystemBreaker manages one circuit breaker per subsystem NQN,
// keeping a single misbehaving backing controller from having every
// session bound to it hammer it with passthrough retries. The
// dispatcher itself never retries (spec.md §7); this only protects
// *submission*, i.e. whether to even attempt handing the command to the
// backend, not the NVMe completion path.
type SubsystemBreaker struct {
	consecutiveFailures uint32
	timeout             time.Duration
	interval            time.Duration

	mu       sync.RWMutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// New creates an empty per-subsystem breaker manager. consecutiveFailures
// is the number of passthrough submission failures before a subsystem's
// circuit opens; timeout is how long it stays open before a half-open
// retry; interval is the closed-state failure-count reset period.
func New(consecutiveFailures int, timeout, interval time.Duration) *SubsystemBreaker {
	return &SubsystemBreaker{
		consecutiveFailures: uint32(consecutiveFailures),
		timeout:             timeout,
		interval:            interval,
		breakers:            make(map[string]*gobreaker.CircuitBreaker),
	}
}

func (b *SubsystemBreaker) get(subnqn string) *gobreaker.CircuitBreaker {
	b.mu.RLock()
	cb, ok := b.breakers[subnqn]
	b.mu.RUnlock()
	if ok {
		return cb
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if cb, ok := b.breakers[subnqn]; ok {
		return cb
	}

	cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        subnqn,
		MaxRequests: 1,
		Interval:    b.interval,
		Timeout:     b.timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= b.consecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			klog.Warningf("subsystem %s passthrough circuit breaker: %s -> %s", name, from, to)
		},
	})
	b.breakers[subnqn] = cb
	return cb
}

// Allow reports whether a passthrough submission to subnqn should be
// attempted right now, recording the attempt against the breaker. fn is
// invoked to perform the actual submission; its return value (true for
// submission accepted by the backend, false for rejected) feeds the
// breaker's failure count. Allow returns false immediately, without
// calling fn, when the circuit is open.
func (b *SubsystemBreaker) Allow(subnqn string, fn func() bool) bool {
	cb := b.get(subnqn)

	result, err := cb.Execute(func() (interface{}, error) {
		if fn() {
			return nil, nil
		}
		return nil, errSubmissionRejected
	})
	_ = result

	return err == nil
}

// State returns the current state of subnqn's breaker, "closed" if none
// exists yet (the default, safe state).
func (b *SubsystemBreaker) State(subnqn string) string {
	b.mu.RLock()
	cb, ok := b.breakers[subnqn]
	b.mu.RUnlock()
	if !ok {
		return "closed"
	}
	return cb.State().String()
}

type submissionRejectedError struct{}

func (submissionRejectedError) Error() string { return "backend submission rejected" }

var errSubmissionRejected = submissionRejectedError{}
