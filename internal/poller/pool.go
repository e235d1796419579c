// Package poller implements the per-core dispatch pipeline: the
// Dispatcher (spec.md §4.2), the fabric/discovery/admin/I/O handlers
// (§4.3-4.4.3), and the fixed pool of CPU-pinned pollers a Connect
// hand-off crosses (§5). Adapted from pkg/rds/pool.go's fixed-capacity,
// rate-limited worker pool, generalized from a client connection pool to
// a fixed set of single-threaded cooperative poller goroutines, each
// owning exactly the subsystems pinned to its core.
package poller

import (
	"sync"

	"golang.org/x/time/rate"
	"k8s.io/klog/v2"

	"git.srvlab.io/whiskey/nvmf-targetd/internal/session"
)

// task is a single-shot unit of work enqueued onto a poller's core,
// modeling spec.md §6's `enqueue_on(core_id, fn, arg)` inter-poller event
// primitive.
type task func()

// Poller is one single-threaded cooperative execution context pinned to
// a CPU core (spec.md §5). Every Connect hand-off targeting this core
// runs through its task queue; Dispatcher.Exec itself is called directly
// by the transport, not through the queue.
type Poller struct {
	coreID int
	tasks  chan task
	done   chan struct{}
	wg     sync.WaitGroup

	mu       sync.Mutex
	sessions map[string]map[uint16]*session.Session // subnqn -> controllerID -> session
	nextCtrl map[string]uint16                      // subnqn -> next controller ID to allocate
}

func newPoller(coreID int) *Poller {
	return &Poller{
		coreID:   coreID,
		tasks:    make(chan task, 256),
		done:     make(chan struct{}),
		sessions: make(map[string]map[uint16]*session.Session),
		nextCtrl: make(map[string]uint16),
	}
}

func (p *Poller) run() {
	defer p.wg.Done()
	for {
		select {
		case t := <-p.tasks:
			t()
		case <-p.done:
			return
		}
	}
}

// Start launches the poller's run loop.
func (p *Poller) Start() {
	p.wg.Add(1)
	go p.run()
}

// Stop signals the poller to exit and waits for the loop to return.
// Tasks still queued when the loop exits are not run.
func (p *Poller) Stop() {
	close(p.done)
	p.wg.Wait()
}

// registerSession records sess under a freshly allocated controller ID
// for the given subsystem NQN and returns that ID. Must only be called
// from this poller's own goroutine (the owning poller of sess's
// subsystem), per spec.md §5's no-shared-mutable-state model — the mutex
// exists only so metrics/diagnostics can read session counts from
// another goroutine.
func (p *Poller) registerSession(subnqn string, sess *session.Session) uint16 {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := p.nextCtrl[subnqn]
	p.nextCtrl[subnqn] = id + 1

	if p.sessions[subnqn] == nil {
		p.sessions[subnqn] = make(map[uint16]*session.Session)
	}
	p.sessions[subnqn][id] = sess
	return id
}

// findSession looks up an existing session on this poller's core by
// subsystem NQN and controller ID, used by an I/O-queue Connect that
// joins an already-established session (spec.md §4.3 "allocate session
// on first Admin-queue connect" implies subsequent I/O-queue connects on
// the same controller join it rather than allocating anew).
func (p *Poller) findSession(subnqn string, controllerID uint16) (*session.Session, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	byCtrl, ok := p.sessions[subnqn]
	if !ok {
		return nil, false
	}
	sess, ok := byCtrl[controllerID]
	return sess, ok
}

// SessionCount returns the number of live sessions across every
// subsystem this poller owns, for internal/metrics' active-session
// gauge.
func (p *Poller) SessionCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, byCtrl := range p.sessions {
		n += len(byCtrl)
	}
	return n
}

// AERPinnedCount returns the number of this poller's sessions currently
// holding a pinned AER slot, for internal/metrics' AER-slot gauge.
func (p *Poller) AERPinnedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, byCtrl := range p.sessions {
		for _, sess := range byCtrl {
			if sess.HasPinnedAER() {
				n++
			}
		}
	}
	return n
}

// Pool is the fixed set of per-core pollers the core runs on, and the
// single-shot cross-poller hand-off primitive (spec.md §6 `enqueue_on`)
// every Connect uses to reach the poller that owns the target
// subsystem.
type Pool struct {
	pollers []*Poller

	// connectLimiter bounds the rate of fabric Connect attempts accepted
	// across the whole pool, guarding against a connect storm the way
	// pkg/rds/pool.go's ConnectionPool rate-limits connection admission.
	connectLimiter *rate.Limiter
}

// DefaultConnectRate and DefaultConnectBurst size the Connect attempt
// limiter; chosen generously since legitimate Connect bursts (many hosts
// reconnecting after a target restart) are common and must not be
// mistaken for an attack.
const (
	DefaultConnectRate  = 500.0
	DefaultConnectBurst = 100
)

// NewPool creates a pool of numCores pollers and starts them. connectRate
// and connectBurst size the pool-wide fabric Connect attempt limiter (see
// DefaultConnectRate/DefaultConnectBurst).
func NewPool(numCores int, connectRate float64, connectBurst int) *Pool {
	if numCores < 1 {
		numCores = 1
	}
	pool := &Pool{
		pollers:        make([]*Poller, numCores),
		connectLimiter: rate.NewLimiter(rate.Limit(connectRate), connectBurst),
	}
	for i := range pool.pollers {
		pool.pollers[i] = newPoller(i)
		pool.pollers[i].Start()
	}
	klog.Infof("poller pool started with %d cores", numCores)
	return pool
}

// SessionCount returns the number of live sessions across every poller
// in the pool, for internal/metrics' active-session gauge.
func (p *Pool) SessionCount() int {
	n := 0
	for _, poller := range p.pollers {
		n += poller.SessionCount()
	}
	return n
}

// AERPinnedCount returns the number of sessions across the pool
// currently holding a pinned AER slot, for internal/metrics' AER-slot
// gauge.
func (p *Pool) AERPinnedCount() int {
	n := 0
	for _, poller := range p.pollers {
		n += poller.AERPinnedCount()
	}
	return n
}

// Stop shuts down every poller in the pool.
func (p *Pool) Stop() {
	for _, poller := range p.pollers {
		poller.Stop()
	}
}

// Poller returns the poller owning coreID. Panics on an out-of-range
// core, a configuration error the caller is expected to have validated
// against NewPool's numCores.
func (p *Pool) Poller(coreID int) *Poller {
	return p.pollers[coreID]
}

// EnqueueOn implements spec.md §6's `enqueue_on(core_id, fn, arg)`:
// single-shot hand-off of fn to the poller owning coreID. Used only for
// the Connect hand-off (spec.md §5 "Suspension points"). Reports false
// if the target poller was shutting down and fn was never enqueued.
func (p *Pool) EnqueueOn(coreID int, fn func()) bool {
	target := p.pollers[coreID]
	select {
	case <-target.done:
		klog.Warningf("connect hand-off dropped: poller core %d is shutting down", coreID)
		return false
	default:
	}
	select {
	case target.tasks <- fn:
		return true
	case <-target.done:
		klog.Warningf("connect hand-off dropped: poller core %d is shutting down", coreID)
		return false
	}
}

// AllowConnect reports whether a new Connect attempt should be admitted
// right now, consuming one token from the pool-wide limiter.
func (p *Pool) AllowConnect() bool {
	return p.connectLimiter.Allow()
}
