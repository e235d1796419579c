package poller

import (
	"git.srvlab.io/whiskey/nvmf-targetd/internal/breaker"
	"git.srvlab.io/whiskey/nvmf-targetd/internal/capsule"
	"git.srvlab.io/whiskey/nvmf-targetd/internal/metrics"
	"git.srvlab.io/whiskey/nvmf-targetd/internal/reconcile"
	"git.srvlab.io/whiskey/nvmf-targetd/internal/session"
	"git.srvlab.io/whiskey/nvmf-targetd/internal/subsystem"
	"git.srvlab.io/whiskey/nvmf-targetd/internal/trace"
)

// Dispatcher is the core state machine (spec.md §4.2 exec(req)), bound to
// one poller core. Every request reaching Exec was received on a
// connection pinned to coreID; the dispatcher never blocks (spec.md §5).
type Dispatcher struct {
	coreID   int
	pool     *Pool
	registry subsystem.Registry
	breaker  *breaker.SubsystemBreaker
	metrics  *metrics.Metrics
	sweeper  *reconcile.Sweeper
}

// NewDispatcher builds the dispatcher owned by the poller at coreID.
func NewDispatcher(coreID int, pool *Pool, registry subsystem.Registry, cb *breaker.SubsystemBreaker, m *metrics.Metrics, sweeper *reconcile.Sweeper) *Dispatcher {
	return &Dispatcher{
		coreID:   coreID,
		pool:     pool,
		registry: registry,
		breaker:  cb,
		metrics:  m,
		sweeper:  sweeper,
	}
}

// Exec implements spec.md §4.2's decision tree. req.Connection must be a
// *session.Connection pinned to this dispatcher's core.
func (d *Dispatcher) Exec(req *capsule.Request) {
	conn, ok := req.Connection.(*session.Connection)
	if !ok {
		// A misconfigured transport handed this dispatcher a connection
		// it didn't create; there is no recoverable dispatch decision
		// here, only a defect to surface.
		panic("poller: Request.Connection is not a *session.Connection")
	}

	trace.Emit(trace.BuildRecord(conn.QueueType(), req.Command))

	if req.Command.Opcode == capsule.OpcodeFabric {
		d.fabricDispatch(req, conn)
		return
	}

	sess := conn.Session()
	if sess == nil || !sess.Properties().EN() {
		req.Completion.Status = capsule.StatusCommandSequenceError
		d.complete(req, conn)
		return
	}

	if conn.QueueType() == capsule.QueueAdmin {
		if sess.Subsystem().Subtype == subsystem.SubtypeDiscovery {
			d.discoveryAdmin(req, conn, sess)
		} else {
			d.nvmeAdmin(req, conn, sess)
		}
		return
	}

	d.nvmeIO(req, conn, sess)
}

// complete populates the standard completion fields and hands the
// request back through the connection's transport (spec.md §4.1),
// recording the outcome in metrics.
func (d *Dispatcher) complete(req *capsule.Request, conn *session.Connection) {
	if d.metrics != nil {
		d.metrics.ObserveDispatch(conn.QueueType().String(), outcomeLabel(req.Completion.Status))
	}
	if err := req.Complete(conn.Transport()); err != nil {
		// Complete() already logged; nothing more for the dispatcher to
		// do, the request is consumed regardless (spec.md §4.1).
		_ = err
	}
}

func outcomeLabel(status capsule.Status) string {
	if status.IsSuccess() {
		return "success"
	}
	return "error"
}
