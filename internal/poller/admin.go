package poller

import (
	"time"

	"git.srvlab.io/whiskey/nvmf-targetd/internal/backend"
	"git.srvlab.io/whiskey/nvmf-targetd/internal/capsule"
	"git.srvlab.io/whiskey/nvmf-targetd/internal/reconcile"
	"git.srvlab.io/whiskey/nvmf-targetd/internal/session"
)

// nvmeAdmin implements spec.md §4.4.2: a hybrid dispatcher that
// virtualises a fixed set of opcodes and passes everything else through
// to the backing controller.
func (d *Dispatcher) nvmeAdmin(req *capsule.Request, conn *session.Connection, sess *session.Session) {
	cmd := req.Command

	switch {
	case cmd.Opcode == capsule.OpcodeIdentify && cmd.CNS() == capsule.CNSIdentifyController:
		d.virtualizeIdentifyController(req, conn, sess)
		return

	case cmd.Opcode == capsule.OpcodeIdentify:
		d.passthroughAdmin(req, conn, sess)
		return

	case cmd.Opcode == capsule.OpcodeGetFeatures && cmd.FeatureID() == capsule.FeatureIDNumberOfQueues:
		req.Completion.CDW0 = numberOfQueuesValue(sess.MaxConnectionsAllowed())
		req.Completion.Status = capsule.StatusSuccess
		d.complete(req, conn)
		return

	case cmd.Opcode == capsule.OpcodeSetFeatures && cmd.FeatureID() == capsule.FeatureIDNumberOfQueues:
		if sess.NumConnections() > 1 {
			req.Completion.Status = capsule.StatusCommandSequenceError
		} else {
			req.Completion.CDW0 = numberOfQueuesValue(sess.MaxConnectionsAllowed())
			req.Completion.Status = capsule.StatusSuccess
		}
		d.complete(req, conn)
		return

	case cmd.Opcode == capsule.OpcodeGetFeatures || cmd.Opcode == capsule.OpcodeSetFeatures:
		d.passthroughAdmin(req, conn, sess)
		return

	case cmd.Opcode == capsule.OpcodeAsyncEventRequest:
		d.handleAER(req, conn, sess)
		return

	case cmd.Opcode == capsule.OpcodeKeepAlive:
		// TODO: refresh the session's keep-alive timestamp once timeout
		// enforcement is implemented; deferred per spec's Non-goals.
		req.Completion.Status = capsule.StatusSuccess
		d.complete(req, conn)
		return

	case cmd.Opcode == capsule.OpcodeCreateIOSQ || cmd.Opcode == capsule.OpcodeCreateIOCQ ||
		cmd.Opcode == capsule.OpcodeDeleteIOSQ || cmd.Opcode == capsule.OpcodeDeleteIOCQ:
		req.Completion.Status = capsule.StatusInvalidOpcode
		d.complete(req, conn)
		return

	default:
		d.passthroughAdmin(req, conn, sess)
	}
}

// numberOfQueuesValue computes the Get/Set-Features Number-of-Queues
// completion dword (spec.md §4.4.2, §8 invariant 6).
func numberOfQueuesValue(n uint16) uint32 {
	v := uint32(n - 1)
	return (v << 16) | v
}

func (d *Dispatcher) virtualizeIdentifyController(req *capsule.Request, conn *session.Connection, sess *session.Session) {
	if len(req.Data) < session.IdentifyControllerSize {
		req.Completion.Status = capsule.StatusInvalidField
		d.complete(req, conn)
		return
	}
	vcdata := sess.VirtualControllerData()
	copy(req.Data, vcdata[:])
	req.Completion.Status = capsule.StatusSuccess
	d.complete(req, conn)
}

// handleAER implements spec.md §4.4.2's AER row: pin the request on the
// session if the slot is free (completion deferred to whenever the event
// fires or the session tears down), else reject.
func (d *Dispatcher) handleAER(req *capsule.Request, conn *session.Connection, sess *session.Session) {
	pinned := &pinnedAER{req: req, conn: conn, dispatcher: d}
	if !sess.TryPinAER(pinned) {
		req.Completion.Status = capsule.StatusAERLimitExceeded
		d.complete(req, conn)
		return
	}
	// done = false: completion happens later, either from an external
	// event (CompleteAsEvent) or session teardown (internal/reconcile).
}

// pinnedAER adapts a parked AER *capsule.Request to session.AERRequest.
type pinnedAER struct {
	req        *capsule.Request
	conn       *session.Connection
	dispatcher *Dispatcher
}

// CompleteAsEvent implements session.AERRequest: populate a successful
// AER completion and hand the request back to the transport.
func (p *pinnedAER) CompleteAsEvent() error {
	p.req.Completion.Status = capsule.StatusSuccess
	p.dispatcher.complete(p.req, p.conn)
	return nil
}

// CompleteCancelled implements session.AERRequest: hand the request back
// to the transport with the fixed teardown-cancellation completion
// (internal/reconcile.CancelledCompletion), distinguishing it from a
// genuine AER event.
func (p *pinnedAER) CompleteCancelled() error {
	p.req.Completion = reconcile.CancelledCompletion()
	p.dispatcher.complete(p.req, p.conn)
	return nil
}

// passthroughAdmin implements spec.md §4.4.2's "Passthrough protocol"
// for admin commands.
func (d *Dispatcher) passthroughAdmin(req *capsule.Request, conn *session.Connection, sess *session.Session) {
	subsys := sess.Subsystem()
	queue := conn.QueueType().String()
	started := time.Now()

	submit := func() bool {
		status := subsys.Backend.SubmitAdmin(req.Command, req.Data, func(cpl capsule.Completion) {
			req.Completion = cpl
			if d.metrics != nil {
				d.metrics.ObservePassthrough(queue, outcomeLabel(cpl.Status), time.Since(started).Seconds())
			}
			d.complete(req, conn)
		})
		return status == backend.SubmitOK
	}

	var ok bool
	if d.breaker != nil {
		ok = d.breaker.Allow(subsys.NQN, submit)
	} else {
		ok = submit()
	}

	if !ok {
		req.Completion.Status = capsule.StatusInternalDeviceError
		if d.metrics != nil {
			d.metrics.ObservePassthrough(queue, outcomeLabel(req.Completion.Status), time.Since(started).Seconds())
		}
		d.complete(req, conn)
	}
	// ok == true: done = false, completion arrives via the callback above.
}
