package poller

import (
	"k8s.io/klog/v2"

	"git.srvlab.io/whiskey/nvmf-targetd/internal/capsule"
	"git.srvlab.io/whiskey/nvmf-targetd/internal/session"
	"git.srvlab.io/whiskey/nvmf-targetd/internal/subsystem"
)

// fabricDispatch implements spec.md §4.3's three-row gating table plus
// Connect, Property Get and Property Set.
func (d *Dispatcher) fabricDispatch(req *capsule.Request, conn *session.Connection) {
	sess := conn.Session()
	fctype := req.Command.FabricType

	if sess == nil {
		if fctype != capsule.FabricTypeConnect {
			req.Completion.Status = capsule.StatusCommandSequenceError
			d.complete(req, conn)
			return
		}
		d.handleConnect(req, conn)
		return
	}

	if conn.QueueType() == capsule.QueueIO {
		req.Completion.Status = capsule.StatusInvalidOpcode
		d.complete(req, conn)
		return
	}

	switch fctype {
	case capsule.FabricTypePropertyGet:
		d.propertyGet(req, conn, sess)
	case capsule.FabricTypePropertySet:
		d.propertySet(req, conn, sess)
	default:
		req.Completion.Status = capsule.StatusInvalidOpcode
		d.complete(req, conn)
	}
}

func (d *Dispatcher) propertyGet(req *capsule.Request, conn *session.Connection, sess *session.Session) {
	cmd := req.Command.PropertyGet
	if cmd == nil {
		req.Completion.Status = capsule.StatusInvalidField
		d.complete(req, conn)
		return
	}
	value, status := sess.Properties().Get(*cmd)
	req.Completion.Status = status
	req.Completion.CDW0 = uint32(value)
	req.Completion.CDW1 = uint32(value >> 32)
	d.complete(req, conn)
}

func (d *Dispatcher) propertySet(req *capsule.Request, conn *session.Connection, sess *session.Session) {
	cmd := req.Command.PropertySet
	if cmd == nil {
		req.Completion.Status = capsule.StatusInvalidField
		d.complete(req, conn)
		return
	}
	req.Completion.Status = sess.Properties().Set(*cmd)
	d.complete(req, conn)
}

// iattrDataStructure is the Connect Invalid-Parameters iattr value
// meaning "the offending field is in the data structure" (as opposed to
// the SQE itself), per the NVMe-oF specification.
const iattrDataStructure = 1

// packInvalidParam encodes the Connect Invalid-Parameters completion's
// command-specific dword: IPO in bits [15:0], IATTR in bit 16.
func packInvalidParam(iattr uint32, ipo uint16) uint32 {
	return (iattr << 16) | uint32(ipo)
}

// handleConnect implements spec.md §4.3's Connect behavior, including
// the cross-poller hand-off (spec.md §5 "Suspension points").
func (d *Dispatcher) handleConnect(req *capsule.Request, conn *session.Connection) {
	cmd := req.Command.Connect
	if cmd == nil || cmd.DataLen < capsule.ConnectDataSize {
		req.Completion.Status = capsule.StatusInvalidField
		d.complete(req, conn)
		return
	}

	if d.pool != nil && !d.pool.AllowConnect() {
		klog.Warningf("connect attempt rate-limited for subnqn=%s hostnqn=%s", cmd.SubNQN, cmd.HostNQN)
		req.Completion.Status = capsule.StatusConnectInvalidParameters
		req.Completion.CDW0 = packInvalidParam(iattrDataStructure, capsule.ConnectDataSubNQNOffset)
		d.complete(req, conn)
		if d.metrics != nil {
			d.metrics.ObserveConnect("rate_limited")
		}
		return
	}

	subsys, found := d.registry.Find(cmd.SubNQN, cmd.HostNQN)
	if !found {
		req.Completion.Status = capsule.StatusConnectInvalidParameters
		req.Completion.CDW0 = packInvalidParam(iattrDataStructure, capsule.ConnectDataSubNQNOffset)
		d.complete(req, conn)
		if d.metrics != nil {
			d.metrics.ObserveConnect("invalid_parameters")
		}
		return
	}

	// The originating poller relinquishes all further reference to req
	// once enqueued; the target poller is the sole owner from here
	// (spec.md §9 "Cross-poller hand-off for Connect").
	delivered := d.pool.EnqueueOn(subsys.PollerAffinity, func() {
		bindConnect(d, req, conn, subsys)
	})
	if d.metrics != nil {
		if delivered {
			d.metrics.ObserveHandoff("delivered")
		} else {
			d.metrics.ObserveHandoff("dropped")
		}
	}
}

// bindConnect runs on the poller owning subsys. It performs session
// allocation/lookup and connection binding, then completes req — the
// Connect hand-off's destination half (spec.md §4.3 step 3).
func bindConnect(d *Dispatcher, req *capsule.Request, conn *session.Connection, subsys *subsystem.Subsystem) {
	cmd := req.Command.Connect
	target := d.pool.Poller(subsys.PollerAffinity)

	var sess *session.Session
	if cmd.ControllerID == capsule.ConnectInvalidControllerID {
		var vcdata [session.IdentifyControllerSize]byte
		sess = session.New(subsys, subsys.MaxConnectionsAllowed, vcdata)
		id := target.registerSession(subsys.NQN, sess)
		sess.SetControllerID(id)
	} else {
		found, ok := target.findSession(subsys.NQN, cmd.ControllerID)
		if !ok {
			req.Completion.Status = capsule.StatusConnectInvalidParameters
			req.Completion.CDW0 = packInvalidParam(iattrDataStructure, capsule.ConnectDataSubNQNOffset)
			d.complete(req, conn)
			return
		}
		sess = found
	}

	if err := sess.AddConnection(); err != nil {
		req.Completion.Status = capsule.StatusCommandSequenceError
		d.complete(req, conn)
		return
	}

	if !conn.BindSession(sess) {
		// spec.md §3 invariant: a connection binds at most once. Reaching
		// here means the transport handed the same connection through
		// Connect twice, a transport-level defect this core can only
		// report, not repair.
		req.Completion.Status = capsule.StatusCommandSequenceError
		d.complete(req, conn)
		return
	}

	req.Completion.Status = capsule.StatusSuccess
	req.Completion.CDW0 = uint32(sess.ControllerID())
	d.complete(req, conn)
	if d.metrics != nil {
		d.metrics.ObserveConnect("success")
	}
}
