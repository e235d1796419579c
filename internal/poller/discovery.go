package poller

import (
	"git.srvlab.io/whiskey/nvmf-targetd/internal/capsule"
	"git.srvlab.io/whiskey/nvmf-targetd/internal/session"
	"git.srvlab.io/whiskey/nvmf-targetd/internal/subsystem"
)

// discoveryAdmin implements spec.md §4.4.1: the Discovery subsystem's
// narrow admin surface (Identify Controller, Get Discovery Log Page).
// Every path here completes synchronously.
func (d *Dispatcher) discoveryAdmin(req *capsule.Request, conn *session.Connection, sess *session.Session) {
	if req.Data == nil {
		req.Completion.Status = capsule.StatusInvalidField
		d.complete(req, conn)
		return
	}

	cmd := req.Command
	switch {
	case cmd.Opcode == capsule.OpcodeIdentify && cmd.CNS() == capsule.CNSIdentifyController:
		vcdata := sess.VirtualControllerData()
		copy(req.Data, vcdata[:])
		req.Completion.Status = capsule.StatusSuccess

	case cmd.Opcode == capsule.OpcodeGetLogPage && cmd.LogPageID() == capsule.LogPageIDDiscovery:
		subsystem.DiscoveryLogPage(req.Data)
		req.Completion.Status = capsule.StatusSuccess

	default:
		req.Completion.Status = capsule.StatusInvalidField
	}

	d.complete(req, conn)
}
