package poller

import (
	"time"

	"git.srvlab.io/whiskey/nvmf-targetd/internal/backend"
	"git.srvlab.io/whiskey/nvmf-targetd/internal/capsule"
	"git.srvlab.io/whiskey/nvmf-targetd/internal/session"
)

// nvmeIO implements spec.md §4.4.3: pure passthrough to the backing
// controller's I/O queue pair, no virtualised opcodes.
func (d *Dispatcher) nvmeIO(req *capsule.Request, conn *session.Connection, sess *session.Session) {
	subsys := sess.Subsystem()
	queue := conn.QueueType().String()
	started := time.Now()

	submit := func() bool {
		status := subsys.IOQueuePair.SubmitIO(req.Command, req.Data, func(cpl capsule.Completion) {
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
}
