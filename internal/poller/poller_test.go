package poller

import (
	"sync"

	"git.srvlab.io/whiskey/nvmf-targetd/internal/backend"
	"git.srvlab.io/whiskey/nvmf-targetd/internal/breaker"
	"git.srvlab.io/whiskey/nvmf-targetd/internal/capsule"
	"git.srvlab.io/whiskey/nvmf-targetd/internal/session"
	"git.srvlab.io/whiskey/nvmf-targetd/internal/subsystem"
)

// fakeSink records every completion handed back by the core, standing in
// for the transport's req_complete hook (spec.md §6).
type fakeSink struct {
	mu          sync.Mutex
	completions []capsule.Completion
}

func (f *fakeSink) CompleteRequest(req *capsule.Request) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completions = append(f.completions, req.Completion)
	return nil
}

func (f *fakeSink) last() (capsule.Completion, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.completions) == 0 {
		return capsule.Completion{}, false
	}
	return f.completions[len(f.completions)-1], true
}

func (f *fakeSink) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.completions)
}

func newTestPool(numCores int) *Pool {
	return NewPool(numCores, DefaultConnectRate, DefaultConnectBurst)
}

func newTestSubsystem(nqn string, affinity int, subtype subsystem.Subtype, maxConns uint16) *subsystem.Subsystem {
	ctrlr := backend.NewFakeController()
	if subtype == subsystem.SubtypeDiscovery {
		return subsystem.NewDiscovery(nqn, affinity, maxConns)
	}
	return subsystem.NewNVMe(nqn, affinity, maxConns, ctrlr, ctrlr)
}

func newTestRegistry(subsystems ...*subsystem.Subsystem) *subsystem.MemoryRegistry {
	reg := subsystem.NewMemoryRegistry()
	for _, s := range subsystems {
		_ = reg.Register(s)
	}
	return reg
}

func newAdminConn(sink capsule.CompletionSink, coreID int) *session.Connection {
	return session.NewConnection(sink, capsule.QueueAdmin, coreID)
}

func newIOConn(sink capsule.CompletionSink, coreID int) *session.Connection {
	return session.NewConnection(sink, capsule.QueueIO, coreID)
}

func connectCommand(cid uint16, subnqn, hostnqn string, controllerID uint16) capsule.Command {
	return capsule.Command{
		CID:        cid,
		Opcode:     capsule.OpcodeFabric,
		FabricType: capsule.FabricTypeConnect,
		Connect: &capsule.ConnectCommand{
			HostNQN:      hostnqn,
			SubNQN:       subnqn,
			QueueID:      0,
			ControllerID: controllerID,
			DataLen:      capsule.ConnectDataSize,
		},
	}
}
