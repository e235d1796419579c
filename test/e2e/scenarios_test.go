package e2e

import (
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"git.srvlab.io/whiskey/nvmf-targetd/internal/backend"
	"git.srvlab.io/whiskey/nvmf-targetd/internal/capsule"
	"git.srvlab.io/whiskey/nvmf-targetd/internal/poller"
	"git.srvlab.io/whiskey/nvmf-targetd/internal/session"
	"git.srvlab.io/whiskey/nvmf-targetd/internal/subsystem"
)

// recordingSink is the test-side implementation of the transport's
// req_complete hook (spec.md §6), recording every completion handed back
// so specs can assert on it.
type recordingSink struct {
	mu          sync.Mutex
	completions []capsule.Completion
}

func (s *recordingSink) CompleteRequest(req *capsule.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completions = append(s.completions, req.Completion)
	return nil
}

func (s *recordingSink) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.completions)
}

func (s *recordingSink) Last() capsule.Completion {
	s.mu.Lock()
	defer s.mu.Unlock()
	Expect(s.completions).NotTo(BeEmpty())
	return s.completions[len(s.completions)-1]
}

func eventuallyCompleted(sink *recordingSink, before int) {
	Eventually(sink.Count, time.Second, time.Millisecond).Should(BeNumerically(">", before))
}

var _ = Describe("Connect", func() {
	It("S1: binds a session on a fresh admin connection via the owning poller", func() {
		pool := poller.NewPool(2, poller.DefaultConnectRate, poller.DefaultConnectBurst)
		defer pool.Stop()

		subsys := subsystem.NewNVMe("nqn.e2e.sub1", 1, 4, backend.NewFakeController(), backend.NewFakeController())
		registry := subsystem.NewMemoryRegistry()
		Expect(registry.Register(subsys)).To(Succeed())

		d := poller.NewDispatcher(0, pool, registry, nil, nil, nil)
		sink := &recordingSink{}
		conn := session.NewConnection(sink, capsule.QueueAdmin, 0)

		cmd := capsule.Command{
			CID:        1,
			Opcode:     capsule.OpcodeFabric,
			FabricType: capsule.FabricTypeConnect,
			Connect: &capsule.ConnectCommand{
				SubNQN:       subsys.NQN,
				HostNQN:      "nqn.e2e.host1",
				ControllerID: capsule.ConnectInvalidControllerID,
				DataLen:      capsule.ConnectDataSize,
			},
		}
		d.Exec(capsule.NewRequest(conn, cmd, nil, nil))

		eventuallyCompleted(sink, 0)
		Expect(sink.Last().Status.IsSuccess()).To(BeTrue())
		Expect(conn.Session()).NotTo(BeNil())
	})

	It("S2: rejects a non-Fabric command before Connect with Command Sequence Error", func() {
		pool := poller.NewPool(1, poller.DefaultConnectRate, poller.DefaultConnectBurst)
		defer pool.Stop()

		registry := subsystem.NewMemoryRegistry()
		d := poller.NewDispatcher(0, pool, registry, nil, nil, nil)
		sink := &recordingSink{}
		conn := session.NewConnection(sink, capsule.QueueAdmin, 0)

		cmd := capsule.Command{CID: 2, Opcode: capsule.OpcodeIdentify, CDW10: uint32(capsule.CNSIdentifyController)}
		d.Exec(capsule.NewRequest(conn, cmd, make([]byte, 4096), nil))

		Expect(sink.Last().Status).To(Equal(capsule.StatusCommandSequenceError))
	})
})

var _ = Describe("Async Event Request", func() {
	It("S3: the second AER on the same session is rejected while the first is pinned", func() {
		pool := poller.NewPool(1, poller.DefaultConnectRate, poller.DefaultConnectBurst)
		defer pool.Stop()

		subsys := subsystem.NewNVMe("nqn.e2e.sub2", 0, 4, backend.NewFakeController(), backend.NewFakeController())
		registry := subsystem.NewMemoryRegistry()
		Expect(registry.Register(subsys)).To(Succeed())
		d := poller.NewDispatcher(0, pool, registry, nil, nil, nil)

		sink := &recordingSink{}
		conn := session.NewConnection(sink, capsule.QueueAdmin, 0)
		connectAndEnable(d, pool, conn, subsys, sink)

		before := sink.Count()
		d.Exec(capsule.NewRequest(conn, capsule.Command{CID: 10, Opcode: capsule.OpcodeAsyncEventRequest}, nil, nil))
		Expect(sink.Count()).To(Equal(before), "first AER must not complete synchronously")

		d.Exec(capsule.NewRequest(conn, capsule.Command{CID: 11, Opcode: capsule.OpcodeAsyncEventRequest}, nil, nil))
		Expect(sink.Last().Status).To(Equal(capsule.StatusAERLimitExceeded))
	})
})

var _ = Describe("Discovery", func() {
	It("S5: formats a Discovery log page with genctr=0, numrec=0", func() {
		pool := poller.NewPool(1, poller.DefaultConnectRate, poller.DefaultConnectBurst)
		defer pool.Stop()

		subsys := subsystem.NewDiscovery("nqn.e2e.discovery", 0, 4)
		registry := subsystem.NewMemoryRegistry()
		Expect(registry.Register(subsys)).To(Succeed())
		d := poller.NewDispatcher(0, pool, registry, nil, nil, nil)

		sink := &recordingSink{}
		conn := session.NewConnection(sink, capsule.QueueAdmin, 0)
		connectAndEnable(d, pool, conn, subsys, sink)

		buf := make([]byte, 1024)
		cmd := capsule.Command{CID: 30, Opcode: capsule.OpcodeGetLogPage, CDW10: uint32(capsule.LogPageIDDiscovery)}
		d.Exec(capsule.NewRequest(conn, cmd, buf, nil))

		Expect(sink.Last().Status.IsSuccess()).To(BeTrue())
		Expect(buf[:16]).To(Equal(make([]byte, 16)), "genctr and numrec must both be zero")
	})
})

var _ = Describe("Queue management", func() {
	It("S6: refuses CREATE IO SQ without touching the backing controller", func() {
		pool := poller.NewPool(1, poller.DefaultConnectRate, poller.DefaultConnectBurst)
		defer pool.Stop()

		ctrlr := backend.NewFakeController()
		subsys := subsystem.NewNVMe("nqn.e2e.sub3", 0, 4, ctrlr, ctrlr)
		registry := subsystem.NewMemoryRegistry()
		Expect(registry.Register(subsys)).To(Succeed())
		d := poller.NewDispatcher(0, pool, registry, nil, nil, nil)

		sink := &recordingSink{}
		conn := session.NewConnection(sink, capsule.QueueAdmin, 0)
		connectAndEnable(d, pool, conn, subsys, sink)

		d.Exec(capsule.NewRequest(conn, capsule.Command{CID: 40, Opcode: capsule.OpcodeCreateIOSQ}, nil, nil))

		Expect(sink.Last().Status).To(Equal(capsule.StatusInvalidOpcode))
		Expect(ctrlr.AdminSubmissions()).To(BeEmpty())
	})
})

// connectAndEnable drives a Connect through the owning poller and
// enables the controller via Property Set, so a spec can start from a
// ready session.
func connectAndEnable(d *poller.Dispatcher, pool *poller.Pool, conn *session.Connection, subsys *subsystem.Subsystem, sink *recordingSink) {
	cmd := capsule.Command{
		Opcode:     capsule.OpcodeFabric,
		FabricType: capsule.FabricTypeConnect,
		Connect: &capsule.ConnectCommand{
			SubNQN:       subsys.NQN,
			HostNQN:      "nqn.e2e.host",
			ControllerID: capsule.ConnectInvalidControllerID,
			DataLen:      capsule.ConnectDataSize,
		},
	}
	d.Exec(capsule.NewRequest(conn, cmd, nil, nil))

	Eventually(func() bool { return conn.Session() != nil }, time.Second, time.Millisecond).Should(BeTrue())

	setCmd := capsule.Command{
		Opcode:      capsule.OpcodeFabric,
		FabricType:  capsule.FabricTypePropertySet,
		PropertySet: &capsule.PropertySetCommand{Offset: capsule.RegisterCC, Value: 1},
	}
	d.Exec(capsule.NewRequest(conn, setCmd, nil, nil))
}
