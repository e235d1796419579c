package poller

import (
	"testing"

	"git.srvlab.io/whiskey/nvmf-targetd/internal/backend"
	"git.srvlab.io/whiskey/nvmf-targetd/internal/capsule"
	"git.srvlab.io/whiskey/nvmf-targetd/internal/subsystem"
)

func TestNvmeAdmin_PassthroughSubmissionFailure(t *testing.T) {
	pool := newTestPool(1)
	defer pool.Stop()

	ctrlr := backend.NewFakeController()
	subsys := subsystem.NewNVMe("nqn.test.sub1", 0, 4, ctrlr, ctrlr)
	registry := newTestRegistry(subsys)
	d := NewDispatcher(0, pool, registry, nil, nil, nil)

	sink := &fakeSink{}
	conn := newAdminConn(sink, 0)
	connectAndEnable(t, d, pool, conn, sink, subsys)

	ctrlr.SetNextSubmitStatus(backend.SubmitFailed)

	cmd := capsule.Command{CID: 50, Opcode: capsule.OpcodeGetLogPage, CDW10: 0x02}
	req := capsule.NewRequest(conn, cmd, make([]byte, 64), nil)
	d.Exec(req)

	cpl, ok := sink.last()
	if !ok {
		t.Fatal("expected synchronous completion on submission failure")
	}
	if cpl.Status != capsule.StatusInternalDeviceError {
		t.Fatalf("status = %+v, want InternalDeviceError", cpl.Status)
	}
}

func TestNvmeAdmin_PassthroughSubmissionSuccessDeferred(t *testing.T) {
	pool := newTestPool(1)
	defer pool.Stop()

	ctrlr := backend.NewFakeController()
	ctrlr.SetCompleteImmediately(false)
	subsys := subsystem.NewNVMe("nqn.test.sub1", 0, 4, ctrlr, ctrlr)
	registry := newTestRegistry(subsys)
	d := NewDispatcher(0, pool, registry, nil, nil, nil)

	sink := &fakeSink{}
	conn := newAdminConn(sink, 0)
	connectAndEnable(t, d, pool, conn, sink, subsys)

	before := sink.count()
	cmd := capsule.Command{CID: 51, Opcode: capsule.OpcodeGetLogPage, CDW10: 0x02}
	req := capsule.NewRequest(conn, cmd, make([]byte, 64), nil)
	d.Exec(req)

	if sink.count() != before {
		t.Fatal("expected no synchronous completion on submission success")
	}

	ctrlr.Drain()

	if sink.count() != before+1 {
		t.Fatal("expected completion after drain")
	}
	cpl, _ := sink.last()
	if !cpl.Status.IsSuccess() {
		t.Fatalf("status = %+v, want Success", cpl.Status)
	}
}

func TestNvmeAdmin_IdentifyControllerVirtualized(t *testing.T) {
	pool := newTestPool(1)
	defer pool.Stop()

	ctrlr := backend.NewFakeController()
	subsys := subsystem.NewNVMe("nqn.test.sub1", 0, 4, ctrlr, ctrlr)
	registry := newTestRegistry(subsys)
	d := NewDispatcher(0, pool, registry, nil, nil, nil)

	sink := &fakeSink{}
	conn := newAdminConn(sink, 0)
	connectAndEnable(t, d, pool, conn, sink, subsys)

	want := conn.Session().VirtualControllerData()

	buf := make([]byte, len(want))
	cmd := capsule.Command{CID: 60, Opcode: capsule.OpcodeIdentify, CDW10: uint32(capsule.CNSIdentifyController)}
	req := capsule.NewRequest(conn, cmd, buf, nil)
	d.Exec(req)

	for i := range want {
		if buf[i] != want[i] {
			t.Fatalf("buffer mismatch at byte %d", i)
			break
		}
	}

	cpl, _ := sink.last()
	if !cpl.Status.IsSuccess() {
		t.Fatalf("status = %+v, want Success", cpl.Status)
	}
	if ctrlr.AdminSubmissions() != nil && len(ctrlr.AdminSubmissions()) != 0 {
		t.Fatal("virtualised Identify Controller must not touch the backing controller")
	}
}
