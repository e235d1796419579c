package trace

import (
	"testing"

	"git.srvlab.io/whiskey/nvmf-targetd/internal/capsule"
)

func TestBuildRecord_Opcode(t *testing.T) {
	cmd := capsule.Command{
		CID:   7,
		NSID:  1,
		CDW10: uint32(capsule.CNSIdentifyController),
		Opcode: capsule.OpcodeIdentify,
		SGL:    capsule.NewSGLDescriptor(0x1000, 4096, 0, 0x00),
	}

	r := BuildRecord(capsule.QueueAdmin, cmd)

	if r.QueueClass != "admin" {
		t.Errorf("QueueClass = %q, want admin", r.QueueClass)
	}
	if r.CID != 7 {
		t.Errorf("CID = %d, want 7", r.CID)
	}
	if r.FabricOrOpcode != "opcode=0x06" {
		t.Errorf("FabricOrOpcode = %q, want opcode=0x06", r.FabricOrOpcode)
	}
	if r.SGLKind != "unkeyed-data-block" {
		t.Errorf("SGLKind = %q, want unkeyed-data-block", r.SGLKind)
	}
}

func TestBuildRecord_Fabric(t *testing.T) {
	cmd := capsule.Command{
		CID:        3,
		Opcode:     capsule.OpcodeFabric,
		FabricType: capsule.FabricTypeConnect,
		SGL:        capsule.NewSGLDescriptor(0x2000, 1024, 0, 0x01),
	}

	r := BuildRecord(capsule.QueueAdmin, cmd)

	if r.FabricOrOpcode != "fctype=0x01" {
		t.Errorf("FabricOrOpcode = %q, want fctype=0x01", r.FabricOrOpcode)
	}
}

func TestEmit_DoesNotPanic(t *testing.T) {
	r := BuildRecord(capsule.QueueIO, capsule.Command{Opcode: capsule.OpcodeGetLogPage})
	Emit(r)
}
