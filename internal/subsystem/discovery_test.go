package subsystem

import (
	"encoding/binary"
	"testing"

	"git.srvlab.io/whiskey/nvmf-targetd/internal/backend"
)

func TestNewDiscovery(t *testing.T) {
	s := NewDiscovery("nqn.2024-01.test:discovery", 2, 8)

	if s.NQN != "nqn.2024-01.test:discovery" {
		t.Errorf("NQN = %q, want %q", s.NQN, "nqn.2024-01.test:discovery")
	}
	if s.Subtype != SubtypeDiscovery {
		t.Errorf("Subtype = %v, want %v", s.Subtype, SubtypeDiscovery)
	}
	if s.PollerAffinity != 2 {
		t.Errorf("PollerAffinity = %d, want 2", s.PollerAffinity)
	}
	if s.MaxConnectionsAllowed != 8 {
		t.Errorf("MaxConnectionsAllowed = %d, want 8", s.MaxConnectionsAllowed)
	}
	if s.Backend != nil {
		t.Error("Discovery subsystem must have no backing controller")
	}
	if s.IOQueuePair != nil {
		t.Error("Discovery subsystem must have no I/O queue pair")
	}
}

func TestNewNVMe(t *testing.T) {
	ctrlr := backend.NewFakeController()
	s := NewNVMe("nqn.2024-01.test:sub1", 1, 4, ctrlr, ctrlr)

	if s.NQN != "nqn.2024-01.test:sub1" {
		t.Errorf("NQN = %q, want %q", s.NQN, "nqn.2024-01.test:sub1")
	}
	if s.Subtype != SubtypeNVMe {
		t.Errorf("Subtype = %v, want %v", s.Subtype, SubtypeNVMe)
	}
	if s.Backend != ctrlr {
		t.Error("Backend was not wired to the given controller")
	}
	if s.IOQueuePair != ctrlr {
		t.Error("IOQueuePair was not wired to the given queue pair")
	}
	if s.PollerAffinity != 1 {
		t.Errorf("PollerAffinity = %d, want 1", s.PollerAffinity)
	}
	if s.MaxConnectionsAllowed != 4 {
		t.Errorf("MaxConnectionsAllowed = %d, want 4", s.MaxConnectionsAllowed)
	}
}

func TestSubtype_String(t *testing.T) {
	cases := []struct {
		name string
		s    Subtype
		want string
	}{
		{"nvme", SubtypeNVMe, "nvme"},
		{"discovery", SubtypeDiscovery, "discovery"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.s.String(); got != tc.want {
				t.Errorf("String() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestDiscoveryLogPage_Header(t *testing.T) {
	buf := make([]byte, DiscoveryLogHeaderSize)
	n := DiscoveryLogPage(buf)

	if n != DiscoveryLogHeaderSize {
		t.Fatalf("DiscoveryLogPage wrote %d bytes, want %d", n, DiscoveryLogHeaderSize)
	}

	genctr := binary.LittleEndian.Uint64(buf[0:8])
	numrec := binary.LittleEndian.Uint64(buf[8:16])
	recfmt := binary.LittleEndian.Uint16(buf[16:18])

	if genctr != 0 {
		t.Errorf("genctr = %d, want 0 (fixed, spec.md Non-goals)", genctr)
	}
	if numrec != 0 {
		t.Errorf("numrec = %d, want 0", numrec)
	}
	if recfmt != 0 {
		t.Errorf("recfmt = %d, want 0", recfmt)
	}

	for i, b := range buf[18:] {
		if b != 0 {
			t.Fatalf("reserved byte %d = %#x, want 0", 18+i, b)
		}
	}
}

func TestDiscoveryLogPage_TruncatesToBufferLength(t *testing.T) {
	buf := make([]byte, 10)
	n := DiscoveryLogPage(buf)

	if n != 10 {
		t.Fatalf("DiscoveryLogPage wrote %d bytes, want 10 (truncated to len(buf))", n)
	}

	genctr := binary.LittleEndian.Uint64(buf[0:8])
	if genctr != 0 {
		t.Errorf("genctr = %d, want 0", genctr)
	}
}

func TestDiscoveryLogPage_OversizedBuffer(t *testing.T) {
	buf := make([]byte, DiscoveryLogHeaderSize+512)
	n := DiscoveryLogPage(buf)

	if n != DiscoveryLogHeaderSize {
		t.Fatalf("DiscoveryLogPage wrote %d bytes, want %d (capped at header size)", n, DiscoveryLogHeaderSize)
	}
	for i, b := range buf[DiscoveryLogHeaderSize:] {
		if b != 0 {
			t.Fatalf("byte %d beyond header was touched: %#x", DiscoveryLogHeaderSize+i, b)
		}
	}
}
