package session

import (
	"sync"

	"git.srvlab.io/whiskey/nvmf-targetd/internal/capsule"
)

// Registers implements the session-wide virtual controller property
// register file (spec.md §3 "Session", §6 "Session property register
// file"): CAP, CC, and CSTS, with at minimum CC.EN addressable. This is
// the external collaborator spec.md §4.3 delegates Property Get/Set to;
// it is kept in this package (rather than a standalone external
// package) because CC.EN's 0→1 transition is the one piece of register
// semantics the dispatcher's gating logic (spec.md §4.2 step 2) directly
// depends on.
type Registers struct {
	mu sync.Mutex

	cap  uint64
	cc   uint32
	csts uint32
}

// ccEnableBit is the Enable bit position within CC (bit 0).
const ccEnableBit = 1 << 0

// cstsReadyBit is the Ready bit position within CSTS (bit 0), set once
// CC.EN transitions 0→1.
const cstsReadyBit = 1 << 0

// NewRegisters builds a property register file with the given CAP value
// (fixed at construction time; this core does not model changing it).
func NewRegisters(capValue uint64) *Registers {
	return &Registers{cap: capValue}
}

// EN reports the current value of CC.EN, the bit spec.md §4.2 step 2 and
// §4.4.2 gate on.
func (r *Registers) EN() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cc&ccEnableBit != 0
}

// Get implements Property Get (spec.md §4.3). size8 selects an 8-byte
// read; only CAP is defined as an 8-byte register here.
func (r *Registers) Get(cmd capsule.PropertyGetCommand) (value uint64, status capsule.Status) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch cmd.Offset {
	case capsule.RegisterCAP:
		return r.cap, capsule.StatusSuccess
	case capsule.RegisterCC:
		return uint64(r.cc), capsule.StatusSuccess
	case capsule.RegisterCSTS:
		return uint64(r.csts), capsule.StatusSuccess
	default:
		return 0, capsule.StatusInvalidField
	}
}

// Set implements Property Set (spec.md §4.3). CC.EN's 0→1 transition
// enables the controller and is reflected immediately in CSTS.RDY; this
// is the only register transition this core's gating logic observes.
func (r *Registers) Set(cmd capsule.PropertySetCommand) capsule.Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch cmd.Offset {
	case capsule.RegisterCC:
		wasEnabled := r.cc&ccEnableBit != 0
		r.cc = uint32(cmd.Value)
		nowEnabled := r.cc&ccEnableBit != 0
		if !wasEnabled && nowEnabled {
			r.csts |= cstsReadyBit
		}
		if wasEnabled && !nowEnabled {
			r.csts &^= cstsReadyBit
		}
		return capsule.StatusSuccess
	default:
		return capsule.StatusInvalidField
	}
}

// DefaultCAP is a representative CAP register value: MQES (max queue
// entries - 1) = 1023, timeout = 0, and the other fields left at their
// permissive defaults. Real deployments should compute this from the
// backing controller's actual limits; this core treats CAP as static.
const DefaultCAP uint64 = 0x3ff
