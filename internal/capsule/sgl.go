package capsule

// SGLKind classifies an SGL descriptor embedded in a command capsule.
// The classification comes from the high nibble (type) of the
// descriptor's type/subtype byte, per the NVMe Base Specification's SGL
// descriptor table, reproduced here per original_source/lib/nvmf/request.c's
// descriptor-type switch; a data block type whose low nibble (subtype) is
// neither 0x0 nor 0x1 is classified as other.
type SGLKind int

const (
	SGLKindOther SGLKind = iota
	SGLKindKeyedDataBlock
	SGLKindUnkeyedDataBlock
)

func (k SGLKind) String() string {
	switch k {
	case SGLKindKeyedDataBlock:
		return "keyed-data-block"
	case SGLKindUnkeyedDataBlock:
		return "unkeyed-data-block"
	default:
		return "other"
	}
}

// sglDescriptorType values, the high nibble of the type/subtype byte.
const (
	sglTypeDataBlock   = 0x0
	sglTypeKeyedData   = 0x4
	sglSubtypeOffset   = 0x0
	sglSubtypeTransport = 0x1
)

// SGLDescriptor is the subset of an NVMe-oF SGL descriptor this core
// reads: for tracing (spec.md §4.5) and for sizing/locating the data
// buffer a command carries. A capsule carries exactly one descriptor in
// this core; chained/fragmented SGLs are out of scope (see SPEC_FULL.md
// §9).
type SGLDescriptor struct {
	Address uint64
	Length  uint32
	Key     uint32

	typeSubtype uint8 // raw type/subtype byte, high/low nibble packed
}

// NewSGLDescriptor builds a descriptor from its raw wire fields.
func NewSGLDescriptor(addr uint64, length, key uint32, typeSubtype uint8) SGLDescriptor {
	return SGLDescriptor{Address: addr, Length: length, Key: key, typeSubtype: typeSubtype}
}

// Kind classifies the descriptor for trace purposes (spec.md §4.5).
func (d SGLDescriptor) Kind() SGLKind {
	typ := d.typeSubtype >> 4
	sub := d.typeSubtype & 0x0f

	switch {
	case typ == sglTypeKeyedData && (sub == sglSubtypeOffset || sub == sglSubtypeTransport):
		return SGLKindKeyedDataBlock
	case typ == sglTypeDataBlock && (sub == sglSubtypeOffset || sub == sglSubtypeTransport):
		return SGLKindUnkeyedDataBlock
	default:
		return SGLKindOther
	}
}
