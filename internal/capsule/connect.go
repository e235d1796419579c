package capsule

// ConnectDataSize is the fixed size, in bytes, of the NVMe-oF Connect
// command's data payload (host/subsystem NQN plus the fixed header
// fields preceding them).
const ConnectDataSize = 1024

// ConnectDataSubNQNOffset is the byte offset of the subnqn field within
// the Connect data payload, per original_source/lib/nvmf/request.c's
// field ordering. Used to populate the ipo field of a Connect Invalid
// Parameters completion (spec.md §4.3 step 2).
const ConnectDataSubNQNOffset = 256

// ConnectCommand is the NVMe-oF fabric Connect command (spec.md §4.3).
type ConnectCommand struct {
	HostNQN       string
	SubNQN        string
	QueueID       uint16
	SQSize        uint16
	ControllerID  uint16 // hint; 0xffff means "any"
	DataLen       int    // length of the data buffer the host provided
}

// ConnectInvalidControllerID is the "any" controller-ID hint a host may
// send, meaning "allocate me one."
const ConnectInvalidControllerID = 0xffff

// PropertyGetCommand is the NVMe-oF Property Get command.
type PropertyGetCommand struct {
	// Offset is the controller register offset (e.g. 0x00 for CAP,
	// 0x14 for CC, 0x1c for CSTS).
	Offset uint32
	// Size8 is true when the host requested an 8-byte property value.
	Size8 bool
}

// PropertySetCommand is the NVMe-oF Property Set command.
type PropertySetCommand struct {
	Offset uint32
	Size8  bool
	Value  uint64
}

// Controller register offsets this core's property register file
// addresses (spec.md §3, §4.3).
const (
	RegisterCAP  uint32 = 0x00
	RegisterCC   uint32 = 0x14
	RegisterCSTS uint32 = 0x1c
)
