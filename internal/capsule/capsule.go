// Package capsule defines the NVMe and NVMe-oF wire types the dispatch
// core reads and writes: the 64-byte submission and completion entries,
// the fabric command header, and the handful of command-specific shapes
// the core needs to interpret (Connect, Property Get/Set, Identify,
// Get/Set Features).
//
// Layouts are fixed by the NVMe Base and NVMe-oF specifications. Nothing
// here reinterprets raw bytes in place; the transport is responsible for
// parsing the wire capsule into a Command before handing a Request to the
// dispatcher.
package capsule

// QueueType distinguishes the two queue classes a Connection can belong
// to. There is no queue-pair-creation admin command in this core (see
// Non-goals); queue type is fixed for a connection's lifetime by how the
// transport classified it at accept time.
type QueueType int

const (
	// QueueAdmin is the admin queue of a controller.
	QueueAdmin QueueType = iota
	// QueueIO is an I/O queue of a controller.
	QueueIO
)

func (q QueueType) String() string {
	if q == QueueAdmin {
		return "admin"
	}
	return "io"
}

// Opcode is the low byte of an NVMe command's opc field. The fabrics
// opcode (0x7f) is shared by both admin and I/O queues and is always
// routed to the fabric command handler first.
type Opcode uint8

const (
	OpcodeFabric Opcode = 0x7f

	OpcodeDeleteIOSQ          Opcode = 0x00
	OpcodeCreateIOSQ          Opcode = 0x01
	OpcodeGetLogPage          Opcode = 0x02
	OpcodeDeleteIOCQ          Opcode = 0x04
	OpcodeCreateIOCQ          Opcode = 0x05
	OpcodeIdentify            Opcode = 0x06
	OpcodeSetFeatures         Opcode = 0x09
	OpcodeGetFeatures         Opcode = 0x0a
	OpcodeAsyncEventRequest   Opcode = 0x0c
	OpcodeKeepAlive           Opcode = 0x18
)

// FabricType is the fctype field of a fabrics command.
type FabricType uint8

const (
	FabricTypePropertySet FabricType = 0x00
	FabricTypeConnect     FabricType = 0x01
	FabricTypePropertyGet FabricType = 0x04
)

// CNS is the Controller or Namespace Structure selector, the low byte of
// CDW10 on an Identify command.
type CNS uint8

const (
	CNSIdentifyController CNS = 0x01
)

// FeatureID is the low byte of CDW10 on a Get/Set Features command.
type FeatureID uint8

const (
	FeatureIDNumberOfQueues FeatureID = 0x07
)

// LogPageID is the low byte of CDW10 on a Get Log Page command.
type LogPageID uint8

const (
	LogPageIDDiscovery LogPageID = 0x70
)

// StatusCodeType mirrors the NVMe completion queue entry's SCT field.
type StatusCodeType uint8

const (
	StatusCodeTypeGeneric         StatusCodeType = 0x0
	StatusCodeTypeCommandSpecific StatusCodeType = 0x1
)

// Status is a (type, code) pair, matching how the completion queue
// entry packs status. The zero value is Success.
type Status struct {
	Type StatusCodeType
	Code uint8
}

// Named statuses used by this core. See spec.md §7 for the taxonomy;
// values follow the NVMe Base Specification's generic and
// command-specific status code tables.
var (
	StatusSuccess                    = Status{StatusCodeTypeGeneric, 0x00}
	StatusInvalidOpcode              = Status{StatusCodeTypeGeneric, 0x01}
	StatusInvalidField               = Status{StatusCodeTypeGeneric, 0x02}
	StatusInternalDeviceError        = Status{StatusCodeTypeGeneric, 0x06}
	StatusCommandSequenceError       = Status{StatusCodeTypeGeneric, 0x0c}
	StatusAERLimitExceeded           = Status{StatusCodeTypeCommandSpecific, 0x05}
	StatusConnectInvalidParameters   = Status{StatusCodeTypeCommandSpecific, 0x82}
)

// IsSuccess reports whether s is the zero/success status.
func (s Status) IsSuccess() bool {
	return s == StatusSuccess
}

// Command is the tagged union over every command shape this core
// interprets. Exactly one of the typed fields is meaningful, selected by
// Opcode (and, when Opcode is OpcodeFabric, by FabricType). This models
// the 64-byte wire capsule as a Go sum type rather than exposing a raw
// byte reinterpretation outside the parser: the transport is expected to
// have already decoded the raw capsule into one of these shapes.
type Command struct {
	CID    uint16
	NSID   uint32
	CDW10  uint32
	CDW11  uint32
	SGL    SGLDescriptor

	Opcode     Opcode
	FabricType FabricType // only meaningful when Opcode == OpcodeFabric

	Connect     *ConnectCommand     // FabricType == Connect
	PropertyGet *PropertyGetCommand // FabricType == PropertyGet
	PropertySet *PropertySetCommand // FabricType == PropertySet
}

// CNS returns the CNS selector packed into the low byte of CDW10. Valid
// only for Identify commands.
func (c Command) CNS() CNS { return CNS(c.CDW10 & 0xff) }

// FeatureID returns the feature identifier packed into the low byte of
// CDW10. Valid only for Get/Set Features commands.
func (c Command) FeatureID() FeatureID { return FeatureID(c.CDW10 & 0xff) }

// LogPageID returns the log page identifier packed into the low byte of
// CDW10. Valid only for Get Log Page commands.
func (c Command) LogPageID() LogPageID { return LogPageID(c.CDW10 & 0xff) }

// Completion is the 64-byte NVMe completion queue entry fields this core
// populates. SQID and the phase bit are always written by Request.Complete;
// handlers populate the rest.
type Completion struct {
	CDW0   uint32
	CDW1   uint32
	SQHead uint16
	SQID   uint16
	CID    uint16
	Status Status
	Phase  bool
}
