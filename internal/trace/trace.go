// Package trace emits the structured per-command trace record spec.md
// §4.5 describes: observational only, never consulted by the
// dispatcher's decision tree. Adapted from pkg/security/logger.go's
// structured-event-plus-klog-routing shape, collapsed from
// severity-keyed routing down to a single trace verbosity since every
// record here is the same "observed a dispatched command" kind.
package trace

import (
	"encoding/json"
	"fmt"

	"k8s.io/klog/v2"

	"git.srvlab.io/whiskey/nvmf-targetd/internal/capsule"
)

// Record describes one dispatched command, built before the dispatcher's
// decision tree runs (spec.md §4.5).
type Record struct {
	QueueClass string // "admin" or "io"
	CID        uint16
	NSID       uint32
	CDW10      uint32

	// FabricOrOpcode is a human-readable rendering of either the fabric
	// command type or the NVMe opcode, whichever this command carries.
	FabricOrOpcode string

	SGLKind    string
	SGLAddress uint64
	SGLLength  uint32
	SGLKey     uint32
}

// BuildRecord assembles a Record from a command about to be dispatched,
// for the queue type qt.
func BuildRecord(qt capsule.QueueType, cmd capsule.Command) Record {
	label := fmt.Sprintf("opcode=0x%02x", cmd.Opcode)
	if cmd.Opcode == capsule.OpcodeFabric {
		label = fmt.Sprintf("fctype=0x%02x", cmd.FabricType)
	}

	return Record{
		QueueClass:     qt.String(),
		CID:            cmd.CID,
		NSID:           cmd.NSID,
		CDW10:          cmd.CDW10,
		FabricOrOpcode: label,
		SGLKind:        cmd.SGL.Kind().String(),
		SGLAddress:     cmd.SGL.Address,
		SGLLength:      cmd.SGL.Length,
		SGLKey:         cmd.SGL.Key,
	}
}

// Emit logs r at trace verbosity. Call sites must not branch on Emit's
// outcome — it is purely observational (spec.md §4.5 "must not affect
// dispatch").
func Emit(r Record) {
	klog.V(4).Infof(
		"[TRACE] queue=%s cid=%d nsid=%d cdw10=0x%08x cmd=%s sgl_kind=%s sgl_addr=0x%x sgl_len=%d sgl_key=0x%x",
		r.QueueClass, r.CID, r.NSID, r.CDW10, r.FabricOrOpcode,
		r.SGLKind, r.SGLAddress, r.SGLLength, r.SGLKey,
	)

	if klog.V(6).Enabled() {
		if b, err := json.Marshal(r); err == nil {
			klog.V(6).Infof("[TRACE_JSON] %s", string(b))
		}
	}
}
