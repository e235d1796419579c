package subsystem

import "encoding/binary"

// DiscoveryLogHeaderSize is the fixed size, in bytes, of the Discovery
// Log Page header (genctr, numrec, recfmt, and reserved fields), per the
// NVMe-oF specification.
const DiscoveryLogHeaderSize = 1024

// DiscoveryLogPage formats the Discovery log page header into buf,
// bounded by len(buf) (spec.md §4.4.1 "GET LOG PAGE" case). The
// generation counter is fixed at zero (spec.md Non-goals: "dynamic
// discovery updates (generation counter is fixed at zero)"), and numrec
// is zero because per-entry listing is delegated to the external
// discovery log formatter this core does not implement beyond the
// header — individual discovery entries are populated by the registry's
// caller, not this core (spec.md §4.4.1: "The discovery log page
// formatter (external) fills per-entry fields").
//
// Returns the number of bytes written, always min(len(buf),
// DiscoveryLogHeaderSize).
func DiscoveryLogPage(buf []byte) int {
	const genctr = uint64(0)
	const numrec = uint64(0)
	const recfmt = uint16(0)

	var hdr [DiscoveryLogHeaderSize]byte
	binary.LittleEndian.PutUint64(hdr[0:8], genctr)
	binary.LittleEndian.PutUint64(hdr[8:16], numrec)
	binary.LittleEndian.PutUint16(hdr[16:18], recfmt)
	// bytes [18:1024) are reserved and left zero; no entries follow
	// since numrec is always 0 in this core.

	n := copy(buf, hdr[:])
	return n
}
