// Package subsystem models the NVMe-oF subsystem registry: the external
// collaborator spec.md §6 names as `find_subsystem`, plus the Discovery
// subtype's log-page formatting (spec.md §4.4.1).
package subsystem

import (
	"git.srvlab.io/whiskey/nvmf-targetd/internal/backend"
)

// Subtype distinguishes a Discovery subsystem (no backing controller,
// serves only Identify/Get-Log-Page) from an NVMe subsystem (backed by a
// physical controller for passthrough).
type Subtype int

const (
	SubtypeNVMe Subtype = iota
	SubtypeDiscovery
)

func (s Subtype) String() string {
	if s == SubtypeDiscovery {
		return "discovery"
	}
	return "nvme"
}

// Subsystem is named by NQN (spec.md §3 "Subsystem"). For the NVMe
// subtype it holds a handle to a backing physical controller and the
// single I/O queue pair used for passthrough, plus the poller-core
// affinity the Connect hand-off (spec.md §4.3) targets.
type Subsystem struct {
	NQN     string
	Subtype Subtype

	// Backend and IOQueuePair are only set for SubtypeNVMe.
	Backend     backend.Controller
	IOQueuePair backend.QueuePair

	// PollerAffinity is the core index this subsystem (and every
	// session bound to it) is pinned to.
	PollerAffinity int

	// MaxConnectionsAllowed bounds how many connections a session on
	// this subsystem may accumulate (spec.md §3, §4.4.2).
	MaxConnectionsAllowed uint16
}

// NewDiscovery creates a Discovery-subtype subsystem. Discovery
// subsystems never receive non-Fabric, non-Admin commands, and have no
// backing controller (spec.md §3 invariants).
func NewDiscovery(nqn string, pollerAffinity int, maxConnections uint16) *Subsystem {
	return &Subsystem{
		NQN:                   nqn,
		Subtype:               SubtypeDiscovery,
		PollerAffinity:        pollerAffinity,
		MaxConnectionsAllowed: maxConnections,
	}
}

// NewNVMe creates an NVMe-subtype subsystem backed by ctrlr/qpair.
func NewNVMe(nqn string, pollerAffinity int, maxConnections uint16, ctrlr backend.Controller, qpair backend.QueuePair) *Subsystem {
	return &Subsystem{
		NQN:                   nqn,
		Subtype:               SubtypeNVMe,
		PollerAffinity:        pollerAffinity,
		MaxConnectionsAllowed: maxConnections,
		Backend:               ctrlr,
		IOQueuePair:           qpair,
	}
}
