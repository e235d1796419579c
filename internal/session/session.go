package session

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"git.srvlab.io/whiskey/nvmf-targetd/internal/capsule"
	"git.srvlab.io/whiskey/nvmf-targetd/internal/subsystem"
)

// IdentifyControllerSize is the fixed size, in bytes, of the Identify
// Controller data structure (NVMe Base Specification).
const IdentifyControllerSize = 4096

// AERRequest is the narrow view of a pinned Async Event Request this
// package needs: enough to complete it later without importing
// internal/poller (which would create a cycle, since poller imports
// session).
type AERRequest interface {
	// CompleteAsEvent populates a successful AER completion and hands
	// the request back to the transport. Implemented by internal/poller
	// on top of *capsule.Request.
	CompleteAsEvent() error

	// CompleteCancelled hands the request back to the transport with
	// the fixed completion a pinned AER receives when its session tears
	// down before the event ever fires (spec.md §5 "Cancellation"),
	// distinguishing it from a genuine AER event.
	CompleteCancelled() error
}

// Session represents a host-attached controller instance (spec.md §3
// "Session"). A session binds to exactly one subsystem and is pinned,
// for its lifetime, to that subsystem's poller core.
type Session struct {
	mu sync.Mutex

	id                     string
	controllerID           uint16
	virtualControllerData  [IdentifyControllerSize]byte
	properties             *Registers
	maxConnectionsAllowed  uint16
	numConnections         uint16
	subsystem              *subsystem.Subsystem
	aer                    AERRequest
}

// New creates a session bound to subsys with the given connection limit
// and an initial Identify Controller payload. controllerID is assigned
// by the caller (the poller performing the Connect hand-off), per
// spec.md §4.3 "place Controller-ID in the success response."
func New(subsys *subsystem.Subsystem, maxConnections uint16, vcdata [IdentifyControllerSize]byte) *Session {
	return &Session{
		id:                    uuid.NewString(),
		virtualControllerData: vcdata,
		properties:            NewRegisters(DefaultCAP),
		maxConnectionsAllowed: maxConnections,
		subsystem:             subsys,
	}
}

// ID returns the session's opaque identifier; it is never placed on the
// wire.
func (s *Session) ID() string { return s.id }

// SetControllerID assigns the controller ID a Connect success response
// carries back to the host.
func (s *Session) SetControllerID(id uint16) { s.controllerID = id }

// ControllerID returns the assigned controller ID.
func (s *Session) ControllerID() uint16 { return s.controllerID }

// Properties returns the session's property register file (CAP/CC/CSTS).
func (s *Session) Properties() *Registers { return s.properties }

// Subsystem returns the subsystem this session is bound to.
func (s *Session) Subsystem() *subsystem.Subsystem { return s.subsystem }

// MaxConnectionsAllowed returns N, used by the virtualised Number of
// Queues feature (spec.md §4.4.2).
func (s *Session) MaxConnectionsAllowed() uint16 { return s.maxConnectionsAllowed }

// NumConnections returns the current connection count.
func (s *Session) NumConnections() uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.numConnections
}

// AddConnection increments the connection count. Returns an error if the
// session is already at its connection limit.
func (s *Session) AddConnection() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.numConnections >= s.maxConnectionsAllowed {
		return fmt.Errorf("session %s at max connections (%d)", s.id, s.maxConnectionsAllowed)
	}
	s.numConnections++
	return nil
}

// RemoveConnection decrements the connection count, e.g. on connection
// teardown.
func (s *Session) RemoveConnection() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.numConnections > 0 {
		s.numConnections--
	}
}

// VirtualControllerData returns the Identify Controller payload this
// session presents on the virtualised Identify path (spec.md §4.4.2).
func (s *Session) VirtualControllerData() [IdentifyControllerSize]byte {
	return s.virtualControllerData
}

// TryPinAER stores req as the session's pinned AER slot if empty
// (spec.md §3 invariant: at most one pending AER per session). Returns
// false if the slot is already occupied.
func (s *Session) TryPinAER(req AERRequest) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.aer != nil {
		return false
	}
	s.aer = req
	return true
}

// HasPinnedAER reports whether this session currently holds a pinned
// AER slot, for internal/metrics' AER-slot occupancy gauge.
func (s *Session) HasPinnedAER() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.aer != nil
}

// ReleaseAER clears the pinned AER slot and returns what was pinned, if
// anything. Used both by an external event firing the AER and by
// session teardown (spec.md §5 "Cancellation": "the session must release
// and complete the pinned request on teardown").
func (s *Session) ReleaseAER() AERRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	req := s.aer
	s.aer = nil
	return req
}
