package session

import (
	"sync/atomic"

	"git.srvlab.io/whiskey/nvmf-targetd/internal/capsule"
)

// Connection represents one queue-pair attachment from a host (spec.md
// §3 "Connection"). It is pinned to exactly one poller for its lifetime
// (spec.md §5); only that poller's goroutine mutates it, so no locking
// is needed on the hot path — the SQ-head counter uses an atomic purely
// so Request.Complete (running on the same goroutine) and any
// diagnostic reader (metrics) agree without a data race detector false
// positive.
type Connection struct {
	transport capsule.CompletionSink
	queueType capsule.QueueType
	sqHead    atomic.Uint32

	// session transitions nil -> non-nil exactly once, on a successful
	// Connect, and never back (spec.md §3 invariant).
	session atomic.Pointer[Session]

	coreID int // poller core this connection is pinned to
}

// NewConnection creates a connection of the given queue type, pinned to
// coreID, with no session bound yet.
func NewConnection(transport capsule.CompletionSink, qt capsule.QueueType, coreID int) *Connection {
	return &Connection{transport: transport, queueType: qt, coreID: coreID}
}

// QueueType implements capsule.ConnectionInfo.
func (c *Connection) QueueType() capsule.QueueType { return c.queueType }

// SQHead implements capsule.ConnectionInfo.
func (c *Connection) SQHead() uint16 { return uint16(c.sqHead.Load()) }

// AdvanceSQHead moves the submission-queue head counter forward as the
// connection's poller consumes entries. The transport is responsible for
// calling this as it drains the submission queue; the dispatcher itself
// never advances it directly.
func (c *Connection) AdvanceSQHead(n uint16) {
	c.sqHead.Add(uint32(n))
}

// Session returns the bound session, or nil if Connect has not yet
// succeeded on this connection.
func (c *Connection) Session() *Session { return c.session.Load() }

// BindSession attaches sess to this connection. Per spec.md §3's
// invariant this must only be called once, by the Connect hand-off; it
// returns false if a session is already bound.
func (c *Connection) BindSession(sess *Session) bool {
	return c.session.CompareAndSwap(nil, sess)
}

// CoreID returns the poller core this connection is pinned to.
func (c *Connection) CoreID() int { return c.coreID }

// Transport returns the completion sink used to hand completed requests
// back to the transport.
func (c *Connection) Transport() capsule.CompletionSink { return c.transport }
