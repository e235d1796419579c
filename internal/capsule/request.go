package capsule

import (
	"fmt"

	"k8s.io/klog/v2"
)

// CompletionSink is the transport's completion hook (spec.md §6,
// `req_complete`). The core never frees a Request; it only hands the
// populated completion back through this interface.
type CompletionSink interface {
	CompleteRequest(*Request) error
}

// ConnectionInfo is the subset of connection state a Request needs that
// does not create an import cycle back into internal/session: the
// queue-type tag and a live SQ-head counter. internal/session.Connection
// implements this.
type ConnectionInfo interface {
	QueueType() QueueType
	SQHead() uint16
}

// Request ties together a received command, its buffers, the issuing
// connection, and the response slot (spec.md §3 "Request"). A Request's
// Connection reference is immutable for its lifetime; only the owning
// poller goroutine ever mutates a Request.
type Request struct {
	Connection ConnectionInfo
	Command    Command
	Completion Completion
	Data       []byte

	sink TransportState
}

// TransportState is opaque, transport-owned state a Request carries on
// behalf of the transport (buffer registration handles, wire framing
// bookkeeping, etc). The core never inspects it.
type TransportState any

// NewRequest constructs a Request for a just-received command capsule.
func NewRequest(conn ConnectionInfo, cmd Command, data []byte, transportState TransportState) *Request {
	return &Request{
		Connection: conn,
		Command:    cmd,
		Completion: Completion{CID: cmd.CID},
		Data:       data,
		sink:       transportState,
	}
}

// TransportState returns the opaque transport-owned state attached at
// construction time.
func (r *Request) TransportState() TransportState { return r.sink }

// Complete finalizes the response capsule and hands it back through the
// transport's completion sink (spec.md §4.1).
//
// Preconditions: r.Completion.Status and any command-specific completion
// dwords have already been populated by the handler that decided this
// request is done.
//
// Effects: sqid is set to 0, the phase bit is cleared, the connection's
// current SQ-head is copied into the response, the command identifier is
// copied back, and sink.CompleteRequest is invoked. The request is
// considered consumed regardless of the sink's return value.
func (r *Request) Complete(sink CompletionSink) error {
	r.Completion.SQID = 0
	r.Completion.Phase = false
	r.Completion.SQHead = r.Connection.SQHead()
	r.Completion.CID = r.Command.CID

	if err := sink.CompleteRequest(r); err != nil {
		klog.Errorf("transport completion failed for cid=%d: %v", r.Command.CID, err)
		return fmt.Errorf("transport completion failed: %w", err)
	}
	return nil
}
