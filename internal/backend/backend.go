// Package backend defines the backing NVMe driver external collaborator
// (spec.md §6): the passthrough target for admin and I/O commands that
// aren't virtualised by the dispatcher.
package backend

import "git.srvlab.io/whiskey/nvmf-targetd/internal/capsule"

// SubmitStatus is the outcome of handing a command to the backing
// driver for submission. It is not the eventual command completion —
// that arrives later via Callback.
type SubmitStatus int

const (
	SubmitOK SubmitStatus = iota
	SubmitFailed
)

// Callback is how the backing driver reports a completion for a
// previously submitted command (spec.md §6: "cb(cb_ctx, completion_capsule)").
// The passthrough caller's own closure carries forward whatever request
// identity it needs; this core never asks the backend to manage that for
// it (spec.md §9 "Passthrough completion context").
type Callback func(capsule.Completion)

// Controller is the backing physical controller's admin-command entry
// point (spec.md §6 `admin_raw`).
type Controller interface {
	SubmitAdmin(cmd capsule.Command, buf []byte, cb Callback) SubmitStatus
}

// QueuePair is the backing physical controller's I/O queue pair entry
// point (spec.md §6 `io_raw`).
type QueuePair interface {
	SubmitIO(cmd capsule.Command, buf []byte, cb Callback) SubmitStatus
}
