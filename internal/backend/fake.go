package backend

import (
	"sync"

	"git.srvlab.io/whiskey/nvmf-targetd/internal/capsule"
)

// FakeController is an in-process fake of the backing physical
// controller, used by dispatcher tests to exercise the passthrough
// protocol (spec.md §4.4.2 "Passthrough protocol") without a real NVMe
// device. It implements both Controller and QueuePair since a single
// backing controller serves both roles for a subsystem.
type FakeController struct {
	mu sync.Mutex

	// nextSubmitStatus is returned by the next Submit* call, then reset
	// to SubmitOK (test helper, mirrors pkg/rds/mock.go's SetError/
	// ClearError one-shot error injection).
	nextSubmitStatus SubmitStatus

	// completeImmediately, when true, invokes the callback synchronously
	// from within Submit* (simulating a backend that completes before
	// returning). When false, completions are queued and must be
	// drained with Drain().
	completeImmediately bool

	pending []func()

	adminSubmissions []capsule.Command
	ioSubmissions    []capsule.Command
}

// NewFakeController creates a fake controller that completes
// passthrough commands immediately by default.
func NewFakeController() *FakeController {
	return &FakeController{completeImmediately: true}
}

// SetNextSubmitStatus makes the next Submit* call (admin or I/O) return
// status, then reverts to SubmitOK.
func (f *FakeController) SetNextSubmitStatus(status SubmitStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextSubmitStatus = status
}

// SetCompleteImmediately toggles whether completions fire synchronously
// from Submit* (true) or must be drained explicitly via Drain (false),
// letting a test observe the done=false window a real asynchronous
// backend would leave open.
func (f *FakeController) SetCompleteImmediately(immediate bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completeImmediately = immediate
}

// Drain runs every queued completion callback, in submission order.
func (f *FakeController) Drain() {
	f.mu.Lock()
	pending := f.pending
	f.pending = nil
	f.mu.Unlock()

	for _, run := range pending {
		run()
	}
}

// SubmitAdmin implements Controller.
func (f *FakeController) SubmitAdmin(cmd capsule.Command, buf []byte, cb Callback) SubmitStatus {
	f.mu.Lock()
	f.adminSubmissions = append(f.adminSubmissions, cmd)
	status := f.nextSubmitStatus
	f.nextSubmitStatus = SubmitOK
	f.mu.Unlock()

	if status != SubmitOK {
		return status
	}
	f.complete(cmd, cb)
	return SubmitOK
}

// SubmitIO implements QueuePair.
func (f *FakeController) SubmitIO(cmd capsule.Command, buf []byte, cb Callback) SubmitStatus {
	f.mu.Lock()
	f.ioSubmissions = append(f.ioSubmissions, cmd)
	status := f.nextSubmitStatus
	f.nextSubmitStatus = SubmitOK
	f.mu.Unlock()

	if status != SubmitOK {
		return status
	}
	f.complete(cmd, cb)
	return SubmitOK
}

func (f *FakeController) complete(cmd capsule.Command, cb Callback) {
	run := func() {
		cb(capsule.Completion{CID: cmd.CID, Status: capsule.StatusSuccess})
	}

	f.mu.Lock()
	immediate := f.completeImmediately
	f.mu.Unlock()

	if immediate {
		run()
		return
	}

	f.mu.Lock()
	f.pending = append(f.pending, run)
	f.mu.Unlock()
}

// AdminSubmissions returns every admin command submitted so far (test helper).
func (f *FakeController) AdminSubmissions() []capsule.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]capsule.Command, len(f.adminSubmissions))
	copy(out, f.adminSubmissions)
	return out
}

// IOSubmissions returns every I/O command submitted so far (test helper).
func (f *FakeController) IOSubmissions() []capsule.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]capsule.Command, len(f.ioSubmissions))
	copy(out, f.ioSubmissions)
	return out
}
