package rig

import "context"

// Handle is the caller-facing side of a control task. It is safe for
// concurrent use; any number of goroutines may share one handle.
type Handle struct {
	task *Task
}

// Submit queues a command and waits for its reply. If the queue is full
// it fails immediately with a Busy error. If ctx expires first the
// command stays queued and will still execute; the caller gets a
// Timeout error and the eventual result is discarded.
func (h *Handle) Submit(ctx context.Context, cmd Command) (Snapshot, error) {
	req := request{cmd: cmd, reply: make(chan result, 1)}

	select {
	case h.task.requests <- req:
	default:
		return Snapshot{}, ErrBusy()
	}

	select {
	case res := <-req.reply:
		return res.snap, res.err
	case <-ctx.Done():
		return Snapshot{}, ErrReplyTimeout()
	case <-h.task.done:
		return Snapshot{}, Executionf("rig control task shut down")
	}
}

// Snapshot returns the latest published snapshot without touching the
// hardware or the control task.
func (h *Handle) Snapshot() Snapshot {
	return h.task.cell.load()
}

// Watch registers a latest-value watcher. The returned channel holds at
// most one snapshot; when the rig changes faster than the watcher
// reads, intermediate snapshots are skipped and only the newest is
// seen. The current snapshot is delivered immediately.
func (h *Handle) Watch() (uint64, <-chan Snapshot) {
	return h.task.cell.watch()
}

// Unwatch removes a watcher and closes its channel.
func (h *Handle) Unwatch(id uint64) {
	h.task.cell.unwatch(id)
}

// Subscribe registers an event listener. Unlike Watch, events are a
// stream: every occurrence is delivered in order unless the listener
// falls behind, in which case the oldest undelivered events are
// dropped.
func (h *Handle) Subscribe() (ListenerID, <-chan Event) {
	return h.task.emitter.Subscribe()
}

// Unsubscribe removes an event listener and closes its channel.
func (h *Handle) Unsubscribe(id ListenerID) {
	h.task.emitter.Unsubscribe(id)
}

// Info returns the static backend description.
func (h *Handle) Info() Info {
	return h.task.handler.info
}

// DroppedEvents reports how many events slow subscribers have missed.
func (h *Handle) DroppedEvents() uint64 {
	return h.task.emitter.Dropped()
}
