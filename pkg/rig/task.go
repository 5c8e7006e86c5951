package rig

import (
	"context"
	"sync"
	"time"

	"github.com/dougsko/rigd/pkg/logging"
)

// Config tunes a control task.
type Config struct {
	// QueueSize bounds the command queue. Submissions beyond it fail
	// immediately with a Busy error instead of blocking the caller.
	QueueSize int
	// Retry is the backoff policy for transient hardware failures.
	Retry Backoff
	// Polling is the background status poll policy.
	Polling Polling
	// EventBuffer is the per-subscriber event channel depth.
	EventBuffer int
}

// DefaultConfig returns the settings used when a field is zero.
func DefaultConfig() Config {
	return Config{
		QueueSize:   16,
		Retry:       DefaultBackoff(),
		Polling:     DefaultPolling(),
		EventBuffer: 32,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.QueueSize <= 0 {
		c.QueueSize = def.QueueSize
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry = def.Retry
	}
	if c.Polling.Active <= 0 {
		c.Polling = def.Polling
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = def.EventBuffer
	}
	return c
}

// stateCell is the latest-value snapshot published by the control task.
// Readers always get the most recent snapshot without talking to the
// task; watchers get a capacity-1 notification channel where a newer
// snapshot overwrites an unconsumed older one.
type stateCell struct {
	mu       sync.Mutex
	snap     Snapshot
	nextID   uint64
	watchers map[uint64]chan Snapshot
}

func newStateCell(initial Snapshot) *stateCell {
	return &stateCell{
		snap:     initial,
		watchers: make(map[uint64]chan Snapshot),
	}
}

func (c *stateCell) load() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap
}

func (c *stateCell) store(snap Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snap = snap
	for _, ch := range c.watchers {
		select {
		case ch <- snap:
		default:
			// Stale value still queued; replace it.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}

func (c *stateCell) watch() (uint64, <-chan Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	id := c.nextID
	ch := make(chan Snapshot, 1)
	ch <- c.snap
	c.watchers[id] = ch
	return id, ch
}

func (c *stateCell) unwatch(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ch, ok := c.watchers[id]; ok {
		delete(c.watchers, id)
		close(ch)
	}
}

// Task is the single owner of a backend. All hardware access funnels
// through its run loop: commands arrive on a bounded queue, background
// polls keep the status fresh, and every state change is published as a
// new snapshot plus an event. Nothing outside the loop ever touches the
// backend or the mutable status.
type Task struct {
	cfg     Config
	backend Backend
	handler *commandHandler

	machine     *machine
	status      Status
	ctl         control
	initialized bool
	planner     pollPlanner

	requests chan request
	cell     *stateCell
	emitter  *Emitter

	done chan struct{}
}

// NewTask wraps a backend in a control task. The task does not run
// until Run is called; until then submissions queue up (or fail Busy).
func NewTask(b Backend, cfg Config) *Task {
	cfg = cfg.withDefaults()
	t := &Task{
		cfg:      cfg,
		backend:  b,
		handler:  newCommandHandler(b, cfg.Retry),
		machine:  newMachine(),
		planner:  pollPlanner{policy: cfg.Polling},
		requests: make(chan request, cfg.QueueSize),
		emitter:  NewEmitter(cfg.EventBuffer),
		done:     make(chan struct{}),
	}
	t.cell = newStateCell(t.snapshot())
	return t
}

// Handle returns the caller-facing side of the task.
func (t *Task) Handle() *Handle {
	return &Handle{task: t}
}

func (t *Task) snapshot() Snapshot {
	return makeSnapshot(t.handler.info, t.status, t.ctl, t.machine, t.initialized)
}

// Run owns the backend until ctx is cancelled. It must be called
// exactly once, typically on its own goroutine. On return the backend
// is closed and every subscriber channel is closed.
func (t *Task) Run(ctx context.Context) {
	defer close(t.done)
	defer t.emitter.Close()
	defer t.backend.Close()

	logging.Infof("rig", "control task started for %s %s",
		t.handler.info.Manufacturer, t.handler.info.Model)

	timer := time.NewTimer(t.planner.next(false))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			t.drain()
			logging.Info("rig", "control task stopped")
			return

		case req := <-t.requests:
			t.serve(ctx, req)
			t.planner.activity()
			resetTimer(timer, t.planner.next(t.machine.state == StateTransmitting))

		case <-timer.C:
			t.poll(ctx)
			t.planner.polled()
			resetTimer(timer, t.planner.next(t.machine.state == StateTransmitting))
		}
	}
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}

// drain fails every queued request on shutdown so no caller waits on a
// reply that will never come.
func (t *Task) drain() {
	for {
		select {
		case req := <-t.requests:
			req.reply <- result{err: Executionf("rig control task shut down")}
		default:
			return
		}
	}
}

// serve runs one command through validate and execute, publishes the
// resulting snapshot, and replies to the caller. The reply channel has
// capacity 1 so the send cannot block on an abandoned caller.
func (t *Task) serve(ctx context.Context, req request) {
	prevState := t.machine.state
	prevStatus := t.status

	var err error
	if verr := t.handler.validate(req.cmd, t.machine, &t.status, &t.ctl); verr != nil {
		err = verr
	} else {
		err = t.handler.execute(ctx, req.cmd, t.machine, &t.status, &t.ctl)
	}

	if err == nil && req.cmd.Op == OpPowerOn {
		t.initialized = true
	}

	snap := t.snapshot()
	if t.machine.state != prevState || t.status != prevStatus || req.cmd.Op == OpPowerOn {
		t.cell.store(snap)
	}

	if err != nil {
		logging.Warnf("rig", "%s failed: %v", req.cmd.Op, err)
	} else {
		logging.Debugf("rig", "%s ok (state=%s)", req.cmd.Op, t.machine.state)
	}

	ev := newEvent(EventCommandDone, snap)
	ev.Op = req.cmd.Op.String()
	if err != nil {
		ev.Err = err.Error()
	}
	t.emitter.Emit(ev)
	if t.machine.state != prevState {
		t.emitter.Emit(newEvent(EventStateChanged, snap))
	} else if err == nil && t.status != prevStatus {
		t.emitter.Emit(newEvent(EventStatusChanged, snap))
	}

	req.reply <- result{snap: snap, err: err}
}

// poll refreshes hardware status in the background. A failed poll on an
// operational rig moves the machine to Error; the task itself survives
// and a later PowerOn recovers.
func (t *Task) poll(ctx context.Context) {
	if !t.machine.operational() {
		return
	}

	prevState := t.machine.state
	prevStatus := t.status
	if err := t.handler.refresh(ctx, &t.status, &t.ctl); err != nil {
		rerr := Classify(err)
		logging.Errorf("rig", "status poll failed: %v", rerr)
		t.machine.fail(rerr)
		snap := t.snapshot()
		t.cell.store(snap)
		ev := newEvent(EventPollFailed, snap)
		ev.Err = rerr.Error()
		t.emitter.Emit(ev)
		if t.machine.state != prevState {
			t.emitter.Emit(newEvent(EventStateChanged, snap))
		}
		return
	}

	if t.status != prevStatus {
		snap := t.snapshot()
		t.cell.store(snap)
		t.emitter.Emit(newEvent(EventStatusChanged, snap))
	}
}

// Done is closed once Run has returned.
func (t *Task) Done() <-chan struct{} {
	return t.done
}
