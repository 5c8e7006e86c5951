package rig

import (
	"context"
	"errors"
	"testing"
	"time"
)

// quietConfig keeps the background poll out of the way so tests see
// only their own commands.
func quietConfig() Config {
	return Config{
		QueueSize: 8,
		Retry: Backoff{
			Initial:     time.Millisecond,
			Max:         5 * time.Millisecond,
			MaxAttempts: 3,
		},
		Polling: Polling{
			Active:    time.Hour,
			Idle:      time.Hour,
			IdleAfter: 2,
		},
		EventBuffer: 32,
	}
}

func startTask(t *testing.T, fb *fakeBackend, cfg Config) *Handle {
	t.Helper()
	task := NewTask(fb, cfg)
	ctx, cancel := context.WithCancel(context.Background())
	go task.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-task.Done()
	})
	return task.Handle()
}

func TestTaskPowerOnThenTune(t *testing.T) {
	fb := newFakeBackend()
	h := startTask(t, fb, quietConfig())
	ctx := context.Background()

	snap, err := h.Submit(ctx, PowerOn())
	if err != nil {
		t.Fatalf("PowerOn failed: %v", err)
	}
	if snap.State != StateReady {
		t.Fatalf("Expected Ready after power on, got %s", snap.StateName)
	}
	if !snap.Initialized || !snap.Enabled {
		t.Errorf("Expected initialized and enabled snapshot, got %+v", snap)
	}
	if snap.Status.Freq.Hz != 14_070_000 {
		t.Errorf("Expected initial frequency read back from hardware, got %d", snap.Status.Freq.Hz)
	}

	snap, err = h.Submit(ctx, SetFreq(7_040_000))
	if err != nil {
		t.Fatalf("SetFreq failed: %v", err)
	}
	if snap.Status.Freq.Hz != 7_040_000 {
		t.Errorf("Expected 7040 kHz, got %d Hz", snap.Status.Freq.Hz)
	}
	if snap.Band == "" {
		t.Error("Expected a band label for an in-band frequency")
	}

	// The published snapshot matches the reply.
	got := h.Snapshot()
	if got.State != snap.State || got.Status != snap.Status || got.Band != snap.Band {
		t.Errorf("Expected published snapshot to match reply\n got: %+v\nwant: %+v", got, snap)
	}
}

func TestTaskRejectsWhileDisconnected(t *testing.T) {
	fb := newFakeBackend()
	h := startTask(t, fb, quietConfig())
	ctx := context.Background()

	_, err := h.Submit(ctx, SetFreq(14_070_000))
	var rerr *Error
	if !errors.As(err, &rerr) || rerr.Kind != KindValidation {
		t.Fatalf("Expected Validation error while disconnected, got %v", err)
	}

	// No hardware was touched.
	if calls := fb.callLog(); len(calls) != 0 {
		t.Errorf("Expected no hardware calls, got %v", calls)
	}

	// Power on and the same command succeeds.
	if _, err := h.Submit(ctx, PowerOn()); err != nil {
		t.Fatalf("PowerOn failed: %v", err)
	}
	if _, err := h.Submit(ctx, SetFreq(14_070_000)); err != nil {
		t.Errorf("Expected SetFreq accepted after power on, got %v", err)
	}
}

func TestTaskSerializesCommands(t *testing.T) {
	fb := newFakeBackend()
	h := startTask(t, fb, quietConfig())
	ctx := context.Background()

	if _, err := h.Submit(ctx, PowerOn()); err != nil {
		t.Fatalf("PowerOn failed: %v", err)
	}

	// Submissions from one goroutine execute strictly in order.
	freqs := []uint64{7_010_000, 7_020_000, 7_030_000, 14_100_000, 14_200_000}
	for _, hz := range freqs {
		if _, err := h.Submit(ctx, SetFreq(hz)); err != nil {
			t.Fatalf("SetFreq(%d) failed: %v", hz, err)
		}
	}

	if got := h.Snapshot().Status.Freq.Hz; got != 14_200_000 {
		t.Errorf("Expected last submitted frequency to win, got %d", got)
	}
}

func TestTaskAppliesConcurrentSubmissionsInArrivalOrder(t *testing.T) {
	fb := newFakeBackend()
	task := NewTask(fb, quietConfig())
	h := task.Handle()

	// Queue commands from separate callers before the task runs, pinning
	// their arrival order by watching the queue depth between submits.
	errs := make(chan error, 3)
	submit := func(cmd Command) {
		go func() {
			_, err := h.Submit(context.Background(), cmd)
			errs <- err
		}()
	}
	waitDepth := func(n int) {
		t.Helper()
		deadline := time.After(2 * time.Second)
		for len(task.requests) != n {
			select {
			case <-deadline:
				t.Fatalf("Queue never reached depth %d", n)
			case <-time.After(time.Millisecond):
			}
		}
	}

	submit(PowerOn())
	waitDepth(1)
	submit(SetFreq(7_010_000))
	waitDepth(2)
	submit(SetFreq(14_100_000))
	waitDepth(3)

	ctx, cancel := context.WithCancel(context.Background())
	go task.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-task.Done()
	})

	for i := 0; i < 3; i++ {
		if err := <-errs; err != nil {
			t.Fatalf("Queued command failed: %v", err)
		}
	}

	want := []uint64{7_010_000, 14_100_000}
	got := fb.freqHistory()
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("Expected frequencies applied in arrival order %v, got %v", want, got)
	}
	if hz := h.Snapshot().Status.Freq.Hz; hz != 14_100_000 {
		t.Errorf("Expected final snapshot to carry the last arrival, got %d", hz)
	}
}

func TestTaskRetriesTransientThenSucceeds(t *testing.T) {
	fb := newFakeBackend()
	h := startTask(t, fb, quietConfig())
	ctx := context.Background()

	if _, err := h.Submit(ctx, PowerOn()); err != nil {
		t.Fatalf("PowerOn failed: %v", err)
	}

	fb.failFor(2, errors.New("CAT timeout"))
	snap, err := h.Submit(ctx, SetFreq(7_100_000))
	if err != nil {
		t.Fatalf("Expected retry to recover, got %v", err)
	}
	if snap.Status.Freq.Hz != 7_100_000 {
		t.Errorf("Expected frequency applied after retries, got %d", snap.Status.Freq.Hz)
	}
	if snap.State != StateReady {
		t.Errorf("Expected Ready after recovered command, got %s", snap.StateName)
	}
}

func TestTaskPollFailureEntersErrorState(t *testing.T) {
	fb := newFakeBackend()
	cfg := quietConfig()
	cfg.Polling = Polling{
		Active:    5 * time.Millisecond,
		Idle:      50 * time.Millisecond,
		IdleAfter: 2,
	}
	h := startTask(t, fb, cfg)
	ctx := context.Background()

	if _, err := h.Submit(ctx, PowerOn()); err != nil {
		t.Fatalf("PowerOn failed: %v", err)
	}

	id, events := h.Subscribe()
	defer h.Unsubscribe(id)

	// Every hardware call fails from here on; the poll loop exhausts its
	// retries and the machine drops to Error.
	fb.failFor(1000, errors.New("serial port gone"))

	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-events:
			if ev.Type == EventPollFailed {
				if ev.Err == "" {
					t.Error("Expected poll failure event to carry an error")
				}
				if snap := h.Snapshot(); snap.State != StateError {
					t.Errorf("Expected Error state after poll failure, got %s", snap.StateName)
				}
				// Commands other than power transitions are now rejected.
				fb.failFor(0, nil)
				_, err := h.Submit(ctx, SetFreq(7_040_000))
				var rerr *Error
				if !errors.As(err, &rerr) || rerr.Kind != KindValidation {
					t.Errorf("Expected Validation rejection in Error state, got %v", err)
				}
				// PowerOn recovers.
				snap, err := h.Submit(ctx, PowerOn())
				if err != nil {
					t.Fatalf("Expected PowerOn to recover from Error, got %v", err)
				}
				if snap.State != StateReady {
					t.Errorf("Expected Ready after recovery, got %s", snap.StateName)
				}
				return
			}
		case <-deadline:
			t.Fatal("Timed out waiting for poll failure event")
		}
	}
}

func TestTaskBusyWhenQueueFull(t *testing.T) {
	fb := newFakeBackend()
	cfg := quietConfig()
	cfg.QueueSize = 1
	task := NewTask(fb, cfg)
	h := task.Handle()

	// The task is not running, so the first request fills the queue and
	// the second bounces immediately.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := h.Submit(ctx, GetSnapshot()); err == nil {
		t.Fatal("Expected timeout with no task running")
	}

	_, err := h.Submit(context.Background(), GetSnapshot())
	var rerr *Error
	if !errors.As(err, &rerr) || rerr.Kind != KindBusy {
		t.Fatalf("Expected Busy error on a full queue, got %v", err)
	}
}

func TestTaskCallerTimeoutDoesNotLoseCommand(t *testing.T) {
	fb := newFakeBackend()
	h := startTask(t, fb, quietConfig())

	if _, err := h.Submit(context.Background(), PowerOn()); err != nil {
		t.Fatalf("PowerOn failed: %v", err)
	}

	// An already-expired context abandons the reply but the command
	// still executes server-side.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := h.Submit(ctx, SetFreq(7_040_000))
	var rerr *Error
	if !errors.As(err, &rerr) || rerr.Kind != KindTimeout {
		t.Fatalf("Expected Timeout error, got %v", err)
	}

	// Wait for the abandoned command to land.
	deadline := time.After(2 * time.Second)
	for h.Snapshot().Status.Freq.Hz != 7_040_000 {
		select {
		case <-deadline:
			t.Fatal("Abandoned command never executed")
		case <-time.After(time.Millisecond):
		}
	}
}

func TestTaskWatchSeesLatestValue(t *testing.T) {
	fb := newFakeBackend()
	h := startTask(t, fb, quietConfig())
	ctx := context.Background()

	id, ch := h.Watch()
	defer h.Unwatch(id)

	// The current snapshot is delivered up front.
	first := <-ch
	if first.State != StateDisconnected {
		t.Fatalf("Expected initial Disconnected snapshot, got %s", first.StateName)
	}

	if _, err := h.Submit(ctx, PowerOn()); err != nil {
		t.Fatalf("PowerOn failed: %v", err)
	}
	for _, hz := range []uint64{7_010_000, 7_020_000, 7_030_000} {
		if _, err := h.Submit(ctx, SetFreq(hz)); err != nil {
			t.Fatalf("SetFreq failed: %v", err)
		}
	}

	// However many updates were coalesced, the newest one is what the
	// watcher reads.
	deadline := time.After(2 * time.Second)
	for {
		select {
		case snap := <-ch:
			if snap.Status.Freq.Hz == 7_030_000 {
				return
			}
		case <-deadline:
			t.Fatal("Watcher never saw the final snapshot")
		}
	}
}

func TestTaskShutdownClosesSubscribers(t *testing.T) {
	fb := newFakeBackend()
	task := NewTask(fb, quietConfig())
	ctx, cancel := context.WithCancel(context.Background())
	go task.Run(ctx)

	h := task.Handle()
	id, events := h.Subscribe()
	_ = id

	cancel()
	<-task.Done()

	if _, ok := <-events; ok {
		// Drain anything buffered before the close.
		for range events {
		}
	}

	if !fb.closed {
		t.Error("Expected backend closed on shutdown")
	}

	_, err := h.Submit(context.Background(), GetSnapshot())
	if err == nil {
		t.Error("Expected submissions after shutdown to fail")
	}
}
