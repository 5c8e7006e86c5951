package rig

import (
	"context"
	"errors"
	"testing"
	"time"
)

// newTestHandler returns a handler whose backoff sleeps are recorded
// instead of slept.
func newTestHandler(b Backend, attempts int) (*commandHandler, *[]time.Duration) {
	h := newCommandHandler(b, Backoff{
		Initial:     100 * time.Millisecond,
		Max:         2 * time.Second,
		MaxAttempts: attempts,
	})
	var slept []time.Duration
	h.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return h, &slept
}

func readyHandler(t *testing.T, fb *fakeBackend) (*commandHandler, *machine, *Status, *control) {
	t.Helper()
	h, _ := newTestHandler(fb, 3)
	m := newMachine()
	st := &Status{}
	ctl := &control{}
	if err := h.execute(context.Background(), PowerOn(), m, st, ctl); err != nil {
		t.Fatalf("PowerOn failed: %v", err)
	}
	return h, m, st, ctl
}

func TestValidateRejectsWhileLocked(t *testing.T) {
	fb := newFakeBackend()
	h, m, st, ctl := readyHandler(t, fb)
	ctl.lock = true

	for _, cmd := range []Command{SetFreq(14_100_000), SetMode(ModeCW), ToggleVFO()} {
		err := h.validate(cmd, m, st, ctl)
		if err == nil {
			t.Errorf("Expected %s rejected while locked", cmd.Op)
			continue
		}
		if err.Kind != KindValidation {
			t.Errorf("Expected Validation error for %s, got %s", cmd.Op, err.Kind)
		}
	}

	// Unlock and snapshot reads stay allowed.
	if err := h.validate(Unlock(), m, st, ctl); err != nil {
		t.Errorf("Expected Unlock allowed while locked, got %v", err)
	}
	if err := h.validate(GetSnapshot(), m, st, ctl); err != nil {
		t.Errorf("Expected GetSnapshot allowed while locked, got %v", err)
	}
}

func TestValidateBandBounds(t *testing.T) {
	fb := newFakeBackend()
	h, m, st, ctl := readyHandler(t, fb)

	if err := h.validate(SetFreq(14_070_000), m, st, ctl); err != nil {
		t.Errorf("Expected in-band frequency accepted, got %v", err)
	}
	if err := h.validate(SetFreq(21_000_000), m, st, ctl); err == nil {
		t.Error("Expected out-of-band frequency rejected")
	}
	if err := h.validate(SetFreq(0), m, st, ctl); err == nil {
		t.Error("Expected zero frequency rejected")
	}
}

func TestValidateTXOnBroadcastBand(t *testing.T) {
	fb := newFakeBackend()
	h, m, st, ctl := readyHandler(t, fb)

	// Park on the receive-only broadcast band first.
	if err := h.execute(context.Background(), SetFreq(100_000_000), m, st, ctl); err != nil {
		t.Fatalf("SetFreq failed: %v", err)
	}

	err := h.validate(SetPTT(true), m, st, ctl)
	if err == nil {
		t.Fatal("Expected PTT rejected on a receive-only band")
	}
	if err.Kind != KindValidation {
		t.Errorf("Expected Validation error, got %s", err.Kind)
	}

	// PTT off never needs a TX-capable band.
	if err := h.validate(SetPTT(false), m, st, ctl); err != nil {
		t.Errorf("Expected PTT off accepted, got %v", err)
	}
}

func TestValidateUnsupportedMode(t *testing.T) {
	fb := newFakeBackend()
	h, m, st, ctl := readyHandler(t, fb)

	if err := h.validate(SetMode(ModeCW), m, st, ctl); err != nil {
		t.Errorf("Expected supported mode accepted, got %v", err)
	}
	if err := h.validate(SetMode(ModePKT), m, st, ctl); err == nil {
		t.Error("Expected unsupported mode rejected")
	}
}

func TestExecutePTTOffZeroesMeters(t *testing.T) {
	fb := newFakeBackend()
	h, m, st, ctl := readyHandler(t, fb)

	if err := h.execute(context.Background(), SetPTT(true), m, st, ctl); err != nil {
		t.Fatalf("PTT on failed: %v", err)
	}
	if m.state != StateTransmitting {
		t.Fatalf("Expected Transmitting, got %s", m.state)
	}

	// Simulate meter readings picked up while transmitting.
	st.Tx.Power = 80
	st.Tx.SWR = 1.4
	st.Tx.ALC = 30

	if err := h.execute(context.Background(), SetPTT(false), m, st, ctl); err != nil {
		t.Fatalf("PTT off failed: %v", err)
	}
	if m.state != StateReady {
		t.Errorf("Expected Ready after PTT off, got %s", m.state)
	}
	if st.Tx.Power != 0 || st.Tx.SWR != 0 || st.Tx.ALC != 0 {
		t.Errorf("Expected TX meters zeroed, got %+v", st.Tx)
	}
	if st.Tx.Limit == 0 {
		t.Error("Expected TX limit to survive PTT off")
	}
}

func TestExecutePTTIdempotent(t *testing.T) {
	fb := newFakeBackend()
	h, m, st, ctl := readyHandler(t, fb)

	before := len(fb.callLog())
	if err := h.execute(context.Background(), SetPTT(false), m, st, ctl); err != nil {
		t.Fatalf("Expected redundant PTT off to succeed, got %v", err)
	}
	if got := len(fb.callLog()); got != before {
		t.Errorf("Expected no hardware calls for redundant PTT off, got %d extra", got-before)
	}
	if m.state != StateReady {
		t.Errorf("Expected state unchanged, got %s", m.state)
	}
}

func TestExecuteRetriesTransientFailures(t *testing.T) {
	fb := newFakeBackend()
	h, m, st, ctl := readyHandler(t, fb)
	slept := &[]time.Duration{}
	h.sleep = func(ctx context.Context, d time.Duration) error {
		*slept = append(*slept, d)
		return nil
	}

	fb.failFor(2, errors.New("timeout waiting for ack"))
	if err := h.execute(context.Background(), SetFreq(7_040_000), m, st, ctl); err != nil {
		t.Fatalf("Expected third attempt to succeed, got %v", err)
	}
	if st.Freq.Hz != 7_040_000 {
		t.Errorf("Expected frequency applied, got %d", st.Freq.Hz)
	}
	if len(*slept) != 2 {
		t.Fatalf("Expected 2 backoff sleeps, got %d", len(*slept))
	}
	if (*slept)[0] != 100*time.Millisecond || (*slept)[1] != 200*time.Millisecond {
		t.Errorf("Expected exponential delays 100ms/200ms, got %v", *slept)
	}
}

func TestExecuteExhaustsRetries(t *testing.T) {
	fb := newFakeBackend()
	h, m, st, ctl := readyHandler(t, fb)

	fb.failFor(10, errors.New("no response"))
	err := h.execute(context.Background(), SetFreq(7_040_000), m, st, ctl)
	if err == nil {
		t.Fatal("Expected failure once retries are exhausted")
	}
	var rerr *Error
	if !errors.As(err, &rerr) || rerr.Kind != KindExecution {
		t.Errorf("Expected Execution error, got %v", err)
	}
	if st.Freq.Hz == 7_040_000 {
		t.Error("Expected frequency unchanged after failure")
	}
}

func TestExecuteDoesNotRetryDecodeErrors(t *testing.T) {
	fb := newFakeBackend()
	h, m, st, ctl := readyHandler(t, fb)

	fb.failFor(10, Decodef("garbled frame"))
	if err := h.execute(context.Background(), SetFreq(7_040_000), m, st, ctl); err == nil {
		t.Fatal("Expected decode failure to propagate")
	}

	// One SetFreq attempt, no retries.
	setFreqs := 0
	for _, c := range fb.callLog() {
		if c == "SetFreq" {
			setFreqs++
		}
	}
	if setFreqs != 1 {
		t.Errorf("Expected exactly 1 SetFreq attempt, got %d", setFreqs)
	}
	if st.Freq.Hz == 7_040_000 {
		t.Error("Expected frequency unchanged after decode failure")
	}
	if m.state != StateReady {
		t.Errorf("Expected machine still Ready, got %s", m.state)
	}
}

func TestExecutePowerOffFromTransmit(t *testing.T) {
	fb := newFakeBackend()
	h, m, st, ctl := readyHandler(t, fb)

	if err := h.execute(context.Background(), SetPTT(true), m, st, ctl); err != nil {
		t.Fatalf("PTT on failed: %v", err)
	}
	if err := h.execute(context.Background(), PowerOff(), m, st, ctl); err != nil {
		t.Fatalf("PowerOff failed: %v", err)
	}

	if m.state != StateDisconnected {
		t.Errorf("Expected Disconnected, got %s", m.state)
	}
	if st.TxEnabled {
		t.Error("Expected TX disengaged by power off")
	}
	if ctl.enabled {
		t.Error("Expected control disabled")
	}

	// PTT must drop before power is cut.
	log := fb.callLog()
	pttOff, powerOff := -1, -1
	for i, c := range log {
		switch c {
		case "SetPTT":
			pttOff = i
		case "PowerOff":
			powerOff = i
		}
	}
	if pttOff == -1 || powerOff == -1 || pttOff > powerOff {
		t.Errorf("Expected SetPTT before PowerOff, call log: %v", log)
	}
}
