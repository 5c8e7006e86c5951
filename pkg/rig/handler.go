package rig

import (
	"context"
	"time"
)

// commandHandler validates commands against the state machine and
// capabilities, executes them through the backend with retries, and
// applies the results to the status record. It is owned by the control
// task and shares the task's single-threaded discipline.
type commandHandler struct {
	backend Backend
	info    Info
	retry   Backoff

	// sleep is replaced in tests to avoid real backoff delays.
	sleep func(ctx context.Context, d time.Duration) error
}

func newCommandHandler(b Backend, retry Backoff) *commandHandler {
	return &commandHandler{
		backend: b,
		info:    b.Info(),
		retry:   retry,
		sleep:   sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// validate rejects a command before any hardware I/O happens. A nil
// return means the command may be executed.
func (h *commandHandler) validate(cmd Command, m *machine, st *Status, ctl *control) *Error {
	if err := m.canExecute(cmd.Op); err != nil {
		return err
	}

	caps := h.info.Capabilities

	switch cmd.Op {
	case OpSetFreq:
		if ctl.lock {
			return Validationf("rig is locked")
		}
		if cmd.Freq == 0 {
			return Validationf("frequency cannot be 0 Hz")
		}
		if len(caps.Bands) > 0 {
			if _, ok := BandFor(caps.Bands, cmd.Freq); !ok {
				return Validationf("frequency %d Hz is outside all supported bands", cmd.Freq)
			}
		}

	case OpSetMode:
		if ctl.lock {
			return Validationf("rig is locked")
		}
		if cmd.Mode == "" {
			return Validationf("mode cannot be empty")
		}
		if !modeSupported(caps.Modes, cmd.Mode) {
			return Validationf("mode %s is not supported by %s", cmd.Mode, h.info.Model)
		}

	case OpSetPTT:
		if cmd.PTT {
			if !caps.TX {
				return Validationf("backend %s does not support transmit", h.info.Model)
			}
			if b, ok := BandFor(caps.Bands, st.Freq.Hz); ok && !b.TXAllowed {
				return Validationf("transmit not allowed on %s at %d Hz", b.Name(), st.Freq.Hz)
			}
		}

	case OpToggleVFO:
		if ctl.lock {
			return Validationf("rig is locked")
		}
		if !caps.VFOSwitch {
			return Validationf("backend %s does not support VFO switching", h.info.Model)
		}

	case OpLock:
		if !caps.Lockable {
			return Validationf("backend %s does not support panel lock", h.info.Model)
		}

	case OpGetTxLimit, OpSetTxLimit:
		if !caps.TXLimit {
			return Validationf("backend %s does not support a TX limit", h.info.Model)
		}
	}

	return nil
}

// execute performs the hardware side of a command and, on success,
// applies the result to the status record and drives the state machine
// transition. On failure nothing is mutated.
func (h *commandHandler) execute(ctx context.Context, cmd Command, m *machine, st *Status, ctl *control) error {
	switch cmd.Op {
	case OpGetSnapshot:
		return nil

	case OpSetFreq:
		if err := h.withRetry(ctx, func(c context.Context) error {
			return h.backend.SetFreq(c, cmd.Freq)
		}); err != nil {
			return err
		}
		st.Freq = Freq{Hz: cmd.Freq}

	case OpSetMode:
		if err := h.withRetry(ctx, func(c context.Context) error {
			return h.backend.SetMode(c, cmd.Mode)
		}); err != nil {
			return err
		}
		st.Mode = cmd.Mode

	case OpSetPTT:
		// Idempotent: asking for the state we are already in succeeds
		// without touching hardware.
		if cmd.PTT == (m.state == StateTransmitting) {
			return nil
		}
		if err := h.withRetry(ctx, func(c context.Context) error {
			return h.backend.SetPTT(c, cmd.PTT)
		}); err != nil {
			return err
		}
		h.applyPTT(cmd.PTT, m, st, ctl)

	case OpPowerOn:
		if err := h.withRetry(ctx, h.backend.PowerOn); err != nil {
			return err
		}
		ctl.enabled = true
		if err := h.refresh(ctx, st, ctl); err != nil {
			ctl.enabled = false
			return err
		}
		m.to(StateReady)

	case OpPowerOff:
		if m.state == StateTransmitting {
			if err := h.withRetry(ctx, func(c context.Context) error {
				return h.backend.SetPTT(c, false)
			}); err != nil {
				return err
			}
			h.applyPTT(false, m, st, ctl)
		}
		if err := h.withRetry(ctx, h.backend.PowerOff); err != nil {
			return err
		}
		ctl.enabled = false
		st.TxEnabled = false
		m.to(StateDisconnected)

	case OpToggleVFO:
		if err := h.withRetry(ctx, h.backend.ToggleVFO); err != nil {
			return err
		}
		// The other VFO carries its own frequency and mode; read them
		// back rather than guessing.
		if err := h.refresh(ctx, st, ctl); err != nil {
			return err
		}

	case OpLock:
		if err := h.withRetry(ctx, h.backend.Lock); err != nil {
			return err
		}
		ctl.lock = true
		st.Lock = true

	case OpUnlock:
		if err := h.withRetry(ctx, h.backend.Unlock); err != nil {
			return err
		}
		ctl.lock = false
		st.Lock = false

	case OpGetTxLimit:
		var limit uint8
		if err := h.withRetry(ctx, func(c context.Context) error {
			var err error
			limit, err = h.backend.TxLimit(c)
			return err
		}); err != nil {
			return err
		}
		st.Tx.Limit = limit

	case OpSetTxLimit:
		if err := h.withRetry(ctx, func(c context.Context) error {
			return h.backend.SetTxLimit(c, cmd.Limit)
		}); err != nil {
			return err
		}
		st.Tx.Limit = cmd.Limit
	}

	return nil
}

// applyPTT records a PTT change. Dropping out of transmit zeroes the TX
// meters so stale power/SWR readings never outlive the transmission.
func (h *commandHandler) applyPTT(on bool, m *machine, st *Status, ctl *control) {
	st.TxEnabled = on
	st.Lock = ctl.lock
	if on {
		m.to(StateTransmitting)
	} else {
		st.Tx.Power = 0
		st.Tx.SWR = 0
		st.Tx.ALC = 0
		m.to(StateReady)
	}
}

// refresh reads fresh hardware state and merges it into the status
// record. PTT and panel lock stay authoritative on our side: they are
// commanded states the machine tracks, not meter readings.
func (h *commandHandler) refresh(ctx context.Context, st *Status, ctl *control) error {
	var fresh Status
	if err := h.withRetry(ctx, func(c context.Context) error {
		var err error
		fresh, err = h.backend.RefreshState(c)
		return err
	}); err != nil {
		return err
	}

	st.Freq = fresh.Freq
	st.Mode = fresh.Mode
	st.Rx = fresh.Rx
	st.Tx.Power = fresh.Tx.Power
	st.Tx.SWR = fresh.Tx.SWR
	st.Tx.ALC = fresh.Tx.ALC
	if fresh.Tx.Limit != 0 {
		st.Tx.Limit = fresh.Tx.Limit
	}
	st.Lock = ctl.lock
	return nil
}

// withRetry runs one hardware operation under the backoff policy.
// Validation and decode failures propagate immediately; transient
// execution failures are retried until the policy is exhausted, then
// the last error is returned.
func (h *commandHandler) withRetry(ctx context.Context, op func(context.Context) error) error {
	var last *Error
	for attempt := 1; ; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}
		rerr := Classify(err)
		if !rerr.Retryable() {
			return rerr
		}
		last = rerr
		if attempt >= h.retry.MaxAttempts {
			return last
		}
		if err := h.sleep(ctx, h.retry.Delay(attempt)); err != nil {
			return last
		}
	}
}
