package backend

import (
	"context"
	"sync"

	"github.com/dougsko/rigd/pkg/rig"
)

// Dummy is an in-memory rig. It keeps full state, supports every
// capability, and can be armed to fail, which makes it the backend of
// choice for development and for end-to-end tests of the control task.
type Dummy struct {
	mu      sync.Mutex
	powered bool
	freq    uint64
	mode    rig.Mode
	ptt     bool
	locked  bool
	limit   uint8
	signal  int
	vfoSide int
	vfoFreq [2]uint64
	vfoMode [2]rig.Mode

	failNext int
	failErr  error
}

// NewDummy returns a powered-off dummy rig parked on 20m.
func NewDummy() *Dummy {
	d := &Dummy{
		freq:  14_070_000,
		mode:  rig.ModeUSB,
		limit: 100,
	}
	d.vfoFreq = [2]uint64{14_070_000, 7_040_000}
	d.vfoMode = [2]rig.Mode{rig.ModeUSB, rig.ModeLSB}
	return d
}

func (d *Dummy) Info() rig.Info {
	return rig.Info{
		Manufacturer: "rigd",
		Model:        "dummy",
		Revision:     "1",
		Capabilities: rig.Capabilities{
			Bands: []rig.Band{
				{LowHz: 1_800_000, HighHz: 2_000_000, TXAllowed: true},
				{LowHz: 3_500_000, HighHz: 4_000_000, TXAllowed: true},
				{LowHz: 7_000_000, HighHz: 7_300_000, TXAllowed: true},
				{LowHz: 14_000_000, HighHz: 14_350_000, TXAllowed: true},
				{LowHz: 21_000_000, HighHz: 21_450_000, TXAllowed: true},
				{LowHz: 28_000_000, HighHz: 29_700_000, TXAllowed: true},
				{LowHz: 87_500_000, HighHz: 108_000_000, TXAllowed: false},
			},
			Modes:       rig.KnownModes,
			NumVFOs:     2,
			Lockable:    true,
			TX:          true,
			TXLimit:     true,
			VFOSwitch:   true,
			SignalMeter: true,
		},
	}
}

// FailNext arms the dummy so its next n hardware calls fail with err.
func (d *Dummy) FailNext(n int, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failNext = n
	d.failErr = err
}

// SetSignal sets the simulated S-meter reading.
func (d *Dummy) SetSignal(sig int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.signal = sig
}

func (d *Dummy) maybeFail() error {
	if d.failNext > 0 {
		d.failNext--
		return d.failErr
	}
	return nil
}

func (d *Dummy) PowerOn(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.maybeFail(); err != nil {
		return err
	}
	d.powered = true
	return nil
}

func (d *Dummy) PowerOff(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.maybeFail(); err != nil {
		return err
	}
	d.powered = false
	d.ptt = false
	return nil
}

func (d *Dummy) SetFreq(ctx context.Context, hz uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.maybeFail(); err != nil {
		return err
	}
	d.freq = hz
	d.vfoFreq[d.vfoSide] = hz
	return nil
}

func (d *Dummy) SetMode(ctx context.Context, m rig.Mode) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.maybeFail(); err != nil {
		return err
	}
	d.mode = m
	d.vfoMode[d.vfoSide] = m
	return nil
}

func (d *Dummy) SetPTT(ctx context.Context, on bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.maybeFail(); err != nil {
		return err
	}
	d.ptt = on
	return nil
}

func (d *Dummy) ToggleVFO(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.maybeFail(); err != nil {
		return err
	}
	d.vfoSide = 1 - d.vfoSide
	d.freq = d.vfoFreq[d.vfoSide]
	d.mode = d.vfoMode[d.vfoSide]
	return nil
}

func (d *Dummy) Lock(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.maybeFail(); err != nil {
		return err
	}
	d.locked = true
	return nil
}

func (d *Dummy) Unlock(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.maybeFail(); err != nil {
		return err
	}
	d.locked = false
	return nil
}

func (d *Dummy) TxLimit(ctx context.Context) (uint8, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.maybeFail(); err != nil {
		return 0, err
	}
	return d.limit, nil
}

func (d *Dummy) SetTxLimit(ctx context.Context, limit uint8) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.maybeFail(); err != nil {
		return err
	}
	d.limit = limit
	return nil
}

func (d *Dummy) RefreshState(ctx context.Context) (rig.Status, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.maybeFail(); err != nil {
		return rig.Status{}, err
	}
	if !d.powered {
		return rig.Status{}, rig.Executionf("dummy rig is powered off")
	}
	st := rig.Status{
		Freq:      rig.Freq{Hz: d.freq},
		Mode:      d.mode,
		TxEnabled: d.ptt,
		Lock:      d.locked,
		Rx:        rig.RxStatus{Signal: d.signal},
		Tx:        rig.TxStatus{Limit: d.limit},
	}
	if d.ptt {
		// Fake plausible TX meters proportional to the limit.
		st.Tx.Power = d.limit
		st.Tx.SWR = 1.2
		st.Tx.ALC = 20
	}
	return st, nil
}

func (d *Dummy) Close() error { return nil }
