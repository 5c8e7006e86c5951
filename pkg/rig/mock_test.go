package rig

import (
	"context"
	"sync"
)

// fakeBackend is an in-memory Backend with fault injection for
// exercising the handler and the control task.
type fakeBackend struct {
	mu      sync.Mutex
	info    Info
	powered bool
	freq    uint64
	mode    Mode
	ptt     bool
	locked  bool
	limit   uint8
	signal  int

	failNext int
	failErr  error
	calls    []string
	freqLog  []uint64
	closed   bool
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		info: Info{
			Manufacturer: "Testcraft",
			Model:        "TC-100",
			Revision:     "1.0",
			Capabilities: Capabilities{
				Bands: []Band{
					{LowHz: 7_000_000, HighHz: 7_300_000, TXAllowed: true},
					{LowHz: 14_000_000, HighHz: 14_350_000, TXAllowed: true},
					{LowHz: 87_500_000, HighHz: 108_000_000, TXAllowed: false},
				},
				Modes:       []Mode{ModeLSB, ModeUSB, ModeCW, ModeFM},
				NumVFOs:     2,
				Lockable:    true,
				TX:          true,
				TXLimit:     true,
				VFOSwitch:   true,
				SignalMeter: true,
			},
		},
		freq:  14_070_000,
		mode:  ModeUSB,
		limit: 100,
	}
}

// failFor makes the next n hardware calls fail with err.
func (f *fakeBackend) failFor(n int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failNext = n
	f.failErr = err
}

func (f *fakeBackend) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

// freqHistory returns every frequency applied to the hardware, in the
// order it was applied.
func (f *fakeBackend) freqHistory() []uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]uint64, len(f.freqLog))
	copy(out, f.freqLog)
	return out
}

// touch records a call and consumes one injected failure if armed.
func (f *fakeBackend) touch(name string) error {
	f.calls = append(f.calls, name)
	if f.failNext > 0 {
		f.failNext--
		return f.failErr
	}
	return nil
}

func (f *fakeBackend) Info() Info { return f.info }

func (f *fakeBackend) PowerOn(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.touch("PowerOn"); err != nil {
		return err
	}
	f.powered = true
	return nil
}

func (f *fakeBackend) PowerOff(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.touch("PowerOff"); err != nil {
		return err
	}
	f.powered = false
	f.ptt = false
	return nil
}

func (f *fakeBackend) SetFreq(ctx context.Context, hz uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.touch("SetFreq"); err != nil {
		return err
	}
	f.freq = hz
	f.freqLog = append(f.freqLog, hz)
	return nil
}

func (f *fakeBackend) SetMode(ctx context.Context, m Mode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.touch("SetMode"); err != nil {
		return err
	}
	f.mode = m
	return nil
}

func (f *fakeBackend) SetPTT(ctx context.Context, on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.touch("SetPTT"); err != nil {
		return err
	}
	f.ptt = on
	return nil
}

func (f *fakeBackend) ToggleVFO(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.touch("ToggleVFO"); err != nil {
		return err
	}
	return nil
}

func (f *fakeBackend) Lock(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.touch("Lock"); err != nil {
		return err
	}
	f.locked = true
	return nil
}

func (f *fakeBackend) Unlock(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.touch("Unlock"); err != nil {
		return err
	}
	f.locked = false
	return nil
}

func (f *fakeBackend) TxLimit(ctx context.Context) (uint8, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.touch("TxLimit"); err != nil {
		return 0, err
	}
	return f.limit, nil
}

func (f *fakeBackend) SetTxLimit(ctx context.Context, limit uint8) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.touch("SetTxLimit"); err != nil {
		return err
	}
	f.limit = limit
	return nil
}

func (f *fakeBackend) RefreshState(ctx context.Context) (Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.touch("RefreshState"); err != nil {
		return Status{}, err
	}
	if !f.powered {
		return Status{}, Executionf("rig is powered off")
	}
	return Status{
		Freq:      Freq{Hz: f.freq},
		Mode:      f.mode,
		TxEnabled: f.ptt,
		Rx:        RxStatus{Signal: f.signal},
		Tx:        TxStatus{Limit: f.limit},
	}, nil
}

func (f *fakeBackend) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}
