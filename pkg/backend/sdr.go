package backend

import (
	"context"
	"math"
	"math/cmplx"
	"math/rand"
	"sync"

	"github.com/dougsko/rigd/pkg/rig"
	"github.com/mjibson/go-dsp/fft"
)

// IQSource supplies blocks of complex baseband samples. Real sources
// wrap an SDR driver; tests and the built-in demo use NoiseSource.
type IQSource interface {
	// ReadIQ fills buf and returns the number of samples written.
	ReadIQ(ctx context.Context, buf []complex128) (int, error)
	Close() error
}

// Tuner is implemented by IQ sources whose center frequency can move.
type Tuner interface {
	Tune(hz uint64) error
}

const sdrBlockSize = 1024

// SDR is a receive-only backend. It carries no CAT link; frequency and
// mode are bookkeeping, and the signal meter is estimated from the
// strongest FFT bin of the latest IQ block.
type SDR struct {
	mu      sync.Mutex
	src     IQSource
	powered bool
	freq    uint64
	mode    rig.Mode
	block   []complex128
}

// NewSDR wraps an IQ source. The source is closed with the backend.
func NewSDR(src IQSource) *SDR {
	return &SDR{
		src:   src,
		freq:  14_070_000,
		mode:  rig.ModeUSB,
		block: make([]complex128, sdrBlockSize),
	}
}

func (s *SDR) Info() rig.Info {
	return rig.Info{
		Manufacturer: "rigd",
		Model:        "sdr",
		Capabilities: rig.Capabilities{
			Bands: []rig.Band{
				{LowHz: 100_000, HighHz: 2_000_000_000, TXAllowed: false},
			},
			Modes:       rig.KnownModes,
			NumVFOs:     1,
			SignalMeter: true,
		},
	}
}

func (s *SDR) PowerOn(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.powered = true
	return nil
}

func (s *SDR) PowerOff(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.powered = false
	return nil
}

func (s *SDR) SetFreq(ctx context.Context, hz uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.src.(Tuner); ok {
		if err := t.Tune(hz); err != nil {
			return rig.Executionf("tuning source to %d Hz: %v", hz, err)
		}
	}
	s.freq = hz
	return nil
}

func (s *SDR) SetMode(ctx context.Context, m rig.Mode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = m
	return nil
}

func (s *SDR) SetPTT(ctx context.Context, on bool) error {
	return rig.Validationf("sdr backend is receive-only")
}

func (s *SDR) ToggleVFO(ctx context.Context) error {
	return rig.Validationf("sdr backend has a single VFO")
}

func (s *SDR) Lock(ctx context.Context) error {
	return rig.Validationf("sdr backend has no panel lock")
}

func (s *SDR) Unlock(ctx context.Context) error {
	return rig.Validationf("sdr backend has no panel lock")
}

func (s *SDR) TxLimit(ctx context.Context) (uint8, error) {
	return 0, rig.Validationf("sdr backend is receive-only")
}

func (s *SDR) SetTxLimit(ctx context.Context, limit uint8) error {
	return rig.Validationf("sdr backend is receive-only")
}

func (s *SDR) RefreshState(ctx context.Context) (rig.Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.powered {
		return rig.Status{}, rig.Executionf("sdr source not started")
	}

	n, err := s.src.ReadIQ(ctx, s.block)
	if err != nil {
		return rig.Status{}, rig.Executionf("reading IQ block: %v", err)
	}
	if n == 0 {
		return rig.Status{}, rig.Executionf("empty IQ block")
	}

	return rig.Status{
		Freq: rig.Freq{Hz: s.freq},
		Mode: s.mode,
		Rx:   rig.RxStatus{Signal: signalEstimate(s.block[:n])},
	}, nil
}

func (s *SDR) Close() error {
	return s.src.Close()
}

// signalEstimate returns the level of the strongest spectral component
// in dBFS (a negative number; 0 is a full-scale carrier).
func signalEstimate(block []complex128) int {
	spectrum := fft.FFT(block)
	peak := 0.0
	for _, bin := range spectrum {
		if mag := cmplx.Abs(bin); mag > peak {
			peak = mag
		}
	}
	if peak == 0 {
		return -120
	}
	db := 20 * math.Log10(peak/float64(len(block)))
	if db < -120 {
		db = -120
	}
	return int(db)
}

// NoiseSource is a synthetic IQ source: white noise with a single
// carrier riding on it. It lets the sdr backend run without hardware.
type NoiseSource struct {
	mu         sync.Mutex
	rng        *rand.Rand
	carrierAmp float64
	noiseAmp   float64
}

func NewNoiseSource() *NoiseSource {
	return &NoiseSource{
		rng:        rand.New(rand.NewSource(1)),
		carrierAmp: 0.1,
		noiseAmp:   0.01,
	}
}

// SetCarrier adjusts the synthetic carrier amplitude (0 silences it).
func (n *NoiseSource) SetCarrier(amp float64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.carrierAmp = amp
}

func (n *NoiseSource) ReadIQ(ctx context.Context, buf []complex128) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := range buf {
		phase := 2 * math.Pi * float64(i) / 16
		carrier := complex(n.carrierAmp*math.Cos(phase), n.carrierAmp*math.Sin(phase))
		noise := complex(n.noiseAmp*n.rng.NormFloat64(), n.noiseAmp*n.rng.NormFloat64())
		buf[i] = carrier + noise
	}
	return len(buf), nil
}

func (n *NoiseSource) Close() error { return nil }
