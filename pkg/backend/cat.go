package backend

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/dougsko/rigd/pkg/bcd"
	"github.com/dougsko/rigd/pkg/rig"
	"go.bug.st/serial"
)

// Yaesu CAT command opcodes. Each frame is 5 bytes: 4 data bytes
// followed by the opcode.
const (
	cmdLock       = 0x00
	cmdSetFreq    = 0x01
	cmdReadStatus = 0x03
	cmdSetMode    = 0x07
	cmdPTTOn      = 0x08
	cmdPowerOn    = 0x0F
	cmdUnlock     = 0x80
	cmdToggleVFO  = 0x81
	cmdPTTOff     = 0x88
	cmdPowerOff   = 0x8F
	cmdReadMeter  = 0xE7
)

const catReadTimeout = 800 * time.Millisecond

var catModeCodes = map[rig.Mode]byte{
	rig.ModeLSB: 0x00,
	rig.ModeUSB: 0x01,
	rig.ModeCW:  0x02,
	rig.ModeCWR: 0x03,
	rig.ModeAM:  0x04,
	rig.ModeWFM: 0x06,
	rig.ModeFM:  0x08,
	rig.ModeDIG: 0x0A,
	rig.ModePKT: 0x0C,
}

func catModeFor(code byte) rig.Mode {
	for m, c := range catModeCodes {
		if c == code {
			return m
		}
	}
	return rig.Mode(fmt.Sprintf("0x%02X", code))
}

// CAT drives a Yaesu FT-817 style rig over a 5-byte-frame CAT link. The
// port is any io.ReadWriteCloser so tests can run it over in-memory
// pipes; production ports come from OpenSerial or DialTCP.
type CAT struct {
	mu   sync.Mutex
	port io.ReadWriteCloser
	info rig.Info
}

// NewCAT wraps an already-open CAT port.
func NewCAT(port io.ReadWriteCloser) *CAT {
	return &CAT{port: port, info: ft817Info()}
}

// OpenSerial opens a serial CAT port. The read timeout bounds every
// status and meter read so a dead rig surfaces as an execution error
// instead of a hang.
func OpenSerial(device string, baud int) (*CAT, error) {
	port, err := serial.Open(device, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("opening CAT port %s: %w", device, err)
	}
	if err := port.SetReadTimeout(catReadTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("setting CAT read timeout: %w", err)
	}
	return NewCAT(port), nil
}

// DialTCP connects to a CAT-over-TCP bridge.
func DialTCP(addr string) (*CAT, error) {
	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("dialing CAT bridge %s: %w", addr, err)
	}
	return NewCAT(&deadlineConn{Conn: conn, timeout: catReadTimeout}), nil
}

// deadlineConn applies a per-read deadline so CAT reads over TCP get
// the same timeout behavior as serial ports.
type deadlineConn struct {
	net.Conn
	timeout time.Duration
}

func (c *deadlineConn) Read(p []byte) (int, error) {
	if err := c.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
		return 0, err
	}
	return c.Conn.Read(p)
}

func ft817Info() rig.Info {
	return rig.Info{
		Manufacturer: "Yaesu",
		Model:        "FT-817",
		Capabilities: rig.Capabilities{
			Bands: []rig.Band{
				// Transmit-capable amateur bands.
				{LowHz: 1_800_000, HighHz: 2_000_000, TXAllowed: true},
				{LowHz: 3_500_000, HighHz: 4_000_000, TXAllowed: true},
				{LowHz: 5_250_000, HighHz: 5_450_000, TXAllowed: true},
				{LowHz: 7_000_000, HighHz: 7_300_000, TXAllowed: true},
				{LowHz: 10_100_000, HighHz: 10_150_000, TXAllowed: true},
				{LowHz: 14_000_000, HighHz: 14_350_000, TXAllowed: true},
				{LowHz: 18_068_000, HighHz: 18_168_000, TXAllowed: true},
				{LowHz: 21_000_000, HighHz: 21_450_000, TXAllowed: true},
				{LowHz: 24_890_000, HighHz: 24_990_000, TXAllowed: true},
				{LowHz: 28_000_000, HighHz: 29_700_000, TXAllowed: true},
				{LowHz: 50_000_000, HighHz: 54_000_000, TXAllowed: true},
				{LowHz: 144_000_000, HighHz: 148_000_000, TXAllowed: true},
				{LowHz: 430_000_000, HighHz: 450_000_000, TXAllowed: true},
				// Receive-only coverage between and around them.
				{LowHz: 100_000, HighHz: 1_799_999, TXAllowed: false},
				{LowHz: 2_000_001, HighHz: 3_499_999, TXAllowed: false},
				{LowHz: 4_000_001, HighHz: 5_249_999, TXAllowed: false},
				{LowHz: 5_450_001, HighHz: 6_999_999, TXAllowed: false},
				{LowHz: 7_300_001, HighHz: 10_099_999, TXAllowed: false},
				{LowHz: 10_150_001, HighHz: 13_999_999, TXAllowed: false},
				{LowHz: 14_350_001, HighHz: 18_067_999, TXAllowed: false},
				{LowHz: 18_168_001, HighHz: 20_999_999, TXAllowed: false},
				{LowHz: 21_450_001, HighHz: 24_889_999, TXAllowed: false},
				{LowHz: 24_990_001, HighHz: 27_999_999, TXAllowed: false},
				{LowHz: 29_700_001, HighHz: 49_999_999, TXAllowed: false},
				{LowHz: 54_000_001, HighHz: 75_999_999, TXAllowed: false},
				{LowHz: 76_000_000, HighHz: 107_999_999, TXAllowed: false},
				{LowHz: 108_000_000, HighHz: 143_999_999, TXAllowed: false},
				{LowHz: 148_000_001, HighHz: 429_999_999, TXAllowed: false},
				{LowHz: 450_000_001, HighHz: 470_000_000, TXAllowed: false},
			},
			Modes: []rig.Mode{
				rig.ModeLSB, rig.ModeUSB, rig.ModeCW, rig.ModeCWR,
				rig.ModeAM, rig.ModeWFM, rig.ModeFM, rig.ModeDIG, rig.ModePKT,
			},
			NumVFOs: 2,
			// CAT only exposes lock and VFO toggle; everything else is
			// panel-only on this rig.
			Lockable:    true,
			TX:          true,
			TXLimit:     false,
			VFOSwitch:   true,
			SignalMeter: true,
		},
	}
}

func (c *CAT) Info() rig.Info { return c.info }

func (c *CAT) writeFrame(data [4]byte, opcode byte) error {
	frame := []byte{data[0], data[1], data[2], data[3], opcode}
	if _, err := c.port.Write(frame); err != nil {
		return rig.Executionf("CAT write failed: %v", err)
	}
	return nil
}

func (c *CAT) command(opcode byte) error {
	return c.writeFrame([4]byte{}, opcode)
}

func (c *CAT) readExact(buf []byte) error {
	if _, err := io.ReadFull(c.port, buf); err != nil {
		return rig.Executionf("CAT read failed: %v", err)
	}
	return nil
}

// ackRead drains the single ack byte some opcodes return. Best effort:
// older firmware revisions do not send it.
func (c *CAT) ackRead() {
	buf := make([]byte, 1)
	c.port.Read(buf)
}

func (c *CAT) PowerOn(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	// The first frame is swallowed while the CPU wakes; send a dummy
	// payload, give the radio a moment, then issue the real command.
	if err := c.writeFrame([4]byte{}, 0x00); err != nil {
		return err
	}
	select {
	case <-time.After(120 * time.Millisecond):
	case <-ctx.Done():
		return ctx.Err()
	}
	return c.command(cmdPowerOn)
}

func (c *CAT) PowerOff(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.command(cmdPowerOff)
}

func (c *CAT) SetFreq(ctx context.Context, hz uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := bcd.Encode(hz)
	if err != nil {
		return rig.Validationf("frequency %d Hz not representable: %v", hz, err)
	}
	return c.writeFrame(data, cmdSetFreq)
}

func (c *CAT) SetMode(ctx context.Context, m rig.Mode) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	code, ok := catModeCodes[m]
	if !ok {
		return rig.Validationf("mode %s has no CAT code", m)
	}
	frame := [4]byte{code, 0x00, 0x00, 0x00}
	if err := c.writeFrame(frame, cmdSetMode); err != nil {
		return err
	}
	// Some rigs miss the first mode frame; repeat after a short pause.
	select {
	case <-time.After(80 * time.Millisecond):
	case <-ctx.Done():
		return ctx.Err()
	}
	return c.writeFrame(frame, cmdSetMode)
}

func (c *CAT) SetPTT(ctx context.Context, on bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	opcode := byte(cmdPTTOff)
	if on {
		opcode = cmdPTTOn
	}
	return c.command(opcode)
}

func (c *CAT) ToggleVFO(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.command(cmdToggleVFO)
}

func (c *CAT) Lock(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.command(cmdLock); err != nil {
		return err
	}
	c.ackRead()
	return nil
}

func (c *CAT) Unlock(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.command(cmdUnlock); err != nil {
		return err
	}
	c.ackRead()
	return nil
}

func (c *CAT) TxLimit(ctx context.Context) (uint8, error) {
	return 0, rig.Validationf("FT-817 CAT does not expose a TX limit")
}

func (c *CAT) SetTxLimit(ctx context.Context, limit uint8) error {
	return rig.Validationf("FT-817 CAT does not expose a TX limit")
}

// RefreshState reads the status frame (4 BCD frequency bytes plus a
// mode code) and the meter byte in one pass.
func (c *CAT) RefreshState(ctx context.Context) (rig.Status, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return rig.Status{}, err
	}

	if err := c.command(cmdReadStatus); err != nil {
		return rig.Status{}, err
	}
	buf := make([]byte, 5)
	if err := c.readExact(buf); err != nil {
		return rig.Status{}, err
	}
	hz, err := bcd.Decode([4]byte{buf[0], buf[1], buf[2], buf[3]})
	if err != nil {
		return rig.Status{}, rig.Decodef("bad frequency in status frame: %v", err)
	}
	st := rig.Status{
		Freq: rig.Freq{Hz: hz},
		Mode: catModeFor(buf[4]),
	}

	if err := c.command(cmdReadMeter); err != nil {
		return rig.Status{}, err
	}
	meter := make([]byte, 1)
	if err := c.readExact(meter); err != nil {
		return rig.Status{}, err
	}
	st.Rx.Signal = int(meter[0])

	return st, nil
}

func (c *CAT) Close() error {
	return c.port.Close()
}
