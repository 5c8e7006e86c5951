package rig

// Op identifies a rig operation.
type Op int

const (
	OpGetSnapshot Op = iota
	OpSetFreq
	OpSetMode
	OpSetPTT
	OpPowerOn
	OpPowerOff
	OpToggleVFO
	OpLock
	OpUnlock
	OpGetTxLimit
	OpSetTxLimit
)

func (op Op) String() string {
	switch op {
	case OpGetSnapshot:
		return "GetSnapshot"
	case OpSetFreq:
		return "SetFreq"
	case OpSetMode:
		return "SetMode"
	case OpSetPTT:
		return "SetPtt"
	case OpPowerOn:
		return "PowerOn"
	case OpPowerOff:
		return "PowerOff"
	case OpToggleVFO:
		return "ToggleVfo"
	case OpLock:
		return "Lock"
	case OpUnlock:
		return "Unlock"
	case OpGetTxLimit:
		return "GetTxLimit"
	case OpSetTxLimit:
		return "SetTxLimit"
	default:
		return "Unknown"
	}
}

// Command is a single rig operation with its parameters. Immutable once
// constructed; only the fields relevant to Op are meaningful.
type Command struct {
	Op    Op
	Freq  uint64
	Mode  Mode
	PTT   bool
	Limit uint8
}

func GetSnapshot() Command       { return Command{Op: OpGetSnapshot} }
func SetFreq(hz uint64) Command  { return Command{Op: OpSetFreq, Freq: hz} }
func SetMode(m Mode) Command     { return Command{Op: OpSetMode, Mode: m} }
func SetPTT(on bool) Command     { return Command{Op: OpSetPTT, PTT: on} }
func PowerOn() Command           { return Command{Op: OpPowerOn} }
func PowerOff() Command          { return Command{Op: OpPowerOff} }
func ToggleVFO() Command         { return Command{Op: OpToggleVFO} }
func Lock() Command              { return Command{Op: OpLock} }
func Unlock() Command            { return Command{Op: OpUnlock} }
func GetTxLimit() Command        { return Command{Op: OpGetTxLimit} }
func SetTxLimit(l uint8) Command { return Command{Op: OpSetTxLimit, Limit: l} }

// result is what the control task sends back on a request's reply
// channel.
type result struct {
	snap Snapshot
	err  error
}

// request pairs a command with its single-use reply channel. The reply
// channel has capacity 1 so the task's send never blocks even when the
// caller has given up waiting.
type request struct {
	cmd   Command
	reply chan result
}
