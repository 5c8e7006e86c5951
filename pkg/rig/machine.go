package rig

// State is the operating mode of the rig state machine.
type State int

const (
	// StateDisconnected is the initial state; the rig is powered off or
	// has never been powered on.
	StateDisconnected State = iota
	// StateReady means the rig is powered on and receiving.
	StateReady
	// StateTransmitting means PTT is engaged.
	StateTransmitting
	// StateError is entered on an unrecoverable backend failure.
	// Recovery requires a successful PowerOn.
	StateError
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "Disconnected"
	case StateReady:
		return "Ready"
	case StateTransmitting:
		return "Transmitting"
	case StateError:
		return "Error"
	default:
		return "Unknown"
	}
}

// machine is the explicit operating-mode state machine. It is owned by
// the control task and never accessed concurrently.
type machine struct {
	state       State
	lastErr     *Error
	transitions uint64
}

func newMachine() *machine {
	return &machine{state: StateDisconnected}
}

func (m *machine) operational() bool {
	return m.state == StateReady || m.state == StateTransmitting
}

func (m *machine) to(s State) {
	if m.state == s {
		return
	}
	m.state = s
	m.transitions++
	if s != StateError {
		m.lastErr = nil
	}
}

func (m *machine) fail(err *Error) {
	m.lastErr = err
	m.to(StateError)
}

// canExecute validates an operation against the current state. It does
// not consider parameters or capabilities; that is the command
// handler's job.
func (m *machine) canExecute(op Op) *Error {
	switch op {
	case OpGetSnapshot, OpPowerOn, OpPowerOff:
		// Always allowed. PowerOn is how Error and Disconnected are
		// left, PowerOff is honored from any state.
		return nil
	default:
		if !m.operational() {
			return Validationf("rig not ready: %s is not allowed while %s", op, m.state)
		}
		return nil
	}
}
