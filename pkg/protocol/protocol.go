// Package protocol defines the JSON line protocol spoken by the TCP
// listener and the HTTP command endpoint. Every request is one envelope
// per line, every reply one response per line.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/dougsko/rigd/pkg/rig"
)

// Wire command tags. They mirror the rig operations one to one.
const (
	CmdGetState   = "get_state"
	CmdSetFreq    = "set_freq"
	CmdSetMode    = "set_mode"
	CmdSetPtt     = "set_ptt"
	CmdPowerOn    = "power_on"
	CmdPowerOff   = "power_off"
	CmdToggleVfo  = "toggle_vfo"
	CmdLock       = "lock"
	CmdUnlock     = "unlock"
	CmdGetTxLimit = "get_tx_limit"
	CmdSetTxLimit = "set_tx_limit"
)

// Envelope is a client request. Only the fields relevant to Cmd are
// set; Token is checked by the listener before the command is parsed.
type Envelope struct {
	Token  string  `json:"token,omitempty"`
	Cmd    string  `json:"cmd"`
	FreqHz *uint64 `json:"freq_hz,omitempty"`
	Mode   *string `json:"mode,omitempty"`
	PTT    *bool   `json:"ptt,omitempty"`
	Limit  *uint8  `json:"limit,omitempty"`
}

// Response is the server's reply. State is present on success; Error on
// failure.
type Response struct {
	Success bool          `json:"success"`
	State   *rig.Snapshot `json:"state,omitempty"`
	Error   string        `json:"error,omitempty"`
}

// OK builds a success response carrying a snapshot.
func OK(snap rig.Snapshot) Response {
	return Response{Success: true, State: &snap}
}

// Err builds a failure response.
func Err(err error) Response {
	return Response{Success: false, Error: err.Error()}
}

// ToCommand translates an envelope into a rig command. Missing or
// malformed parameters come back as validation errors so clients never
// trigger retries with bad input.
func (e *Envelope) ToCommand() (rig.Command, error) {
	switch e.Cmd {
	case CmdGetState:
		return rig.GetSnapshot(), nil
	case CmdSetFreq:
		if e.FreqHz == nil {
			return rig.Command{}, rig.Validationf("set_freq requires freq_hz")
		}
		return rig.SetFreq(*e.FreqHz), nil
	case CmdSetMode:
		if e.Mode == nil {
			return rig.Command{}, rig.Validationf("set_mode requires mode")
		}
		return rig.SetMode(rig.Mode(*e.Mode)), nil
	case CmdSetPtt:
		if e.PTT == nil {
			return rig.Command{}, rig.Validationf("set_ptt requires ptt")
		}
		return rig.SetPTT(*e.PTT), nil
	case CmdPowerOn:
		return rig.PowerOn(), nil
	case CmdPowerOff:
		return rig.PowerOff(), nil
	case CmdToggleVfo:
		return rig.ToggleVFO(), nil
	case CmdLock:
		return rig.Lock(), nil
	case CmdUnlock:
		return rig.Unlock(), nil
	case CmdGetTxLimit:
		return rig.GetTxLimit(), nil
	case CmdSetTxLimit:
		if e.Limit == nil {
			return rig.Command{}, rig.Validationf("set_tx_limit requires limit")
		}
		return rig.SetTxLimit(*e.Limit), nil
	default:
		return rig.Command{}, rig.Validationf("unknown command %q", e.Cmd)
	}
}

// FromCommand builds the envelope for a rig command, the inverse of
// ToCommand. Used by the client library.
func FromCommand(cmd rig.Command) (Envelope, error) {
	switch cmd.Op {
	case rig.OpGetSnapshot:
		return Envelope{Cmd: CmdGetState}, nil
	case rig.OpSetFreq:
		hz := cmd.Freq
		return Envelope{Cmd: CmdSetFreq, FreqHz: &hz}, nil
	case rig.OpSetMode:
		mode := string(cmd.Mode)
		return Envelope{Cmd: CmdSetMode, Mode: &mode}, nil
	case rig.OpSetPTT:
		ptt := cmd.PTT
		return Envelope{Cmd: CmdSetPtt, PTT: &ptt}, nil
	case rig.OpPowerOn:
		return Envelope{Cmd: CmdPowerOn}, nil
	case rig.OpPowerOff:
		return Envelope{Cmd: CmdPowerOff}, nil
	case rig.OpToggleVFO:
		return Envelope{Cmd: CmdToggleVfo}, nil
	case rig.OpLock:
		return Envelope{Cmd: CmdLock}, nil
	case rig.OpUnlock:
		return Envelope{Cmd: CmdUnlock}, nil
	case rig.OpGetTxLimit:
		return Envelope{Cmd: CmdGetTxLimit}, nil
	case rig.OpSetTxLimit:
		limit := cmd.Limit
		return Envelope{Cmd: CmdSetTxLimit, Limit: &limit}, nil
	default:
		return Envelope{}, fmt.Errorf("operation %s has no wire form", cmd.Op)
	}
}

// ParseEnvelope decodes one request line.
func ParseEnvelope(line []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(line, &env); err != nil {
		return Envelope{}, rig.Validationf("malformed request: %v", err)
	}
	if env.Cmd == "" {
		return Envelope{}, rig.Validationf("request has no cmd")
	}
	return env, nil
}
