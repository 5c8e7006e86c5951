package rig

// RxStatus holds the receive-side meters.
type RxStatus struct {
	// Signal is the raw S-meter reading from the backend (0-255 on CAT
	// rigs, dBFS estimate on SDR backends).
	Signal int `json:"sig"`
}

// TxStatus holds the transmit-side meters.
type TxStatus struct {
	Power uint8   `json:"power"`
	Limit uint8   `json:"limit"`
	SWR   float32 `json:"swr"`
	ALC   uint8   `json:"alc"`
}

// Status is the authoritative mutable record of the rig. It is owned by
// the control task; everything outside the task only ever sees copies
// inside a Snapshot.
type Status struct {
	Freq      Freq     `json:"freq"`
	Mode      Mode     `json:"mode"`
	TxEnabled bool     `json:"tx_en"`
	Lock      bool     `json:"lock"`
	Rx        RxStatus `json:"rx"`
	Tx        TxStatus `json:"tx"`
}

// Capabilities describes what a backend can do. Set once at backend
// construction and never modified afterward.
type Capabilities struct {
	Bands       []Band `json:"supported_bands"`
	Modes       []Mode `json:"supported_modes"`
	NumVFOs     int    `json:"num_vfos"`
	Lockable    bool   `json:"lockable"`
	TX          bool   `json:"tx"`
	TXLimit     bool   `json:"tx_limit"`
	VFOSwitch   bool   `json:"vfo_switch"`
	SignalMeter bool   `json:"signal_meter"`
}

// Info is the static per-backend description.
type Info struct {
	Manufacturer string       `json:"manufacturer"`
	Model        string       `json:"model"`
	Revision     string       `json:"revision"`
	Capabilities Capabilities `json:"capabilities"`
}

// control holds runtime flags that are not exposed to clients directly.
type control struct {
	enabled bool
	lock    bool
}

// Snapshot is the immutable projection of rig state shared with
// callers. It is replaced wholesale after every successful state change
// and never partially updated.
type Snapshot struct {
	Info        Info   `json:"info"`
	Status      Status `json:"status"`
	State       State  `json:"-"`
	StateName   string `json:"state"`
	Band        string `json:"band,omitempty"`
	Enabled     bool   `json:"enabled"`
	Initialized bool   `json:"initialized"`
	LastError   string `json:"last_error,omitempty"`
}

func makeSnapshot(info Info, st Status, ctl control, m *machine, initialized bool) Snapshot {
	band := ""
	if b, ok := BandFor(info.Capabilities.Bands, st.Freq.Hz); ok {
		band = b.Name()
	}
	snap := Snapshot{
		Info:        info,
		Status:      st,
		State:       m.state,
		StateName:   m.state.String(),
		Band:        band,
		Enabled:     ctl.enabled,
		Initialized: initialized,
	}
	if m.lastErr != nil {
		snap.LastError = m.lastErr.Error()
	}
	return snap
}
