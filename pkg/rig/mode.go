package rig

// Mode is an operating mode. The well-known modes have constants below;
// any other value is treated as a vendor-specific mode string.
type Mode string

const (
	ModeLSB Mode = "LSB"
	ModeUSB Mode = "USB"
	ModeCW  Mode = "CW"
	ModeCWR Mode = "CWR"
	ModeAM  Mode = "AM"
	ModeFM  Mode = "FM"
	ModeWFM Mode = "WFM"
	ModeDIG Mode = "DIG"
	ModePKT Mode = "PKT"
)

// KnownModes lists the modes the control core understands natively.
var KnownModes = []Mode{
	ModeLSB, ModeUSB, ModeCW, ModeCWR, ModeAM, ModeFM, ModeWFM, ModeDIG, ModePKT,
}

// Known reports whether m is one of the standard modes.
func (m Mode) Known() bool {
	for _, k := range KnownModes {
		if m == k {
			return true
		}
	}
	return false
}

func modeSupported(modes []Mode, m Mode) bool {
	// An empty list means the backend did not declare its modes; accept all.
	if len(modes) == 0 {
		return true
	}
	for _, s := range modes {
		if s == m {
			return true
		}
	}
	return false
}
