package rig

import "fmt"

const speedOfLightMPerS = 299_792_458.0

// Freq is a frequency in Hz.
type Freq struct {
	Hz uint64 `json:"hz"`
}

// Band is a supported frequency range of a rig.
type Band struct {
	LowHz     uint64 `json:"low_hz"`
	HighHz    uint64 `json:"high_hz"`
	TXAllowed bool   `json:"tx_allowed"`
}

// CenterHz returns the midpoint frequency of the band.
func (b Band) CenterHz() uint64 {
	return b.LowHz + (b.HighHz-b.LowHz)/2
}

// Name derives a human-friendly label ("20m", "70cm") from the
// wavelength at the band's center frequency.
func (b Band) Name() string {
	return WavelengthLabel(b.CenterHz())
}

// BandFor finds the band containing freqHz (inclusive bounds), if any.
func BandFor(bands []Band, freqHz uint64) (Band, bool) {
	for _, b := range bands {
		if freqHz >= b.LowHz && freqHz <= b.HighHz {
			return b, true
		}
	}
	return Band{}, false
}

// WavelengthLabel converts a frequency in Hz to a wavelength string.
// Wavelengths of a meter or more are rounded to whole meters, shorter
// ones are shown in centimeters.
func WavelengthLabel(freqHz uint64) string {
	if freqHz == 0 {
		return "-"
	}

	wavelengthM := speedOfLightMPerS / float64(freqHz)
	if wavelengthM >= 1.0 {
		return fmt.Sprintf("%.0fm", wavelengthM)
	}
	return fmt.Sprintf("%.0fcm", wavelengthM*100.0)
}
