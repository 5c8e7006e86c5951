// Package bcd converts frequencies between Hz and the packed 4-byte
// binary-coded-decimal field used on Yaesu-style CAT serial links.
//
// The wire format stores 8 decimal digits at 10 Hz resolution, two
// digits per byte with the more significant digit in the high nibble.
package bcd

import (
	"errors"
	"fmt"
)

// MaxFreqHz is the highest frequency representable in the 4-byte field:
// 8 BCD digits at 10 Hz resolution.
const MaxFreqHz = 999_999_990

var (
	// ErrOutOfRange indicates a frequency that cannot be represented:
	// not a multiple of 10 Hz, or above MaxFreqHz.
	ErrOutOfRange = errors.New("frequency out of range for BCD encoding")

	// ErrInvalidDigit indicates a nibble outside 0-9 in received data.
	ErrInvalidDigit = errors.New("invalid BCD digit")
)

// Encode packs a frequency in Hz into 4 BCD bytes.
func Encode(freqHz uint64) ([4]byte, error) {
	var out [4]byte

	if freqHz%10 != 0 {
		return out, fmt.Errorf("%w: %d Hz is not a multiple of 10", ErrOutOfRange, freqHz)
	}

	n := freqHz / 10
	if n > 99_999_999 {
		return out, fmt.Errorf("%w: %d Hz exceeds %d", ErrOutOfRange, freqHz, uint64(MaxFreqHz))
	}

	var digits [8]byte
	for i := 7; i >= 0; i-- {
		digits[i] = byte(n % 10)
		n /= 10
	}

	for i := 0; i < 4; i++ {
		out[i] = digits[i*2]<<4 | digits[i*2+1]
	}

	return out, nil
}

// Decode unpacks 4 BCD bytes into a frequency in Hz. The result is
// always a multiple of 10.
func Decode(b [4]byte) (uint64, error) {
	var value uint64

	for _, by := range b {
		high := by >> 4
		low := by & 0x0F
		if high >= 10 || low >= 10 {
			return 0, fmt.Errorf("%w: 0x%02X", ErrInvalidDigit, by)
		}
		value = value*10 + uint64(high)
		value = value*10 + uint64(low)
	}

	return value * 10, nil
}
