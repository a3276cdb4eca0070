package utils

import (
	"math"
	"unicode"

	"github.com/igvedmak/parkspeak/internal/hearing"
)

// MaxMeteringSamples bounds the metering array a client may upload.
const MaxMeteringSamples = 2000

// IsValidLanguageCode checks for a short tag such as "en" or "he-IL".
func IsValidLanguageCode(code string) bool {
	if len(code) < 2 || len(code) > 8 {
		return false
	}
	for i, r := range code {
		switch {
		case r < unicode.MaxASCII && unicode.IsLetter(r):
		case r == '-' && i > 0 && i < len(code)-1:
		default:
			return false
		}
	}
	return true
}

// DigitsToTriplet converts a submitted digit list into a triplet. It fails
// unless there are exactly three values between 0 and 9.
func DigitsToTriplet(digits []int) (hearing.Triplet, bool) {
	var t hearing.Triplet
	if len(digits) != len(t) {
		return t, false
	}
	copy(t[:], digits)
	return t, t.Valid()
}

// IsValidLevel rejects NaN, infinities and values outside a plausible
// sound-level range.
func IsValidLevel(db float64) bool {
	return !math.IsNaN(db) && !math.IsInf(db, 0) && db >= -200 && db <= 200
}

// AreValidMeteringSamples checks a dBFS metering series.
func AreValidMeteringSamples(samples []float64) bool {
	if len(samples) > MaxMeteringSamples {
		return false
	}
	for _, s := range samples {
		if !IsValidLevel(s) {
			return false
		}
	}
	return true
}
