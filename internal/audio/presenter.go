// Package audio defines the boundary between the hearing test and the device
// that actually plays digits in noise and meters the room.
//
// The server never touches a speaker or microphone. It computes a Playback
// plan for every trial, and the client executes it through whatever
// Presenter it owns. The speech-rate adjustment travels inside the plan
// rather than being read from global settings.
package audio

import (
	"context"
	"math"
	"time"

	"github.com/igvedmak/parkspeak/internal/hearing"
)

const (
	// SpeechVolume is the fixed playback level of the spoken digits.
	SpeechVolume = 0.8
	// DefaultGap separates consecutive digits of a triplet.
	DefaultGap = 400 * time.Millisecond
	// DefaultRate is the TTS speaking rate used for digits.
	DefaultRate = 0.8
	// DefaultMaxAmbientDb is the loudest room in which a test may start.
	DefaultMaxAmbientDb = 50.0
	// meteringOffsetDb converts averaged dBFS metering to approximate dB SPL.
	meteringOffsetDb = 94.0
)

// Playback is everything a device needs to present one triplet.
type Playback struct {
	Digits       hearing.Triplet `json:"digits"`
	SNRDb        float64         `json:"snrDb"`
	Language     string          `json:"language"`
	VoiceCode    string          `json:"voiceCode"`
	Rate         float64         `json:"rate"`
	GapMs        int64           `json:"gapMs"`
	SpeechVolume float64         `json:"speechVolume"`
	NoiseVolume  float64         `json:"noiseVolume"`
}

// Gap returns the inter-digit pause as a duration.
func (p Playback) Gap() time.Duration {
	return time.Duration(p.GapMs) * time.Millisecond
}

// PlanOptions carries the per-listener presentation settings.
type PlanOptions struct {
	Language  string
	VoiceCode string
	// RateFactor scales DefaultRate for listeners who need slower speech.
	// Zero means 1.
	RateFactor float64
	Gap        time.Duration
}

// Presenter plays stimuli and meters the environment. PlayTriplet returns
// only after all three digits have been spoken.
type Presenter interface {
	PlayTriplet(ctx context.Context, p Playback) error
	MeasureAmbientNoise(ctx context.Context) (float64, error)
}

// Plan builds the playback instructions for a triplet at the given SNR.
func Plan(digits hearing.Triplet, snrDb float64, opts PlanOptions) Playback {
	factor := opts.RateFactor
	if factor <= 0 {
		factor = 1
	}
	gap := opts.Gap
	if gap <= 0 {
		gap = DefaultGap
	}
	return Playback{
		Digits:       digits,
		SNRDb:        snrDb,
		Language:     opts.Language,
		VoiceCode:    opts.VoiceCode,
		Rate:         DefaultRate * factor,
		GapMs:        gap.Milliseconds(),
		SpeechVolume: SpeechVolume,
		NoiseVolume:  NoiseVolume(snrDb),
	}
}

// NoiseVolume converts an SNR to a masker volume in [0,1] relative to the
// fixed speech level. At 0 dB the noise matches the speech.
func NoiseVolume(snrDb float64) float64 {
	return math.Min(1.0, SpeechVolume*math.Pow(10, -snrDb/20))
}

// LevelFromMetering estimates the ambient level in dB SPL from microphone
// metering samples in dBFS. No samples yields 0.
func LevelFromMetering(samplesDbfs []float64) float64 {
	if len(samplesDbfs) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samplesDbfs {
		sum += s
	}
	return math.Max(0, sum/float64(len(samplesDbfs))+meteringOffsetDb)
}

// TooNoisy reports whether the room is too loud to start a test.
func TooNoisy(levelDb, maxDb float64) bool {
	return levelDb > maxDb
}
