package audio

import (
	"context"
	"errors"
	"math"
	"sync"

	"github.com/igvedmak/parkspeak/internal/hearing"
)

// Random is the draw source for the simulated listener. *math/rand/v2.Rand
// satisfies it.
type Random interface {
	Float64() float64
	IntN(n int) int
}

// Simulated is a virtual device and listener. It "hears" a triplet with a
// probability given by a logistic psychometric function centred on TrueSRT
// and answers through CollectResponse.
type Simulated struct {
	TrueSRT   float64
	Slope     float64
	AmbientDb float64

	mu     sync.Mutex
	rng    Random
	last   *Playback
	played []Playback
}

// NewSimulated returns a listener whose 50% point sits at trueSRT dB.
func NewSimulated(trueSRT, slope, ambientDb float64, rng Random) *Simulated {
	if slope <= 0 {
		slope = 1
	}
	return &Simulated{TrueSRT: trueSRT, Slope: slope, AmbientDb: ambientDb, rng: rng}
}

// PlayTriplet records the presentation.
func (s *Simulated) PlayTriplet(ctx context.Context, p Playback) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = &p
	s.played = append(s.played, p)
	return nil
}

// MeasureAmbientNoise returns the configured room level.
func (s *Simulated) MeasureAmbientNoise(ctx context.Context) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return s.AmbientDb, nil
}

// CollectResponse answers the last played triplet.
func (s *Simulated) CollectResponse(ctx context.Context) (hearing.Triplet, error) {
	if err := ctx.Err(); err != nil {
		return hearing.Triplet{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return hearing.Triplet{}, errors.New("simulated listener: nothing played")
	}
	digits := s.last.Digits
	if s.rng.Float64() < s.PCorrect(s.last.SNRDb) {
		return digits, nil
	}
	// A miss confuses one position with a digit that was not presented.
	pos := s.rng.IntN(3)
	for {
		d := s.rng.IntN(10)
		if d != digits[0] && d != digits[1] && d != digits[2] {
			digits[pos] = d
			return digits, nil
		}
	}
}

// PCorrect is the probability of repeating a triplet correctly at snrDb.
func (s *Simulated) PCorrect(snrDb float64) float64 {
	return 1 / (1 + math.Exp(-(snrDb-s.TrueSRT)/s.Slope))
}

// Played returns every presentation so far.
func (s *Simulated) Played() []Playback {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Playback, len(s.played))
	copy(out, s.played)
	return out
}
