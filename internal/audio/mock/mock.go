// Package mock provides a test double for the audio.Presenter interface.
//
// Presenter records every playback and returns scripted ambient levels, so
// drivers of the hearing test can be verified without a device.
package mock

import (
	"context"
	"sync"

	"github.com/igvedmak/parkspeak/internal/audio"
	"github.com/igvedmak/parkspeak/internal/hearing"
)

// Presenter is a mock implementation of audio.Presenter that also acts as
// the response input.
type Presenter struct {
	mu sync.Mutex

	// AmbientLevels are returned by successive MeasureAmbientNoise calls.
	// The last value repeats once exhausted.
	AmbientLevels []float64

	// AmbientErr, if non-nil, is returned from MeasureAmbientNoise.
	AmbientErr error

	// PlayErr, if non-nil, is returned from PlayTriplet.
	PlayErr error

	// Respond decides the listener's answer. Nil echoes the played digits.
	Respond func(p audio.Playback) hearing.Triplet

	// PlayCalls records every playback in order.
	PlayCalls []audio.Playback

	// AmbientCalls counts MeasureAmbientNoise invocations.
	AmbientCalls int
}

// PlayTriplet records the call and returns PlayErr.
func (p *Presenter) PlayTriplet(_ context.Context, pb audio.Playback) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.PlayCalls = append(p.PlayCalls, pb)
	return p.PlayErr
}

// MeasureAmbientNoise returns the next scripted level.
func (p *Presenter) MeasureAmbientNoise(_ context.Context) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.AmbientCalls++
	if p.AmbientErr != nil {
		return 0, p.AmbientErr
	}
	if len(p.AmbientLevels) == 0 {
		return 0, nil
	}
	idx := p.AmbientCalls - 1
	if idx >= len(p.AmbientLevels) {
		idx = len(p.AmbientLevels) - 1
	}
	return p.AmbientLevels[idx], nil
}

// CollectResponse answers the most recent playback.
func (p *Presenter) CollectResponse(_ context.Context) (hearing.Triplet, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.PlayCalls) == 0 {
		return hearing.Triplet{}, nil
	}
	last := p.PlayCalls[len(p.PlayCalls)-1]
	if p.Respond != nil {
		return p.Respond(last), nil
	}
	return last.Digits, nil
}

var _ audio.Presenter = (*Presenter)(nil)
