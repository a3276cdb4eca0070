package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/igvedmak/parkspeak/internal/audio"
	"github.com/igvedmak/parkspeak/internal/hearing"

	"go.uber.org/zap"
)

// ResponseInput collects the listener's answer to the last presentation.
type ResponseInput interface {
	CollectResponse(ctx context.Context) (hearing.Triplet, error)
}

// RunScreening drives a complete test against a local device: it meters the
// room, then plays and scores trials until the test completes. A room that
// is too loud returns ErrTooNoisy with the session still in the ambient
// check. Any other failure discards the session.
func (m *HearingSessionManager) RunScreening(ctx context.Context, presenter audio.Presenter, input ResponseInput, language string) (*Session, error) {
	s, err := m.Create(ctx, language)
	if err != nil {
		return nil, err
	}
	id := s.ID
	if s, err = m.BeginAmbientCheck(ctx, id); err != nil {
		return nil, m.abort(ctx, id, err)
	}

	level, err := presenter.MeasureAmbientNoise(ctx)
	if err != nil {
		return nil, m.abort(ctx, id, fmt.Errorf("ambient measurement failed: %w", err))
	}
	if s, err = m.SubmitAmbient(ctx, id, level); err != nil {
		if errors.Is(err, ErrTooNoisy) {
			return s, err
		}
		return nil, m.abort(ctx, id, err)
	}

	for s.State.Phase == hearing.PhaseRunning {
		pb, ok := m.NextPlayback(s)
		if !ok {
			return nil, m.abort(ctx, id, errors.New("running test has no pending trial"))
		}
		if err := presenter.PlayTriplet(ctx, pb); err != nil {
			return nil, m.abort(ctx, id, fmt.Errorf("playback failed: %w", err))
		}
		resp, err := input.CollectResponse(ctx)
		if err != nil {
			return nil, m.abort(ctx, id, fmt.Errorf("response collection failed: %w", err))
		}
		if s, err = m.Respond(ctx, id, resp); err != nil {
			return nil, m.abort(ctx, id, err)
		}
	}
	return s, nil
}

func (m *HearingSessionManager) abort(ctx context.Context, id string, cause error) error {
	if err := m.Discard(context.WithoutCancel(ctx), id); err != nil {
		m.log.Warn("Failed to discard aborted session", zap.String("sessionID", id), zap.Error(err))
	}
	return cause
}
