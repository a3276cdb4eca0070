package services

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/igvedmak/parkspeak/internal/audio"
	"github.com/igvedmak/parkspeak/internal/config"
	"github.com/igvedmak/parkspeak/internal/hearing"
	"github.com/igvedmak/parkspeak/internal/models"
	"github.com/igvedmak/parkspeak/internal/observe"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrTooNoisy rejects an ambient check above the configured ceiling. The
	// session stays in the ambient check and may be retried.
	ErrTooNoisy = errors.New("ambient noise too high to start the test")
	// ErrInvalidResponse rejects a response that is not three digits 0-9.
	ErrInvalidResponse = errors.New("response must be three digits between 0 and 9")
)

// ResultStore persists completed screenings.
type ResultStore interface {
	SaveResult(ctx context.Context, rec *models.HearingTest) error
}

const saveTimeout = 10 * time.Second

// HearingSessionManager drives hearing tests on behalf of remote clients. It
// serializes calls per session so the state machine sees one event at a time.
type HearingSessionManager struct {
	log       *zap.Logger
	store     SessionStore
	results   ResultStore
	languages *models.LanguageCatalog
	settings  func() config.HearingConfig
	metrics   *observe.Metrics
	proc      hearing.Procedure
	now       func() time.Time
	rng       *lockedRand
	expirer   Expirer

	locksMu sync.Mutex
	locks   map[string]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

type lockedRand struct {
	mu sync.Mutex
	r  *rand.Rand
}

func (l *lockedRand) IntN(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.IntN(n)
}

// ManagerOption customizes a HearingSessionManager.
type ManagerOption func(*HearingSessionManager)

// WithRand sets the digit source. Tests pass a seeded generator.
func WithRand(r *rand.Rand) ManagerOption {
	return func(m *HearingSessionManager) { m.rng = &lockedRand{r: r} }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *HearingSessionManager) { m.now = now }
}

// WithMetrics records to the given instruments instead of the defaults.
func WithMetrics(met *observe.Metrics) ManagerOption {
	return func(m *HearingSessionManager) { m.metrics = met }
}

// WithProcedure replaces the standard staircase parameters.
func WithProcedure(p hearing.Procedure) ManagerOption {
	return func(m *HearingSessionManager) { m.proc = p }
}

// NewHearingSessionManager builds a manager. settings is read on every call,
// so configuration reloads take effect for the next request.
func NewHearingSessionManager(log *zap.Logger, store SessionStore, results ResultStore,
	languages *models.LanguageCatalog, settings func() config.HearingConfig, opts ...ManagerOption) *HearingSessionManager {
	m := &HearingSessionManager{
		log:       log,
		store:     store,
		results:   results,
		languages: languages,
		settings:  settings,
		proc:      hearing.Standard,
		now:       time.Now,
		locks:     make(map[string]*sessionLock),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.rng == nil {
		m.rng = &lockedRand{r: rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))}
	}
	if m.metrics == nil {
		m.metrics = observe.DefaultMetrics()
	}
	m.expirer, _ = store.(Expirer)
	return m
}

// Languages returns the catalogue sessions are resolved against.
func (m *HearingSessionManager) Languages() *models.LanguageCatalog {
	return m.languages
}

// Create starts a new test in the instructions phase. An unknown language
// falls back to the catalogue default. A retake is simply another Create.
func (m *HearingSessionManager) Create(ctx context.Context, language string) (*Session, error) {
	lang := m.languages.Resolve(language)
	now := m.now().UTC()
	s := &Session{
		ID:        uuid.NewString(),
		Language:  lang.Code,
		State:     m.proc.NewState(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.store.Put(ctx, s); err != nil {
		return nil, fmt.Errorf("failed to store new session: %w", err)
	}
	m.metrics.RecordStarted(ctx, s.Language)
	if m.expirer != nil {
		m.metrics.RecordHeld(ctx)
	}
	m.log.Info("Hearing test created", zap.String("sessionID", s.ID), zap.String("language", s.Language))
	return s, nil
}

// Get returns the current snapshot of a session.
func (m *HearingSessionManager) Get(ctx context.Context, id string) (*Session, error) {
	return m.store.Get(ctx, id)
}

// BeginAmbientCheck leaves the instructions screen.
func (m *HearingSessionManager) BeginAmbientCheck(ctx context.Context, id string) (*Session, error) {
	return m.update(ctx, id, func(s *Session) error {
		s.State = m.proc.BeginAmbientCheck(s.State)
		return nil
	})
}

// SubmitAmbient records the measured room level and, when it is quiet
// enough, starts the test and draws the first trial.
func (m *HearingSessionManager) SubmitAmbient(ctx context.Context, id string, levelDb float64) (*Session, error) {
	return m.update(ctx, id, func(s *Session) error {
		if s.State.Phase != hearing.PhaseAmbientCheck {
			return nil
		}
		maxDb := m.settings().MaxAmbientDb
		if maxDb <= 0 {
			maxDb = audio.DefaultMaxAmbientDb
		}
		if audio.TooNoisy(levelDb, maxDb) {
			m.metrics.AmbientRejected.Add(ctx, 1)
			m.log.Info("Ambient check rejected", zap.String("sessionID", s.ID),
				zap.Float64("levelDb", levelDb), zap.Float64("maxDb", maxDb))
			return fmt.Errorf("%w: %.1f dB exceeds %.1f dB", ErrTooNoisy, levelDb, maxDb)
		}
		level := levelDb
		s.AmbientNoiseDb = &level
		s.State = m.proc.Start(s.State)
		s.State = m.proc.AddNextTrial(s.State, m.rng)
		return nil
	})
}

// Respond scores the pending trial. The next trial is drawn while the test
// is running; on completion the result is saved exactly once. A failed save
// is logged and does not undo completion.
func (m *HearingSessionManager) Respond(ctx context.Context, id string, digits hearing.Triplet) (*Session, error) {
	if !digits.Valid() {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, digits)
	}
	return m.update(ctx, id, func(s *Session) error {
		if _, pending := s.State.Current(); !pending || s.State.Phase != hearing.PhaseRunning {
			return nil
		}
		s.State = m.proc.ScoreTrial(s.State, digits)
		if last := s.State.Trials[len(s.State.Trials)-1]; last.Correct != nil {
			m.metrics.RecordTrial(ctx, *last.Correct)
		}

		switch s.State.Phase {
		case hearing.PhaseRunning:
			s.State = m.proc.AddNextTrial(s.State, m.rng)
		case hearing.PhaseComplete:
			if !s.Saved {
				s.Saved = true
				m.complete(ctx, s)
			}
		}
		return nil
	})
}

// Discard abandons a session. Nothing is persisted.
func (m *HearingSessionManager) Discard(ctx context.Context, id string) error {
	unlock := m.lock(id)
	defer unlock()
	if _, err := m.store.Get(ctx, id); err != nil {
		return err
	}
	if err := m.store.Delete(ctx, id); err != nil {
		return err
	}
	if m.expirer != nil {
		m.metrics.RecordEnded(ctx, 1)
	}
	m.log.Info("Hearing test discarded", zap.String("sessionID", id))
	return nil
}

// NextPlayback returns the presentation plan for the pending trial, if any.
func (m *HearingSessionManager) NextPlayback(s *Session) (audio.Playback, bool) {
	trial, ok := s.State.Current()
	if !ok || s.State.Phase != hearing.PhaseRunning {
		return audio.Playback{}, false
	}
	lang := m.languages.Resolve(s.Language)
	cfg := m.settings()
	return audio.Plan(trial.Digits, trial.SNRDb, audio.PlanOptions{
		Language:   lang.Code,
		VoiceCode:  lang.VoiceCode,
		RateFactor: cfg.RateFactor,
		Gap:        cfg.InterDigitGap,
	}), true
}

// Expirer is implemented by session stores that need explicit sweeping.
type Expirer interface {
	// Idle lists sessions last updated before cutoff.
	Idle(cutoff time.Time) []string
}

// Sweep drops sessions idle for longer than idle. Stores that expire
// entries on their own are left alone.
func (m *HearingSessionManager) Sweep(ctx context.Context, idle time.Duration) int {
	if m.expirer == nil {
		return 0
	}
	cutoff := m.now().Add(-idle)
	n := 0
	for _, id := range m.expirer.Idle(cutoff) {
		if m.expire(ctx, id, cutoff) {
			n++
		}
	}
	if n > 0 {
		m.metrics.RecordEnded(ctx, n)
	}
	return n
}

// expire deletes one session under its lock, after checking it was not
// touched since it was listed.
func (m *HearingSessionManager) expire(ctx context.Context, id string, cutoff time.Time) bool {
	unlock := m.lock(id)
	defer unlock()
	s, err := m.store.Get(ctx, id)
	if err != nil || !s.UpdatedAt.Before(cutoff) {
		return false
	}
	if err := m.store.Delete(ctx, id); err != nil {
		m.log.Warn("Failed to expire hearing session", zap.String("sessionID", id), zap.Error(err))
		return false
	}
	return true
}

func (m *HearingSessionManager) complete(ctx context.Context, s *Session) {
	log := m.log.With(zap.String("sessionID", s.ID))
	if _, err := m.proc.ComputeSRT(s.State.Trials); err != nil {
		log.Warn("SRT computed without scorable trials", zap.Error(err))
	}

	srt, band := *s.State.SRTDb, string(*s.State.Result)
	m.metrics.RecordCompleted(ctx, band, s.Language, srt)
	log.Info("Hearing test completed", zap.Float64("srtDb", srt), zap.String("result", band))

	// The record shares the session id, so a replayed completion cannot
	// insert a second row.
	rec, err := models.HearingTestFromState(s.ID, m.now().UTC(), s.State, s.AmbientNoiseDb, s.Language)
	if err != nil {
		m.metrics.SaveFailures.Add(ctx, 1)
		log.Error("Failed to build hearing test record", zap.Error(err))
		return
	}

	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), saveTimeout)
	defer cancel()
	if err := m.results.SaveResult(saveCtx, rec); err != nil {
		m.metrics.SaveFailures.Add(ctx, 1)
		log.Error("Failed to save hearing test result", zap.Error(err))
		return
	}
	s.ResultID = rec.ID
	log.Info("Hearing test result saved", zap.String("resultID", rec.ID))
}

func (m *HearingSessionManager) update(ctx context.Context, id string, fn func(*Session) error) (*Session, error) {
	unlock := m.lock(id)
	defer unlock()

	s, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(s); err != nil {
		return s, err
	}
	s.UpdatedAt = m.now().UTC()
	if err := m.store.Put(ctx, s); err != nil {
		return nil, fmt.Errorf("failed to store session %s: %w", id, err)
	}
	return s, nil
}

func (m *HearingSessionManager) lock(id string) func() {
	m.locksMu.Lock()
	l, ok := m.locks[id]
	if !ok {
		l = &sessionLock{}
		m.locks[id] = l
	}
	l.refs++
	m.locksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		m.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(m.locks, id)
		}
		m.locksMu.Unlock()
	}
}
