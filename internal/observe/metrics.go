// Package observe holds the OpenTelemetry metric instruments for the hearing
// screening service.
//
// Instruments are created from a metric.MeterProvider. InitProvider installs
// a provider backed by the Prometheus exporter so the values can be scraped
// from /metrics. Tests should build their own provider with a ManualReader
// and call NewMetrics.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/igvedmak/parkspeak"

// Metrics holds every instrument the service records.
type Metrics struct {
	// TestsStarted counts sessions created. Attribute: language.
	TestsStarted metric.Int64Counter

	// TestsCompleted counts finished screenings. Attributes: result, language.
	TestsCompleted metric.Int64Counter

	// TrialsScored counts scored trials. Attribute: correct.
	TrialsScored metric.Int64Counter

	// AmbientRejected counts ambient checks refused for a noisy room.
	AmbientRejected metric.Int64Counter

	// SaveFailures counts completed tests that could not be persisted.
	SaveFailures metric.Int64Counter

	// SRT records the final speech reception threshold in dB SNR.
	SRT metric.Float64Histogram

	// ActiveSessions tracks sessions held in process memory. Stores that
	// expire sessions by TTL (redis) do not report here.
	ActiveSessions metric.Int64UpDownCounter
}

var srtBuckets = []float64{-12, -10, -8, -6, -5.5, -4, -2.8, -2, 0, 2, 4, 8}

// NewMetrics creates every instrument from mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.TestsStarted, err = m.Int64Counter("parkspeak.hearing.tests_started",
		metric.WithDescription("Hearing screening sessions created."),
	); err != nil {
		return nil, err
	}
	if met.TestsCompleted, err = m.Int64Counter("parkspeak.hearing.tests_completed",
		metric.WithDescription("Hearing screenings completed by result band."),
	); err != nil {
		return nil, err
	}
	if met.TrialsScored, err = m.Int64Counter("parkspeak.hearing.trials_scored",
		metric.WithDescription("Digit-triplet trials scored."),
	); err != nil {
		return nil, err
	}
	if met.AmbientRejected, err = m.Int64Counter("parkspeak.hearing.ambient_rejected",
		metric.WithDescription("Ambient checks rejected because the room was too loud."),
	); err != nil {
		return nil, err
	}
	if met.SaveFailures, err = m.Int64Counter("parkspeak.hearing.save_failures",
		metric.WithDescription("Completed screenings that failed to persist."),
	); err != nil {
		return nil, err
	}
	if met.SRT, err = m.Float64Histogram("parkspeak.hearing.srt",
		metric.WithDescription("Speech reception threshold of completed screenings."),
		metric.WithUnit("dB"),
		metric.WithExplicitBucketBoundaries(srtBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("parkspeak.hearing.active_sessions",
		metric.WithDescription("Hearing sessions currently held in the in-memory session store."),
	); err != nil {
		return nil, err
	}
	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns a process-wide instance built on the global meter
// provider. Call InitProvider first or the instruments are no-ops.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordStarted counts a new session.
func (m *Metrics) RecordStarted(ctx context.Context, language string) {
	m.TestsStarted.Add(ctx, 1, metric.WithAttributes(attribute.String("language", language)))
}

// RecordHeld marks a new session as held in memory.
func (m *Metrics) RecordHeld(ctx context.Context) {
	m.ActiveSessions.Add(ctx, 1)
}

// RecordTrial counts one scored trial.
func (m *Metrics) RecordTrial(ctx context.Context, correct bool) {
	m.TrialsScored.Add(ctx, 1, metric.WithAttributes(attribute.Bool("correct", correct)))
}

// RecordCompleted counts a finished screening and its threshold.
func (m *Metrics) RecordCompleted(ctx context.Context, result, language string, srtDb float64) {
	m.TestsCompleted.Add(ctx, 1, metric.WithAttributes(
		attribute.String("result", result),
		attribute.String("language", language),
	))
	m.SRT.Record(ctx, srtDb)
}

// RecordEnded marks a session as no longer held.
func (m *Metrics) RecordEnded(ctx context.Context, n int) {
	m.ActiveSessions.Add(ctx, int64(-n))
}
