package observe

import (
	"context"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func TestRecordCompleted(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordCompleted(ctx, "normal", "en", -7)
	m.RecordCompleted(ctx, "normal", "en", -6)
	m.RecordCompleted(ctx, "refer", "he", 1)

	rm := collect(t, reader)
	met := findMetric(rm, "parkspeak.hearing.tests_completed")
	if met == nil {
		t.Fatal("tests_completed not found")
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatal("tests_completed is not a sum")
	}
	found := false
	for _, dp := range sum.DataPoints {
		if v, ok := dp.Attributes.Value("result"); ok && v.AsString() == "normal" {
			found = true
			if dp.Value != 2 {
				t.Errorf("normal count = %d, want 2", dp.Value)
			}
		}
	}
	if !found {
		t.Error("data point with result=normal not found")
	}

	srt := findMetric(rm, "parkspeak.hearing.srt")
	if srt == nil {
		t.Fatal("srt histogram not found")
	}
	hist, ok := srt.Data.(metricdata.Histogram[float64])
	if !ok || len(hist.DataPoints) != 1 || hist.DataPoints[0].Count != 3 {
		t.Fatalf("srt histogram = %+v", srt.Data)
	}
}

func TestActiveSessions(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordStarted(ctx, "en")
	m.RecordHeld(ctx)
	m.RecordHeld(ctx)
	m.RecordHeld(ctx)
	m.RecordEnded(ctx, 2)

	rm := collect(t, reader)
	met := findMetric(rm, "parkspeak.hearing.active_sessions")
	if met == nil {
		t.Fatal("active_sessions not found")
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok || len(sum.DataPoints) != 1 {
		t.Fatalf("active_sessions = %+v", met.Data)
	}
	if sum.DataPoints[0].Value != 1 {
		t.Errorf("active sessions = %d, want 1", sum.DataPoints[0].Value)
	}
}
