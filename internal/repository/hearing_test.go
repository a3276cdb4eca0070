package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/igvedmak/parkspeak/internal/config"
	"github.com/igvedmak/parkspeak/internal/database"
	"github.com/igvedmak/parkspeak/internal/hearing"
	"github.com/igvedmak/parkspeak/internal/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupDB(t *testing.T) {
	t.Helper()
	cfg := config.DatabaseConfig{
		Driver:     "sqlite",
		SQLitePath: fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()),
		LogLevel:   "silent",
	}
	db, err := database.Open(cfg, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	if err := database.Migrate(db, zap.NewNop()); err != nil {
		t.Fatal(err)
	}
	prev := database.DB
	database.DB = db
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
		database.DB = prev
	})
}

func completedRecord(t *testing.T, id string, at time.Time, srt float64) *models.HearingTest {
	t.Helper()
	band := hearing.Classify(srt)
	s := hearing.State{Phase: hearing.PhaseComplete, SRTDb: &srt, Result: &band}
	for i := 0; i < 3; i++ {
		correct := i%2 == 0
		resp := hearing.Triplet{i, i + 1, i + 2}
		s.Trials = append(s.Trials, hearing.Trial{
			Digits:   hearing.Triplet{i, i + 1, i + 2},
			SNRDb:    float64(4 - 2*i),
			Response: &resp,
			Correct:  &correct,
		})
	}
	rec, err := models.HearingTestFromState(id, at, s, nil, "en")
	if err != nil {
		t.Fatal(err)
	}
	return rec
}

func TestSaveAndLoadHearingTest(t *testing.T) {
	setupDB(t)
	ctx := context.Background()

	if _, err := GetLatestHearingTest(ctx); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("empty table: err = %v", err)
	}

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	older := completedRecord(t, "a", base, -3.0)
	newer := completedRecord(t, "b", base.Add(24*time.Hour), -6.5)
	if err := (HearingStore{}).SaveResult(ctx, older); err != nil {
		t.Fatal(err)
	}
	if err := SaveHearingTest(ctx, newer); err != nil {
		t.Fatal(err)
	}

	latest, err := GetLatestHearingTest(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if latest.ID != "b" || latest.Result != "normal" || latest.SRTDb != -6.5 {
		t.Fatalf("latest = %+v", latest)
	}

	got, err := GetHearingTest(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	if got.Result != "borderline" || len(got.Trials) != 3 {
		t.Fatalf("loaded = %+v", got)
	}
	for i, tr := range got.Trials {
		if tr.Position != i+1 {
			t.Fatalf("trial %d position %d", i, tr.Position)
		}
	}
	trials, err := got.DecodeTrials()
	if err != nil || len(trials) != 3 || trials[2].SNRDb != 0 {
		t.Fatalf("decoded trials = %+v, %v", trials, err)
	}

	list, err := ListHearingTests(ctx, 1)
	if err != nil || len(list) != 1 || list[0].ID != "b" {
		t.Fatalf("list = %+v, %v", list, err)
	}

	timeline, err := GetSRTTimeline(ctx, base.Add(-time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(timeline) != 2 || timeline[0].Value != -3.0 || timeline[1].Result != "normal" {
		t.Fatalf("timeline = %+v", timeline)
	}
}

func TestSaveHearingTestRollsBackOnDuplicate(t *testing.T) {
	setupDB(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	if err := SaveHearingTest(ctx, completedRecord(t, "dup", at, -4)); err != nil {
		t.Fatal(err)
	}
	if err := SaveHearingTest(ctx, completedRecord(t, "dup", at, -4)); err == nil {
		t.Fatal("duplicate id accepted")
	}

	var count int64
	if err := database.DB.Model(&models.HearingTrial{}).Where("result_id = ?", "dup").Count(&count).Error; err != nil {
		t.Fatal(err)
	}
	if count != 3 {
		t.Fatalf("trial rows = %d, want 3", count)
	}
}
