package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/igvedmak/parkspeak/internal/database"
	"github.com/igvedmak/parkspeak/internal/models"

	"gorm.io/gorm"
)

// SaveHearingTest stores the summary and every trial row in one transaction.
func SaveHearingTest(ctx context.Context, rec *models.HearingTest) error {
	return database.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		trials := rec.Trials
		summary := *rec
		summary.Trials = nil
		if err := tx.Create(&summary).Error; err != nil {
			return fmt.Errorf("insert hearing test: %w", err)
		}
		if len(trials) == 0 {
			return nil
		}
		for i := range trials {
			trials[i].ResultID = rec.ID
		}
		if err := tx.Create(&trials).Error; err != nil {
			return fmt.Errorf("insert hearing trials: %w", err)
		}
		return nil
	})
}

// GetLatestHearingTest returns the most recent result. gorm.ErrRecordNotFound
// when none exist.
func GetLatestHearingTest(ctx context.Context) (*models.HearingTest, error) {
	var rec models.HearingTest
	err := database.DB.WithContext(ctx).Order("tested_at DESC").First(&rec).Error
	return &rec, err
}

// GetHearingTest loads one result with its trial rows.
func GetHearingTest(ctx context.Context, id string) (*models.HearingTest, error) {
	var rec models.HearingTest
	err := database.DB.WithContext(ctx).
		Preload("Trials", func(db *gorm.DB) *gorm.DB { return db.Order("position") }).
		First(&rec, "id = ?", id).Error
	return &rec, err
}

// ListHearingTests returns up to limit results, newest first.
func ListHearingTests(ctx context.Context, limit int) ([]models.HearingTest, error) {
	if limit <= 0 {
		limit = 20
	}
	var recs []models.HearingTest
	err := database.DB.WithContext(ctx).Order("tested_at DESC").Limit(limit).Find(&recs).Error
	return recs, err
}

// TimelineDataPoint is one SRT measurement for charting.
type TimelineDataPoint struct {
	Date   time.Time `json:"date"`
	Value  float64   `json:"value"`
	Result string    `json:"result"`
}

// GetSRTTimeline returns every SRT measured since the given time, oldest
// first.
func GetSRTTimeline(ctx context.Context, since time.Time) ([]TimelineDataPoint, error) {
	var data []TimelineDataPoint
	err := database.DB.WithContext(ctx).
		Model(&models.HearingTest{}).
		Select("tested_at AS date, srt_db AS value, result").
		Where("tested_at >= ?", since).
		Order("tested_at").
		Scan(&data).Error
	return data, err
}

// HearingStore adapts the repository to the session manager's ResultStore.
type HearingStore struct{}

// SaveResult persists a completed test.
func (HearingStore) SaveResult(ctx context.Context, rec *models.HearingTest) error {
	return SaveHearingTest(ctx, rec)
}
