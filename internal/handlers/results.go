package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/igvedmak/parkspeak/internal/hearing"
	"github.com/igvedmak/parkspeak/internal/metrics"
	"github.com/igvedmak/parkspeak/internal/models"
	"github.com/igvedmak/parkspeak/internal/repository"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 200
	defaultChartDays    = 365
)

type ResultsHandler struct {
	log *zap.Logger
}

func NewResultsHandler(log *zap.Logger) *ResultsHandler {
	return &ResultsHandler{log: log}
}

// Latest returns the most recent saved screening.
func (h *ResultsHandler) Latest(c *gin.Context) {
	rec, err := repository.GetLatestHearingTest(c.Request.Context())
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "No hearing tests recorded"})
		return
	}
	if err != nil {
		h.log.Error("Failed to load latest hearing test", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load results"})
		return
	}
	c.JSON(http.StatusOK, rec)
}

// Get returns one saved screening with statistics over its trials.
func (h *ResultsHandler) Get(c *gin.Context) {
	rec, err := repository.GetHearingTest(c.Request.Context(), c.Param("id"))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Hearing test not found"})
		return
	}
	if err != nil {
		h.log.Error("Failed to load hearing test", zap.Error(err), zap.String("resultID", c.Param("id")))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load results"})
		return
	}
	trials, err := rec.DecodeTrials()
	if err != nil {
		h.log.Error("Stored trials are unreadable", zap.Error(err), zap.String("resultID", rec.ID))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load results"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"test":    rec,
		"metrics": metrics.CalculateTrialMetrics(trials),
	})
}

// List returns saved screenings, newest first.
func (h *ResultsHandler) List(c *gin.Context) {
	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	recs, err := repository.ListHearingTests(c.Request.Context(), limit)
	if err != nil {
		h.log.Error("Failed to list hearing tests", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load results"})
		return
	}
	if recs == nil {
		recs = []models.HearingTest{}
	}
	c.JSON(http.StatusOK, gin.H{"results": recs})
}

// Chart returns ECharts options plotting SRT over time.
func (h *ResultsHandler) Chart(c *gin.Context) {
	days := defaultChartDays
	if raw := c.Query("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "days must be a positive integer"})
			return
		}
		days = n
	}

	since := time.Now().UTC().AddDate(0, 0, -days)
	data, err := repository.GetSRTTimeline(c.Request.Context(), since)
	if err != nil {
		h.log.Error("Failed to get SRT timeline", zap.Error(err), zap.Int("days", days))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load timeline data"})
		return
	}

	chart := generateSRTChart(data)
	c.JSON(http.StatusOK, gin.H{"points": len(data), "options": chart.JSON()})
}

func generateSRTChart(data []repository.TimelineDataPoint) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    "Speech Reception Threshold",
			Subtitle: "dB SNR, lower is better",
		}),
		charts.WithXAxisOpts(opts.XAxis{
			Type: "time",
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Type:  "value",
			Scale: opts.Bool(true),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider"}),
	)

	items := make([]opts.LineData, 0, len(data))
	for _, point := range data {
		items = append(items, opts.LineData{Value: []interface{}{point.Date, point.Value}, Name: point.Result})
	}

	line.AddSeries("SRT", items).SetSeriesOptions(
		charts.WithLineStyleOpts(opts.LineStyle{Width: 2}),
		charts.WithMarkLineNameYAxisItemOpts(
			opts.MarkLineNameYAxisItem{Name: string(hearing.BandNormal), YAxis: hearing.NormalMaxSRT},
			opts.MarkLineNameYAxisItem{Name: string(hearing.BandBorderline), YAxis: hearing.BorderlineMaxSRT},
		),
	)
	return line
}
