package handlers

import (
	"net/http"

	"github.com/igvedmak/parkspeak/internal/speech"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SpeechHandler exposes the exercise scoring helpers.
type SpeechHandler struct {
	log *zap.Logger
}

func NewSpeechHandler(log *zap.Logger) *SpeechHandler {
	return &SpeechHandler{log: log}
}

type intelligibilityRequest struct {
	Recognized string `json:"recognized"`
	Target     string `json:"target"`
}

type difficultyRequest struct {
	AverageAccuracy *float64 `json:"averageAccuracy"`
}

func (h *SpeechHandler) Intelligibility(c *gin.Context) {
	var req intelligibilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	score := speech.Intelligibility(req.Recognized, req.Target)
	h.log.Debug("Scored intelligibility", zap.Int("score", score))
	c.JSON(http.StatusOK, gin.H{
		"score": score,
		"words": speech.WordResults(req.Recognized, req.Target),
	})
}

func (h *SpeechHandler) Difficulty(c *gin.Context) {
	var req difficultyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"level": speech.TargetDifficulty(req.AverageAccuracy)})
}
