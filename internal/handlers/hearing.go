package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/igvedmak/parkspeak/internal/audio"
	"github.com/igvedmak/parkspeak/internal/hearing"
	"github.com/igvedmak/parkspeak/internal/services"
	"github.com/igvedmak/parkspeak/internal/utils"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SessionKey is the cookie-session key remembering the caller's active test.
const SessionKey = "hearingTestID"

type HearingHandler struct {
	log     *zap.Logger
	manager *services.HearingSessionManager
}

func NewHearingHandler(log *zap.Logger, manager *services.HearingSessionManager) *HearingHandler {
	return &HearingHandler{log: log, manager: manager}
}

type createTestRequest struct {
	Language string `json:"language"`
}

type ambientRequest struct {
	LevelDb      *float64  `json:"levelDb"`
	MeteringDbfs []float64 `json:"meteringDbfs"`
}

type responseRequest struct {
	Digits []int `json:"digits" binding:"required"`
}

// sessionView is the client-facing projection of a session. The pending
// trial is exposed only as a playback plan.
type sessionView struct {
	ID             string          `json:"id"`
	Language       string          `json:"language"`
	Phase          hearing.Phase   `json:"phase"`
	TrialNumber    int             `json:"trialNumber"`
	TotalTrials    int             `json:"totalTrials"`
	Scored         int             `json:"scored"`
	CurrentSNR     float64         `json:"currentSnr"`
	StepSize       float64         `json:"stepSize"`
	ReversalCount  int             `json:"reversalCount"`
	AmbientNoiseDb *float64        `json:"ambientNoiseDb"`
	Next           *audio.Playback `json:"next,omitempty"`
	Result         *hearing.Band   `json:"result"`
	SRTDb          *float64        `json:"srtDb"`
	Trials         []hearing.Trial `json:"trials,omitempty"`
	ResultID       string          `json:"resultId,omitempty"`
	Saved          bool            `json:"saved"`
}

func (h *HearingHandler) view(s *services.Session) sessionView {
	v := sessionView{
		ID:             s.ID,
		Language:       s.Language,
		Phase:          s.State.Phase,
		TrialNumber:    len(s.State.Trials),
		TotalTrials:    hearing.TotalTrials,
		Scored:         s.State.Scored(),
		CurrentSNR:     s.State.CurrentSNR,
		StepSize:       s.State.StepSize,
		ReversalCount:  s.State.ReversalCount,
		AmbientNoiseDb: s.AmbientNoiseDb,
		Result:         s.State.Result,
		SRTDb:          s.State.SRTDb,
		ResultID:       s.ResultID,
		Saved:          s.Saved,
	}
	if pb, ok := h.manager.NextPlayback(s); ok {
		v.Next = &pb
	}
	if s.State.Complete() {
		v.Trials = s.State.Trials
	}
	return v
}

// Create starts a new test and remembers it in the cookie session.
func (h *HearingHandler) Create(c *gin.Context) {
	var req createTestRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if req.Language != "" && !utils.IsValidLanguageCode(req.Language) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid language code"})
		return
	}

	s, err := h.manager.Create(c.Request.Context(), req.Language)
	if err != nil {
		h.fail(c, err)
		return
	}

	session := sessions.Default(c)
	session.Set(SessionKey, s.ID)
	if err := session.Save(); err != nil {
		h.log.Warn("Failed to save session cookie", zap.Error(err))
	}
	c.JSON(http.StatusCreated, h.view(s))
}

// Current returns the test remembered in the caller's cookie session.
func (h *HearingHandler) Current(c *gin.Context) {
	id, ok := sessions.Default(c).Get(SessionKey).(string)
	if !ok || id == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "No active hearing test"})
		return
	}
	h.get(c, id)
}

func (h *HearingHandler) Get(c *gin.Context) {
	h.get(c, c.Param("id"))
}

func (h *HearingHandler) get(c *gin.Context, id string) {
	s, err := h.manager.Get(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, h.view(s))
}

// BeginAmbientCheck moves past the instructions screen.
func (h *HearingHandler) BeginAmbientCheck(c *gin.Context) {
	s, err := h.manager.BeginAmbientCheck(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, h.view(s))
}

// SubmitAmbient accepts either a measured level or raw dBFS metering.
func (h *HearingHandler) SubmitAmbient(c *gin.Context) {
	var req ambientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	var level float64
	switch {
	case req.LevelDb != nil:
		level = *req.LevelDb
	case len(req.MeteringDbfs) > 0:
		if !utils.AreValidMeteringSamples(req.MeteringDbfs) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid metering samples"})
			return
		}
		level = audio.LevelFromMetering(req.MeteringDbfs)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "levelDb or meteringDbfs is required"})
		return
	}
	if !utils.IsValidLevel(level) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid ambient level"})
		return
	}

	s, err := h.manager.SubmitAmbient(c.Request.Context(), c.Param("id"), level)
	if errors.Is(err, services.ErrTooNoisy) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":   "Environment too noisy. Find a quieter place and try again.",
			"levelDb": level,
			"session": h.view(s),
		})
		return
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, h.view(s))
}

// Respond scores the pending trial and returns the next plan or the result.
func (h *HearingHandler) Respond(c *gin.Context) {
	var req responseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	digits, ok := utils.DigitsToTriplet(req.Digits)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "digits must be three values between 0 and 9"})
		return
	}

	s, err := h.manager.Respond(c.Request.Context(), c.Param("id"), digits)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, h.view(s))
}

// Discard cancels a test without saving it.
func (h *HearingHandler) Discard(c *gin.Context) {
	id := c.Param("id")
	if err := h.manager.Discard(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}

	session := sessions.Default(c)
	if current, _ := session.Get(SessionKey).(string); current == id {
		session.Delete(SessionKey)
		if err := session.Save(); err != nil {
			h.log.Warn("Failed to save session cookie", zap.Error(err))
		}
	}
	c.Status(http.StatusNoContent)
}

func (h *HearingHandler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Hearing test not found"})
	case errors.Is(err, services.ErrInvalidResponse):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.log.Error("Hearing test request failed", zap.Error(err), zap.String("path", c.FullPath()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
