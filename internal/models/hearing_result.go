package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/igvedmak/parkspeak/internal/hearing"

	"gorm.io/datatypes"
)

// HearingTest is the persisted outcome of a completed hearing screening.
type HearingTest struct {
	ID             string         `gorm:"primaryKey;size:36" json:"id"`
	TestedAt       time.Time      `gorm:"not null;index" json:"testedAt"`
	SRTDb          float64        `gorm:"not null" json:"srtDb"`
	Result         string         `gorm:"size:16;not null" json:"result"`
	TrialsJSON     datatypes.JSON `json:"trials"`
	AmbientNoiseDb *float64       `json:"ambientNoiseDb"`
	Language       string         `gorm:"size:16;default:en" json:"language"`
	Trials         []HearingTrial `gorm:"foreignKey:ResultID;constraint:OnDelete:CASCADE" json:"-"`
}

// HearingTrial is one presentation within a HearingTest, kept as its own
// row for reporting.
type HearingTrial struct {
	ID       uint    `gorm:"primaryKey"`
	ResultID string  `gorm:"size:36;index"`
	Position int     // 1-based presentation order
	Digits   string  `gorm:"size:3"`
	SNRDb    float64
	Response *string `gorm:"size:3"`
	Correct  *bool
}

// HearingTestFromState builds the record for a completed test. trials are
// serialized verbatim.
func HearingTestFromState(id string, testedAt time.Time, s hearing.State, ambientDb *float64, language string) (*HearingTest, error) {
	if !s.Complete() || s.SRTDb == nil || s.Result == nil {
		return nil, fmt.Errorf("hearing test %s is not complete (phase %s)", id, s.Phase)
	}
	raw, err := json.Marshal(s.Trials)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize trials: %w", err)
	}

	rows := make([]HearingTrial, 0, len(s.Trials))
	for i, t := range s.Trials {
		row := HearingTrial{
			ResultID: id,
			Position: i + 1,
			Digits:   FormatDigits(t.Digits),
			SNRDb:    t.SNRDb,
			Correct:  t.Correct,
		}
		if t.Response != nil {
			resp := FormatDigits(*t.Response)
			row.Response = &resp
		}
		rows = append(rows, row)
	}

	return &HearingTest{
		ID:             id,
		TestedAt:       testedAt,
		SRTDb:          *s.SRTDb,
		Result:         string(*s.Result),
		TrialsJSON:     raw,
		AmbientNoiseDb: ambientDb,
		Language:       language,
		Trials:         rows,
	}, nil
}

// DecodeTrials parses the stored trial audit trail.
func (h *HearingTest) DecodeTrials() ([]hearing.Trial, error) {
	if len(h.TrialsJSON) == 0 {
		return nil, nil
	}
	var trials []hearing.Trial
	if err := json.Unmarshal(h.TrialsJSON, &trials); err != nil {
		return nil, fmt.Errorf("failed to decode trials for %s: %w", h.ID, err)
	}
	return trials, nil
}

// FormatDigits renders a triplet as "123".
func FormatDigits(t hearing.Triplet) string {
	var b strings.Builder
	for _, d := range t {
		b.WriteString(strconv.Itoa(d))
	}
	return b.String()
}

// ParseDigits is the inverse of FormatDigits.
func ParseDigits(s string) (hearing.Triplet, error) {
	var t hearing.Triplet
	if len(s) != 3 {
		return t, fmt.Errorf("expected 3 digits, got %q", s)
	}
	for i, r := range s {
		if r < '0' || r > '9' {
			return t, fmt.Errorf("invalid digit %q in %q", r, s)
		}
		t[i] = int(r - '0')
	}
	return t, nil
}
