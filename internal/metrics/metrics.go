// Package metrics derives descriptive statistics from the trials of a
// hearing test. Nothing here affects the SRT or the screening band.
package metrics

import (
	"math"

	"github.com/igvedmak/parkspeak/internal/hearing"
)

type TrialMetrics struct {
	TotalTrials    int       `json:"totalTrials"`
	AnsweredTrials int       `json:"answeredTrials"`
	CorrectTrials  int       `json:"correctTrials"`
	PercentCorrect float64   `json:"percentCorrect"`
	Reversals      int       `json:"reversals"`
	ReversalSNRs   []float64 `json:"reversalSnrs"`
	ReversalMean   float64   `json:"reversalMeanSnr"`
	ScoredSNRSD    float64   `json:"scoredSnrSd"`
	MinSNR         float64   `json:"minSnr"`
	MaxSNR         float64   `json:"maxSnr"`
	LongestCorrect int       `json:"longestCorrectRun"`
}

// CalculateTrialMetrics summarizes a trial sequence. Unanswered trials count
// toward TotalTrials and the SNR range only.
func CalculateTrialMetrics(trials []hearing.Trial) *TrialMetrics {
	m := &TrialMetrics{TotalTrials: len(trials), ReversalSNRs: []float64{}}
	if len(trials) == 0 {
		return m
	}

	m.MinSNR, m.MaxSNR = trials[0].SNRDb, trials[0].SNRDb
	last := hearing.DirectionNone
	run := 0
	for _, t := range trials {
		m.MinSNR = math.Min(m.MinSNR, t.SNRDb)
		m.MaxSNR = math.Max(m.MaxSNR, t.SNRDb)
		if t.Correct == nil {
			continue
		}
		m.AnsweredTrials++

		dir := hearing.DirectionRaise
		if *t.Correct {
			dir = hearing.DirectionLower
			m.CorrectTrials++
			run++
			m.LongestCorrect = max(m.LongestCorrect, run)
		} else {
			run = 0
		}
		if last != hearing.DirectionNone && dir != last {
			m.Reversals++
			m.ReversalSNRs = append(m.ReversalSNRs, t.SNRDb)
		}
		last = dir
	}

	if m.AnsweredTrials > 0 {
		m.PercentCorrect = 100 * float64(m.CorrectTrials) / float64(m.AnsweredTrials)
	}
	m.ReversalMean = mean(m.ReversalSNRs)
	if len(trials) > hearing.WarmupTrials {
		snrs := make([]float64, 0, len(trials)-hearing.WarmupTrials)
		for _, t := range trials[hearing.WarmupTrials:] {
			snrs = append(snrs, t.SNRDb)
		}
		m.ScoredSNRSD = standardDeviation(snrs)
	}
	return m
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// standardDeviation is the population SD; fewer than two values give 0.
func standardDeviation(values []float64) float64 {
	if len(values) <= 1 {
		return 0
	}
	avg := mean(values)
	var sumSquaredDiff float64
	for _, v := range values {
		diff := v - avg
		sumSquaredDiff += diff * diff
	}
	return math.Sqrt(sumSquaredDiff / float64(len(values)))
}
