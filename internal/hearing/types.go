package hearing

import "errors"

// Triplet is three spoken digits presented as one stimulus.
type Triplet [3]int

// Phase is the position of a test in its lifecycle.
type Phase string

const (
	PhaseInstructions Phase = "instructions"
	PhaseAmbientCheck Phase = "ambient_check"
	PhaseRunning      Phase = "running"
	PhaseComplete     Phase = "complete"
)

// Band is the screening outcome derived from the SRT.
type Band string

const (
	BandNormal     Band = "normal"
	BandBorderline Band = "borderline"
	BandRefer      Band = "refer"
)

// Direction is the SNR adjustment applied after a scored trial.
type Direction int

const (
	DirectionLower Direction = -1
	DirectionNone  Direction = 0
	DirectionRaise Direction = 1
)

// ErrNoScorableTrials is returned by ComputeSRT when every trial falls inside
// the warm-up window.
var ErrNoScorableTrials = errors.New("hearing: no trials after warm-up window")

// Trial is one presentation of a triplet at a fixed SNR.
type Trial struct {
	Digits   Triplet  `json:"digits"`
	SNRDb    float64  `json:"snrDb"`
	Response *Triplet `json:"response"`
	Correct  *bool    `json:"correct"`
}

// Answered reports whether the listener has responded to the trial.
func (t Trial) Answered() bool {
	return t.Response != nil
}

// State is the aggregate root of one test attempt. Transitions never mutate
// a State in place; they return a new value.
type State struct {
	Trials        []Trial   `json:"trials"`
	CurrentSNR    float64   `json:"currentSnr"`
	StepSize      float64   `json:"stepSize"`
	ReversalCount int       `json:"reversalCount"`
	LastDirection Direction `json:"lastDirection"`
	Phase         Phase     `json:"phase"`
	Result        *Band     `json:"result"`
	SRTDb         *float64  `json:"srtDb"`
}

// Current returns the trial awaiting a response, if any.
func (s State) Current() (Trial, bool) {
	if len(s.Trials) == 0 {
		return Trial{}, false
	}
	last := s.Trials[len(s.Trials)-1]
	if last.Answered() {
		return Trial{}, false
	}
	return last, true
}

// Scored returns the number of answered trials.
func (s State) Scored() int {
	n := 0
	for _, t := range s.Trials {
		if t.Answered() {
			n++
		}
	}
	return n
}

// Complete reports whether the test reached its terminal phase.
func (s State) Complete() bool {
	return s.Phase == PhaseComplete
}
