// Package hearing implements the adaptive digits-in-noise screening test.
//
// The test is a 1-up-1-down staircase over signal-to-noise ratio. Each trial
// presents a triplet of distinct digits; an exact response lowers the SNR,
// anything else raises it. The step narrows from 4 dB to 2 dB after the first
// reversal and stays there. After 23 trials the Speech Reception Threshold is
// the mean SNR of every trial past the 4-trial warm-up, and it is classified
// into a screening band.
//
// Every transition is a pure function from (State, input) to State. Calls that
// do not fit the current phase return the input unchanged, which absorbs
// duplicate UI events such as a double submission.
package hearing

const (
	TotalTrials      = 23
	WarmupTrials     = 4
	InitialSNRDb     = 4.0
	InitialStepDb    = 4.0
	FinalStepDb      = 2.0
	NormalMaxSRT     = -5.5
	BorderlineMaxSRT = -2.8
)

// Rand is the random source used to draw digits. *math/rand/v2.Rand
// satisfies it.
type Rand interface {
	IntN(n int) int
}

// Procedure holds the staircase parameters.
type Procedure struct {
	TotalTrials      int
	WarmupTrials     int
	InitialSNRDb     float64
	InitialStepDb    float64
	FinalStepDb      float64
	NormalMaxSRT     float64
	BorderlineMaxSRT float64
}

// Standard is the calibrated procedure. Stored SRT values are only
// comparable when produced by it.
var Standard = Procedure{
	TotalTrials:      TotalTrials,
	WarmupTrials:     WarmupTrials,
	InitialSNRDb:     InitialSNRDb,
	InitialStepDb:    InitialStepDb,
	FinalStepDb:      FinalStepDb,
	NormalMaxSRT:     NormalMaxSRT,
	BorderlineMaxSRT: BorderlineMaxSRT,
}

// NewState returns a fresh test in the instructions phase.
func (p Procedure) NewState() State {
	return State{
		CurrentSNR:    p.InitialSNRDb,
		StepSize:      p.InitialStepDb,
		LastDirection: DirectionNone,
		Phase:         PhaseInstructions,
	}
}

// BeginAmbientCheck moves a test from instructions to the ambient check.
func (p Procedure) BeginAmbientCheck(s State) State {
	if s.Phase != PhaseInstructions {
		return s
	}
	s.Trials = cloneTrials(s.Trials)
	s.Phase = PhaseAmbientCheck
	return s
}

// Start moves a test from the ambient check into the running phase. Whether
// the room is quiet enough is decided by the caller.
func (p Procedure) Start(s State) State {
	if s.Phase != PhaseAmbientCheck {
		return s
	}
	s.Trials = cloneTrials(s.Trials)
	s.Phase = PhaseRunning
	return s
}

// AddNextTrial appends an unanswered trial at the current SNR. The first
// digit of the new triplet differs from the first digit of the previous one.
func (p Procedure) AddNextTrial(s State, rng Rand) State {
	if s.Phase != PhaseRunning || len(s.Trials) >= p.TotalTrials {
		return s
	}
	var exclude *int
	if n := len(s.Trials); n > 0 {
		last := s.Trials[n-1]
		if !last.Answered() {
			return s
		}
		first := last.Digits[0]
		exclude = &first
	}

	trials := make([]Trial, len(s.Trials), len(s.Trials)+1)
	copy(trials, s.Trials)
	s.Trials = append(trials, Trial{
		Digits: GenerateTriplet(rng, exclude),
		SNRDb:  s.CurrentSNR,
	})
	return s
}

// ScoreTrial records the response to the pending trial and advances the
// staircase.
func (p Procedure) ScoreTrial(s State, response Triplet) State {
	current, ok := s.Current()
	if s.Phase != PhaseRunning || !ok {
		return s
	}

	correct := response == current.Digits
	direction := DirectionRaise
	if correct {
		direction = DirectionLower
	}

	reversals := s.ReversalCount
	if s.LastDirection != DirectionNone && direction != s.LastDirection {
		reversals++
	}
	step := s.StepSize
	if reversals >= 1 {
		step = p.FinalStepDb
	}

	resp := response
	current.Response = &resp
	current.Correct = &correct

	trials := cloneTrials(s.Trials)
	trials[len(trials)-1] = current

	next := s
	next.Trials = trials
	next.CurrentSNR = s.CurrentSNR + float64(direction)*step
	next.StepSize = step
	next.ReversalCount = reversals
	next.LastDirection = direction

	if len(trials) >= p.TotalTrials {
		// ErrNoScorableTrials leaves srt at 0; only reachable with a
		// non-standard procedure.
		srt, _ := p.ComputeSRT(trials)
		band := p.Classify(srt)
		next.Phase = PhaseComplete
		next.SRTDb = &srt
		next.Result = &band
	}
	return next
}

// ComputeSRT averages the SNR of every trial after the warm-up window.
func (p Procedure) ComputeSRT(trials []Trial) (float64, error) {
	if len(trials) <= p.WarmupTrials {
		return 0, ErrNoScorableTrials
	}
	tail := trials[p.WarmupTrials:]
	var sum float64
	for _, t := range tail {
		sum += t.SNRDb
	}
	return sum / float64(len(tail)), nil
}

// Classify maps an SRT to its screening band. Band edges belong to the
// better band.
func (p Procedure) Classify(srtDb float64) Band {
	switch {
	case srtDb <= p.NormalMaxSRT:
		return BandNormal
	case srtDb <= p.BorderlineMaxSRT:
		return BandBorderline
	default:
		return BandRefer
	}
}

func cloneTrials(trials []Trial) []Trial {
	if trials == nil {
		return nil
	}
	out := make([]Trial, len(trials))
	copy(out, trials)
	return out
}

// NewState returns a fresh test under the standard procedure.
func NewState() State { return Standard.NewState() }

// BeginAmbientCheck applies Standard.BeginAmbientCheck.
func BeginAmbientCheck(s State) State { return Standard.BeginAmbientCheck(s) }

// Start applies Standard.Start.
func Start(s State) State { return Standard.Start(s) }

// AddNextTrial applies Standard.AddNextTrial.
func AddNextTrial(s State, rng Rand) State { return Standard.AddNextTrial(s, rng) }

// ScoreTrial applies Standard.ScoreTrial.
func ScoreTrial(s State, response Triplet) State { return Standard.ScoreTrial(s, response) }

// ComputeSRT applies Standard.ComputeSRT.
func ComputeSRT(trials []Trial) (float64, error) { return Standard.ComputeSRT(trials) }

// Classify applies Standard.Classify.
func Classify(srtDb float64) Band { return Standard.Classify(srtDb) }
