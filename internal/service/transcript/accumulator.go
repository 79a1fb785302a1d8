package transcript

import (
	"fmt"
	"math"

	"speech-transcript-service/internal/service/stt"
)

// Confidence is an optional confidence reading in [0,1].
type Confidence struct {
	Value float64
	Valid bool
}

// Percent returns the reading rounded to a whole percentage.
func (c Confidence) Percent() (int, bool) {
	if !c.Valid {
		return 0, false
	}
	return int(math.Round(c.Value * 100)), true
}

// Result is the outcome of folding one batch.
type Result struct {
	FinalDelta string // text finalized by this batch, without the trailing space
	Interim    string // replacement interim text
	Watermark  int
	Confidence Confidence // confidence of the last final hypothesis carrying one
}

// Apply folds the hypotheses of batch starting at watermark.
//
// Final hypotheses are concatenated into FinalDelta and move the watermark
// one past their index. Everything else is concatenated into Interim, which
// replaces rather than extends the previous interim text.
func Apply(batch stt.Batch, watermark int) (Result, error) {
	if watermark < 0 {
		watermark = 0
	}
	res := Result{Watermark: watermark}

	for i := watermark; i < len(batch.Hypotheses); i++ {
		h := batch.Hypotheses[i]
		best, err := Select(h.Candidates)
		if err != nil {
			return Result{Watermark: watermark}, fmt.Errorf("hypothesis %d: %w", i, err)
		}
		if h.IsFinal {
			res.FinalDelta += best.Text
			res.Watermark = i + 1
			if best.HasConfidence {
				res.Confidence = Confidence{Value: best.Confidence, Valid: true}
			}
		} else {
			res.Interim += best.Text
		}
	}
	return res, nil
}

// State holds the finalized text, the interim text and the watermark of
// the current provider run.
//
// Finalized only grows between resets; Interim is replaced on every batch.
type State struct {
	Finalized  string
	Interim    string
	Watermark  int
	Confidence Confidence
}

// Apply folds batch into the state. On error the state is left untouched.
func (s *State) Apply(batch stt.Batch) (Result, error) {
	res, err := Apply(batch, s.Watermark)
	if err != nil {
		return res, err
	}
	if res.FinalDelta != "" {
		s.Finalized += res.FinalDelta + " "
	}
	s.Interim = res.Interim
	s.Watermark = res.Watermark
	if res.Confidence.Valid {
		s.Confidence = res.Confidence
	}
	return res, nil
}

// FoldInterim moves pending interim text into the finalized text as is.
// It reports whether anything was moved.
func (s *State) FoldInterim() bool {
	if s.Interim == "" {
		return false
	}
	s.Finalized += s.Interim
	s.Interim = ""
	return true
}

// ResetWatermark starts index bookkeeping over for a new provider run.
func (s *State) ResetWatermark() {
	s.Watermark = 0
}

// Reset clears everything.
func (s *State) Reset() {
	*s = State{}
}

// Text returns the displayable transcript.
func (s State) Text() string {
	return s.Finalized + s.Interim
}
