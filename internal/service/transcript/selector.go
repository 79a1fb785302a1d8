// Package transcript folds recognition batches into a stable transcript.
package transcript

import (
	"errors"

	"speech-transcript-service/internal/service/stt"
)

// ErrInvalidInput is returned for inputs no provider should produce,
// such as a hypothesis without candidates.
var ErrInvalidInput = errors.New("invalid input")

// Select picks the best candidate of a hypothesis.
//
// The candidate with the strictly greatest confidence wins and ties go to
// the lowest index. Candidates without a confidence rank below any that
// carry one; when none carries one the first candidate is returned as is.
func Select(candidates []stt.Candidate) (stt.Candidate, error) {
	if len(candidates) == 0 {
		return stt.Candidate{}, ErrInvalidInput
	}

	best := 0
	for i := 1; i < len(candidates); i++ {
		c := candidates[i]
		if !c.HasConfidence {
			continue
		}
		if !candidates[best].HasConfidence || c.Confidence > candidates[best].Confidence {
			best = i
		}
	}
	return candidates[best], nil
}
