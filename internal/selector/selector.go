// Package selector picks the fastest contiguous block of effort attempts
// that satisfies a week's repetition requirement.
package selector

import (
	"fmt"

	"example.com/league/internal/domain"
)

// Rejection reasons reported when a candidate activity cannot qualify.
const (
	ReasonSegmentNotFound = "segment not found in activity"
	ReasonTooFewAttempts  = "insufficient repetitions"
)

// Selection is the qualifying window chosen from one candidate activity.
type Selection struct {
	Attempts     []domain.EffortAttempt // window members in original order
	LapIndices   []int                  // positions within the matching-attempt sequence
	LapCount     int                    // total matching attempts in the activity
	TotalSeconds int64
}

// BestWindow evaluates every contiguous window of length required over the
// attempts, which must already be filtered to the target segment and be in
// upstream occurrence order. The window with the minimum total elapsed time
// wins; exact ties keep the earliest starting window. A non-empty reason is
// returned instead of a selection when the activity cannot qualify.
func BestWindow(attempts []domain.EffortAttempt, required int) (*Selection, string) {
	if required < 1 {
		return nil, fmt.Sprintf("invalid repetition requirement %d", required)
	}
	if len(attempts) == 0 {
		return nil, ReasonSegmentNotFound
	}
	if len(attempts) < required {
		return nil, fmt.Sprintf("%s: %d of %d", ReasonTooFewAttempts, len(attempts), required)
	}

	var sum int64
	for i := 0; i < required; i++ {
		sum += attempts[i].ElapsedSeconds
	}
	bestStart, bestSum := 0, sum
	for start := 1; start+required <= len(attempts); start++ {
		sum += attempts[start+required-1].ElapsedSeconds - attempts[start-1].ElapsedSeconds
		// strict less-than keeps the first-found window on ties
		if sum < bestSum {
			bestStart, bestSum = start, sum
		}
	}

	sel := &Selection{
		Attempts:     make([]domain.EffortAttempt, required),
		LapIndices:   make([]int, required),
		LapCount:     len(attempts),
		TotalSeconds: bestSum,
	}
	for i := 0; i < required; i++ {
		sel.Attempts[i] = attempts[bestStart+i]
		sel.LapIndices[i] = bestStart + i
	}
	return sel, ""
}
