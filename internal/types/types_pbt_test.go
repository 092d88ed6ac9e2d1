package types

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

var allSubmissionStates = []SubmissionState{
	SubmissionPendingReview, SubmissionVerifiedAuto, SubmissionVerifiedManual, SubmissionRevoked,
}

var allIntentStatuses = []IntentStatus{
	IntentCreated, IntentAwaitingPayment, IntentConfirmed, IntentFailed,
}

// Any sequence of accepted transitions visits at most two states and never leaves a final state.
func TestSubmissionTransitionsProperty(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("accepted transition paths are short and forward-only", prop.ForAll(
		func(start int, steps []int) bool {
			state := allSubmissionStates[start]
			accepted := 0
			for _, step := range steps {
				next := allSubmissionStates[step]
				if state.CanTransitionTo(next) {
					state = next
					accepted++
				}
			}
			return accepted <= 1
		},
		gen.IntRange(0, len(allSubmissionStates)-1),
		gen.SliceOf(gen.IntRange(0, len(allSubmissionStates)-1)),
	))

	properties.TestingRun(t)
}

// Intent status can never move backward, whatever order transitions are attempted in.
func TestIntentStatusMonotonicProperty(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("status rank never decreases", prop.ForAll(
		func(steps []int) bool {
			state := IntentCreated
			for _, step := range steps {
				next := allIntentStatuses[step]
				if state.CanTransitionTo(next) {
					if intentRank[next] <= intentRank[state] {
						return false
					}
					state = next
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, len(allIntentStatuses)-1)),
	))

	properties.TestingRun(t)
}
