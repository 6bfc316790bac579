package graph

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

var (
	// ErrUserRejected is reported when a user declines an approval gate.
	ErrUserRejected = errors.New("User rejected")

	// ErrReconfigurationWhileRunning is returned by Reconfigure outside a pause.
	ErrReconfigurationWhileRunning = errors.New("graph can only be reconfigured while paused")

	// ErrRunInProgress is returned when a run is started while another is active.
	ErrRunInProgress = errors.New("a run is already in progress")

	// ErrNoRestoredState is returned by Replay when no checkpoint was restored.
	ErrNoRestoredState = errors.New("no restored state to replay")

	// ErrInteractionReleased is returned to waiters whose request was dropped.
	ErrInteractionReleased = errors.New("interaction released")

	// ErrInteractionExpired marks a request that timed out before resolution.
	ErrInteractionExpired = errors.New("interaction expired")
)

// NoEntryNodeError is returned when neither a command nor the default node
// matches the input.
type NoEntryNodeError struct {
	Input string
}

func (e *NoEntryNodeError) Error() string {
	return fmt.Sprintf("no entry node matches input %q and no %s node is defined", truncate(e.Input, 40), DefaultCommand)
}

// ConditionEvaluationError wraps a failure while evaluating an edge condition.
type ConditionEvaluationError struct {
	From string
	To   string
	Kind ConditionKind
	Err  error
}

func (e *ConditionEvaluationError) Error() string {
	return fmt.Sprintf("evaluate %s condition on edge %s -> %s: %v", e.Kind, e.From, e.To, e.Err)
}

func (e *ConditionEvaluationError) Unwrap() error {
	return e.Err
}

// CheckpointNotFoundError is returned when restoring an unknown checkpoint.
type CheckpointNotFoundError struct {
	ID string
}

func (e *CheckpointNotFoundError) Error() string {
	return fmt.Sprintf("checkpoint %s not found", e.ID)
}

// nodeErrorMarker renders the stream text for a failed node.
func nodeErrorMarker(err error) string {
	return fmt.Sprintf("Error in node execution: %v", err)
}

// truncate shortens s to at most n runes.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos] + "..."
		}
		i++
	}
	return s
}
