package pipeline

import (
	"fmt"

	"avatar-pipeline/internal/domain"
)

// lifecycle enforces the strictly forward run state machine:
// parsed → validated → audio_resolved → media_resolved → invoked →
// completed, with failed reachable from any non-terminal state.
type lifecycle struct {
	status domain.RunStatus
}

// newLifecycle starts a run in the parsed state.
func newLifecycle() *lifecycle {
	return &lifecycle{status: domain.RunStatusParsed}
}

// advance validates and applies a forward transition.
func (l *lifecycle) advance(to domain.RunStatus) error {
	if !isValidTransition(l.status, to) {
		return fmt.Errorf("invalid run transition: %s -> %s", l.status, to)
	}
	l.status = to
	return nil
}

// fail moves any non-terminal state to failed.
func (l *lifecycle) fail() {
	if l.status == domain.RunStatusCompleted || l.status == domain.RunStatusFailed {
		return
	}
	l.status = domain.RunStatusFailed
}

// Status returns the current run state.
func (l *lifecycle) Status() domain.RunStatus {
	return l.status
}

// isValidTransition enforces the allowed state machine edges.
func isValidTransition(from, to domain.RunStatus) bool {
	if to == domain.RunStatusFailed {
		return from != domain.RunStatusCompleted && from != domain.RunStatusFailed
	}

	switch from {
	case domain.RunStatusParsed:
		return to == domain.RunStatusValidated
	case domain.RunStatusValidated:
		return to == domain.RunStatusAudioResolved
	case domain.RunStatusAudioResolved:
		return to == domain.RunStatusMediaResolved
	case domain.RunStatusMediaResolved:
		return to == domain.RunStatusInvoked
	case domain.RunStatusInvoked:
		return to == domain.RunStatusCompleted
	default:
		return false
	}
}
