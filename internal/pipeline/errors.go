package pipeline

import (
	"fmt"

	"avatar-pipeline/internal/execx"
)

// StageError is a stage-aware error with optional command context.
type StageError struct {
	Stage      string
	Message    string
	CommandLog execx.Log
	Err        error
}

// Error formats pipeline failures for the CLI.
func (e *StageError) Error() string {
	if e == nil {
		return ""
	}
	if e.CommandLog.Command == "" {
		return fmt.Sprintf("%s: %s", e.Stage, e.Message)
	}

	return fmt.Sprintf(
		"%s: %s (cmd=%s exit=%d)",
		e.Stage,
		e.Message,
		e.CommandLog.Command,
		e.CommandLog.ExitCode,
	)
}

// Unwrap exposes the underlying error for errors.Is / errors.As.
func (e *StageError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
