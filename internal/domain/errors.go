package domain

import (
	"errors"
	"fmt"
)

// Process exit codes for the standardized CLI surface.
const (
	ExitOK    = 0
	ExitInput = 1
	ExitUsage = 2
)

// UserInputError reports invalid user input: missing flags, nonexistent
// files, or the audio-or-text rule. It is raised before any subprocess runs.
type UserInputError struct {
	Message string
}

// Error returns the user-facing message.
func (e *UserInputError) Error() string {
	return e.Message
}

// NewUserInputError formats a user input failure.
func NewUserInputError(format string, args ...any) *UserInputError {
	return &UserInputError{Message: fmt.Sprintf(format, args...)}
}

// UsageError reports an unknown backend or unknown flag.
type UsageError struct {
	Message string
}

// Error returns the user-facing message.
func (e *UsageError) Error() string {
	return e.Message
}

// NewUsageError formats a usage failure.
func NewUsageError(format string, args ...any) *UsageError {
	return &UsageError{Message: fmt.Sprintf(format, args...)}
}

// DependencyError reports a missing external tool, script, or model file
// together with the remediation step that installs it.
type DependencyError struct {
	Message string
	Hint    string
}

// Error returns the message without the hint.
func (e *DependencyError) Error() string {
	return e.Message
}

// ExitCode maps an error to the CLI exit code contract.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}

	var usageErr *UsageError
	if errors.As(err, &usageErr) {
		return ExitUsage
	}
	return ExitInput
}

// RemediationHint extracts the hint from dependency failures, if any.
func RemediationHint(err error) string {
	var depErr *DependencyError
	if errors.As(err, &depErr) {
		return depErr.Hint
	}
	return ""
}
