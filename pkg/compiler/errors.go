package compiler

import (
	"context"
	"errors"
	"fmt"
)

// Error categories. Every fatal error returned by Pipeline.Run matches
// exactly one of them with errors.Is, except cancellation.
var (
	ErrInput   = errors.New("invalid input")
	ErrStorage = errors.New("staging storage failure")
	ErrOutput  = errors.New("output failure")
)

// Input errors with their own exit codes.
var (
	ErrSourceNotFound = fmt.Errorf("%w: source file does not exist", ErrInput)
	ErrSourceName     = fmt.Errorf("%w: source file name must not contain '@'", ErrInput)
)

// Exit codes reported by the CLI.
const (
	ExitOK             = 0
	ExitUnknown        = 1
	ExitSourceNotFound = 2
	ExitSourceName     = 3
	ExitStorage        = 4
	ExitOutput         = 5
	ExitInterrupted    = 130
)

// PhaseError reports the pipeline phase and file a fatal error happened in.
type PhaseError struct {
	Phase string
	Path  string
	Kind  error
	Err   error
}

func (e *PhaseError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s: %v", e.Phase, e.Path, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Phase, e.Err)
}

// Unwrap exposes both the category and the cause to errors.Is and errors.As.
func (e *PhaseError) Unwrap() []error { return []error{e.Kind, e.Err} }

// ExitCode maps an error returned by Pipeline.Run to a process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, context.Canceled):
		return ExitInterrupted
	case errors.Is(err, ErrSourceNotFound):
		return ExitSourceNotFound
	case errors.Is(err, ErrSourceName):
		return ExitSourceName
	case errors.Is(err, ErrStorage):
		return ExitStorage
	case errors.Is(err, ErrOutput):
		return ExitOutput
	}
	return ExitUnknown
}
