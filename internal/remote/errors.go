// Package remote talks to the destination device over adb and exposes the
// destination tree as a small filesystem API. Every mutating call is checked
// against the destination root before anything is sent.
package remote

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors. Use errors.Is to classify a failure.
var (
	// ErrTransport means the command kept failing until the retry budget ran out.
	ErrTransport = errors.New("remote: transport failure")
	// ErrFatalOutput means the output contained the configured fatal substring.
	ErrFatalOutput = errors.New("remote: fatal output")
	// ErrOutsideRoot means a mutation targeted a path that is not strictly
	// below the destination root.
	ErrOutsideRoot = errors.New("remote: path outside destination root")
)

// CommandError carries the failing command and its captured output.
type CommandError struct {
	Command  string
	Output   []string
	ExitCode int
	Attempts int
	Err      error // sentinel, for errors.Is()
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("%v: %s (exit %d after %d attempt(s))", e.Err, e.Command, e.ExitCode, e.Attempts)
	if len(e.Output) > 0 {
		msg += ": " + strings.Join(e.Output, " | ")
	}

	return msg
}

func (e *CommandError) Unwrap() error {
	return e.Err
}
