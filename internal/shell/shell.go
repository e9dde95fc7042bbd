// Package shell runs local subprocesses and captures their combined output
// as lines. Both the device channel (adb) and the archive tools go through
// a Runner so tests can substitute canned results.
package shell

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Command describes one subprocess invocation.
type Command struct {
	Name string
	Args []string
	Dir  string // working directory; empty means the current one
}

// String renders the command line for logs and error messages.
func (c Command) String() string {
	parts := make([]string, 0, len(c.Args)+1)
	parts = append(parts, c.Name)

	for _, a := range c.Args {
		parts = append(parts, Quote(a))
	}

	return strings.Join(parts, " ")
}

// Result is the captured outcome of a finished subprocess.
type Result struct {
	Lines    []string
	ExitCode int
}

// OK reports whether the process exited with status zero.
func (r *Result) OK() bool {
	return r.ExitCode == 0
}

// Last returns the final non-empty output line, or "".
func (r *Result) Last() string {
	for i := len(r.Lines) - 1; i >= 0; i-- {
		if strings.TrimSpace(r.Lines[i]) != "" {
			return r.Lines[i]
		}
	}

	return ""
}

// Contains reports whether any output line contains substr.
func (r *Result) Contains(substr string) bool {
	if substr == "" {
		return false
	}

	for _, l := range r.Lines {
		if strings.Contains(l, substr) {
			return true
		}
	}

	return false
}

// Runner executes a Command. A non-zero exit status is reported through
// Result.ExitCode with a nil error; the error is reserved for processes that
// could not be started or were interrupted.
type Runner interface {
	Run(ctx context.Context, cmd Command) (*Result, error)
}

// ExecRunner is the os/exec backed Runner.
type ExecRunner struct{}

// Run starts the process, waits for it, and splits stdout+stderr into lines.
func (ExecRunner) Run(ctx context.Context, c Command) (*Result, error) {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir

	output, err := cmd.CombinedOutput()
	res := &Result{Lines: splitLines(output)}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && ctx.Err() == nil {
			res.ExitCode = exitErr.ExitCode()

			return res, nil
		}

		return res, fmt.Errorf("shell: running %s: %w", c.Name, err)
	}

	return res, nil
}

func splitLines(b []byte) []string {
	var lines []string

	sc := bufio.NewScanner(bytes.NewReader(b))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	for sc.Scan() {
		lines = append(lines, strings.TrimRight(sc.Text(), "\r"))
	}

	return lines
}

// Quote returns s quoted for a POSIX shell when it contains anything other
// than a conservative set of safe characters.
func Quote(s string) string {
	if s == "" {
		return "''"
	}

	safe := true

	for _, r := range s {
		if !isSafe(r) {
			safe = false
			break
		}
	}

	if safe {
		return s
	}

	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func isSafe(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	}

	return strings.ContainsRune("-_./=:@%+,", r)
}

// Join quotes every word and joins them with spaces, producing a single
// command string for a remote shell.
func Join(words ...string) string {
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = Quote(w)
	}

	return strings.Join(quoted, " ")
}
