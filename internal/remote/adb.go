package remote

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/yuichietsu/retroarch-sync/internal/shell"
)

// Defaults for the adb channel.
const (
	DefaultRetryCount    = 5
	DefaultRetryInterval = 60 * time.Second
	DefaultFatalOutput   = "No such file or directory"
)

// connectFailures are adb connect outputs that mean the device is unreachable.
var connectFailures = []string{"failed to connect", "cannot connect", "unable to connect"}

// ADBConfig configures the adb channel.
type ADBConfig struct {
	Path          string // adb binary
	Serial        string // device serial or host:port; empty uses the only device
	RetryCount    int
	RetryInterval time.Duration
	FatalOutput   string // substring that aborts retries immediately
}

// ADB runs shell commands and pushes files through the adb binary.
type ADB struct {
	cfg    ADBConfig
	runner shell.Runner
	logger *slog.Logger

	// sleepFunc waits between retries. Tests replace it to avoid real delays.
	sleepFunc func(ctx context.Context, d time.Duration) error
}

// NewADB creates an adb channel. Zero config fields take package defaults.
func NewADB(cfg ADBConfig, runner shell.Runner, logger *slog.Logger) *ADB {
	if cfg.Path == "" {
		cfg.Path = "adb"
	}

	if cfg.RetryCount < 1 {
		cfg.RetryCount = DefaultRetryCount
	}

	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = DefaultRetryInterval
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &ADB{
		cfg:       cfg,
		runner:    runner,
		logger:    logger,
		sleepFunc: timeSleep,
	}
}

// Connect attaches to a network device. USB serials (no host:port) and an
// empty serial need no connect step.
func (a *ADB) Connect(ctx context.Context) error {
	if !strings.Contains(a.cfg.Serial, ":") {
		return nil
	}

	cmd := shell.Command{Name: a.cfg.Path, Args: []string{"connect", a.cfg.Serial}}

	res, err := a.runner.Run(ctx, cmd)
	if err != nil {
		return fmt.Errorf("remote: connect %s: %w", a.cfg.Serial, err)
	}

	failed := !res.OK()
	for _, f := range connectFailures {
		failed = failed || res.Contains(f)
	}

	if failed {
		return &CommandError{
			Command:  cmd.String(),
			Output:   res.Lines,
			ExitCode: res.ExitCode,
			Attempts: 1,
			Err:      ErrTransport,
		}
	}

	a.logger.Info("connected to device", slog.String("serial", a.cfg.Serial))

	return nil
}

// Shell runs one remote shell command and returns its output lines. Each
// word is quoted for the remote shell, so "{}" and ";" reach find intact.
func (a *ADB) Shell(ctx context.Context, words ...string) ([]string, error) {
	return a.ShellLine(ctx, shell.Join(words...))
}

// ShellLine runs an already quoted remote command line.
func (a *ADB) ShellLine(ctx context.Context, line string) ([]string, error) {
	return a.retry(ctx, a.command("shell", line))
}

// Push copies a local file to an absolute remote path.
func (a *ADB) Push(ctx context.Context, local, remotePath string) error {
	_, err := a.retry(ctx, a.command("push", local, remotePath))

	return err
}

func (a *ADB) command(args ...string) shell.Command {
	full := make([]string, 0, len(args)+2)
	if a.cfg.Serial != "" {
		full = append(full, "-s", a.cfg.Serial)
	}

	return shell.Command{Name: a.cfg.Path, Args: append(full, args...)}
}

// retry runs cmd until it exits zero, the fatal substring appears in its
// output, the context ends, or RetryCount attempts have failed.
func (a *ADB) retry(ctx context.Context, cmd shell.Command) ([]string, error) {
	var last *shell.Result

	for attempt := 1; attempt <= a.cfg.RetryCount; attempt++ {
		res, err := a.runner.Run(ctx, cmd)
		if ctx.Err() != nil {
			return nil, fmt.Errorf("remote: %s canceled: %w", cmd.Name, ctx.Err())
		}

		if err == nil && res.OK() {
			return res.Lines, nil
		}

		if res == nil {
			res = &shell.Result{ExitCode: -1}
		}

		if err != nil {
			res.Lines = append(res.Lines, err.Error())
		}

		last = res

		a.logger.Warn("remote command failed",
			slog.String("command", cmd.String()),
			slog.Int("attempt", attempt),
			slog.Int("exit_code", res.ExitCode),
			slog.String("output", strings.Join(res.Lines, " | ")),
		)

		if res.Contains(a.cfg.FatalOutput) {
			return nil, &CommandError{
				Command:  cmd.String(),
				Output:   res.Lines,
				ExitCode: res.ExitCode,
				Attempts: attempt,
				Err:      ErrFatalOutput,
			}
		}

		if attempt == a.cfg.RetryCount {
			break
		}

		if err := a.sleepFunc(ctx, a.cfg.RetryInterval); err != nil {
			return nil, fmt.Errorf("remote: %s canceled: %w", cmd.Name, err)
		}
	}

	return nil, &CommandError{
		Command:  cmd.String(),
		Output:   last.Lines,
		ExitCode: last.ExitCode,
		Attempts: a.cfg.RetryCount,
		Err:      ErrTransport,
	}
}

// timeSleep waits for d or until ctx ends. It is the default sleepFunc.
func timeSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
