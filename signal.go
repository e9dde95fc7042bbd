package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	stdsync "sync"
	"syscall"
)

// forceExit is called on the second signal. Tests replace it.
var forceExit = func() { os.Exit(1) }

// shutdownContext returns a context that cancels on the first SIGINT/SIGTERM
// and force-exits on the second. On the first signal the remote command in
// flight finishes and the run stops before the next entry. The returned stop
// function cancels the context and stops listening; call it when the command
// returns.
func shutdownContext(parent context.Context, logger *slog.Logger) (context.Context, func()) {
	ctx, cancel := context.WithCancel(parent)
	stopped := make(chan struct{})

	var once stdsync.Once

	stop := func() {
		once.Do(func() { close(stopped) })
		cancel()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigCh)

		select {
		case sig := <-sigCh:
			logger.Info("received signal, stopping after the current entry",
				slog.String("signal", sig.String()),
			)
			cancel()
		case <-ctx.Done():
			return
		}

		select {
		case sig := <-sigCh:
			logger.Warn("received second signal, forcing exit",
				slog.String("signal", sig.String()),
			)
			forceExit()
		case <-stopped:
			return
		case <-parent.Done():
			return
		}
	}()

	return ctx, stop
}
