//go:build unix

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/ebailey78/scribe/internal/audio"
)

// watchPauseSignal toggles the capture soft pause on SIGUSR1, so a
// running recorder can be paused from a script or hotkey without losing
// the device lock.
func watchPauseSignal(ctx context.Context, cs *audio.CaptureSource) error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGUSR1)
	defer signal.Stop(sigChan)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-sigChan:
			if cs.Paused() {
				cs.Resume()
			} else {
				cs.Pause()
			}
		}
	}
}
