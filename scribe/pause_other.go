//go:build !unix

package main

import (
	"context"

	"github.com/ebailey78/scribe/internal/audio"
)

// watchPauseSignal is inert on platforms without SIGUSR1.
func watchPauseSignal(ctx context.Context, _ *audio.CaptureSource) error {
	<-ctx.Done()
	return nil
}
