// Command mixplay builds word collages out of a corpus of diarised
// transcripts and their recorded audio.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/MrWong99/mixplay/internal/compose"
)

// version is overridden at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := newRootCmd()
	if err := root.ExecuteContext(ctx); err != nil {
		if errors.Is(err, compose.ErrEmptyComposition) {
			fmt.Fprintf(os.Stderr, "mixplay: %v\n", err)
			return 2
		}
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintf(os.Stderr, "mixplay: %v\n", err)
			return 1
		}
	}
	return 0
}

// newLogger returns a text logger on stderr whose level follows lvl.
func newLogger(lvl *slog.LevelVar) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
