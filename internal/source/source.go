// Package source feeds backend events into sessions. A source may be a live
// WebSocket, a recorded JSONL file (optionally followed as it grows) or the
// deterministic demo generator.
package source

import (
	"context"
	"log/slog"
	"os"

	"github.com/rendis/iterview/pkg/schema"
)

// EmitFunc receives each decoded event. Returning an error stops the source.
type EmitFunc func(ctx context.Context, ev schema.Event) error

// Source produces events until its input is exhausted or ctx is done.
type Source interface {
	Name() string
	Run(ctx context.Context, emit EmitFunc) error
}

func defaultLogger(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

func emitAll(ctx context.Context, emit EmitFunc, events []schema.Event) error {
	for _, ev := range events {
		if err := emit(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}
