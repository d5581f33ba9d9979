package source

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/rendis/iterview/pkg/schema"
)

const defaultPollInterval = time.Second

// FileConfig configures a JSONL file source.
type FileConfig struct {
	Path string
	// Follow keeps reading as the file grows, like tail -f.
	Follow bool
	// PollInterval re-checks the file when no fsnotify event arrives.
	PollInterval time.Duration
}

// File reads one envelope per line from a recorded JSONL file. Blank lines
// are skipped; undecodable lines are logged and skipped.
type File struct {
	cfg    FileConfig
	dec    *Decoder
	logger *slog.Logger
}

// NewFile creates a file source.
func NewFile(cfg FileConfig, dec *Decoder, logger *slog.Logger) *File {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	return &File{cfg: cfg, dec: dec, logger: defaultLogger(logger).With(slog.String("source", "file"), slog.String("path", cfg.Path))}
}

func (s *File) Name() string { return "file" }

// Run reads the file to its end. With Follow it then waits for writes until
// ctx is done. A file truncated while followed is re-read from the start.
func (s *File) Run(ctx context.Context, emit EmitFunc) error {
	f, err := os.Open(s.cfg.Path)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeSource, "open %s", s.cfg.Path).WithCause(err)
	}
	defer f.Close()

	var watcher *fsnotify.Watcher
	if s.cfg.Follow {
		watcher, err = fsnotify.NewWatcher()
		if err != nil {
			return schema.NewError(schema.ErrCodeSource, "create file watcher").WithCause(err)
		}
		defer watcher.Close()
		if err := watcher.Add(s.cfg.Path); err != nil {
			return schema.NewErrorf(schema.ErrCodeSource, "watch %s", s.cfg.Path).WithCause(err)
		}
	}

	reader := bufio.NewReader(f)
	var (
		pending []byte
		offset  int64
		lineNo  int
	)
	for {
		chunk, err := reader.ReadBytes('\n')
		offset += int64(len(chunk))
		pending = append(pending, chunk...)

		if err == nil {
			lineNo++
			if err := s.handleLine(ctx, emit, pending, lineNo); err != nil {
				return err
			}
			pending = pending[:0]
			continue
		}
		if !errors.Is(err, io.EOF) {
			return schema.NewErrorf(schema.ErrCodeSource, "read %s", s.cfg.Path).WithCause(err)
		}

		if !s.cfg.Follow {
			if len(bytes.TrimSpace(pending)) > 0 {
				lineNo++
				return s.handleLine(ctx, emit, pending, lineNo)
			}
			return nil
		}

		if !s.waitForWrite(ctx, watcher) {
			return nil
		}
		if st, err := f.Stat(); err == nil && st.Size() < offset {
			s.logger.Info("file truncated, reading from start")
			if _, err := f.Seek(0, io.SeekStart); err != nil {
				return schema.NewErrorf(schema.ErrCodeSource, "seek %s", s.cfg.Path).WithCause(err)
			}
			reader.Reset(f)
			pending = pending[:0]
			offset = 0
			lineNo = 0
		}
	}
}

func (s *File) handleLine(ctx context.Context, emit EmitFunc, line []byte, lineNo int) error {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return nil
	}
	events, err := s.dec.Decode(ctx, line)
	if err != nil {
		s.logger.Warn("skipping line", slog.Int("line", lineNo), slog.String("error", err.Error()))
		return nil
	}
	return emitAll(ctx, emit, events)
}

// waitForWrite blocks until the file may have grown. It reports false when
// ctx is done.
func (s *File) waitForWrite(ctx context.Context, watcher *fsnotify.Watcher) bool {
	poll := time.NewTimer(s.cfg.PollInterval)
	defer poll.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-poll.C:
			return true
		case ev, ok := <-watcher.Events:
			if !ok {
				return false
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
				return true
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return false
			}
			s.logger.Warn("file watcher error", slog.String("error", err.Error()))
		}
	}
}
