package source

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rendis/iterview/pkg/schema"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newDecoder(t *testing.T, mapping string) *Decoder {
	t.Helper()
	d, err := NewDecoder(mapping, quietLogger())
	require.NoError(t, err)
	return d
}

// collector is a concurrency-safe EmitFunc sink.
type collector struct {
	mu     sync.Mutex
	events []schema.Event
}

func (c *collector) emit(_ context.Context, ev schema.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return nil
}

func (c *collector) snapshot() []schema.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]schema.Event(nil), c.events...)
}

func (c *collector) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}
