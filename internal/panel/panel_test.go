package panel

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/rendis/iterview/internal/expressions"
	"github.com/rendis/iterview/internal/session"
	"github.com/rendis/iterview/internal/streaming"
	"github.com/rendis/iterview/internal/validation"
	"github.com/rendis/iterview/pkg/schema"
)

type testPanel struct {
	server   *PanelServer
	handler  http.Handler
	sessions *session.Manager
	hub      *streaming.MemoryHub
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestPanel(t *testing.T) *testPanel {
	t.Helper()
	filters, err := expressions.NewFilterEngine()
	require.NoError(t, err)
	hub := streaming.NewMemoryHub(streaming.WithFilterEngine(filters), streaming.WithLogger(quietLogger()))

	reg := prometheus.NewRegistry()
	mgr := session.NewManager(context.Background(), session.ManagerConfig{}, session.Deps{
		Hub:     hub,
		Metrics: session.NewMetrics(reg),
		Logger:  quietLogger(),
	})
	t.Cleanup(mgr.CloseAll)

	dec, err := validation.NewEnvelopeDecoder(nil)
	require.NoError(t, err)

	srv := NewPanelServer(PanelDeps{
		Sessions: mgr,
		Hub:      hub,
		Decoder:  dec,
		Gatherer: reg,
		Logger:   quietLogger(),
	})
	return &testPanel{server: srv, handler: srv.Handler(), sessions: mgr, hub: hub}
}

func (p *testPanel) do(t *testing.T, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	rec := httptest.NewRecorder()
	p.handler.ServeHTTP(rec, req)
	return rec
}

func envelope(t *testing.T, ev schema.Event) []byte {
	t.Helper()
	raw, err := schema.EncodeEnvelope(ev)
	require.NoError(t, err)
	return raw
}

// ingest posts ev and waits until it has been applied.
func (p *testPanel) ingest(t *testing.T, ev schema.Event) map[string]any {
	t.Helper()
	rec := p.do(t, http.MethodPost, "/api/events?wait=true", envelope(t, ev))
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}
