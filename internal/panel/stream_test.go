package panel

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/iterview/internal/graph"
	"github.com/rendis/iterview/internal/session"
	"github.com/rendis/iterview/internal/streaming"
	"github.com/rendis/iterview/pkg/schema"
)

type sseEvent struct {
	name string
	data string
}

// readSSE reads one event block from r.
func readSSE(t *testing.T, r *bufio.Reader) sseEvent {
	t.Helper()
	var ev sseEvent
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case line == "":
			if ev.name != "" || ev.data != "" {
				return ev
			}
		case strings.HasPrefix(line, "event: "):
			ev.name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			ev.data = strings.TrimPrefix(line, "data: ")
		}
	}
}

func snapshotOf(t *testing.T, data string) session.Snapshot {
	t.Helper()
	var u struct {
		Type    string           `json:"type"`
		Payload session.Snapshot `json:"payload"`
	}
	require.NoError(t, json.Unmarshal([]byte(data), &u))
	require.Equal(t, streaming.UpdateSnapshot, u.Type)
	return u.Payload
}

func TestSSESession(t *testing.T) {
	p := newTestPanel(t)
	p.ingest(t, schema.NewStreamEvent("run-1", 1, "hello"))

	srv := httptest.NewServer(p.handler)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/sse/sessions/run-1", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	r := bufio.NewReader(resp.Body)

	first := readSSE(t, r)
	assert.Equal(t, streaming.UpdateSnapshot, first.name)
	assert.Equal(t, "hello", snapshotOf(t, first.data).Thinking.Text)

	p.ingest(t, schema.NewStreamEvent("run-1", 2, " world"))
	for {
		ev := readSSE(t, r)
		if ev.name != streaming.UpdateSnapshot {
			continue
		}
		if snap := snapshotOf(t, ev.data); snap.Thinking.Text == "hello world" {
			break
		}
	}
}

func TestSSESession_NotFound(t *testing.T) {
	p := newTestPanel(t)
	rec := p.do(t, http.MethodGet, "/sse/sessions/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSSEEvents_RejectsBadFilter(t *testing.T) {
	p := newTestPanel(t)
	rec := p.do(t, http.MethodGet, "/sse/events?filter=snapshot.iteration+%3E", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFilterFromQuery(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/sse/events?session_id=s&correlation_id=c&types=snapshot,%20session.closed,&filter=true", nil)
	f := filterFromQuery(req)

	assert.Equal(t, "s", f.SessionID)
	assert.Equal(t, "c", f.CorrelationID)
	assert.Equal(t, []string{"snapshot", "session.closed"}, f.Types)
	assert.Equal(t, "true", f.Expression)
}

func TestWebSocket(t *testing.T) {
	p := newTestPanel(t)
	srv := httptest.NewServer(p.handler)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?correlation_id=run-ws&types=snapshot"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	p.ingest(t, schema.NewProgressEvent("run-ws", 1, 1, schema.StateRunningTests, "", ""))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var u struct {
		CorrelationID string           `json:"correlation_id"`
		Type          string           `json:"type"`
		Payload       session.Snapshot `json:"payload"`
	}
	for {
		require.NoError(t, conn.ReadJSON(&u))
		if u.Payload.Nodes[graph.PatternExtractor] == graph.NodeRunning {
			break
		}
	}
	assert.Equal(t, "run-ws", u.CorrelationID)
	assert.Equal(t, streaming.UpdateSnapshot, u.Type)
}

func TestWebSocket_ClientCloseUnsubscribes(t *testing.T) {
	p := newTestPanel(t)
	srv := httptest.NewServer(p.handler)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return p.hub.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)

	conn.Close()
	assert.Eventually(t, func() bool { return p.hub.Subscribers() == 0 }, 2*time.Second, 10*time.Millisecond)
}
