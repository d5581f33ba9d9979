package session

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rendis/iterview/pkg/schema"
)

// ManagerConfig bounds how many sessions are kept and for how long.
type ManagerConfig struct {
	Session Config
	// Retention is how long a finished session stays readable.
	Retention time.Duration
	// IdleTimeout closes sessions that received nothing for this long.
	// Zero disables it.
	IdleTimeout time.Duration
	// MaxSessions caps concurrently open sessions. Zero means unlimited.
	MaxSessions int
}

// Manager owns one Session per correlation ID.
type Manager struct {
	cfg  ManagerConfig
	deps Deps
	ctx  context.Context

	mu     sync.RWMutex
	byID   map[string]*Session
	byCorr map[string]*Session
}

// NewManager creates a Manager. Sessions stop when ctx is done.
func NewManager(ctx context.Context, cfg ManagerConfig, deps Deps) *Manager {
	return &Manager{
		cfg:    cfg,
		deps:   deps.withDefaults(),
		ctx:    ctx,
		byID:   make(map[string]*Session),
		byCorr: make(map[string]*Session),
	}
}

// Open returns the session for correlationID, creating it if needed.
func (m *Manager) Open(correlationID string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.byCorr[correlationID]
	m.mu.RUnlock()
	if ok {
		return s, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.byCorr[correlationID]; ok {
		return s, nil
	}
	if m.cfg.MaxSessions > 0 && len(m.byID) >= m.cfg.MaxSessions {
		return nil, schema.NewErrorf(schema.ErrCodeConflict,
			"session limit of %d reached", m.cfg.MaxSessions).
			WithCorrelation(correlationID)
	}

	s = New(m.ctx, uuid.NewString(), correlationID, m.cfg.Session, m.deps)
	m.byID[s.ID()] = s
	m.byCorr[correlationID] = s
	m.deps.Logger.Info("session opened",
		slog.String("session_id", s.ID()),
		slog.String("correlation_id", correlationID),
	)
	return s, nil
}

// Ingest routes ev to the session for its correlation ID.
func (m *Manager) Ingest(ctx context.Context, ev schema.Event) (*Session, error) {
	s, err := m.Open(ev.CorrelationID)
	if err != nil {
		return nil, err
	}
	if err := s.Submit(ctx, ev); err != nil {
		return nil, err
	}
	return s, nil
}

// Get returns a session by session ID or correlation ID.
func (m *Manager) Get(key string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.byID[key]; ok {
		return s, nil
	}
	if s, ok := m.byCorr[key]; ok {
		return s, nil
	}
	return nil, schema.NewErrorf(schema.ErrCodeNotFound, "session %q not found", key)
}

// List returns every open session, oldest first.
func (m *Manager) List() []Info {
	m.mu.RLock()
	out := make([]Info, 0, len(m.byID))
	for _, s := range m.byID {
		out = append(out, s.Snapshot().Info())
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].SessionID < out[j].SessionID
	})
	return out
}

// Len returns the number of open sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byID)
}

// Close closes and forgets a session.
func (m *Manager) Close(key string) error {
	s, err := m.Get(key)
	if err != nil {
		return err
	}
	m.forget(s)
	s.Close()
	return nil
}

// CloseAll closes every session.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.byID))
	for _, s := range m.byID {
		sessions = append(sessions, s)
	}
	m.byID = make(map[string]*Session)
	m.byCorr = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}

// Reap closes finished sessions older than the retention period and idle
// sessions older than the idle timeout. It returns how many were closed.
func (m *Manager) Reap(now time.Time) int {
	m.mu.RLock()
	var expired []*Session
	for _, s := range m.byID {
		snap := s.Snapshot()
		age := now.Sub(snap.UpdatedAt)
		switch {
		case snap.Closed:
			expired = append(expired, s)
		case snap.Terminal() && age >= m.cfg.Retention:
			expired = append(expired, s)
		case m.cfg.IdleTimeout > 0 && age >= m.cfg.IdleTimeout:
			expired = append(expired, s)
		}
	}
	m.mu.RUnlock()

	for _, s := range expired {
		m.forget(s)
		s.Close()
		m.deps.Logger.Info("session reaped",
			slog.String("session_id", s.ID()),
			slog.String("correlation_id", s.CorrelationID()),
		)
	}
	return len(expired)
}

func (m *Manager) forget(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.byID[s.ID()]; ok && cur == s {
		delete(m.byID, s.ID())
	}
	if cur, ok := m.byCorr[s.CorrelationID()]; ok && cur == s {
		delete(m.byCorr, s.CorrelationID())
	}
}
