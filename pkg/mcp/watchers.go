package mcp

import (
	"slices"
	"sync"
)

// WatchRegistry maps correlation IDs to the MCP client sessions watching
// them. Populated by the iterview.watch tool.
type WatchRegistry struct {
	mu       sync.RWMutex
	watchers map[string][]string // correlationID → client session IDs
}

// NewWatchRegistry creates a new empty WatchRegistry.
func NewWatchRegistry() *WatchRegistry {
	return &WatchRegistry{watchers: make(map[string][]string)}
}

// Register adds a client session as a watcher of correlationID.
// Registering twice is a no-op.
func (r *WatchRegistry) Register(correlationID, clientID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !slices.Contains(r.watchers[correlationID], clientID) {
		r.watchers[correlationID] = append(r.watchers[correlationID], clientID)
	}
}

// WatchersOf returns the client sessions watching correlationID.
func (r *WatchRegistry) WatchersOf(correlationID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.watchers[correlationID])
}

// Remove deletes every watch held by the given client session.
// Called when a client disconnects.
func (r *WatchRegistry) Remove(clientID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for corr, ids := range r.watchers {
		ids = slices.DeleteFunc(ids, func(id string) bool { return id == clientID })
		if len(ids) == 0 {
			delete(r.watchers, corr)
			continue
		}
		r.watchers[corr] = ids
	}
}

// Len returns how many correlation IDs are watched.
func (r *WatchRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.watchers)
}
