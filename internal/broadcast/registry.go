package broadcast

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Client kinds.
const (
	KindWebSocket = "websocket"
	KindSSE       = "sse"
)

// Client describes one connected push subscriber.
type Client struct {
	ID          string    `json:"id"`
	Kind        string    `json:"kind"`
	RemoteAddr  string    `json:"remote_addr"`
	ConnectedAt time.Time `json:"connected_at"`
}

// Registry tracks connected push clients.
//
// It has its own lock, separate from the telemetry store, so client churn
// never contends with telemetry writes.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]Client
}

// NewRegistry creates an empty [Registry].
func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]Client)}
}

// Add registers a new client and returns it with a fresh ID.
func (r *Registry) Add(kind, remoteAddr string) Client {
	c := Client{
		ID:          uuid.NewString(),
		Kind:        kind,
		RemoteAddr:  remoteAddr,
		ConnectedAt: time.Now(),
	}

	r.mu.Lock()
	r.clients[c.ID] = c
	r.mu.Unlock()

	return c
}

// Remove unregisters a client. Unknown IDs are ignored.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	delete(r.clients, id)
	r.mu.Unlock()
}

// Count returns the number of connected clients.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// Clients returns a copy of the connected clients, oldest first.
func (r *Registry) Clients() []Client {
	r.mu.RLock()
	out := make([]Client, 0, len(r.clients))
	for _, c := range r.clients {
		out = append(out, c)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].ConnectedAt.Before(out[j].ConnectedAt)
	})
	return out
}
