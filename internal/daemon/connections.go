package daemon

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arcweave/dispatchd/pkg/dispatchmodel"
)

// Connections is the process-singleton table of opaque caller sessions
// from spec.md §3: observability-only, never consulted on the dispatch
// critical path.
type Connections struct {
	mu    sync.Mutex
	table map[string]dispatchmodel.Connection
}

// NewConnections creates an empty connection table.
func NewConnections() *Connections {
	return &Connections{table: make(map[string]dispatchmodel.Connection)}
}

// Open records a new connection of the given transport type and returns
// its id.
func (c *Connections) Open(connType string) string {
	id := uuid.NewString()
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.table[id] = dispatchmodel.Connection{
		ID:           id,
		Type:         connType,
		ConnectedAt:  now,
		LastActivity: now,
	}
	return id
}

// Touch updates a connection's last-activity timestamp.
func (c *Connections) Touch(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	conn, ok := c.table[id]
	if !ok {
		return
	}
	conn.LastActivity = time.Now()
	c.table[id] = conn
}

// Close removes a connection from the table.
func (c *Connections) Close(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.table, id)
}

// Snapshot returns every currently open connection.
func (c *Connections) Snapshot() []dispatchmodel.Connection {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]dispatchmodel.Connection, 0, len(c.table))
	for _, conn := range c.table {
		out = append(out, conn)
	}
	return out
}
