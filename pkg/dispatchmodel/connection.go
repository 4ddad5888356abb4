package dispatchmodel

import "time"

// Connection is an opaque observability record for a caller session. It
// sits outside the dispatch critical path entirely.
type Connection struct {
	ID           string    `json:"id"`
	Type         string    `json:"type"`
	ConnectedAt  time.Time `json:"connected_at"`
	LastActivity time.Time `json:"last_activity"`
}
