// Package admin exposes a participant's runtime state over HTTP and
// WebSocket, grounded on stages/websocket.go's gorilla/websocket server
// shape and stages/limit.go's xsync concurrent-map usage.
package admin

import (
	"github.com/puzpuzpuz/xsync/v4"
)

// EndpointSnapshot is the admin-visible view of one writer or reader,
// published by the Participant when it creates the endpoint (never read
// directly off the writer/reader tables, which are reactor-owned).
type EndpointSnapshot struct {
	Guid        string
	Kind        string // "writer" or "reader"
	MatchCount  int
	CacheLength int
}

// Registry is the lock-free map admin HTTP handlers read concurrently
// while the Participant publishes and removes snapshots, the same cross-goroutine
// read-mostly shape stages/limit.go uses xsync for.
type Registry struct {
	endpoints *xsync.Map[string, EndpointSnapshot]
}

func NewRegistry() *Registry {
	return &Registry{endpoints: xsync.NewMap[string, EndpointSnapshot]()}
}

func (r *Registry) Publish(s EndpointSnapshot) {
	r.endpoints.Store(s.Guid, s)
}

func (r *Registry) Remove(guid string) {
	r.endpoints.Delete(guid)
}

func (r *Registry) Snapshot() []EndpointSnapshot {
	out := make([]EndpointSnapshot, 0)
	r.endpoints.Range(func(_ string, v EndpointSnapshot) bool {
		out = append(out, v)
		return true
	})
	return out
}
