// Package registry maps user ids to their live connections. The event router
// only talks to the Registry interface, so the in-process map can be replaced
// by the Redis pub/sub variant when several server nodes share users.
package registry

import (
	"context"
	"sort"
	"sync"

	"messenger-sync/metrics"
	"messenger-sync/protocol"

	"go.uber.org/zap"
)

// Conn is one open channel to a client.
type Conn interface {
	ID() string
	// Send queues a frame without blocking and reports whether it was accepted.
	Send(frame []byte) bool
}

type Registry interface {
	// Add registers c for userID and returns the user's connection count on this node.
	Add(userID string, c Conn) int
	// Remove unregisters c and returns the user's remaining connection count on this node.
	Remove(userID string, c Conn) int
	// Unicast delivers ev to every connection of userID.
	Unicast(ctx context.Context, userID string, ev protocol.ServerEvent) error
	// Broadcast delivers ev to every connection.
	Broadcast(ctx context.Context, ev protocol.ServerEvent) error
	Close() error
}

// Local keeps the registry in process memory.
type Local struct {
	mu      sync.RWMutex
	conns   map[string]map[string]Conn
	log     *zap.Logger
	metrics *metrics.Metrics
}

func NewLocal(log *zap.Logger, m *metrics.Metrics) *Local {
	return &Local{
		conns:   make(map[string]map[string]Conn),
		log:     log,
		metrics: m,
	}
}

func (l *Local) Add(userID string, c Conn) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	set, ok := l.conns[userID]
	if !ok {
		set = make(map[string]Conn)
		l.conns[userID] = set
	}
	set[c.ID()] = c
	return len(set)
}

func (l *Local) Remove(userID string, c Conn) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	set, ok := l.conns[userID]
	if !ok {
		return 0
	}
	delete(set, c.ID())
	if len(set) == 0 {
		delete(l.conns, userID)
		return 0
	}
	return len(set)
}

// Users returns the ids with at least one connection on this node.
func (l *Local) Users() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	users := make([]string, 0, len(l.conns))
	for id := range l.conns {
		users = append(users, id)
	}
	sort.Strings(users)
	return users
}

func (l *Local) Unicast(_ context.Context, userID string, ev protocol.ServerEvent) error {
	frame, err := protocol.Encode(ev)
	if err != nil {
		return err
	}
	l.deliver(userID, frame)
	l.metrics.EventOut(string(ev.Kind()))
	return nil
}

func (l *Local) Broadcast(_ context.Context, ev protocol.ServerEvent) error {
	frame, err := protocol.Encode(ev)
	if err != nil {
		return err
	}
	l.deliverAll(frame)
	l.metrics.EventOut(string(ev.Kind()))
	return nil
}

func (l *Local) deliver(userID string, frame []byte) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for _, c := range l.conns[userID] {
		l.send(userID, c, frame)
	}
}

func (l *Local) deliverAll(frame []byte) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for userID, set := range l.conns {
		for _, c := range set {
			l.send(userID, c, frame)
		}
	}
}

func (l *Local) send(userID string, c Conn, frame []byte) {
	if !c.Send(frame) {
		// Slow consumer: the frame is lost for this connection only.
		l.log.Warn("send buffer full, dropping frame",
			zap.String("user_id", userID),
			zap.String("conn_id", c.ID()),
		)
		l.metrics.FrameDropped("buffer_full")
	}
}

func (l *Local) Close() error {
	return nil
}
