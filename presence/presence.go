// Package presence tracks which users have at least one open connection.
package presence

import (
	"context"
	"sort"
	"sync"
)

// Store counts open connections per user.
type Store interface {
	Incr(ctx context.Context, userID string) error
	Decr(ctx context.Context, userID string) error
	Members(ctx context.Context) ([]string, error)
}

// Publish receives the full online set after a change.
type Publish func(ctx context.Context, users []string) error

// Tracker serialises presence changes so that each published snapshot
// reflects exactly one connect or disconnect, in order.
type Tracker struct {
	mu    sync.Mutex
	store Store
}

func NewTracker(store Store) *Tracker {
	return &Tracker{store: store}
}

// Connect records a new connection for userID and publishes the resulting set.
func (t *Tracker) Connect(ctx context.Context, userID string, publish Publish) ([]string, error) {
	return t.update(ctx, userID, t.store.Incr, publish)
}

// Disconnect records a closed connection for userID and publishes the resulting set.
func (t *Tracker) Disconnect(ctx context.Context, userID string, publish Publish) ([]string, error) {
	return t.update(ctx, userID, t.store.Decr, publish)
}

func (t *Tracker) Online(ctx context.Context) ([]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshot(ctx)
}

func (t *Tracker) IsOnline(ctx context.Context, userID string) (bool, error) {
	users, err := t.Online(ctx)
	if err != nil {
		return false, err
	}
	i := sort.SearchStrings(users, userID)
	return i < len(users) && users[i] == userID, nil
}

func (t *Tracker) update(ctx context.Context, userID string, apply func(context.Context, string) error, publish Publish) ([]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := apply(ctx, userID); err != nil {
		return nil, err
	}
	users, err := t.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if publish != nil {
		if err := publish(ctx, users); err != nil {
			return users, err
		}
	}
	return users, nil
}

func (t *Tracker) snapshot(ctx context.Context) ([]string, error) {
	users, err := t.store.Members(ctx)
	if err != nil {
		return nil, err
	}
	sort.Strings(users)
	return users, nil
}

// Memory is a Store for a single server node.
type Memory struct {
	mu     sync.Mutex
	counts map[string]int
}

func NewMemory() *Memory {
	return &Memory{counts: make(map[string]int)}
}

func (m *Memory) Incr(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[userID]++
	return nil
}

func (m *Memory) Decr(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counts[userID] <= 1 {
		delete(m.counts, userID)
		return nil
	}
	m.counts[userID]--
	return nil
}

func (m *Memory) Members(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	users := make([]string, 0, len(m.counts))
	for id := range m.counts {
		users = append(users, id)
	}
	return users, nil
}
