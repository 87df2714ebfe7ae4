package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/classpoints/points-engine/internal/domain/ranking"
	"github.com/classpoints/points-engine/internal/domain/shared"
)

// CaptureBus is an EventPublisher that records everything published.
type CaptureBus struct {
	mu     sync.Mutex
	Events []shared.Event
}

// Publish records the event.
func (b *CaptureBus) Publish(event shared.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Events = append(b.Events, event)
	return nil
}

// Count returns how many events of a type were published.
func (b *CaptureBus) Count(t shared.EventType) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, e := range b.Events {
		if e.EventType() == t {
			n++
		}
	}
	return n
}

// MemCache is an in-memory leaderboard cache. TTLs are recorded but never
// enforced; tests drop entries explicitly via Invalidate.
type MemCache struct {
	mu      sync.Mutex
	entries map[string][]ranking.RankedEntry

	Sets        int
	Hits        int
	Invalidates int
}

// NewMemCache creates an empty cache.
func NewMemCache() *MemCache {
	return &MemCache{entries: make(map[string][]ranking.RankedEntry)}
}

func (c *MemCache) GetTop(ctx context.Context, tenantID shared.TenantID, limit int) ([]ranking.RankedEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cached, ok := c.entries[string(tenantID)]
	if !ok || len(cached) < limit {
		return nil, nil
	}
	c.Hits++
	out := make([]ranking.RankedEntry, limit)
	copy(out, cached[:limit])
	return out, nil
}

func (c *MemCache) SetTop(ctx context.Context, tenantID shared.TenantID, entries []ranking.RankedEntry, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Sets++
	c.entries[string(tenantID)] = append([]ranking.RankedEntry(nil), entries...)
	return nil
}

func (c *MemCache) Invalidate(ctx context.Context, tenantID shared.TenantID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Invalidates++
	delete(c.entries, string(tenantID))
	return nil
}

// StubDirectory is a DirectoryClient with scripted results.
type StubDirectory struct {
	StudentErr error
	ActorErr   error
}

func (d *StubDirectory) VerifyStudent(ctx context.Context, studentID, tenantID string) error {
	return d.StudentErr
}

func (d *StubDirectory) VerifyActor(ctx context.Context, actorID, tenantID string) error {
	return d.ActorErr
}
