package cache

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	value     []byte
	expiresAt time.Time
}

// Memory is the in-process cache tier.
type Memory struct {
	mu       sync.RWMutex
	policies map[Category]Policy
	entries  map[string]entry
	now      func() time.Time
}

func NewMemory(policies map[Category]Policy) *Memory {
	if policies == nil {
		policies = DefaultPolicies()
	}
	return &Memory{
		policies: policies,
		entries:  make(map[string]entry),
		now:      time.Now,
	}
}

func (m *Memory) Get(_ context.Context, cat Category, key string) ([]byte, bool) {
	k := string(cat) + "/" + key

	m.mu.RLock()
	e, ok := m.entries[k]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}

	if m.now().After(e.expiresAt) {
		m.mu.Lock()
		delete(m.entries, k)
		m.mu.Unlock()
		return nil, false
	}
	return e.value, true
}

func (m *Memory) Set(_ context.Context, cat Category, key string, value []byte) error {
	m.mu.Lock()
	m.entries[string(cat)+"/"+key] = entry{
		value:     value,
		expiresAt: m.now().Add(m.ttl(cat)),
	}
	m.mu.Unlock()
	return nil
}

func (m *Memory) ttl(cat Category) time.Duration {
	if p, ok := m.policies[cat]; ok && p.TTL > 0 {
		return p.TTL
	}
	return time.Hour
}
