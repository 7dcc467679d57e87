// Package store provides the parameter stores a manager persists
// setParameter values into.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"kitmsg/internal/domain"
)

// KeyPrefix namespaces parameter keys in persistent storage.
const KeyPrefix = "/ext/custom/"

// Memory is a map-backed ParameterStore. It lives as long as the manager
// that owns it.
type Memory struct {
	mu     sync.RWMutex
	values map[string]domain.Parameter
}

func NewMemory() *Memory {
	return &Memory{values: make(map[string]domain.Parameter)}
}

func (m *Memory) Set(ctx context.Context, name string, value any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[name] = domain.Parameter{Name: name, Value: value, UpdatedAt: time.Now()}
	return nil
}

func (m *Memory) Get(ctx context.Context, name string) (any, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.values[name]
	return p.Value, ok, nil
}

func (m *Memory) List(ctx context.Context) ([]domain.Parameter, error) {
	m.mu.RLock()
	out := make([]domain.Parameter, 0, len(m.values))
	for _, p := range m.values {
		out = append(out, p)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *Memory) Close() error { return nil }

var _ domain.ParameterStore = (*Memory)(nil)
