// Package registry maps message type names to stable event identifiers.
package registry

import (
	"hash/fnv"
	"log/slog"
	"sort"
	"sync"

	"kitmsg/internal/domain"
)

// Registry records name -> EventID aliases. The identifier is an FNV-1a
// hash of the name, so it needs no shared state across processes; the
// registry only remembers aliases for diagnostics.
type Registry struct {
	mu      sync.RWMutex
	aliases map[domain.EventID]domain.MessageType
	logger  *slog.Logger
}

func New(logger *slog.Logger) *Registry {
	return &Registry{
		aliases: make(map[domain.EventID]domain.MessageType),
		logger:  logger,
	}
}

// IDFor derives the identifier for name without recording an alias.
func IDFor(name domain.MessageType) domain.EventID {
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	return domain.EventID(h.Sum64())
}

// Register returns the identifier for name and records the alias.
// Calling it again with the same name is a no-op.
func (r *Registry) Register(name domain.MessageType) domain.EventID {
	id := IDFor(name)

	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.aliases[id]
	switch {
	case !ok:
		r.aliases[id] = name
	case existing != name:
		// Keep the first alias for display.
		r.logger.Warn("event identifier collision", "id", id, "existing", existing, "name", name)
	}
	return id
}

// Name returns the alias recorded for id.
func (r *Registry) Name(id domain.EventID) (domain.MessageType, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.aliases[id]
	return name, ok
}

// Alias is one recorded name/identifier pair.
type Alias struct {
	Name domain.MessageType
	ID   domain.EventID
}

// Aliases returns every recorded alias sorted by name.
func (r *Registry) Aliases() []Alias {
	r.mu.RLock()
	out := make([]Alias, 0, len(r.aliases))
	for id, name := range r.aliases {
		out = append(out, Alias{Name: name, ID: id})
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len returns the number of recorded aliases.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.aliases)
}
