package effects

import (
	"context"
	"fmt"
	"sync"

	"github.com/maxidea1024/gatrix-sub004/internal/ops"
)

// Handler materializes a committed row change into a side system, typically
// a Redis cache the game clients read. Handlers run after commit; failures
// are logged and never roll back the data change.
type Handler interface {
	Apply(ctx context.Context, entityID string, after ops.Record, environment string, actorID int) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, entityID string, after ops.Record, environment string, actorID int) error

func (f HandlerFunc) Apply(ctx context.Context, entityID string, after ops.Record, environment string, actorID int) error {
	return f(ctx, entityID, after, environment, actorID)
}

// Registry maps table names to their post-commit handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates an empty effects registry
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register binds a handler to a table. Registering the same table twice is
// a programming error.
func (r *Registry) Register(table string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[table]; exists {
		panic(fmt.Sprintf("effects: handler already registered for table %s", table))
	}
	r.handlers[table] = h
}

// Has reports whether a table has a registered handler.
func (r *Registry) Has(table string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[table]
	return ok
}

// Get returns the handler for a table.
func (r *Registry) Get(table string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[table]
	return h, ok
}
