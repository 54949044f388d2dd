package integration

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cargolink/cargolink-backend/pkg/db/models"
)

// Handler processes claimed integration events for one provider. Handlers
// must be idempotent keyed by event id: the worker may invoke them again for
// the same event after a crash mid-attempt.
type Handler interface {
	Provider() string
	Handle(ctx context.Context, event *models.IntegrationEvent) (json.RawMessage, error)
}

// Registry maps provider names to their handlers.
type Registry struct {
	handlers map[string]Handler
}

// NewRegistry builds a registry and rejects duplicate provider names.
func NewRegistry(handlers ...Handler) (*Registry, error) {
	byProvider := make(map[string]Handler, len(handlers))
	for _, handler := range handlers {
		if handler == nil {
			return nil, fmt.Errorf("nil handler")
		}
		name := handler.Provider()
		if name == "" {
			return nil, fmt.Errorf("handler with empty provider name")
		}
		if _, exists := byProvider[name]; exists {
			return nil, fmt.Errorf("duplicate handler for provider %q", name)
		}
		byProvider[name] = handler
	}
	return &Registry{handlers: byProvider}, nil
}

// Get returns the handler for the provider, if registered.
func (r *Registry) Get(provider string) (Handler, bool) {
	handler, ok := r.handlers[provider]
	return handler, ok
}
