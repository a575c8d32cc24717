package channel

import (
	"sync"

	"github.com/tiendi/tiendi/internal/domain"
	"github.com/tiendi/tiendi/internal/logging"
)

// Registry manages the configured messaging gateways.
type Registry struct {
	mu       sync.RWMutex
	gateways map[domain.ChannelType]Gateway
	log      *logging.Logger
}

// NewRegistry creates a gateway registry.
func NewRegistry(log *logging.Logger) *Registry {
	return &Registry{
		gateways: make(map[domain.ChannelType]Gateway),
		log:      log.Sub("channels"),
	}
}

// Register adds a gateway to the registry.
func (r *Registry) Register(gw Gateway) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gateways[gw.ID()] = gw
	r.log.Info().Str("channel", string(gw.ID())).Msg("channel gateway registered")
}

// Get returns a gateway by channel type.
func (r *Registry) Get(id domain.ChannelType) (Gateway, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	gw, ok := r.gateways[id]
	return gw, ok
}

// List returns all registered channel types.
func (r *Registry) List() []domain.ChannelType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]domain.ChannelType, 0, len(r.gateways))
	for id := range r.gateways {
		ids = append(ids, id)
	}
	return ids
}

// Count returns the number of registered gateways.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.gateways)
}
