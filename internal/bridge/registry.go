package bridge

import (
	"sync"

	"github.com/KevinKickass/OpenLogoBridge/internal/logo"
	"go.uber.org/zap"
)

// Consumer receives decoded values for one block of the image.
// OnData is called from the poll worker while the registry read lock is held
// and must not register or unregister consumers.
type Consumer interface {
	BlockName() string
	Reference() (logo.BlockReference, error)
	OnData(v logo.Value)
}

// Registry is the identity-keyed set of attached consumers.
type Registry struct {
	mu        sync.RWMutex
	consumers map[Consumer]struct{}
	logger    *zap.Logger
}

func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		consumers: make(map[Consumer]struct{}),
		logger:    logger,
	}
}

// Register adds c. Returns false if it was already present.
func (r *Registry) Register(c Consumer) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.consumers[c]; ok {
		r.logger.Info("Consumer already registered", zap.String("block", c.BlockName()))
		return false
	}

	r.consumers[c] = struct{}{}
	return true
}

// Unregister removes c. Returns false if it was not present.
func (r *Registry) Unregister(c Consumer) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.consumers[c]; !ok {
		r.logger.Info("Consumer not registered", zap.String("block", c.BlockName()))
		return false
	}

	delete(r.consumers, c)
	return true
}

func (r *Registry) Contains(c Consumer) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.consumers[c]
	return ok
}

// ForEach calls fn for every consumer under the read lock.
func (r *Registry) ForEach(fn func(Consumer)) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for c := range r.consumers {
		fn(c)
	}
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.consumers)
}
