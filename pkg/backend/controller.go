package backend

import (
	"sync"

	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/digitalis-io/ktopology/pkg/logger"
	"github.com/digitalis-io/ktopology/pkg/model"
)

// Controller serves the recorded state of a run and records every applied
// change. The cached state only moves after the store accepted the change.
type Controller struct {
	mu    sync.RWMutex
	store Store
	state *State
}

// NewController loads the recorded state from store.
func NewController(store Store) (*Controller, error) {
	state, err := store.Load()
	if err != nil {
		return nil, err
	}
	logger.For("backend").WithFields(map[string]interface{}{
		"topics":   state.Topics.Len(),
		"bindings": state.Bindings.Len(),
		"quotas":   len(state.Quotas),
	}).Debug("Loaded recorded state")
	return &Controller{store: store, state: state}, nil
}

// Record commits c to the store, then to the cached state.
func (c *Controller) Record(change Change) error {
	if change.IsEmpty() {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.store.Commit(change); err != nil {
		return err
	}
	c.state.Apply(change)
	return nil
}

// Topics returns a copy of the recorded topic names.
func (c *Controller) Topics() sets.Set[string] {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.Topics.Clone()
}

// Bindings returns a copy of the recorded bindings.
func (c *Controller) Bindings() sets.Set[model.Binding] {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.Bindings.Clone()
}

// Quotas returns a copy of the recorded quotas keyed by principal.
func (c *Controller) Quotas() map[string]model.Quota {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]model.Quota, len(c.state.Quotas))
	for k, v := range c.state.Quotas {
		out[k] = v
	}
	return out
}

// Close closes the underlying store.
func (c *Controller) Close() error {
	return c.store.Close()
}
