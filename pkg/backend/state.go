package backend

import (
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/digitalis-io/ktopology/pkg/model"
)

// State is what earlier runs applied to the cluster.
type State struct {
	Topics   sets.Set[string]
	Bindings sets.Set[model.Binding]
	// Quotas is keyed by principal.
	Quotas map[string]model.Quota
}

// NewState returns an empty state.
func NewState() *State {
	return &State{
		Topics:   sets.New[string](),
		Bindings: sets.New[model.Binding](),
		Quotas:   map[string]model.Quota{},
	}
}

// Clone returns a deep copy of s.
func (s *State) Clone() *State {
	out := &State{
		Topics:   s.Topics.Clone(),
		Bindings: s.Bindings.Clone(),
		Quotas:   make(map[string]model.Quota, len(s.Quotas)),
	}
	for k, v := range s.Quotas {
		out.Quotas[k] = v
	}
	return out
}

// Change is the state delta of one applied action.
type Change struct {
	AddTopics    []string
	RemoveTopics []string

	AddBindings    []model.Binding
	RemoveBindings []model.Binding

	PutQuotas []model.Quota
	// RemoveQuotas lists principals.
	RemoveQuotas []string
}

// IsEmpty reports whether c changes nothing.
func (c Change) IsEmpty() bool {
	return len(c.AddTopics) == 0 && len(c.RemoveTopics) == 0 &&
		len(c.AddBindings) == 0 && len(c.RemoveBindings) == 0 &&
		len(c.PutQuotas) == 0 && len(c.RemoveQuotas) == 0
}

// Apply folds c into s.
func (s *State) Apply(c Change) {
	s.Topics.Insert(c.AddTopics...)
	s.Topics.Delete(c.RemoveTopics...)
	s.Bindings.Insert(c.AddBindings...)
	s.Bindings.Delete(c.RemoveBindings...)
	for _, q := range c.PutQuotas {
		s.Quotas[q.Principal] = q
	}
	for _, principal := range c.RemoveQuotas {
		delete(s.Quotas, principal)
	}
}
