package plan

import (
	"context"
	"fmt"

	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/digitalis-io/ktopology/pkg/backend"
	"github.com/digitalis-io/ktopology/pkg/bindings"
	"github.com/digitalis-io/ktopology/pkg/config"
	"github.com/digitalis-io/ktopology/pkg/logger"
	"github.com/digitalis-io/ktopology/pkg/model"
	"github.com/digitalis-io/ktopology/pkg/roles"
)

// AccessProvider enforces bindings on the cluster: the kafka client with
// ACLs, the metadata service with role-based access control.
type AccessProvider interface {
	CreateBindings(bindings []model.Binding) error
	DeleteBindings(bindings []model.Binding) error
}

// BindingLister is implemented by providers that can read back the bindings
// enforced on the cluster.
type BindingLister interface {
	ListBindings() ([]model.Binding, error)
}

// createBindings and deleteBindings carry the bindings of one principal.
type createBindings struct {
	provider  AccessProvider
	principal string
	bindings  []model.Binding
}

func (a *createBindings) Kind() Kind  { return KindCreateBindings }
func (a *createBindings) Key() string { return a.principal }

func (a *createBindings) Describe() string {
	return describeBindings("create", a.bindings)
}

func (a *createBindings) Run(context.Context) (backend.Change, error) {
	if err := a.provider.CreateBindings(a.bindings); err != nil {
		return backend.Change{}, err
	}
	return backend.Change{AddBindings: a.bindings}, nil
}

type deleteBindings struct {
	provider  AccessProvider
	principal string
	bindings  []model.Binding
}

func (a *deleteBindings) Kind() Kind  { return KindDeleteBindings }
func (a *deleteBindings) Key() string { return a.principal }

func (a *deleteBindings) Describe() string {
	return describeBindings("delete", a.bindings)
}

func (a *deleteBindings) Run(context.Context) (backend.Change, error) {
	if err := a.provider.DeleteBindings(a.bindings); err != nil {
		return backend.Change{}, err
	}
	return backend.Change{RemoveBindings: a.bindings}, nil
}

// Bindings returns the bindings a binding action carries, nil for any other
// action.
func Bindings(a Action) []model.Binding {
	switch a := a.(type) {
	case *createBindings:
		return a.bindings
	case *deleteBindings:
		return a.bindings
	}
	return nil
}

// byPrincipal splits sorted bindings per principal, principals in
// lexical order.
func byPrincipal(bindings []model.Binding) ([]string, map[string][]model.Binding) {
	groups := map[string][]model.Binding{}
	for _, b := range bindings {
		groups[b.Principal] = append(groups[b.Principal], b)
	}
	return sortedKeys(groups), groups
}

func describeBindings(verb string, bindings []model.Binding) string {
	s := fmt.Sprintf("%s %d bindings", verb, len(bindings))
	for _, b := range bindings {
		s += "\n  " + b.String()
	}
	return s
}

// AccessManager plans the binding actions of a set of topologies against
// the bindings recorded by earlier runs.
type AccessManager struct {
	provider   AccessProvider
	builder    bindings.Builder
	roles      *roles.Roles
	controller *backend.Controller
	cfg        *config.Config
}

// NewAccessManager returns a manager building bindings with builder and
// enforcing them through provider.
func NewAccessManager(provider AccessProvider, builder bindings.Builder, r *roles.Roles, controller *backend.Controller, cfg *config.Config) *AccessManager {
	if r == nil {
		r = roles.New()
	}
	return &AccessManager{provider: provider, builder: builder, roles: r, controller: controller, cfg: cfg}
}

// UpdatePlan appends CreateBindings for the desired bindings not yet
// recorded and, when deletion is allowed, DeleteBindings for the recorded
// ones no longer desired.
func (m *AccessManager) UpdatePlan(topologies map[string]*model.Topology, p *ExecutionPlan) error {
	desired, err := bindings.Desired(topologies, m.roles, m.builder, m.cfg)
	if err != nil {
		return err
	}
	recorded := m.controller.Bindings()

	missing, err := m.missingFromCluster(desired.Intersection(recorded))
	if err != nil {
		return err
	}
	if missing.Len() > 0 {
		p.Warn("%d recorded bindings are missing from the cluster and will be created again", missing.Len())
	}

	create := desired.Difference(recorded).Union(missing).UnsortedList()
	model.SortBindings(create)
	principals, groups := byPrincipal(create)
	for _, principal := range principals {
		p.Add(&createBindings{provider: m.provider, principal: principal, bindings: groups[principal]})
	}

	remove := recorded.Difference(desired).UnsortedList()
	model.SortBindings(remove)
	if len(remove) > 0 && !m.cfg.AllowDeleteBindings {
		logger.For("access").WithField("bindings", len(remove)).Debug("Binding deletion disabled, keeping undeclared bindings")
		remove = nil
	}
	principals, groups = byPrincipal(remove)
	for _, principal := range principals {
		p.Add(&deleteBindings{provider: m.provider, principal: principal, bindings: groups[principal]})
	}

	logger.For("access").WithFields(map[string]interface{}{
		"desired":  desired.Len(),
		"recorded": recorded.Len(),
		"missing":  missing.Len(),
		"create":   len(create),
		"delete":   len(remove),
	}).Debug("Planned binding actions")
	return nil
}

// missingFromCluster returns the bindings of kept that the provider no
// longer enforces. Providers that cannot list bindings report none.
func (m *AccessManager) missingFromCluster(kept sets.Set[model.Binding]) (sets.Set[model.Binding], error) {
	lister, ok := m.provider.(BindingLister)
	if !ok || kept.Len() == 0 {
		return sets.New[model.Binding](), nil
	}
	live, err := lister.ListBindings()
	if err != nil {
		return nil, err
	}
	return kept.Difference(sets.New(live...)), nil
}
