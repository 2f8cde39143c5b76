package plan

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/digitalis-io/ktopology/pkg/backend"
	"github.com/digitalis-io/ktopology/pkg/config"
	"github.com/digitalis-io/ktopology/pkg/logger"
	"github.com/digitalis-io/ktopology/pkg/model"
)

// QuotaAdmin manages user client quotas.
type QuotaAdmin interface {
	DescribeClientQuotas() (map[string]model.Quota, error)
	AlterClientQuotas(q model.Quota, remove []string) error
	RemoveClientQuotas(principal string) error
}

type createQuota struct {
	admin QuotaAdmin
	quota model.Quota
}

func (a *createQuota) Kind() Kind  { return KindCreateQuota }
func (a *createQuota) Key() string { return a.quota.Principal }

func (a *createQuota) Describe() string {
	return "create quota " + describeQuota(a.quota)
}

func (a *createQuota) Run(context.Context) (backend.Change, error) {
	if err := a.admin.AlterClientQuotas(a.quota, nil); err != nil {
		return backend.Change{}, err
	}
	return backend.Change{PutQuotas: []model.Quota{a.quota}}, nil
}

// updateQuota rewrites the whole entity: declared values are set and the
// keys no longer declared are removed.
type updateQuota struct {
	admin  QuotaAdmin
	quota  model.Quota
	remove []string
}

func (a *updateQuota) Kind() Kind  { return KindUpdateQuota }
func (a *updateQuota) Key() string { return a.quota.Principal }

func (a *updateQuota) Describe() string {
	s := "update quota " + describeQuota(a.quota)
	if len(a.remove) > 0 {
		s += ", remove " + strings.Join(a.remove, ", ")
	}
	return s
}

func (a *updateQuota) Run(context.Context) (backend.Change, error) {
	if err := a.admin.AlterClientQuotas(a.quota, a.remove); err != nil {
		return backend.Change{}, err
	}
	return backend.Change{PutQuotas: []model.Quota{a.quota}}, nil
}

type deleteQuota struct {
	admin     QuotaAdmin
	principal string
}

func (a *deleteQuota) Kind() Kind  { return KindDeleteQuota }
func (a *deleteQuota) Key() string { return a.principal }

func (a *deleteQuota) Describe() string {
	return "delete quotas of " + a.principal
}

func (a *deleteQuota) Run(context.Context) (backend.Change, error) {
	if err := a.admin.RemoveClientQuotas(a.principal); err != nil {
		return backend.Change{}, err
	}
	return backend.Change{RemoveQuotas: []string{a.principal}}, nil
}

func describeQuota(q model.Quota) string {
	values := q.Values()
	parts := make([]string, 0, len(values))
	for _, k := range sortedKeys(values) {
		parts = append(parts, fmt.Sprintf("%s=%g", k, values[k]))
	}
	return q.Principal + " " + strings.Join(parts, " ")
}

// QuotasManager plans the client quota actions of a set of topologies
// against the quotas live on the cluster.
type QuotasManager struct {
	admin QuotaAdmin
	cfg   *config.Config
}

func NewQuotasManager(admin QuotaAdmin, cfg *config.Config) *QuotasManager {
	return &QuotasManager{admin: admin, cfg: cfg}
}

// UpdatePlan appends the quota actions needed to reach topologies to p.
func (m *QuotasManager) UpdatePlan(topologies map[string]*model.Topology, p *ExecutionPlan) error {
	desired := desiredQuotas(topologies)
	live, err := m.admin.DescribeClientQuotas()
	if err != nil {
		return err
	}

	for _, principal := range sortedKeys(desired) {
		quota := desired[principal]
		if len(quota.Values()) == 0 {
			p.Warn("quota of %s declares no value and is ignored", principal)
			continue
		}
		current, ok := live[principal]
		if !ok {
			p.Add(&createQuota{admin: m.admin, quota: quota})
			continue
		}
		want, have := quota.Values(), current.Values()
		if sameValues(want, have) {
			continue
		}
		var remove []string
		for k := range have {
			if _, ok := want[k]; !ok {
				remove = append(remove, k)
			}
		}
		sort.Strings(remove)
		p.Add(&updateQuota{admin: m.admin, quota: quota, remove: remove})
	}

	for _, principal := range sortedKeys(live) {
		if _, ok := desired[principal]; ok {
			continue
		}
		if !m.cfg.AllowDeleteQuotas {
			logger.For("quotas").WithField("principal", principal).Debug("Quota deletion disabled, keeping undeclared quota")
			continue
		}
		p.Add(&deleteQuota{admin: m.admin, principal: principal})
	}
	return nil
}

// desiredQuotas returns the declared quotas keyed by "User:" principal. A
// principal declared more than once keeps the last declaration.
func desiredQuotas(topologies map[string]*model.Topology) map[string]model.Quota {
	out := map[string]model.Quota{}
	for _, key := range sortedKeys(topologies) {
		for _, q := range topologies[key].Platform.Kafka.Quotas {
			q.Principal = "User:" + q.User()
			out[q.Principal] = q
		}
	}
	return out
}

func sameValues(a, b map[string]float64) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if w, ok := b[k]; !ok || w != v {
			return false
		}
	}
	return true
}
