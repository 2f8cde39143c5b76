package plan

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digitalis-io/ktopology/pkg/model"
)

func rate(v float64) *float64 { return &v }

func quotaTopology(quotas ...model.Quota) map[string]*model.Topology {
	topology := model.NewTopology("ctx")
	topology.Platform.Kafka.Quotas = quotas
	return map[string]*model.Topology{"ctx": topology}
}

func TestQuotasManager(t *testing.T) {
	tests := []struct {
		name        string
		live        map[string]model.Quota
		declared    []model.Quota
		allowDelete bool
		wantKinds   []Kind
		wantLive    map[string]map[string]float64
	}{
		{
			name:      "missing quota is created",
			declared:  []model.Quota{{Principal: "User:alice", ProducerByteRate: rate(1024)}},
			wantKinds: []Kind{KindCreateQuota},
			wantLive:  map[string]map[string]float64{"User:alice": {model.QuotaProducerByteRate: 1024}},
		},
		{
			name:      "bare user name is normalized",
			declared:  []model.Quota{{Principal: "alice", ConsumerByteRate: rate(10)}},
			wantKinds: []Kind{KindCreateQuota},
			wantLive:  map[string]map[string]float64{"User:alice": {model.QuotaConsumerByteRate: 10}},
		},
		{
			name: "changed values replace the entity",
			live: map[string]model.Quota{
				"User:alice": {Principal: "User:alice", ProducerByteRate: rate(1), RequestPercentage: rate(50)},
			},
			declared:  []model.Quota{{Principal: "User:alice", ProducerByteRate: rate(2048), ConsumerByteRate: rate(4096)}},
			wantKinds: []Kind{KindUpdateQuota},
			wantLive: map[string]map[string]float64{
				"User:alice": {model.QuotaProducerByteRate: 2048, model.QuotaConsumerByteRate: 4096},
			},
		},
		{
			name: "equal values produce nothing",
			live: map[string]model.Quota{
				"User:alice": {Principal: "User:alice", ProducerByteRate: rate(1024)},
			},
			declared: []model.Quota{{Principal: "User:alice", ProducerByteRate: rate(1024)}},
			wantLive: map[string]map[string]float64{"User:alice": {model.QuotaProducerByteRate: 1024}},
		},
		{
			name: "undeclared quota is kept without deletion",
			live: map[string]model.Quota{
				"User:bob": {Principal: "User:bob", ConsumerByteRate: rate(1)},
			},
			wantLive: map[string]map[string]float64{"User:bob": {model.QuotaConsumerByteRate: 1}},
		},
		{
			name: "undeclared quota is deleted when allowed",
			live: map[string]model.Quota{
				"User:bob": {Principal: "User:bob", ConsumerByteRate: rate(1)},
			},
			allowDelete: true,
			wantKinds:   []Kind{KindDeleteQuota},
			wantLive:    map[string]map[string]float64{},
		},
		{
			name: "quota without values is neither created nor deleted",
			live: map[string]model.Quota{
				"User:carol": {Principal: "User:carol", ConsumerByteRate: rate(1)},
			},
			declared:    []model.Quota{{Principal: "User:carol"}, {Principal: "User:dave"}},
			allowDelete: true,
			wantLive:    map[string]map[string]float64{"User:carol": {model.QuotaConsumerByteRate: 1}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cluster := newFakeCluster()
			for k, v := range tt.live {
				cluster.quotas[k] = v
			}
			cfg := testConfig()
			cfg.AllowDeleteQuotas = tt.allowDelete
			controller := newController(t, nil)
			m := NewQuotasManager(cluster, cfg)

			p := New(controller, false)
			require.NoError(t, m.UpdatePlan(quotaTopology(tt.declared...), p))
			assert.Equal(t, tt.wantKinds, kinds(p))
			require.NoError(t, p.Run(context.Background()).Err())

			got := map[string]map[string]float64{}
			for k, q := range cluster.quotas {
				got[k] = q.Values()
			}
			assert.Equal(t, tt.wantLive, got)

			second := New(controller, false)
			require.NoError(t, m.UpdatePlan(quotaTopology(tt.declared...), second))
			assert.Zero(t, second.Len(), "second pass must be empty")
		})
	}
}

func TestQuotaActionsRecordState(t *testing.T) {
	cluster := newFakeCluster()
	cfg := testConfig()
	cfg.AllowDeleteQuotas = true
	controller := newController(t, nil)
	m := NewQuotasManager(cluster, cfg)

	p := New(controller, false)
	require.NoError(t, m.UpdatePlan(quotaTopology(model.Quota{Principal: "User:alice", ProducerByteRate: rate(1)}), p))
	require.NoError(t, p.Run(context.Background()).Err())
	assert.Contains(t, controller.Quotas(), "User:alice")

	p = New(controller, false)
	require.NoError(t, m.UpdatePlan(quotaTopology(), p))
	require.NoError(t, p.Run(context.Background()).Err())
	assert.NotContains(t, controller.Quotas(), "User:alice")
}

func TestQuotaWithoutValuesIsWarned(t *testing.T) {
	controller := newController(t, nil)
	p := New(controller, false)
	require.NoError(t, NewQuotasManager(newFakeCluster(), testConfig()).UpdatePlan(quotaTopology(model.Quota{Principal: "User:dave"}), p))

	assert.Zero(t, p.Len())
	require.Len(t, p.Warnings, 1)
	assert.Contains(t, p.Warnings[0], "User:dave")
}
