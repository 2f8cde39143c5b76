package kafka

import (
	"errors"
	"testing"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digitalis-io/ktopology/pkg/config"
	"github.com/digitalis-io/ktopology/pkg/model"
)

// fakeAdmin records the calls made through clusterAdmin.
type fakeAdmin struct {
	topics     map[string]sarama.TopicDetail
	configs    map[string][]sarama.ConfigEntry
	createErr  error
	clusterErr error

	created     map[string]*sarama.TopicDetail
	deleted     []string
	altered     map[string]map[string]sarama.IncrementalAlterConfigsEntry
	partitions  map[string]int32
	createdACLs []*sarama.ResourceAcls
	aclFilters  []sarama.AclFilter
	quotas      []sarama.DescribeClientQuotasEntry
	quotaOps    []sarama.ClientQuotasOp
	quotaUsers  []string
}

func newFakeAdmin() *fakeAdmin {
	return &fakeAdmin{
		topics:     map[string]sarama.TopicDetail{},
		configs:    map[string][]sarama.ConfigEntry{},
		created:    map[string]*sarama.TopicDetail{},
		altered:    map[string]map[string]sarama.IncrementalAlterConfigsEntry{},
		partitions: map[string]int32{},
	}
}

func (f *fakeAdmin) ListTopics() (map[string]sarama.TopicDetail, error) {
	return f.topics, nil
}

func (f *fakeAdmin) DescribeConfig(resource sarama.ConfigResource) ([]sarama.ConfigEntry, error) {
	return f.configs[resource.Name], nil
}

func (f *fakeAdmin) CreateTopic(topic string, detail *sarama.TopicDetail, _ bool) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.created[topic] = detail
	return nil
}

func (f *fakeAdmin) DeleteTopic(topic string) error {
	if _, ok := f.topics[topic]; !ok {
		return sarama.ErrUnknownTopicOrPartition
	}
	f.deleted = append(f.deleted, topic)
	return nil
}

func (f *fakeAdmin) IncrementalAlterConfig(_ sarama.ConfigResourceType, name string, entries map[string]sarama.IncrementalAlterConfigsEntry, _ bool) error {
	f.altered[name] = entries
	return nil
}

func (f *fakeAdmin) CreatePartitions(topic string, count int32, _ [][]int32, _ bool) error {
	f.partitions[topic] = count
	return nil
}

func (f *fakeAdmin) CreateACLs(acls []*sarama.ResourceAcls) error {
	f.createdACLs = append(f.createdACLs, acls...)
	return nil
}

func (f *fakeAdmin) ListAcls(sarama.AclFilter) ([]sarama.ResourceAcls, error) {
	out := make([]sarama.ResourceAcls, 0, len(f.createdACLs))
	for _, ra := range f.createdACLs {
		out = append(out, *ra)
	}
	return out, nil
}

func (f *fakeAdmin) DeleteACL(filter sarama.AclFilter, _ bool) ([]sarama.MatchingAcl, error) {
	f.aclFilters = append(f.aclFilters, filter)
	return []sarama.MatchingAcl{{}}, nil
}

func (f *fakeAdmin) DescribeCluster() ([]*sarama.Broker, int32, error) {
	return nil, 1, f.clusterErr
}

func (f *fakeAdmin) DescribeClientQuotas([]sarama.QuotaFilterComponent, bool) ([]sarama.DescribeClientQuotasEntry, error) {
	return f.quotas, nil
}

func (f *fakeAdmin) AlterClientQuotas(entity []sarama.QuotaEntityComponent, op sarama.ClientQuotasOp, _ bool) error {
	f.quotaUsers = append(f.quotaUsers, entity[0].Name)
	f.quotaOps = append(f.quotaOps, op)
	return nil
}

func (f *fakeAdmin) Close() error { return nil }

func TestHealthCheck(t *testing.T) {
	admin := newFakeAdmin()
	c := newClient([]string{"broker:9092"}, admin)
	require.NoError(t, c.HealthCheck())

	admin.clusterErr = sarama.ErrOutOfBrokers
	err := c.HealthCheck()
	var connectivity *ConnectivityError
	require.True(t, errors.As(err, &connectivity))
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
}

func TestCreateTopic(t *testing.T) {
	admin := newFakeAdmin()
	c := newClient(nil, admin)

	require.NoError(t, c.CreateTopic("orders", 3, -1, map[string]string{"cleanup.policy": "compact"}))
	detail := admin.created["orders"]
	require.NotNil(t, detail)
	assert.Equal(t, int32(3), detail.NumPartitions)
	assert.Equal(t, int16(-1), detail.ReplicationFactor)
	assert.Equal(t, "compact", *detail.ConfigEntries["cleanup.policy"])

	admin.createErr = &sarama.TopicError{Err: sarama.ErrTopicAlreadyExists}
	assert.NoError(t, c.CreateTopic("orders", 3, -1, nil))

	admin.createErr = &sarama.TopicError{Err: sarama.ErrTopicAuthorizationFailed}
	assert.Error(t, c.CreateTopic("orders", 3, -1, nil))
	assert.Error(t, c.CreateTopic("", 3, -1, nil))
}

func TestDescribeTopicConfigKeepsTopicOverrides(t *testing.T) {
	admin := newFakeAdmin()
	admin.configs["orders"] = []sarama.ConfigEntry{
		{Name: "retention.ms", Value: "1000", Source: sarama.SourceTopic},
		{Name: "segment.bytes", Value: "1073741824", Source: sarama.SourceDefault},
		{Name: "min.insync.replicas", Value: "2", Source: sarama.SourceStaticBroker},
	}
	got, err := newClient(nil, admin).DescribeTopicConfig("orders")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"retention.ms": "1000"}, got)
}

func TestIncrementalAlterConfig(t *testing.T) {
	admin := newFakeAdmin()
	require.NoError(t, newClient(nil, admin).IncrementalAlterConfig("orders",
		map[string]string{"retention.ms": "1000"}, []string{"cleanup.policy"}))

	entries := admin.altered["orders"]
	require.Len(t, entries, 2)
	assert.Equal(t, sarama.IncrementalAlterConfigsOperationSet, entries["retention.ms"].Operation)
	assert.Equal(t, "1000", *entries["retention.ms"].Value)
	assert.Equal(t, sarama.IncrementalAlterConfigsOperationDelete, entries["cleanup.policy"].Operation)
}

func TestIncreasePartitions(t *testing.T) {
	admin := newFakeAdmin()
	admin.topics["orders"] = sarama.TopicDetail{NumPartitions: 3}
	c := newClient(nil, admin)

	tests := []struct {
		name    string
		topic   string
		count   int32
		wantErr bool
	}{
		{"grow", "orders", 6, false},
		{"same", "orders", 3, true},
		{"shrink", "orders", 1, true},
		{"missing topic", "payments", 6, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.IncreasePartitions(tt.topic, tt.count)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.count, admin.partitions[tt.topic])
		})
	}
	assert.Len(t, admin.partitions, 1)
}

func TestDeleteTopicsReportsEveryFailure(t *testing.T) {
	admin := newFakeAdmin()
	admin.topics["a"] = sarama.TopicDetail{}
	err := newClient(nil, admin).DeleteTopics([]string{"a", "b", "c"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "topic b")
	assert.Contains(t, err.Error(), "topic c")
	assert.Equal(t, []string{"a"}, admin.deleted)
}

func binding(principal, resourceType, name, op string) model.Binding {
	return model.Binding{
		Principal:    principal,
		ResourceType: resourceType,
		ResourceName: name,
		PatternType:  model.PatternLiteral,
		Operation:    op,
		Permission:   model.PermissionAllow,
		Host:         model.AnyHost,
	}
}

func TestCreateAndListBindings(t *testing.T) {
	admin := newFakeAdmin()
	c := newClient(nil, admin)
	bindings := []model.Binding{
		binding("User:alice", model.ResourceTopic, "orders", model.OpWrite),
		binding("User:alice", model.ResourceTopic, "orders", model.OpDescribe),
		binding("User:bob", model.ResourceGroup, "*", model.OpRead),
	}
	require.NoError(t, c.CreateBindings(bindings))
	require.Len(t, admin.createdACLs, 2)
	assert.Len(t, admin.createdACLs[0].Acls, 2)
	assert.Equal(t, sarama.AclResourceGroup, admin.createdACLs[1].ResourceType)

	listed, err := c.ListBindings()
	require.NoError(t, err)
	assert.ElementsMatch(t, bindings, listed)
}

func TestCreateBindingsRejectsRoleOnlyResources(t *testing.T) {
	admin := newFakeAdmin()
	err := newClient(nil, admin).CreateBindings([]model.Binding{
		binding("User:alice", model.ResourceSubject, "orders-value", model.OpRead),
	})
	assert.Error(t, err)
	assert.Empty(t, admin.createdACLs)
}

func TestCreateBindingsKeepsValidACLs(t *testing.T) {
	admin := newFakeAdmin()
	err := newClient(nil, admin).CreateBindings([]model.Binding{
		binding("User:alice", model.ResourceTopic, "orders", model.OpWrite),
		binding("User:bob", model.ResourceTopic, "orders", "DESCRIBECONFIGS"),
		binding("User:carol", model.ResourceConnector, "sink", model.OpRead),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DESCRIBECONFIGS")
	assert.Contains(t, err.Error(), "Connector")

	require.Len(t, admin.createdACLs, 1)
	require.Len(t, admin.createdACLs[0].Acls, 1)
	assert.Equal(t, "User:alice", admin.createdACLs[0].Acls[0].Principal)
}

func TestDeleteBindingsUsesExactFilter(t *testing.T) {
	admin := newFakeAdmin()
	b := binding("User:bob", model.ResourceTopic, "orders", model.OpRead)
	require.NoError(t, newClient(nil, admin).DeleteBindings([]model.Binding{b}))

	require.Len(t, admin.aclFilters, 1)
	filter := admin.aclFilters[0]
	assert.Equal(t, sarama.AclResourceTopic, filter.ResourceType)
	assert.Equal(t, "orders", *filter.ResourceName)
	assert.Equal(t, "User:bob", *filter.Principal)
	assert.Equal(t, sarama.AclPatternLiteral, filter.ResourcePatternTypeFilter)
	assert.Equal(t, sarama.AclOperationRead, filter.Operation)
	assert.Equal(t, sarama.AclPermissionAllow, filter.PermissionType)
}

func TestEnumConversions(t *testing.T) {
	tests := []struct {
		name string
		in   string
		ok   bool
	}{
		{"upper case operation", "IDEMPOTENT_WRITE", true},
		{"lower case operation", "describe_configs", true},
		{"unknown operation", "FLY", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op := parseOperation(tt.in)
			assert.Equal(t, tt.ok, op != sarama.AclOperationUnknown)
		})
	}

	assert.Equal(t, model.ResourceTransactionalID, resourceTypeName(parseResourceType("transactionalid")))
	assert.Equal(t, model.PatternPrefixed, patternTypeName(parsePatternType("Prefixed")))
	assert.Equal(t, model.PermissionDeny, permissionName(parsePermissionType("deny")))
	assert.Equal(t, sarama.AclResourceUnknown, parseResourceType(model.ResourceKsqlCluster))
}

func TestClientQuotas(t *testing.T) {
	admin := newFakeAdmin()
	admin.quotas = []sarama.DescribeClientQuotasEntry{
		{
			Entity: []sarama.QuotaEntityComponent{{EntityType: sarama.QuotaEntityUser, MatchType: sarama.QuotaMatchExact, Name: "alice"}},
			Values: map[string]float64{model.QuotaProducerByteRate: 1024},
		},
		{
			Entity: []sarama.QuotaEntityComponent{{EntityType: sarama.QuotaEntityUser, MatchType: sarama.QuotaMatchDefault}},
			Values: map[string]float64{model.QuotaProducerByteRate: 1},
		},
	}
	c := newClient(nil, admin)

	quotas, err := c.DescribeClientQuotas()
	require.NoError(t, err)
	require.Len(t, quotas, 1)
	assert.Equal(t, 1024.0, *quotas["User:alice"].ProducerByteRate)

	rate := 2048.0
	require.NoError(t, c.AlterClientQuotas(model.Quota{Principal: "User:alice", ConsumerByteRate: &rate},
		[]string{model.QuotaProducerByteRate}))
	assert.Equal(t, []sarama.ClientQuotasOp{
		{Key: model.QuotaConsumerByteRate, Value: 2048},
		{Key: model.QuotaProducerByteRate, Remove: true},
	}, admin.quotaOps)
	assert.Equal(t, []string{"alice", "alice"}, admin.quotaUsers)

	admin.quotaOps = nil
	require.NoError(t, c.RemoveClientQuotas("User:alice"))
	assert.Len(t, admin.quotaOps, 3)
	for _, op := range admin.quotaOps {
		assert.True(t, op.Remove)
	}
}

func TestAlterClientQuotasRejectsEmptyQuota(t *testing.T) {
	admin := newFakeAdmin()
	c := newClient(nil, admin)

	err := c.AlterClientQuotas(model.Quota{Principal: "User:x"}, nil)
	assert.ErrorIs(t, err, ErrEmptyQuota)
	assert.Empty(t, admin.quotaOps)

	live, err := c.DescribeClientQuotas()
	require.NoError(t, err)
	assert.NotContains(t, live, "User:x")
}

func TestSaramaConfig(t *testing.T) {
	cfg, err := newSaramaConfig(Options{
		ClientID: "ktopology",
		SASL: config.SASL{
			Enabled:   true,
			Mechanism: "scram-sha-512",
			Username:  "admin",
			Password:  "secret",
			Protocol:  "SASL_SSL",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "ktopology", cfg.ClientID)
	assert.Equal(t, sarama.SASLMechanism(sarama.SASLTypeSCRAMSHA512), cfg.Net.SASL.Mechanism)
	require.NotNil(t, cfg.Net.SASL.SCRAMClientGeneratorFunc)
	assert.IsType(t, &XDGSCRAMClient{}, cfg.Net.SASL.SCRAMClientGeneratorFunc())
	assert.True(t, cfg.Net.TLS.Enable)

	_, err = newSaramaConfig(Options{SASL: config.SASL{Enabled: true, Mechanism: "GSSAPI"}})
	assert.Error(t, err)

	_, err = newSaramaConfig(Options{TLS: config.TLS{Enabled: true, CACert: "/does/not/exist.pem"}})
	assert.Error(t, err)
}

func TestXDGSCRAMClientBegin(t *testing.T) {
	client := &XDGSCRAMClient{HashGeneratorFcn: SHA256}
	require.NoError(t, client.Begin("admin", "secret", ""))
	first, err := client.Step("")
	require.NoError(t, err)
	assert.Contains(t, first, "n=admin")
	assert.False(t, client.Done())
}
