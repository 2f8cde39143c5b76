package bindings

import (
	"fmt"

	"github.com/digitalis-io/ktopology/pkg/model"
	"github.com/digitalis-io/ktopology/pkg/roles"
)

const consumerOffsetsTopic = "__consumer_offsets"

// ACLBuilder emits plain Kafka ACLs.
type ACLBuilder struct{}

var _ Builder = ACLBuilder{}

func (ACLBuilder) producers(producers []model.Producer, topic, pattern string) []model.Binding {
	var out []model.Binding
	for _, p := range producers {
		out = append(out, grant(p.Principal, model.ResourceTopic, topic, pattern, model.OpWrite, model.OpDescribe)...)
		if p.AutoCreate {
			out = append(out, allow(p.Principal, model.ResourceTopic, topic, pattern, model.OpCreate))
		}
		if p.TransactionID != "" {
			out = append(out, grant(p.Principal, model.ResourceTransactionalID, p.TransactionID, model.PatternLiteral,
				model.OpWrite, model.OpDescribe)...)
		}
		if p.Idempotence {
			out = append(out, allow(p.Principal, model.ResourceCluster, model.ClusterResourceName, model.PatternLiteral,
				model.OpIdempotentWrite))
		}
	}
	return out
}

func (ACLBuilder) consumers(consumers []model.Consumer, topic, pattern string) []model.Binding {
	var out []model.Binding
	for _, c := range consumers {
		out = append(out, grant(c.Principal, model.ResourceTopic, topic, pattern, model.OpRead, model.OpDescribe)...)
		out = append(out, allow(c.Principal, model.ResourceGroup, c.GroupOrDefault(), model.PatternLiteral, model.OpRead))
	}
	return out
}

func (b ACLBuilder) LiteralProducers(producers []model.Producer, topic string) []model.Binding {
	return b.producers(producers, topic, model.PatternLiteral)
}

func (b ACLBuilder) PrefixedProducers(producers []model.Producer, prefix string) []model.Binding {
	return b.producers(producers, prefix, model.PatternPrefixed)
}

func (b ACLBuilder) LiteralConsumers(consumers []model.Consumer, topic string) []model.Binding {
	return b.consumers(consumers, topic, model.PatternLiteral)
}

func (b ACLBuilder) PrefixedConsumers(consumers []model.Consumer, prefix string) []model.Binding {
	return b.consumers(consumers, prefix, model.PatternPrefixed)
}

func (ACLBuilder) KStream(stream model.KStream, topicPrefix string) []model.Binding {
	principal := stream.Principal
	appID := stream.ApplicationIDOrDefault(topicPrefix)

	var out []model.Binding
	for _, topic := range stream.Topics.Read {
		out = append(out, allow(principal, model.ResourceTopic, topic, model.PatternLiteral, model.OpRead))
	}
	for _, topic := range stream.Topics.Write {
		out = append(out, allow(principal, model.ResourceTopic, topic, model.PatternLiteral, model.OpWrite))
	}
	out = append(out, grant(principal, model.ResourceTopic, appID, model.PatternPrefixed,
		model.OpRead, model.OpWrite, model.OpCreate, model.OpDelete, model.OpDescribe, model.OpAlter, model.OpDescribeConfigs)...)
	out = append(out, grant(principal, model.ResourceGroup, appID, model.PatternPrefixed,
		model.OpRead, model.OpDescribe, model.OpDelete)...)
	if stream.ExactlyOnce {
		out = append(out, grant(principal, model.ResourceTransactionalID, appID, model.PatternPrefixed,
			model.OpWrite, model.OpDescribe)...)
	}
	return out
}

func (ACLBuilder) Connect(connector model.Connector, _ string) []model.Binding {
	principal := connector.Principal

	var out []model.Binding
	for _, topic := range []string{
		connector.StatusTopicOrDefault(),
		connector.OffsetTopicOrDefault(),
		connector.ConfigsTopicOrDefault(),
	} {
		out = append(out, grant(principal, model.ResourceTopic, topic, model.PatternLiteral, model.OpRead, model.OpWrite)...)
	}
	out = append(out, allow(principal, model.ResourceCluster, model.ClusterResourceName, model.PatternLiteral, model.OpCreate))
	out = append(out, allow(principal, model.ResourceGroup, connector.GroupOrDefault(), model.PatternLiteral, model.OpRead))
	for _, topic := range connector.Topics.Read {
		out = append(out, allow(principal, model.ResourceTopic, topic, model.PatternLiteral, model.OpRead))
	}
	for _, topic := range connector.Topics.Write {
		out = append(out, allow(principal, model.ResourceTopic, topic, model.PatternLiteral, model.OpWrite))
	}
	return out
}

func (ACLBuilder) SchemaRegistry(instance model.SchemaRegistryInstance) []model.Binding {
	principal := instance.Principal
	out := grant(principal, model.ResourceTopic, instance.TopicOrDefault(), model.PatternLiteral,
		model.OpDescribeConfigs, model.OpRead, model.OpWrite)
	out = append(out, allow(principal, model.ResourceTopic, consumerOffsetsTopic, model.PatternLiteral, model.OpDescribe))
	return append(out, allow(principal, model.ResourceGroup, instance.GroupOrDefault(), model.PatternLiteral, model.OpRead))
}

func (ACLBuilder) KsqlServer(instance model.KsqlServerInstance) []model.Binding {
	principal := instance.Principal
	id := instance.KsqlDBIDOrDefault()

	out := []model.Binding{
		allow(principal, model.ResourceTopic, ksqlPrefix(id), model.PatternPrefixed, model.OpAll),
		allow(principal, model.ResourceGroup, ksqlPrefix(id), model.PatternPrefixed, model.OpAll),
		allow(principal, model.ResourceTopic, id+"ksql_processing_log", model.PatternLiteral, model.OpAll),
		allow(principal, model.ResourceTransactionalID, id, model.PatternLiteral, model.OpAll),
	}
	return append(out, grant(principal, model.ResourceCluster, model.ClusterResourceName, model.PatternLiteral,
		model.OpDescribe, model.OpDescribeConfigs)...)
}

func (ACLBuilder) KsqlApp(app model.KsqlApp) []model.Binding {
	principal := app.Principal
	id := app.KsqlDBIDOrDefault()

	var out []model.Binding
	for _, topic := range app.Topics.Read {
		out = append(out, allow(principal, model.ResourceTopic, topic, model.PatternLiteral, model.OpRead))
	}
	for _, topic := range app.Topics.Write {
		out = append(out, allow(principal, model.ResourceTopic, topic, model.PatternLiteral, model.OpWrite))
	}
	return append(out,
		allow(principal, model.ResourceTopic, ksqlPrefix(id)+"_query_", model.PatternPrefixed, model.OpAll),
		allow(principal, model.ResourceTopic, ksqlPrefix(id)+"transient_", model.PatternPrefixed, model.OpAll),
		allow(principal, model.ResourceGroup, ksqlPrefix(id), model.PatternPrefixed, model.OpRead),
	)
}

func (ACLBuilder) MirrorMaker2(mm2 model.MirrorMaker2) []model.Binding {
	principal := mm2.Principal

	var out []model.Binding
	switch mm2.Role {
	case model.MirrorMakerConsumer:
		topics := append(append([]string(nil), mm2.SourceTopics...), mm2.StatusTopic(), mm2.OffsetTopic(), mm2.ConfigsTopic())
		for _, topic := range topics {
			out = append(out, allow(principal, model.ResourceTopic, topic, model.PatternLiteral, model.OpRead))
		}
		out = append(out, allow(principal, model.ResourceGroup, mm2.Group(), model.PatternLiteral, model.OpRead))
	case model.MirrorMakerProducer:
		topics := append(append([]string(nil), mm2.TargetTopics...), mm2.OffsetSyncsTopic(), mm2.CheckpointsTopic(), mm2.HeartbeatsTopic())
		for _, topic := range topics {
			out = append(out, allow(principal, model.ResourceTopic, topic, model.PatternLiteral, model.OpWrite))
		}
		if mm2.TargetPrefix != "" {
			out = append(out, grant(principal, model.ResourceTopic, mm2.TargetPrefix, model.PatternPrefixed,
				model.OpWrite, model.OpCreate, model.OpDescribe)...)
		}
	}
	return out
}

func (ACLBuilder) CustomRole(other model.Other, roleName string, acls []roles.ACL) ([]model.Binding, error) {
	out := make([]model.Binding, 0, len(acls))
	for _, acl := range acls {
		if err := roles.CheckACL(acl); err != nil {
			return nil, fmt.Errorf("custom role %s: %w", roleName, err)
		}
		out = append(out, model.Binding{
			Principal:    other.Principal(),
			ResourceType: acl.ResourceType,
			ResourceName: acl.ResourceName,
			PatternType:  acl.PatternType,
			Operation:    acl.Operation,
			Permission:   acl.PermissionType,
			Host:         acl.Host,
		})
	}
	return out, nil
}

func (ACLBuilder) SchemaSubjects(model.SchemaSubjects, string) []model.Binding { return nil }

func (ACLBuilder) ProjectRoles(*model.Project) []model.Binding { return nil }

func (ACLBuilder) ClusterRoles(map[string][]string) []model.Binding { return nil }
