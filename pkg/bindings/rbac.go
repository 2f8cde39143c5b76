package bindings

import (
	"sort"

	"github.com/digitalis-io/ktopology/pkg/model"
	"github.com/digitalis-io/ktopology/pkg/roles"
)

// Predefined Confluent roles.
const (
	RoleDeveloperRead  = "DeveloperRead"
	RoleDeveloperWrite = "DeveloperWrite"
	RoleResourceOwner  = "ResourceOwner"
	RoleSecurityAdmin  = "SecurityAdmin"
)

// RBACBuilder emits role bindings expanded by the metadata service. The
// Operation of every binding is a role name.
type RBACBuilder struct{}

var _ Builder = RBACBuilder{}

func (RBACBuilder) LiteralProducers(producers []model.Producer, topic string) []model.Binding {
	return rbacProducers(producers, topic, model.PatternLiteral)
}

func (RBACBuilder) PrefixedProducers(producers []model.Producer, prefix string) []model.Binding {
	return rbacProducers(producers, prefix, model.PatternPrefixed)
}

func rbacProducers(producers []model.Producer, topic, pattern string) []model.Binding {
	var out []model.Binding
	for _, p := range producers {
		out = append(out, allow(p.Principal, model.ResourceTopic, topic, pattern, RoleDeveloperWrite))
		if p.TransactionID != "" {
			out = append(out, allow(p.Principal, model.ResourceTransactionalID, p.TransactionID, model.PatternLiteral, RoleDeveloperWrite))
		}
	}
	return out
}

func (RBACBuilder) LiteralConsumers(consumers []model.Consumer, topic string) []model.Binding {
	return rbacConsumers(consumers, topic, model.PatternLiteral)
}

func (RBACBuilder) PrefixedConsumers(consumers []model.Consumer, prefix string) []model.Binding {
	return rbacConsumers(consumers, prefix, model.PatternPrefixed)
}

func rbacConsumers(consumers []model.Consumer, topic, pattern string) []model.Binding {
	var out []model.Binding
	for _, c := range consumers {
		out = append(out,
			allow(c.Principal, model.ResourceTopic, topic, pattern, RoleDeveloperRead),
			allow(c.Principal, model.ResourceGroup, c.GroupOrDefault(), model.PatternLiteral, RoleDeveloperRead),
		)
	}
	return out
}

func readWrite(principal string, topics model.Topics) []model.Binding {
	var out []model.Binding
	for _, topic := range topics.Read {
		out = append(out, allow(principal, model.ResourceTopic, topic, model.PatternLiteral, RoleDeveloperRead))
	}
	for _, topic := range topics.Write {
		out = append(out, allow(principal, model.ResourceTopic, topic, model.PatternLiteral, RoleDeveloperWrite))
	}
	return out
}

func (RBACBuilder) KStream(stream model.KStream, topicPrefix string) []model.Binding {
	appID := stream.ApplicationIDOrDefault(topicPrefix)
	out := readWrite(stream.Principal, stream.Topics)
	out = append(out,
		allow(stream.Principal, model.ResourceTopic, appID, model.PatternPrefixed, RoleResourceOwner),
		allow(stream.Principal, model.ResourceGroup, appID, model.PatternPrefixed, RoleResourceOwner),
	)
	if stream.ExactlyOnce {
		out = append(out, allow(stream.Principal, model.ResourceTransactionalID, appID, model.PatternPrefixed, RoleDeveloperWrite))
	}
	return out
}

// Connect grants ownership of each declared connector, or of every
// connector under topicPrefix when none is declared.
func (RBACBuilder) Connect(connector model.Connector, topicPrefix string) []model.Binding {
	principal := connector.Principal

	var out []model.Binding
	for _, topic := range []string{
		connector.StatusTopicOrDefault(),
		connector.OffsetTopicOrDefault(),
		connector.ConfigsTopicOrDefault(),
	} {
		out = append(out, allow(principal, model.ResourceTopic, topic, model.PatternLiteral, RoleResourceOwner))
	}
	out = append(out, allow(principal, model.ResourceGroup, connector.GroupOrDefault(), model.PatternLiteral, RoleResourceOwner))
	out = append(out, readWrite(principal, connector.Topics)...)
	if len(connector.Connectors) == 0 {
		return append(out, allow(principal, model.ResourceConnector, topicPrefix, model.PatternPrefixed, RoleResourceOwner))
	}
	for _, name := range connector.Connectors {
		out = append(out, allow(principal, model.ResourceConnector, name, model.PatternLiteral, RoleResourceOwner))
	}
	return out
}

func (RBACBuilder) SchemaRegistry(instance model.SchemaRegistryInstance) []model.Binding {
	return []model.Binding{
		allow(instance.Principal, model.ResourceTopic, instance.TopicOrDefault(), model.PatternLiteral, RoleResourceOwner),
		allow(instance.Principal, model.ResourceGroup, instance.GroupOrDefault(), model.PatternLiteral, RoleResourceOwner),
		clusterRole(instance.Principal, RoleSecurityAdmin),
	}
}

func (RBACBuilder) KsqlServer(instance model.KsqlServerInstance) []model.Binding {
	id := instance.KsqlDBIDOrDefault()
	var out []model.Binding
	for _, principal := range []string{instance.Principal, instance.Owner} {
		if principal == "" {
			continue
		}
		out = append(out, allow(principal, model.ResourceKsqlCluster, id, model.PatternLiteral, RoleResourceOwner))
	}
	return append(out,
		allow(instance.Principal, model.ResourceTopic, ksqlPrefix(id), model.PatternPrefixed, RoleResourceOwner),
		allow(instance.Principal, model.ResourceGroup, ksqlPrefix(id), model.PatternPrefixed, RoleResourceOwner),
		allow(instance.Principal, model.ResourceTopic, id+"ksql_processing_log", model.PatternLiteral, RoleResourceOwner),
		allow(instance.Principal, model.ResourceTransactionalID, id, model.PatternLiteral, RoleResourceOwner),
	)
}

func (RBACBuilder) KsqlApp(app model.KsqlApp) []model.Binding {
	id := app.KsqlDBIDOrDefault()
	out := readWrite(app.Principal, app.Topics)
	return append(out,
		allow(app.Principal, model.ResourceTopic, ksqlPrefix(id)+"_query_", model.PatternPrefixed, RoleResourceOwner),
		allow(app.Principal, model.ResourceTopic, ksqlPrefix(id)+"transient_", model.PatternPrefixed, RoleResourceOwner),
	)
}

func (RBACBuilder) MirrorMaker2(mm2 model.MirrorMaker2) []model.Binding {
	principal := mm2.Principal

	var out []model.Binding
	switch mm2.Role {
	case model.MirrorMakerConsumer:
		topics := append(append([]string(nil), mm2.SourceTopics...), mm2.StatusTopic(), mm2.OffsetTopic(), mm2.ConfigsTopic())
		for _, topic := range topics {
			out = append(out, allow(principal, model.ResourceTopic, topic, model.PatternLiteral, RoleDeveloperRead))
		}
		out = append(out, allow(principal, model.ResourceGroup, mm2.Group(), model.PatternLiteral, RoleDeveloperRead))
	case model.MirrorMakerProducer:
		topics := append(append([]string(nil), mm2.TargetTopics...), mm2.OffsetSyncsTopic(), mm2.CheckpointsTopic(), mm2.HeartbeatsTopic())
		for _, topic := range topics {
			out = append(out, allow(principal, model.ResourceTopic, topic, model.PatternLiteral, RoleDeveloperWrite))
		}
		if mm2.TargetPrefix != "" {
			out = append(out, allow(principal, model.ResourceTopic, mm2.TargetPrefix, model.PatternPrefixed, RoleResourceOwner))
		}
	}
	return out
}

func (RBACBuilder) CustomRole(other model.Other, _ string, acls []roles.ACL) ([]model.Binding, error) {
	out := make([]model.Binding, 0, len(acls))
	for _, acl := range acls {
		role := acl.Role
		if role == "" {
			role = acl.Operation
		}
		out = append(out, model.Binding{
			Principal:    other.Principal(),
			ResourceType: acl.ResourceType,
			ResourceName: acl.ResourceName,
			PatternType:  acl.PatternType,
			Operation:    role,
			Permission:   model.PermissionAllow,
			Host:         model.AnyHost,
		})
	}
	return out, nil
}

// SchemaSubjects grants the declared role on each subject, or on every
// subject under prefix when none is listed.
func (RBACBuilder) SchemaSubjects(subjects model.SchemaSubjects, prefix string) []model.Binding {
	role := subjects.Role
	if role == "" {
		role = RoleDeveloperRead
	}
	pattern := model.PatternLiteral
	if subjects.Prefixed {
		pattern = model.PatternPrefixed
	}
	if len(subjects.Subjects) == 0 {
		return []model.Binding{allow(subjects.Principal, model.ResourceSubject, prefix, model.PatternPrefixed, role)}
	}
	out := make([]model.Binding, 0, len(subjects.Subjects))
	for _, subject := range subjects.Subjects {
		out = append(out, allow(subjects.Principal, model.ResourceSubject, subject, pattern, role))
	}
	return out
}

var projectResources = []string{
	model.ResourceTopic,
	model.ResourceGroup,
	model.ResourceSubject,
	model.ResourceTransactionalID,
}

func (RBACBuilder) ProjectRoles(project *model.Project) []model.Binding {
	var out []model.Binding
	for _, role := range sortedKeys(project.RBACRoles) {
		for _, principal := range project.RBACRoles[role] {
			for _, resource := range projectResources {
				out = append(out, allow(principal, resource, project.NamePrefix(), model.PatternPrefixed, role))
			}
		}
	}
	return out
}

func (RBACBuilder) ClusterRoles(rbac map[string][]string) []model.Binding {
	var out []model.Binding
	for _, role := range sortedKeys(rbac) {
		for _, principal := range rbac[role] {
			out = append(out, clusterRole(principal, role))
		}
	}
	return out
}

// clusterRole is a binding on the whole cluster: no resource name.
func clusterRole(principal, role string) model.Binding {
	return allow(principal, model.ResourceCluster, "", model.PatternLiteral, role)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
