package bindings

import (
	"github.com/digitalis-io/ktopology/pkg/model"
	"github.com/digitalis-io/ktopology/pkg/roles"
)

// Builder turns topology declarations into bindings. Each authorization
// strategy implements every method and returns nil for categories it has no
// use for.
type Builder interface {
	Connect(connector model.Connector, topicPrefix string) []model.Binding
	KStream(stream model.KStream, topicPrefix string) []model.Binding
	LiteralConsumers(consumers []model.Consumer, topic string) []model.Binding
	PrefixedConsumers(consumers []model.Consumer, prefix string) []model.Binding
	LiteralProducers(producers []model.Producer, topic string) []model.Binding
	PrefixedProducers(producers []model.Producer, prefix string) []model.Binding
	SchemaRegistry(instance model.SchemaRegistryInstance) []model.Binding
	KsqlServer(instance model.KsqlServerInstance) []model.Binding
	KsqlApp(app model.KsqlApp) []model.Binding
	// CustomRole receives the role templates already resolved for other and
	// fails on a template the strategy cannot enforce.
	CustomRole(other model.Other, roleName string, acls []roles.ACL) ([]model.Binding, error)
	MirrorMaker2(mm2 model.MirrorMaker2) []model.Binding
	SchemaSubjects(subjects model.SchemaSubjects, prefix string) []model.Binding
	ProjectRoles(project *model.Project) []model.Binding
	ClusterRoles(rbac map[string][]string) []model.Binding
}

func allow(principal, resourceType, resourceName, pattern, operation string) model.Binding {
	return model.Binding{
		Principal:    principal,
		ResourceType: resourceType,
		ResourceName: resourceName,
		PatternType:  pattern,
		Operation:    operation,
		Permission:   model.PermissionAllow,
		Host:         model.AnyHost,
	}
}

// grant returns one ALLOW binding per operation on the same resource.
func grant(principal, resourceType, resourceName, pattern string, operations ...string) []model.Binding {
	out := make([]model.Binding, 0, len(operations))
	for _, op := range operations {
		out = append(out, allow(principal, resourceType, resourceName, pattern, op))
	}
	return out
}

func ksqlPrefix(id string) string {
	return "_confluent-ksql-" + id
}
