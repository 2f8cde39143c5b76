package bindings

import (
	"fmt"
	"sort"

	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/digitalis-io/ktopology/pkg/config"
	"github.com/digitalis-io/ktopology/pkg/logger"
	"github.com/digitalis-io/ktopology/pkg/model"
	"github.com/digitalis-io/ktopology/pkg/roles"
)

// ForStrategy returns the builder of an authorization strategy.
func ForStrategy(strategy config.Strategy) (Builder, error) {
	switch strategy {
	case config.StrategyACL:
		return ACLBuilder{}, nil
	case config.StrategyRBAC:
		return RBACBuilder{}, nil
	default:
		return nil, fmt.Errorf("unknown access control strategy %q", strategy)
	}
}

// Desired collects every binding the topologies ask for. Topologies are
// walked in key order and projects in declaration order.
func Desired(topologies map[string]*model.Topology, r *roles.Roles, b Builder, cfg *config.Config) (sets.Set[model.Binding], error) {
	out := sets.New[model.Binding]()
	for _, key := range sortedKeys(topologies) {
		topology := topologies[key]
		for _, project := range topology.Projects {
			bindings, err := projectBindings(project, r, b, cfg.OptimizedACLs)
			if err != nil {
				return nil, err
			}
			out.Insert(bindings...)
		}
		out.Insert(platformBindings(topology, b)...)
	}
	logger.For("bindings").WithFields(map[string]interface{}{
		"topologies": len(topologies),
		"bindings":   out.Len(),
	}).Debug("Collected desired bindings")
	return out, nil
}

func projectBindings(project *model.Project, r *roles.Roles, b Builder, optimized bool) ([]model.Binding, error) {
	prefix := project.NamePrefix()

	var out []model.Binding
	if optimized {
		out = append(out, b.PrefixedConsumers(project.Consumers, prefix)...)
		out = append(out, b.PrefixedProducers(project.Producers, prefix)...)
	}
	for _, topic := range project.Topics {
		name := project.TopicName(topic)
		if !optimized {
			out = append(out, b.LiteralConsumers(project.Consumers, name)...)
			out = append(out, b.LiteralProducers(project.Producers, name)...)
		}
		out = append(out, b.LiteralConsumers(topic.Consumers, name)...)
		out = append(out, b.LiteralProducers(topic.Producers, name)...)
	}
	for _, stream := range project.Streams {
		out = append(out, b.KStream(stream, prefix)...)
	}
	for _, connector := range project.Connectors {
		out = append(out, b.Connect(connector, prefix)...)
	}
	for _, app := range project.KSqls {
		out = append(out, b.KsqlApp(app)...)
	}
	for _, subjects := range project.Schemas {
		out = append(out, b.SchemaSubjects(subjects, prefix)...)
	}
	for _, mm2 := range project.MirrorMakers {
		out = append(out, b.MirrorMaker2(mm2)...)
	}

	names := make([]string, 0, len(project.Others))
	for name := range project.Others {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		role, ok := r.Get(name)
		if !ok {
			return nil, &roles.ValidationError{Missing: []string{project.Name + "/" + name}}
		}
		for _, other := range project.Others[name] {
			acls, err := roles.ResolveRole(role, templateValues(project, other))
			if err != nil {
				return nil, fmt.Errorf("failed to build bindings for project %s: %w", project.Name, err)
			}
			custom, err := b.CustomRole(other, name, acls)
			if err != nil {
				return nil, fmt.Errorf("failed to build bindings for project %s: %w", project.Name, err)
			}
			out = append(out, custom...)
		}
	}

	return append(out, b.ProjectRoles(project)...), nil
}

// templateValues returns the fields a role template of other can use: the
// project prefix, the resolved names of a MirrorMaker2 declared with the
// same principal, then the fields of other itself, later ones winning.
func templateValues(project *model.Project, other model.Other) model.Other {
	values := model.Other{"projectPrefix": project.NamePrefix()}
	for _, mm2 := range project.MirrorMakers {
		if mm2.Principal != other.Principal() {
			continue
		}
		for k, v := range mm2.AsOther() {
			values[k] = v
		}
		break
	}
	for k, v := range other {
		values[k] = v
	}
	return values
}

func platformBindings(topology *model.Topology, b Builder) []model.Binding {
	var out []model.Binding
	for _, topic := range topology.SpecialTopics {
		out = append(out, b.LiteralConsumers(topic.Consumers, topic.Name)...)
		out = append(out, b.LiteralProducers(topic.Producers, topic.Name)...)
	}
	for _, instance := range topology.Platform.SchemaRegistry.Instances {
		out = append(out, b.SchemaRegistry(instance)...)
	}
	for _, instance := range topology.Platform.KsqlDB.Instances {
		out = append(out, b.KsqlServer(instance)...)
	}
	return append(out, b.ClusterRoles(topology.Platform.Kafka.RBAC)...)
}
