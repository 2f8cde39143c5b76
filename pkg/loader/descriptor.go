package loader

import (
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/digitalis-io/ktopology/pkg/logger"
	"github.com/digitalis-io/ktopology/pkg/model"
)

// parser turns one descriptor document into a Topology, applying plans to
// the declared topics.
type parser struct {
	plans Plans
	// plansGiven is false when no plans document was supplied at all.
	plansGiven bool
}

func (p parser) parse(file string, data []byte) (*model.Topology, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, &ParsingError{File: file, Err: err}
	}
	if len(root.Content) == 0 {
		return nil, &ParsingError{File: file, Err: errors.New("empty document")}
	}
	doc := root.Content[0]
	if doc.Kind != yaml.MappingNode {
		return nil, &ParsingError{File: file, Err: fmt.Errorf("line %d: expected a mapping at the document root", doc.Line)}
	}

	var (
		ctx      string
		order    [][2]string
		projects []*model.Project
		specials []model.Topic
		platform model.Platform
	)
	for i := 0; i+1 < len(doc.Content); i += 2 {
		key, value := doc.Content[i], doc.Content[i+1]
		var err error
		switch key.Value {
		case "context":
			if value.Kind != yaml.ScalarNode {
				err = fmt.Errorf("line %d: context must be a string", value.Line)
			}
			ctx = value.Value
		case "projects":
			projects, err = parseProjects(value)
		case "special_topics":
			err = value.Decode(&specials)
		case "platform":
			err = value.Decode(&platform)
		default:
			if value.Kind != yaml.ScalarNode {
				logger.For("loader").WithFields(map[string]interface{}{
					"file":  file,
					"field": key.Value,
					"line":  key.Line,
				}).Warn("Ignoring unknown top level field")
				continue
			}
			order = append(order, [2]string{key.Value, value.Value})
		}
		if err != nil {
			return nil, &ParsingError{File: file, Err: err}
		}
	}
	if ctx == "" {
		return nil, &ParsingError{File: file, Err: errors.New("missing required field context")}
	}

	topology := model.NewTopology(ctx)
	for _, kv := range order {
		topology.AddOther(kv[0], kv[1])
	}
	for _, project := range projects {
		if topology.Project(project.Name) != nil {
			return nil, &ConflictError{Reason: fmt.Sprintf("%s: project %s is declared more than once", file, project.Name)}
		}
		for i := range project.Topics {
			if err := p.applyPlan(file, &project.Topics[i]); err != nil {
				return nil, err
			}
			if err := project.Topics[i].Validate(); err != nil {
				return nil, &ParsingError{File: file, Err: err}
			}
		}
		topology.AddProject(project)
	}
	seen := make(map[string]bool, len(specials))
	for _, topic := range specials {
		if seen[topic.Name] {
			return nil, &ConflictError{Reason: fmt.Sprintf("%s: special topic %s is declared more than once", file, topic.Name)}
		}
		seen[topic.Name] = true
		if err := p.applyPlan(file, &topic); err != nil {
			return nil, err
		}
		if err := topic.Validate(); err != nil {
			return nil, &ParsingError{File: file, Err: err}
		}
		topology.AddSpecialTopic(topic)
	}
	for _, q := range platform.Kafka.Quotas {
		if err := q.Validate(); err != nil {
			return nil, &ParsingError{File: file, Err: err}
		}
	}
	topology.Platform = platform
	return topology, nil
}

func (p parser) applyPlan(file string, topic *model.Topic) error {
	if topic.Plan == "" {
		return nil
	}
	if !p.plansGiven {
		return &ConflictError{Reason: fmt.Sprintf("%s: topic %s uses plan %s but no plans file was provided", file, topic.Name, topic.Plan)}
	}
	plan, ok := p.plans[topic.Plan]
	if !ok {
		return &ParsingError{File: file, Err: fmt.Errorf("topic %s references unknown plan %s", topic.Name, topic.Plan)}
	}
	topic.MergeConfig(plan.Config)
	return nil
}

func parseProjects(node *yaml.Node) ([]*model.Project, error) {
	if node.Kind != yaml.SequenceNode {
		return nil, fmt.Errorf("line %d: projects must be a list", node.Line)
	}
	projects := make([]*model.Project, 0, len(node.Content))
	for _, item := range node.Content {
		project, err := parseProject(item)
		if err != nil {
			return nil, err
		}
		projects = append(projects, project)
	}
	return projects, nil
}

type accessControl[T any] struct {
	AccessControl []T       `yaml:"access_control"`
	Artefacts     yaml.Node `yaml:"artefacts"`
}

func parseProject(node *yaml.Node) (*model.Project, error) {
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: a project must be a mapping", node.Line)
	}
	project := &model.Project{}
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]
		var err error
		switch key.Value {
		case "name":
			project.Name = value.Value
		case "topics":
			err = value.Decode(&project.Topics)
		case "consumers":
			err = value.Decode(&project.Consumers)
		case "producers":
			err = value.Decode(&project.Producers)
		case "streams":
			err = value.Decode(&project.Streams)
		case "schemas":
			err = value.Decode(&project.Schemas)
		case "mirror_makers":
			err = value.Decode(&project.MirrorMakers)
		case "connectors":
			project.Connectors, project.ConnectorArtefacts, err = decodeWithArtefacts[model.Connector](value)
		case "ksql":
			project.KSqls, project.KsqlArtefacts, err = decodeWithArtefacts[model.KsqlApp](value)
		case "rbac":
			project.RBACRoles, err = decodeRoleAssignments(value)
		default:
			if value.Kind == yaml.ScalarNode {
				logger.For("loader").WithFields(map[string]interface{}{
					"project": project.Name,
					"field":   key.Value,
					"line":    key.Line,
				}).Warn("Ignoring unknown project field")
				continue
			}
			var others []model.Other
			if err = value.Decode(&others); err != nil {
				err = fmt.Errorf("line %d: custom role %s must be a list of string maps: %w", value.Line, key.Value, err)
				break
			}
			if project.Others == nil {
				project.Others = map[string][]model.Other{}
			}
			project.Others[key.Value] = append(project.Others[key.Value], others...)
		}
		if err != nil {
			return nil, err
		}
	}
	if project.Name == "" {
		return nil, fmt.Errorf("line %d: project without a name", node.Line)
	}
	for _, mm2 := range project.MirrorMakers {
		if err := mm2.Validate(); err != nil {
			return nil, fmt.Errorf("project %s: %w", project.Name, err)
		}
	}
	return project, nil
}

// decodeWithArtefacts accepts either a plain list of principals or a
// mapping with access_control and artefacts sections.
func decodeWithArtefacts[T any](node *yaml.Node) ([]T, []model.Artefact, error) {
	if node.Kind == yaml.SequenceNode {
		var items []T
		err := node.Decode(&items)
		return items, nil, err
	}
	var section accessControl[T]
	if err := node.Decode(&section); err != nil {
		return nil, nil, err
	}
	artefacts, err := decodeArtefacts(&section.Artefacts)
	return section.AccessControl, artefacts, err
}

// decodeArtefacts reads either a list of artefacts or a mapping of artefact
// kind to list, such as ksql streams and tables.
func decodeArtefacts(node *yaml.Node) ([]model.Artefact, error) {
	switch node.Kind {
	case 0:
		return nil, nil
	case yaml.SequenceNode:
		var artefacts []model.Artefact
		err := node.Decode(&artefacts)
		return artefacts, err
	case yaml.MappingNode:
		var artefacts []model.Artefact
		for i := 0; i+1 < len(node.Content); i += 2 {
			var group []model.Artefact
			if err := node.Content[i+1].Decode(&group); err != nil {
				return nil, err
			}
			for _, a := range group {
				if a.Kind == "" {
					a.Kind = node.Content[i].Value
				}
				artefacts = append(artefacts, a)
			}
		}
		return artefacts, nil
	default:
		return nil, fmt.Errorf("line %d: artefacts must be a list or a mapping", node.Line)
	}
}

// decodeRoleAssignments reads role to principal assignments, either as a
// mapping of role to principals or as a list of such mappings. Principals
// may be plain strings or objects with a principal field.
func decodeRoleAssignments(node *yaml.Node) (map[string][]string, error) {
	out := map[string][]string{}
	var add func(n *yaml.Node) error
	add = func(n *yaml.Node) error {
		switch n.Kind {
		case yaml.SequenceNode:
			for _, item := range n.Content {
				if err := add(item); err != nil {
					return err
				}
			}
			return nil
		case yaml.MappingNode:
			for i := 0; i+1 < len(n.Content); i += 2 {
				role := n.Content[i].Value
				var entries []yaml.Node
				if err := n.Content[i+1].Decode(&entries); err != nil {
					return err
				}
				for _, e := range entries {
					if e.Kind == yaml.ScalarNode {
						out[role] = append(out[role], e.Value)
						continue
					}
					var p struct {
						Principal string `yaml:"principal"`
					}
					if err := e.Decode(&p); err != nil {
						return err
					}
					out[role] = append(out[role], p.Principal)
				}
			}
			return nil
		default:
			return fmt.Errorf("line %d: rbac must be a mapping or a list of mappings", n.Line)
		}
	}
	if err := add(node); err != nil {
		return nil, err
	}
	return out, nil
}
