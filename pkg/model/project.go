package model

// Project is a named grouping of topics and the principals using them.
type Project struct {
	Name string

	Topics       []Topic
	Consumers    []Consumer
	Producers    []Producer
	Streams      []KStream
	Connectors   []Connector
	KSqls        []KsqlApp
	Schemas      []SchemaSubjects
	MirrorMakers []MirrorMaker2

	ConnectorArtefacts []Artefact
	KsqlArtefacts      []Artefact

	// Others maps a custom role name to the objects bound to it.
	Others map[string][]Other
	// RBACRoles maps a role name to the principals holding it on the
	// whole project namespace.
	RBACRoles map[string][]string

	prefix string
}

// Artefact is a connector or ksql definition shipped alongside a project.
type Artefact struct {
	Name   string `yaml:"name"`
	Path   string `yaml:"path"`
	Server string `yaml:"server"`
	Kind   string `yaml:"kind"`
}

func (p *Project) setPrefix(topologyPrefix string) {
	p.prefix = topologyPrefix + p.Name + PrefixSeparator
}

// NamePrefix returns the fully qualified prefix of every resource owned by
// the project, ending with a separator.
func (p *Project) NamePrefix() string {
	if p.prefix == "" {
		return p.Name + PrefixSeparator
	}
	return p.prefix
}

// TopicName returns the cluster name of a project topic.
func (p *Project) TopicName(t Topic) string {
	name := p.NamePrefix() + t.Name
	if t.DataType != "" {
		name += PrefixSeparator + t.DataType
	}
	return name
}
