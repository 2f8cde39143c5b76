package model

import (
	"strings"
)

// PrefixSeparator joins the context, the ordered context fields and the
// project name into topic and key prefixes.
const PrefixSeparator = "."

// Topology is the desired state described by one or more descriptor files
// sharing a prefix key.
type Topology struct {
	Context       string
	Order         []string
	FullContext   map[string]string
	Projects      []*Project
	SpecialTopics []Topic
	Platform      Platform
}

// NewTopology returns an empty topology for ctx.
func NewTopology(ctx string) *Topology {
	return &Topology{
		Context:     ctx,
		FullContext: map[string]string{},
	}
}

// AddOther appends an extra context field. Fields already present keep
// their position and value.
func (t *Topology) AddOther(field, value string) {
	if t.FullContext == nil {
		t.FullContext = map[string]string{}
	}
	if _, ok := t.FullContext[field]; ok {
		return
	}
	t.Order = append(t.Order, field)
	t.FullContext[field] = value
	for _, p := range t.Projects {
		p.setPrefix(t.projectPrefix())
	}
}

// AddProject appends p and derives its name prefix from the topology.
func (t *Topology) AddProject(p *Project) {
	p.setPrefix(t.projectPrefix())
	t.Projects = append(t.Projects, p)
}

// AddSpecialTopic appends a cluster-wide topic.
func (t *Topology) AddSpecialTopic(topic Topic) {
	t.SpecialTopics = append(t.SpecialTopics, topic)
}

// Project returns the project named name, compared case-insensitively.
func (t *Topology) Project(name string) *Project {
	for _, p := range t.Projects {
		if strings.EqualFold(p.Name, name) {
			return p
		}
	}
	return nil
}

// ContextPrefix returns the context followed by every ordered field value.
func (t *Topology) ContextPrefix() string {
	return strings.TrimSuffix(t.projectPrefix(), PrefixSeparator)
}

func (t *Topology) projectPrefix() string {
	var sb strings.Builder
	sb.WriteString(t.Context)
	sb.WriteString(PrefixSeparator)
	for _, field := range t.Order {
		sb.WriteString(t.FullContext[field])
		sb.WriteString(PrefixSeparator)
	}
	return sb.String()
}
