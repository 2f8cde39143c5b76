package model

import (
	"errors"
	"fmt"
	"strings"
)

// MirrorMakerRole is the side of the replication flow a MirrorMaker2
// principal acts on.
type MirrorMakerRole string

const (
	MirrorMakerConsumer MirrorMakerRole = "consumer"
	MirrorMakerProducer MirrorMakerRole = "producer"
)

// UnmarshalText accepts consumer or producer in any case.
func (r *MirrorMakerRole) UnmarshalText(text []byte) error {
	switch role := MirrorMakerRole(strings.ToLower(strings.TrimSpace(string(text)))); role {
	case MirrorMakerConsumer, MirrorMakerProducer:
		*r = role
		return nil
	default:
		return fmt.Errorf("unknown mirror maker role %q, expected consumer or producer", string(text))
	}
}

// Fallback names for the MirrorMaker2 internal resources.
const (
	DefaultMM2StatusTopic      = "connect-status"
	DefaultMM2OffsetTopic      = "connect-offsets"
	DefaultMM2ConfigsTopic     = "connect-configs"
	DefaultMM2Group            = "connect-cluster"
	DefaultMM2OffsetSyncsTopic = "mm2.offset_syncs"
	DefaultMM2CheckpointsTopic = "mm2.checkpoints"
	DefaultMM2HeartbeatsTopic  = "mm2.heartbeats"
)

// MirrorMaker2 is a cross-cluster replication principal. Unset internal
// resource names resolve to the defaults above through their accessors.
type MirrorMaker2 struct {
	Principal    string          `yaml:"principal"`
	Role         MirrorMakerRole `yaml:"role"`
	SourceTopics []string        `yaml:"source_topics"`
	TargetTopics []string        `yaml:"target_topics"`
	TargetPrefix string          `yaml:"target_prefix"`

	StatusTopicName      string `yaml:"status_topic"`
	OffsetTopicName      string `yaml:"offset_topic"`
	ConfigsTopicName     string `yaml:"configs_topic"`
	GroupName            string `yaml:"group"`
	OffsetSyncsTopicName string `yaml:"offset_syncs_topic"`
	CheckpointsTopicName string `yaml:"checkpoints_topic"`
	HeartbeatsTopicName  string `yaml:"heartbeats_topic"`
}

// Validate checks the fields every MirrorMaker2 declaration needs.
func (m MirrorMaker2) Validate() error {
	if m.Principal == "" {
		return errors.New("mirror maker without a principal")
	}
	if m.Role == "" {
		return fmt.Errorf("mirror maker %s has no role, expected consumer or producer", m.Principal)
	}
	return nil
}

func (m MirrorMaker2) StatusTopic() string {
	return orDefault(m.StatusTopicName, DefaultMM2StatusTopic)
}

func (m MirrorMaker2) OffsetTopic() string {
	return orDefault(m.OffsetTopicName, DefaultMM2OffsetTopic)
}

func (m MirrorMaker2) ConfigsTopic() string {
	return orDefault(m.ConfigsTopicName, DefaultMM2ConfigsTopic)
}

func (m MirrorMaker2) Group() string {
	return orDefault(m.GroupName, DefaultMM2Group)
}

func (m MirrorMaker2) OffsetSyncsTopic() string {
	return orDefault(m.OffsetSyncsTopicName, DefaultMM2OffsetSyncsTopic)
}

func (m MirrorMaker2) CheckpointsTopic() string {
	return orDefault(m.CheckpointsTopicName, DefaultMM2CheckpointsTopic)
}

func (m MirrorMaker2) HeartbeatsTopic() string {
	return orDefault(m.HeartbeatsTopicName, DefaultMM2HeartbeatsTopic)
}

// InternalNames returns the seven internal resource names: status, offsets,
// configs, group, offset-syncs, checkpoints and heartbeats.
func (m MirrorMaker2) InternalNames() []string {
	return []string{
		m.StatusTopic(),
		m.OffsetTopic(),
		m.ConfigsTopic(),
		m.Group(),
		m.OffsetSyncsTopic(),
		m.CheckpointsTopic(),
		m.HeartbeatsTopic(),
	}
}

// AllTopics enumerates every topic the replication flow touches whatever
// its role: source and target topics followed by the six internal topics.
func (m MirrorMaker2) AllTopics() []string {
	topics := make([]string, 0, len(m.SourceTopics)+len(m.TargetTopics)+6)
	topics = append(topics, m.SourceTopics...)
	topics = append(topics, m.TargetTopics...)
	return append(topics,
		m.StatusTopic(),
		m.OffsetTopic(),
		m.ConfigsTopic(),
		m.OffsetSyncsTopic(),
		m.CheckpointsTopic(),
		m.HeartbeatsTopic(),
	)
}

// AsOther exposes the resolved fields for custom role templates.
func (m MirrorMaker2) AsOther() Other {
	o := Other{
		"principal":          m.Principal,
		"role":               string(m.Role),
		"status_topic":       m.StatusTopic(),
		"offset_topic":       m.OffsetTopic(),
		"configs_topic":      m.ConfigsTopic(),
		"group":              m.Group(),
		"offset_syncs_topic": m.OffsetSyncsTopic(),
		"checkpoints_topic":  m.CheckpointsTopic(),
		"heartbeats_topic":   m.HeartbeatsTopic(),
	}
	if m.TargetPrefix != "" {
		o["target_prefix"] = m.TargetPrefix
	}
	return o
}
