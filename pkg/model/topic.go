package model

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	PartitionsKey        = "num.partitions"
	ReplicationFactorKey = "replication.factor"
)

// Topic is a desired topic. Config holds raw topic-level configuration,
// including the partition count and replication factor keys.
type Topic struct {
	Name      string            `yaml:"name"`
	DataType  string            `yaml:"dataType"`
	Plan      string            `yaml:"plan"`
	Config    map[string]string `yaml:"config"`
	Consumers []Consumer        `yaml:"consumers"`
	Producers []Producer        `yaml:"producers"`
}

// Validate rejects a partition count or replication factor that is set but
// neither a positive number nor -1, the broker default.
func (t Topic) Validate() error {
	for _, key := range []struct {
		name string
		bits int
	}{{PartitionsKey, 32}, {ReplicationFactorKey, 16}} {
		raw, ok := t.Config[key.name]
		if !ok {
			continue
		}
		v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, key.bits)
		if err != nil || (v < 1 && v != -1) {
			return fmt.Errorf("topic %s: %s must be a positive integer or -1, got %q", t.Name, key.name, raw)
		}
	}
	return nil
}

// Partitions returns the declared partition count, or def when unset or
// not a number.
func (t Topic) Partitions(def int32) int32 {
	v, err := strconv.ParseInt(strings.TrimSpace(t.Config[PartitionsKey]), 10, 32)
	if err != nil {
		return def
	}
	return int32(v)
}

// ReplicationFactor returns the declared replication factor, or def when
// unset or not a number.
func (t Topic) ReplicationFactor(def int16) int16 {
	v, err := strconv.ParseInt(strings.TrimSpace(t.Config[ReplicationFactorKey]), 10, 16)
	if err != nil {
		return def
	}
	return int16(v)
}

// Configs returns the topic configuration to enforce on the broker, without
// the partition and replication keys. Values of *.ms keys are normalized to
// milliseconds.
func (t Topic) Configs() map[string]string {
	out := make(map[string]string, len(t.Config))
	for k, v := range t.Config {
		if k == PartitionsKey || k == ReplicationFactorKey {
			continue
		}
		if strings.HasSuffix(k, ".ms") {
			v = ParseTimeToMilliseconds(v)
		}
		out[k] = v
	}
	return out
}

// MergeConfig overlays values on the topic config. Keys in values win.
func (t *Topic) MergeConfig(values map[string]string) {
	if len(values) == 0 {
		return
	}
	if t.Config == nil {
		t.Config = make(map[string]string, len(values))
	}
	for k, v := range values {
		t.Config[k] = v
	}
}
