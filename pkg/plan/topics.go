package plan

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/digitalis-io/ktopology/pkg/backend"
	"github.com/digitalis-io/ktopology/pkg/config"
	"github.com/digitalis-io/ktopology/pkg/kafka"
	"github.com/digitalis-io/ktopology/pkg/logger"
	"github.com/digitalis-io/ktopology/pkg/model"
)

// TopicAdmin is the part of the admin client topics are reconciled with.
type TopicAdmin interface {
	ListTopics() (map[string]kafka.TopicInfo, error)
	DescribeTopicConfig(name string) (map[string]string, error)
	CreateTopic(name string, partitions int32, replicationFactor int16, configs map[string]string) error
	DeleteTopics(names []string) error
	IncrementalAlterConfig(name string, set map[string]string, remove []string) error
	IncreasePartitions(name string, count int32) error
}

type createTopic struct {
	admin             TopicAdmin
	name              string
	partitions        int32
	replicationFactor int16
	configs           map[string]string
}

func (a *createTopic) Kind() Kind  { return KindCreateTopic }
func (a *createTopic) Key() string { return a.name }

func (a *createTopic) Describe() string {
	return fmt.Sprintf("create topic %s (partitions %s, replication %s, %d configs)",
		a.name, orBrokerDefault(int64(a.partitions)), orBrokerDefault(int64(a.replicationFactor)), len(a.configs))
}

func (a *createTopic) Run(context.Context) (backend.Change, error) {
	if err := a.admin.CreateTopic(a.name, a.partitions, a.replicationFactor, a.configs); err != nil {
		return backend.Change{}, err
	}
	return backend.Change{AddTopics: []string{a.name}}, nil
}

type increasePartitions struct {
	admin TopicAdmin
	name  string
	from  int32
	to    int32
}

func (a *increasePartitions) Kind() Kind  { return KindIncreasePartitions }
func (a *increasePartitions) Key() string { return a.name }

func (a *increasePartitions) Describe() string {
	return fmt.Sprintf("increase partitions of %s from %d to %d", a.name, a.from, a.to)
}

func (a *increasePartitions) Run(context.Context) (backend.Change, error) {
	if err := a.admin.IncreasePartitions(a.name, a.to); err != nil {
		return backend.Change{}, err
	}
	return backend.Change{AddTopics: []string{a.name}}, nil
}

type updateTopicConfig struct {
	admin  TopicAdmin
	name   string
	set    map[string]string
	remove []string
}

func (a *updateTopicConfig) Kind() Kind  { return KindUpdateTopicConfig }
func (a *updateTopicConfig) Key() string { return a.name }

func (a *updateTopicConfig) Describe() string {
	parts := make([]string, 0, len(a.set)+len(a.remove))
	for _, k := range sortedKeys(a.set) {
		parts = append(parts, "set "+k+"="+a.set[k])
	}
	for _, k := range a.remove {
		parts = append(parts, "delete "+k)
	}
	return fmt.Sprintf("update config of %s: %s", a.name, strings.Join(parts, ", "))
}

func (a *updateTopicConfig) Run(context.Context) (backend.Change, error) {
	if err := a.admin.IncrementalAlterConfig(a.name, a.set, a.remove); err != nil {
		return backend.Change{}, err
	}
	return backend.Change{AddTopics: []string{a.name}}, nil
}

type deleteTopics struct {
	admin TopicAdmin
	names []string
}

func (a *deleteTopics) Kind() Kind  { return KindDeleteTopics }
func (a *deleteTopics) Key() string { return strings.Join(a.names, ",") }

func (a *deleteTopics) Describe() string {
	return fmt.Sprintf("delete %d topics: %s", len(a.names), strings.Join(a.names, ", "))
}

func (a *deleteTopics) Run(context.Context) (backend.Change, error) {
	if err := a.admin.DeleteTopics(a.names); err != nil {
		return backend.Change{}, err
	}
	return backend.Change{RemoveTopics: a.names}, nil
}

// TopicManager plans the topic actions of a set of topologies.
type TopicManager struct {
	admin      TopicAdmin
	controller *backend.Controller
	cfg        *config.Config
}

// NewTopicManager returns a manager diffing against admin and the topics
// recorded in controller.
func NewTopicManager(admin TopicAdmin, controller *backend.Controller, cfg *config.Config) *TopicManager {
	return &TopicManager{admin: admin, controller: controller, cfg: cfg}
}

// UpdatePlan appends the topic actions needed to reach topologies to p.
func (m *TopicManager) UpdatePlan(ctx context.Context, topologies map[string]*model.Topology, p *ExecutionPlan) error {
	log := logger.For("topics")
	desired := desiredTopics(topologies)

	live, err := m.admin.ListTopics()
	if err != nil {
		return err
	}
	liveConfigs, err := m.readConfigs(ctx, desired, live)
	if err != nil {
		return err
	}

	for _, name := range sortedKeys(desired) {
		topic := desired[name]
		info, exists := live[name]
		if !exists {
			p.Add(&createTopic{
				admin:             m.admin,
				name:              name,
				partitions:        topic.Partitions(m.cfg.TopicDefaultPartitions),
				replicationFactor: topic.ReplicationFactor(m.cfg.TopicDefaultReplicationFactor),
				configs:           topic.Configs(),
			})
			continue
		}

		if want := topic.Partitions(-1); want > 0 {
			switch {
			case want > info.Partitions:
				p.Add(&increasePartitions{admin: m.admin, name: name, from: info.Partitions, to: want})
			case want < info.Partitions:
				p.Warn("topic %s has %d partitions, %d requested: partitions are never decreased", name, info.Partitions, want)
			}
		}
		if want := topic.ReplicationFactor(-1); want > 0 && want != info.ReplicationFactor {
			p.Warn("topic %s has replication factor %d, %d requested: replication changes are not applied", name, info.ReplicationFactor, want)
		}

		set, remove := diffConfig(topic.Configs(), liveConfigs[name])
		if len(set) > 0 || len(remove) > 0 {
			p.Add(&updateTopicConfig{admin: m.admin, name: name, set: set, remove: remove})
		}
	}

	stale := m.staleTopics(desired, live)
	if len(stale) > 0 {
		if m.cfg.AllowDeleteTopics {
			p.Add(&deleteTopics{admin: m.admin, names: stale})
		} else {
			log.WithField("topics", stale).Debug("Topic deletion disabled, keeping undeclared topics")
		}
	}

	log.WithFields(map[string]interface{}{
		"desired": len(desired),
		"live":    len(live),
		"stale":   len(stale),
	}).Debug("Planned topic actions")
	return nil
}

// readConfigs reads the override configs of the desired topics that already
// exist, a bounded number at a time.
func (m *TopicManager) readConfigs(ctx context.Context, desired map[string]model.Topic, live map[string]kafka.TopicInfo) (map[string]map[string]string, error) {
	var (
		mu  sync.Mutex
		out = map[string]map[string]string{}
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(m.cfg.Concurrency, 1))
	for _, name := range sortedKeys(desired) {
		if _, ok := live[name]; !ok {
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			configs, err := m.admin.DescribeTopicConfig(name)
			if err != nil {
				return err
			}
			mu.Lock()
			out[name] = configs
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// staleTopics returns the live topics that are no longer declared and that
// this tool owns: recorded by an earlier run or under a managed prefix.
func (m *TopicManager) staleTopics(desired map[string]model.Topic, live map[string]kafka.TopicInfo) []string {
	recorded := sets.New[string]()
	if m.controller != nil {
		recorded = m.controller.Topics()
	}
	var stale []string
	for name := range live {
		if _, ok := desired[name]; ok || strings.HasPrefix(name, "_") {
			continue
		}
		if recorded.Has(name) || m.managed(name) {
			stale = append(stale, name)
		}
	}
	sort.Strings(stale)
	return stale
}

func (m *TopicManager) managed(name string) bool {
	for _, prefix := range m.cfg.ManagedPrefixes {
		if prefix != "" && strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// desiredTopics returns every declared topic keyed by its cluster name.
func desiredTopics(topologies map[string]*model.Topology) map[string]model.Topic {
	out := map[string]model.Topic{}
	for _, key := range sortedKeys(topologies) {
		topology := topologies[key]
		for _, project := range topology.Projects {
			for _, topic := range project.Topics {
				out[project.TopicName(topic)] = topic
			}
		}
		for _, topic := range topology.SpecialTopics {
			out[topic.Name] = topic
		}
	}
	return out
}

// diffConfig splits the differences between the desired and live topic
// overrides into keys to set and keys to delete.
func diffConfig(desired, live map[string]string) (map[string]string, []string) {
	set := map[string]string{}
	for k, v := range desired {
		if current, ok := live[k]; !ok || current != v {
			set[k] = v
		}
	}
	var remove []string
	for k := range live {
		if _, ok := desired[k]; !ok {
			remove = append(remove, k)
		}
	}
	sort.Strings(remove)
	return set, remove
}

func orBrokerDefault(v int64) string {
	if v <= 0 {
		return "broker default"
	}
	return fmt.Sprint(v)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
