package plan

import (
	"fmt"
	"sync"

	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/digitalis-io/ktopology/pkg/kafka"
	"github.com/digitalis-io/ktopology/pkg/model"
)

// fakeCluster is an in-memory cluster serving the topic, access and quota
// interfaces. Mutations on a name listed in fail return that error.
type fakeCluster struct {
	mu       sync.Mutex
	topics   map[string]kafka.TopicInfo
	configs  map[string]map[string]string
	bindings sets.Set[model.Binding]
	quotas   map[string]model.Quota
	fail     map[string]error
	calls    []string
}

func newFakeCluster() *fakeCluster {
	return &fakeCluster{
		topics:   map[string]kafka.TopicInfo{},
		configs:  map[string]map[string]string{},
		bindings: sets.New[model.Binding](),
		quotas:   map[string]model.Quota{},
		fail:     map[string]error{},
	}
}

func (f *fakeCluster) addTopic(name string, partitions int32, configs map[string]string) {
	f.topics[name] = kafka.TopicInfo{Name: name, Partitions: partitions, ReplicationFactor: 3}
	f.configs[name] = configs
}

func (f *fakeCluster) record(format string, args ...interface{}) {
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

func (f *fakeCluster) ListTopics() (map[string]kafka.TopicInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]kafka.TopicInfo, len(f.topics))
	for k, v := range f.topics {
		out[k] = v
	}
	return out, nil
}

func (f *fakeCluster) DescribeTopicConfig(name string) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string]string{}
	for k, v := range f.configs[name] {
		out[k] = v
	}
	return out, nil
}

func (f *fakeCluster) CreateTopic(name string, partitions int32, replicationFactor int16, configs map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("create %s", name)
	if err := f.fail[name]; err != nil {
		return err
	}
	if partitions < 1 {
		partitions = 1
	}
	if replicationFactor < 1 {
		replicationFactor = 1
	}
	f.topics[name] = kafka.TopicInfo{Name: name, Partitions: partitions, ReplicationFactor: replicationFactor}
	f.configs[name] = map[string]string{}
	for k, v := range configs {
		f.configs[name][k] = v
	}
	return nil
}

func (f *fakeCluster) DeleteTopics(names []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, name := range names {
		f.record("delete %s", name)
		if err := f.fail[name]; err != nil {
			return err
		}
		delete(f.topics, name)
		delete(f.configs, name)
	}
	return nil
}

func (f *fakeCluster) IncrementalAlterConfig(name string, set map[string]string, remove []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("alter %s", name)
	if err := f.fail[name]; err != nil {
		return err
	}
	if f.configs[name] == nil {
		f.configs[name] = map[string]string{}
	}
	for k, v := range set {
		f.configs[name][k] = v
	}
	for _, k := range remove {
		delete(f.configs[name], k)
	}
	return nil
}

func (f *fakeCluster) IncreasePartitions(name string, count int32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("partitions %s %d", name, count)
	info, ok := f.topics[name]
	if !ok || count <= info.Partitions {
		return fmt.Errorf("invalid partition count %d for %s", count, name)
	}
	info.Partitions = count
	f.topics[name] = info
	return nil
}

func (f *fakeCluster) CreateBindings(bindings []model.Binding) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("create %d bindings", len(bindings))
	for _, b := range bindings {
		if err := f.fail[b.Principal]; err != nil {
			return err
		}
	}
	f.bindings.Insert(bindings...)
	return nil
}

func (f *fakeCluster) DeleteBindings(bindings []model.Binding) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("delete %d bindings", len(bindings))
	f.bindings.Delete(bindings...)
	return nil
}

func (f *fakeCluster) DescribeClientQuotas() (map[string]model.Quota, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]model.Quota, len(f.quotas))
	for k, v := range f.quotas {
		out[k] = v
	}
	return out, nil
}

func (f *fakeCluster) AlterClientQuotas(q model.Quota, remove []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("quota %s", q.Principal)
	if err := f.fail[q.Principal]; err != nil {
		return err
	}
	values := f.quotas[q.Principal].Values()
	for k, v := range q.Values() {
		values[k] = v
	}
	for _, k := range remove {
		delete(values, k)
	}
	f.quotas[q.Principal] = model.QuotaFromValues(q.Principal, values)
	return nil
}

func (f *fakeCluster) RemoveClientQuotas(principal string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("remove quota %s", principal)
	delete(f.quotas, principal)
	return nil
}
