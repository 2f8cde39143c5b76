package plan

import (
	"context"
	"fmt"

	"github.com/digitalis-io/ktopology/pkg/backend"
)

// Kind names the operation an action performs.
type Kind string

const (
	KindCreateTopic        Kind = "CreateTopic"
	KindIncreasePartitions Kind = "IncreasePartitions"
	KindUpdateTopicConfig  Kind = "UpdateTopicConfig"
	KindCreateBindings     Kind = "CreateBindings"
	KindCreateQuota        Kind = "CreateQuota"
	KindUpdateQuota        Kind = "UpdateQuota"
	KindDeleteBindings     Kind = "DeleteBindings"
	KindDeleteQuota        Kind = "DeleteQuota"
	KindDeleteTopics       Kind = "DeleteTopics"
)

// phases orders kinds so that a resource exists before anything refers to
// it and is removed only after what refers to it.
var phases = map[Kind]int{
	KindCreateTopic:        0,
	KindIncreasePartitions: 1,
	KindUpdateTopicConfig:  2,
	KindCreateBindings:     3,
	KindCreateQuota:        4,
	KindUpdateQuota:        4,
	KindDeleteBindings:     5,
	KindDeleteQuota:        6,
	KindDeleteTopics:       7,
}

// Phase returns the execution phase of k. Unknown kinds run last.
func (k Kind) Phase() int {
	if p, ok := phases[k]; ok {
		return p
	}
	return len(phases)
}

// Action is one guarded mutation of the cluster.
type Action interface {
	Kind() Kind
	// Key is the logical resource the action mutates.
	Key() string
	Describe() string
	// Run applies the action and returns the recorded state delta.
	Run(ctx context.Context) (backend.Change, error)
}

// ActionError is the failure of a single action. It never aborts the rest
// of the run.
type ActionError struct {
	Kind Kind
	Key  string
	Err  error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Kind, e.Key, e.Err)
}

func (e *ActionError) Unwrap() error {
	return e.Err
}
