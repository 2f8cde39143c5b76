package backend

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digitalis-io/ktopology/pkg/model"
)

func rate(v float64) *float64 { return &v }

var (
	readOrders = model.Binding{
		Principal:    "User:bob",
		ResourceType: model.ResourceTopic,
		ResourceName: "orders",
		PatternType:  model.PatternLiteral,
		Operation:    model.OpRead,
		Permission:   model.PermissionAllow,
		Host:         model.AnyHost,
	}
	writeOrders = model.Binding{
		Principal:    "User:alice",
		ResourceType: model.ResourceTopic,
		ResourceName: "orders",
		PatternType:  model.PatternLiteral,
		Operation:    model.OpWrite,
		Permission:   model.PermissionAllow,
		Host:         model.AnyHost,
	}
)

func TestStores(t *testing.T) {
	tests := []struct {
		name  string
		open  func(t *testing.T) Store
		reuse func(t *testing.T, s Store) Store
	}{
		{
			name: "memory",
			open: func(t *testing.T) Store { return NewMemoryStore(nil) },
			reuse: func(t *testing.T, s Store) Store {
				return s
			},
		},
		{
			name: "bolt",
			open: func(t *testing.T) Store {
				s, err := OpenBoltStore(filepath.Join(t.TempDir(), "state.db"))
				require.NoError(t, err)
				return s
			},
			reuse: func(t *testing.T, s Store) Store {
				path := s.(*BoltStore).db.Path()
				require.NoError(t, s.Close())
				reopened, err := OpenBoltStore(path)
				require.NoError(t, err)
				return reopened
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := tt.open(t)

			state, err := store.Load()
			require.NoError(t, err)
			assert.Zero(t, state.Topics.Len())

			require.NoError(t, store.Commit(Change{
				AddTopics:   []string{"orders", "payments"},
				AddBindings: []model.Binding{readOrders, writeOrders},
				PutQuotas:   []model.Quota{{Principal: "User:alice", ProducerByteRate: rate(1024)}},
			}))
			require.NoError(t, store.Commit(Change{
				RemoveTopics:   []string{"payments"},
				RemoveBindings: []model.Binding{writeOrders},
				PutQuotas:      []model.Quota{{Principal: "User:bob", ConsumerByteRate: rate(10)}},
				RemoveQuotas:   []string{"User:alice"},
			}))

			store = tt.reuse(t, store)
			defer store.Close()

			state, err = store.Load()
			require.NoError(t, err)
			assert.ElementsMatch(t, []string{"orders"}, state.Topics.UnsortedList())
			assert.ElementsMatch(t, []model.Binding{readOrders}, state.Bindings.UnsortedList())
			require.Contains(t, state.Quotas, "User:bob")
			assert.NotContains(t, state.Quotas, "User:alice")
			assert.Equal(t, 10.0, *state.Quotas["User:bob"].ConsumerByteRate)
			assert.Nil(t, state.Quotas["User:bob"].ProducerByteRate)
		})
	}
}

func TestLoadSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")

	empty, err := LoadSnapshot(path)
	require.NoError(t, err)
	state, err := empty.Load()
	require.NoError(t, err)
	assert.Zero(t, state.Topics.Len())
	_, err = os.Stat(path)
	assert.True(t, errors.Is(err, os.ErrNotExist), "a snapshot never creates the state file")

	store, err := OpenBoltStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Commit(Change{AddTopics: []string{"orders"}, AddBindings: []model.Binding{readOrders}}))
	require.NoError(t, store.Close())

	snapshot, err := LoadSnapshot(path)
	require.NoError(t, err)
	require.NoError(t, snapshot.Commit(Change{AddTopics: []string{"payments"}}))

	store, err = OpenBoltStore(path)
	require.NoError(t, err)
	defer store.Close()
	state, err = store.Load()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"orders"}, state.Topics.UnsortedList())
	assert.True(t, state.Bindings.Has(readOrders))
}

type failingStore struct {
	*MemoryStore
}

func (failingStore) Commit(Change) error {
	return errors.New("disk full")
}

func TestControllerNeverAheadOfStore(t *testing.T) {
	ctrl, err := NewController(failingStore{NewMemoryStore(nil)})
	require.NoError(t, err)

	err = ctrl.Record(Change{AddTopics: []string{"orders"}})
	require.Error(t, err)
	assert.Zero(t, ctrl.Topics().Len())
}

func TestControllerRecord(t *testing.T) {
	seed := NewState()
	seed.Topics.Insert("orders")
	ctrl, err := NewController(NewMemoryStore(seed))
	require.NoError(t, err)
	assert.True(t, ctrl.Topics().Has("orders"))

	require.NoError(t, ctrl.Record(Change{
		AddBindings: []model.Binding{readOrders},
		PutQuotas:   []model.Quota{{Principal: "User:bob", RequestPercentage: rate(50)}},
	}))
	assert.True(t, ctrl.Bindings().Has(readOrders))
	assert.Contains(t, ctrl.Quotas(), "User:bob")

	// returned sets are copies
	ctrl.Bindings().Delete(readOrders)
	assert.True(t, ctrl.Bindings().Has(readOrders))

	require.NoError(t, ctrl.Record(Change{}))
}
