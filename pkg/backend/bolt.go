package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/boltdb/bolt"

	"github.com/digitalis-io/ktopology/pkg/model"
)

var (
	topicsBucket   = []byte("topics")
	bindingsBucket = []byte("bindings")
	quotasBucket   = []byte("quotas")
)

// BoltStore persists the state in a bolt file with one bucket per
// resource kind. Values are JSON documents.
type BoltStore struct {
	db *bolt.DB
}

var _ Store = (*BoltStore)(nil)

// OpenBoltStore opens or creates the state file at path.
func OpenBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open state file %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{topicsBucket, bindingsBucket, quotasBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize state file %s: %w", path, err)
	}
	return &BoltStore{db: db}, nil
}

// LoadSnapshot reads the state file at path without taking its write lock
// and returns an in-memory copy. A missing file is an empty state and is
// not created.
func LoadSnapshot(path string) (*MemoryStore, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return NewMemoryStore(nil), nil
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second, ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("failed to open state file %s: %w", path, err)
	}
	defer db.Close()
	state, err := (&BoltStore{db: db}).Load()
	if err != nil {
		return nil, err
	}
	return NewMemoryStore(state), nil
}

// forEach walks the bucket called name, which may not exist in a file
// opened read-only.
func forEach(tx *bolt.Tx, name []byte, fn func(k, v []byte) error) error {
	b := tx.Bucket(name)
	if b == nil {
		return nil
	}
	return b.ForEach(fn)
}

func (s *BoltStore) Load() (*State, error) {
	state := NewState()
	err := s.db.View(func(tx *bolt.Tx) error {
		if err := forEach(tx, topicsBucket, func(k, _ []byte) error {
			state.Topics.Insert(string(k))
			return nil
		}); err != nil {
			return err
		}
		if err := forEach(tx, bindingsBucket, func(k, v []byte) error {
			var b model.Binding
			if err := json.Unmarshal(v, &b); err != nil {
				return fmt.Errorf("binding %s: %w", k, err)
			}
			state.Bindings.Insert(b)
			return nil
		}); err != nil {
			return err
		}
		return forEach(tx, quotasBucket, func(k, v []byte) error {
			var q model.Quota
			if err := json.Unmarshal(v, &q); err != nil {
				return fmt.Errorf("quota %s: %w", k, err)
			}
			state.Quotas[q.Principal] = q
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load state: %w", err)
	}
	return state, nil
}

type topicRecord struct {
	Name string `json:"name"`
}

// Commit writes c in a single transaction.
func (s *BoltStore) Commit(c Change) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		topics := tx.Bucket(topicsBucket)
		for _, name := range c.AddTopics {
			if err := putJSON(topics, name, topicRecord{Name: name}); err != nil {
				return err
			}
		}
		for _, name := range c.RemoveTopics {
			if err := topics.Delete([]byte(name)); err != nil {
				return err
			}
		}

		bindings := tx.Bucket(bindingsBucket)
		for _, b := range c.AddBindings {
			if err := putJSON(bindings, b.Key(), b); err != nil {
				return err
			}
		}
		for _, b := range c.RemoveBindings {
			if err := bindings.Delete([]byte(b.Key())); err != nil {
				return err
			}
		}

		quotas := tx.Bucket(quotasBucket)
		for _, q := range c.PutQuotas {
			if err := putJSON(quotas, q.Principal, q); err != nil {
				return err
			}
		}
		for _, principal := range c.RemoveQuotas {
			if err := quotas.Delete([]byte(principal)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to commit state: %w", err)
	}
	return nil
}

func putJSON(b *bolt.Bucket, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Put([]byte(key), data)
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
