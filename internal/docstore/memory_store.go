package docstore

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
)

// MemoryStore backs the Store contract with an in-process map. Used in tests
// and single-node dev setups without Postgres.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]map[string][]byte)}
}

func (s *MemoryStore) Get(ctx context.Context, namespace, key string, out any) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ns, ok := s.docs[namespace]
	if !ok {
		return ErrNotFound
	}
	raw, ok := ns[key]
	if !ok {
		return ErrNotFound
	}
	return json.Unmarshal(raw, out)
}

func (s *MemoryStore) Put(ctx context.Context, namespace, key string, doc any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.docs[namespace] == nil {
		s.docs[namespace] = make(map[string][]byte)
	}
	s.docs[namespace][key] = raw
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, namespace, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ns, ok := s.docs[namespace]
	if !ok {
		return ErrNotFound
	}
	if _, ok := ns[key]; !ok {
		return ErrNotFound
	}
	delete(ns, key)
	return nil
}

func (s *MemoryStore) List(ctx context.Context, namespace string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var keys []string
	for k := range s.docs[namespace] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}
