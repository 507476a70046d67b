package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
)

// OverflowStore is an in-memory domain.OverflowStore. It is not durable;
// use the sqlite store when payloads must survive a restart.
type OverflowStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func NewOverflowStore() *OverflowStore {
	return &OverflowStore{data: make(map[string][]byte)}
}

func (s *OverflowStore) Put(_ context.Context, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[key] = slices.Clone(data)
	return nil
}

func (s *OverflowStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.data[key]
	if !ok {
		return nil, false, nil
	}
	return slices.Clone(data), true, nil
}

func (s *OverflowStore) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, k := range keys {
		delete(s.data, k)
	}
	return nil
}

func (s *OverflowStore) Keys(_ context.Context, prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var keys []string
	for k := range s.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	return keys, nil
}
