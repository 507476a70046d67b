package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/gosuda/dossier/internal/domain"
)

// BlobStore is an in-memory domain.BlobStore.
type BlobStore struct {
	baseURL string

	mu    sync.Mutex
	blobs map[string][]byte
}

// NewBlobStore creates a blob store whose URLs are rooted at baseURL.
func NewBlobStore(baseURL string) *BlobStore {
	return &BlobStore{baseURL: baseURL, blobs: make(map[string][]byte)}
}

func (s *BlobStore) Put(_ context.Context, path string, data []byte, _ string) (domain.RemoteRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.blobs[path] = slices.Clone(data)
	return domain.RemoteRef{URL: s.baseURL + "/" + path, Path: path}, nil
}

func (s *BlobStore) Get(_ context.Context, path string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.blobs[path]
	if !ok {
		return nil, fmt.Errorf("memory.BlobStore.Get: %s: %w", path, domain.ErrBlobNotFound)
	}
	return slices.Clone(data), nil
}

func (s *BlobStore) Delete(_ context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.blobs, path)
	return nil
}

// Len returns the number of stored blobs.
func (s *BlobStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.blobs)
}
