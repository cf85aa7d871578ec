// Package memory stores artifacts in-memory for development and tests.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
)

// ArtifactStore keeps artifact content in maps keyed by namespace and name.
type ArtifactStore struct {
	mu   sync.RWMutex
	data map[string]map[string][]byte
}

// New creates an in-memory artifact store.
func New() *ArtifactStore {
	return &ArtifactStore{data: make(map[string]map[string][]byte)}
}

// List returns the sorted artifact names in a namespace.
func (s *ArtifactStore) List(_ context.Context, namespace string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ns := s.data[namespace]
	names := make([]string, 0, len(ns))
	for name := range ns {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Open returns a reader over the artifact content.
func (s *ArtifactStore) Open(_ context.Context, namespace, name string) (io.ReadCloser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	content, ok := s.data[namespace][name]
	if !ok {
		return nil, fmt.Errorf("artifact %s/%s not found", namespace, name)
	}
	return io.NopCloser(bytes.NewReader(content)), nil
}

// Put persists the content and returns a memory:// URI.
func (s *ArtifactStore) Put(_ context.Context, namespace, name, _ string, data io.Reader) (string, error) {
	payload, err := io.ReadAll(data)
	if err != nil {
		return "", fmt.Errorf("read artifact data: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data[namespace] == nil {
		s.data[namespace] = make(map[string][]byte)
	}
	s.data[namespace][name] = append([]byte(nil), payload...)
	return fmt.Sprintf("memory://%s/%s", namespace, name), nil
}
