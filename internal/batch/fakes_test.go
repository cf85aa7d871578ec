package batch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"
)

// fakeStore is a minimal in-memory ArtifactStore for engine tests.
type fakeStore struct {
	mu      sync.Mutex
	objects map[string]map[string][]byte
	listErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: map[string]map[string][]byte{}}
}

func (s *fakeStore) put(namespace, name string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.objects[namespace] == nil {
		s.objects[namespace] = map[string][]byte{}
	}
	s.objects[namespace][name] = data
}

func (s *fakeStore) List(_ context.Context, namespace string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	names := make([]string, 0, len(s.objects[namespace]))
	for name := range s.objects[namespace] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *fakeStore) Open(_ context.Context, namespace, name string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[namespace][name]
	if !ok {
		return nil, fmt.Errorf("artifact %s/%s not found", namespace, name)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *fakeStore) Put(_ context.Context, namespace, name, _ string, data io.Reader) (string, error) {
	content, err := io.ReadAll(data)
	if err != nil {
		return "", err
	}
	s.put(namespace, name, content)
	return "fake://" + namespace + "/" + name, nil
}

// keyByName extracts keys from a static name->key table; unknown names fail.
type keyByName map[string]ContentKey

func (m keyByName) ExtractKey(_ context.Context, _ ArtifactStore, _, name string) (ContentKey, error) {
	key, ok := m[name]
	if !ok {
		return "", fmt.Errorf("no key for %s", name)
	}
	return key, nil
}

// staticResolver returns a fixed candidate list for every entity.
type staticResolver struct {
	candidates []Candidate
	err        error
}

func (r staticResolver) Resolve(context.Context, Entity, []byte) ([]Candidate, error) {
	return r.candidates, r.err
}

// recordingProcessor records processed candidates and fails configured keys.
type recordingProcessor struct {
	mu        sync.Mutex
	processed []Candidate
	failKeys  map[ContentKey]error
	panicKeys map[ContentKey]struct{}
}

func newRecordingProcessor() *recordingProcessor {
	return &recordingProcessor{
		failKeys:  map[ContentKey]error{},
		panicKeys: map[ContentKey]struct{}{},
	}
}

func (p *recordingProcessor) Process(_ context.Context, _ Entity, cand Candidate) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.panicKeys[cand.Key]; ok {
		panic("processor exploded")
	}
	if err, ok := p.failKeys[cand.Key]; ok {
		return err
	}
	p.processed = append(p.processed, cand)
	return nil
}

func (p *recordingProcessor) Processed() []Candidate {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Candidate(nil), p.processed...)
}

// fixedClock ticks forward a second per call so durations are positive.
type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFixedClock() *fixedClock {
	return &fixedClock{now: time.Date(2025, 9, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}
