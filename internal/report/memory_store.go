package report

import (
	"bytes"
	"context"
	"maps"
	"slices"
	"sync"
)

// MemoryStore keeps run files in process memory. Contents are copied on the
// way in and out.
type MemoryStore struct {
	mu   sync.RWMutex
	runs map[string]map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{runs: make(map[string]map[string][]byte)}
}

func (s *MemoryStore) Put(_ context.Context, runID, p string, content []byte) error {
	runID, p, err := cleanKey(runID, p)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	files := s.runs[runID]
	if files == nil {
		files = make(map[string][]byte)
		s.runs[runID] = files
	}
	files[p] = bytes.Clone(content)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, runID, p string) ([]byte, error) {
	runID, p, err := cleanKey(runID, p)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.runs[runID][p]
	if !ok {
		return nil, ErrNotFound
	}
	return bytes.Clone(b), nil
}

func (*MemoryStore) GetURL(context.Context, string, string) (string, error) { return "", nil }

func (s *MemoryStore) List(_ context.Context, runID string) ([]string, error) {
	runID, err := cleanRunID(runID)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := slices.Sorted(maps.Keys(s.runs[runID]))
	if out == nil {
		out = []string{}
	}
	return out, nil
}

func (s *MemoryStore) Runs(context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.runs)), nil
}
