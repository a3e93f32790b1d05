package vectorstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"docchat-platform/internal/apperrors"
)

// MemoryStore is a brute-force cosine similarity store. It backs tests
// and small single-node deployments.
type MemoryStore struct {
	mu        sync.RWMutex
	dimension int
	records   map[string]Record
}

func NewMemoryStore(dimension int) *MemoryStore {
	return &MemoryStore{
		dimension: dimension,
		records:   make(map[string]Record),
	}
}

func (s *MemoryStore) Upsert(ctx context.Context, rec Record) error {
	if len(rec.Vector) != s.dimension {
		return &apperrors.StorageError{
			Backend: "vector",
			Op:      "upsert",
			Err:     fmt.Errorf("vector dimension %d does not match index dimension %d", len(rec.Vector), s.dimension),
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.ID] = rec
	return nil
}

func (s *MemoryStore) QueryTopK(ctx context.Context, vector []float32, k int, filter map[string]any) ([]Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if k <= 0 {
		k = 5
	}
	matches := make([]Match, 0, len(s.records))
	for _, rec := range s.records {
		if !MatchesFilter(rec.Metadata, filter) {
			continue
		}
		matches = append(matches, Match{Record: rec, Score: CosineSimilarity(vector, rec.Vector)})
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

func (s *MemoryStore) DeleteByID(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, id)
	return nil
}

func (s *MemoryStore) DeleteMany(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.records, id)
	}
	return nil
}

// Len returns the number of stored records.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
