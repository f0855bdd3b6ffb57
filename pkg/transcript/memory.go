package transcript

import (
	"context"
	"math"
	"sort"
	"sync"
)

// MemoryStore is an in-memory Store for tests and the ":memory:" DB setting.
type MemoryStore struct {
	mu         sync.RWMutex
	turns      map[string]*Turn
	order      []string // insertion order, oldest first
	embeddings map[string][]float32
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		turns:      make(map[string]*Turn),
		embeddings: make(map[string][]float32),
	}
}

// Put implements Store.
func (s *MemoryStore) Put(_ context.Context, turn *Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.turns[turn.ID]; exists {
		return nil
	}
	s.turns[turn.ID] = turn
	s.order = append(s.order, turn.ID)
	return nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, id string) (*Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	turn, ok := s.turns[id]
	if !ok {
		return nil, ErrNotFound{ID: id}
	}
	return turn, nil
}

// List implements Store.
func (s *MemoryStore) List(_ context.Context, limit int) ([]*Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Turn, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		out = append(out, s.turns[s.order[i]])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// IndexEmbedding implements Store.
func (s *MemoryStore) IndexEmbedding(_ context.Context, id string, vector []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.turns[id]; !ok {
		return ErrNotFound{ID: id}
	}
	s.embeddings[id] = vector
	return nil
}

// Search implements Store with an exhaustive cosine-distance scan.
func (s *MemoryStore) Search(_ context.Context, vector []float32, limit int) ([]Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]Result, 0, len(s.embeddings))
	for id, emb := range s.embeddings {
		results = append(results, Result{
			Turn:     s.turns[id],
			Distance: cosineDistance(vector, emb),
		})
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Distance < results[j].Distance
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	return nil
}

func cosineDistance(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}

	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(normA)*math.Sqrt(normB))
}
