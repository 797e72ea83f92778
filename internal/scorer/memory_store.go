package scorer

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory implementation of Store for demo/test use.
type MemoryStore struct {
	mu      sync.RWMutex
	results map[string][]*AnalysisResult // sender → results
}

// NewMemoryStore creates an in-memory analysis result store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		results: make(map[string][]*AnalysisResult),
	}
}

func (s *MemoryStore) Record(ctx context.Context, result *AnalysisResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := *result
	r.RiskFactors = append([]string(nil), result.RiskFactors...)

	s.results[result.Sender] = append(s.results[result.Sender], &r)
	return nil
}

func (s *MemoryStore) ListBySender(ctx context.Context, sender string, limit int) ([]*AnalysisResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.results[sender]
	if len(all) == 0 {
		return nil, nil
	}

	// Return most recent first, up to limit
	start := len(all) - limit
	if start < 0 {
		start = 0
	}

	result := make([]*AnalysisResult, 0, len(all)-start)
	for i := len(all) - 1; i >= start; i-- {
		r := *all[i]
		r.RiskFactors = append([]string(nil), all[i].RiskFactors...)
		result = append(result, &r)
	}
	return result, nil
}
