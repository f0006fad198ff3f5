package reportstore

import (
	"context"
	"sort"
	"sync"

	"github.com/YuminosukeSato/genotrain/evaluation"
	"github.com/YuminosukeSato/genotrain/pkg/errors"
)

// MemoryStore keeps reports in process memory.
type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	reports     map[string]*evaluation.Report
}

// NewMemoryStore returns an empty store. Init must still be called.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.reports = make(map[string]*evaluation.Report)
	return nil
}

func (s *MemoryStore) Save(_ context.Context, report *evaluation.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errors.New("store is not initialized")
	}
	s.reports[report.RunID] = cloneReport(report)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, runID string) (*evaluation.Report, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.reports[runID]
	if !ok {
		return nil, false, nil
	}
	return cloneReport(r), true, nil
}

func (s *MemoryStore) List(_ context.Context) ([]RunInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]RunInfo, 0, len(s.reports))
	for _, r := range s.reports {
		out = append(out, infoOf(r))
	}
	sortRuns(out)
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }

func sortRuns(runs []RunInfo) {
	sort.Slice(runs, func(i, j int) bool {
		if !runs[i].StartedAt.Equal(runs[j].StartedAt) {
			return runs[i].StartedAt.Before(runs[j].StartedAt)
		}
		return runs[i].RunID < runs[j].RunID
	})
}
