package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hamed0406/subcheck/internal/domain"
	"github.com/hamed0406/subcheck/internal/repo"
)

type Store struct {
	mu    sync.RWMutex
	scans map[domain.ScanID]*domain.Scan
}

func New() *Store {
	return &Store{scans: make(map[domain.ScanID]*domain.Scan)}
}

func (m *Store) Create(ctx context.Context, s *domain.Scan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID == "" {
		s.ID = domain.ScanID(uuid.NewString())
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	m.scans[s.ID] = clone(s)
	return nil
}

func (m *Store) Get(ctx context.Context, id domain.ScanID) (*domain.Scan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.scans[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return clone(s), nil
}

// List returns scans newest first, summarised.
func (m *Store) List(ctx context.Context) ([]*domain.Scan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*domain.Scan, 0, len(m.scans))
	for _, s := range m.scans {
		c := *s
		c.Hostnames = append([]string(nil), s.Hostnames...)
		if s.FinishedAt != nil {
			ts := *s.FinishedAt
			c.FinishedAt = &ts
		}
		if s.Outcome != nil {
			sum := s.Outcome.Summary()
			c.Summary = &sum
			c.Outcome = &domain.RunOutcome{Results: []domain.ProbeResult{}, Completion: s.Outcome.Completion}
		}
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (m *Store) UpdateProgress(ctx context.Context, id domain.ScanID, p domain.Progress) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.scans[id]
	if !ok {
		return repo.ErrNotFound
	}
	s.Progress = p
	return nil
}

func (m *Store) Finish(ctx context.Context, id domain.ScanID, out domain.RunOutcome, finishedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.scans[id]
	if !ok {
		return repo.ErrNotFound
	}
	o := out
	o.Results = append([]domain.ProbeResult(nil), out.Results...)
	s.Outcome = &o
	ts := finishedAt.UTC()
	s.FinishedAt = &ts
	return nil
}

// clone keeps callers from mutating stored state.
func clone(s *domain.Scan) *domain.Scan {
	c := *s
	c.Hostnames = append([]string(nil), s.Hostnames...)
	if s.FinishedAt != nil {
		ts := *s.FinishedAt
		c.FinishedAt = &ts
	}
	if s.Outcome != nil {
		o := *s.Outcome
		o.Results = append([]domain.ProbeResult(nil), s.Outcome.Results...)
		c.Outcome = &o
	}
	return &c
}

var _ repo.ScanStore = (*Store)(nil)
