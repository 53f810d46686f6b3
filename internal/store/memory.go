package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gkobilansky/xgoat/internal/experiment"
)

// MemoryStore keeps everything in process memory. It is safe for concurrent
// use and is intended for tests and single-process deployments.
type MemoryStore struct {
	mu          sync.RWMutex
	experiments map[string]*experiment.Experiment
	users       map[string]User
	events      []*Event
	assigned    map[string]*Event
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		experiments: make(map[string]*experiment.Experiment),
		users:       make(map[string]User),
		assigned:    make(map[string]*Event),
	}
}

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) SaveExperiment(_ context.Context, exp *experiment.Experiment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := exp.Clone()
	if prev, ok := s.experiments[exp.ID]; ok {
		stored.CreatedAt = prev.CreatedAt
	}
	s.experiments[exp.ID] = stored
	return nil
}

func (s *MemoryStore) GetExperiment(_ context.Context, id string) (*experiment.Experiment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	exp, ok := s.experiments[id]
	if !ok {
		return nil, ErrNotFound
	}
	return exp.Clone(), nil
}

func (s *MemoryStore) ListExperiments(_ context.Context) ([]*experiment.Experiment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	exps := make([]*experiment.Experiment, 0, len(s.experiments))
	for _, exp := range s.experiments {
		exps = append(exps, exp.Clone())
	}
	sort.Slice(exps, func(i, j int) bool {
		if !exps[i].CreatedAt.Equal(exps[j].CreatedAt) {
			return exps[i].CreatedAt.Before(exps[j].CreatedAt)
		}
		return exps[i].ID < exps[j].ID
	})
	return exps, nil
}

func (s *MemoryStore) UpdateExperimentStatus(_ context.Context, id string, status experiment.Status, winnerVariantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	exp, ok := s.experiments[id]
	if !ok {
		return ErrNotFound
	}
	exp.Status = status
	if winnerVariantID != "" {
		exp.WinnerVariantID = winnerVariantID
	}
	exp.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) Append(_ context.Context, e *Event) error {
	e.prepare()

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := e.clone()
	if e.EventType == EventAssignment {
		key := assignmentKey(e)
		if _, ok := s.assigned[key]; ok {
			return fmt.Errorf("failed to append event: %w", ErrDuplicateAssignment)
		}
		s.assigned[key] = stored
	}
	s.events = append(s.events, stored)
	return nil
}

func assignmentKey(e *Event) string {
	return e.ExperimentID + "\x00" + e.UserID
}

func (s *MemoryStore) ClaimAssignment(_ context.Context, e *Event) (*Event, bool, error) {
	e.prepare()
	key := assignmentKey(e)

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.assigned[key]; ok {
		return existing.clone(), false, nil
	}
	stored := e.clone()
	s.assigned[key] = stored
	s.events = append(s.events, stored)
	return e, true, nil
}

func (s *MemoryStore) Query(_ context.Context, f Filter) ([]*Event, error) {
	s.mu.RLock()
	var out []*Event
	for _, e := range s.events {
		if f.matches(e) {
			out = append(out, e.clone())
		}
	}
	s.mu.RUnlock()

	// Stable sort keeps insertion order among equal timestamps.
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if f.Order == OrderDesc {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *MemoryStore) UpsertUser(_ context.Context, u User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
	return nil
}

func (s *MemoryStore) Points(_ context.Context, userID string) (float64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	return u.Points, ok, nil
}

func (s *MemoryStore) UserType(_ context.Context, userID string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	return u.UserType, ok, nil
}
