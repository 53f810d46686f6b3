package store_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/gkobilansky/xgoat/internal/experiment"
	"github.com/gkobilansky/xgoat/internal/store"
)

func float(v float64) *float64 { return &v }

func sampleExperiment(id string) *experiment.Experiment {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return &experiment.Experiment{
		ID:                id,
		Name:              "Homepage CTA",
		TrafficAllocation: 100,
		Status:            experiment.StatusDraft,
		Variants: []experiment.Variant{
			{ID: "control", Name: "Control", Weight: 50, Config: experiment.VariantConfig{Color: "blue"}},
			{ID: "test", Name: "Green", Weight: 50, Config: experiment.VariantConfig{Color: "green", FeatureFlags: map[string]bool{"new_nav": true}}},
		},
		TargetAudience: &experiment.Audience{MinPoints: float(10), UserTypes: []string{"student"}},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func assignment(expID, userID, variantID string) *store.Event {
	return &store.Event{
		UserID:       userID,
		Category:     store.ExperimentCategory(expID),
		EventType:    store.EventAssignment,
		ExperimentID: expID,
		VariantID:    variantID,
		VariantName:  variantID,
	}
}

// runStoreSuite exercises the behaviour every Store implementation shares.
func runStoreSuite(t *testing.T, newStore func(t *testing.T) store.Store) {
	ctx := context.Background()

	t.Run("experiment round trip", func(t *testing.T) {
		s := newStore(t)
		exp := sampleExperiment(fmt.Sprintf("exp-rt-%d", time.Now().UnixNano()))

		if err := s.SaveExperiment(ctx, exp); err != nil {
			t.Fatalf("SaveExperiment failed: %v", err)
		}

		got, err := s.GetExperiment(ctx, exp.ID)
		if err != nil {
			t.Fatalf("GetExperiment failed: %v", err)
		}
		if got.Name != exp.Name || got.Status != experiment.StatusDraft {
			t.Errorf("unexpected experiment: %+v", got)
		}
		if len(got.Variants) != 2 || got.Variants[1].Config.Color != "green" || !got.Variants[1].Config.FeatureFlags["new_nav"] {
			t.Errorf("variants not preserved: %+v", got.Variants)
		}
		if got.TargetAudience == nil || got.TargetAudience.MinPoints == nil || *got.TargetAudience.MinPoints != 10 {
			t.Errorf("audience not preserved: %+v", got.TargetAudience)
		}
		if !got.CreatedAt.Equal(exp.CreatedAt) {
			t.Errorf("created_at = %v, want %v", got.CreatedAt, exp.CreatedAt)
		}
	})

	t.Run("appended assignment is unique", func(t *testing.T) {
		s := newStore(t)
		expID := fmt.Sprintf("exp-dup-%d", time.Now().UnixNano())

		if err := s.Append(ctx, assignment(expID, "user-1", "control")); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
		if err := s.Append(ctx, assignment(expID, "user-1", "test")); err == nil {
			t.Error("expected a second assignment append to fail")
		}

		got, written, err := s.ClaimAssignment(ctx, assignment(expID, "user-1", "test"))
		if err != nil {
			t.Fatalf("ClaimAssignment failed: %v", err)
		}
		if written || got.VariantID != "control" {
			t.Errorf("expected the appended control assignment to win, got %s (written=%v)", got.VariantID, written)
		}

		events, err := s.Query(ctx, store.Filter{ExperimentID: expID, EventType: store.EventAssignment})
		if err != nil {
			t.Fatalf("Query failed: %v", err)
		}
		if len(events) != 1 {
			t.Errorf("expected 1 assignment, got %d", len(events))
		}
	})

	t.Run("unknown experiment", func(t *testing.T) {
		s := newStore(t)
		if _, err := s.GetExperiment(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
		if err := s.UpdateExperimentStatus(ctx, "missing", experiment.StatusPaused, ""); !errors.Is(err, experiment.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("status update keeps winner", func(t *testing.T) {
		s := newStore(t)
		exp := sampleExperiment(fmt.Sprintf("exp-status-%d", time.Now().UnixNano()))
		if err := s.SaveExperiment(ctx, exp); err != nil {
			t.Fatalf("SaveExperiment failed: %v", err)
		}

		if err := s.UpdateExperimentStatus(ctx, exp.ID, experiment.StatusCompleted, "test"); err != nil {
			t.Fatalf("UpdateExperimentStatus failed: %v", err)
		}
		if err := s.UpdateExperimentStatus(ctx, exp.ID, experiment.StatusCompleted, ""); err != nil {
			t.Fatalf("UpdateExperimentStatus failed: %v", err)
		}

		got, err := s.GetExperiment(ctx, exp.ID)
		if err != nil {
			t.Fatalf("GetExperiment failed: %v", err)
		}
		if got.Status != experiment.StatusCompleted || got.WinnerVariantID != "test" {
			t.Errorf("expected COMPLETED with winner test, got %s/%q", got.Status, got.WinnerVariantID)
		}
	})

	t.Run("list", func(t *testing.T) {
		s := newStore(t)
		suffix := time.Now().UnixNano()
		a := sampleExperiment(fmt.Sprintf("exp-list-a-%d", suffix))
		b := sampleExperiment(fmt.Sprintf("exp-list-b-%d", suffix))
		b.CreatedAt = a.CreatedAt.Add(time.Second)
		for _, exp := range []*experiment.Experiment{b, a} {
			if err := s.SaveExperiment(ctx, exp); err != nil {
				t.Fatalf("SaveExperiment failed: %v", err)
			}
		}

		exps, err := s.ListExperiments(ctx)
		if err != nil {
			t.Fatalf("ListExperiments failed: %v", err)
		}
		var ids []string
		for _, e := range exps {
			if e.ID == a.ID || e.ID == b.ID {
				ids = append(ids, e.ID)
			}
		}
		if len(ids) != 2 || ids[0] != a.ID || ids[1] != b.ID {
			t.Errorf("expected [%s %s], got %v", a.ID, b.ID, ids)
		}
	})

	t.Run("query order and filters", func(t *testing.T) {
		s := newStore(t)
		expID := fmt.Sprintf("exp-q-%d", time.Now().UnixNano())
		base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

		for i, v := range []*float64{float(10), nil, float(30)} {
			e := &store.Event{
				UserID:         fmt.Sprintf("user-%d", i),
				Category:       store.ConversionCategory(expID),
				EventType:      store.EventConversion,
				ExperimentID:   expID,
				VariantID:      "control",
				ConversionType: "purchase",
				Value:          v,
				CreatedAt:      base.Add(time.Duration(i) * time.Minute),
			}
			if err := s.Append(ctx, e); err != nil {
				t.Fatalf("Append failed: %v", err)
			}
			if e.ID == "" {
				t.Fatal("expected Append to assign an id")
			}
		}

		asc, err := s.Query(ctx, store.Filter{Category: store.ConversionCategory(expID), EventType: store.EventConversion})
		if err != nil {
			t.Fatalf("Query failed: %v", err)
		}
		if len(asc) != 3 {
			t.Fatalf("expected 3 events, got %d", len(asc))
		}
		if asc[0].UserID != "user-0" || asc[2].UserID != "user-2" {
			t.Errorf("unexpected ascending order: %s..%s", asc[0].UserID, asc[2].UserID)
		}
		if asc[1].Value != nil {
			t.Errorf("expected absent value to stay absent, got %v", *asc[1].Value)
		}
		if asc[2].Value == nil || *asc[2].Value != 30 {
			t.Errorf("expected value 30, got %v", asc[2].Value)
		}

		desc, err := s.Query(ctx, store.Filter{ExperimentID: expID, Order: store.OrderDesc, Limit: 2})
		if err != nil {
			t.Fatalf("Query failed: %v", err)
		}
		if len(desc) != 2 || desc[0].UserID != "user-2" || desc[1].UserID != "user-1" {
			t.Errorf("unexpected descending page: %+v", desc)
		}

		byUser, err := s.Query(ctx, store.Filter{ExperimentID: expID, UserID: "user-1"})
		if err != nil {
			t.Fatalf("Query failed: %v", err)
		}
		if len(byUser) != 1 {
			t.Errorf("expected 1 event for user-1, got %d", len(byUser))
		}

		none, err := s.Query(ctx, store.Filter{ExperimentID: expID, EventType: store.EventAssignment})
		if err != nil {
			t.Fatalf("Query failed: %v", err)
		}
		if len(none) != 0 {
			t.Errorf("expected no assignments, got %d", len(none))
		}
	})

	t.Run("claim assignment is idempotent", func(t *testing.T) {
		s := newStore(t)
		expID := fmt.Sprintf("exp-claim-%d", time.Now().UnixNano())

		first, created, err := s.ClaimAssignment(ctx, assignment(expID, "user-1", "control"))
		if err != nil {
			t.Fatalf("ClaimAssignment failed: %v", err)
		}
		if !created || first.VariantID != "control" {
			t.Fatalf("expected first claim to win, got created=%v variant=%s", created, first.VariantID)
		}

		second, created, err := s.ClaimAssignment(ctx, assignment(expID, "user-1", "test"))
		if err != nil {
			t.Fatalf("ClaimAssignment failed: %v", err)
		}
		if created {
			t.Error("expected second claim to lose")
		}
		if second.VariantID != "control" || second.ID != first.ID {
			t.Errorf("expected the original assignment back, got %+v", second)
		}

		// Another user is independent.
		_, created, err = s.ClaimAssignment(ctx, assignment(expID, "user-2", "test"))
		if err != nil || !created {
			t.Errorf("expected independent claim for user-2, created=%v err=%v", created, err)
		}
	})

	t.Run("concurrent claims store one assignment", func(t *testing.T) {
		s := newStore(t)
		expID := fmt.Sprintf("exp-race-%d", time.Now().UnixNano())

		const workers = 16
		var wg sync.WaitGroup
		var mu sync.Mutex
		wins := 0
		variants := map[string]int{}
		errs := make(chan error, workers)

		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				variant := "control"
				if i%2 == 1 {
					variant = "test"
				}
				got, created, err := s.ClaimAssignment(ctx, assignment(expID, "user-race", variant))
				if err != nil {
					errs <- err
					return
				}
				mu.Lock()
				defer mu.Unlock()
				if created {
					wins++
				}
				variants[got.VariantID]++
			}(i)
		}
		wg.Wait()
		close(errs)

		for err := range errs {
			t.Fatalf("ClaimAssignment failed: %v", err)
		}
		if wins != 1 {
			t.Errorf("expected exactly one winning claim, got %d", wins)
		}
		if len(variants) != 1 {
			t.Errorf("expected all callers to see one variant, got %v", variants)
		}

		stored, err := s.Query(ctx, store.Filter{ExperimentID: expID, EventType: store.EventAssignment})
		if err != nil {
			t.Fatalf("Query failed: %v", err)
		}
		if len(stored) != 1 {
			t.Errorf("expected 1 stored assignment, got %d", len(stored))
		}
	})

	t.Run("users", func(t *testing.T) {
		s := newStore(t)
		userID := fmt.Sprintf("user-%d", time.Now().UnixNano())

		if _, ok, err := s.Points(ctx, userID); err != nil || ok {
			t.Errorf("expected unknown user, ok=%v err=%v", ok, err)
		}

		if err := s.UpsertUser(ctx, store.User{ID: userID, Points: 120, UserType: "student"}); err != nil {
			t.Fatalf("UpsertUser failed: %v", err)
		}
		if err := s.UpsertUser(ctx, store.User{ID: userID, Points: 250, UserType: "tutor"}); err != nil {
			t.Fatalf("UpsertUser failed: %v", err)
		}

		points, ok, err := s.Points(ctx, userID)
		if err != nil || !ok || points != 250 {
			t.Errorf("Points = %v, %v, %v", points, ok, err)
		}
		userType, ok, err := s.UserType(ctx, userID)
		if err != nil || !ok || userType != "tutor" {
			t.Errorf("UserType = %q, %v, %v", userType, ok, err)
		}
	})
}

func TestMemoryStore(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) store.Store {
		return store.NewMemoryStore()
	})
}

func TestSQLiteStore(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) store.Store {
		return setupSQLite(t)
	})
}

func TestMemoryStore_DuplicateAssignmentAppend(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()

	if err := s.Append(ctx, assignment("exp-dup", "user-1", "control")); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := s.Append(ctx, assignment("exp-dup", "user-1", "test")); !errors.Is(err, store.ErrDuplicateAssignment) {
		t.Errorf("expected ErrDuplicateAssignment, got %v", err)
	}
	// Conversions are not unique.
	conv := assignment("exp-dup", "user-1", "control")
	conv.EventType = store.EventConversion
	for i := 0; i < 2; i++ {
		if err := s.Append(ctx, conv); err != nil {
			t.Fatalf("conversion Append failed: %v", err)
		}
	}
}

func TestMemoryStore_GetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	if err := s.SaveExperiment(ctx, sampleExperiment("exp-copy")); err != nil {
		t.Fatalf("SaveExperiment failed: %v", err)
	}

	got, _ := s.GetExperiment(ctx, "exp-copy")
	got.Variants[0].Weight = 99
	got.TargetAudience.UserTypes[0] = "admin"

	again, _ := s.GetExperiment(ctx, "exp-copy")
	if again.Variants[0].Weight != 50 || again.TargetAudience.UserTypes[0] != "student" {
		t.Error("mutating a returned experiment changed the stored copy")
	}
}
