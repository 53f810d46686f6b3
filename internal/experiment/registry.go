package experiment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gkobilansky/xgoat/pkg/logger"
)

// Repository persists experiment definitions. Implementations must be safe
// for concurrent use; concurrent status writes are last-write-wins.
type Repository interface {
	SaveExperiment(ctx context.Context, exp *Experiment) error
	GetExperiment(ctx context.Context, id string) (*Experiment, error)
	ListExperiments(ctx context.Context) ([]*Experiment, error)
	UpdateExperimentStatus(ctx context.Context, id string, status Status, winnerVariantID string) error
}

// Registry validates experiment definitions and drives their lifecycle.
type Registry struct {
	repo Repository
	log  logger.Logger
	now  func() time.Time
}

type RegistryOption func(*Registry)

func WithRegistryLogger(l logger.Logger) RegistryOption {
	return func(r *Registry) {
		if l != nil {
			r.log = l
		}
	}
}

func WithRegistryClock(now func() time.Time) RegistryOption {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

func NewRegistry(repo Repository, opts ...RegistryOption) *Registry {
	r := &Registry{
		repo: repo,
		log:  logger.Nop(),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register validates exp and stores it, replacing any experiment with the
// same id. An empty status defaults to DRAFT.
func (r *Registry) Register(ctx context.Context, exp *Experiment) error {
	if exp == nil {
		return &ValidationError{Invariant: InvariantID, Msg: "Experiment must not be nil"}
	}
	if err := Validate(exp); err != nil {
		r.log.Warn(ctx, "experiment rejected", logger.String("experiment_id", exp.ID), logger.Error(err))
		return err
	}

	stored := exp.Clone()
	if stored.Status == "" {
		stored.Status = StatusDraft
	}
	now := r.now()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now

	if err := r.repo.SaveExperiment(ctx, stored); err != nil {
		return fmt.Errorf("failed to save experiment: %w", err)
	}

	r.log.Info(ctx, "experiment registered",
		logger.String("experiment_id", stored.ID),
		logger.String("status", string(stored.Status)),
		logger.Int("variants", len(stored.Variants)),
		logger.Float64("traffic_allocation", stored.TrafficAllocation),
	)
	return nil
}

// Get returns the experiment with the given id or ErrNotFound.
func (r *Registry) Get(ctx context.Context, id string) (*Experiment, error) {
	return r.repo.GetExperiment(ctx, id)
}

func (r *Registry) List(ctx context.Context) ([]*Experiment, error) {
	return r.repo.ListExperiments(ctx)
}

// Activate moves a DRAFT experiment to ACTIVE.
func (r *Registry) Activate(ctx context.Context, id string) error {
	return r.transition(ctx, id, StatusActive, "", false, StatusDraft)
}

// Resume moves a PAUSED experiment back to ACTIVE.
func (r *Registry) Resume(ctx context.Context, id string) error {
	return r.transition(ctx, id, StatusActive, "", false, StatusPaused)
}

// Pause stops new assignments. It applies from any status, including
// COMPLETED, and is a no-op for unknown experiments.
func (r *Registry) Pause(ctx context.Context, id string) error {
	return r.transition(ctx, id, StatusPaused, "", true,
		StatusDraft, StatusActive, StatusPaused, StatusCompleted)
}

// Complete ends the experiment, optionally declaring a winning variant. It
// is a no-op for unknown experiments.
func (r *Registry) Complete(ctx context.Context, id, winnerVariantID string) error {
	return r.transition(ctx, id, StatusCompleted, winnerVariantID, true,
		StatusDraft, StatusActive, StatusPaused, StatusCompleted)
}

// transition applies to when the current status is one of from. With
// lenient set, an unknown id or disallowed source status is silently
// ignored; otherwise it is an error.
func (r *Registry) transition(ctx context.Context, id string, to Status, winner string, lenient bool, from ...Status) error {
	exp, err := r.repo.GetExperiment(ctx, id)
	if errors.Is(err, ErrNotFound) && lenient {
		return nil
	}
	if err != nil {
		return err
	}

	allowed := false
	for _, s := range from {
		if exp.Status == s {
			allowed = true
			break
		}
	}
	if !allowed {
		if lenient {
			return nil
		}
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, exp.Status, to)
	}

	if winner != "" {
		if _, ok := exp.Variant(winner); !ok {
			return &ValidationError{Invariant: InvariantWinner, Msg: fmt.Sprintf("Winner %q is not a variant", winner)}
		}
	}

	if err := r.repo.UpdateExperimentStatus(ctx, id, to, winner); err != nil {
		if errors.Is(err, ErrNotFound) && lenient {
			return nil
		}
		return fmt.Errorf("failed to update experiment status: %w", err)
	}

	fields := []logger.Field{
		logger.String("experiment_id", id),
		logger.String("from", string(exp.Status)),
		logger.String("to", string(to)),
	}
	if winner != "" {
		fields = append(fields, logger.String("winner", winner))
	}
	r.log.Info(ctx, "experiment status changed", fields...)
	return nil
}
