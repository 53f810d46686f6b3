package engine

import (
	"context"
	"fmt"

	"github.com/gkobilansky/xgoat/internal/stats"
	"github.com/gkobilansky/xgoat/internal/store"
	"github.com/gkobilansky/xgoat/pkg/logger"
)

// Performance replays the experiment's full event history into one entry
// per defined variant.
func (e *Engine) Performance(ctx context.Context, experimentID string) ([]stats.VariantPerformance, error) {
	exp, err := e.registry.Get(ctx, experimentID)
	if err != nil {
		return nil, err
	}

	assignments, err := e.events.Query(ctx, store.Filter{
		Category:  store.ExperimentCategory(exp.ID),
		EventType: store.EventAssignment,
	})
	if err != nil {
		e.storageError(ctx, "query_assignments", err, logger.String("experiment_id", exp.ID))
		return nil, err
	}

	conversions, err := e.events.Query(ctx, store.Filter{
		Category:  store.ConversionCategory(exp.ID),
		EventType: store.EventConversion,
	})
	if err != nil {
		e.storageError(ctx, "query_conversions", err, logger.String("experiment_id", exp.ID))
		return nil, err
	}

	return stats.Aggregate(exp.Variants, assignments, conversions), nil
}

// Significance compares a test variant against a control.
func (e *Engine) Significance(ctx context.Context, experimentID, controlID, testID string) (*stats.SignificanceResult, error) {
	perf, err := e.Performance(ctx, experimentID)
	if err != nil {
		return nil, err
	}

	result, err := stats.Compare(perf, controlID, testID, e.alpha)
	if err != nil {
		return nil, fmt.Errorf("experiment %s: %w", experimentID, err)
	}
	result.ExperimentID = experimentID

	e.metrics.RecordSignificance()
	e.log.Debug(ctx, "significance computed",
		logger.String("experiment_id", experimentID),
		logger.Float64("p_value", result.PValue),
		logger.Bool("significant", result.IsSignificant),
	)
	return result, nil
}

// Summary reports the leading variant and the confidence it beats the
// runner up.
func (e *Engine) Summary(ctx context.Context, experimentID string) (*stats.Summary, error) {
	perf, err := e.Performance(ctx, experimentID)
	if err != nil {
		return nil, err
	}
	return stats.Summarize(perf), nil
}

// Events returns every assignment and conversion logged for the
// experiment, oldest first.
func (e *Engine) Events(ctx context.Context, experimentID string) ([]*store.Event, error) {
	if _, err := e.registry.Get(ctx, experimentID); err != nil {
		return nil, err
	}
	return e.events.Query(ctx, store.Filter{ExperimentID: experimentID})
}
