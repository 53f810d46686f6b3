package engine

import (
	"context"
	"fmt"

	"github.com/gkobilansky/xgoat/internal/store"
	"github.com/gkobilansky/xgoat/pkg/logger"
)

// RecordConversion appends a conversion. It does not check for a prior
// assignment and does not deduplicate.
func (e *Engine) RecordConversion(ctx context.Context, ev ConversionEvent) error {
	ts := ev.Timestamp
	if ts.IsZero() {
		ts = e.now()
	}

	err := e.events.Append(ctx, &store.Event{
		UserID:         ev.UserID,
		Category:       store.ConversionCategory(ev.ExperimentID),
		EventType:      store.EventConversion,
		ExperimentID:   ev.ExperimentID,
		VariantID:      ev.VariantID,
		ConversionType: ev.EventType,
		Value:          ev.Value,
		CreatedAt:      ts,
	})
	if err != nil {
		e.storageError(ctx, "append_conversion", err, logger.String("experiment_id", ev.ExperimentID))
		return fmt.Errorf("failed to record conversion: %w", err)
	}

	e.metrics.RecordConversion(ev.ExperimentID, ev.VariantID)
	e.log.Debug(ctx, "conversion recorded",
		logger.String("experiment_id", ev.ExperimentID),
		logger.String("variant_id", ev.VariantID),
		logger.String("event_type", ev.EventType),
	)
	return nil
}
