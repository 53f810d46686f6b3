package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/gkobilansky/xgoat/internal/bucket"
	"github.com/gkobilansky/xgoat/internal/experiment"
	"github.com/gkobilansky/xgoat/internal/store"
	"github.com/gkobilansky/xgoat/pkg/logger"
)

// Assign returns the variant userID sees in experimentID, choosing and
// recording one on first call. It returns nil without error when the
// experiment is unknown or the user is not admitted; nothing is recorded
// for rejected users, so they are re-evaluated on every call.
func (e *Engine) Assign(ctx context.Context, userID, experimentID string) (*VariantAssignment, error) {
	exp, err := e.registry.Get(ctx, experimentID)
	if errors.Is(err, experiment.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		e.storageError(ctx, "get_experiment", err, logger.String("experiment_id", experimentID))
		return nil, err
	}

	if exp.Status != experiment.StatusActive {
		e.metrics.RecordGateRejection(exp.ID, RejectInactive)
		return nil, nil
	}

	prior, err := e.events.Query(ctx, store.Filter{
		UserID:    userID,
		EventType: store.EventAssignment,
		Category:  store.ExperimentCategory(exp.ID),
		Order:     store.OrderDesc,
		Limit:     1,
	})
	if err != nil {
		e.storageError(ctx, "query_assignment", err, logger.String("experiment_id", exp.ID))
		return nil, err
	}
	if len(prior) > 0 {
		return toAssignment(prior[0], exp), nil
	}

	admitted, reason, err := e.admitAudience(ctx, exp, userID)
	if err != nil {
		return nil, err
	}
	if !admitted {
		e.metrics.RecordGateRejection(exp.ID, reason)
		e.log.Debug(ctx, "user not admitted",
			logger.String("experiment_id", exp.ID),
			logger.String("user_id", userID),
			logger.String("reason", reason),
		)
		return nil, nil
	}

	key := userID
	if e.scoped {
		key = bucket.Key(exp.ID, userID)
	}
	variant := SelectVariant(exp.Variants, bucket.Bucket(key))

	stored, created, err := e.events.ClaimAssignment(ctx, &store.Event{
		UserID:       userID,
		Category:     store.ExperimentCategory(exp.ID),
		EventType:    store.EventAssignment,
		ExperimentID: exp.ID,
		VariantID:    variant.ID,
		VariantName:  variant.Name,
		CreatedAt:    e.now(),
	})
	if err != nil {
		e.storageError(ctx, "claim_assignment", err, logger.String("experiment_id", exp.ID))
		return nil, fmt.Errorf("failed to record assignment: %w", err)
	}

	if created {
		e.metrics.RecordAssignment(exp.ID, stored.VariantID)
	}
	e.log.Debug(ctx, "variant assigned",
		logger.String("experiment_id", exp.ID),
		logger.String("user_id", userID),
		logger.String("variant_id", stored.VariantID),
		logger.Bool("created", created),
	)

	return toAssignment(stored, exp), nil
}

// SelectVariant walks the cumulative weights and returns the first variant
// whose cumulative weight exceeds b, or the last variant when rounding
// leaves b above the total.
func SelectVariant(variants []experiment.Variant, b float64) experiment.Variant {
	var cumulative float64
	for _, v := range variants {
		cumulative += v.Weight
		if b < cumulative {
			return v
		}
	}
	return variants[len(variants)-1]
}

func toAssignment(ev *store.Event, exp *experiment.Experiment) *VariantAssignment {
	a := &VariantAssignment{
		UserID:       ev.UserID,
		ExperimentID: ev.ExperimentID,
		VariantID:    ev.VariantID,
		VariantName:  ev.VariantName,
		AssignedAt:   ev.CreatedAt,
	}
	if v, ok := exp.Variant(ev.VariantID); ok {
		a.Config = v.Config
		if a.VariantName == "" {
			a.VariantName = v.Name
		}
	}
	return a
}
