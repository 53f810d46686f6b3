package engine

import (
	"context"
	"fmt"

	"github.com/gkobilansky/xgoat/internal/bucket"
	"github.com/gkobilansky/xgoat/internal/experiment"
)

// Reasons the audience gate turns a user away.
const (
	RejectInactive    = "inactive"
	RejectWindow      = "outside-window"
	RejectTraffic     = "traffic"
	RejectUnknownUser = "unknown-user"
	RejectTargeting   = "targeting"
)

// Admit reports whether userID may enter exp. When it may not, reason names
// the first check that failed.
func (e *Engine) Admit(ctx context.Context, exp *experiment.Experiment, userID string) (ok bool, reason string, err error) {
	if exp.Status != experiment.StatusActive {
		return false, RejectInactive, nil
	}
	return e.admitAudience(ctx, exp, userID)
}

// admitAudience runs every gate check after the status check.
func (e *Engine) admitAudience(ctx context.Context, exp *experiment.Experiment, userID string) (bool, string, error) {
	if !exp.InWindow(e.now()) {
		return false, RejectWindow, nil
	}

	// Salted with the experiment id and hashed independently of the variant
	// bucket, so inclusion is stable per user and does not skew the split.
	if bucket.Uniform(bucket.Key(exp.ID, userID)) >= exp.TrafficAllocation {
		return false, RejectTraffic, nil
	}

	audience := exp.TargetAudience
	if audience == nil {
		return true, "", nil
	}
	if e.users == nil {
		return false, RejectUnknownUser, nil
	}

	points, found, err := e.users.Points(ctx, userID)
	if err != nil {
		return false, "", fmt.Errorf("failed to look up user points: %w", err)
	}
	if !found {
		return false, RejectUnknownUser, nil
	}
	if !audience.Contains(points) {
		return false, RejectTargeting, nil
	}

	if len(audience.UserTypes) > 0 {
		userType, found, err := e.users.UserType(ctx, userID)
		if err != nil {
			return false, "", fmt.Errorf("failed to look up user type: %w", err)
		}
		if !found {
			return false, RejectUnknownUser, nil
		}
		if !audience.AllowsType(userType) {
			return false, RejectTargeting, nil
		}
	}

	return true, "", nil
}
