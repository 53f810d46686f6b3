package stats

import (
	"errors"
	"fmt"

	"github.com/gkobilansky/xgoat/internal/experiment"
)

var (
	// ErrInsufficientData means a compared variant has no impressions.
	ErrInsufficientData = errors.New("insufficient data for significance test")
	// ErrVariantNotFound matches experiment.ErrNotFound via errors.Is.
	ErrVariantNotFound = fmt.Errorf("variant not found in performance data: %w", experiment.ErrNotFound)
)
