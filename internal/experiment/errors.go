package experiment

import (
	"errors"
	"fmt"
)

var (
	ErrValidation        = errors.New("invalid experiment")
	ErrNotFound          = errors.New("experiment not found")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Invariant names reported by ValidationError.
const (
	InvariantWeightsSum    = "weights-sum"
	InvariantID            = "id"
	InvariantTrafficRange  = "traffic-range"
	InvariantVariantCount  = "variant-count"
	InvariantVariantIDs    = "variant-ids"
	InvariantVariantWeight = "variant-weight"
	InvariantStatus        = "status"
	InvariantWindow        = "window"
	InvariantWinner        = "winner"
)

// ValidationError names the experiment invariant that was violated.
type ValidationError struct {
	Invariant string
	Msg       string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Invariant, e.Msg)
}

// Is lets errors.Is(err, ErrValidation) match any ValidationError.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
