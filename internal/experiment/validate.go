package experiment

import (
	"fmt"
	"math"
	"strings"
)

// WeightTolerance is how far the variant weights may drift from 100.
const WeightTolerance = 0.01

// Validate checks the invariants every registered experiment holds.
// Weights are checked first, then traffic, then the variant count, then the
// experiment and variant ids.
func Validate(exp *Experiment) error {
	var total float64
	for _, v := range exp.Variants {
		total += v.Weight
	}
	// Negated so NaN fails.
	if !(math.Abs(total-100) <= WeightTolerance) {
		return &ValidationError{Invariant: InvariantWeightsSum, Msg: "Variant weights must sum to 100"}
	}

	if !(exp.TrafficAllocation >= 0 && exp.TrafficAllocation <= 100) {
		return &ValidationError{Invariant: InvariantTrafficRange, Msg: "Traffic allocation must be between 0 and 100"}
	}

	if len(exp.Variants) < 2 {
		return &ValidationError{Invariant: InvariantVariantCount, Msg: "Experiment must have at least 2 variants"}
	}

	if strings.TrimSpace(exp.ID) == "" {
		return &ValidationError{Invariant: InvariantID, Msg: "Experiment id must not be empty"}
	}

	seen := make(map[string]struct{}, len(exp.Variants))
	for _, v := range exp.Variants {
		if strings.TrimSpace(v.ID) == "" {
			return &ValidationError{Invariant: InvariantVariantIDs, Msg: "Variant id must not be empty"}
		}
		if _, dup := seen[v.ID]; dup {
			return &ValidationError{Invariant: InvariantVariantIDs, Msg: fmt.Sprintf("Duplicate variant id %q", v.ID)}
		}
		seen[v.ID] = struct{}{}
	}

	return nil
}

// CheckDefinition applies the checks for definitions submitted from outside
// (API bodies, definition files) on top of Validate: non-negative weights, a
// known status, an ordered date window and a winner that names a variant.
// Register does not run them, so stored experiments may break them.
func CheckDefinition(exp *Experiment) error {
	if err := Validate(exp); err != nil {
		return err
	}

	for _, v := range exp.Variants {
		if v.Weight < 0 {
			return &ValidationError{Invariant: InvariantVariantWeight, Msg: fmt.Sprintf("Variant %q has a negative weight", v.ID)}
		}
	}

	if exp.Status != "" && !exp.Status.Valid() {
		return &ValidationError{Invariant: InvariantStatus, Msg: fmt.Sprintf("Unknown status %q", exp.Status)}
	}

	if exp.StartDate != nil && exp.EndDate != nil && exp.EndDate.Before(*exp.StartDate) {
		return &ValidationError{Invariant: InvariantWindow, Msg: "End date must not be before start date"}
	}

	if exp.WinnerVariantID != "" {
		if _, ok := exp.Variant(exp.WinnerVariantID); !ok {
			return &ValidationError{Invariant: InvariantWinner, Msg: fmt.Sprintf("Winner %q is not a variant", exp.WinnerVariantID)}
		}
	}

	return nil
}
