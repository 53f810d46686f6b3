package server

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/gkobilansky/xgoat/internal/engine"
	"github.com/gkobilansky/xgoat/internal/experiment"
)

// requestValidate checks the shape of incoming bodies. Experiment
// invariants are left to the registry.
var requestValidate = validator.New(validator.WithRequiredStructEnabled())

type AssignRequest struct {
	UserID       string `json:"userId" validate:"required,max=256"`
	ExperimentID string `json:"experimentId" validate:"required,max=256"`
}

type AssignResponse struct {
	Assigned   bool                      `json:"assigned"`
	Assignment *engine.VariantAssignment `json:"assignment,omitempty"`
}

type ConversionRequest struct {
	UserID       string     `json:"userId" validate:"required,max=256"`
	ExperimentID string     `json:"experimentId" validate:"required,max=256"`
	VariantID    string     `json:"variantId" validate:"required,max=256"`
	EventType    string     `json:"eventType" validate:"required,max=128"`
	Value        *float64   `json:"value,omitempty"`
	Timestamp    *time.Time `json:"timestamp,omitempty"`
}

func (r *ConversionRequest) toEvent() engine.ConversionEvent {
	ev := engine.ConversionEvent{
		UserID:       r.UserID,
		ExperimentID: r.ExperimentID,
		VariantID:    r.VariantID,
		EventType:    r.EventType,
		Value:        r.Value,
	}
	if r.Timestamp != nil {
		ev.Timestamp = *r.Timestamp
	}
	return ev
}

type VariantRequest struct {
	ID     string                   `json:"id" validate:"required"`
	Name   string                   `json:"name" validate:"required"`
	Weight float64                  `json:"weight"`
	Config experiment.VariantConfig `json:"config"`
}

type ExperimentRequest struct {
	ID                string               `json:"id" validate:"required,max=256"`
	Name              string               `json:"name" validate:"required"`
	Description       string               `json:"description"`
	Variants          []VariantRequest     `json:"variants" validate:"required,dive"`
	TrafficAllocation float64              `json:"trafficAllocation"`
	Status            string               `json:"status" validate:"omitempty,oneof=DRAFT ACTIVE PAUSED COMPLETED"`
	StartDate         *time.Time           `json:"startDate"`
	EndDate           *time.Time           `json:"endDate"`
	TargetAudience    *experiment.Audience `json:"targetAudience"`
	WinnerVariantID   string               `json:"winnerVariantId"`
}

func (r *ExperimentRequest) toExperiment() *experiment.Experiment {
	exp := &experiment.Experiment{
		ID:                r.ID,
		Name:              r.Name,
		Description:       r.Description,
		TrafficAllocation: r.TrafficAllocation,
		Status:            experiment.Status(r.Status),
		StartDate:         r.StartDate,
		EndDate:           r.EndDate,
		TargetAudience:    r.TargetAudience,
		WinnerVariantID:   r.WinnerVariantID,
	}
	for _, v := range r.Variants {
		exp.Variants = append(exp.Variants, experiment.Variant{
			ID:     v.ID,
			Name:   v.Name,
			Weight: v.Weight,
			Config: v.Config,
		})
	}
	return exp
}

type CompleteRequest struct {
	WinnerVariantID string `json:"winnerVariantId"`
}

type SignificanceQuery struct {
	Control string `validate:"required"`
	Test    string `validate:"required,nefield=Control"`
}

type ErrorResponse struct {
	Error     string `json:"error"`
	Invariant string `json:"invariant,omitempty"`
}

// validationMessage flattens validator errors into one line.
func validationMessage(errs validator.ValidationErrors) string {
	msgs := make([]string, 0, len(errs))
	for _, fe := range errs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
	}
	return strings.Join(msgs, "; ")
}
