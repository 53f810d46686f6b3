// Package experiment defines experiment definitions, their validation, and
// the registry that owns their lifecycle.
package experiment

import (
	"slices"
	"time"
)

type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusActive    Status = "ACTIVE"
	StatusPaused    Status = "PAUSED"
	StatusCompleted Status = "COMPLETED"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusActive, StatusPaused, StatusCompleted:
		return true
	}
	return false
}

// VariantConfig holds the presentation options a variant may override.
type VariantConfig struct {
	Headline     string          `json:"headline,omitempty" yaml:"headline,omitempty"`
	CTAText      string          `json:"ctaText,omitempty" yaml:"ctaText,omitempty"`
	Color        string          `json:"color,omitempty" yaml:"color,omitempty"`
	FontSize     string          `json:"fontSize,omitempty" yaml:"fontSize,omitempty"`
	Layout       string          `json:"layout,omitempty" yaml:"layout,omitempty"`
	FeatureFlags map[string]bool `json:"featureFlags,omitempty" yaml:"featureFlags,omitempty"`
}

type Variant struct {
	ID     string        `json:"id" yaml:"id"`
	Name   string        `json:"name" yaml:"name"`
	Weight float64       `json:"weight" yaml:"weight"`
	Config VariantConfig `json:"config" yaml:"config,omitempty"`
}

// Audience restricts an experiment to users whose points fall within
// [MinPoints, MaxPoints] and, when UserTypes is non-empty, whose type is
// listed. Nil bounds are open.
type Audience struct {
	MinPoints *float64 `json:"minPoints,omitempty" yaml:"minPoints,omitempty"`
	MaxPoints *float64 `json:"maxPoints,omitempty" yaml:"maxPoints,omitempty"`
	UserTypes []string `json:"userTypes,omitempty" yaml:"userTypes,omitempty"`
}

// Contains reports whether points lies within the audience bounds.
func (a *Audience) Contains(points float64) bool {
	if a.MinPoints != nil && points < *a.MinPoints {
		return false
	}
	if a.MaxPoints != nil && points > *a.MaxPoints {
		return false
	}
	return true
}

// AllowsType reports whether userType passes the UserTypes filter.
func (a *Audience) AllowsType(userType string) bool {
	return len(a.UserTypes) == 0 || slices.Contains(a.UserTypes, userType)
}

type Experiment struct {
	ID                string     `json:"id" yaml:"id"`
	Name              string     `json:"name" yaml:"name"`
	Description       string     `json:"description,omitempty" yaml:"description,omitempty"`
	Variants          []Variant  `json:"variants" yaml:"variants"`
	TrafficAllocation float64    `json:"trafficAllocation" yaml:"trafficAllocation"`
	Status            Status     `json:"status" yaml:"status,omitempty"`
	StartDate         *time.Time `json:"startDate,omitempty" yaml:"startDate,omitempty"`
	EndDate           *time.Time `json:"endDate,omitempty" yaml:"endDate,omitempty"`
	TargetAudience    *Audience  `json:"targetAudience,omitempty" yaml:"targetAudience,omitempty"`
	WinnerVariantID   string     `json:"winnerVariantId,omitempty" yaml:"winnerVariantId,omitempty"`
	CreatedAt         time.Time  `json:"createdAt" yaml:"-"`
	UpdatedAt         time.Time  `json:"updatedAt" yaml:"-"`
}

// Variant returns the variant with the given id.
func (e *Experiment) Variant(id string) (*Variant, bool) {
	for i := range e.Variants {
		if e.Variants[i].ID == id {
			return &e.Variants[i], true
		}
	}
	return nil, false
}

// InWindow reports whether t falls within the optional start and end dates.
func (e *Experiment) InWindow(t time.Time) bool {
	if e.StartDate != nil && t.Before(*e.StartDate) {
		return false
	}
	if e.EndDate != nil && t.After(*e.EndDate) {
		return false
	}
	return true
}

// Clone returns a deep copy of e.
func (e *Experiment) Clone() *Experiment {
	if e == nil {
		return nil
	}
	c := *e
	c.Variants = make([]Variant, len(e.Variants))
	for i, v := range e.Variants {
		c.Variants[i] = v
		if v.Config.FeatureFlags != nil {
			flags := make(map[string]bool, len(v.Config.FeatureFlags))
			for k, on := range v.Config.FeatureFlags {
				flags[k] = on
			}
			c.Variants[i].Config.FeatureFlags = flags
		}
	}
	if e.StartDate != nil {
		t := *e.StartDate
		c.StartDate = &t
	}
	if e.EndDate != nil {
		t := *e.EndDate
		c.EndDate = &t
	}
	if e.TargetAudience != nil {
		a := *e.TargetAudience
		if a.MinPoints != nil {
			v := *a.MinPoints
			a.MinPoints = &v
		}
		if a.MaxPoints != nil {
			v := *a.MaxPoints
			a.MaxPoints = &v
		}
		a.UserTypes = slices.Clone(a.UserTypes)
		c.TargetAudience = &a
	}
	return &c
}
