package store

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventAssignment = "AB_TEST_ASSIGNMENT"
	EventConversion = "AB_TEST_CONVERSION"
)

// ExperimentCategory is the path assignment events are logged under.
func ExperimentCategory(experimentID string) string {
	return "experiment/" + experimentID
}

// ConversionCategory is the path conversion events are logged under.
func ConversionCategory(experimentID string) string {
	return "experiment/" + experimentID + "/conversion"
}

type Event struct {
	ID             string
	UserID         string
	Category       string
	EventType      string // AB_TEST_ASSIGNMENT or AB_TEST_CONVERSION
	ExperimentID   string
	VariantID      string
	VariantName    string
	ConversionType string
	Value          *float64 // nil when the conversion carried no value
	CreatedAt      time.Time
}

type User struct {
	ID       string
	Points   float64
	UserType string
}

// prepare fills the id and timestamp of a new event.
func (e *Event) prepare() {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	e.CreatedAt = e.CreatedAt.UTC()
}

func (e *Event) clone() *Event {
	c := *e
	if e.Value != nil {
		v := *e.Value
		c.Value = &v
	}
	return &c
}
