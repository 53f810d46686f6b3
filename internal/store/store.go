// Package store persists experiments, users and the append-only event log.
package store

import (
	"context"
	"errors"

	"github.com/gkobilansky/xgoat/internal/experiment"
)

var (
	// ErrNotFound is returned for unknown experiments. It is the same value
	// as experiment.ErrNotFound.
	ErrNotFound      = experiment.ErrNotFound
	ErrUnknownDriver = errors.New("unknown store driver")
	// ErrDuplicateAssignment is returned by the in-memory Append for a second
	// assignment of the same (experiment, user) pair. The SQL stores reject
	// it through their unique index instead.
	ErrDuplicateAssignment = errors.New("assignment already recorded")
)

// EventLog is the append-only record of assignments and conversions.
type EventLog interface {
	Append(ctx context.Context, e *Event) error
	Query(ctx context.Context, f Filter) ([]*Event, error)

	// ClaimAssignment stores e unless an assignment already exists for the
	// same (experiment, user) pair. It returns the stored assignment and
	// whether e was the one written.
	ClaimAssignment(ctx context.Context, e *Event) (*Event, bool, error)
}

// UserLookup resolves the user attributes used for audience targeting.
type UserLookup interface {
	Points(ctx context.Context, userID string) (float64, bool, error)
	UserType(ctx context.Context, userID string) (string, bool, error)
}

// Store is the full persistence surface used by the engine.
type Store interface {
	experiment.Repository
	EventLog
	UserLookup

	UpsertUser(ctx context.Context, u User) error
	Close() error
}

type Order int

const (
	OrderAsc Order = iota
	OrderDesc
)

// Filter selects events. Empty fields match everything; a zero Limit means
// no limit.
type Filter struct {
	UserID       string
	EventType    string
	Category     string
	ExperimentID string
	Order        Order
	Limit        int
}

func (f Filter) matches(e *Event) bool {
	if f.UserID != "" && e.UserID != f.UserID {
		return false
	}
	if f.EventType != "" && e.EventType != f.EventType {
		return false
	}
	if f.Category != "" && e.Category != f.Category {
		return false
	}
	if f.ExperimentID != "" && e.ExperimentID != f.ExperimentID {
		return false
	}
	return true
}

func assignmentFilter(experimentID, userID string) Filter {
	return Filter{
		UserID:       userID,
		ExperimentID: experimentID,
		EventType:    EventAssignment,
		Order:        OrderDesc,
		Limit:        1,
	}
}
