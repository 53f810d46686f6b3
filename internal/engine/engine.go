// Package engine assigns users to experiment variants, records conversions
// and analyses the results.
package engine

import (
	"context"
	"time"

	"github.com/gkobilansky/xgoat/internal/experiment"
	"github.com/gkobilansky/xgoat/internal/stats"
	"github.com/gkobilansky/xgoat/internal/store"
	"github.com/gkobilansky/xgoat/pkg/logger"
	"github.com/gkobilansky/xgoat/pkg/metrics"
)

// VariantAssignment is the variant a user sees in an experiment.
type VariantAssignment struct {
	UserID       string                   `json:"userId"`
	ExperimentID string                   `json:"experimentId"`
	VariantID    string                   `json:"variantId"`
	VariantName  string                   `json:"variantName"`
	Config       experiment.VariantConfig `json:"config"`
	AssignedAt   time.Time                `json:"assignedAt"`
}

// ConversionEvent is an outcome attributed to a user's variant. A nil Value
// means the conversion carried no value.
type ConversionEvent struct {
	UserID       string    `json:"userId"`
	ExperimentID string    `json:"experimentId"`
	VariantID    string    `json:"variantId"`
	EventType    string    `json:"eventType"`
	Value        *float64  `json:"value,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

type Engine struct {
	registry *experiment.Registry
	events   store.EventLog
	users    store.UserLookup

	log     logger.Logger
	metrics *metrics.Manager
	now     func() time.Time
	alpha   float64
	scoped  bool
}

type Option func(*Engine)

func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

func WithMetrics(m *metrics.Manager) Option {
	return func(e *Engine) { e.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithAlpha sets the p-value threshold for significance.
func WithAlpha(alpha float64) Option {
	return func(e *Engine) {
		if alpha > 0 && alpha < 1 {
			e.alpha = alpha
		}
	}
}

// WithExperimentScopedBuckets hashes "experimentID:userID" instead of the
// bare user id, so a user's bucket differs between experiments. Turning it
// on for a running experiment reshuffles users that have not been assigned
// yet.
func WithExperimentScopedBuckets(enabled bool) Option {
	return func(e *Engine) { e.scoped = enabled }
}

// New builds an engine. users may be nil when no experiment uses targeting.
func New(registry *experiment.Registry, events store.EventLog, users store.UserLookup, opts ...Option) *Engine {
	e := &Engine{
		registry: registry,
		events:   events,
		users:    users,
		log:      logger.Nop(),
		now:      time.Now,
		alpha:    stats.DefaultAlpha,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Registry returns the experiment registry the engine reads from.
func (e *Engine) Registry() *experiment.Registry {
	return e.registry
}

// Alpha returns the significance threshold in use.
func (e *Engine) Alpha() float64 {
	return e.alpha
}

func (e *Engine) storageError(ctx context.Context, op string, err error, fields ...logger.Field) {
	e.metrics.RecordStorageError(op)
	e.log.Error(ctx, "storage operation failed", append(fields, logger.String("operation", op), logger.Error(err))...)
}
