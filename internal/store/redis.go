package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultClaimTTL bounds how long a Redis claim outlives its experiment.
const DefaultClaimTTL = 90 * 24 * time.Hour

// RedisGuard decorates a Store so that assignment claims are arbitrated in
// Redis before they reach the underlying event log. Instances that do not
// share a database still agree on the variant a user receives.
type RedisGuard struct {
	Store
	client redis.UniversalClient
	ttl    time.Duration
}

type claim struct {
	VariantID   string `json:"variantId"`
	VariantName string `json:"variantName"`
}

// NewRedisGuard wraps inner. A non-positive ttl uses DefaultClaimTTL.
func NewRedisGuard(inner Store, client redis.UniversalClient, ttl time.Duration) *RedisGuard {
	if ttl <= 0 {
		ttl = DefaultClaimTTL
	}
	return &RedisGuard{Store: inner, client: client, ttl: ttl}
}

func claimKey(experimentID, userID string) string {
	return "ab:assignment:" + experimentID + ":" + userID
}

// ClaimAssignment sets the claim key with SETNX. The first writer's variant
// wins and is what every later caller persists; the returned flag reports
// whether this caller won the Redis claim.
func (g *RedisGuard) ClaimAssignment(ctx context.Context, e *Event) (*Event, bool, error) {
	key := claimKey(e.ExperimentID, e.UserID)

	value, err := json.Marshal(claim{VariantID: e.VariantID, VariantName: e.VariantName})
	if err != nil {
		return nil, false, fmt.Errorf("failed to marshal claim: %w", err)
	}

	won, err := g.client.SetNX(ctx, key, value, g.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to claim assignment in redis: %w", err)
	}

	if !won {
		raw, err := g.client.Get(ctx, key).Bytes()
		if err != nil && err != redis.Nil {
			return nil, false, fmt.Errorf("failed to read assignment claim: %w", err)
		}
		if err == nil {
			var c claim
			if err := json.Unmarshal(raw, &c); err != nil {
				return nil, false, fmt.Errorf("failed to unmarshal claim: %w", err)
			}
			e.VariantID = c.VariantID
			e.VariantName = c.VariantName
		}
	}

	stored, _, err := g.Store.ClaimAssignment(ctx, e)
	if err != nil {
		return nil, false, err
	}
	return stored, won, nil
}

// Close closes the inner store and the Redis client.
func (g *RedisGuard) Close() error {
	storeErr := g.Store.Close()
	if err := g.client.Close(); err != nil && storeErr == nil {
		return err
	}
	return storeErr
}
