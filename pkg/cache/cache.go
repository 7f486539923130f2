// Package cache keeps recently read loans, with their installment
// schedules, out of the database.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/fredCredit/pkg/models"
	"github.com/redis/go-redis/v9"
)

// ErrMiss is returned by Get when the loan is not cached.
var ErrMiss = errors.New("cache miss")

type LoanCache interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Loan, error)
	Set(ctx context.Context, loan *models.Loan) error
	Invalidate(ctx context.Context, id uuid.UUID) error
}

// Nop caches nothing.
type Nop struct{}

func (Nop) Get(context.Context, uuid.UUID) (*models.Loan, error) { return nil, ErrMiss }
func (Nop) Set(context.Context, *models.Loan) error               { return nil }
func (Nop) Invalidate(context.Context, uuid.UUID) error           { return nil }

// RedisCache stores loans as JSON under a per-loan key.
type RedisCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewRedisCache(client redis.UniversalClient, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func key(id uuid.UUID) string {
	return "fredcredit:loan:" + id.String()
}

func (c *RedisCache) Get(ctx context.Context, id uuid.UUID) (*models.Loan, error) {
	raw, err := c.client.Get(ctx, key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cached loan %s: %w", id, err)
	}

	var loan models.Loan
	if err := json.Unmarshal(raw, &loan); err != nil {
		return nil, fmt.Errorf("failed to decode cached loan %s: %w", id, err)
	}
	return &loan, nil
}

func (c *RedisCache) Set(ctx context.Context, loan *models.Loan) error {
	raw, err := json.Marshal(loan)
	if err != nil {
		return fmt.Errorf("failed to encode loan %s: %w", loan.ID, err)
	}
	return c.client.Set(ctx, key(loan.ID), raw, c.ttl).Err()
}

func (c *RedisCache) Invalidate(ctx context.Context, id uuid.UUID) error {
	return c.client.Del(ctx, key(id)).Err()
}
