package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/mcclellann/fredCredit/pkg/models"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *RedisCache) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, NewRedisCache(client, time.Minute)
}

func TestRedisCache_SetGetInvalidate(t *testing.T) {
	mr, c := setupTestRedis(t)
	ctx := context.Background()

	due := time.Date(2025, time.August, 1, 0, 0, 0, 0, time.UTC)
	loan := &models.Loan{
		ID:                uuid.New(),
		CustomerID:        uuid.New(),
		Principal:         decimal.RequireFromString("5000.00"),
		TotalWithInterest: decimal.RequireFromString("5500.00"),
		InterestRate:      decimal.RequireFromString("0.1"),
		InstallmentCount:  12,
		CreateDate:        time.Date(2025, time.July, 15, 0, 0, 0, 0, time.UTC),
		Installments: []*models.Installment{
			{ID: uuid.New(), Amount: decimal.RequireFromString("458.33"), PaidAmount: decimal.Zero, DueDate: due},
		},
	}

	_, err := c.Get(ctx, loan.ID)
	assert.ErrorIs(t, err, ErrMiss)

	require.NoError(t, c.Set(ctx, loan))
	assert.True(t, mr.Exists(key(loan.ID)))
	assert.Equal(t, time.Minute, mr.TTL(key(loan.ID)))

	cached, err := c.Get(ctx, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, loan.CustomerID, cached.CustomerID)
	assert.True(t, cached.TotalWithInterest.Equal(loan.TotalWithInterest))
	require.Len(t, cached.Installments, 1)
	assert.True(t, cached.Installments[0].DueDate.Equal(due))

	require.NoError(t, c.Invalidate(ctx, loan.ID))
	_, err = c.Get(ctx, loan.ID)
	assert.ErrorIs(t, err, ErrMiss)
}

func TestRedisCache_Expires(t *testing.T) {
	mr, c := setupTestRedis(t)
	ctx := context.Background()
	loan := &models.Loan{ID: uuid.New()}

	require.NoError(t, c.Set(ctx, loan))
	mr.FastForward(2 * time.Minute)

	_, err := c.Get(ctx, loan.ID)
	assert.ErrorIs(t, err, ErrMiss)
}

func TestRedisCache_CorruptEntry(t *testing.T) {
	mr, c := setupTestRedis(t)
	id := uuid.New()
	require.NoError(t, mr.Set(key(id), "{not json"))

	_, err := c.Get(context.Background(), id)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrMiss)
}

func TestNop(t *testing.T) {
	var c LoanCache = Nop{}
	require.NoError(t, c.Set(context.Background(), &models.Loan{}))
	_, err := c.Get(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrMiss)
}
