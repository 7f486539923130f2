package ledger

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSchedule(t *testing.T) {
	origin := time.Date(2025, time.June, 15, 0, 0, 0, 0, time.UTC)

	total, installments := GenerateSchedule(dec("5000.00"), dec("0.1"), 12, origin)

	assert.True(t, total.Equal(dec("5500")), total.String())
	require.Len(t, installments, 12)
	for i, inst := range installments {
		assert.True(t, inst.Amount.Equal(dec("458.33")), inst.Amount.String())
		assert.True(t, inst.PaidAmount.IsZero())
		assert.False(t, inst.Paid)
		assert.Nil(t, inst.PaymentDate)
		assert.Equal(t, time.Date(2025, time.July+time.Month(i), 1, 0, 0, 0, 0, time.UTC), inst.DueDate)
	}
}

func TestGenerateSchedule_RoundsHalfUp(t *testing.T) {
	// 1000 * 1.25 / 24 = 52.083333.. ; 1001 * 1.5 / 6 = 250.25 ; 101 * 1.5 / 12 = 12.625
	cases := []struct {
		principal, rate string
		count           int
		want            string
	}{
		{"1000", "0.25", 24, "52.08"},
		{"1001", "0.5", 6, "250.25"},
		{"101", "0.5", 12, "12.63"},
	}
	for _, c := range cases {
		_, installments := GenerateSchedule(dec(c.principal), dec(c.rate), c.count, time.Now())
		assert.True(t, installments[0].Amount.Equal(dec(c.want)), "%s/%s/%d got %s", c.principal, c.rate, c.count, installments[0].Amount)
	}
}

func TestGenerateSchedule_Properties(t *testing.T) {
	origins := []time.Time{
		time.Date(2025, time.January, 31, 0, 0, 0, 0, time.UTC),
		time.Date(2024, time.December, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2028, time.February, 29, 0, 0, 0, 0, time.UTC),
	}
	principals := []string{"1", "999.99", "5000", "12345.67"}
	rates := []string{"0.1", "0.17", "0.333", "0.5"}

	for count := range allowedInstallmentCounts {
		tolerance := decimal.NewFromFloat(0.005).Mul(decimal.NewFromInt(int64(count)))
		for _, p := range principals {
			for _, r := range rates {
				for _, origin := range origins {
					total, installments := GenerateSchedule(dec(p), dec(r), count, origin)
					require.Len(t, installments, count)

					sum := decimal.Zero
					for _, inst := range installments {
						sum = sum.Add(inst.Amount)
					}
					assert.True(t, sum.Sub(total).Abs().LessThanOrEqual(tolerance),
						"count=%d p=%s r=%s sum=%s total=%s", count, p, r, sum, total)

					first := installments[0].DueDate
					assert.Equal(t, 1, first.Day())
					assert.True(t, first.After(origin))
					for i := 1; i < count; i++ {
						prev, cur := installments[i-1].DueDate, installments[i].DueDate
						assert.Equal(t, 1, cur.Day())
						assert.True(t, cur.After(prev))
						assert.Equal(t, prev.AddDate(0, 1, 0), cur)
					}
				}
			}
		}
	}
}
