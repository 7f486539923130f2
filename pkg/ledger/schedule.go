package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/fredCredit/pkg/models"
	"github.com/mcclellann/fredCredit/pkg/money"
	"github.com/shopspring/decimal"
)

// GenerateSchedule computes the amount owed with interest and the ordered
// installments that repay it. Every installment carries the same nominal
// amount, total/count rounded half-up to cents; the rounding remainder is
// not redistributed. The first installment falls due on the first day of
// the month after originDate, the rest one month apart on day 1.
//
// Callers validate the terms first.
func GenerateSchedule(principal, interestRate decimal.Decimal, count int, originDate time.Time) (decimal.Decimal, []*models.Installment) {
	total := principal.Mul(decimal.NewFromInt(1).Add(interestRate))
	amount := total.DivRound(decimal.NewFromInt(int64(count)), money.Places)

	installments := make([]*models.Installment, 0, count)
	for i := 0; i < count; i++ {
		installments = append(installments, &models.Installment{
			ID:         uuid.New(),
			Amount:     amount,
			PaidAmount: decimal.Zero,
			DueDate:    money.FirstOfMonth(originDate, i+1),
		})
	}
	return total, installments
}
