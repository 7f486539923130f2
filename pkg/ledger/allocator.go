package ledger

import (
	"time"

	"github.com/mcclellann/fredCredit/pkg/models"
	"github.com/mcclellann/fredCredit/pkg/money"
	"github.com/shopspring/decimal"
)

const (
	msgAlreadyPaid = "Loan is already fully paid."
	msgProcessed   = "Payment processed."
	msgNothingPaid = "No installments could be paid with the provided amount or due to restrictions."
)

// dailyAdjustmentRate is the share of an installment's nominal amount
// discounted per day paid early, or charged per day paid late.
var dailyAdjustmentRate = decimal.RequireFromString("0.001")

// Allocation is the outcome of applying one payment to a loan.
type Allocation struct {
	Result models.PaymentResult
	// Paid lists the installments settled by this payment, in due-date order.
	Paid []*models.Installment
	// Settled is true when this payment cleared the last outstanding
	// installment and flipped the loan to paid.
	Settled bool
	// NoOp is true when the loan was already paid and nothing changed.
	NoOp bool
}

// AdjustedAmount returns what settling inst on today costs, together with
// the discount (negative) or penalty (positive) applied to its nominal
// amount. The cost is floored at zero and rounded to cents.
func AdjustedAmount(inst *models.Installment, today time.Time) (due, adjustment decimal.Decimal) {
	days := money.DaysBetween(inst.DueDate, today)
	due = inst.Amount
	switch {
	case days < 0:
		adjustment = inst.Amount.Mul(dailyAdjustmentRate).Mul(decimal.NewFromInt(-days)).Neg()
	case days > 0:
		adjustment = inst.Amount.Mul(dailyAdjustmentRate).Mul(decimal.NewFromInt(days))
	default:
		adjustment = decimal.Zero
	}
	due = money.Round(money.Max(due.Add(adjustment), decimal.Zero))
	return due, adjustment
}

// Payable returns the outstanding installments that may be paid on today,
// in due-date order: those due strictly before the payable cutoff.
func Payable(loan *models.Loan, today time.Time) []*models.Installment {
	cutoff := money.PayableCutoff(today)
	var out []*models.Installment
	for _, inst := range loan.Outstanding() {
		if inst.DueDate.Before(cutoff) {
			out = append(out, inst)
		}
	}
	return out
}

// Allocate applies amount to the loan's payable installments in due-date
// order. Each installment is settled in full at its adjusted amount or not
// at all, and the walk stops at the first installment the remaining amount
// cannot cover. Money left over is not carried anywhere.
//
// Installments and the loan are mutated in place. Releasing the customer's
// credit on settlement is left to the caller, which holds the customer.
func Allocate(loan *models.Loan, amount decimal.Decimal, now time.Time) (*Allocation, error) {
	if loan.Paid {
		return &Allocation{
			Result: models.PaymentResult{
				TotalAmountSpent:   decimal.Zero,
				LoanPaidCompletely: true,
				Message:            msgAlreadyPaid,
			},
			NoOp: true,
		}, nil
	}

	today := money.Date(now)
	payable := Payable(loan, today)
	if len(payable) == 0 {
		return nil, paymentNotAllowed("No payable installments found for loan ID: %s", loan.ID)
	}

	alloc := &Allocation{}
	remaining := amount
	spent := decimal.Zero
	for _, inst := range payable {
		due, _ := AdjustedAmount(inst, today)
		if remaining.LessThan(due) {
			break
		}

		paidOn := today
		inst.Paid = true
		inst.PaidAmount = due
		inst.PaymentDate = &paidOn

		remaining = remaining.Sub(due)
		spent = spent.Add(due)
		alloc.Paid = append(alloc.Paid, inst)
	}

	if len(loan.Outstanding()) == 0 {
		loan.Paid = true
		alloc.Settled = true
	}

	alloc.Result = models.PaymentResult{
		InstallmentsPaidCount: len(alloc.Paid),
		TotalAmountSpent:      spent,
		LoanPaidCompletely:    loan.Paid,
		Message:               msgNothingPaid,
	}
	if len(alloc.Paid) > 0 {
		alloc.Result.Message = msgProcessed
	}
	return alloc, nil
}
