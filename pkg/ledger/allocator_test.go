package ledger

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/fredCredit/pkg/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allocToday = time.Date(2025, time.June, 15, 0, 0, 0, 0, time.UTC)

func loanWith(installments ...*models.Installment) *models.Loan {
	loan := &models.Loan{ID: uuid.New(), Installments: installments}
	for _, inst := range installments {
		inst.ID = uuid.New()
		inst.LoanID = loan.ID
	}
	return loan
}

func due(amount string, daysFromToday int) *models.Installment {
	return &models.Installment{
		Amount:     dec(amount),
		PaidAmount: decimal.Zero,
		DueDate:    allocToday.AddDate(0, 0, daysFromToday),
	}
}

func TestAdjustedAmount(t *testing.T) {
	tests := []struct {
		name       string
		inst       *models.Installment
		want       string
		adjustment string
	}{
		{"early 30 days", due("458.33", 30), "444.58", "-13.7499"},
		{"late 30 days", due("458.33", -30), "472.08", "13.7499"},
		{"on time", due("458.33", 0), "458.33", "0"},
		{"one day early", due("100", 1), "99.9", "-0.1"},
		{"discount exceeds amount", due("100", 1500), "0", "-150"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, adj := AdjustedAmount(tt.inst, allocToday)
			assert.True(t, got.Equal(dec(tt.want)), "got %s", got)
			assert.True(t, adj.Equal(dec(tt.adjustment)), "adjustment %s", adj)
		})
	}
}

func TestAdjustedAmount_Direction(t *testing.T) {
	for _, days := range []int{1, 7, 45, 90} {
		early, _ := AdjustedAmount(due("250.00", days), allocToday)
		late, _ := AdjustedAmount(due("250.00", -days), allocToday)
		assert.True(t, early.LessThan(dec("250.00")), "early by %d", days)
		assert.True(t, late.GreaterThan(dec("250.00")), "late by %d", days)
	}
}

func TestAllocate_EarlyPayment(t *testing.T) {
	loan := loanWith(due("458.33", 30))

	alloc, err := Allocate(loan, dec("458.33"), allocToday)
	require.NoError(t, err)

	assert.Equal(t, 1, alloc.Result.InstallmentsPaidCount)
	assert.True(t, alloc.Result.TotalAmountSpent.Equal(dec("444.58")))
	inst := loan.Installments[0]
	assert.True(t, inst.Paid)
	assert.True(t, inst.PaidAmount.Equal(dec("444.58")))
	assert.Equal(t, allocToday, *inst.PaymentDate)
	assert.True(t, alloc.Settled)
	assert.True(t, loan.Paid)
}

func TestAllocate_LatePaymentLeavesRemainder(t *testing.T) {
	loan := loanWith(due("458.33", -30), due("458.33", 1))

	alloc, err := Allocate(loan, dec("500.00"), allocToday)
	require.NoError(t, err)

	assert.Equal(t, 1, alloc.Result.InstallmentsPaidCount)
	assert.True(t, alloc.Result.TotalAmountSpent.Equal(dec("472.08")))
	assert.False(t, loan.Installments[1].Paid)
	assert.False(t, alloc.Settled)
	assert.False(t, alloc.Result.LoanPaidCompletely)
	assert.Equal(t, "Payment processed.", alloc.Result.Message)
}

func TestAllocate_StopsAtFirstUnaffordable(t *testing.T) {
	loan := loanWith(due("100", -1), due("300", 0), due("10", 1))

	// 100.10 is paid, leaving 49.90: not enough for 300, and the cheaper
	// installment after it must not be skipped to.
	alloc, err := Allocate(loan, dec("150"), allocToday)
	require.NoError(t, err)

	assert.Equal(t, 1, alloc.Result.InstallmentsPaidCount)
	assert.True(t, alloc.Result.TotalAmountSpent.Equal(dec("100.10")))
	assert.True(t, loan.Installments[0].Paid)
	assert.False(t, loan.Installments[1].Paid)
	assert.False(t, loan.Installments[2].Paid)
	require.Len(t, alloc.Paid, 1)
}

func TestAllocate_NothingAffordable(t *testing.T) {
	loan := loanWith(due("458.33", 0))

	alloc, err := Allocate(loan, dec("458.32"), allocToday)
	require.NoError(t, err)

	assert.Equal(t, 0, alloc.Result.InstallmentsPaidCount)
	assert.True(t, alloc.Result.TotalAmountSpent.IsZero())
	assert.Equal(t, "No installments could be paid with the provided amount or due to restrictions.", alloc.Result.Message)
	assert.False(t, loan.Installments[0].Paid)
	assert.Nil(t, loan.Installments[0].PaymentDate)
	assert.Empty(t, alloc.Paid)
}

func TestAllocate_PayableWindow(t *testing.T) {
	// Cutoff on 2025-06-15 is 2025-09-01.
	at := func(y int, m time.Month, d int) *models.Installment {
		return &models.Installment{Amount: dec("10"), PaidAmount: decimal.Zero, DueDate: time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
	}
	loan := loanWith(at(2025, time.August, 31), at(2025, time.September, 1), at(2025, time.October, 1))

	payable := Payable(loan, allocToday)
	require.Len(t, payable, 1)
	assert.Equal(t, loan.Installments[0].ID, payable[0].ID)

	alloc, err := Allocate(loan, dec("1000"), allocToday)
	require.NoError(t, err)
	assert.Equal(t, 1, alloc.Result.InstallmentsPaidCount)
	assert.False(t, alloc.Result.LoanPaidCompletely, "unpayable installments keep the loan open")
}

func TestAllocate_NoPayableInstallments(t *testing.T) {
	loan := loanWith(&models.Installment{
		Amount:     dec("10"),
		PaidAmount: decimal.Zero,
		DueDate:    time.Date(2025, time.September, 1, 0, 0, 0, 0, time.UTC),
	})

	alloc, err := Allocate(loan, dec("1000000"), allocToday)
	assert.Nil(t, alloc)
	require.Error(t, err)
	assert.Equal(t, KindPaymentNotAllowed, KindOf(err))
	assert.False(t, loan.Installments[0].Paid)
}

func TestAllocate_SkipsPaidInstallments(t *testing.T) {
	paid := due("100", -31)
	paid.Paid = true
	loan := loanWith(paid, due("100", 0))

	alloc, err := Allocate(loan, dec("100"), allocToday)
	require.NoError(t, err)
	assert.Equal(t, 1, alloc.Result.InstallmentsPaidCount)
	assert.True(t, alloc.Result.TotalAmountSpent.Equal(dec("100")))
	assert.True(t, alloc.Settled)
}

func TestAllocate_AlreadyPaidLoan(t *testing.T) {
	for _, amount := range []string{"0.01", "1000000"} {
		loan := loanWith(due("100", 0))
		loan.Paid = true

		alloc, err := Allocate(loan, dec(amount), allocToday)
		require.NoError(t, err)
		assert.True(t, alloc.NoOp)
		assert.Equal(t, 0, alloc.Result.InstallmentsPaidCount)
		assert.True(t, alloc.Result.TotalAmountSpent.IsZero())
		assert.True(t, alloc.Result.LoanPaidCompletely)
		assert.Equal(t, "Loan is already fully paid.", alloc.Result.Message)
		assert.False(t, loan.Installments[0].Paid)
	}
}
