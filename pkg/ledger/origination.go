package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/fredCredit/pkg/models"
	"github.com/mcclellann/fredCredit/pkg/money"
	"github.com/shopspring/decimal"
)

var (
	minInterestRate = decimal.RequireFromString("0.1")
	maxInterestRate = decimal.RequireFromString("0.5")

	allowedInstallmentCounts = map[int]bool{6: true, 9: true, 12: true, 24: true}
)

// ValidateTerms checks the loan terms that do not depend on the customer.
func ValidateTerms(principal, interestRate decimal.Decimal, installmentCount int) error {
	if !allowedInstallmentCounts[installmentCount] {
		return invalid("Number of installments can only be 6, 9, 12, or 24")
	}
	if interestRate.LessThan(minInterestRate) || interestRate.GreaterThan(maxInterestRate) {
		return invalid("Interest rate must be between 0.1 and 0.5")
	}
	if !principal.IsPositive() {
		return invalid("Loan amount must be positive")
	}
	return nil
}

// Originate builds a new unpaid loan for customer with its full installment
// schedule and commits the principal against the customer's credit limit.
// The customer is mutated in place; nothing is persisted.
func Originate(customer *models.Customer, principal, interestRate decimal.Decimal, installmentCount int, now time.Time) (*models.Loan, error) {
	if err := ValidateTerms(principal, interestRate, installmentCount); err != nil {
		return nil, err
	}
	if err := reserveCredit(customer, principal, now); err != nil {
		return nil, err
	}

	today := money.Date(now)
	total, installments := GenerateSchedule(principal, interestRate, installmentCount, today)

	loan := &models.Loan{
		ID:                uuid.New(),
		CustomerID:        customer.ID,
		Principal:         principal,
		TotalWithInterest: total,
		InterestRate:      interestRate,
		InstallmentCount:  installmentCount,
		CreateDate:        today,
		Installments:      installments,
	}
	for _, inst := range installments {
		inst.LoanID = loan.ID
	}
	return loan, nil
}
