package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Customer struct {
	ID              uuid.UUID       `json:"id"`
	Name            string          `json:"name"`
	Surname         string          `json:"surname"`
	CreditLimit     decimal.Decimal `json:"credit_limit"`
	UsedCreditLimit decimal.Decimal `json:"used_credit_limit"` // Committed to unpaid loans, never above CreditLimit
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// AvailableCredit is the part of the credit limit not yet committed.
func (c *Customer) AvailableCredit() decimal.Decimal {
	return c.CreditLimit.Sub(c.UsedCreditLimit)
}

type Loan struct {
	ID                uuid.UUID       `json:"id"`
	CustomerID        uuid.UUID       `json:"customer_id"`
	Principal         decimal.Decimal `json:"principal"`           // Amount requested at origination
	TotalWithInterest decimal.Decimal `json:"total_with_interest"` // Principal * (1 + InterestRate)
	InterestRate      decimal.Decimal `json:"interest_rate"`
	InstallmentCount  int             `json:"installment_count"`
	CreateDate        time.Time       `json:"create_date"`
	Paid              bool            `json:"paid"`
	Installments      []*Installment  `json:"installments,omitempty"` // Ascending due date, fixed at creation
}

// Outstanding returns the unpaid installments in schedule order.
func (l *Loan) Outstanding() []*Installment {
	var out []*Installment
	for _, inst := range l.Installments {
		if !inst.Paid {
			out = append(out, inst)
		}
	}
	return out
}

type Installment struct {
	ID          uuid.UUID       `json:"id"`
	LoanID      uuid.UUID       `json:"loan_id"`
	Amount      decimal.Decimal `json:"amount"`      // Nominal obligation
	PaidAmount  decimal.Decimal `json:"paid_amount"` // Adjusted amount collected
	DueDate     time.Time       `json:"due_date"`
	PaymentDate *time.Time      `json:"payment_date,omitempty"`
	Paid        bool            `json:"paid"`
}

// PaymentResult reports what one payment call settled.
type PaymentResult struct {
	InstallmentsPaidCount int             `json:"installments_paid_count"`
	TotalAmountSpent      decimal.Decimal `json:"total_amount_spent"`
	LoanPaidCompletely    bool            `json:"loan_paid_completely"`
	Message               string          `json:"message"`
}

// LoanFilter narrows ListLoans. Nil fields do not filter.
type LoanFilter struct {
	CustomerID       *uuid.UUID
	InstallmentCount *int
	Paid             *bool
}
