package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/mcclellann/fredCredit/pkg/models"
)

// ErrNotFound is wrapped by every lookup that matches no row.
var ErrNotFound = errors.New("not found")

// Storage defines the persistence operations for customers, loans and their
// installments.
type Storage interface {
	CreateCustomer(ctx context.Context, customer *models.Customer) error
	GetCustomer(ctx context.Context, id uuid.UUID) (*models.Customer, error)
	UpdateCustomer(ctx context.Context, customer *models.Customer) error

	// CreateLoan inserts the loan together with its installments.
	CreateLoan(ctx context.Context, loan *models.Loan) error
	// GetLoan returns the loan with its installments in due-date order.
	GetLoan(ctx context.Context, id uuid.UUID) (*models.Loan, error)
	UpdateLoan(ctx context.Context, loan *models.Loan) error
	ListLoans(ctx context.Context, filter models.LoanFilter) ([]*models.Loan, error)

	GetInstallments(ctx context.Context, loanID uuid.UUID) ([]*models.Installment, error)
	UpdateInstallment(ctx context.Context, installment *models.Installment) error

	// WithTx runs fn against a Storage bound to one transaction. The
	// transaction commits if fn returns nil and rolls back otherwise.
	WithTx(ctx context.Context, fn func(Storage) error) error

	Close() error
}
