package ledger

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/fredCredit/pkg/cache"
	"github.com/mcclellann/fredCredit/pkg/lock"
	"github.com/mcclellann/fredCredit/pkg/models"
	"github.com/mcclellann/fredCredit/pkg/money"
	"github.com/mcclellann/fredCredit/pkg/store"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Ledger runs the credit operations against storage. Each mutating call is
// one transaction, serialized per loan (payments) or per customer
// (origination).
type Ledger struct {
	storage store.Storage
	locker  lock.Locker
	cache   cache.LoanCache
	log     logrus.FieldLogger
	now     func() time.Time
}

type Option func(*Ledger)

func WithLocker(l lock.Locker) Option { return func(led *Ledger) { led.locker = l } }

func WithCache(c cache.LoanCache) Option { return func(led *Ledger) { led.cache = c } }

func WithLogger(log logrus.FieldLogger) Option { return func(led *Ledger) { led.log = log } }

// WithClock replaces time.Now, which decides "today" for schedules and
// payment adjustments.
func WithClock(now func() time.Time) Option { return func(led *Ledger) { led.now = now } }

// NewLedger creates a new Ledger with a given Storage implementation.
func NewLedger(s store.Storage, opts ...Option) *Ledger {
	l := &Ledger{
		storage: s,
		locker:  lock.NewLocal(),
		cache:   cache.Nop{},
		log:     logrus.StandardLogger(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Scope restricts an operation to one customer's loans. The zero Scope is
// unrestricted.
type Scope struct {
	CustomerID *uuid.UUID
}

func CustomerScope(id uuid.UUID) Scope { return Scope{CustomerID: &id} }

func (s Scope) allows(customerID uuid.UUID) bool {
	return s.CustomerID == nil || *s.CustomerID == customerID
}

// CreateCustomer registers a customer with an unused credit limit.
func (l *Ledger) CreateCustomer(ctx context.Context, name, surname string, creditLimit decimal.Decimal) (*models.Customer, error) {
	name, surname = strings.TrimSpace(name), strings.TrimSpace(surname)
	if name == "" || surname == "" {
		return nil, invalid("Customer name and surname are required")
	}
	if creditLimit.IsNegative() {
		return nil, invalid("Credit limit cannot be negative")
	}

	now := l.now()
	c := &models.Customer{
		ID:              uuid.New(),
		Name:            name,
		Surname:         surname,
		CreditLimit:     creditLimit,
		UsedCreditLimit: decimal.Zero,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := l.storage.CreateCustomer(ctx, c); err != nil {
		return nil, err
	}
	l.log.WithField("customer_id", c.ID).Info("Customer created")
	return c, nil
}

// GetCustomer retrieves a customer visible in scope.
func (l *Ledger) GetCustomer(ctx context.Context, id uuid.UUID, scope Scope) (*models.Customer, error) {
	if !scope.allows(id) {
		return nil, notFound("Customer not found with ID: %s", id)
	}
	c, err := l.storage.GetCustomer(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, notFound("Customer not found with ID: %s", id)
	}
	return c, err
}

// Originate creates a loan for the customer and commits its principal
// against the customer's credit limit.
func (l *Ledger) Originate(ctx context.Context, customerID uuid.UUID, principal, interestRate decimal.Decimal, installmentCount int) (*models.Loan, error) {
	log := l.log.WithFields(logrus.Fields{"customer_id": customerID, "amount": principal.String()})
	log.Info("Attempting to create loan")

	if err := ValidateTerms(principal, interestRate, installmentCount); err != nil {
		log.WithError(err).Warn("Loan terms rejected")
		return nil, err
	}

	var loan *models.Loan
	err := l.locker.WithLock(ctx, "customer:"+customerID.String(), func(ctx context.Context) error {
		return l.storage.WithTx(ctx, func(tx store.Storage) error {
			customer, err := tx.GetCustomer(ctx, customerID)
			if errors.Is(err, store.ErrNotFound) {
				return notFound("Customer does not exist customerId: %s", customerID)
			}
			if err != nil {
				return err
			}

			loan, err = Originate(customer, principal, interestRate, installmentCount, l.now())
			if err != nil {
				return err
			}
			if err := tx.UpdateCustomer(ctx, customer); err != nil {
				return err
			}
			return tx.CreateLoan(ctx, loan)
		})
	})
	if err != nil {
		log.WithError(err).Warn("Loan not created")
		return nil, err
	}

	log.WithField("loan_id", loan.ID).Info("Loan created")
	return loan, nil
}

// GetLoan retrieves a loan and its schedule visible in scope.
func (l *Ledger) GetLoan(ctx context.Context, id uuid.UUID, scope Scope) (*models.Loan, error) {
	loan, err := l.cache.Get(ctx, id)
	if err != nil {
		if !errors.Is(err, cache.ErrMiss) {
			l.log.WithError(err).WithField("loan_id", id).Warn("Loan cache read failed")
		}
		loan, err = l.fillLoan(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			return nil, loanNotFound(id, scope)
		}
		if err != nil {
			return nil, err
		}
	}

	if !scope.allows(loan.CustomerID) {
		return nil, loanNotFound(id, scope)
	}
	return loan, nil
}

// fillLoan reads the loan from storage and caches it while holding the
// loan's payment lock, so a payment cannot commit between the read and the
// cache write.
func (l *Ledger) fillLoan(ctx context.Context, id uuid.UUID) (*models.Loan, error) {
	var loan *models.Loan
	err := l.locker.WithLock(ctx, "loan:"+id.String(), func(ctx context.Context) error {
		var err error
		loan, err = l.storage.GetLoan(ctx, id)
		if err != nil {
			return err
		}
		if err := l.cache.Set(ctx, loan); err != nil {
			l.log.WithError(err).WithField("loan_id", id).Warn("Loan cache write failed")
		}
		return nil
	})
	return loan, err
}

// ListLoans retrieves the loans matching filter. A customer scope overrides
// the filter's customer.
func (l *Ledger) ListLoans(ctx context.Context, filter models.LoanFilter, scope Scope) ([]*models.Loan, error) {
	if scope.CustomerID != nil {
		filter.CustomerID = scope.CustomerID
	}
	return l.storage.ListLoans(ctx, filter)
}

// ListInstallments returns a loan's installments in due-date order.
func (l *Ledger) ListInstallments(ctx context.Context, loanID uuid.UUID, scope Scope) ([]*models.Installment, error) {
	loan, err := l.GetLoan(ctx, loanID, scope)
	if err != nil {
		return nil, err
	}
	return loan.Installments, nil
}

// AllocatePayment applies amount to the loan's payable installments. When
// the payment clears the loan, the principal is released back to the
// customer's credit limit in the same transaction.
func (l *Ledger) AllocatePayment(ctx context.Context, loanID uuid.UUID, amount decimal.Decimal, scope Scope) (*models.PaymentResult, error) {
	log := l.log.WithFields(logrus.Fields{"loan_id": loanID, "amount": amount.String()})
	log.Info("Processing payment")

	if !amount.IsPositive() {
		return nil, invalid("Payment amount must be positive")
	}

	var alloc *Allocation
	err := l.locker.WithLock(ctx, "loan:"+loanID.String(), func(ctx context.Context) error {
		return l.storage.WithTx(ctx, func(tx store.Storage) error {
			loan, err := tx.GetLoan(ctx, loanID)
			if errors.Is(err, store.ErrNotFound) {
				return loanNotFound(loanID, scope)
			}
			if err != nil {
				return err
			}
			if !scope.allows(loan.CustomerID) {
				return loanNotFound(loanID, scope)
			}

			now := l.now()
			alloc, err = Allocate(loan, amount, now)
			if err != nil || alloc.NoOp {
				return err
			}

			for _, inst := range alloc.Paid {
				log.WithFields(logrus.Fields{
					"installment_id": inst.ID,
					"due_date":       inst.DueDate.Format(time.DateOnly),
					"nominal":        inst.Amount.String(),
					"paid":           inst.PaidAmount.String(),
				}).Debug("Installment paid")
				if err := tx.UpdateInstallment(ctx, inst); err != nil {
					return err
				}
			}

			if alloc.Settled {
				customer, err := tx.GetCustomer(ctx, loan.CustomerID)
				if err != nil {
					return err
				}
				releaseCredit(customer, loan.Principal, now)
				if err := tx.UpdateCustomer(ctx, customer); err != nil {
					return err
				}
				log.WithField("customer_id", customer.ID).Info("Loan fully paid, credit limit released")
			}
			return tx.UpdateLoan(ctx, loan)
		})
	})
	if err != nil {
		log.WithError(err).Warn("Payment rejected")
		return nil, err
	}

	if !alloc.NoOp {
		if err := l.cache.Invalidate(ctx, loanID); err != nil {
			log.WithError(err).Warn("Loan cache invalidation failed")
		}
	}

	log.WithFields(logrus.Fields{
		"installments_paid": alloc.Result.InstallmentsPaidCount,
		"spent":             alloc.Result.TotalAmountSpent.String(),
		"loan_paid":         alloc.Result.LoanPaidCompletely,
	}).Info(alloc.Result.Message)
	return &alloc.Result, nil
}

// OverdueLoan summarizes the installments of one unpaid loan that are past
// their due date.
type OverdueLoan struct {
	LoanID       uuid.UUID
	CustomerID   uuid.UUID
	Installments int
	Nominal      decimal.Decimal
	OldestDue    time.Time
}

// Overdue lists unpaid loans with at least one installment due before today.
func (l *Ledger) Overdue(ctx context.Context) ([]OverdueLoan, error) {
	unpaid := false
	loans, err := l.storage.ListLoans(ctx, models.LoanFilter{Paid: &unpaid})
	if err != nil {
		return nil, err
	}

	today := money.Date(l.now())
	var report []OverdueLoan
	for _, loan := range loans {
		var entry *OverdueLoan
		for _, inst := range loan.Outstanding() {
			if !inst.DueDate.Before(today) {
				break
			}
			if entry == nil {
				entry = &OverdueLoan{LoanID: loan.ID, CustomerID: loan.CustomerID, Nominal: decimal.Zero, OldestDue: inst.DueDate}
			}
			entry.Installments++
			entry.Nominal = entry.Nominal.Add(inst.Amount)
		}
		if entry != nil {
			report = append(report, *entry)
		}
	}
	return report, nil
}

func loanNotFound(id uuid.UUID, scope Scope) error {
	if scope.CustomerID != nil {
		return notFound("Loan not found with ID: %s for customer %s", id, *scope.CustomerID)
	}
	return notFound("Loan not found with ID: %s", id)
}
