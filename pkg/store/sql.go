package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/mcclellann/fredCredit/pkg/models"
	"github.com/mcclellann/fredCredit/pkg/money"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLStore manages the database connection and operations. It speaks to
// SQLite or Postgres; queries are written with ? placeholders and rebound
// for Postgres.
type SQLStore struct {
	db     *sql.DB
	q      querier
	driver string
	inTx   bool
}

// NewSQLiteStore opens (or creates) a SQLite database file.
func NewSQLiteStore(dataSourceName string) (*SQLStore, error) {
	return NewSQLStore(DriverSQLite, dataSourceName)
}

// NewSQLStore opens a database with the given driver and initializes the schema.
func NewSQLStore(driver, dataSourceName string) (*SQLStore, error) {
	switch driver {
	case DriverSQLite:
		dataSourceName = sqliteDSN(dataSourceName)
	case DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sql.Open(driver, dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}
	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not connect to database: %w", err)
	}

	s := &SQLStore{db: db, q: db, driver: driver}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not initialize schema: %w", err)
	}
	return s, nil
}

// sqliteDefaults are per-connection pragmas, so they travel in the DSN.
var sqliteDefaults = [][2]string{
	{"_foreign_keys", "on"},
	{"_journal_mode", "WAL"},
	{"_busy_timeout", "5000"},
}

// sqliteDSN adds each default the caller has not set, keeping any
// parameters already present.
func sqliteDSN(dsn string) string {
	base, rawQuery, _ := strings.Cut(dsn, "?")
	params, err := url.ParseQuery(rawQuery)
	if err != nil {
		params = url.Values{}
	}
	var extra []string
	for _, kv := range sqliteDefaults {
		if _, ok := params[kv[0]]; !ok {
			extra = append(extra, kv[0]+"="+kv[1])
		}
	}
	if len(extra) == 0 {
		return dsn
	}
	if rawQuery == "" {
		return base + "?" + strings.Join(extra, "&")
	}
	return base + "?" + rawQuery + "&" + strings.Join(extra, "&")
}

// initSchema creates the tables if they don't already exist.
// Decimal fields are TEXT so no precision is lost.
func (s *SQLStore) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS customers (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		surname TEXT NOT NULL,
		credit_limit TEXT NOT NULL,
		used_credit_limit TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);
	CREATE TABLE IF NOT EXISTS loans (
		id TEXT PRIMARY KEY,
		customer_id TEXT NOT NULL REFERENCES customers(id),
		principal TEXT NOT NULL,
		total_with_interest TEXT NOT NULL,
		interest_rate TEXT NOT NULL,
		installment_count INTEGER NOT NULL,
		create_date DATE NOT NULL,
		paid BOOLEAN NOT NULL DEFAULT FALSE
	);
	CREATE INDEX IF NOT EXISTS idx_loans_customer_id ON loans(customer_id);
	CREATE TABLE IF NOT EXISTS installments (
		id TEXT PRIMARY KEY,
		loan_id TEXT NOT NULL REFERENCES loans(id),
		amount TEXT NOT NULL,
		paid_amount TEXT NOT NULL,
		due_date DATE NOT NULL,
		payment_date DATE,
		paid BOOLEAN NOT NULL DEFAULT FALSE,
		UNIQUE (loan_id, due_date)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// rebind rewrites ? placeholders to $n for Postgres.
func (s *SQLStore) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLStore) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.q.ExecContext(ctx, s.rebind(query), args...)
}

func (s *SQLStore) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.q.QueryContext(ctx, s.rebind(query), args...)
}

func (s *SQLStore) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.q.QueryRowContext(ctx, s.rebind(query), args...)
}

// WithTx runs fn inside a database transaction. Nested calls reuse the
// outer transaction.
func (s *SQLStore) WithTx(ctx context.Context, fn func(Storage) error) error {
	if s.inTx {
		return fn(s)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&SQLStore{db: s.db, q: tx, driver: s.driver, inTx: true}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// CreateCustomer inserts a new customer.
func (s *SQLStore) CreateCustomer(ctx context.Context, c *models.Customer) error {
	_, err := s.exec(ctx,
		`INSERT INTO customers (id, name, surname, credit_limit, used_credit_limit, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID.String(), c.Name, c.Surname, c.CreditLimit, c.UsedCreditLimit, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create customer: %w", err)
	}
	return nil
}

// GetCustomer retrieves a customer by its ID.
func (s *SQLStore) GetCustomer(ctx context.Context, id uuid.UUID) (*models.Customer, error) {
	var c models.Customer
	row := s.queryRow(ctx, `SELECT id, name, surname, credit_limit, used_credit_limit, created_at, updated_at FROM customers WHERE id = ?`, id.String())
	err := row.Scan(&c.ID, &c.Name, &c.Surname, &c.CreditLimit, &c.UsedCreditLimit, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("customer %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}
	return &c, nil
}

// UpdateCustomer persists a customer's limits.
func (s *SQLStore) UpdateCustomer(ctx context.Context, c *models.Customer) error {
	result, err := s.exec(ctx,
		`UPDATE customers SET name = ?, surname = ?, credit_limit = ?, used_credit_limit = ?, updated_at = ? WHERE id = ?`,
		c.Name, c.Surname, c.CreditLimit, c.UsedCreditLimit, c.UpdatedAt, c.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to update customer: %w", err)
	}
	return expectOneRow(result, "customer", c.ID)
}

// CreateLoan inserts a loan and its installments.
func (s *SQLStore) CreateLoan(ctx context.Context, loan *models.Loan) error {
	return s.WithTx(ctx, func(tx Storage) error {
		ts := tx.(*SQLStore)
		_, err := ts.exec(ctx,
			`INSERT INTO loans (id, customer_id, principal, total_with_interest, interest_rate, installment_count, create_date, paid)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			loan.ID.String(), loan.CustomerID.String(), loan.Principal, loan.TotalWithInterest, loan.InterestRate,
			loan.InstallmentCount, loan.CreateDate, loan.Paid,
		)
		if err != nil {
			return fmt.Errorf("failed to create loan: %w", err)
		}

		for _, inst := range loan.Installments {
			_, err := ts.exec(ctx,
				`INSERT INTO installments (id, loan_id, amount, paid_amount, due_date, payment_date, paid)
				VALUES (?, ?, ?, ?, ?, ?, ?)`,
				inst.ID.String(), loan.ID.String(), inst.Amount, inst.PaidAmount, inst.DueDate, inst.PaymentDate, inst.Paid,
			)
			if err != nil {
				return fmt.Errorf("failed to create installment: %w", err)
			}
		}
		return nil
	})
}

const loanColumns = `id, customer_id, principal, total_with_interest, interest_rate, installment_count, create_date, paid`

// GetLoan retrieves a loan and its schedule.
func (s *SQLStore) GetLoan(ctx context.Context, id uuid.UUID) (*models.Loan, error) {
	row := s.queryRow(ctx, `SELECT `+loanColumns+` FROM loans WHERE id = ?`, id.String())
	loan, err := scanLoan(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("loan %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get loan: %w", err)
	}

	loan.Installments, err = s.GetInstallments(ctx, loan.ID)
	if err != nil {
		return nil, err
	}
	return loan, nil
}

// UpdateLoan persists the loan's paid flag.
func (s *SQLStore) UpdateLoan(ctx context.Context, loan *models.Loan) error {
	result, err := s.exec(ctx, `UPDATE loans SET paid = ? WHERE id = ?`, loan.Paid, loan.ID.String())
	if err != nil {
		return fmt.Errorf("failed to update loan: %w", err)
	}
	return expectOneRow(result, "loan", loan.ID)
}

// ListLoans retrieves the loans matching filter, oldest first.
func (s *SQLStore) ListLoans(ctx context.Context, filter models.LoanFilter) ([]*models.Loan, error) {
	var (
		where []string
		args  []any
	)
	if filter.CustomerID != nil {
		where = append(where, "customer_id = ?")
		args = append(args, filter.CustomerID.String())
	}
	if filter.InstallmentCount != nil {
		where = append(where, "installment_count = ?")
		args = append(args, *filter.InstallmentCount)
	}
	if filter.Paid != nil {
		where = append(where, "paid = ?")
		args = append(args, *filter.Paid)
	}

	q := `SELECT ` + loanColumns + ` FROM loans`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY create_date ASC, id ASC`

	rows, err := s.query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list loans: %w", err)
	}
	var loans []*models.Loan
	for rows.Next() {
		loan, err := scanLoan(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan loan row: %w", err)
		}
		loans = append(loans, loan)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	rows.Close()

	// Installments are loaded after the cursor is closed; SQLite runs on a
	// single connection.
	for _, loan := range loans {
		if loan.Installments, err = s.GetInstallments(ctx, loan.ID); err != nil {
			return nil, err
		}
	}
	return loans, nil
}

// GetInstallments retrieves a loan's installments in due-date order.
func (s *SQLStore) GetInstallments(ctx context.Context, loanID uuid.UUID) ([]*models.Installment, error) {
	rows, err := s.query(ctx,
		`SELECT id, loan_id, amount, paid_amount, due_date, payment_date, paid FROM installments WHERE loan_id = ? ORDER BY due_date ASC`,
		loanID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get installments for loan %s: %w", loanID, err)
	}
	defer rows.Close()

	var installments []*models.Installment
	for rows.Next() {
		var inst models.Installment
		var paymentDate sql.NullTime
		if err := rows.Scan(&inst.ID, &inst.LoanID, &inst.Amount, &inst.PaidAmount, &inst.DueDate, &paymentDate, &inst.Paid); err != nil {
			return nil, fmt.Errorf("failed to scan installment row: %w", err)
		}
		inst.DueDate = money.Date(inst.DueDate)
		if paymentDate.Valid {
			d := money.Date(paymentDate.Time)
			inst.PaymentDate = &d
		}
		installments = append(installments, &inst)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration for installments: %w", err)
	}
	return installments, nil
}

// UpdateInstallment persists an installment's settlement fields.
func (s *SQLStore) UpdateInstallment(ctx context.Context, inst *models.Installment) error {
	result, err := s.exec(ctx,
		`UPDATE installments SET paid_amount = ?, payment_date = ?, paid = ? WHERE id = ?`,
		inst.PaidAmount, inst.PaymentDate, inst.Paid, inst.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to update installment: %w", err)
	}
	return expectOneRow(result, "installment", inst.ID)
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLoan(row rowScanner) (*models.Loan, error) {
	var loan models.Loan
	if err := row.Scan(&loan.ID, &loan.CustomerID, &loan.Principal, &loan.TotalWithInterest, &loan.InterestRate,
		&loan.InstallmentCount, &loan.CreateDate, &loan.Paid); err != nil {
		return nil, err
	}
	loan.CreateDate = money.Date(loan.CreateDate)
	return &loan, nil
}

func expectOneRow(result sql.Result, what string, id uuid.UUID) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", what, id, ErrNotFound)
	}
	return nil
}
