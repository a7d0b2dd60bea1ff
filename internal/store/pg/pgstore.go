// Package pg implements the lending store on PostgreSQL.
package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"lendcore.org/internal/lending"
)

type Store struct {
	db *sql.DB
}

var _ lending.Store = (*Store)(nil)

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing connection pool (used by tests).
func NewWithDB(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

const loanColumns = `id, customer_id, principal, interest_rate_yearly, period_years,
	total_interest, total_amount, monthly_emi, emis_total,
	amount_paid, emis_left, status, created_at, updated_at, version`

func (s *Store) CreateLoan(ctx context.Context, loan lending.Loan) error {
	_, err := s.db.ExecContext(ctx, `
		insert into loans(`+loanColumns+`)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
	`,
		loan.ID, loan.CustomerID, loan.Principal, loan.InterestRateYearly, loan.PeriodYears,
		loan.TotalInterest, loan.TotalAmount, loan.MonthlyEMI, loan.EMIsTotal,
		loan.AmountPaid, loan.EMIsLeft, string(loan.Status), loan.CreatedAt, loan.UpdatedAt, loan.Version,
	)
	return err
}

func (s *Store) GetLoan(ctx context.Context, loanID string) (lending.Loan, error) {
	row := s.db.QueryRowContext(ctx, `select `+loanColumns+` from loans where id=$1`, loanID)
	loan, err := scanLoan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return lending.Loan{}, lending.ErrNotFound
	}
	return loan, err
}

// PutLoanAndPayment commits the updated loan and its payment in one
// transaction. The update is guarded by the loan version read earlier;
// a concurrent writer makes it match zero rows, which surfaces as
// ErrConflict so the service can retry from a fresh read.
func (s *Store) PutLoanAndPayment(ctx context.Context, loan lending.Loan, payment lending.Payment) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		update loans
		set amount_paid=$1, emis_left=$2, status=$3, updated_at=$4, version=version+1
		where id=$5 and version=$6
	`, loan.AmountPaid, loan.EMIsLeft, string(loan.Status), loan.UpdatedAt, loan.ID, loan.Version)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		var exists bool
		if err := tx.QueryRowContext(ctx, `select exists(select 1 from loans where id=$1)`, loan.ID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return lending.ErrNotFound
		}
		return lending.ErrConflict
	}

	if _, err := tx.ExecContext(ctx, `
		insert into payments(id, loan_id, amount, payment_type, paid_at)
		values ($1,$2,$3,$4,$5)
	`, payment.ID, payment.LoanID, payment.Amount, string(payment.Type), payment.Date); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *Store) ListPayments(ctx context.Context, loanID string) ([]lending.Payment, error) {
	var exists bool
	if err := s.db.QueryRowContext(ctx, `select exists(select 1 from loans where id=$1)`, loanID).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, lending.ErrNotFound
	}

	rows, err := s.db.QueryContext(ctx, `
		select id, loan_id, amount, payment_type, paid_at
		from payments
		where loan_id=$1
		order by seq asc
	`, loanID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []lending.Payment
	for rows.Next() {
		var p lending.Payment
		var ptype string
		if err := rows.Scan(&p.ID, &p.LoanID, &p.Amount, &ptype, &p.Date); err != nil {
			return nil, err
		}
		p.Type = lending.PaymentType(ptype)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) ListCustomerLoans(ctx context.Context, customerID string) ([]lending.Loan, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+loanColumns+`
		from loans
		where customer_id=$1
		order by created_at asc, id asc
	`, customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []lending.Loan
	for rows.Next() {
		loan, err := scanLoan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, loan)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLoan(row rowScanner) (lending.Loan, error) {
	var l lending.Loan
	var status string
	err := row.Scan(
		&l.ID, &l.CustomerID, &l.Principal, &l.InterestRateYearly, &l.PeriodYears,
		&l.TotalInterest, &l.TotalAmount, &l.MonthlyEMI, &l.EMIsTotal,
		&l.AmountPaid, &l.EMIsLeft, &status, &l.CreatedAt, &l.UpdatedAt, &l.Version,
	)
	if err != nil {
		return lending.Loan{}, err
	}
	l.Status = lending.LoanStatus(status)
	return l, nil
}
