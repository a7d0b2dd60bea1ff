package lending

import "context"

// Store is the durable keyed storage for loans and payments. It is the
// only component that mutates persisted state; everything above it works
// on copies.
type Store interface {
	// CreateLoan persists a freshly originated loan and registers it
	// under its customer.
	CreateLoan(ctx context.Context, loan Loan) error

	// GetLoan returns the loan, including its current version, or
	// ErrNotFound.
	GetLoan(ctx context.Context, loanID string) (Loan, error)

	// PutLoanAndPayment commits the updated loan together with the
	// payment that produced it as one atomic unit. The write succeeds
	// only if the stored loan still carries loan.Version; a concurrent
	// modification yields ErrConflict and leaves state untouched.
	PutLoanAndPayment(ctx context.Context, loan Loan, payment Payment) error

	// ListPayments returns the loan's payments in the order they were
	// applied.
	ListPayments(ctx context.Context, loanID string) ([]Payment, error)

	// ListCustomerLoans returns the customer's loans in creation order.
	// An unknown customer yields an empty slice, not an error.
	ListCustomerLoans(ctx context.Context, customerID string) ([]Loan, error)
}
