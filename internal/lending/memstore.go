package lending

import (
	"context"
	"sync"
)

// InMemory implements Store with in-process concurrency safety. Useful
// for tests and for running the API without a database.
type InMemory struct {
	mu       sync.RWMutex
	loans    map[string]*Loan
	payments map[string][]Payment // loan_id -> applied payments, in order
	byCust   map[string][]string  // customer_id -> loan ids, creation order
}

var _ Store = (*InMemory)(nil)

// NewInMemory creates an empty store.
func NewInMemory() *InMemory {
	return &InMemory{
		loans:    make(map[string]*Loan),
		payments: make(map[string][]Payment),
		byCust:   make(map[string][]string),
	}
}

func (s *InMemory) CreateLoan(ctx context.Context, loan Loan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := loan
	s.loans[loan.ID] = &cp
	s.byCust[loan.CustomerID] = append(s.byCust[loan.CustomerID], loan.ID)
	return nil
}

func (s *InMemory) GetLoan(ctx context.Context, loanID string) (Loan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.loans[loanID]
	if !ok {
		return Loan{}, ErrNotFound
	}
	return *l, nil
}

func (s *InMemory) PutLoanAndPayment(ctx context.Context, loan Loan, payment Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.loans[loan.ID]
	if !ok {
		return ErrNotFound
	}
	if cur.Version != loan.Version {
		return ErrConflict
	}
	cp := loan
	cp.Version++
	s.loans[loan.ID] = &cp
	s.payments[loan.ID] = append(s.payments[loan.ID], payment)
	return nil
}

func (s *InMemory) ListPayments(ctx context.Context, loanID string) ([]Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.loans[loanID]; !ok {
		return nil, ErrNotFound
	}
	out := make([]Payment, len(s.payments[loanID]))
	copy(out, s.payments[loanID])
	return out, nil
}

func (s *InMemory) ListCustomerLoans(ctx context.Context, customerID string) ([]Loan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byCust[customerID]
	out := make([]Loan, 0, len(ids))
	for _, id := range ids {
		if l, ok := s.loans[id]; ok {
			out = append(out, *l)
		}
	}
	return out, nil
}
