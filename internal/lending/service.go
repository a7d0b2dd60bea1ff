package lending

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"lendcore.org/internal/ids"
)

// maxPaymentRetries bounds the optimistic read-modify-write loop in
// ApplyPayment. A payment that still loses the race after this many
// attempts fails with ErrConflict; the caller may safely retry.
const maxPaymentRetries = 5

// Service originates loans, applies payments and answers ledger queries
// on top of a Store. Payments against the same loan are serialized by the
// store's versioned compare-and-swap; different loans proceed in parallel.
type Service struct {
	store Store
}

// NewService wires a Service over the given store.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// LoanOffer is the creation result returned to the applicant.
type LoanOffer struct {
	LoanID             string          `json:"loan_id"`
	CustomerID         string          `json:"customer_id"`
	TotalAmountPayable decimal.Decimal `json:"total_amount_payable"`
	MonthlyEMI         decimal.Decimal `json:"monthly_emi"`
}

// PaymentReceipt is the result of a successfully applied payment.
// EMIsLeft is populated for EMI payments only.
type PaymentReceipt struct {
	PaymentID       string          `json:"payment_id"`
	LoanID          string          `json:"loan_id"`
	RemainingAmount decimal.Decimal `json:"remaining_amount"`
	PaymentType     PaymentType     `json:"payment_type"`
	EMIsLeft        *int            `json:"emi_left,omitempty"`
	Message         string          `json:"message"`
}

// LedgerView is the read-only projection of one loan and its full
// transaction history.
type LedgerView struct {
	LoanID        string          `json:"loan_id"`
	CustomerID    string          `json:"customer_id"`
	Principal     decimal.Decimal `json:"principal"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	AmountPaid    decimal.Decimal `json:"amount_paid"`
	BalanceAmount decimal.Decimal `json:"balance_amount"`
	MonthlyEMI    decimal.Decimal `json:"monthly_emi"`
	Transactions  []Payment       `json:"transactions"`
}

// LoanSummary is one row of a customer overview.
type LoanSummary struct {
	LoanID       string          `json:"loan_id"`
	Status       LoanStatus      `json:"status"`
	Principal    decimal.Decimal `json:"principal_amount"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
	MonthlyEMI   decimal.Decimal `json:"monthly_emi"`
	EMIsLeft     int             `json:"emis_left"`
	InterestRate decimal.Decimal `json:"interest_rate"`
	PeriodYears  int             `json:"loan_period_years"`
}

// CustomerOverview lists all loans of one customer. Unknown customers get
// an empty overview, not an error: speculative lookups are tolerated.
type CustomerOverview struct {
	CustomerID string        `json:"customer_id"`
	TotalLoans int           `json:"total_loans"`
	Loans      []LoanSummary `json:"loans"`
}

// CreateLoan validates the application, derives the simple-interest
// repayment terms and persists the new loan under the customer.
func (s *Service) CreateLoan(ctx context.Context, customerID string, principal decimal.Decimal, periodYears int, rateYearly decimal.Decimal) (LoanOffer, error) {
	if strings.TrimSpace(customerID) == "" {
		return LoanOffer{}, ErrInvalidInput
	}
	if !principal.IsPositive() || periodYears <= 0 || rateYearly.IsNegative() {
		return LoanOffer{}, ErrInvalidInput
	}

	terms := ComputeTerms(principal, periodYears, rateYearly)
	if !terms.MonthlyEMI.IsPositive() {
		// Principal too small for the term: the installment rounds to
		// nothing and no schedule can repay the loan.
		return LoanOffer{}, ErrInvalidInput
	}
	now := time.Now().UTC()
	loan := Loan{
		ID:                 ids.New(),
		CustomerID:         customerID,
		Principal:          principal,
		InterestRateYearly: rateYearly,
		PeriodYears:        periodYears,
		TotalInterest:      terms.TotalInterest,
		TotalAmount:        terms.TotalAmount,
		MonthlyEMI:         terms.MonthlyEMI,
		EMIsTotal:          terms.EMIsTotal,
		AmountPaid:         decimal.Zero,
		EMIsLeft:           terms.EMIsTotal,
		Status:             StatusActive,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.store.CreateLoan(ctx, loan); err != nil {
		return LoanOffer{}, err
	}
	return LoanOffer{
		LoanID:             loan.ID,
		CustomerID:         loan.CustomerID,
		TotalAmountPayable: loan.TotalAmount,
		MonthlyEMI:         loan.MonthlyEMI,
	}, nil
}

// ApplyPayment validates and applies one payment against a loan.
//
// All validation happens before any mutation; the updated loan and the
// payment record are committed as one atomic store update, so a rejected
// or conflicted payment is never partially visible. Lost races against
// concurrent payments on the same loan are retried up to
// maxPaymentRetries.
func (s *Service) ApplyPayment(ctx context.Context, loanID string, amount decimal.Decimal, ptype PaymentType) (PaymentReceipt, error) {
	if !amount.IsPositive() || !ptype.Valid() {
		return PaymentReceipt{}, ErrInvalidInput
	}

	for attempt := 0; attempt < maxPaymentRetries; attempt++ {
		loan, err := s.store.GetLoan(ctx, loanID)
		if err != nil {
			return PaymentReceipt{}, err
		}
		if loan.Status == StatusPaidOff {
			return PaymentReceipt{}, ErrLoanPaidOff
		}

		balance := loan.Balance()
		switch ptype {
		case PaymentEMI:
			// An installment must match the schedule to the cent.
			if !amount.Equal(loan.MonthlyEMI) {
				return PaymentReceipt{}, ErrEMIMismatch
			}
			if amount.Sub(balance).GreaterThan(Epsilon) {
				// Residual smaller than one EMI; must be cleared
				// with a lump sum instead.
				return PaymentReceipt{}, ErrOverpayment
			}
		case PaymentLumpSum:
			if amount.GreaterThan(balance) {
				return PaymentReceipt{}, ErrOverpayment
			}
		}

		updated := loan
		updated.AmountPaid = loan.AmountPaid.Add(amount)
		switch ptype {
		case PaymentEMI:
			if updated.EMIsLeft > 0 {
				updated.EMIsLeft--
			}
		case PaymentLumpSum:
			// A lump sum shortens the tail of the schedule; the EMI
			// amount itself never changes.
			updated.EMIsLeft = int(updated.Balance().Div(loan.MonthlyEMI).Ceil().IntPart())
		}
		if updated.Balance().LessThanOrEqual(Epsilon) {
			updated.Status = StatusPaidOff
			updated.EMIsLeft = 0
		}
		updated.UpdatedAt = time.Now().UTC()

		payment := Payment{
			ID:     ids.New(),
			LoanID: loan.ID,
			Amount: amount,
			Type:   ptype,
			Date:   updated.UpdatedAt,
		}

		err = s.store.PutLoanAndPayment(ctx, updated, payment)
		if err == ErrConflict {
			continue
		}
		if err != nil {
			return PaymentReceipt{}, err
		}

		receipt := PaymentReceipt{
			PaymentID:       payment.ID,
			LoanID:          loan.ID,
			RemainingAmount: updated.Balance(),
			PaymentType:     ptype,
			Message:         "Payment recorded successfully.",
		}
		if ptype == PaymentEMI {
			left := updated.EMIsLeft
			receipt.EMIsLeft = &left
		}
		if updated.Status == StatusPaidOff {
			receipt.Message = "Payment recorded. Loan fully paid off."
		}
		return receipt, nil
	}
	return PaymentReceipt{}, ErrConflict
}

// GetLedger returns the loan's current figures and its ordered
// transaction history.
func (s *Service) GetLedger(ctx context.Context, loanID string) (LedgerView, error) {
	loan, err := s.store.GetLoan(ctx, loanID)
	if err != nil {
		return LedgerView{}, err
	}
	payments, err := s.store.ListPayments(ctx, loanID)
	if err != nil {
		return LedgerView{}, err
	}
	if payments == nil {
		payments = []Payment{}
	}
	return LedgerView{
		LoanID:        loan.ID,
		CustomerID:    loan.CustomerID,
		Principal:     loan.Principal,
		TotalAmount:   loan.TotalAmount,
		AmountPaid:    loan.AmountPaid,
		BalanceAmount: loan.Balance(),
		MonthlyEMI:    loan.MonthlyEMI,
		Transactions:  payments,
	}, nil
}

// GetCustomerOverview summarises every loan held by the customer.
func (s *Service) GetCustomerOverview(ctx context.Context, customerID string) (CustomerOverview, error) {
	loans, err := s.store.ListCustomerLoans(ctx, customerID)
	if err != nil {
		return CustomerOverview{}, err
	}
	out := CustomerOverview{
		CustomerID: customerID,
		TotalLoans: len(loans),
		Loans:      make([]LoanSummary, 0, len(loans)),
	}
	for _, l := range loans {
		out.Loans = append(out.Loans, LoanSummary{
			LoanID:       l.ID,
			Status:       l.Status,
			Principal:    l.Principal,
			TotalAmount:  l.TotalAmount,
			MonthlyEMI:   l.MonthlyEMI,
			EMIsLeft:     l.EMIsLeft,
			InterestRate: l.InterestRateYearly,
			PeriodYears:  l.PeriodYears,
		})
	}
	return out, nil
}
