package lending

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// The observed client consumes monetary fields as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true
}

// CurrencyScale is the number of fractional digits carried by every
// monetary amount in the ledger.
const CurrencyScale = 2

// Epsilon is the smallest currency unit. A loan whose balance drops to
// Epsilon or below is considered fully paid; the remainder is rounding
// residue from the original EMI division, not collectible debt.
var Epsilon = decimal.New(1, -CurrencyScale) // 0.01

// LoanStatus is the lifecycle state of a loan. There is no reopening:
// PAID_OFF is terminal.
type LoanStatus string

const (
	StatusActive  LoanStatus = "ACTIVE"
	StatusPaidOff LoanStatus = "PAID_OFF"
)

// PaymentType distinguishes a scheduled installment from an ad-hoc
// balance reduction.
type PaymentType string

const (
	PaymentEMI     PaymentType = "EMI"
	PaymentLumpSum PaymentType = "LUMP_SUM"
)

// Valid reports whether t is one of the accepted payment types.
func (t PaymentType) Valid() bool {
	return t == PaymentEMI || t == PaymentLumpSum
}

// Loan is one origination. The term fields (TotalInterest, TotalAmount,
// MonthlyEMI, EMIsTotal) are fixed at creation; AmountPaid, EMIsLeft and
// Status are the only fields that change afterwards, and only through
// applied payments.
type Loan struct {
	ID                 string          `json:"loan_id"`
	CustomerID         string          `json:"customer_id"`
	Principal          decimal.Decimal `json:"principal_amount"`
	InterestRateYearly decimal.Decimal `json:"interest_rate_yearly"`
	PeriodYears        int             `json:"loan_period_years"`
	TotalInterest      decimal.Decimal `json:"total_interest"`
	TotalAmount        decimal.Decimal `json:"total_amount"`
	MonthlyEMI         decimal.Decimal `json:"monthly_emi"`
	EMIsTotal          int             `json:"emis_total"`
	AmountPaid         decimal.Decimal `json:"amount_paid"`
	EMIsLeft           int             `json:"emis_left"`
	Status             LoanStatus      `json:"status"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`

	// Version guards optimistic concurrent updates; incremented by the
	// store on every successful PutLoanAndPayment.
	Version int64 `json:"-"`
}

// Balance is the outstanding amount still owed on the loan. A paid-off
// loan owes nothing: up to Epsilon of rounding residue is forgiven at
// payoff, so the balance is clamped rather than derived for terminal
// loans. AmountPaid stays the exact sum of applied payments either way.
func (l Loan) Balance() decimal.Decimal {
	if l.Status == StatusPaidOff {
		return decimal.Zero
	}
	b := l.TotalAmount.Sub(l.AmountPaid)
	if b.IsNegative() {
		return decimal.Zero
	}
	return b
}

// Payment is one applied transaction. Immutable and append-only: the
// ledger never edits or deletes a payment.
type Payment struct {
	ID     string          `json:"payment_id"`
	LoanID string          `json:"loan_id"`
	Amount decimal.Decimal `json:"amount"`
	Type   PaymentType     `json:"payment_type"`
	Date   time.Time       `json:"payment_date"`
}

var (
	ErrNotFound     = errors.New("loan not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrEMIMismatch  = errors.New("EMI amount does not match the monthly EMI")
	ErrOverpayment  = errors.New("payment exceeds outstanding balance")
	ErrLoanPaidOff  = errors.New("loan is already paid off")
	ErrConflict     = errors.New("concurrent update conflict")
)

// Terms holds the derived repayment figures of a simple-interest loan.
type Terms struct {
	TotalInterest decimal.Decimal
	TotalAmount   decimal.Decimal
	MonthlyEMI    decimal.Decimal
	EMIsTotal     int
}

// ComputeTerms derives the fixed repayment schedule figures:
//
//	total_interest = principal × years × rate/100
//	total_amount   = principal + total_interest
//	monthly_emi    = total_amount / (years × 12), rounded to currency scale
//
// Interest is simple: computed once on the principal for the full term,
// never recalculated on partial payoff.
func ComputeTerms(principal decimal.Decimal, years int, rateYearly decimal.Decimal) Terms {
	interest := principal.
		Mul(decimal.NewFromInt(int64(years))).
		Mul(rateYearly).
		Div(decimal.NewFromInt(100)).
		Round(CurrencyScale)
	total := principal.Add(interest)
	months := years * 12
	return Terms{
		TotalInterest: interest,
		TotalAmount:   total,
		MonthlyEMI:    total.Div(decimal.NewFromInt(int64(months))).Round(CurrencyScale),
		EMIsTotal:     months,
	}
}
