package lending

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
)

func newTestLoan(t *testing.T, svc *Service) LoanOffer {
	t.Helper()
	offer, err := svc.CreateLoan(context.Background(), "cust_001", d("10000"), 2, d("10"))
	if err != nil {
		t.Fatalf("CreateLoan failed: %v", err)
	}
	return offer
}

func TestCreateLoan(t *testing.T) {
	svc := NewService(NewInMemory())
	offer := newTestLoan(t, svc)

	if offer.LoanID == "" {
		t.Fatal("expected a loan id")
	}
	if !offer.TotalAmountPayable.Equal(d("12000")) {
		t.Fatalf("total payable = %s, want 12000", offer.TotalAmountPayable)
	}
	if !offer.MonthlyEMI.Equal(d("500.00")) {
		t.Fatalf("monthly EMI = %s, want 500.00", offer.MonthlyEMI)
	}

	view, err := svc.GetLedger(context.Background(), offer.LoanID)
	if err != nil {
		t.Fatalf("GetLedger failed: %v", err)
	}
	if !view.AmountPaid.IsZero() || !view.BalanceAmount.Equal(d("12000")) {
		t.Fatalf("fresh loan ledger: paid=%s balance=%s", view.AmountPaid, view.BalanceAmount)
	}
	if len(view.Transactions) != 0 {
		t.Fatalf("fresh loan has %d transactions", len(view.Transactions))
	}
}

func TestCreateLoanValidation(t *testing.T) {
	svc := NewService(NewInMemory())
	ctx := context.Background()

	cases := []struct {
		name      string
		customer  string
		principal decimal.Decimal
		years     int
		rate      decimal.Decimal
	}{
		{"empty customer", "  ", d("1000"), 1, d("5")},
		{"zero principal", "c1", decimal.Zero, 1, d("5")},
		{"negative principal", "c1", d("-10"), 1, d("5")},
		{"zero years", "c1", d("1000"), 0, d("5")},
		{"negative rate", "c1", d("1000"), 1, d("-1")},
		{"EMI rounds to zero", "c1", d("0.01"), 1, d("0")},
	}
	for _, tc := range cases {
		if _, err := svc.CreateLoan(ctx, tc.customer, tc.principal, tc.years, tc.rate); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("%s: got %v, want ErrInvalidInput", tc.name, err)
		}
	}
}

func TestApplyEMIPayment(t *testing.T) {
	svc := NewService(NewInMemory())
	offer := newTestLoan(t, svc)
	ctx := context.Background()

	receipt, err := svc.ApplyPayment(ctx, offer.LoanID, d("500.00"), PaymentEMI)
	if err != nil {
		t.Fatalf("ApplyPayment failed: %v", err)
	}
	if !receipt.RemainingAmount.Equal(d("11500.00")) {
		t.Fatalf("remaining = %s, want 11500.00", receipt.RemainingAmount)
	}
	if receipt.EMIsLeft == nil || *receipt.EMIsLeft != 23 {
		t.Fatalf("emi_left = %v, want 23", receipt.EMIsLeft)
	}

	view, _ := svc.GetLedger(ctx, offer.LoanID)
	if !view.AmountPaid.Equal(d("500.00")) {
		t.Fatalf("amount paid = %s, want 500.00", view.AmountPaid)
	}
}

func TestEMIMismatchRejectedAndStateUnchanged(t *testing.T) {
	svc := NewService(NewInMemory())
	offer := newTestLoan(t, svc)
	ctx := context.Background()

	if _, err := svc.ApplyPayment(ctx, offer.LoanID, d("500.00"), PaymentEMI); err != nil {
		t.Fatalf("first EMI failed: %v", err)
	}

	if _, err := svc.ApplyPayment(ctx, offer.LoanID, d("499.99"), PaymentEMI); !errors.Is(err, ErrEMIMismatch) {
		t.Fatalf("got %v, want ErrEMIMismatch", err)
	}

	view, _ := svc.GetLedger(ctx, offer.LoanID)
	if !view.AmountPaid.Equal(d("500.00")) || !view.BalanceAmount.Equal(d("11500.00")) {
		t.Fatalf("rejected payment mutated state: paid=%s balance=%s", view.AmountPaid, view.BalanceAmount)
	}
	if len(view.Transactions) != 1 {
		t.Fatalf("rejected payment recorded a transaction: %d", len(view.Transactions))
	}
}

func TestEMIOffByOneCentRejected(t *testing.T) {
	svc := NewService(NewInMemory())
	offer := newTestLoan(t, svc)
	ctx := context.Background()

	// The installment must match the schedule exactly, in either direction.
	for _, amount := range []decimal.Decimal{d("500.01"), d("499.99")} {
		if _, err := svc.ApplyPayment(ctx, offer.LoanID, amount, PaymentEMI); !errors.Is(err, ErrEMIMismatch) {
			t.Fatalf("EMI %s: got %v, want ErrEMIMismatch", amount, err)
		}
	}

	// A differently scaled representation of the same value is still a match.
	if _, err := svc.ApplyPayment(ctx, offer.LoanID, d("500"), PaymentEMI); err != nil {
		t.Fatalf("EMI 500: %v", err)
	}
}

func TestLumpSumShortensTail(t *testing.T) {
	svc := NewService(NewInMemory())
	offer := newTestLoan(t, svc)
	ctx := context.Background()

	receipt, err := svc.ApplyPayment(ctx, offer.LoanID, d("5100"), PaymentLumpSum)
	if err != nil {
		t.Fatalf("lump sum failed: %v", err)
	}
	if !receipt.RemainingAmount.Equal(d("6900")) {
		t.Fatalf("remaining = %s, want 6900", receipt.RemainingAmount)
	}
	if receipt.EMIsLeft != nil {
		t.Fatalf("lump sum receipt should omit emi_left, got %v", *receipt.EMIsLeft)
	}

	// ceil(6900 / 500) = 14 installments remain; the EMI itself is unchanged.
	overview, _ := svc.GetCustomerOverview(ctx, "cust_001")
	if overview.Loans[0].EMIsLeft != 14 {
		t.Fatalf("emis_left = %d, want 14", overview.Loans[0].EMIsLeft)
	}
	if !overview.Loans[0].MonthlyEMI.Equal(d("500.00")) {
		t.Fatalf("monthly EMI changed to %s", overview.Loans[0].MonthlyEMI)
	}
}

func TestOverpaymentRejected(t *testing.T) {
	svc := NewService(NewInMemory())
	offer := newTestLoan(t, svc)
	ctx := context.Background()

	if _, err := svc.ApplyPayment(ctx, offer.LoanID, d("12000.01"), PaymentLumpSum); !errors.Is(err, ErrOverpayment) {
		t.Fatalf("got %v, want ErrOverpayment", err)
	}
	view, _ := svc.GetLedger(ctx, offer.LoanID)
	if !view.AmountPaid.IsZero() {
		t.Fatalf("rejected overpayment mutated state: paid=%s", view.AmountPaid)
	}
}

func TestExactPayoffAndTerminalState(t *testing.T) {
	svc := NewService(NewInMemory())
	offer := newTestLoan(t, svc)
	ctx := context.Background()

	if _, err := svc.ApplyPayment(ctx, offer.LoanID, d("500.00"), PaymentEMI); err != nil {
		t.Fatalf("EMI failed: %v", err)
	}
	receipt, err := svc.ApplyPayment(ctx, offer.LoanID, d("11500.00"), PaymentLumpSum)
	if err != nil {
		t.Fatalf("payoff failed: %v", err)
	}
	if !receipt.RemainingAmount.IsZero() {
		t.Fatalf("remaining = %s, want 0", receipt.RemainingAmount)
	}

	overview, _ := svc.GetCustomerOverview(ctx, "cust_001")
	loan := overview.Loans[0]
	if loan.Status != StatusPaidOff {
		t.Fatalf("status = %s, want PAID_OFF", loan.Status)
	}
	if loan.EMIsLeft != 0 {
		t.Fatalf("emis_left = %d, want 0", loan.EMIsLeft)
	}

	// Terminal: every further payment is rejected and mutates nothing.
	for _, attempt := range []struct {
		amount decimal.Decimal
		ptype  PaymentType
	}{
		{d("500.00"), PaymentEMI},
		{d("0.01"), PaymentLumpSum},
	} {
		if _, err := svc.ApplyPayment(ctx, offer.LoanID, attempt.amount, attempt.ptype); !errors.Is(err, ErrLoanPaidOff) {
			t.Fatalf("payment after payoff: got %v, want ErrLoanPaidOff", err)
		}
	}
	view, _ := svc.GetLedger(ctx, offer.LoanID)
	if len(view.Transactions) != 2 {
		t.Fatalf("terminal loan gained transactions: %d", len(view.Transactions))
	}
}

func TestResidualPayoffClampsBalance(t *testing.T) {
	svc := NewService(NewInMemory())
	offer := newTestLoan(t, svc)
	ctx := context.Background()

	// One cent short of the total: the residue is forgiven, the loan
	// closes, and the reported balance is zero, not 0.01.
	receipt, err := svc.ApplyPayment(ctx, offer.LoanID, d("11999.99"), PaymentLumpSum)
	if err != nil {
		t.Fatalf("payoff failed: %v", err)
	}
	if !receipt.RemainingAmount.IsZero() {
		t.Fatalf("receipt remaining = %s, want 0", receipt.RemainingAmount)
	}

	view, err := svc.GetLedger(ctx, offer.LoanID)
	if err != nil {
		t.Fatalf("GetLedger failed: %v", err)
	}
	if !view.BalanceAmount.IsZero() {
		t.Fatalf("ledger balance = %s, want 0", view.BalanceAmount)
	}
	// AmountPaid records what was actually received.
	if !view.AmountPaid.Equal(d("11999.99")) {
		t.Fatalf("amount_paid = %s, want 11999.99", view.AmountPaid)
	}

	overview, _ := svc.GetCustomerOverview(ctx, "cust_001")
	if overview.Loans[0].Status != StatusPaidOff {
		t.Fatalf("status = %s, want PAID_OFF", overview.Loans[0].Status)
	}
}

func TestApplyPaymentValidation(t *testing.T) {
	svc := NewService(NewInMemory())
	offer := newTestLoan(t, svc)
	ctx := context.Background()

	if _, err := svc.ApplyPayment(ctx, offer.LoanID, decimal.Zero, PaymentEMI); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("zero amount: got %v", err)
	}
	if _, err := svc.ApplyPayment(ctx, offer.LoanID, d("-5"), PaymentLumpSum); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("negative amount: got %v", err)
	}
	if _, err := svc.ApplyPayment(ctx, offer.LoanID, d("500"), PaymentType("INSTALLMENT")); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("bad type: got %v", err)
	}
	if _, err := svc.ApplyPayment(ctx, "no-such-loan", d("500"), PaymentEMI); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown loan: got %v", err)
	}
}

func TestLedgerReconciles(t *testing.T) {
	svc := NewService(NewInMemory())
	offer := newTestLoan(t, svc)
	ctx := context.Background()

	svcPayments := []struct {
		amount decimal.Decimal
		ptype  PaymentType
	}{
		{d("500.00"), PaymentEMI},
		{d("1234.56"), PaymentLumpSum},
		{d("500.00"), PaymentEMI},
	}
	for _, p := range svcPayments {
		if _, err := svc.ApplyPayment(ctx, offer.LoanID, p.amount, p.ptype); err != nil {
			t.Fatalf("payment %+v failed: %v", p, err)
		}
	}

	view, err := svc.GetLedger(ctx, offer.LoanID)
	if err != nil {
		t.Fatalf("GetLedger failed: %v", err)
	}
	sum := decimal.Zero
	for _, tx := range view.Transactions {
		sum = sum.Add(tx.Amount)
	}
	if !sum.Equal(view.AmountPaid) {
		t.Fatalf("payments sum %s != amount_paid %s", sum, view.AmountPaid)
	}
	if !view.BalanceAmount.Equal(view.TotalAmount.Sub(view.AmountPaid)) {
		t.Fatalf("balance %s inconsistent with total %s - paid %s", view.BalanceAmount, view.TotalAmount, view.AmountPaid)
	}

	// Reads are idempotent.
	again, _ := svc.GetLedger(ctx, offer.LoanID)
	if !again.AmountPaid.Equal(view.AmountPaid) || len(again.Transactions) != len(view.Transactions) {
		t.Fatal("repeated GetLedger returned different values")
	}
}

func TestCustomerOverview(t *testing.T) {
	svc := NewService(NewInMemory())
	ctx := context.Background()

	first, _ := svc.CreateLoan(ctx, "cust_009", d("10000"), 2, d("10"))
	second, _ := svc.CreateLoan(ctx, "cust_009", d("2400"), 1, d("0"))

	overview, err := svc.GetCustomerOverview(ctx, "cust_009")
	if err != nil {
		t.Fatalf("GetCustomerOverview failed: %v", err)
	}
	if overview.TotalLoans != 2 || len(overview.Loans) != 2 {
		t.Fatalf("total_loans = %d, len = %d", overview.TotalLoans, len(overview.Loans))
	}
	// Stable listing by creation order.
	if overview.Loans[0].LoanID != first.LoanID || overview.Loans[1].LoanID != second.LoanID {
		t.Fatalf("loans out of creation order: %s, %s", overview.Loans[0].LoanID, overview.Loans[1].LoanID)
	}
	if overview.Loans[1].PeriodYears != 1 || overview.Loans[1].EMIsLeft != 12 {
		t.Fatalf("summary fields wrong: %+v", overview.Loans[1])
	}
}

func TestUnknownCustomerOverviewIsEmpty(t *testing.T) {
	svc := NewService(NewInMemory())
	overview, err := svc.GetCustomerOverview(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if overview.TotalLoans != 0 || len(overview.Loans) != 0 {
		t.Fatalf("expected empty overview, got %+v", overview)
	}
	if overview.Loans == nil {
		t.Fatal("loans must serialize as [], not null")
	}
}

func TestConcurrentEMIPayments(t *testing.T) {
	svc := NewService(NewInMemory())
	ctx := context.Background()
	// 1200 at 0% over 1 year: EMI 100, so at most 12 installments can
	// land before the loan pays off.
	offer, err := svc.CreateLoan(ctx, "cust_race", d("1200"), 1, d("0"))
	if err != nil {
		t.Fatalf("CreateLoan failed: %v", err)
	}

	const n = 40 // more attempts than the 12 EMIs the loan can absorb
	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted, rejected := 0, 0
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.ApplyPayment(ctx, offer.LoanID, d("100"), PaymentEMI)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				accepted++
			case errors.Is(err, ErrLoanPaidOff), errors.Is(err, ErrConflict), errors.Is(err, ErrOverpayment):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	view, _ := svc.GetLedger(ctx, offer.LoanID)
	sum := decimal.Zero
	for _, tx := range view.Transactions {
		sum = sum.Add(tx.Amount)
	}
	if !sum.Equal(view.AmountPaid) {
		t.Fatalf("reconciliation broken under concurrency: %s != %s", sum, view.AmountPaid)
	}
	if view.AmountPaid.GreaterThan(view.TotalAmount) {
		t.Fatalf("amount_paid %s exceeds total %s", view.AmountPaid, view.TotalAmount)
	}
	if accepted != len(view.Transactions) {
		t.Fatalf("accepted %d but %d transactions recorded", accepted, len(view.Transactions))
	}
	if accepted+rejected != n {
		t.Fatalf("accounted %d of %d attempts", accepted+rejected, n)
	}
}
