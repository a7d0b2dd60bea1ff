// Command smoke-ledger exercises a running API end to end: it originates
// a loan, pays two EMIs, clears the rest with a lump sum and checks that
// the ledger reconciles.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/shopspring/decimal"
)

type loanOffer struct {
	LoanID             string          `json:"loan_id"`
	CustomerID         string          `json:"customer_id"`
	TotalAmountPayable decimal.Decimal `json:"total_amount_payable"`
	MonthlyEMI         decimal.Decimal `json:"monthly_emi"`
}

type paymentReceipt struct {
	PaymentID       string          `json:"payment_id"`
	RemainingAmount decimal.Decimal `json:"remaining_amount"`
	Message         string          `json:"message"`
}

type ledgerView struct {
	AmountPaid    decimal.Decimal `json:"amount_paid"`
	BalanceAmount decimal.Decimal `json:"balance_amount"`
	Transactions  []struct {
		Amount decimal.Decimal `json:"amount"`
	} `json:"transactions"`
}

func main() {
	base := os.Getenv("LENDCORE_API_URL")
	if base == "" {
		base = "http://localhost:8080"
	}
	client := &http.Client{Timeout: 5 * time.Second}

	var offer loanOffer
	call(client, http.MethodPost, base+"/api/v1/loans", map[string]any{
		"customer_id":          fmt.Sprintf("smoke-%d", time.Now().UnixNano()),
		"loan_amount":          10000,
		"loan_period_years":    2,
		"interest_rate_yearly": 10,
	}, &offer)

	var receipt paymentReceipt
	for i := 0; i < 2; i++ {
		call(client, http.MethodPost, base+"/api/v1/loans/"+offer.LoanID+"/payments", map[string]any{
			"amount":       offer.MonthlyEMI,
			"payment_type": "EMI",
		}, &receipt)
	}

	call(client, http.MethodPost, base+"/api/v1/loans/"+offer.LoanID+"/payments", map[string]any{
		"amount":       receipt.RemainingAmount,
		"payment_type": "LUMP_SUM",
	}, &receipt)
	if !receipt.RemainingAmount.IsZero() {
		log.Fatalf("expected zero balance after payoff, got %s", receipt.RemainingAmount)
	}

	var view ledgerView
	call(client, http.MethodGet, base+"/api/v1/loans/"+offer.LoanID+"/ledger", nil, &view)

	sum := decimal.Zero
	for _, tx := range view.Transactions {
		sum = sum.Add(tx.Amount)
	}
	if !sum.Equal(view.AmountPaid) {
		log.Fatalf("ledger does not reconcile: payments sum %s, amount_paid %s", sum, view.AmountPaid)
	}
	if !view.BalanceAmount.IsZero() {
		log.Fatalf("expected zero ledger balance, got %s", view.BalanceAmount)
	}

	fmt.Printf("smoke test passed: loan=%s payments=%d\n", offer.LoanID, len(view.Transactions))
}

func call(client *http.Client, method, url string, body any, out any) {
	var payload *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			log.Fatalf("marshal %s: %v", url, err)
		}
		payload = bytes.NewReader(data)
	} else {
		payload = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, url, payload)
	if err != nil {
		log.Fatalf("request %s: %v", url, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := client.Do(req)
	if err != nil {
		log.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		log.Fatalf("%s %s: status %d: %s", method, url, resp.StatusCode, e.Error)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		log.Fatalf("decode %s: %v", url, err)
	}
}
