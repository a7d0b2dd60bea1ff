package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"lendcore.org/internal/audit"
	"lendcore.org/internal/lending"
	"lendcore.org/internal/obs"
	"lendcore.org/internal/stream"
)

type createLoanRequest struct {
	CustomerID         string          `json:"customer_id"`
	LoanAmount         decimal.Decimal `json:"loan_amount"`
	LoanPeriodYears    int             `json:"loan_period_years"`
	InterestRateYearly decimal.Decimal `json:"interest_rate_yearly"`
}

type applyPaymentRequest struct {
	Amount      decimal.Decimal     `json:"amount"`
	PaymentType lending.PaymentType `json:"payment_type"`
}

func (a *API) createLoan(w http.ResponseWriter, r *http.Request) {
	var req createLoanRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	offer, err := a.svc.CreateLoan(r.Context(), req.CustomerID, req.LoanAmount, req.LoanPeriodYears, req.InterestRateYearly)
	if err != nil {
		handleLendingError(w, r, err)
		return
	}
	obs.LoanCreated()

	a.audit(r, "lending.loan.create", map[string]any{
		"loan_id":     offer.LoanID,
		"customer_id": offer.CustomerID,
		"principal":   req.LoanAmount.StringFixed(lending.CurrencyScale),
	})

	w.Header().Set("Location", "/api/v1/loans/"+offer.LoanID+"/ledger")
	writeJSON(w, http.StatusCreated, offer)
}

func (a *API) applyPayment(w http.ResponseWriter, r *http.Request) {
	loanID := mux.Vars(r)["loan_id"]

	var req applyPaymentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	receipt, err := a.svc.ApplyPayment(r.Context(), loanID, req.Amount, req.PaymentType)
	if err != nil {
		obs.PaymentObserved(string(req.PaymentType), paymentOutcome(err))
		if errors.Is(err, lending.ErrConflict) {
			obs.PaymentConflict()
		}
		handleLendingError(w, r, err)
		return
	}
	obs.PaymentObserved(string(receipt.PaymentType), "applied")

	a.audit(r, "lending.payment.apply", map[string]any{
		"loan_id":      loanID,
		"payment_id":   receipt.PaymentID,
		"payment_type": string(receipt.PaymentType),
		"amount":       req.Amount.StringFixed(lending.CurrencyScale),
	})

	if a.stream != nil {
		a.stream.Publish(stream.PaymentEvent{
			LoanID:      loanID,
			PaymentID:   receipt.PaymentID,
			PaymentType: string(receipt.PaymentType),
			Amount:      req.Amount,
			Remaining:   receipt.RemainingAmount,
			PaidOff:     receipt.RemainingAmount.IsZero(),
			Timestamp:   time.Now().UTC(),
		})
	}

	writeJSON(w, http.StatusCreated, receipt)
}

func (a *API) getLedger(w http.ResponseWriter, r *http.Request) {
	view, err := a.svc.GetLedger(r.Context(), mux.Vars(r)["loan_id"])
	if err != nil {
		handleLendingError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *API) customerOverview(w http.ResponseWriter, r *http.Request) {
	overview, err := a.svc.GetCustomerOverview(r.Context(), mux.Vars(r)["customer_id"])
	if err != nil {
		handleLendingError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, overview)
}

func (a *API) audit(r *http.Request, event string, fields map[string]any) {
	ctx := audit.WithRequestID(r.Context(), RequestIDFromContext(r.Context()))
	_ = audit.LogEvent(ctx, event, fields)
}

func paymentOutcome(err error) string {
	switch {
	case errors.Is(err, lending.ErrConflict):
		return "conflict"
	case errors.Is(err, lending.ErrNotFound):
		return "not_found"
	default:
		return "rejected"
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func handleLendingError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, lending.ErrInvalidInput), errors.Is(err, lending.ErrEMIMismatch):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, lending.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, lending.ErrLoanPaidOff), errors.Is(err, lending.ErrOverpayment), errors.Is(err, lending.ErrConflict):
		writeError(w, r, http.StatusConflict, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}
