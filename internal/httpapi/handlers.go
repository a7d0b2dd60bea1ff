package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"lendcore.org/internal/config"
	"lendcore.org/internal/lending"
	"lendcore.org/internal/obs"
	"lendcore.org/internal/stream"
)

// ReadyProbe pings the backing database, when there is one.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API is the HTTP layer over the lending service.
type API struct {
	router     *mux.Router
	readyProbe ReadyProbe
	version    string
	svc        *lending.Service
	stream     *stream.Stream

	rateBurst    int
	ratePerSec   int
	maxBodyBytes int64
}

func New(rp ReadyProbe, version string, svc *lending.Service, st *stream.Stream) *API {
	a := &API{
		router:       mux.NewRouter(),
		readyProbe:   rp,
		version:      version,
		svc:          svc,
		stream:       st,
		rateBurst:    20,
		ratePerSec:   10,
		maxBodyBytes: 1 << 20,
	}

	a.router.HandleFunc("/healthz", a.Healthz).Methods(http.MethodGet)
	a.router.HandleFunc("/readyz", a.Ready).Methods(http.MethodGet)
	a.router.Handle("/metrics", obs.Handler()).Methods(http.MethodGet)

	v1 := a.router.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/info", a.Info).Methods(http.MethodGet)
	v1.HandleFunc("/loans", a.createLoan).Methods(http.MethodPost)
	v1.HandleFunc("/loans/{loan_id}/payments", a.applyPayment).Methods(http.MethodPost)
	v1.HandleFunc("/loans/{loan_id}/ledger", a.getLedger).Methods(http.MethodGet)
	v1.HandleFunc("/customers/{customer_id}/overview", a.customerOverview).Methods(http.MethodGet)
	v1.HandleFunc("/stream", a.Stream).Methods(http.MethodGet)

	return a
}

// Configure applies operational limits from the loaded configuration.
// Call before Handler.
func (a *API) Configure(cfg config.Config) {
	if cfg.RateBurst > 0 {
		a.rateBurst = cfg.RateBurst
	}
	if cfg.RatePerSec > 0 {
		a.ratePerSec = cfg.RatePerSec
	}
	if cfg.MaxBodyBytes > 0 {
		a.maxBodyBytes = cfg.MaxBodyBytes
	}
}

// Handler returns the fully wrapped http.Handler for the server.
func (a *API) Handler() http.Handler {
	h := http.Handler(a.router)
	h = MaxBodyBytes(h, a.maxBodyBytes)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = Logging(h)
	h = RequestID(h)
	h = CORS(h)
	h = SecurityHeaders(h)
	return obs.Instrument(h)
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "lendcore-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "lendcore-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
