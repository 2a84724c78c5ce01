// Package api exposes the bookkeeping core over HTTP. Callers are
// authenticated upstream; the organization scope arrives in the X-Org-ID
// header.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"github.com/IsakPetersson/Orient/internal/domain"
	"github.com/IsakPetersson/Orient/internal/service"
	"github.com/IsakPetersson/Orient/internal/sie"
	"github.com/IsakPetersson/Orient/internal/store"
	"github.com/IsakPetersson/Orient/internal/swish"
	"github.com/IsakPetersson/Orient/internal/vault"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orient_http_requests_total",
		Help: "Total HTTP requests processed, labeled by status code",
	}, []string{"method", "endpoint", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "orient_http_request_duration_seconds",
		Help:    "Latency distribution of HTTP requests",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"method", "endpoint"})
)

// PaymentService is the slice of the payment service the handlers use.
type PaymentService interface {
	Create(ctx context.Context, organizationID int64, in service.CreateInput) (*domain.PaymentRequest, error)
	HandleCallback(ctx context.Context, payload service.CallbackPayload) service.CallbackResult
}

type Handler struct {
	store    *store.Store
	payments PaymentService
	mapping  sie.Mapping
}

func NewHandler(s *store.Store, payments PaymentService, mapping sie.Mapping) *Handler {
	return &Handler{store: s, payments: payments, mapping: mapping}
}

// NewRouter wires every route. The Swish callback sits outside the
// org-scoped surface: the provider authenticates it by payment reference,
// not by header.
func NewRouter(h *Handler) *mux.Router {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/health", h.HealthCheck).Methods("GET")

	apiV1 := r.PathPrefix("/api/v1").Subrouter()
	apiV1.HandleFunc("/accounts", h.CreateAccount).Methods("POST")
	apiV1.HandleFunc("/accounts", h.ListAccounts).Methods("GET")
	apiV1.HandleFunc("/accounts/{id}", h.RenameAccount).Methods("PATCH")
	apiV1.HandleFunc("/transactions", h.CreateTransaction).Methods("POST")
	apiV1.HandleFunc("/transactions", h.ListTransactions).Methods("GET")
	apiV1.HandleFunc("/export/sie", h.ExportSIE).Methods("GET")
	apiV1.HandleFunc("/payment-requests", h.CreatePaymentRequest).Methods("POST")
	apiV1.HandleFunc("/payment-requests", h.ListPaymentRequests).Methods("GET")
	apiV1.HandleFunc("/payment-requests/{id}", h.GetPaymentRequest).Methods("GET")
	apiV1.HandleFunc("/swish/callback", h.SwishCallback).Methods("POST")
	return r
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"}, "GET", "/health")
}

type createAccountRequest struct {
	Name string `json:"name"`
}

func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/accounts"
	orgID, ok := h.orgID(w, r, "POST", endpoint)
	if !ok {
		return
	}

	var req createAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Name) == "" {
		respondWithError(w, http.StatusBadRequest, "name is required", "POST", endpoint)
		return
	}

	acc, err := h.store.CreateAccount(r.Context(), orgID, strings.TrimSpace(req.Name))
	if err != nil {
		h.respondStoreError(w, err, "POST", endpoint)
		return
	}
	respondWithJSON(w, http.StatusCreated, acc, "POST", endpoint)
}

func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/accounts"
	orgID, ok := h.orgID(w, r, "GET", endpoint)
	if !ok {
		return
	}

	accounts, err := h.store.ListAccounts(r.Context(), orgID)
	if err != nil {
		h.respondStoreError(w, err, "GET", endpoint)
		return
	}
	if accounts == nil {
		accounts = []domain.Account{}
	}
	respondWithJSON(w, http.StatusOK, accounts, "GET", endpoint)
}

func (h *Handler) RenameAccount(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/accounts/{id}"
	orgID, ok := h.orgID(w, r, "PATCH", endpoint)
	if !ok {
		return
	}
	accountID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid account id", "PATCH", endpoint)
		return
	}

	var req createAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Name) == "" {
		respondWithError(w, http.StatusBadRequest, "name is required", "PATCH", endpoint)
		return
	}

	if err := h.store.RenameAccount(r.Context(), orgID, accountID, strings.TrimSpace(req.Name)); err != nil {
		h.respondStoreError(w, err, "PATCH", endpoint)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "renamed"}, "PATCH", endpoint)
}

type createTransactionRequest struct {
	AccountID     int64  `json:"account_id"`
	Amount        string `json:"amount"`
	Description   string `json:"description"`
	Category      string `json:"category"`
	VoucherSeries string `json:"voucher_series"`
}

func (h *Handler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/transactions"
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("POST", endpoint))
	defer timer.ObserveDuration()

	orgID, ok := h.orgID(w, r, "POST", endpoint)
	if !ok {
		return
	}

	var req createTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "malformed JSON body", "POST", endpoint)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error(), "POST", endpoint)
		return
	}

	txn, err := h.store.AppendTransaction(r.Context(), store.AppendParams{
		OrganizationID: orgID,
		AccountID:      req.AccountID,
		Amount:         amount,
		Description:    req.Description,
		Category:       req.Category,
		Series:         req.VoucherSeries,
	})
	if err != nil {
		h.respondStoreError(w, err, "POST", endpoint)
		return
	}
	respondWithJSON(w, http.StatusCreated, txn, "POST", endpoint)
}

func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/transactions"
	orgID, ok := h.orgID(w, r, "GET", endpoint)
	if !ok {
		return
	}

	order := store.OrderRecent
	if r.URL.Query().Get("order") == "voucher" {
		order = store.OrderExport
	}
	var accountID *int64
	if raw := r.URL.Query().Get("account_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "invalid account_id", "GET", endpoint)
			return
		}
		accountID = &id
	}

	txns, err := h.store.ListTransactions(r.Context(), orgID, accountID, order)
	if err != nil {
		h.respondStoreError(w, err, "GET", endpoint)
		return
	}
	if txns == nil {
		txns = []domain.Transaction{}
	}
	respondWithJSON(w, http.StatusOK, txns, "GET", endpoint)
}

// ExportSIE streams the organization's ledger as a SIE4 file download.
func (h *Handler) ExportSIE(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/export/sie"
	orgID, ok := h.orgID(w, r, "GET", endpoint)
	if !ok {
		return
	}

	org, err := h.store.GetOrganization(r.Context(), orgID)
	if err != nil {
		h.respondStoreError(w, err, "GET", endpoint)
		return
	}
	txns, err := h.store.ListTransactions(r.Context(), orgID, nil, store.OrderExport)
	if err != nil {
		h.respondStoreError(w, err, "GET", endpoint)
		return
	}

	now := time.Now()
	content := sie.Render(*org, txns, h.mapping, now)

	filename := fmt.Sprintf("sie_export_%s_%s.se",
		strings.ReplaceAll(org.Name, " ", "_"), now.Format("2006-01-02"))

	httpRequestsTotal.WithLabelValues("GET", endpoint, "200").Inc()
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(content))
}

type createPaymentRequestRequest struct {
	PayerPhone    string `json:"payer_phone"`
	Amount        string `json:"amount"`
	Message       string `json:"message"`
	BookAccountID *int64 `json:"book_account_id"`
	MemberID      *int64 `json:"member_id"`
}

func (h *Handler) CreatePaymentRequest(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/payment-requests"
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("POST", endpoint))
	defer timer.ObserveDuration()

	orgID, ok := h.orgID(w, r, "POST", endpoint)
	if !ok {
		return
	}

	var req createPaymentRequestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "malformed JSON body", "POST", endpoint)
		return
	}

	pr, err := h.payments.Create(r.Context(), orgID, service.CreateInput{
		PayerPhone:    req.PayerPhone,
		Amount:        req.Amount,
		Message:       req.Message,
		BookAccountID: req.BookAccountID,
		MemberID:      req.MemberID,
	})
	if err != nil {
		h.respondPaymentError(w, err, "POST", endpoint)
		return
	}
	respondWithJSON(w, http.StatusCreated, pr, "POST", endpoint)
}

func (h *Handler) ListPaymentRequests(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/payment-requests"
	orgID, ok := h.orgID(w, r, "GET", endpoint)
	if !ok {
		return
	}

	prs, err := h.store.ListPaymentRequests(r.Context(), orgID)
	if err != nil {
		h.respondStoreError(w, err, "GET", endpoint)
		return
	}
	if prs == nil {
		prs = []domain.PaymentRequest{}
	}
	respondWithJSON(w, http.StatusOK, prs, "GET", endpoint)
}

func (h *Handler) GetPaymentRequest(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/payment-requests/{id}"
	orgID, ok := h.orgID(w, r, "GET", endpoint)
	if !ok {
		return
	}

	pr, err := h.store.GetPaymentRequest(r.Context(), orgID, mux.Vars(r)["id"])
	if err != nil {
		h.respondStoreError(w, err, "GET", endpoint)
		return
	}
	respondWithJSON(w, http.StatusOK, pr, "GET", endpoint)
}

// SwishCallback receives the provider's asynchronous payment notification.
// The provider retries on non-success responses, so every internal outcome,
// including failures, is acknowledged with 200; failures are logged for
// operator follow-up inside the service.
func (h *Handler) SwishCallback(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/swish/callback"
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("POST", endpoint))
	defer timer.ObserveDuration()

	var payload service.CallbackPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		slog.Warn("undecodable callback body", "error", err)
		respondWithJSON(w, http.StatusOK, map[string]string{"message": "callback acknowledged"}, "POST", endpoint)
		return
	}

	result := h.payments.HandleCallback(r.Context(), payload)

	var message string
	switch result.Disposition {
	case service.CallbackDuplicate:
		message = "callback already processed"
	case service.CallbackNotFound:
		message = "payment request not found"
	default:
		message = "callback processed"
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"message": message}, "POST", endpoint)
}

// parseAmount accepts a signed decimal string with at most two decimal
// places.
func parseAmount(raw string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid amount %q", raw)
	}
	if !amount.Equal(amount.Round(2)) {
		return decimal.Decimal{}, errors.New("amount has more than two decimal places")
	}
	return amount, nil
}

// orgID extracts and validates the tenant scope header.
func (h *Handler) orgID(w http.ResponseWriter, r *http.Request, method, endpoint string) (int64, bool) {
	raw := r.Header.Get("X-Org-ID")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		respondWithError(w, http.StatusBadRequest, "missing or invalid X-Org-ID header", method, endpoint)
		return 0, false
	}
	return id, true
}

func (h *Handler) respondStoreError(w http.ResponseWriter, err error, method, endpoint string) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		respondWithError(w, http.StatusNotFound, "not found", method, endpoint)
	case errors.Is(err, domain.ErrConflict):
		respondWithError(w, http.StatusConflict, "conflicting concurrent update, please retry", method, endpoint)
	case errors.Is(err, domain.ErrValidation):
		respondWithError(w, http.StatusBadRequest, err.Error(), method, endpoint)
	default:
		slog.Error("internal error", "endpoint", endpoint, "error", err)
		respondWithError(w, http.StatusInternalServerError, "internal server error", method, endpoint)
	}
}

func (h *Handler) respondPaymentError(w http.ResponseWriter, err error, method, endpoint string) {
	var perr *swish.ProviderError
	var terr *swish.TransportError
	switch {
	case errors.Is(err, domain.ErrNotConfigured):
		respondWithError(w, http.StatusBadRequest, "Swish is not configured for this organization", method, endpoint)
	case errors.As(err, &perr):
		respondWithError(w, http.StatusBadGateway, perr.Error(), method, endpoint)
	case errors.As(err, &terr):
		respondWithError(w, http.StatusBadGateway, "payment provider unreachable", method, endpoint)
	case errors.Is(err, vault.ErrDecryptFailed):
		slog.Error("credential decryption failed", "endpoint", endpoint)
		respondWithError(w, http.StatusInternalServerError, "credential decryption failed", method, endpoint)
	default:
		h.respondStoreError(w, err, method, endpoint)
	}
}

func respondWithError(w http.ResponseWriter, code int, message string, method, endpoint string) {
	respondWithJSON(w, code, map[string]string{"error": message}, method, endpoint)
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}, method, endpoint string) {
	httpRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(code)).Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}
