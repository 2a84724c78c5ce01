package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/IsakPetersson/Orient/internal/domain"
	"github.com/IsakPetersson/Orient/internal/service"
	"github.com/IsakPetersson/Orient/internal/sie"
	"github.com/IsakPetersson/Orient/internal/swish"
)

type stubPayments struct {
	createErr     error
	created       *domain.PaymentRequest
	callbackCalls []service.CallbackPayload
	result        service.CallbackResult
}

func (s *stubPayments) Create(_ context.Context, _ int64, _ service.CreateInput) (*domain.PaymentRequest, error) {
	if s.createErr != nil {
		return nil, s.createErr
	}
	return s.created, nil
}

func (s *stubPayments) HandleCallback(_ context.Context, payload service.CallbackPayload) service.CallbackResult {
	s.callbackCalls = append(s.callbackCalls, payload)
	return s.result
}

func newTestRouter(p *stubPayments) http.Handler {
	return NewRouter(NewHandler(nil, p, sie.DefaultMapping()))
}

func postCallback(t *testing.T, router http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("POST", "/api/v1/swish/callback", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

// The provider must always receive 200, whatever happened internally.
func TestSwishCallbackAlwaysAcks200(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		result service.CallbackResult
	}{
		{"processed", `{"payeePaymentReference":"REF1","status":"PAID"}`, service.CallbackResult{Disposition: service.CallbackProcessed}},
		{"duplicate", `{"payeePaymentReference":"REF1","status":"PAID"}`, service.CallbackResult{Disposition: service.CallbackDuplicate}},
		{"unknown reference", `{"payeePaymentReference":"NOPE","status":"PAID"}`, service.CallbackResult{Disposition: service.CallbackNotFound}},
		{"internal failure", `{"payeePaymentReference":"REF1","status":"PAID"}`, service.CallbackResult{Disposition: service.CallbackFailed, Err: context.DeadlineExceeded}},
		{"missing reference", `{"status":"PAID"}`, service.CallbackResult{Disposition: service.CallbackInvalid}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			stub := &stubPayments{result: tc.result}
			rec := postCallback(t, newTestRouter(stub), tc.body)
			if rec.Code != http.StatusOK {
				t.Errorf("status = %d, want 200", rec.Code)
			}
		})
	}
}

func TestSwishCallbackUndecodableBodyAcks200(t *testing.T) {
	stub := &stubPayments{}
	rec := postCallback(t, newTestRouter(stub), "{not json")
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if len(stub.callbackCalls) != 0 {
		t.Error("service invoked with undecodable payload")
	}
}

func TestSwishCallbackPassesPayloadThrough(t *testing.T) {
	stub := &stubPayments{result: service.CallbackResult{Disposition: service.CallbackProcessed}}
	postCallback(t, newTestRouter(stub),
		`{"payeePaymentReference":"ABC","status":"DECLINED","errorCode":"RF07","errorMessage":"declined"}`)

	if len(stub.callbackCalls) != 1 {
		t.Fatalf("service called %d times", len(stub.callbackCalls))
	}
	got := stub.callbackCalls[0]
	if got.PayeePaymentReference != "ABC" || got.Status != "DECLINED" || got.ErrorCode != "RF07" {
		t.Errorf("payload = %+v", got)
	}
}

func postPaymentRequest(t *testing.T, router http.Handler, orgHeader, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("POST", "/api/v1/payment-requests", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if orgHeader != "" {
		req.Header.Set("X-Org-ID", orgHeader)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestCreatePaymentRequestStatusMapping(t *testing.T) {
	valid := `{"payer_phone":"0701234567","amount":"100.00"}`

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", domain.ErrValidation, http.StatusBadRequest},
		{"foreign account", domain.ErrNotFound, http.StatusNotFound},
		{"not configured", domain.ErrNotConfigured, http.StatusBadRequest},
		{"provider error", &swish.ProviderError{StatusCode: 422, Message: "AM06"}, http.StatusBadGateway},
		{"transport error", &swish.TransportError{Err: context.DeadlineExceeded}, http.StatusBadGateway},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := postPaymentRequest(t, newTestRouter(&stubPayments{createErr: tc.err}), "1", valid)
			if rec.Code != tc.want {
				t.Errorf("status = %d, want %d", rec.Code, tc.want)
			}
		})
	}
}

func TestCreatePaymentRequestSuccess(t *testing.T) {
	stub := &stubPayments{created: &domain.PaymentRequest{Reference: "REF1", Status: domain.StatusPending}}
	rec := postPaymentRequest(t, newTestRouter(stub), "1", `{"payer_phone":"0701234567","amount":"100.00"}`)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rec.Code)
	}
	var got domain.PaymentRequest
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.Reference != "REF1" || got.Status != domain.StatusPending {
		t.Errorf("response = %+v", got)
	}
}

func TestOrgHeaderRequired(t *testing.T) {
	for _, header := range []string{"", "abc", "-1", "0"} {
		rec := postPaymentRequest(t, newTestRouter(&stubPayments{}), header, `{}`)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("header %q: status = %d, want 400", header, rec.Code)
		}
	}
}

func TestParseAmount(t *testing.T) {
	for _, valid := range []string{"100.00", "-50.00", "0.01", "7", "0.1"} {
		if _, err := parseAmount(valid); err != nil {
			t.Errorf("parseAmount(%q) = %v", valid, err)
		}
	}
	for _, invalid := range []string{"", "abc", "1.005", "10,00"} {
		if _, err := parseAmount(invalid); err == nil {
			t.Errorf("parseAmount(%q) accepted", invalid)
		}
	}
}
