// Package service owns the payment request lifecycle: creation against the
// provider and reconciliation of its asynchronous callbacks into the ledger.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/IsakPetersson/Orient/internal/config"
	"github.com/IsakPetersson/Orient/internal/domain"
	"github.com/IsakPetersson/Orient/internal/store"
	"github.com/IsakPetersson/Orient/internal/swish"
	"github.com/IsakPetersson/Orient/internal/vault"
)

// Store is the persistence surface the payment service needs.
type Store interface {
	GetAccount(ctx context.Context, organizationID, accountID int64) (*domain.Account, error)
	CredentialBundle(ctx context.Context, organizationID int64) (*domain.CredentialBundle, error)
	CreatePaymentRequest(ctx context.Context, pr *domain.PaymentRequest) error
	CompleteCallback(ctx context.Context, reference string, outcome store.CallbackOutcome) (store.CallbackDisposition, error)
}

// Gateway issues outbound calls to the payment provider.
type Gateway interface {
	CreatePaymentRequest(ctx context.Context, creds swish.Credentials, instructionID string, params swish.PaymentParams) (*swish.PaymentResponse, error)
}

type Payments struct {
	store   Store
	gateway Gateway
	vault   *vault.Vault
	cfg     *config.Config
}

func NewPayments(s Store, g Gateway, v *vault.Vault, cfg *config.Config) *Payments {
	return &Payments{store: s, gateway: g, vault: v, cfg: cfg}
}

// CreateInput describes a new outbound payment request.
type CreateInput struct {
	PayerPhone    string
	Amount        string
	Message       string
	BookAccountID *int64
	MemberID      *int64
}

const currency = "SEK"

// Create validates the input, verifies account ownership, decrypts the
// tenant's provider credentials, issues the provider call and persists the
// pending request. Provider and transport failures surface synchronously and
// leave nothing behind: the request row is written only after the provider
// acknowledged.
func (p *Payments) Create(ctx context.Context, organizationID int64, in CreateInput) (*domain.PaymentRequest, error) {
	if strings.TrimSpace(in.PayerPhone) == "" {
		return nil, fmt.Errorf("%w: payerPhone is required", domain.ErrValidation)
	}
	amount, err := decimal.NewFromString(in.Amount)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid amount %q", domain.ErrValidation, in.Amount)
	}
	if amount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", domain.ErrValidation)
	}
	if !amount.Equal(amount.Round(2)) {
		return nil, fmt.Errorf("%w: amount has more than two decimal places", domain.ErrValidation)
	}

	// Ownership is checked before any provider call so a cross-tenant
	// account id can never trigger an outbound payment.
	if in.BookAccountID != nil {
		if _, err := p.store.GetAccount(ctx, organizationID, *in.BookAccountID); err != nil {
			return nil, err
		}
	}

	bundle, err := p.store.CredentialBundle(ctx, organizationID)
	if err != nil {
		return nil, err
	}
	creds, err := p.decrypt(bundle)
	if err != nil {
		return nil, err
	}

	reference := NewReference()
	payerAlias := swish.NormalizePhone(in.PayerPhone)
	message := swish.SanitizeMessage(in.Message)

	resp, err := p.gateway.CreatePaymentRequest(ctx, creds, NewReference(), swish.PaymentParams{
		PayeeAlias:            creds.MerchantNumber,
		PayerAlias:            payerAlias,
		Amount:                amount.StringFixed(2),
		Currency:              currency,
		Message:               message,
		PayeePaymentReference: reference,
		CallbackURL:           p.cfg.CallbackBaseURL + "/api/v1/swish/callback",
	})
	if err != nil {
		return nil, err
	}

	pr := &domain.PaymentRequest{
		ID:               uuid.New(),
		OrganizationID:   organizationID,
		PayeeAlias:       creds.MerchantNumber,
		PayerAlias:       payerAlias,
		Amount:           amount,
		Currency:         currency,
		Message:          message,
		Reference:        reference,
		ProviderLocation: resp.Location,
		Status:           domain.StatusPending,
		BookAccountID:    in.BookAccountID,
		MemberID:         in.MemberID,
	}
	if err := p.store.CreatePaymentRequest(ctx, pr); err != nil {
		return nil, err
	}
	return pr, nil
}

// decrypt opens the credential bundle. Plaintext lives only for the duration
// of the provider call.
func (p *Payments) decrypt(bundle *domain.CredentialBundle) (swish.Credentials, error) {
	p12, err := p.vault.DecryptBytes(bundle.Certificate)
	if err != nil {
		return swish.Credentials{}, err
	}
	passphrase, err := p.vault.DecryptString(bundle.Passphrase)
	if err != nil {
		return swish.Credentials{}, err
	}
	return swish.Credentials{
		MerchantNumber: bundle.MerchantNumber,
		Mode:           bundle.Mode,
		P12:            p12,
		Passphrase:     passphrase,
	}, nil
}

// NewReference generates a payment reference: 32 upper-case hex characters,
// within the provider's 35-character limit. References are single-use; a
// retried payment gets a fresh one.
func NewReference() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
}

// CallbackPayload is the provider's callback body.
type CallbackPayload struct {
	PayeePaymentReference string `json:"payeePaymentReference"`
	Status                string `json:"status"`
	ErrorCode             string `json:"errorCode,omitempty"`
	ErrorMessage          string `json:"errorMessage,omitempty"`
	Amount                string `json:"amount,omitempty"`
	PayerAlias            string `json:"payerAlias,omitempty"`
}

// Disposition classifies what handling a callback amounted to. The HTTP
// boundary acknowledges every one of them with 200; the distinction exists
// for logging and tests.
type Disposition int

const (
	CallbackInvalid Disposition = iota
	CallbackNotFound
	CallbackDuplicate
	CallbackProcessed
	CallbackFailed
)

// CallbackResult is the typed outcome of HandleCallback.
type CallbackResult struct {
	Disposition Disposition
	Err         error
}

// HandleCallback reconciles one provider callback. Unknown references and
// duplicate deliveries are expected conditions, not faults. Internal errors
// are returned for logging but must never translate into a non-success
// acknowledgment toward the provider.
func (p *Payments) HandleCallback(ctx context.Context, payload CallbackPayload) CallbackResult {
	if payload.PayeePaymentReference == "" {
		return CallbackResult{
			Disposition: CallbackInvalid,
			Err:         errors.New("callback missing payment reference"),
		}
	}

	disposition, err := p.store.CompleteCallback(ctx, payload.PayeePaymentReference, store.CallbackOutcome{
		Status:       payload.Status,
		ErrorCode:    payload.ErrorCode,
		ErrorMessage: payload.ErrorMessage,
	})
	if err != nil {
		slog.Error("callback processing failed",
			"reference", payload.PayeePaymentReference,
			"status", payload.Status,
			"error", err)
		return CallbackResult{Disposition: CallbackFailed, Err: err}
	}

	switch disposition {
	case store.CallbackNotFound:
		slog.Warn("callback for unknown payment reference", "reference", payload.PayeePaymentReference)
		return CallbackResult{Disposition: CallbackNotFound}
	case store.CallbackDuplicate:
		return CallbackResult{Disposition: CallbackDuplicate}
	default:
		if !domain.TerminalStatus(payload.Status) {
			slog.Warn("callback reported a non-terminal status",
				"reference", payload.PayeePaymentReference, "status", payload.Status)
		}
		return CallbackResult{Disposition: CallbackProcessed}
	}
}
