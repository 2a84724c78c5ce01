package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Organization is the tenant boundary. Membership and administration live in
// an external directory; we only need the identity, the display name and the
// payment provider configuration attached to the record.
type Organization struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Account is a bookkeeping account inside one organization.
type Account struct {
	ID             int64     `json:"id"`
	OrganizationID int64     `json:"organization_id"`
	Name           string    `json:"name"`
	CreatedAt      time.Time `json:"created_at"`
}

// Transaction is an immutable ledger record. Within one
// (organization, voucher series) pair voucher numbers are assigned
// sequentially starting at 1, with no gaps and no duplicates.
type Transaction struct {
	ID             int64           `json:"id"`
	AccountID      int64           `json:"account_id"`
	OrganizationID int64           `json:"organization_id"`
	Amount         decimal.Decimal `json:"amount"`
	Description    string          `json:"description,omitempty"`
	Category       string          `json:"category,omitempty"`
	VoucherSeries  string          `json:"voucher_series"`
	VoucherNumber  int64           `json:"voucher_number"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Payment request lifecycle. CREATED and PENDING are transient; the rest are
// terminal. A request never leaves a terminal state.
const (
	StatusCreated   = "CREATED"
	StatusPending   = "PENDING"
	StatusPaid      = "PAID"
	StatusDeclined  = "DECLINED"
	StatusError     = "ERROR"
	StatusCancelled = "CANCELLED"
)

// TerminalStatus reports whether s ends the payment request lifecycle.
func TerminalStatus(s string) bool {
	switch s {
	case StatusPaid, StatusDeclined, StatusError, StatusCancelled:
		return true
	}
	return false
}

// PaymentRequest tracks one outbound push-payment attempt. The payment
// reference doubles as the idempotency key for provider callbacks:
// CallbackReceivedAt being set makes any further callback a no-op.
type PaymentRequest struct {
	ID                 uuid.UUID       `json:"id"`
	OrganizationID     int64           `json:"organization_id"`
	PayeeAlias         string          `json:"payee_alias"`
	PayerAlias         string          `json:"payer_alias"`
	Amount             decimal.Decimal `json:"amount"`
	Currency           string          `json:"currency"`
	Message            string          `json:"message,omitempty"`
	Reference          string          `json:"payee_payment_reference"`
	ProviderLocation   string          `json:"swish_location,omitempty"`
	Status             string          `json:"status"`
	ErrorCode          string          `json:"error_code,omitempty"`
	ErrorMessage       string          `json:"error_message,omitempty"`
	BookAccountID      *int64          `json:"book_account_id,omitempty"`
	MemberID           *int64          `json:"member_id,omitempty"`
	TransactionID      *int64          `json:"transaction_id,omitempty"`
	CallbackReceivedAt *time.Time      `json:"callback_received_at,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
}

// Member is a club member that a payment request may settle a fee for.
type Member struct {
	ID             int64  `json:"id"`
	OrganizationID int64  `json:"organization_id"`
	Name           string `json:"name"`
	Paid           bool   `json:"paid"`
}

// EncryptedBlob is one AEAD-sealed value: ciphertext plus the IV and
// authentication tag needed to open it.
type EncryptedBlob struct {
	Ciphertext []byte
	IV         []byte
	Tag        []byte
}

// CredentialBundle holds an organization's payment provider identity. The
// certificate and passphrase stay encrypted at rest and are decrypted only
// transiently for the duration of a provider call.
type CredentialBundle struct {
	MerchantNumber string
	Mode           string // ModeTest or ModeProd
	Certificate    EncryptedBlob
	Passphrase     EncryptedBlob
}

const (
	ModeTest = "TEST"
	ModeProd = "PROD"
)
