package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/IsakPetersson/Orient/internal/domain"
)

// paymentCategory labels ledger transactions created from provider
// callbacks.
const paymentCategory = "Swish Payment"

// CreatePaymentRequest persists a provider-acknowledged request.
func (s *Store) CreatePaymentRequest(ctx context.Context, pr *domain.PaymentRequest) error {
	err := s.db.QueryRow(ctx,
		`INSERT INTO payment_requests
		   (id, organization_id, payee_alias, payer_alias, amount, currency, message,
		    payee_payment_reference, swish_location, status, book_account_id, member_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 RETURNING created_at`,
		pr.ID, pr.OrganizationID, pr.PayeeAlias, pr.PayerAlias, pr.Amount, pr.Currency,
		nullable(pr.Message), pr.Reference, nullable(pr.ProviderLocation), pr.Status,
		pr.BookAccountID, pr.MemberID,
	).Scan(&pr.CreatedAt)
	if err != nil {
		return fmt.Errorf("payment request insert failed: %w", err)
	}
	return nil
}

// GetPaymentRequest fetches one request scoped to the organization.
func (s *Store) GetPaymentRequest(ctx context.Context, organizationID int64, id string) (*domain.PaymentRequest, error) {
	row := s.db.QueryRow(ctx,
		paymentRequestSelect+" WHERE id = $1 AND organization_id = $2", id, organizationID)
	return scanPaymentRequest(row)
}

// ListPaymentRequests returns the organization's requests, newest first.
func (s *Store) ListPaymentRequests(ctx context.Context, organizationID int64) ([]domain.PaymentRequest, error) {
	rows, err := s.db.Query(ctx,
		paymentRequestSelect+" WHERE organization_id = $1 ORDER BY created_at DESC", organizationID)
	if err != nil {
		return nil, fmt.Errorf("payment request list query failed: %w", err)
	}
	defer rows.Close()

	var prs []domain.PaymentRequest
	for rows.Next() {
		pr, err := scanPaymentRequest(rows)
		if err != nil {
			return nil, err
		}
		prs = append(prs, *pr)
	}
	return prs, rows.Err()
}

// CallbackOutcome is the provider-reported result carried by a callback.
type CallbackOutcome struct {
	Status       string
	ErrorCode    string
	ErrorMessage string
}

// CallbackDisposition describes what a callback delivery amounted to.
type CallbackDisposition int

const (
	// CallbackNotFound: no request with that reference exists here.
	CallbackNotFound CallbackDisposition = iota
	// CallbackDuplicate: the callback was already processed; nothing done.
	CallbackDuplicate
	// CallbackProcessed: state recorded and, if applicable, posted.
	CallbackProcessed
)

// CompleteCallback applies a provider callback to the request identified by
// reference. Everything runs in one serializable transaction: the row is
// locked, the received-at check decides duplicates, and a PAID outcome posts
// the ledger transaction only if no transaction is linked yet. A crash
// cannot leave the request marked received without its posting.
func (s *Store) CompleteCallback(ctx context.Context, reference string, outcome CallbackOutcome) (CallbackDisposition, error) {
	disposition := CallbackNotFound

	err := s.serializable(ctx, func(tx pgx.Tx) error {
		var (
			pr            domain.PaymentRequest
			receivedSet   bool
			transactionID *int64
		)
		err := tx.QueryRow(ctx,
			`SELECT id, organization_id, payer_alias, amount, COALESCE(message, ''),
			        book_account_id, member_id, transaction_id,
			        callback_received_at IS NOT NULL
			 FROM payment_requests WHERE payee_payment_reference = $1 FOR UPDATE`,
			reference,
		).Scan(&pr.ID, &pr.OrganizationID, &pr.PayerAlias, &pr.Amount, &pr.Message,
			&pr.BookAccountID, &pr.MemberID, &transactionID, &receivedSet)
		if errors.Is(err, pgx.ErrNoRows) {
			disposition = CallbackNotFound
			return nil
		}
		if err != nil {
			return fmt.Errorf("payment request lookup failed: %w", err)
		}

		if receivedSet {
			disposition = CallbackDuplicate
			return nil
		}

		status := outcome.Status
		if status == "" {
			status = "UNKNOWN"
		}
		_, err = tx.Exec(ctx,
			`UPDATE payment_requests
			 SET status = $1, error_code = $2, error_message = $3, callback_received_at = now()
			 WHERE id = $4`,
			status, nullable(outcome.ErrorCode), nullable(outcome.ErrorMessage), pr.ID,
		)
		if err != nil {
			return fmt.Errorf("payment request update failed: %w", err)
		}

		if status == domain.StatusPaid {
			if pr.BookAccountID != nil && transactionID == nil {
				description := pr.Message
				if description == "" {
					description = "Swish payment from " + pr.PayerAlias
				}
				txn, err := appendInTx(ctx, tx, AppendParams{
					OrganizationID: pr.OrganizationID,
					AccountID:      *pr.BookAccountID,
					Amount:         pr.Amount,
					Description:    description,
					Category:       paymentCategory,
					Series:         PaymentSeries,
				})
				if err != nil {
					return err
				}
				if _, err := tx.Exec(ctx,
					"UPDATE payment_requests SET transaction_id = $1 WHERE id = $2",
					txn.ID, pr.ID,
				); err != nil {
					return fmt.Errorf("transaction link failed: %w", err)
				}
			}

			if pr.MemberID != nil {
				if _, err := tx.Exec(ctx,
					"UPDATE members SET paid = true WHERE id = $1", *pr.MemberID,
				); err != nil {
					return fmt.Errorf("member update failed: %w", err)
				}
			}
		}

		disposition = CallbackProcessed
		return nil
	})
	if err != nil {
		return CallbackNotFound, err
	}
	return disposition, nil
}

const paymentRequestSelect = `
	SELECT id, organization_id, payee_alias, payer_alias, amount, currency,
	       COALESCE(message, ''), payee_payment_reference, COALESCE(swish_location, ''),
	       status, COALESCE(error_code, ''), COALESCE(error_message, ''),
	       book_account_id, member_id, transaction_id, callback_received_at, created_at
	FROM payment_requests`

func scanPaymentRequest(row pgx.Row) (*domain.PaymentRequest, error) {
	var pr domain.PaymentRequest
	err := row.Scan(&pr.ID, &pr.OrganizationID, &pr.PayeeAlias, &pr.PayerAlias, &pr.Amount,
		&pr.Currency, &pr.Message, &pr.Reference, &pr.ProviderLocation,
		&pr.Status, &pr.ErrorCode, &pr.ErrorMessage,
		&pr.BookAccountID, &pr.MemberID, &pr.TransactionID, &pr.CallbackReceivedAt, &pr.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("payment request scan failed: %w", err)
	}
	return &pr, nil
}
