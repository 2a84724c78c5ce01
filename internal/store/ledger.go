package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/IsakPetersson/Orient/internal/domain"
)

// DefaultSeries receives manually entered vouchers; PaymentSeries is reserved
// for automated payment postings so the two counters never collide.
const (
	DefaultSeries = "A"
	PaymentSeries = "S"
)

// AppendParams describes one ledger append.
type AppendParams struct {
	OrganizationID int64
	AccountID      int64
	Amount         decimal.Decimal
	Description    string
	Category       string
	Series         string
}

// AppendTransaction inserts a transaction with the next voucher number for
// its (organization, series) pair. The read-increment-insert sequence runs
// inside one serializable transaction so concurrent appends can never compute
// the same number; a race detected by the database is retried before
// surfacing domain.ErrConflict.
func (s *Store) AppendTransaction(ctx context.Context, p AppendParams) (*domain.Transaction, error) {
	if p.Series == "" {
		p.Series = DefaultSeries
	}

	var txn domain.Transaction
	err := s.serializable(ctx, func(tx pgx.Tx) error {
		t, err := appendInTx(ctx, tx, p)
		if err != nil {
			return err
		}
		txn = *t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

// appendInTx performs the ownership check, number assignment and insert on
// the caller's transaction. The callback path reuses it so a payment posting
// shares the atomic boundary of the callback transition.
func appendInTx(ctx context.Context, tx pgx.Tx, p AppendParams) (*domain.Transaction, error) {
	var owned bool
	err := tx.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM accounts WHERE id = $1 AND organization_id = $2)",
		p.AccountID, p.OrganizationID,
	).Scan(&owned)
	if err != nil {
		return nil, fmt.Errorf("account ownership check failed: %w", err)
	}
	if !owned {
		return nil, fmt.Errorf("%w: account %d in organization %d", domain.ErrNotFound, p.AccountID, p.OrganizationID)
	}

	var next int64
	err = tx.QueryRow(ctx,
		"SELECT COALESCE(MAX(voucher_number), 0) + 1 FROM transactions WHERE organization_id = $1 AND voucher_series = $2",
		p.OrganizationID, p.Series,
	).Scan(&next)
	if err != nil {
		return nil, fmt.Errorf("voucher number query failed: %w", err)
	}

	txn := domain.Transaction{
		AccountID:      p.AccountID,
		OrganizationID: p.OrganizationID,
		Amount:         p.Amount.Round(2),
		Description:    p.Description,
		Category:       p.Category,
		VoucherSeries:  p.Series,
		VoucherNumber:  next,
	}
	err = tx.QueryRow(ctx,
		`INSERT INTO transactions (account_id, organization_id, amount, description, category, voucher_series, voucher_number)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, created_at`,
		p.AccountID, p.OrganizationID, txn.Amount, nullable(p.Description), nullable(p.Category), p.Series, next,
	).Scan(&txn.ID, &txn.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("transaction insert failed: %w", err)
	}
	return &txn, nil
}

// ListOrder selects the transaction ordering for a listing.
type ListOrder int

const (
	// OrderRecent lists newest first, for display.
	OrderRecent ListOrder = iota
	// OrderExport lists by series then voucher number ascending, the
	// stable order required for byte-identical exports.
	OrderExport
)

// ListTransactions returns an organization's transactions in the given
// order, optionally restricted to one account.
func (s *Store) ListTransactions(ctx context.Context, organizationID int64, accountID *int64, order ListOrder) ([]domain.Transaction, error) {
	query := `SELECT id, account_id, organization_id, amount, COALESCE(description, ''), COALESCE(category, ''),
	                 voucher_series, voucher_number, created_at
	          FROM transactions WHERE organization_id = $1`
	args := []any{organizationID}
	if accountID != nil {
		query += " AND account_id = $2"
		args = append(args, *accountID)
	}
	switch order {
	case OrderExport:
		query += " ORDER BY voucher_series ASC, voucher_number ASC"
	default:
		query += " ORDER BY created_at DESC, id DESC"
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("transaction list query failed: %w", err)
	}
	defer rows.Close()

	var txns []domain.Transaction
	for rows.Next() {
		var t domain.Transaction
		if err := rows.Scan(&t.ID, &t.AccountID, &t.OrganizationID, &t.Amount, &t.Description, &t.Category,
			&t.VoucherSeries, &t.VoucherNumber, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("transaction scan failed: %w", err)
		}
		txns = append(txns, t)
	}
	return txns, rows.Err()
}

// CreateAccount creates a bookkeeping account in the organization.
func (s *Store) CreateAccount(ctx context.Context, organizationID int64, name string) (*domain.Account, error) {
	acc := domain.Account{OrganizationID: organizationID, Name: name}
	err := s.db.QueryRow(ctx,
		"INSERT INTO accounts (organization_id, name) VALUES ($1, $2) RETURNING id, created_at",
		organizationID, name,
	).Scan(&acc.ID, &acc.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("account insert failed: %w", err)
	}
	return &acc, nil
}

// GetAccount fetches an account scoped to the organization.
func (s *Store) GetAccount(ctx context.Context, organizationID, accountID int64) (*domain.Account, error) {
	var acc domain.Account
	err := s.db.QueryRow(ctx,
		"SELECT id, organization_id, name, created_at FROM accounts WHERE id = $1 AND organization_id = $2",
		accountID, organizationID,
	).Scan(&acc.ID, &acc.OrganizationID, &acc.Name, &acc.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("account query failed: %w", err)
	}
	return &acc, nil
}

// ListAccounts returns the organization's accounts.
func (s *Store) ListAccounts(ctx context.Context, organizationID int64) ([]domain.Account, error) {
	rows, err := s.db.Query(ctx,
		"SELECT id, organization_id, name, created_at FROM accounts WHERE organization_id = $1 ORDER BY id",
		organizationID,
	)
	if err != nil {
		return nil, fmt.Errorf("account list query failed: %w", err)
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		var acc domain.Account
		if err := rows.Scan(&acc.ID, &acc.OrganizationID, &acc.Name, &acc.CreatedAt); err != nil {
			return nil, fmt.Errorf("account scan failed: %w", err)
		}
		accounts = append(accounts, acc)
	}
	return accounts, rows.Err()
}

// RenameAccount is the only permitted account mutation.
func (s *Store) RenameAccount(ctx context.Context, organizationID, accountID int64, name string) error {
	tag, err := s.db.Exec(ctx,
		"UPDATE accounts SET name = $1 WHERE id = $2 AND organization_id = $3",
		name, accountID, organizationID,
	)
	if err != nil {
		return fmt.Errorf("account rename failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// nullable maps the empty string to SQL NULL.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
