package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/IsakPetersson/Orient/internal/domain"
)

// GetOrganization fetches the tenant record. Organization lifecycle is owned
// by the external directory; we read it for export headers and scoping.
func (s *Store) GetOrganization(ctx context.Context, id int64) (*domain.Organization, error) {
	var org domain.Organization
	err := s.db.QueryRow(ctx,
		"SELECT id, name, created_at FROM organizations WHERE id = $1", id,
	).Scan(&org.ID, &org.Name, &org.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("organization query failed: %w", err)
	}
	return &org, nil
}

// CredentialBundle reads the organization's encrypted provider credentials.
// Returns domain.ErrNotConfigured when the organization exists but has no
// provider setup.
func (s *Store) CredentialBundle(ctx context.Context, organizationID int64) (*domain.CredentialBundle, error) {
	var (
		bundle         domain.CredentialBundle
		merchantNumber *string
		mode           *string
	)
	err := s.db.QueryRow(ctx,
		`SELECT swish_merchant_number, swish_mode,
		        swish_p12_ciphertext, swish_p12_iv, swish_p12_tag,
		        swish_pass_ciphertext, swish_pass_iv, swish_pass_tag
		 FROM organizations WHERE id = $1`,
		organizationID,
	).Scan(&merchantNumber, &mode,
		&bundle.Certificate.Ciphertext, &bundle.Certificate.IV, &bundle.Certificate.Tag,
		&bundle.Passphrase.Ciphertext, &bundle.Passphrase.IV, &bundle.Passphrase.Tag)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("credential query failed: %w", err)
	}

	if merchantNumber == nil || mode == nil || bundle.Certificate.Ciphertext == nil {
		return nil, domain.ErrNotConfigured
	}
	bundle.MerchantNumber = *merchantNumber
	bundle.Mode = *mode
	return &bundle, nil
}
