package postgres

import (
	"context"
	"errors"
	"fmt"

	"netpulseserver/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ExternalAccountsStore struct {
	pool *pgxpool.Pool
}

func NewExternalAccountsStore(pool *pgxpool.Pool) *ExternalAccountsStore {
	return &ExternalAccountsStore{pool: pool}
}

func (s *ExternalAccountsStore) GetByProvider(ctx context.Context, provider, providerID string) (domain.ExternalAccount, error) {
	const q = `
		SELECT id, user_id, provider, provider_id, email, created_at
		FROM external_accounts
		WHERE provider = $1 AND provider_id = $2
	`

	var (
		acct     domain.ExternalAccount
		idUUID   pgtype.UUID
		userUUID pgtype.UUID
		email    pgtype.Text
	)
	err := s.pool.QueryRow(ctx, q, provider, providerID).Scan(
		&idUUID,
		&userUUID,
		&acct.Provider,
		&acct.ProviderID,
		&email,
		&acct.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ExternalAccount{}, domain.ErrNotFound
		}
		return domain.ExternalAccount{}, fmt.Errorf("get external account: %w", err)
	}
	acct.ID = uuidOrEmpty(idUUID)
	acct.UserID = uuidOrEmpty(userUUID)
	acct.Email = textOrEmpty(email)
	return acct, nil
}

func (s *ExternalAccountsStore) CreateExternalAccount(ctx context.Context, userID, provider, providerID, email string) (domain.ExternalAccount, error) {
	const q = `
		INSERT INTO external_accounts (user_id, provider, provider_id, email)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`

	var (
		acct   domain.ExternalAccount
		idUUID pgtype.UUID
	)
	err := s.pool.QueryRow(ctx, q, userID, provider, providerID, nullIfEmpty(email)).Scan(&idUUID, &acct.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.ExternalAccount{}, domain.ErrExternalAccountExists
		}
		return domain.ExternalAccount{}, fmt.Errorf("insert external account: %w", err)
	}
	acct.ID = uuidOrEmpty(idUUID)
	acct.UserID = userID
	acct.Provider = provider
	acct.ProviderID = providerID
	acct.Email = email
	return acct, nil
}
