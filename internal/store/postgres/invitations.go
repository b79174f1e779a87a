package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"netpulseserver/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

type InvitationsStore struct {
	pool *pgxpool.Pool
}

func NewInvitationsStore(pool *pgxpool.Pool) *InvitationsStore {
	return &InvitationsStore{pool: pool}
}

const invitationColumns = `id, session_id, sender_id, receiver_id, status, created_at, responded_at`

func scanInvitation(row pgx.Row) (domain.SessionInvitation, error) {
	var (
		inv          domain.SessionInvitation
		idUUID       pgtype.UUID
		sessionUUID  pgtype.UUID
		senderUUID   pgtype.UUID
		receiverUUID pgtype.UUID
		respondedTS  pgtype.Timestamptz
	)
	err := row.Scan(
		&idUUID,
		&sessionUUID,
		&senderUUID,
		&receiverUUID,
		&inv.Status,
		&inv.CreatedAt,
		&respondedTS,
	)
	if err != nil {
		return domain.SessionInvitation{}, err
	}
	inv.ID = uuidOrEmpty(idUUID)
	inv.SessionID = uuidOrEmpty(sessionUUID)
	inv.SenderID = uuidOrEmpty(senderUUID)
	inv.ReceiverID = uuidOrEmpty(receiverUUID)
	inv.RespondedAt = timestamptzPtr(respondedTS)
	return inv, nil
}

// CreateInvitation inserts a pending invitation. The partial unique index
// on (session_id, receiver_id) WHERE status = 'pending' rejects a second
// pending invitation for the same pair while leaving declined rows behind
// as history.
func (s *InvitationsStore) CreateInvitation(ctx context.Context, sessionID, senderID, receiverID string) (domain.SessionInvitation, error) {
	const q = `
		INSERT INTO session_invitations (session_id, sender_id, receiver_id)
		VALUES ($1, $2, $3)
		RETURNING ` + invitationColumns

	inv, err := scanInvitation(s.pool.QueryRow(ctx, q, sessionID, senderID, receiverID))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.SessionInvitation{}, domain.ErrInvitationExists
		}
		return domain.SessionInvitation{}, fmt.Errorf("insert invitation: %w", err)
	}
	return inv, nil
}

func (s *InvitationsStore) GetInvitation(ctx context.Context, id string) (domain.SessionInvitation, error) {
	const q = `SELECT ` + invitationColumns + ` FROM session_invitations WHERE id = $1`

	inv, err := scanInvitation(s.pool.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.SessionInvitation{}, domain.ErrNotFound
		}
		return domain.SessionInvitation{}, fmt.Errorf("get invitation: %w", err)
	}
	return inv, nil
}

// RespondInvitation resolves a pending invitation addressed to receiverID.
// The guard on receiver and status means a stranger's id, a repeat
// response, or a made-up invitation all land on ErrNotFound.
func (s *InvitationsStore) RespondInvitation(ctx context.Context, id, receiverID string, status domain.InvitationStatus, when time.Time) (domain.SessionInvitation, error) {
	const q = `
		UPDATE session_invitations
		SET status = $3, responded_at = $4
		WHERE id = $1 AND receiver_id = $2 AND status = 'pending'
		RETURNING ` + invitationColumns

	inv, err := scanInvitation(s.pool.QueryRow(ctx, q, id, receiverID, status, when))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.SessionInvitation{}, domain.ErrNotFound
		}
		return domain.SessionInvitation{}, fmt.Errorf("respond invitation: %w", err)
	}
	return inv, nil
}

func (s *InvitationsStore) ListPendingForSession(ctx context.Context, sessionID string) ([]domain.SessionInvitation, error) {
	const q = `
		SELECT ` + invitationColumns + `
		FROM session_invitations
		WHERE session_id = $1 AND status = 'pending'
		ORDER BY created_at ASC
	`

	rows, err := s.pool.Query(ctx, q, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list pending invitations: %w", err)
	}
	defer rows.Close()

	var out []domain.SessionInvitation
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan invitation: %w", err)
		}
		out = append(out, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list pending invitations: %w", err)
	}
	return out, nil
}
