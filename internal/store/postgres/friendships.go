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

type FriendshipsStore struct {
	pool *pgxpool.Pool
}

func NewFriendshipsStore(pool *pgxpool.Pool) *FriendshipsStore {
	return &FriendshipsStore{pool: pool}
}

func (s *FriendshipsStore) CreateRequest(ctx context.Context, userID, friendID string) (domain.Friendship, error) {
	const q = `
		INSERT INTO friendships (user_id, friend_id)
		VALUES ($1, $2)
		RETURNING id, created_at
	`

	f := domain.Friendship{UserID: userID, FriendID: friendID}
	var idUUID pgtype.UUID
	err := s.pool.QueryRow(ctx, q, userID, friendID).Scan(&idUUID, &f.CreatedAt)
	if err != nil {
		var pgerr *pgconn.PgError
		if errors.As(err, &pgerr) && pgerr.Code == "23505" && pgerr.ConstraintName == "friendships_pair_uq" {
			return domain.Friendship{}, domain.ErrFriendshipExists
		}
		return domain.Friendship{}, fmt.Errorf("create friend request: %w", err)
	}

	f.ID = uuidOrEmpty(idUUID)
	return f, nil
}

// AcceptRequest flips a pending request addressed to recipientID and
// returns the full row, so the caller knows who originally sent it.
func (s *FriendshipsStore) AcceptRequest(ctx context.Context, requestID, recipientID string, when time.Time) (domain.Friendship, error) {
	const q = `
		UPDATE friendships
		SET accepted = TRUE, accepted_at = $3
		WHERE id = $1 AND friend_id = $2 AND NOT accepted
		RETURNING id, user_id, friend_id, accepted, created_at, accepted_at
	`

	var (
		f          domain.Friendship
		idUUID     pgtype.UUID
		userUUID   pgtype.UUID
		friendUUID pgtype.UUID
		acceptedTS pgtype.Timestamptz
	)
	err := s.pool.QueryRow(ctx, q, requestID, recipientID, when).Scan(
		&idUUID,
		&userUUID,
		&friendUUID,
		&f.Accepted,
		&f.CreatedAt,
		&acceptedTS,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Friendship{}, domain.ErrNotFound
		}
		return domain.Friendship{}, fmt.Errorf("accept friend request: %w", err)
	}

	f.ID = uuidOrEmpty(idUUID)
	f.UserID = uuidOrEmpty(userUUID)
	f.FriendID = uuidOrEmpty(friendUUID)
	f.AcceptedAt = timestamptzPtr(acceptedTS)
	return f, nil
}

// DeclineRequest deletes a pending request outright. A declined pair can
// request each other again later.
func (s *FriendshipsStore) DeclineRequest(ctx context.Context, requestID, recipientID string) error {
	const q = `
		DELETE FROM friendships
		WHERE id = $1 AND friend_id = $2 AND NOT accepted
	`
	ct, err := s.pool.Exec(ctx, q, requestID, recipientID)
	if err != nil {
		return fmt.Errorf("decline friend request: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *FriendshipsStore) ListFriends(ctx context.Context, userID string) ([]domain.Friend, error) {
	const q = `
		SELECT u.id, u.username, u.status, u.last_seen
		FROM friendships f
		JOIN users u ON u.id = CASE
			WHEN f.user_id = $1 THEN f.friend_id
			ELSE f.user_id
		END
		WHERE f.accepted AND (f.user_id = $1 OR f.friend_id = $1)
		ORDER BY u.username ASC
	`

	rows, err := s.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("list friends: %w", err)
	}
	defer rows.Close()

	var out []domain.Friend
	for rows.Next() {
		var (
			fr         domain.Friend
			idUUID     pgtype.UUID
			lastSeenTS pgtype.Timestamptz
		)
		if err := rows.Scan(&idUUID, &fr.Username, &fr.Status, &lastSeenTS); err != nil {
			return nil, fmt.Errorf("scan friend: %w", err)
		}
		fr.UserID = uuidOrEmpty(idUUID)
		fr.LastSeen = timestamptzPtr(lastSeenTS)
		out = append(out, fr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list friends: %w", err)
	}
	return out, nil
}

func (s *FriendshipsStore) ListIncomingRequests(ctx context.Context, userID string) ([]domain.FriendRequest, error) {
	const q = `
		SELECT f.id, f.created_at, u.id, u.username
		FROM friendships f
		JOIN users u ON u.id = f.user_id
		WHERE NOT f.accepted AND f.friend_id = $1
		ORDER BY f.created_at DESC
	`

	rows, err := s.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("list incoming requests: %w", err)
	}
	defer rows.Close()

	var out []domain.FriendRequest
	for rows.Next() {
		var (
			req        domain.FriendRequest
			reqIDUUID  pgtype.UUID
			fromIDUUID pgtype.UUID
		)
		if err := rows.Scan(&reqIDUUID, &req.CreatedAt, &fromIDUUID, &req.FromUsername); err != nil {
			return nil, fmt.Errorf("scan incoming request: %w", err)
		}
		req.RequestID = uuidOrEmpty(reqIDUUID)
		req.FromUserID = uuidOrEmpty(fromIDUUID)
		out = append(out, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list incoming requests: %w", err)
	}
	return out, nil
}

// ListFriendIDs is the cheap projection fan-out uses to notify a user's
// accepted friends.
func (s *FriendshipsStore) ListFriendIDs(ctx context.Context, userID string) ([]string, error) {
	const q = `
		SELECT CASE WHEN f.user_id = $1 THEN f.friend_id ELSE f.user_id END
		FROM friendships f
		WHERE f.accepted AND (f.user_id = $1 OR f.friend_id = $1)
	`

	rows, err := s.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("list friend ids: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var idUUID pgtype.UUID
		if err := rows.Scan(&idUUID); err != nil {
			return nil, fmt.Errorf("scan friend id: %w", err)
		}
		out = append(out, uuidOrEmpty(idUUID))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list friend ids: %w", err)
	}
	return out, nil
}

func (s *FriendshipsStore) CountAccepted(ctx context.Context, userID string) (int, error) {
	const q = `
		SELECT count(*)
		FROM friendships f
		WHERE f.accepted AND (f.user_id = $1 OR f.friend_id = $1)
	`
	var n int
	if err := s.pool.QueryRow(ctx, q, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count friends: %w", err)
	}
	return n, nil
}
