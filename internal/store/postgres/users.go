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

type UsersStore struct {
	pool *pgxpool.Pool
}

func NewUsersStore(pool *pgxpool.Pool) *UsersStore {
	return &UsersStore{pool: pool}
}

func (s *UsersStore) CreateUser(ctx context.Context, username, passwordHash string) (domain.User, error) {
	const q = `
		INSERT INTO users (username, password_hash)
		VALUES ($1, $2)
		RETURNING id, username, status, total_sessions, total_time_seconds, created_at, last_seen
	`

	var (
		u          domain.User
		idUUID     pgtype.UUID
		lastSeenTS pgtype.Timestamptz
	)
	err := s.pool.QueryRow(ctx, q, username, nullIfEmpty(passwordHash)).Scan(
		&idUUID,
		&u.Username,
		&u.Status,
		&u.TotalSessions,
		&u.TotalTimeSeconds,
		&u.CreatedAt,
		&lastSeenTS,
	)
	if err != nil {
		return domain.User{}, mapUserWriteError(err)
	}

	u.ID = uuidOrEmpty(idUUID)
	u.LastSeen = timestamptzPtr(lastSeenTS)
	return u, nil
}

func (s *UsersStore) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	const q = `
		SELECT id, username, status, total_sessions, total_time_seconds, created_at, last_seen
		FROM users
		WHERE id = $1
	`
	return s.getUser(ctx, q, id)
}

func (s *UsersStore) GetUserByUsername(ctx context.Context, username string) (domain.User, error) {
	const q = `
		SELECT id, username, status, total_sessions, total_time_seconds, created_at, last_seen
		FROM users
		WHERE username = $1
	`
	return s.getUser(ctx, q, username)
}

func (s *UsersStore) getUser(ctx context.Context, q string, arg any) (domain.User, error) {
	var (
		u          domain.User
		idUUID     pgtype.UUID
		lastSeenTS pgtype.Timestamptz
	)
	err := s.pool.QueryRow(ctx, q, arg).Scan(
		&idUUID,
		&u.Username,
		&u.Status,
		&u.TotalSessions,
		&u.TotalTimeSeconds,
		&u.CreatedAt,
		&lastSeenTS,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, domain.ErrNotFound
		}
		return domain.User{}, fmt.Errorf("get user: %w", err)
	}

	u.ID = uuidOrEmpty(idUUID)
	u.LastSeen = timestamptzPtr(lastSeenTS)
	return u, nil
}

func (s *UsersStore) GetUserByLogin(ctx context.Context, username string) (domain.UserWithPassword, error) {
	const q = `
		SELECT id, username, password_hash, status, total_sessions, total_time_seconds, created_at, last_seen
		FROM users
		WHERE username = $1
	`

	var (
		u          domain.UserWithPassword
		idUUID     pgtype.UUID
		hash       pgtype.Text
		lastSeenTS pgtype.Timestamptz
	)
	err := s.pool.QueryRow(ctx, q, username).Scan(
		&idUUID,
		&u.Username,
		&hash,
		&u.Status,
		&u.TotalSessions,
		&u.TotalTimeSeconds,
		&u.CreatedAt,
		&lastSeenTS,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.UserWithPassword{}, domain.ErrNotFound
		}
		return domain.UserWithPassword{}, fmt.Errorf("get user by login: %w", err)
	}

	u.ID = uuidOrEmpty(idUUID)
	u.PasswordHash = textOrEmpty(hash)
	u.LastSeen = timestamptzPtr(lastSeenTS)
	return u, nil
}

// SetStatus writes a presence transition and refreshes last_seen.
func (s *UsersStore) SetStatus(ctx context.Context, userID string, status domain.PresenceStatus, when time.Time) error {
	const q = `
		UPDATE users
		SET status = $2, last_seen = $3
		WHERE id = $1
	`
	tag, err := s.pool.Exec(ctx, q, userID, status, when)
	if err != nil {
		return fmt.Errorf("set status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func mapUserWriteError(err error) error {
	var pgerr *pgconn.PgError
	if errors.As(err, &pgerr) && pgerr.Code == "23505" {
		switch pgerr.ConstraintName {
		case "users_username_uq":
			return domain.ErrUsernameTaken
		default:
			return fmt.Errorf("unique violation (%s): %w", pgerr.ConstraintName, err)
		}
	}
	return fmt.Errorf("create user: %w", err)
}

// helpers in scan.go
