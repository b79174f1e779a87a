package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"netpulseserver/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

type SessionsStore struct {
	pool *pgxpool.Pool
}

func NewSessionsStore(pool *pgxpool.Pool) *SessionsStore {
	return &SessionsStore{pool: pool}
}

const sessionColumns = `id, creator_id, status, duration_seconds, elapsed_seconds, started_at, completed_at, created_at`

func scanSession(row pgx.Row) (domain.Session, error) {
	var (
		sess        domain.Session
		idUUID      pgtype.UUID
		creatorUUID pgtype.UUID
		startedTS   pgtype.Timestamptz
		completedTS pgtype.Timestamptz
	)
	err := row.Scan(
		&idUUID,
		&creatorUUID,
		&sess.Status,
		&sess.DurationSeconds,
		&sess.ElapsedSeconds,
		&startedTS,
		&completedTS,
		&sess.CreatedAt,
	)
	if err != nil {
		return domain.Session{}, err
	}
	sess.ID = uuidOrEmpty(idUUID)
	sess.CreatorID = uuidOrEmpty(creatorUUID)
	sess.StartedAt = timestamptzPtr(startedTS)
	sess.CompletedAt = timestamptzPtr(completedTS)
	return sess, nil
}

// CreateSession inserts the session and its creator's participant row in
// one transaction.
func (s *SessionsStore) CreateSession(ctx context.Context, creatorID string, durationSeconds int) (domain.Session, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return domain.Session{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const insertSession = `
		INSERT INTO sessions (creator_id, duration_seconds)
		VALUES ($1, $2)
		RETURNING ` + sessionColumns

	sess, err := scanSession(tx.QueryRow(ctx, insertSession, creatorID, durationSeconds))
	if err != nil {
		return domain.Session{}, fmt.Errorf("insert session: %w", err)
	}

	const insertParticipant = `
		INSERT INTO session_participants (session_id, user_id)
		VALUES ($1, $2)
	`
	if _, err := tx.Exec(ctx, insertParticipant, sess.ID, creatorID); err != nil {
		return domain.Session{}, fmt.Errorf("insert creator participant: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Session{}, fmt.Errorf("commit tx: %w", err)
	}
	return sess, nil
}

func (s *SessionsStore) GetSession(ctx context.Context, id string) (domain.Session, error) {
	const q = `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1`

	sess, err := scanSession(s.pool.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Session{}, domain.ErrNotFound
		}
		return domain.Session{}, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

func (s *SessionsStore) AddParticipant(ctx context.Context, sessionID, userID string) error {
	const q = `
		INSERT INTO session_participants (session_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT (session_id, user_id) DO NOTHING
	`
	if _, err := s.pool.Exec(ctx, q, sessionID, userID); err != nil {
		return fmt.Errorf("add participant: %w", err)
	}
	return nil
}

func (s *SessionsStore) IsParticipant(ctx context.Context, sessionID, userID string) (bool, error) {
	const q = `
		SELECT EXISTS (
			SELECT 1 FROM session_participants WHERE session_id = $1 AND user_id = $2
		)
	`
	var ok bool
	if err := s.pool.QueryRow(ctx, q, sessionID, userID).Scan(&ok); err != nil {
		return false, fmt.Errorf("check participant: %w", err)
	}
	return ok, nil
}

func (s *SessionsStore) CountParticipants(ctx context.Context, sessionID string) (int, error) {
	const q = `SELECT count(*) FROM session_participants WHERE session_id = $1`
	var n int
	if err := s.pool.QueryRow(ctx, q, sessionID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count participants: %w", err)
	}
	return n, nil
}

func (s *SessionsStore) ListParticipantIDs(ctx context.Context, sessionID string) ([]string, error) {
	const q = `
		SELECT user_id FROM session_participants
		WHERE session_id = $1
		ORDER BY joined_at ASC
	`

	rows, err := s.pool.Query(ctx, q, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var idUUID pgtype.UUID
		if err := rows.Scan(&idUUID); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		out = append(out, uuidOrEmpty(idUUID))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	return out, nil
}

// StartSession flips a pending session owned by creatorID to active. The
// WHERE guard makes the transition race-safe; zero rows means the session
// was not in a startable state for this caller.
func (s *SessionsStore) StartSession(ctx context.Context, sessionID, creatorID string, when time.Time) (domain.Session, error) {
	const q = `
		UPDATE sessions
		SET status = 'active', started_at = $3, elapsed_seconds = 0
		WHERE id = $1 AND creator_id = $2 AND status = 'pending'
		RETURNING ` + sessionColumns

	sess, err := scanSession(s.pool.QueryRow(ctx, q, sessionID, creatorID, when))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Session{}, domain.ErrNotFound
		}
		return domain.Session{}, fmt.Errorf("start session: %w", err)
	}
	return sess, nil
}

// AdvanceElapsed persists a new elapsed value, but only while the session
// is still active. The returned bool reports whether the session was
// active; a false result is how the timer observes cancellation.
func (s *SessionsStore) AdvanceElapsed(ctx context.Context, sessionID string, elapsed int) (bool, error) {
	const q = `
		UPDATE sessions
		SET elapsed_seconds = $2
		WHERE id = $1 AND status = 'active'
	`
	ct, err := s.pool.Exec(ctx, q, sessionID, elapsed)
	if err != nil {
		return false, fmt.Errorf("advance elapsed: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}

// CompleteSession transitions an active session to completed and credits
// every participant's counters with the final elapsed seconds, all in one
// transaction. It is a no-op (false, nil, 0) when the session is not
// active, which makes double completion harmless.
func (s *SessionsStore) CompleteSession(ctx context.Context, sessionID string, when time.Time) (bool, []string, int, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, nil, 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const complete = `
		UPDATE sessions
		SET status = 'completed', completed_at = $2
		WHERE id = $1 AND status = 'active'
		RETURNING elapsed_seconds
	`
	var finalElapsed int
	if err := tx.QueryRow(ctx, complete, sessionID, when).Scan(&finalElapsed); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil, 0, nil
		}
		return false, nil, 0, fmt.Errorf("complete session: %w", err)
	}

	const credit = `
		UPDATE users
		SET total_sessions = total_sessions + 1,
		    total_time_seconds = total_time_seconds + $2
		FROM session_participants sp
		WHERE sp.session_id = $1 AND users.id = sp.user_id
	`
	if _, err := tx.Exec(ctx, credit, sessionID, finalElapsed); err != nil {
		return false, nil, 0, fmt.Errorf("credit participants: %w", err)
	}

	const participants = `
		SELECT user_id FROM session_participants
		WHERE session_id = $1
		ORDER BY joined_at ASC
	`
	rows, err := tx.Query(ctx, participants, sessionID)
	if err != nil {
		return false, nil, 0, fmt.Errorf("list participants: %w", err)
	}
	var ids []string
	for rows.Next() {
		var idUUID pgtype.UUID
		if err := rows.Scan(&idUUID); err != nil {
			rows.Close()
			return false, nil, 0, fmt.Errorf("scan participant: %w", err)
		}
		ids = append(ids, uuidOrEmpty(idUUID))
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return false, nil, 0, fmt.Errorf("list participants: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, nil, 0, fmt.Errorf("commit tx: %w", err)
	}
	return true, ids, finalElapsed, nil
}

// CancelSession flips a pending or active session to cancelled. The
// returned bool reports whether a row actually changed; the running timer,
// if any, halts on its next poll.
func (s *SessionsStore) CancelSession(ctx context.Context, sessionID string) (bool, error) {
	const q = `
		UPDATE sessions
		SET status = 'cancelled'
		WHERE id = $1 AND status IN ('pending', 'active')
	`
	ct, err := s.pool.Exec(ctx, q, sessionID)
	if err != nil {
		return false, fmt.Errorf("cancel session: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}

func (s *SessionsStore) ListSessionsForUser(ctx context.Context, userID string, limit int) ([]domain.Session, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	const q = `
		SELECT ` + sessionColumns + `
		FROM sessions
		WHERE id IN (SELECT session_id FROM session_participants WHERE user_id = $1)
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := s.pool.Query(ctx, q, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []domain.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return out, nil
}

// ListActiveSessionIDs exists for boot-time reconciliation logging: any
// session still marked active at startup had its timer die with the
// previous process.
func (s *SessionsStore) ListActiveSessionIDs(ctx context.Context) ([]string, error) {
	const q = `SELECT id FROM sessions WHERE status = 'active' ORDER BY started_at ASC`

	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list active sessions: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var idUUID pgtype.UUID
		if err := rows.Scan(&idUUID); err != nil {
			return nil, fmt.Errorf("scan session id: %w", err)
		}
		out = append(out, uuidOrEmpty(idUUID))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list active sessions: %w", err)
	}
	return out, nil
}
