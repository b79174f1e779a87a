package postgres

import (
	"context"
	"fmt"

	"netpulseserver/internal/domain"

	"github.com/jackc/pgx/v5/pgxpool"
)

type StatsStore struct {
	pool *pgxpool.Pool
}

func NewStatsStore(pool *pgxpool.Pool) *StatsStore {
	return &StatsStore{pool: pool}
}

func (s *StatsStore) Snapshot(ctx context.Context) (domain.Stats, error) {
	const q = `
		SELECT
			(SELECT count(*) FROM users) AS total_users,
			(SELECT count(*) FROM users WHERE status = 'online') AS online_users,
			(SELECT count(*) FROM sessions WHERE status = 'completed') AS total_completed_sessions,
			(SELECT count(*) FROM sessions WHERE status = 'active') AS active_sessions
	`

	var st domain.Stats
	err := s.pool.QueryRow(ctx, q).Scan(
		&st.TotalUsers,
		&st.OnlineUsers,
		&st.TotalCompletedSessions,
		&st.ActiveSessions,
	)
	if err != nil {
		return domain.Stats{}, fmt.Errorf("stats snapshot: %w", err)
	}
	return st, nil
}
