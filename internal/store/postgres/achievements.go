package postgres

import (
	"context"
	"fmt"
	"time"

	"netpulseserver/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

type AchievementsStore struct {
	pool *pgxpool.Pool
}

func NewAchievementsStore(pool *pgxpool.Pool) *AchievementsStore {
	return &AchievementsStore{pool: pool}
}

const achievementColumns = `id, key, name, description, metric, threshold`

func scanAchievement(row pgx.Row) (domain.Achievement, error) {
	var (
		ach    domain.Achievement
		idUUID pgtype.UUID
	)
	err := row.Scan(&idUUID, &ach.Key, &ach.Name, &ach.Description, &ach.Metric, &ach.Threshold)
	if err != nil {
		return domain.Achievement{}, err
	}
	ach.ID = uuidOrEmpty(idUUID)
	return ach, nil
}

// ListByMetric returns the rules for one counter family in ascending
// threshold order, which is the order the evaluator checks them in.
func (s *AchievementsStore) ListByMetric(ctx context.Context, metric domain.AchievementMetric) ([]domain.Achievement, error) {
	const q = `
		SELECT ` + achievementColumns + `
		FROM achievements
		WHERE metric = $1
		ORDER BY threshold ASC
	`

	rows, err := s.pool.Query(ctx, q, metric)
	if err != nil {
		return nil, fmt.Errorf("list achievements by metric: %w", err)
	}
	defer rows.Close()

	var out []domain.Achievement
	for rows.Next() {
		ach, err := scanAchievement(rows)
		if err != nil {
			return nil, fmt.Errorf("scan achievement: %w", err)
		}
		out = append(out, ach)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list achievements by metric: %w", err)
	}
	return out, nil
}

// ListStatusForUser returns the whole catalog with per-user earned state.
func (s *AchievementsStore) ListStatusForUser(ctx context.Context, userID string) ([]domain.AchievementStatus, error) {
	const q = `
		SELECT a.id, a.key, a.name, a.description, a.metric, a.threshold,
		       ua.earned_at
		FROM achievements a
		LEFT JOIN user_achievements ua
			ON ua.achievement_id = a.id AND ua.user_id = $1
		ORDER BY a.metric ASC, a.threshold ASC
	`

	rows, err := s.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("list achievement status: %w", err)
	}
	defer rows.Close()

	var out []domain.AchievementStatus
	for rows.Next() {
		var (
			st       domain.AchievementStatus
			idUUID   pgtype.UUID
			earnedTS pgtype.Timestamptz
		)
		err := rows.Scan(&idUUID, &st.Key, &st.Name, &st.Description, &st.Metric, &st.Threshold, &earnedTS)
		if err != nil {
			return nil, fmt.Errorf("scan achievement status: %w", err)
		}
		st.ID = uuidOrEmpty(idUUID)
		st.EarnedAt = timestamptzPtr(earnedTS)
		st.Earned = st.EarnedAt != nil
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list achievement status: %w", err)
	}
	return out, nil
}

// Grant records an earned achievement. It reports false when the user
// already had it, so callers announce each achievement at most once.
func (s *AchievementsStore) Grant(ctx context.Context, userID, achievementID string, when time.Time) (bool, error) {
	const q = `
		INSERT INTO user_achievements (user_id, achievement_id, earned_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, achievement_id) DO NOTHING
	`
	ct, err := s.pool.Exec(ctx, q, userID, achievementID, when)
	if err != nil {
		return false, fmt.Errorf("grant achievement: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}

func (s *AchievementsStore) CountEarned(ctx context.Context, userID string) (int, error) {
	const q = `SELECT count(*) FROM user_achievements WHERE user_id = $1`
	var n int
	if err := s.pool.QueryRow(ctx, q, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count achievements: %w", err)
	}
	return n, nil
}
