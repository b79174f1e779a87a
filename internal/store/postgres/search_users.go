package postgres

import (
	"context"
	"fmt"
	"strings"

	"netpulseserver/internal/domain"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

type UserSearchStore struct {
	pool *pgxpool.Pool
}

func NewUserSearchStore(pool *pgxpool.Pool) *UserSearchStore {
	return &UserSearchStore{pool: pool}
}

// SearchUsers matches usernames case-insensitively and annotates each hit
// with the friendship state relative to the searching user, so the client
// can render the right button without a second round trip.
func (s *UserSearchStore) SearchUsers(ctx context.Context, q string, limit int, searcherID string) ([]domain.SearchResult, error) {
	if limit <= 0 || limit > 50 {
		limit = 20
	}

	q = strings.TrimSpace(q)
	if q == "" {
		return []domain.SearchResult{}, nil
	}

	like := "%" + q + "%"
	const query = `
		SELECT u.id, u.username, u.status,
			CASE
				WHEN f.id IS NULL THEN 'none'
				WHEN f.accepted THEN 'friend'
				WHEN f.user_id = $3 THEN 'request_sent'
				ELSE 'request_received'
			END AS friendship_status
		FROM users u
		LEFT JOIN friendships f
			ON (f.user_id = u.id AND f.friend_id = $3)
			OR (f.user_id = $3 AND f.friend_id = u.id)
		WHERE u.id <> $3
		  AND u.username ILIKE $1
		ORDER BY u.username ASC
		LIMIT $2
	`

	rows, err := s.pool.Query(ctx, query, like, limit, searcherID)
	if err != nil {
		return nil, fmt.Errorf("search users: %w", err)
	}
	defer rows.Close()

	var out []domain.SearchResult
	for rows.Next() {
		var idUUID pgtype.UUID
		var res domain.SearchResult
		if err := rows.Scan(&idUUID, &res.Username, &res.Status, &res.FriendshipStatus); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		res.UserID = uuidOrEmpty(idUUID)
		out = append(out, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("search users: %w", err)
	}

	return out, nil
}
