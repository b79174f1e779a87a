package postgres

import (
	"context"
	"fmt"

	"netpulseserver/internal/domain"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

type MessagesStore struct {
	pool *pgxpool.Pool
}

func NewMessagesStore(pool *pgxpool.Pool) *MessagesStore {
	return &MessagesStore{pool: pool}
}

func (s *MessagesStore) CreateMessage(ctx context.Context, sessionID, userID, content string) (domain.ChatMessage, error) {
	const q = `
		INSERT INTO chat_messages (session_id, user_id, content)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`

	var (
		msg    domain.ChatMessage
		idUUID pgtype.UUID
	)
	if err := s.pool.QueryRow(ctx, q, sessionID, userID, content).Scan(&idUUID, &msg.CreatedAt); err != nil {
		return domain.ChatMessage{}, fmt.Errorf("insert chat message: %w", err)
	}
	msg.ID = uuidOrEmpty(idUUID)
	msg.SessionID = sessionID
	msg.UserID = userID
	msg.Content = content
	return msg, nil
}
