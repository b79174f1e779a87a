package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"netpulseserver/internal/domain"
	"netpulseserver/internal/notifications"
	"netpulseserver/internal/wire"
)

type NotificationTokensStore interface {
	UpsertToken(ctx context.Context, userID, token, platform string, when time.Time) (domain.NotificationToken, error)
	DeleteToken(ctx context.Context, userID, token string) error
	// PurgeToken removes the token for whichever user holds it now.
	PurgeToken(ctx context.Context, token string) error
	ListTokens(ctx context.Context, userID string) ([]domain.NotificationToken, error)
}

type PushSender interface {
	Send(ctx context.Context, token, title, body string, data map[string]string) error
}

// PushService keeps device tokens registered and turns selected realtime
// events into banner pushes for users with no live connection. Only friend
// requests and session invitations warrant a banner; everything else is
// dropped here.
type PushService struct {
	Tokens NotificationTokensStore
	Sender PushSender
	Logger *slog.Logger
	Now    func() time.Time
}

func (s *PushService) RegisterToken(ctx context.Context, userID, token, platform string) (domain.NotificationToken, error) {
	if s.Tokens == nil {
		return domain.NotificationToken{}, errors.New("notifications unavailable")
	}
	token = strings.TrimSpace(token)
	platform = strings.TrimSpace(strings.ToLower(platform))
	if platform == "" {
		platform = "ios"
	}
	if token == "" {
		return domain.NotificationToken{}, domain.NewValidationError(map[string]string{"token": "required"})
	}
	if platform != "ios" {
		return domain.NotificationToken{}, domain.NewValidationError(map[string]string{"platform": "must be ios"})
	}
	when := s.now().UTC().Truncate(time.Millisecond)
	return s.Tokens.UpsertToken(ctx, userID, token, platform, when)
}

func (s *PushService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *PushService) RemoveToken(ctx context.Context, userID, token string) error {
	if s.Tokens == nil {
		return errors.New("notifications unavailable")
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.NewValidationError(map[string]string{"token": "required"})
	}
	return s.Tokens.DeleteToken(ctx, userID, token)
}

// Notify is the realtime delivery fallback. Failures are logged and
// swallowed: push delivery is best effort by contract, and a token the
// provider reports as gone is purged so it is never tried again.
func (s *PushService) Notify(ctx context.Context, userID string, event wire.Event) {
	if s.Tokens == nil || s.Sender == nil {
		return
	}
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var (
		title string
		body  string
		data  map[string]string
	)
	switch d := event.Data.(type) {
	case wire.FriendRequestReceivedData:
		title = "Friend request"
		body = d.FromUsername + " sent you a friend request."
		data = map[string]string{
			"type":       event.Type,
			"request_id": d.RequestID,
			"user_id":    d.FromUserID,
		}
	case wire.SessionInvitationData:
		title = "Session invitation"
		body = d.FromUsername + " invited you to a session."
		data = map[string]string{
			"type":          event.Type,
			"invitation_id": d.InvitationID,
			"session_id":    d.SessionID,
		}
	default:
		return
	}

	tokens, err := s.Tokens.ListTokens(ctx, userID)
	if err != nil {
		logger.Error("push: list tokens failed", "err", err, "user_id", userID)
		return
	}
	for _, tok := range tokens {
		if err := s.Sender.Send(ctx, tok.Token, title, body, data); err != nil {
			if errors.Is(err, notifications.ErrInvalidToken) {
				if purgeErr := s.Tokens.PurgeToken(ctx, tok.Token); purgeErr != nil {
					logger.Error("push: purge invalid token failed", "err", purgeErr, "user_id", userID)
				}
				continue
			}
			logger.Error("push: send failed", "err", err, "user_id", userID)
		}
	}
}
