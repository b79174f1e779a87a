package service

import (
	"context"
	"time"

	"netpulseserver/internal/domain"
	"netpulseserver/internal/wire"
)

// Notifier is the outbound fan-out surface, implemented by the realtime
// package. Every call is fire-and-forget and must happen only after the
// state it announces is committed.
type Notifier interface {
	ToUser(ctx context.Context, userID string, event wire.Event)
	ToSession(ctx context.Context, sessionID string, event wire.Event)
	ToFriends(ctx context.Context, userID string, event wire.Event)
}

// PresenceService owns the users.status column and the friend
// notifications that follow every transition.
type PresenceService struct {
	Users    UsersStore
	Notifier Notifier
	Now      func() time.Time
}

func (s *PresenceService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Connected runs when a connection authenticates.
func (s *PresenceService) Connected(ctx context.Context, userID string) error {
	return s.transition(ctx, userID, domain.StatusOnline)
}

// Disconnected runs when the user's last live connection goes away.
func (s *PresenceService) Disconnected(ctx context.Context, userID string) error {
	return s.transition(ctx, userID, domain.StatusOffline)
}

func (s *PresenceService) SetStatus(ctx context.Context, userID, status string) (domain.PresenceStatus, error) {
	st := domain.PresenceStatus(status)
	if !domain.ValidPresenceStatus(st) {
		return "", domain.NewValidationError(map[string]string{"status": "unknown status"})
	}
	if err := s.transition(ctx, userID, st); err != nil {
		return "", err
	}
	return st, nil
}

func (s *PresenceService) transition(ctx context.Context, userID string, st domain.PresenceStatus) error {
	if err := s.Users.SetStatus(ctx, userID, st, s.now()); err != nil {
		return err
	}
	u, err := s.Users.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}

	s.Notifier.ToFriends(ctx, userID, wire.Event{
		Type: wire.TypeFriendStatusChanged,
		Data: wire.FriendStatusChangedData{UserID: userID, Username: u.Username, Status: st},
	})
	return nil
}
