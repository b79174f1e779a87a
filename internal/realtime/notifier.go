package realtime

import (
	"context"
	"log/slog"
	"time"

	"netpulseserver/internal/wire"
)

const pushTimeout = 10 * time.Second

type ParticipantSource interface {
	ListParticipantIDs(ctx context.Context, sessionID string) ([]string, error)
}

type FriendSource interface {
	ListFriendIDs(ctx context.Context, userID string) ([]string, error)
}

// PushFallback receives events whose recipient had no live connection.
// Implementations decide which events are worth a push.
type PushFallback interface {
	Notify(ctx context.Context, userID string, event wire.Event)
}

// Notifier fans events out to their audience. Everything here is
// fire-and-forget: callers must have committed their own state first, and
// no delivery failure ever propagates back.
type Notifier struct {
	Registry     *Registry
	Participants ParticipantSource
	Friends      FriendSource
	Push         PushFallback // optional
	Logger       *slog.Logger
}

// ToUser delivers to one user. When the user has no live connection the
// event is offered to the push fallback on a detached context, so a slow
// push provider cannot stall the caller.
func (n *Notifier) ToUser(ctx context.Context, userID string, event wire.Event) {
	if n.Registry.Send(userID, event) {
		return
	}
	if n.Push == nil {
		return
	}
	go func() {
		pushCtx, cancel := context.WithTimeout(context.Background(), pushTimeout)
		defer cancel()
		n.Push.Notify(pushCtx, userID, event)
	}()
}

// ToSession delivers to every current participant of the session,
// including the originator.
func (n *Notifier) ToSession(ctx context.Context, sessionID string, event wire.Event) {
	ids, err := n.Participants.ListParticipantIDs(ctx, sessionID)
	if err != nil {
		n.Logger.Warn("session fan-out: list participants", "session_id", sessionID, "err", err)
		return
	}
	for _, id := range ids {
		n.Registry.Send(id, event)
	}
}

// ToFriends delivers to every accepted friend of the user.
func (n *Notifier) ToFriends(ctx context.Context, userID string, event wire.Event) {
	ids, err := n.Friends.ListFriendIDs(ctx, userID)
	if err != nil {
		n.Logger.Warn("friend fan-out: list friends", "user_id", userID, "err", err)
		return
	}
	for _, id := range ids {
		n.Registry.Send(id, event)
	}
}
