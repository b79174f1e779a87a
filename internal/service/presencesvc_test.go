package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"netpulseserver/internal/domain"
	"netpulseserver/internal/wire"
)

func TestPresenceServiceConnected(t *testing.T) {
	now := time.Date(2025, 7, 2, 9, 0, 0, 0, time.UTC)
	var stored domain.PresenceStatus
	users := &stubUsersStore{
		t: t,
		setStatusFunc: func(_ context.Context, userID string, status domain.PresenceStatus, when time.Time) error {
			if userID != "user-1" || !when.Equal(now) {
				t.Fatalf("unexpected set status args: %s %s", userID, when)
			}
			stored = status
			return nil
		},
		getUserByIDFunc: func(_ context.Context, id string) (domain.User, error) {
			return domain.User{ID: id, Username: "player", Status: stored}, nil
		},
	}
	rec := &recordingNotifier{}
	svc := &PresenceService{Users: users, Notifier: rec, Now: func() time.Time { return now }}

	if err := svc.Connected(context.Background(), "user-1"); err != nil {
		t.Fatalf("Connected: %v", err)
	}
	if stored != domain.StatusOnline {
		t.Fatalf("expected online, stored %s", stored)
	}

	events := rec.friendEvents("user-1")
	if len(events) != 1 || events[0].Type != wire.TypeFriendStatusChanged {
		t.Fatalf("unexpected events: %+v", events)
	}
	data := events[0].Data.(wire.FriendStatusChangedData)
	if data.UserID != "user-1" || data.Username != "player" || data.Status != domain.StatusOnline {
		t.Fatalf("unexpected payload: %+v", data)
	}
}

func TestPresenceServiceDisconnected(t *testing.T) {
	var stored domain.PresenceStatus
	users := &stubUsersStore{
		t: t,
		setStatusFunc: func(_ context.Context, _ string, status domain.PresenceStatus, _ time.Time) error {
			stored = status
			return nil
		},
		getUserByIDFunc: func(_ context.Context, id string) (domain.User, error) {
			return domain.User{ID: id, Username: "player", Status: stored}, nil
		},
	}
	svc := &PresenceService{Users: users, Notifier: &recordingNotifier{}}

	if err := svc.Disconnected(context.Background(), "user-1"); err != nil {
		t.Fatalf("Disconnected: %v", err)
	}
	if stored != domain.StatusOffline {
		t.Fatalf("expected offline, stored %s", stored)
	}
}

func TestPresenceServiceSetStatus(t *testing.T) {
	var stored domain.PresenceStatus
	users := &stubUsersStore{
		t: t,
		setStatusFunc: func(_ context.Context, _ string, status domain.PresenceStatus, _ time.Time) error {
			stored = status
			return nil
		},
		getUserByIDFunc: func(_ context.Context, id string) (domain.User, error) {
			return domain.User{ID: id, Username: "player", Status: stored}, nil
		},
	}
	rec := &recordingNotifier{}
	svc := &PresenceService{Users: users, Notifier: rec}

	status, err := svc.SetStatus(context.Background(), "user-1", "busy")
	if err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	if status != domain.StatusBusy || stored != domain.StatusBusy {
		t.Fatalf("unexpected status: %s stored %s", status, stored)
	}
	if events := rec.friendEvents("user-1"); len(events) != 1 {
		t.Fatalf("expected one friend broadcast, got %+v", events)
	}
}

func TestPresenceServiceSetStatusRejectsUnknown(t *testing.T) {
	svc := &PresenceService{Users: &stubUsersStore{t: t}, Notifier: &recordingNotifier{}}

	_, err := svc.SetStatus(context.Background(), "user-1", "invisible")
	var ve *domain.ValidationError
	if !errors.As(err, &ve) || ve.Fields["status"] == "" {
		t.Fatalf("expected status validation error, got %v", err)
	}
}

func TestPresenceServiceSetStatusStoreFailure(t *testing.T) {
	users := &stubUsersStore{
		t: t,
		setStatusFunc: func(_ context.Context, _ string, _ domain.PresenceStatus, _ time.Time) error {
			return errors.New("db down")
		},
	}
	rec := &recordingNotifier{}
	svc := &PresenceService{Users: users, Notifier: rec}

	if _, err := svc.SetStatus(context.Background(), "user-1", "away"); err == nil {
		t.Fatal("expected store error to propagate")
	}
	if len(rec.toFriends) != 0 {
		t.Fatal("expected no broadcast when the write failed")
	}
}
