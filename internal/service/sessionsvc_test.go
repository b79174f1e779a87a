package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"netpulseserver/internal/domain"
	"netpulseserver/internal/wire"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type sentEvent struct {
	target string
	event  wire.Event
}

// recordingNotifier captures every fan-out call. Timer goroutines write to
// it concurrently, so access is mutex-guarded.
type recordingNotifier struct {
	mu        sync.Mutex
	toUser    []sentEvent
	toSession []sentEvent
	toFriends []sentEvent
}

func (n *recordingNotifier) ToUser(_ context.Context, userID string, event wire.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.toUser = append(n.toUser, sentEvent{target: userID, event: event})
}

func (n *recordingNotifier) ToSession(_ context.Context, sessionID string, event wire.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.toSession = append(n.toSession, sentEvent{target: sessionID, event: event})
}

func (n *recordingNotifier) ToFriends(_ context.Context, userID string, event wire.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.toFriends = append(n.toFriends, sentEvent{target: userID, event: event})
}

func (n *recordingNotifier) userEvents(userID string) []wire.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []wire.Event
	for _, s := range n.toUser {
		if s.target == userID {
			out = append(out, s.event)
		}
	}
	return out
}

func (n *recordingNotifier) sessionEvents(sessionID string) []wire.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []wire.Event
	for _, s := range n.toSession {
		if s.target == sessionID {
			out = append(out, s.event)
		}
	}
	return out
}

func (n *recordingNotifier) friendEvents(userID string) []wire.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []wire.Event
	for _, s := range n.toFriends {
		if s.target == userID {
			out = append(out, s.event)
		}
	}
	return out
}

// recordingEvaluator implements every evaluator interface and records who
// was evaluated. Per-user errors can be injected for the session family.
type recordingEvaluator struct {
	mu          sync.Mutex
	sessions    []string
	times       []string
	friends     []string
	sessionsErr map[string]error
}

func (e *recordingEvaluator) EvaluateSessions(_ context.Context, userID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sessions = append(e.sessions, userID)
	return e.sessionsErr[userID]
}

func (e *recordingEvaluator) EvaluateTime(_ context.Context, userID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.times = append(e.times, userID)
	return nil
}

func (e *recordingEvaluator) EvaluateFriends(_ context.Context, userID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.friends = append(e.friends, userID)
	return nil
}

type stubSessionsStore struct {
	t *testing.T

	createSessionFunc       func(context.Context, string, int) (domain.Session, error)
	getSessionFunc          func(context.Context, string) (domain.Session, error)
	addParticipantFunc      func(context.Context, string, string) error
	isParticipantFunc       func(context.Context, string, string) (bool, error)
	countParticipantsFunc   func(context.Context, string) (int, error)
	listParticipantIDsFunc  func(context.Context, string) ([]string, error)
	startSessionFunc        func(context.Context, string, string, time.Time) (domain.Session, error)
	advanceElapsedFunc      func(context.Context, string, int) (bool, error)
	completeSessionFunc     func(context.Context, string, time.Time) (bool, []string, int, error)
	cancelSessionFunc       func(context.Context, string) (bool, error)
	listSessionsForUserFunc func(context.Context, string, int) ([]domain.Session, error)
}

func (s *stubSessionsStore) CreateSession(ctx context.Context, creatorID string, durationSeconds int) (domain.Session, error) {
	if s.createSessionFunc != nil {
		return s.createSessionFunc(ctx, creatorID, durationSeconds)
	}
	s.t.Fatalf("CreateSession called unexpectedly")
	return domain.Session{}, errors.New("unexpected call")
}

func (s *stubSessionsStore) GetSession(ctx context.Context, id string) (domain.Session, error) {
	if s.getSessionFunc != nil {
		return s.getSessionFunc(ctx, id)
	}
	s.t.Fatalf("GetSession called unexpectedly")
	return domain.Session{}, errors.New("unexpected call")
}

func (s *stubSessionsStore) AddParticipant(ctx context.Context, sessionID, userID string) error {
	if s.addParticipantFunc != nil {
		return s.addParticipantFunc(ctx, sessionID, userID)
	}
	s.t.Fatalf("AddParticipant called unexpectedly")
	return errors.New("unexpected call")
}

func (s *stubSessionsStore) IsParticipant(ctx context.Context, sessionID, userID string) (bool, error) {
	if s.isParticipantFunc != nil {
		return s.isParticipantFunc(ctx, sessionID, userID)
	}
	s.t.Fatalf("IsParticipant called unexpectedly")
	return false, errors.New("unexpected call")
}

func (s *stubSessionsStore) CountParticipants(ctx context.Context, sessionID string) (int, error) {
	if s.countParticipantsFunc != nil {
		return s.countParticipantsFunc(ctx, sessionID)
	}
	s.t.Fatalf("CountParticipants called unexpectedly")
	return 0, errors.New("unexpected call")
}

func (s *stubSessionsStore) ListParticipantIDs(ctx context.Context, sessionID string) ([]string, error) {
	if s.listParticipantIDsFunc != nil {
		return s.listParticipantIDsFunc(ctx, sessionID)
	}
	s.t.Fatalf("ListParticipantIDs called unexpectedly")
	return nil, errors.New("unexpected call")
}

func (s *stubSessionsStore) StartSession(ctx context.Context, sessionID, creatorID string, when time.Time) (domain.Session, error) {
	if s.startSessionFunc != nil {
		return s.startSessionFunc(ctx, sessionID, creatorID, when)
	}
	s.t.Fatalf("StartSession called unexpectedly")
	return domain.Session{}, errors.New("unexpected call")
}

func (s *stubSessionsStore) AdvanceElapsed(ctx context.Context, sessionID string, elapsed int) (bool, error) {
	if s.advanceElapsedFunc != nil {
		return s.advanceElapsedFunc(ctx, sessionID, elapsed)
	}
	s.t.Fatalf("AdvanceElapsed called unexpectedly")
	return false, errors.New("unexpected call")
}

func (s *stubSessionsStore) CompleteSession(ctx context.Context, sessionID string, when time.Time) (bool, []string, int, error) {
	if s.completeSessionFunc != nil {
		return s.completeSessionFunc(ctx, sessionID, when)
	}
	s.t.Fatalf("CompleteSession called unexpectedly")
	return false, nil, 0, errors.New("unexpected call")
}

func (s *stubSessionsStore) CancelSession(ctx context.Context, sessionID string) (bool, error) {
	if s.cancelSessionFunc != nil {
		return s.cancelSessionFunc(ctx, sessionID)
	}
	s.t.Fatalf("CancelSession called unexpectedly")
	return false, errors.New("unexpected call")
}

func (s *stubSessionsStore) ListSessionsForUser(ctx context.Context, userID string, limit int) ([]domain.Session, error) {
	if s.listSessionsForUserFunc != nil {
		return s.listSessionsForUserFunc(ctx, userID, limit)
	}
	s.t.Fatalf("ListSessionsForUser called unexpectedly")
	return nil, errors.New("unexpected call")
}

type stubInvitationsStore struct {
	t *testing.T

	createInvitationFunc  func(context.Context, string, string, string) (domain.SessionInvitation, error)
	getInvitationFunc     func(context.Context, string) (domain.SessionInvitation, error)
	respondInvitationFunc func(context.Context, string, string, domain.InvitationStatus, time.Time) (domain.SessionInvitation, error)
}

func (s *stubInvitationsStore) CreateInvitation(ctx context.Context, sessionID, senderID, receiverID string) (domain.SessionInvitation, error) {
	if s.createInvitationFunc != nil {
		return s.createInvitationFunc(ctx, sessionID, senderID, receiverID)
	}
	s.t.Fatalf("CreateInvitation called unexpectedly")
	return domain.SessionInvitation{}, errors.New("unexpected call")
}

func (s *stubInvitationsStore) GetInvitation(ctx context.Context, id string) (domain.SessionInvitation, error) {
	if s.getInvitationFunc != nil {
		return s.getInvitationFunc(ctx, id)
	}
	s.t.Fatalf("GetInvitation called unexpectedly")
	return domain.SessionInvitation{}, errors.New("unexpected call")
}

func (s *stubInvitationsStore) RespondInvitation(ctx context.Context, id, receiverID string, status domain.InvitationStatus, when time.Time) (domain.SessionInvitation, error) {
	if s.respondInvitationFunc != nil {
		return s.respondInvitationFunc(ctx, id, receiverID, status, when)
	}
	s.t.Fatalf("RespondInvitation called unexpectedly")
	return domain.SessionInvitation{}, errors.New("unexpected call")
}

type stubMessagesStore struct {
	t *testing.T

	createMessageFunc func(context.Context, string, string, string) (domain.ChatMessage, error)
}

func (s *stubMessagesStore) CreateMessage(ctx context.Context, sessionID, userID, content string) (domain.ChatMessage, error) {
	if s.createMessageFunc != nil {
		return s.createMessageFunc(ctx, sessionID, userID, content)
	}
	s.t.Fatalf("CreateMessage called unexpectedly")
	return domain.ChatMessage{}, errors.New("unexpected call")
}

func TestSessionsServiceCreateDefaultsDuration(t *testing.T) {
	store := &stubSessionsStore{
		t: t,
		createSessionFunc: func(_ context.Context, creatorID string, durationSeconds int) (domain.Session, error) {
			if creatorID != "user-1" {
				t.Fatalf("unexpected creator: %s", creatorID)
			}
			if durationSeconds != domain.DefaultSessionDuration {
				t.Fatalf("expected default duration, got %d", durationSeconds)
			}
			return domain.Session{ID: "sess-1", CreatorID: creatorID, Status: domain.SessionPending, DurationSeconds: durationSeconds}, nil
		},
	}
	svc := &SessionsService{Sessions: store, Logger: discardLogger()}

	sess, err := svc.Create(context.Background(), "user-1", 0)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if sess.DurationSeconds != domain.DefaultSessionDuration {
		t.Fatalf("unexpected duration: %d", sess.DurationSeconds)
	}
}

func TestSessionsServiceCreateRejectsOutOfRange(t *testing.T) {
	svc := &SessionsService{Sessions: &stubSessionsStore{t: t}, Logger: discardLogger()}

	for _, duration := range []int{59, -1, 7201} {
		_, err := svc.Create(context.Background(), "user-1", duration)
		var ve *domain.ValidationError
		if !errors.As(err, &ve) {
			t.Fatalf("duration %d: expected validation error, got %v", duration, err)
		}
		if ve.Fields["duration_seconds"] == "" {
			t.Fatalf("duration %d: expected duration_seconds flagged, got %v", duration, ve.Fields)
		}
	}
}

func TestSessionsServiceInviteNotifiesInvitee(t *testing.T) {
	pending := domain.Session{ID: "sess-1", CreatorID: "user-1", Status: domain.SessionPending, DurationSeconds: 1800}
	store := &stubSessionsStore{
		t:              t,
		getSessionFunc: func(_ context.Context, _ string) (domain.Session, error) { return pending, nil },
	}
	invitations := &stubInvitationsStore{
		t: t,
		createInvitationFunc: func(_ context.Context, sessionID, senderID, receiverID string) (domain.SessionInvitation, error) {
			if sessionID != "sess-1" || senderID != "user-1" || receiverID != "user-2" {
				t.Fatalf("unexpected invitation args: %s %s %s", sessionID, senderID, receiverID)
			}
			return domain.SessionInvitation{ID: "inv-1", SessionID: sessionID, SenderID: senderID, ReceiverID: receiverID, Status: domain.InvitationPending}, nil
		},
	}
	users := usersByID(t, map[string]domain.User{
		"user-1": {ID: "user-1", Username: "host", Status: domain.StatusOnline},
		"user-2": {ID: "user-2", Username: "guest", Status: domain.StatusOnline},
	})
	rec := &recordingNotifier{}
	svc := &SessionsService{Sessions: store, Invitations: invitations, Users: users, Notifier: rec, Logger: discardLogger()}

	inv, err := svc.Invite(context.Background(), "user-1", "sess-1", "user-2")
	if err != nil {
		t.Fatalf("Invite: %v", err)
	}
	if inv.ID != "inv-1" {
		t.Fatalf("unexpected invitation: %+v", inv)
	}

	events := rec.userEvents("user-2")
	if len(events) != 1 || events[0].Type != wire.TypeSessionInvitation {
		t.Fatalf("unexpected invitee events: %+v", events)
	}
	data := events[0].Data.(wire.SessionInvitationData)
	if data.InvitationID != "inv-1" || data.SessionID != "sess-1" || data.FromUsername != "host" || data.DurationSeconds != 1800 {
		t.Fatalf("unexpected invitation payload: %+v", data)
	}
}

func TestSessionsServiceInviteRequiresOnlineInvitee(t *testing.T) {
	pending := domain.Session{ID: "sess-1", CreatorID: "user-1", Status: domain.SessionPending}
	store := &stubSessionsStore{
		t:              t,
		getSessionFunc: func(_ context.Context, _ string) (domain.Session, error) { return pending, nil },
	}
	users := usersByID(t, map[string]domain.User{
		"user-2": {ID: "user-2", Username: "guest", Status: domain.StatusOffline},
	})
	svc := &SessionsService{Sessions: store, Invitations: &stubInvitationsStore{t: t}, Users: users, Notifier: &recordingNotifier{}, Logger: discardLogger()}

	_, err := svc.Invite(context.Background(), "user-1", "sess-1", "user-2")
	if !errors.Is(err, domain.ErrUserNotOnline) {
		t.Fatalf("expected user not online, got %v", err)
	}
}

func TestSessionsServiceInviteOnlyCreatorOfPending(t *testing.T) {
	sess := domain.Session{ID: "sess-1", CreatorID: "user-1", Status: domain.SessionPending}
	store := &stubSessionsStore{
		t:              t,
		getSessionFunc: func(_ context.Context, _ string) (domain.Session, error) { return sess, nil },
	}
	svc := &SessionsService{Sessions: store, Invitations: &stubInvitationsStore{t: t}, Users: &stubUsersStore{t: t}, Notifier: &recordingNotifier{}, Logger: discardLogger()}

	if _, err := svc.Invite(context.Background(), "user-9", "sess-1", "user-2"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found for non-creator, got %v", err)
	}

	sess.Status = domain.SessionActive
	if _, err := svc.Invite(context.Background(), "user-1", "sess-1", "user-2"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found for started session, got %v", err)
	}
}

func TestSessionsServiceRespondAcceptJoins(t *testing.T) {
	now := time.Date(2025, 7, 1, 18, 0, 0, 0, time.UTC)
	inv := domain.SessionInvitation{ID: "inv-1", SessionID: "sess-1", SenderID: "user-1", ReceiverID: "user-2", Status: domain.InvitationPending}
	sess := domain.Session{ID: "sess-1", CreatorID: "user-1", Status: domain.SessionPending, DurationSeconds: 1800}

	var joined bool
	store := &stubSessionsStore{
		t:              t,
		getSessionFunc: func(_ context.Context, _ string) (domain.Session, error) { return sess, nil },
		addParticipantFunc: func(_ context.Context, sessionID, userID string) error {
			if sessionID != "sess-1" || userID != "user-2" {
				t.Fatalf("unexpected join args: %s %s", sessionID, userID)
			}
			joined = true
			return nil
		},
	}
	invitations := &stubInvitationsStore{
		t:                 t,
		getInvitationFunc: func(_ context.Context, _ string) (domain.SessionInvitation, error) { return inv, nil },
		respondInvitationFunc: func(_ context.Context, id, receiverID string, status domain.InvitationStatus, when time.Time) (domain.SessionInvitation, error) {
			if id != "inv-1" || receiverID != "user-2" || status != domain.InvitationAccepted {
				t.Fatalf("unexpected respond args: %s %s %s", id, receiverID, status)
			}
			if !when.Equal(now) {
				t.Fatalf("unexpected responded_at: %s", when)
			}
			out := inv
			out.Status = status
			out.RespondedAt = &when
			return out, nil
		},
	}
	users := usersByID(t, map[string]domain.User{
		"user-2": {ID: "user-2", Username: "guest", Status: domain.StatusOnline},
	})
	rec := &recordingNotifier{}
	svc := &SessionsService{
		Sessions: store, Invitations: invitations, Users: users,
		Notifier: rec, Logger: discardLogger(), Now: func() time.Time { return now },
	}

	gotInv, gotSess, err := svc.RespondToInvitation(context.Background(), "user-2", "inv-1", true)
	if err != nil {
		t.Fatalf("RespondToInvitation: %v", err)
	}
	if gotInv.Status != domain.InvitationAccepted || gotSess.ID != "sess-1" {
		t.Fatalf("unexpected result: %+v %+v", gotInv, gotSess)
	}
	if !joined {
		t.Fatal("expected the receiver to join the session")
	}

	events := rec.userEvents("user-1")
	if len(events) != 1 || events[0].Type != wire.TypeInvitationAccepted {
		t.Fatalf("unexpected sender events: %+v", events)
	}
	data := events[0].Data.(wire.InvitationAcceptedData)
	if data.SessionID != "sess-1" || data.UserID != "user-2" || data.Username != "guest" {
		t.Fatalf("unexpected accepted payload: %+v", data)
	}
}

func TestSessionsServiceRespondDeclineKeepsRow(t *testing.T) {
	now := time.Date(2025, 7, 1, 18, 0, 0, 0, time.UTC)
	inv := domain.SessionInvitation{ID: "inv-1", SessionID: "sess-1", SenderID: "user-1", ReceiverID: "user-2", Status: domain.InvitationPending}
	sess := domain.Session{ID: "sess-1", CreatorID: "user-1", Status: domain.SessionPending}

	store := &stubSessionsStore{
		t:              t,
		getSessionFunc: func(_ context.Context, _ string) (domain.Session, error) { return sess, nil },
	}
	invitations := &stubInvitationsStore{
		t:                 t,
		getInvitationFunc: func(_ context.Context, _ string) (domain.SessionInvitation, error) { return inv, nil },
		respondInvitationFunc: func(_ context.Context, id, receiverID string, status domain.InvitationStatus, when time.Time) (domain.SessionInvitation, error) {
			if status != domain.InvitationDeclined {
				t.Fatalf("expected declined, got %s", status)
			}
			out := inv
			out.Status = status
			return out, nil
		},
	}
	rec := &recordingNotifier{}
	svc := &SessionsService{
		Sessions: store, Invitations: invitations, Users: &stubUsersStore{t: t},
		Notifier: rec, Logger: discardLogger(), Now: func() time.Time { return now },
	}

	gotInv, _, err := svc.RespondToInvitation(context.Background(), "user-2", "inv-1", false)
	if err != nil {
		t.Fatalf("RespondToInvitation: %v", err)
	}
	if gotInv.Status != domain.InvitationDeclined {
		t.Fatalf("unexpected status: %s", gotInv.Status)
	}

	events := rec.userEvents("user-1")
	if len(events) != 1 || events[0].Type != wire.TypeInvitationDeclined {
		t.Fatalf("unexpected sender events: %+v", events)
	}
}

func TestSessionsServiceRespondRejectsForeignInvitation(t *testing.T) {
	inv := domain.SessionInvitation{ID: "inv-1", SessionID: "sess-1", SenderID: "user-1", ReceiverID: "user-2", Status: domain.InvitationPending}
	invitations := &stubInvitationsStore{
		t:                 t,
		getInvitationFunc: func(_ context.Context, _ string) (domain.SessionInvitation, error) { return inv, nil },
	}
	svc := &SessionsService{Sessions: &stubSessionsStore{t: t}, Invitations: invitations, Users: &stubUsersStore{t: t}, Notifier: &recordingNotifier{}, Logger: discardLogger()}

	if _, _, err := svc.RespondToInvitation(context.Background(), "user-9", "inv-1", true); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found for foreign invitation, got %v", err)
	}
}

func TestSessionsServiceRespondSessionGone(t *testing.T) {
	inv := domain.SessionInvitation{ID: "inv-1", SessionID: "sess-1", SenderID: "user-1", ReceiverID: "user-2", Status: domain.InvitationPending}
	finished := domain.Session{ID: "sess-1", CreatorID: "user-1", Status: domain.SessionCompleted}

	store := &stubSessionsStore{
		t:              t,
		getSessionFunc: func(_ context.Context, _ string) (domain.Session, error) { return finished, nil },
	}
	invitations := &stubInvitationsStore{
		t:                 t,
		getInvitationFunc: func(_ context.Context, _ string) (domain.SessionInvitation, error) { return inv, nil },
	}
	svc := &SessionsService{Sessions: store, Invitations: invitations, Users: &stubUsersStore{t: t}, Notifier: &recordingNotifier{}, Logger: discardLogger()}

	if _, _, err := svc.RespondToInvitation(context.Background(), "user-2", "inv-1", true); !errors.Is(err, domain.ErrSessionUnavailable) {
		t.Fatalf("expected session unavailable, got %v", err)
	}
}

func TestSessionsServiceRespondAcceptMidSession(t *testing.T) {
	// Invitations answered after the session started still join it.
	inv := domain.SessionInvitation{ID: "inv-1", SessionID: "sess-1", SenderID: "user-1", ReceiverID: "user-2", Status: domain.InvitationPending}
	startedAt := time.Date(2025, 7, 1, 18, 0, 0, 0, time.UTC)
	active := domain.Session{ID: "sess-1", CreatorID: "user-1", Status: domain.SessionActive, DurationSeconds: 1800, StartedAt: &startedAt}

	store := &stubSessionsStore{
		t:                  t,
		getSessionFunc:     func(_ context.Context, _ string) (domain.Session, error) { return active, nil },
		addParticipantFunc: func(_ context.Context, _, _ string) error { return nil },
	}
	invitations := &stubInvitationsStore{
		t:                 t,
		getInvitationFunc: func(_ context.Context, _ string) (domain.SessionInvitation, error) { return inv, nil },
		respondInvitationFunc: func(_ context.Context, id, receiverID string, status domain.InvitationStatus, when time.Time) (domain.SessionInvitation, error) {
			out := inv
			out.Status = status
			return out, nil
		},
	}
	users := usersByID(t, map[string]domain.User{
		"user-2": {ID: "user-2", Username: "guest"},
	})
	svc := &SessionsService{Sessions: store, Invitations: invitations, Users: users, Notifier: &recordingNotifier{}, Logger: discardLogger()}

	_, gotSess, err := svc.RespondToInvitation(context.Background(), "user-2", "inv-1", true)
	if err != nil {
		t.Fatalf("RespondToInvitation: %v", err)
	}
	if gotSess.Status != domain.SessionActive {
		t.Fatalf("unexpected session status: %s", gotSess.Status)
	}
}

func TestSessionsServiceStartNeedsTwoParticipants(t *testing.T) {
	pending := domain.Session{ID: "sess-1", CreatorID: "user-1", Status: domain.SessionPending}
	store := &stubSessionsStore{
		t:                     t,
		getSessionFunc:        func(_ context.Context, _ string) (domain.Session, error) { return pending, nil },
		countParticipantsFunc: func(_ context.Context, _ string) (int, error) { return 1, nil },
	}
	svc := &SessionsService{Sessions: store, Notifier: &recordingNotifier{}, Logger: discardLogger()}

	if _, err := svc.Start(context.Background(), "user-1", "sess-1"); !errors.Is(err, domain.ErrSessionNotReady) {
		t.Fatalf("expected session not ready, got %v", err)
	}
}

func TestSessionsServiceStartRunsTimerToCompletion(t *testing.T) {
	start := time.Date(2025, 7, 1, 18, 0, 0, 0, time.UTC)
	pending := domain.Session{ID: "sess-1", CreatorID: "user-1", Status: domain.SessionPending, DurationSeconds: 60}

	var mu sync.Mutex
	var advanced []int
	completeCh := make(chan struct{})

	store := &stubSessionsStore{
		t:                     t,
		getSessionFunc:        func(_ context.Context, _ string) (domain.Session, error) { return pending, nil },
		countParticipantsFunc: func(_ context.Context, _ string) (int, error) { return 2, nil },
		startSessionFunc: func(_ context.Context, sessionID, creatorID string, when time.Time) (domain.Session, error) {
			if sessionID != "sess-1" || creatorID != "user-1" || !when.Equal(start) {
				t.Fatalf("unexpected start args: %s %s %s", sessionID, creatorID, when)
			}
			s := pending
			s.Status = domain.SessionActive
			s.StartedAt = &start
			return s, nil
		},
		advanceElapsedFunc: func(_ context.Context, _ string, elapsed int) (bool, error) {
			mu.Lock()
			advanced = append(advanced, elapsed)
			mu.Unlock()
			return true, nil
		},
		completeSessionFunc: func(_ context.Context, _ string, _ time.Time) (bool, []string, int, error) {
			close(completeCh)
			return true, []string{"user-1", "user-2"}, 60, nil
		},
	}

	rec := &recordingNotifier{}
	eval := &recordingEvaluator{}
	svc := &SessionsService{
		Sessions:     store,
		Notifier:     rec,
		Evaluator:    eval,
		Logger:       discardLogger(),
		Now:          func() time.Time { return start },
		TickInterval: time.Millisecond,
	}

	sess, err := svc.Start(context.Background(), "user-1", "sess-1")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if sess.Status != domain.SessionActive {
		t.Fatalf("unexpected status: %s", sess.Status)
	}

	select {
	case <-completeCh:
	case <-time.After(10 * time.Second):
		t.Fatal("timer never completed the session")
	}
	svc.StopTimers()

	mu.Lock()
	if len(advanced) != 60 {
		t.Fatalf("expected 60 persisted ticks, got %d", len(advanced))
	}
	for i, elapsed := range advanced {
		if elapsed != i+1 {
			t.Fatalf("tick %d persisted elapsed %d", i, elapsed)
		}
	}
	mu.Unlock()

	events := rec.sessionEvents("sess-1")
	if len(events) == 0 || events[0].Type != wire.TypeSessionStarted {
		t.Fatalf("expected session_started first, got %+v", events)
	}
	if last := events[len(events)-1]; last.Type != wire.TypeSessionCompleted {
		t.Fatalf("expected session_completed last, got %s", last.Type)
	} else if data := last.Data.(wire.SessionCompletedData); data.DurationSeconds != 60 {
		t.Fatalf("unexpected final elapsed: %+v", data)
	}

	var updates []wire.TimerUpdateData
	for _, ev := range events {
		if ev.Type == wire.TypeTimerUpdate {
			updates = append(updates, ev.Data.(wire.TimerUpdateData))
		}
	}
	if len(updates) != 12 {
		t.Fatalf("expected 12 timer updates, got %d", len(updates))
	}
	for i, u := range updates {
		wantElapsed := (i + 1) * 5
		if u.ElapsedSeconds != wantElapsed || u.RemainingSeconds != 60-wantElapsed {
			t.Fatalf("update %d: got %+v", i, u)
		}
	}

	eval.mu.Lock()
	defer eval.mu.Unlock()
	if len(eval.sessions) != 2 || len(eval.times) != 2 {
		t.Fatalf("expected both participants evaluated, got %v %v", eval.sessions, eval.times)
	}
}

func TestSessionsServiceTimerStopsWhenNoLongerActive(t *testing.T) {
	startedAt := time.Date(2025, 7, 1, 18, 0, 0, 0, time.UTC)
	active := domain.Session{ID: "sess-1", CreatorID: "user-1", Status: domain.SessionActive, DurationSeconds: 60, StartedAt: &startedAt}

	advCh := make(chan int, 1)
	completed := make(chan struct{}, 1)
	store := &stubSessionsStore{
		t: t,
		advanceElapsedFunc: func(_ context.Context, _ string, elapsed int) (bool, error) {
			advCh <- elapsed
			return false, nil
		},
		completeSessionFunc: func(_ context.Context, _ string, _ time.Time) (bool, []string, int, error) {
			completed <- struct{}{}
			return false, nil, 0, nil
		},
	}
	rec := &recordingNotifier{}
	svc := &SessionsService{Sessions: store, Notifier: rec, Logger: discardLogger(), TickInterval: time.Millisecond}

	svc.startTimer(active)

	if got := <-advCh; got != 1 {
		t.Fatalf("expected first tick to persist 1, got %d", got)
	}
	svc.StopTimers()

	select {
	case <-completed:
		t.Fatal("a session observed as no longer active must not be completed")
	default:
	}
	if events := rec.sessionEvents("sess-1"); len(events) != 0 {
		t.Fatalf("expected no broadcasts, got %+v", events)
	}
}

func TestSessionsServiceTimerDeduped(t *testing.T) {
	startedAt := time.Date(2025, 7, 1, 18, 0, 0, 0, time.UTC)
	active := domain.Session{ID: "sess-1", CreatorID: "user-1", Status: domain.SessionActive, DurationSeconds: 3, StartedAt: &startedAt}

	var mu sync.Mutex
	var advanced []int
	completeCh := make(chan struct{}, 2)
	store := &stubSessionsStore{
		t: t,
		advanceElapsedFunc: func(_ context.Context, _ string, elapsed int) (bool, error) {
			mu.Lock()
			advanced = append(advanced, elapsed)
			mu.Unlock()
			return true, nil
		},
		completeSessionFunc: func(_ context.Context, _ string, _ time.Time) (bool, []string, int, error) {
			completeCh <- struct{}{}
			return true, nil, 3, nil
		},
	}
	svc := &SessionsService{Sessions: store, Notifier: &recordingNotifier{}, Logger: discardLogger(), TickInterval: time.Millisecond}

	svc.startTimer(active)
	svc.startTimer(active)

	select {
	case <-completeCh:
	case <-time.After(10 * time.Second):
		t.Fatal("timer never completed the session")
	}
	svc.StopTimers()

	mu.Lock()
	defer mu.Unlock()
	if len(advanced) != 3 {
		t.Fatalf("expected a single timer (3 ticks), got %d ticks", len(advanced))
	}
	select {
	case <-completeCh:
		t.Fatal("second timer ran to completion")
	default:
	}
}

func TestSessionsServiceCancelCreatorOnly(t *testing.T) {
	sess := domain.Session{ID: "sess-1", CreatorID: "user-1", Status: domain.SessionPending}
	store := &stubSessionsStore{
		t:              t,
		getSessionFunc: func(_ context.Context, _ string) (domain.Session, error) { return sess, nil },
	}
	svc := &SessionsService{Sessions: store, Notifier: &recordingNotifier{}, Logger: discardLogger()}

	if err := svc.Cancel(context.Background(), "user-9", "sess-1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found for non-creator, got %v", err)
	}
}

func TestSessionsServiceCancelFinishedSession(t *testing.T) {
	sess := domain.Session{ID: "sess-1", CreatorID: "user-1", Status: domain.SessionCompleted}
	store := &stubSessionsStore{
		t:              t,
		getSessionFunc: func(_ context.Context, _ string) (domain.Session, error) { return sess, nil },
	}
	svc := &SessionsService{Sessions: store, Notifier: &recordingNotifier{}, Logger: discardLogger()}

	if err := svc.Cancel(context.Background(), "user-1", "sess-1"); !errors.Is(err, domain.ErrSessionNotCancellable) {
		t.Fatalf("expected not cancellable, got %v", err)
	}
}

func TestSessionsServiceCancelLostRace(t *testing.T) {
	sess := domain.Session{ID: "sess-1", CreatorID: "user-1", Status: domain.SessionActive}
	store := &stubSessionsStore{
		t:                 t,
		getSessionFunc:    func(_ context.Context, _ string) (domain.Session, error) { return sess, nil },
		cancelSessionFunc: func(_ context.Context, _ string) (bool, error) { return false, nil },
	}
	rec := &recordingNotifier{}
	svc := &SessionsService{Sessions: store, Notifier: rec, Logger: discardLogger()}

	if err := svc.Cancel(context.Background(), "user-1", "sess-1"); !errors.Is(err, domain.ErrSessionNotCancellable) {
		t.Fatalf("expected not cancellable, got %v", err)
	}
	if events := rec.sessionEvents("sess-1"); len(events) != 0 {
		t.Fatalf("expected no broadcast after a lost race, got %+v", events)
	}
}

func TestSessionsServiceCancelBroadcasts(t *testing.T) {
	sess := domain.Session{ID: "sess-1", CreatorID: "user-1", Status: domain.SessionActive}
	store := &stubSessionsStore{
		t:                 t,
		getSessionFunc:    func(_ context.Context, _ string) (domain.Session, error) { return sess, nil },
		cancelSessionFunc: func(_ context.Context, _ string) (bool, error) { return true, nil },
	}
	rec := &recordingNotifier{}
	svc := &SessionsService{Sessions: store, Notifier: rec, Logger: discardLogger()}

	if err := svc.Cancel(context.Background(), "user-1", "sess-1"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	events := rec.sessionEvents("sess-1")
	if len(events) != 1 || events[0].Type != wire.TypeSessionCancelled {
		t.Fatalf("unexpected events: %+v", events)
	}
}

func TestSessionsServiceCancelByOperatorSkipsCreatorCheck(t *testing.T) {
	sess := domain.Session{ID: "sess-1", CreatorID: "user-1", Status: domain.SessionActive}
	store := &stubSessionsStore{
		t:                 t,
		getSessionFunc:    func(_ context.Context, _ string) (domain.Session, error) { return sess, nil },
		cancelSessionFunc: func(_ context.Context, _ string) (bool, error) { return true, nil },
	}
	svc := &SessionsService{Sessions: store, Notifier: &recordingNotifier{}, Logger: discardLogger()}

	if err := svc.CancelByOperator(context.Background(), "sess-1"); err != nil {
		t.Fatalf("CancelByOperator: %v", err)
	}
}

func TestSessionsServiceChatValidation(t *testing.T) {
	svc := &SessionsService{Sessions: &stubSessionsStore{t: t}, Messages: &stubMessagesStore{t: t}, Users: &stubUsersStore{t: t}, Notifier: &recordingNotifier{}, Logger: discardLogger()}

	for _, content := range []string{"", "   ", strings.Repeat("x", 1001)} {
		_, err := svc.SendChatMessage(context.Background(), "user-1", "sess-1", content)
		var ve *domain.ValidationError
		if !errors.As(err, &ve) || ve.Fields["content"] == "" {
			t.Fatalf("content %q: expected content validation error, got %v", content, err)
		}
	}
}

func TestSessionsServiceChatRequiresParticipant(t *testing.T) {
	store := &stubSessionsStore{
		t:                 t,
		isParticipantFunc: func(_ context.Context, _, _ string) (bool, error) { return false, nil },
	}
	svc := &SessionsService{Sessions: store, Messages: &stubMessagesStore{t: t}, Users: &stubUsersStore{t: t}, Notifier: &recordingNotifier{}, Logger: discardLogger()}

	if _, err := svc.SendChatMessage(context.Background(), "user-9", "sess-1", "hello"); !errors.Is(err, domain.ErrNotParticipant) {
		t.Fatalf("expected not participant, got %v", err)
	}
}

func TestSessionsServiceChatRequiresActiveSession(t *testing.T) {
	pending := domain.Session{ID: "sess-1", CreatorID: "user-1", Status: domain.SessionPending}
	store := &stubSessionsStore{
		t:                 t,
		isParticipantFunc: func(_ context.Context, _, _ string) (bool, error) { return true, nil },
		getSessionFunc:    func(_ context.Context, _ string) (domain.Session, error) { return pending, nil },
	}
	svc := &SessionsService{Sessions: store, Messages: &stubMessagesStore{t: t}, Users: &stubUsersStore{t: t}, Notifier: &recordingNotifier{}, Logger: discardLogger()}

	if _, err := svc.SendChatMessage(context.Background(), "user-1", "sess-1", "hello"); !errors.Is(err, domain.ErrSessionNotActive) {
		t.Fatalf("expected session not active, got %v", err)
	}
}

func TestSessionsServiceChatBroadcasts(t *testing.T) {
	createdAt := time.Date(2025, 7, 1, 18, 5, 0, 0, time.UTC)
	startedAt := createdAt.Add(-5 * time.Minute)
	active := domain.Session{ID: "sess-1", CreatorID: "user-1", Status: domain.SessionActive, StartedAt: &startedAt}

	store := &stubSessionsStore{
		t:                 t,
		isParticipantFunc: func(_ context.Context, _, _ string) (bool, error) { return true, nil },
		getSessionFunc:    func(_ context.Context, _ string) (domain.Session, error) { return active, nil },
	}
	messages := &stubMessagesStore{
		t: t,
		createMessageFunc: func(_ context.Context, sessionID, userID, content string) (domain.ChatMessage, error) {
			if content != "good luck, have fun" {
				t.Fatalf("unexpected content: %q", content)
			}
			return domain.ChatMessage{ID: "msg-1", SessionID: sessionID, UserID: userID, Content: content, CreatedAt: createdAt}, nil
		},
	}
	users := usersByID(t, map[string]domain.User{
		"user-2": {ID: "user-2", Username: "guest"},
	})
	rec := &recordingNotifier{}
	svc := &SessionsService{Sessions: store, Messages: messages, Users: users, Notifier: rec, Logger: discardLogger()}

	msg, err := svc.SendChatMessage(context.Background(), "user-2", "sess-1", "  good luck, have fun  ")
	if err != nil {
		t.Fatalf("SendChatMessage: %v", err)
	}
	if msg.ID != "msg-1" {
		t.Fatalf("unexpected message: %+v", msg)
	}

	events := rec.sessionEvents("sess-1")
	if len(events) != 1 || events[0].Type != wire.TypeChatMessage {
		t.Fatalf("unexpected events: %+v", events)
	}
	data := events[0].Data.(wire.ChatMessageData)
	if data.MessageID != "msg-1" || data.Username != "guest" || data.Content != "good luck, have fun" {
		t.Fatalf("unexpected chat payload: %+v", data)
	}
}

func TestSessionsServiceCompleteIsIdempotent(t *testing.T) {
	store := &stubSessionsStore{
		t: t,
		completeSessionFunc: func(_ context.Context, _ string, _ time.Time) (bool, []string, int, error) {
			return false, nil, 0, nil
		},
	}
	rec := &recordingNotifier{}
	eval := &recordingEvaluator{}
	svc := &SessionsService{Sessions: store, Notifier: rec, Evaluator: eval, Logger: discardLogger()}

	if err := svc.Complete(context.Background(), "sess-1"); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if events := rec.sessionEvents("sess-1"); len(events) != 0 {
		t.Fatalf("expected no broadcast for a no-op completion, got %+v", events)
	}
	eval.mu.Lock()
	defer eval.mu.Unlock()
	if len(eval.sessions) != 0 {
		t.Fatalf("expected no evaluation for a no-op completion, got %v", eval.sessions)
	}
}

func TestSessionsServiceCompleteSurvivesEvaluatorFailure(t *testing.T) {
	store := &stubSessionsStore{
		t: t,
		completeSessionFunc: func(_ context.Context, _ string, _ time.Time) (bool, []string, int, error) {
			return true, []string{"user-1", "user-2"}, 1800, nil
		},
	}
	rec := &recordingNotifier{}
	eval := &recordingEvaluator{sessionsErr: map[string]error{"user-1": errors.New("boom")}}
	svc := &SessionsService{Sessions: store, Notifier: rec, Evaluator: eval, Logger: discardLogger()}

	if err := svc.Complete(context.Background(), "sess-1"); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	eval.mu.Lock()
	if len(eval.sessions) != 2 || len(eval.times) != 2 {
		t.Fatalf("expected both participants evaluated despite the failure, got %v %v", eval.sessions, eval.times)
	}
	eval.mu.Unlock()

	events := rec.sessionEvents("sess-1")
	if len(events) != 1 || events[0].Type != wire.TypeSessionCompleted {
		t.Fatalf("unexpected events: %+v", events)
	}
	if data := events[0].Data.(wire.SessionCompletedData); data.DurationSeconds != 1800 {
		t.Fatalf("unexpected completed payload: %+v", data)
	}
}

func TestSessionsServiceHistoryNeverNil(t *testing.T) {
	store := &stubSessionsStore{
		t: t,
		listSessionsForUserFunc: func(_ context.Context, userID string, limit int) ([]domain.Session, error) {
			if userID != "user-1" || limit != 50 {
				t.Fatalf("unexpected history args: %s %d", userID, limit)
			}
			return nil, nil
		},
	}
	svc := &SessionsService{Sessions: store, Logger: discardLogger()}

	sessions, err := svc.History(context.Background(), "user-1", 50)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if sessions == nil || len(sessions) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", sessions)
	}
}
