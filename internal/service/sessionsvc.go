package service

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"netpulseserver/internal/domain"
	"netpulseserver/internal/wire"
)

type SessionsStore interface {
	CreateSession(ctx context.Context, creatorID string, durationSeconds int) (domain.Session, error)
	GetSession(ctx context.Context, id string) (domain.Session, error)
	AddParticipant(ctx context.Context, sessionID, userID string) error
	IsParticipant(ctx context.Context, sessionID, userID string) (bool, error)
	CountParticipants(ctx context.Context, sessionID string) (int, error)
	ListParticipantIDs(ctx context.Context, sessionID string) ([]string, error)
	StartSession(ctx context.Context, sessionID, creatorID string, when time.Time) (domain.Session, error)
	AdvanceElapsed(ctx context.Context, sessionID string, elapsed int) (bool, error)
	CompleteSession(ctx context.Context, sessionID string, when time.Time) (bool, []string, int, error)
	CancelSession(ctx context.Context, sessionID string) (bool, error)
	ListSessionsForUser(ctx context.Context, userID string, limit int) ([]domain.Session, error)
}

type InvitationsStore interface {
	CreateInvitation(ctx context.Context, sessionID, senderID, receiverID string) (domain.SessionInvitation, error)
	GetInvitation(ctx context.Context, id string) (domain.SessionInvitation, error)
	RespondInvitation(ctx context.Context, id, receiverID string, status domain.InvitationStatus, when time.Time) (domain.SessionInvitation, error)
}

type MessagesStore interface {
	CreateMessage(ctx context.Context, sessionID, userID, content string) (domain.ChatMessage, error)
}

// SessionEvaluator re-checks the session-count and total-time achievement
// families after a completion credits a participant.
type SessionEvaluator interface {
	EvaluateSessions(ctx context.Context, userID string) error
	EvaluateTime(ctx context.Context, userID string) error
}

const (
	timerBroadcastEvery = 5
	timerOpTimeout      = 5 * time.Second
)

// SessionsService drives the session lifecycle and owns every timer
// goroutine. It is the sole writer of session status, elapsed_seconds,
// and the users' total counters.
type SessionsService struct {
	Sessions    SessionsStore
	Invitations InvitationsStore
	Messages    MessagesStore
	Users       UsersStore
	Notifier    Notifier
	Evaluator   SessionEvaluator
	Logger      *slog.Logger
	Now         func() time.Time

	// TickInterval is the timer tick; zero means one second. Tests
	// shrink it to keep the full lifecycle fast.
	TickInterval time.Duration

	mu      sync.Mutex
	timers  map[string]struct{}
	quit    chan struct{}
	stopped bool
	wg      sync.WaitGroup
}

func (s *SessionsService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Create opens a PENDING session with the caller as its first participant.
// A zero duration falls back to the default; anything else outside the
// allowed range is rejected.
func (s *SessionsService) Create(ctx context.Context, creatorID string, durationSeconds int) (domain.Session, error) {
	if durationSeconds == 0 {
		durationSeconds = domain.DefaultSessionDuration
	}
	if durationSeconds < domain.MinSessionDuration || durationSeconds > domain.MaxSessionDuration {
		return domain.Session{}, domain.NewValidationError(map[string]string{
			"duration_seconds": "must be between 60 and 7200",
		})
	}
	return s.Sessions.CreateSession(ctx, creatorID, durationSeconds)
}

// Invite lets the creator of a PENDING session invite an online user.
func (s *SessionsService) Invite(ctx context.Context, inviterID, sessionID, inviteeID string) (domain.SessionInvitation, error) {
	sess, err := s.Sessions.GetSession(ctx, sessionID)
	if err != nil {
		return domain.SessionInvitation{}, err
	}
	if sess.CreatorID != inviterID || sess.Status != domain.SessionPending {
		return domain.SessionInvitation{}, domain.ErrNotFound
	}

	invitee, err := s.Users.GetUserByID(ctx, inviteeID)
	if err != nil {
		return domain.SessionInvitation{}, err
	}
	if invitee.Status != domain.StatusOnline {
		return domain.SessionInvitation{}, domain.ErrUserNotOnline
	}

	inviter, err := s.Users.GetUserByID(ctx, inviterID)
	if err != nil {
		return domain.SessionInvitation{}, err
	}

	inv, err := s.Invitations.CreateInvitation(ctx, sessionID, inviterID, inviteeID)
	if err != nil {
		return domain.SessionInvitation{}, err
	}

	s.Notifier.ToUser(ctx, inviteeID, wire.Event{
		Type: wire.TypeSessionInvitation,
		Data: wire.SessionInvitationData{
			InvitationID:    inv.ID,
			SessionID:       sess.ID,
			FromUserID:      inviter.ID,
			FromUsername:    inviter.Username,
			DurationSeconds: sess.DurationSeconds,
		},
	})
	return inv, nil
}

// RespondToInvitation resolves a pending invitation addressed to userID.
// Accepting joins the session, which may already be ACTIVE (joining
// mid-session is allowed). Declining keeps the row as history.
func (s *SessionsService) RespondToInvitation(ctx context.Context, userID, invitationID string, accept bool) (domain.SessionInvitation, domain.Session, error) {
	if invitationID == "" {
		return domain.SessionInvitation{}, domain.Session{}, domain.NewValidationError(map[string]string{"invitation_id": "required"})
	}

	inv, err := s.Invitations.GetInvitation(ctx, invitationID)
	if err != nil {
		return domain.SessionInvitation{}, domain.Session{}, err
	}
	if inv.ReceiverID != userID || inv.Status != domain.InvitationPending {
		return domain.SessionInvitation{}, domain.Session{}, domain.ErrNotFound
	}

	sess, err := s.Sessions.GetSession(ctx, inv.SessionID)
	if err != nil {
		return domain.SessionInvitation{}, domain.Session{}, err
	}
	if sess.Status != domain.SessionPending && sess.Status != domain.SessionActive {
		return domain.SessionInvitation{}, domain.Session{}, domain.ErrSessionUnavailable
	}

	status := domain.InvitationDeclined
	if accept {
		status = domain.InvitationAccepted
	}
	inv, err = s.Invitations.RespondInvitation(ctx, invitationID, userID, status, s.now())
	if err != nil {
		return domain.SessionInvitation{}, domain.Session{}, err
	}

	if !accept {
		s.Notifier.ToUser(ctx, inv.SenderID, wire.Event{
			Type: wire.TypeInvitationDeclined,
			Data: wire.InvitationDeclinedData{SessionID: sess.ID, UserID: userID},
		})
		return inv, sess, nil
	}

	if err := s.Sessions.AddParticipant(ctx, sess.ID, userID); err != nil {
		return domain.SessionInvitation{}, domain.Session{}, err
	}

	joiner, err := s.Users.GetUserByID(ctx, userID)
	if err != nil {
		return domain.SessionInvitation{}, domain.Session{}, err
	}
	s.Notifier.ToUser(ctx, inv.SenderID, wire.Event{
		Type: wire.TypeInvitationAccepted,
		Data: wire.InvitationAcceptedData{SessionID: sess.ID, UserID: joiner.ID, Username: joiner.Username},
	})
	return inv, sess, nil
}

// Start flips a PENDING session with at least two participants to ACTIVE
// and spawns its timer.
func (s *SessionsService) Start(ctx context.Context, creatorID, sessionID string) (domain.Session, error) {
	sess, err := s.Sessions.GetSession(ctx, sessionID)
	if err != nil {
		return domain.Session{}, err
	}
	if sess.CreatorID != creatorID || sess.Status != domain.SessionPending {
		return domain.Session{}, domain.ErrNotFound
	}

	count, err := s.Sessions.CountParticipants(ctx, sessionID)
	if err != nil {
		return domain.Session{}, err
	}
	if count < 2 {
		return domain.Session{}, domain.ErrSessionNotReady
	}

	sess, err = s.Sessions.StartSession(ctx, sessionID, creatorID, s.now())
	if err != nil {
		return domain.Session{}, err
	}

	s.Notifier.ToSession(ctx, sess.ID, wire.Event{
		Type: wire.TypeSessionStarted,
		Data: wire.SessionStartedData{
			SessionID:       sess.ID,
			DurationSeconds: sess.DurationSeconds,
			StartedAt:       *sess.StartedAt,
		},
	})

	s.startTimer(sess)
	return sess, nil
}

// Cancel flips a PENDING or ACTIVE session to CANCELLED. Only the creator
// may cancel through this path; the running timer, if any, notices on its
// next poll.
func (s *SessionsService) Cancel(ctx context.Context, callerID, sessionID string) error {
	sess, err := s.Sessions.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.CreatorID != callerID {
		return domain.ErrNotFound
	}
	return s.cancel(ctx, sess)
}

// CancelByOperator is the reconciliation path: same transition, no creator
// check. Callers authenticate with the operator token.
func (s *SessionsService) CancelByOperator(ctx context.Context, sessionID string) error {
	sess, err := s.Sessions.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	return s.cancel(ctx, sess)
}

func (s *SessionsService) cancel(ctx context.Context, sess domain.Session) error {
	if sess.Status != domain.SessionPending && sess.Status != domain.SessionActive {
		return domain.ErrSessionNotCancellable
	}

	cancelled, err := s.Sessions.CancelSession(ctx, sess.ID)
	if err != nil {
		return err
	}
	if !cancelled {
		// Lost a race against completion or another cancel.
		return domain.ErrSessionNotCancellable
	}

	s.Notifier.ToSession(ctx, sess.ID, wire.Event{
		Type: wire.TypeSessionCancelled,
		Data: wire.SessionCancelledData{SessionID: sess.ID},
	})
	return nil
}

// SendChatMessage persists a message from a participant of an ACTIVE
// session and broadcasts it to every participant, the author included.
func (s *SessionsService) SendChatMessage(ctx context.Context, userID, sessionID, content string) (domain.ChatMessage, error) {
	content = strings.TrimSpace(content)
	if content == "" || len([]rune(content)) > domain.MaxChatMessageLength {
		return domain.ChatMessage{}, domain.NewValidationError(map[string]string{
			"content": "must be 1 to 1000 characters",
		})
	}

	isParticipant, err := s.Sessions.IsParticipant(ctx, sessionID, userID)
	if err != nil {
		return domain.ChatMessage{}, err
	}
	if !isParticipant {
		return domain.ChatMessage{}, domain.ErrNotParticipant
	}

	sess, err := s.Sessions.GetSession(ctx, sessionID)
	if err != nil {
		return domain.ChatMessage{}, err
	}
	if sess.Status != domain.SessionActive {
		return domain.ChatMessage{}, domain.ErrSessionNotActive
	}

	author, err := s.Users.GetUserByID(ctx, userID)
	if err != nil {
		return domain.ChatMessage{}, err
	}

	msg, err := s.Messages.CreateMessage(ctx, sessionID, userID, content)
	if err != nil {
		return domain.ChatMessage{}, err
	}

	s.Notifier.ToSession(ctx, sessionID, wire.Event{
		Type: wire.TypeChatMessage,
		Data: wire.ChatMessageData{
			MessageID: msg.ID,
			SessionID: msg.SessionID,
			UserID:    author.ID,
			Username:  author.Username,
			Content:   msg.Content,
			CreatedAt: msg.CreatedAt,
		},
	})
	return msg, nil
}

// Complete finishes an ACTIVE session: flips it, credits every
// participant's counters with the final elapsed seconds, re-evaluates
// their achievements, and broadcasts the result. Calling it on a session
// in any other state is a no-op, so the timer and any future callers
// cannot double-credit.
func (s *SessionsService) Complete(ctx context.Context, sessionID string) error {
	completed, participantIDs, finalElapsed, err := s.Sessions.CompleteSession(ctx, sessionID, s.now())
	if err != nil {
		return err
	}
	if !completed {
		return nil
	}

	if s.Evaluator != nil {
		for _, id := range participantIDs {
			if err := s.Evaluator.EvaluateSessions(ctx, id); err != nil {
				s.Logger.Error("evaluate session achievements", "user_id", id, "err", err)
			}
			if err := s.Evaluator.EvaluateTime(ctx, id); err != nil {
				s.Logger.Error("evaluate time achievements", "user_id", id, "err", err)
			}
		}
	}

	s.Notifier.ToSession(ctx, sessionID, wire.Event{
		Type: wire.TypeSessionCompleted,
		Data: wire.SessionCompletedData{SessionID: sessionID, DurationSeconds: finalElapsed},
	})
	return nil
}

// History returns the sessions the user has participated in, newest
// first.
func (s *SessionsService) History(ctx context.Context, userID string, limit int) ([]domain.Session, error) {
	sessions, err := s.Sessions.ListSessionsForUser(ctx, userID, limit)
	if err != nil {
		return nil, err
	}
	if sessions == nil {
		sessions = []domain.Session{}
	}
	return sessions, nil
}

// startTimer spawns the session's timer goroutine unless one is already
// running; the timers map holds at most one entry per session id.
func (s *SessionsService) startTimer(sess domain.Session) {
	s.mu.Lock()
	if s.timers == nil {
		s.timers = make(map[string]struct{})
	}
	if s.quit == nil {
		s.quit = make(chan struct{})
	}
	if s.stopped {
		s.mu.Unlock()
		return
	}
	if _, running := s.timers[sess.ID]; running {
		s.mu.Unlock()
		return
	}
	s.timers[sess.ID] = struct{}{}
	quit := s.quit
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.timers, sess.ID)
			s.mu.Unlock()
		}()
		s.runTimer(sess, quit)
	}()
}

// StopTimers halts every running timer goroutine and waits for them to
// finish. Used at shutdown; sessions left ACTIVE are reported at next
// boot for operator reconciliation.
func (s *SessionsService) StopTimers() {
	s.mu.Lock()
	if !s.stopped {
		s.stopped = true
		if s.quit != nil {
			close(s.quit)
		}
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// runTimer advances the session's logical clock one tick at a time. Each
// tick persists the new elapsed value guarded on the session still being
// ACTIVE; observing anything else stops the timer, which is how
// cancellation reaches it (at most one tick late). Every fifth second the
// participants get a progress event, and reaching the configured duration
// completes the session.
func (s *SessionsService) runTimer(sess domain.Session, quit chan struct{}) {
	interval := s.TickInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	elapsed := sess.ElapsedSeconds
	for elapsed < sess.DurationSeconds {
		select {
		case <-quit:
			return
		case <-ticker.C:
		}

		elapsed++

		ctx, cancel := context.WithTimeout(context.Background(), timerOpTimeout)
		active, err := s.Sessions.AdvanceElapsed(ctx, sess.ID, elapsed)
		if err != nil {
			cancel()
			s.Logger.Error("timer: persist elapsed", "session_id", sess.ID, "err", err)
			continue
		}
		if !active {
			cancel()
			return
		}

		if elapsed%timerBroadcastEvery == 0 {
			s.Notifier.ToSession(ctx, sess.ID, wire.Event{
				Type: wire.TypeTimerUpdate,
				Data: wire.TimerUpdateData{
					SessionID:        sess.ID,
					ElapsedSeconds:   elapsed,
					RemainingSeconds: sess.DurationSeconds - elapsed,
				},
			})
		}
		cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), timerOpTimeout)
	defer cancel()
	if err := s.Complete(ctx, sess.ID); err != nil {
		s.Logger.Error("timer: complete session", "session_id", sess.ID, "err", err)
	}
}
