package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"netpulseserver/internal/domain"
	"netpulseserver/internal/wire"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type AuthService interface {
	Register(ctx context.Context, username, password string) (domain.User, string, error)
	Login(ctx context.Context, username, password string) (domain.User, string, error)
	LoginWithToken(ctx context.Context, token string) (domain.User, string, error)
}

type PresenceService interface {
	Connected(ctx context.Context, userID string) error
	Disconnected(ctx context.Context, userID string) error
	SetStatus(ctx context.Context, userID, status string) (domain.PresenceStatus, error)
}

type DirectoryService interface {
	Search(ctx context.Context, userID, query string) ([]domain.SearchResult, error)
}

type FriendsService interface {
	SendRequest(ctx context.Context, fromID, toID string) (domain.User, error)
	Respond(ctx context.Context, userID, requestID string, accept bool) (domain.User, error)
	ListFriends(ctx context.Context, userID string) ([]domain.Friend, error)
	ListIncomingRequests(ctx context.Context, userID string) ([]domain.FriendRequest, error)
}

type SessionsService interface {
	Create(ctx context.Context, creatorID string, durationSeconds int) (domain.Session, error)
	Invite(ctx context.Context, inviterID, sessionID, inviteeID string) (domain.SessionInvitation, error)
	RespondToInvitation(ctx context.Context, userID, invitationID string, accept bool) (domain.SessionInvitation, domain.Session, error)
	Start(ctx context.Context, creatorID, sessionID string) (domain.Session, error)
	Cancel(ctx context.Context, callerID, sessionID string) error
	SendChatMessage(ctx context.Context, userID, sessionID, content string) (domain.ChatMessage, error)
}

type AchievementsService interface {
	ListForUser(ctx context.Context, userID string) ([]domain.AchievementStatus, error)
	Profile(ctx context.Context, userID string) (domain.Profile, error)
}

// Handler owns the /ws endpoint: upgrade, authentication, and the dispatch
// of every inbound frame to the service layer.
type Handler struct {
	Registry     *Registry
	Auth         AuthService
	Presence     PresenceService
	Directory    DirectoryService
	Friends      FriendsService
	Sessions     SessionsService
	Achievements AchievementsService

	// FrameRate/FrameBurst bound how fast one connection may send frames.
	FrameRate  rate.Limit
	FrameBurst int

	Logger *slog.Logger
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.Logger.Debug("websocket upgrade failed", "err", err)
		return
	}

	c := newClient(conn, h.Logger)
	go c.writePump()

	// A token in the upgrade query authenticates the connection up front,
	// so reconnecting clients skip the login frame.
	if token := r.URL.Query().Get("token"); token != "" {
		h.authenticateByToken(r.Context(), c, token)
	}

	h.readLoop(r.Context(), c)
}

func (h *Handler) authenticateByToken(ctx context.Context, c *Client, token string) {
	user, fresh, err := h.Auth.LoginWithToken(ctx, token)
	if err != nil {
		c.Enqueue(wire.ErrorEvent("invalid_credentials", "token rejected"))
		return
	}
	h.bind(ctx, c, user)
	c.Enqueue(wire.Event{Type: wire.TypeLoginSuccess, Data: wire.LoginSuccessData{
		UserID:           user.ID,
		Username:         user.Username,
		Status:           domain.StatusOnline,
		TotalSessions:    user.TotalSessions,
		TotalTimeSeconds: user.TotalTimeSeconds,
		Token:            fresh,
	}})
}

func (h *Handler) readLoop(ctx context.Context, c *Client) {
	defer h.disconnect(ctx, c)

	c.conn.SetReadLimit(maxFrameSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	frameRate := h.FrameRate
	if frameRate <= 0 {
		frameRate = 20
	}
	frameBurst := h.FrameBurst
	if frameBurst <= 0 {
		frameBurst = int(frameRate) * 2
	}
	limiter := rate.NewLimiter(frameRate, frameBurst)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.Enqueue(wire.ErrorEvent("invalid_json", "malformed message"))
			continue
		}
		if !limiter.Allow() {
			h.respond(c, env, wire.ErrorEvent("rate_limited", "too many messages"))
			continue
		}

		h.dispatch(ctx, c, env)
	}
}

// disconnect tears the connection down. Presence flips to offline only if
// this connection still owned the registry binding; a connection that was
// replaced by a newer login must not mark the user offline.
func (h *Handler) disconnect(ctx context.Context, c *Client) {
	c.Close()
	if c.UserID == "" {
		return
	}
	if !h.Registry.Unregister(c.UserID, c) {
		return
	}
	if err := h.Presence.Disconnected(ctx, c.UserID); err != nil {
		h.Logger.Warn("disconnect presence update", "user_id", c.UserID, "err", err)
	}
}

// bind marks the connection authenticated: registry binding (closing any
// replaced connection) plus presence online.
func (h *Handler) bind(ctx context.Context, c *Client, user domain.User) {
	c.UserID = user.ID
	if prev := h.Registry.Register(user.ID, c); prev != nil {
		prev.Close()
	}
	if err := h.Presence.Connected(ctx, user.ID); err != nil {
		h.Logger.Warn("connect presence update", "user_id", user.ID, "err", err)
	}
}

func (h *Handler) respond(c *Client, env envelope, event wire.Event) {
	event.RequestID = env.RequestID
	c.Enqueue(event)
}

func (h *Handler) respondErr(c *Client, env envelope, err error) {
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		h.respond(c, env, wire.Event{Type: wire.TypeError, Data: wire.ErrorData{
			Code:    "validation_error",
			Message: "invalid request",
			Fields:  ve.Fields,
		}})
		return
	}

	code, msg := errorCode(err)
	if code == "internal_error" {
		h.Logger.Error("socket operation failed", "type", env.Type, "user_id", c.UserID, "err", err)
	}
	h.respond(c, env, wire.ErrorEvent(code, msg))
}

func errorCode(err error) (string, string) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return "validation_error", "invalid request"
	case errors.Is(err, domain.ErrUsernameTaken):
		return "username_taken", "username already taken"
	case errors.Is(err, domain.ErrInvalidCredentials):
		return "invalid_credentials", "invalid username or password"
	case errors.Is(err, domain.ErrNotParticipant):
		return "not_participant", "not a participant of this session"
	case errors.Is(err, domain.ErrUnauthorized):
		return "not_authorized", "not authorized"
	case errors.Is(err, domain.ErrFriendshipExists):
		return "friendship_exists", "friend request already exists"
	case errors.Is(err, domain.ErrInvitationExists):
		return "invitation_exists", "invitation already pending"
	case errors.Is(err, domain.ErrUserNotOnline):
		return "user_not_online", "user is not online"
	case errors.Is(err, domain.ErrSessionNotReady):
		return "session_not_ready", "session needs at least two participants"
	case errors.Is(err, domain.ErrSessionNotActive):
		return "session_not_active", "session is not active"
	case errors.Is(err, domain.ErrSessionNotCancellable):
		return "session_not_cancellable", "session already finished"
	case errors.Is(err, domain.ErrSessionUnavailable):
		return "session_unavailable", "session is no longer available"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found", "not found"
	default:
		return "internal_error", "internal server error"
	}
}

func (h *Handler) dispatch(ctx context.Context, c *Client, env envelope) {
	switch env.Type {
	case wire.TypeRegister:
		h.handleRegister(ctx, c, env)
		return
	case wire.TypeLogin:
		h.handleLogin(ctx, c, env)
		return
	}

	if c.UserID == "" {
		h.respond(c, env, wire.ErrorEvent("not_authenticated", "authenticate first"))
		return
	}

	switch env.Type {
	case wire.TypeSetStatus:
		h.handleSetStatus(ctx, c, env)
	case wire.TypeSearchUsers:
		h.handleSearchUsers(ctx, c, env)
	case wire.TypeSendFriendRequest:
		h.handleSendFriendRequest(ctx, c, env)
	case wire.TypeRespondFriendRequest:
		h.handleRespondFriendRequest(ctx, c, env)
	case wire.TypeGetFriends:
		h.handleGetFriends(ctx, c, env)
	case wire.TypeGetFriendRequests:
		h.handleGetFriendRequests(ctx, c, env)
	case wire.TypeCreateSession:
		h.handleCreateSession(ctx, c, env)
	case wire.TypeInviteToSession:
		h.handleInviteToSession(ctx, c, env)
	case wire.TypeRespondInvitation:
		h.handleRespondInvitation(ctx, c, env)
	case wire.TypeStartSession:
		h.handleStartSession(ctx, c, env)
	case wire.TypeCancelSession:
		h.handleCancelSession(ctx, c, env)
	case wire.TypeSendMessage:
		h.handleSendMessage(ctx, c, env)
	case wire.TypeGetAchievements:
		h.handleGetAchievements(ctx, c, env)
	case wire.TypeGetProfile:
		h.handleGetProfile(ctx, c, env)
	case wire.TypePing:
		h.respond(c, env, wire.Event{Type: wire.TypePong})
	default:
		h.respond(c, env, wire.ErrorEvent("unknown_type", "unknown message type: "+env.Type))
	}
}

func (h *Handler) handleRegister(ctx context.Context, c *Client, env envelope) {
	var p registerPayload
	if err := decodePayload(env.Data, &p); err != nil {
		h.respond(c, env, wire.ErrorEvent("invalid_payload", "malformed payload"))
		return
	}

	user, token, err := h.Auth.Register(ctx, p.Username, p.Password)
	if err != nil {
		h.respondErr(c, env, err)
		return
	}

	h.bind(ctx, c, user)
	h.respond(c, env, wire.Event{Type: wire.TypeRegisterSuccess, Data: wire.RegisterSuccessData{
		UserID:   user.ID,
		Username: user.Username,
		Status:   domain.StatusOnline,
		Token:    token,
	}})
}

func (h *Handler) handleLogin(ctx context.Context, c *Client, env envelope) {
	var p loginPayload
	if err := decodePayload(env.Data, &p); err != nil {
		h.respond(c, env, wire.ErrorEvent("invalid_payload", "malformed payload"))
		return
	}

	var (
		user  domain.User
		token string
		err   error
	)
	if p.Token != "" {
		user, token, err = h.Auth.LoginWithToken(ctx, p.Token)
	} else {
		user, token, err = h.Auth.Login(ctx, p.Username, p.Password)
	}
	if err != nil {
		h.respondErr(c, env, err)
		return
	}

	h.bind(ctx, c, user)
	h.respond(c, env, wire.Event{Type: wire.TypeLoginSuccess, Data: wire.LoginSuccessData{
		UserID:           user.ID,
		Username:         user.Username,
		Status:           domain.StatusOnline,
		TotalSessions:    user.TotalSessions,
		TotalTimeSeconds: user.TotalTimeSeconds,
		Token:            token,
	}})
}

func (h *Handler) handleSetStatus(ctx context.Context, c *Client, env envelope) {
	var p setStatusPayload
	if err := decodePayload(env.Data, &p); err != nil {
		h.respond(c, env, wire.ErrorEvent("invalid_payload", "malformed payload"))
		return
	}

	status, err := h.Presence.SetStatus(ctx, c.UserID, p.Status)
	if err != nil {
		h.respondErr(c, env, err)
		return
	}
	h.respond(c, env, wire.Event{Type: wire.TypeStatusChanged, Data: wire.StatusChangedData{Status: status}})
}

func (h *Handler) handleSearchUsers(ctx context.Context, c *Client, env envelope) {
	var p searchUsersPayload
	if err := decodePayload(env.Data, &p); err != nil {
		h.respond(c, env, wire.ErrorEvent("invalid_payload", "malformed payload"))
		return
	}

	results, err := h.Directory.Search(ctx, c.UserID, p.Query)
	if err != nil {
		h.respondErr(c, env, err)
		return
	}
	h.respond(c, env, wire.Event{Type: wire.TypeSearchResults, Data: wire.SearchResultsData{Results: results}})
}

func (h *Handler) handleSendFriendRequest(ctx context.Context, c *Client, env envelope) {
	var p sendFriendRequestPayload
	if err := decodePayload(env.Data, &p); err != nil {
		h.respond(c, env, wire.ErrorEvent("invalid_payload", "malformed payload"))
		return
	}

	recipient, err := h.Friends.SendRequest(ctx, c.UserID, p.FriendID)
	if err != nil {
		h.respondErr(c, env, err)
		return
	}
	h.respond(c, env, wire.Event{Type: wire.TypeFriendRequestSent, Data: wire.FriendRequestSentData{
		FriendID:       recipient.ID,
		FriendUsername: recipient.Username,
	}})
}

func (h *Handler) handleRespondFriendRequest(ctx context.Context, c *Client, env envelope) {
	var p respondFriendRequestPayload
	if err := decodePayload(env.Data, &p); err != nil {
		h.respond(c, env, wire.ErrorEvent("invalid_payload", "malformed payload"))
		return
	}

	requester, err := h.Friends.Respond(ctx, c.UserID, p.RequestID, p.Accept)
	if err != nil {
		h.respondErr(c, env, err)
		return
	}
	if p.Accept {
		h.respond(c, env, wire.Event{Type: wire.TypeFriendAdded, Data: wire.FriendAddedData{
			FriendID:       requester.ID,
			FriendUsername: requester.Username,
		}})
		return
	}
	h.respond(c, env, wire.Event{Type: wire.TypeFriendRequestDeclined, Data: wire.FriendRequestDeclinedData{
		RequestID: p.RequestID,
	}})
}

func (h *Handler) handleGetFriends(ctx context.Context, c *Client, env envelope) {
	friends, err := h.Friends.ListFriends(ctx, c.UserID)
	if err != nil {
		h.respondErr(c, env, err)
		return
	}
	h.respond(c, env, wire.Event{Type: wire.TypeFriendsList, Data: wire.FriendsListData{Friends: friends}})
}

func (h *Handler) handleGetFriendRequests(ctx context.Context, c *Client, env envelope) {
	requests, err := h.Friends.ListIncomingRequests(ctx, c.UserID)
	if err != nil {
		h.respondErr(c, env, err)
		return
	}
	h.respond(c, env, wire.Event{Type: wire.TypeFriendRequests, Data: wire.FriendRequestsData{Requests: requests}})
}

func (h *Handler) handleCreateSession(ctx context.Context, c *Client, env envelope) {
	var p createSessionPayload
	if err := decodePayload(env.Data, &p); err != nil {
		h.respond(c, env, wire.ErrorEvent("invalid_payload", "malformed payload"))
		return
	}

	sess, err := h.Sessions.Create(ctx, c.UserID, p.DurationSeconds)
	if err != nil {
		h.respondErr(c, env, err)
		return
	}
	h.respond(c, env, wire.Event{Type: wire.TypeSessionCreated, Data: wire.SessionCreatedData{
		SessionID:       sess.ID,
		DurationSeconds: sess.DurationSeconds,
	}})
}

func (h *Handler) handleInviteToSession(ctx context.Context, c *Client, env envelope) {
	var p inviteToSessionPayload
	if err := decodePayload(env.Data, &p); err != nil {
		h.respond(c, env, wire.ErrorEvent("invalid_payload", "malformed payload"))
		return
	}

	inv, err := h.Sessions.Invite(ctx, c.UserID, p.SessionID, p.UserID)
	if err != nil {
		h.respondErr(c, env, err)
		return
	}
	h.respond(c, env, wire.Event{Type: wire.TypeInvitationSent, Data: wire.InvitationSentData{
		InvitationID: inv.ID,
		ToUserID:     inv.ReceiverID,
	}})
}

func (h *Handler) handleRespondInvitation(ctx context.Context, c *Client, env envelope) {
	var p respondInvitationPayload
	if err := decodePayload(env.Data, &p); err != nil {
		h.respond(c, env, wire.ErrorEvent("invalid_payload", "malformed payload"))
		return
	}

	inv, sess, err := h.Sessions.RespondToInvitation(ctx, c.UserID, p.InvitationID, p.Accept)
	if err != nil {
		h.respondErr(c, env, err)
		return
	}
	if p.Accept {
		h.respond(c, env, wire.Event{Type: wire.TypeJoinedSession, Data: wire.JoinedSessionData{
			SessionID:       sess.ID,
			DurationSeconds: sess.DurationSeconds,
		}})
		return
	}
	h.respond(c, env, wire.Event{Type: wire.TypeInvitationDeclinedSuccess, Data: wire.InvitationDeclinedSuccessData{
		InvitationID: inv.ID,
	}})
}

func (h *Handler) handleStartSession(ctx context.Context, c *Client, env envelope) {
	var p sessionRefPayload
	if err := decodePayload(env.Data, &p); err != nil {
		h.respond(c, env, wire.ErrorEvent("invalid_payload", "malformed payload"))
		return
	}

	sess, err := h.Sessions.Start(ctx, c.UserID, p.SessionID)
	if err != nil {
		h.respondErr(c, env, err)
		return
	}
	h.respond(c, env, wire.Event{Type: wire.TypeSessionStartedSuccess, Data: wire.SessionStartedSuccessData{
		SessionID: sess.ID,
	}})
}

func (h *Handler) handleCancelSession(ctx context.Context, c *Client, env envelope) {
	var p sessionRefPayload
	if err := decodePayload(env.Data, &p); err != nil {
		h.respond(c, env, wire.ErrorEvent("invalid_payload", "malformed payload"))
		return
	}

	if err := h.Sessions.Cancel(ctx, c.UserID, p.SessionID); err != nil {
		h.respondErr(c, env, err)
		return
	}
	h.respond(c, env, wire.Event{Type: wire.TypeSessionCancelledSuccess, Data: wire.SessionCancelledSuccessData{
		SessionID: p.SessionID,
	}})
}

func (h *Handler) handleSendMessage(ctx context.Context, c *Client, env envelope) {
	var p sendMessagePayload
	if err := decodePayload(env.Data, &p); err != nil {
		h.respond(c, env, wire.ErrorEvent("invalid_payload", "malformed payload"))
		return
	}

	msg, err := h.Sessions.SendChatMessage(ctx, c.UserID, p.SessionID, p.Content)
	if err != nil {
		h.respondErr(c, env, err)
		return
	}
	h.respond(c, env, wire.Event{Type: wire.TypeMessageSent, Data: wire.MessageSentData{MessageID: msg.ID}})
}

func (h *Handler) handleGetAchievements(ctx context.Context, c *Client, env envelope) {
	achievements, err := h.Achievements.ListForUser(ctx, c.UserID)
	if err != nil {
		h.respondErr(c, env, err)
		return
	}
	h.respond(c, env, wire.Event{Type: wire.TypeAchievements, Data: wire.AchievementsData{Achievements: achievements}})
}

func (h *Handler) handleGetProfile(ctx context.Context, c *Client, env envelope) {
	profile, err := h.Achievements.Profile(ctx, c.UserID)
	if err != nil {
		h.respondErr(c, env, err)
		return
	}
	h.respond(c, env, wire.Event{Type: wire.TypeProfile, Data: profile})
}
