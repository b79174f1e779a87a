// Package wire defines the socket protocol vocabulary: the envelope, the
// message type names, and the payload shapes for everything the server
// emits. Services build events from this package; the transport adds the
// envelope bookkeeping (request_id echo) and delivers them.
package wire

import (
	"time"

	"netpulseserver/internal/domain"
)

// Inbound message types.
const (
	TypeRegister             = "register"
	TypeLogin                = "login"
	TypeSetStatus            = "set_status"
	TypeSearchUsers          = "search_users"
	TypeSendFriendRequest    = "send_friend_request"
	TypeRespondFriendRequest = "respond_friend_request"
	TypeGetFriends           = "get_friends"
	TypeGetFriendRequests    = "get_friend_requests"
	TypeCreateSession        = "create_session"
	TypeInviteToSession      = "invite_to_session"
	TypeRespondInvitation    = "respond_invitation"
	TypeStartSession         = "start_session"
	TypeCancelSession        = "cancel_session"
	TypeSendMessage          = "send_message"
	TypeGetAchievements      = "get_achievements"
	TypeGetProfile           = "get_profile"
	TypePing                 = "ping"
)

// Direct response types, sent to the connection that issued the request.
const (
	TypeRegisterSuccess           = "register_success"
	TypeLoginSuccess              = "login_success"
	TypeStatusChanged             = "status_changed"
	TypeSearchResults             = "search_results"
	TypeFriendRequestSent         = "friend_request_sent"
	TypeFriendAdded               = "friend_added"
	TypeFriendRequestDeclined     = "friend_request_declined"
	TypeFriendsList               = "friends_list"
	TypeFriendRequests            = "friend_requests"
	TypeSessionCreated            = "session_created"
	TypeInvitationSent            = "invitation_sent"
	TypeJoinedSession             = "joined_session"
	TypeInvitationDeclinedSuccess = "invitation_declined_success"
	TypeSessionStartedSuccess     = "session_started_success"
	TypeSessionCancelledSuccess   = "session_cancelled_success"
	TypeMessageSent               = "message_sent"
	TypeAchievements              = "achievements"
	TypeProfile                   = "profile"
	TypePong                      = "pong"
	TypeError                     = "error"
)

// Server-initiated event types, fanned out to interested users.
const (
	TypeFriendRequestReceived = "friend_request_received"
	TypeFriendRequestAccepted = "friend_request_accepted"
	TypeFriendStatusChanged   = "friend_status_changed"
	TypeSessionInvitation     = "session_invitation"
	TypeInvitationAccepted    = "invitation_accepted"
	TypeInvitationDeclined    = "invitation_declined"
	TypeSessionStarted        = "session_started"
	TypeTimerUpdate           = "timer_update"
	TypeSessionCompleted      = "session_completed"
	TypeSessionCancelled      = "session_cancelled"
	TypeChatMessage           = "chat_message"
	TypeAchievementEarned     = "achievement_earned"
)

// Event is one outbound frame. RequestID is set by the transport when the
// event answers a request that carried one.
type Event struct {
	Type      string `json:"type"`
	Data      any    `json:"data,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

type RegisterSuccessData struct {
	UserID   string                `json:"user_id"`
	Username string                `json:"username"`
	Status   domain.PresenceStatus `json:"status"`
	Token    string                `json:"token"`
}

type LoginSuccessData struct {
	UserID           string                `json:"user_id"`
	Username         string                `json:"username"`
	Status           domain.PresenceStatus `json:"status"`
	TotalSessions    int                   `json:"total_sessions"`
	TotalTimeSeconds int                   `json:"total_time_seconds"`
	Token            string                `json:"token"`
}

type StatusChangedData struct {
	Status domain.PresenceStatus `json:"status"`
}

type SearchResultsData struct {
	Results []domain.SearchResult `json:"results"`
}

type FriendRequestSentData struct {
	FriendID       string `json:"friend_id"`
	FriendUsername string `json:"friend_username"`
}

type FriendAddedData struct {
	FriendID       string `json:"friend_id"`
	FriendUsername string `json:"friend_username"`
}

type FriendRequestDeclinedData struct {
	RequestID string `json:"request_id"`
}

type FriendsListData struct {
	Friends []domain.Friend `json:"friends"`
}

type FriendRequestsData struct {
	Requests []domain.FriendRequest `json:"requests"`
}

type SessionCreatedData struct {
	SessionID       string `json:"session_id"`
	DurationSeconds int    `json:"duration_seconds"`
}

type InvitationSentData struct {
	InvitationID string `json:"invitation_id"`
	ToUserID     string `json:"to_user_id"`
}

type JoinedSessionData struct {
	SessionID       string `json:"session_id"`
	DurationSeconds int    `json:"duration_seconds"`
}

type InvitationDeclinedSuccessData struct {
	InvitationID string `json:"invitation_id"`
}

type SessionStartedSuccessData struct {
	SessionID string `json:"session_id"`
}

type SessionCancelledSuccessData struct {
	SessionID string `json:"session_id"`
}

type MessageSentData struct {
	MessageID string `json:"message_id"`
}

type AchievementsData struct {
	Achievements []domain.AchievementStatus `json:"achievements"`
}

type ErrorData struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

type FriendRequestReceivedData struct {
	RequestID    string `json:"request_id"`
	FromUserID   string `json:"from_user_id"`
	FromUsername string `json:"from_username"`
}

type FriendRequestAcceptedData struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

type FriendStatusChangedData struct {
	UserID   string                `json:"user_id"`
	Username string                `json:"username"`
	Status   domain.PresenceStatus `json:"status"`
}

type SessionInvitationData struct {
	InvitationID    string `json:"invitation_id"`
	SessionID       string `json:"session_id"`
	FromUserID      string `json:"from_user_id"`
	FromUsername    string `json:"from_username"`
	DurationSeconds int    `json:"duration_seconds"`
}

type InvitationAcceptedData struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
	Username  string `json:"username"`
}

type InvitationDeclinedData struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
}

type SessionStartedData struct {
	SessionID       string    `json:"session_id"`
	DurationSeconds int       `json:"duration_seconds"`
	StartedAt       time.Time `json:"started_at"`
}

type TimerUpdateData struct {
	SessionID        string `json:"session_id"`
	ElapsedSeconds   int    `json:"elapsed_seconds"`
	RemainingSeconds int    `json:"remaining_seconds"`
}

// SessionCompletedData reports the final elapsed time as duration_seconds,
// matching what participants were credited with.
type SessionCompletedData struct {
	SessionID       string `json:"session_id"`
	DurationSeconds int    `json:"duration_seconds"`
}

type SessionCancelledData struct {
	SessionID string `json:"session_id"`
}

type ChatMessageData struct {
	MessageID string    `json:"message_id"`
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type AchievementEarnedData struct {
	Key         string `json:"key"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ErrorEvent builds the error envelope used by every recoverable failure.
func ErrorEvent(code, message string) Event {
	return Event{Type: TypeError, Data: ErrorData{Code: code, Message: message}}
}
