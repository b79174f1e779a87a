package domain

import "time"

type PresenceStatus string

const (
	StatusOnline  PresenceStatus = "online"
	StatusOffline PresenceStatus = "offline"
	StatusBusy    PresenceStatus = "busy"
	StatusAway    PresenceStatus = "away"
)

// ValidPresenceStatus reports whether s is one of the four client-settable
// presence values.
func ValidPresenceStatus(s PresenceStatus) bool {
	switch s {
	case StatusOnline, StatusOffline, StatusBusy, StatusAway:
		return true
	}
	return false
}

type User struct {
	ID               string
	Username         string
	Status           PresenceStatus
	TotalSessions    int
	TotalTimeSeconds int
	CreatedAt        time.Time
	LastSeen         *time.Time
}

type UserWithPassword struct {
	User
	PasswordHash string
}

type ExternalAccount struct {
	ID         string
	UserID     string
	Provider   string
	ProviderID string
	Email      string
	CreatedAt  time.Time
}

type SessionStatus string

const (
	SessionPending   SessionStatus = "pending"
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
	SessionCancelled SessionStatus = "cancelled"
)

const (
	MinSessionDuration     = 60
	MaxSessionDuration     = 7200
	DefaultSessionDuration = 1800
)

type Session struct {
	ID              string
	CreatorID       string
	Status          SessionStatus
	DurationSeconds int
	ElapsedSeconds  int
	StartedAt       *time.Time
	CompletedAt     *time.Time
	CreatedAt       time.Time
}

type SessionParticipant struct {
	SessionID string
	UserID    string
	JoinedAt  time.Time
}

type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
	InvitationDeclined InvitationStatus = "declined"
)

type SessionInvitation struct {
	ID          string
	SessionID   string
	SenderID    string
	ReceiverID  string
	Status      InvitationStatus
	CreatedAt   time.Time
	RespondedAt *time.Time
}

const MaxChatMessageLength = 1000

type ChatMessage struct {
	ID        string
	SessionID string
	UserID    string
	Content   string
	CreatedAt time.Time
}

// Stats is the operator-facing snapshot served by the stats endpoint.
type Stats struct {
	TotalUsers             int `json:"total_users"`
	OnlineUsers            int `json:"online_users"`
	TotalCompletedSessions int `json:"total_completed_sessions"`
	ActiveSessions         int `json:"active_sessions"`
}
