package domain

import "time"

// Friendship is a single row linking an unordered user pair. While
// unaccepted it is directional: UserID sent the request, FriendID may
// accept or decline it.
type Friendship struct {
	ID         string
	UserID     string
	FriendID   string
	Accepted   bool
	CreatedAt  time.Time
	AcceptedAt *time.Time
}

// Friend is the projection of an accepted friendship onto the peer user.
type Friend struct {
	UserID   string         `json:"user_id"`
	Username string         `json:"username"`
	Status   PresenceStatus `json:"status"`
	LastSeen *time.Time     `json:"last_seen,omitempty"`
}

type FriendRequest struct {
	RequestID    string    `json:"request_id"`
	FromUserID   string    `json:"from_user_id"`
	FromUsername string    `json:"from_username"`
	CreatedAt    time.Time `json:"created_at"`
}

// FriendshipStatus describes, from one user's point of view, how another
// user relates to them in the friend graph.
type FriendshipStatus string

const (
	FriendshipNone            FriendshipStatus = "none"
	FriendshipFriend          FriendshipStatus = "friend"
	FriendshipRequestSent     FriendshipStatus = "request_sent"
	FriendshipRequestReceived FriendshipStatus = "request_received"
)

type SearchResult struct {
	UserID           string           `json:"user_id"`
	Username         string           `json:"username"`
	Status           PresenceStatus   `json:"status"`
	FriendshipStatus FriendshipStatus `json:"friendship_status"`
}
