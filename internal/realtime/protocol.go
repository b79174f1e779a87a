package realtime

import "encoding/json"

// envelope is the inbound frame shape. data stays raw until the dispatch
// switch knows which payload struct applies.
type envelope struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	RequestID string          `json:"request_id"`
}

type registerPayload struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// loginPayload covers both credential login and token re-login; exactly
// one of the two forms is expected.
type loginPayload struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Token    string `json:"token"`
}

type setStatusPayload struct {
	Status string `json:"status"`
}

type searchUsersPayload struct {
	Query string `json:"query"`
}

type sendFriendRequestPayload struct {
	FriendID string `json:"friend_id"`
}

type respondFriendRequestPayload struct {
	RequestID string `json:"request_id"`
	Accept    bool   `json:"accept"`
}

type createSessionPayload struct {
	DurationSeconds int `json:"duration_seconds"`
}

type inviteToSessionPayload struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
}

type respondInvitationPayload struct {
	InvitationID string `json:"invitation_id"`
	Accept       bool   `json:"accept"`
}

type sessionRefPayload struct {
	SessionID string `json:"session_id"`
}

type sendMessagePayload struct {
	SessionID string `json:"session_id"`
	Content   string `json:"content"`
}

func decodePayload(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dst)
}
