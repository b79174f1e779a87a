package httpapi

import (
	"net/http"
	"strings"
	"time"

	"netpulseserver/internal/domain"
)

type userPayload struct {
	ID               string                `json:"id"`
	Username         string                `json:"username"`
	Status           domain.PresenceStatus `json:"status"`
	TotalSessions    int                   `json:"total_sessions"`
	TotalTimeSeconds int                   `json:"total_time_seconds"`
	CreatedAt        time.Time             `json:"created_at"`
	LastSeen         *time.Time            `json:"last_seen,omitempty"`
}

func toUserPayload(u domain.User) userPayload {
	return userPayload{
		ID:               u.ID,
		Username:         u.Username,
		Status:           u.Status,
		TotalSessions:    u.TotalSessions,
		TotalTimeSeconds: u.TotalTimeSeconds,
		CreatedAt:        u.CreatedAt,
		LastSeen:         u.LastSeen,
	}
}

func (a *api) handleUserByUsername(w http.ResponseWriter, r *http.Request) {
	username := strings.TrimSpace(r.PathValue("username"))
	if username == "" {
		WriteDomainError(w, domain.ErrNotFound)
		return
	}

	u, err := a.usersSvc.GetByUsername(r.Context(), username)
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, toUserPayload(u))
}

func (a *api) handleUserByID(w http.ResponseWriter, r *http.Request) {
	u, err := a.usersSvc.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, toUserPayload(u))
}

func (a *api) handleMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := CurrentUserID(r.Context())
	if !ok {
		WriteDomainError(w, domain.ErrUnauthorized)
		return
	}

	u, err := a.usersSvc.GetByID(r.Context(), userID)
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, toUserPayload(u))
}
