package httpapi

import (
	"net/http"
	"time"

	"netpulseserver/internal/domain"
)

const historyLimit = 50

type sessionPayload struct {
	ID              string               `json:"id"`
	CreatorID       string               `json:"creator_id"`
	Status          domain.SessionStatus `json:"status"`
	DurationSeconds int                  `json:"duration_seconds"`
	ElapsedSeconds  int                  `json:"elapsed_seconds"`
	StartedAt       *time.Time           `json:"started_at,omitempty"`
	CompletedAt     *time.Time           `json:"completed_at,omitempty"`
	CreatedAt       time.Time            `json:"created_at"`
}

type sessionsResponse struct {
	Sessions []sessionPayload `json:"sessions"`
}

// handleSessionHistory serves the sessions a user has participated in,
// newest first.
func (a *api) handleSessionHistory(w http.ResponseWriter, r *http.Request) {
	sessions, err := a.sessionsSvc.History(r.Context(), r.PathValue("id"), historyLimit)
	if err != nil {
		WriteDomainError(w, err)
		return
	}

	out := make([]sessionPayload, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, sessionPayload{
			ID:              s.ID,
			CreatorID:       s.CreatorID,
			Status:          s.Status,
			DurationSeconds: s.DurationSeconds,
			ElapsedSeconds:  s.ElapsedSeconds,
			StartedAt:       s.StartedAt,
			CompletedAt:     s.CompletedAt,
			CreatedAt:       s.CreatedAt,
		})
	}
	WriteJSON(w, http.StatusOK, sessionsResponse{Sessions: out})
}

// handleAdminCancelSession is the reconciliation path for sessions left
// ACTIVE by an unclean restart. It runs the normal cancel transition, so
// participants still connected hear session_cancelled.
func (a *api) handleAdminCancelSession(w http.ResponseWriter, r *http.Request) {
	if err := a.sessionsSvc.CancelByOperator(r.Context(), r.PathValue("id")); err != nil {
		WriteDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
