package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"netpulseserver/internal/domain"
)

type errorEnvelope struct {
	Error apiError `json:"error"`
}

type apiError struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func WriteError(w http.ResponseWriter, status int, code, message string) {
	WriteJSON(w, status, errorEnvelope{Error: apiError{Code: code, Message: message}})
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteDomainError is the single mapping from domain sentinels to HTTP.
// Validation errors carry their per-field details so the client can mark
// the offending inputs.
func WriteDomainError(w http.ResponseWriter, err error) {
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		WriteJSON(w, http.StatusBadRequest, errorEnvelope{Error: apiError{
			Code:    "validation_error",
			Message: "invalid request",
			Fields:  verr.Fields,
		}})
		return
	}

	switch {
	case errors.Is(err, domain.ErrValidation):
		WriteError(w, http.StatusBadRequest, "validation_error", "invalid request")
	case errors.Is(err, domain.ErrUsernameTaken):
		WriteError(w, http.StatusConflict, "username_taken", "username already taken")
	case errors.Is(err, domain.ErrUsernameRequired):
		WriteError(w, http.StatusUnprocessableEntity, "username_required", "choose a username to finish signing up")
	case errors.Is(err, domain.ErrExternalAccountExists):
		WriteError(w, http.StatusConflict, "external_account_exists", "account already linked")
	case errors.Is(err, domain.ErrInvalidCredentials):
		WriteError(w, http.StatusUnauthorized, "invalid_credentials", "invalid username or password")
	case errors.Is(err, domain.ErrUnauthorized):
		WriteError(w, http.StatusUnauthorized, "unauthorized", "unauthorized")
	case errors.Is(err, domain.ErrFriendshipExists):
		WriteError(w, http.StatusConflict, "friendship_exists", "friend request already exists")
	case errors.Is(err, domain.ErrInvitationExists):
		WriteError(w, http.StatusConflict, "invitation_exists", "invitation already pending")
	case errors.Is(err, domain.ErrNotParticipant):
		WriteError(w, http.StatusForbidden, "not_participant", "not a participant of this session")
	case errors.Is(err, domain.ErrUserNotOnline):
		WriteError(w, http.StatusPreconditionFailed, "user_not_online", "user is not online")
	case errors.Is(err, domain.ErrSessionNotReady):
		WriteError(w, http.StatusPreconditionFailed, "session_not_ready", "session needs at least two participants")
	case errors.Is(err, domain.ErrSessionNotActive):
		WriteError(w, http.StatusConflict, "session_not_active", "session is not active")
	case errors.Is(err, domain.ErrSessionNotCancellable):
		WriteError(w, http.StatusConflict, "session_not_cancellable", "session already finished")
	case errors.Is(err, domain.ErrSessionUnavailable):
		WriteError(w, http.StatusConflict, "session_unavailable", "session is no longer available")
	case errors.Is(err, domain.ErrNotFound):
		WriteError(w, http.StatusNotFound, "not_found", "not found")
	default:
		WriteError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
