package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrUnauthorized          = errors.New("unauthorized")
	ErrNotFound              = errors.New("not_found")
	ErrUsernameTaken         = errors.New("username_taken")
	ErrInvalidCredentials    = errors.New("invalid_credentials")
	ErrUsernameRequired      = errors.New("username_required")
	ErrFriendshipExists      = errors.New("friendship_exists")
	ErrExternalAccountExists = errors.New("external_account_exists")
	ErrInvitationExists      = errors.New("invitation_exists")
	ErrNotParticipant        = errors.New("not_participant")
	ErrUserNotOnline         = errors.New("user_not_online")
	ErrSessionNotReady       = errors.New("session_not_ready")
	ErrSessionNotActive      = errors.New("session_not_active")
	ErrSessionNotCancellable = errors.New("session_not_cancellable")
	ErrSessionUnavailable    = errors.New("session_unavailable")
	ErrValidation            = errors.New("validation")
)

type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func NewValidationError(fields map[string]string) error {
	return &ValidationError{Fields: fields}
}
