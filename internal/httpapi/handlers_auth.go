package httpapi

import (
	"net/http"
	"strings"
	"time"

	"netpulseserver/internal/auth"
	"netpulseserver/internal/domain"
)

type authResponse struct {
	User  userPayload `json:"user"`
	Token string      `json:"token"`
}

type registerRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// handleAuthRegister creates an account and returns a bearer token. The
// new user stays OFFLINE: only a live socket flips presence.
func (a *api) handleAuthRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "bad_json", "invalid json")
		return
	}

	u, token, err := a.authSvc.Register(r.Context(), req.Username, req.Password)
	if err != nil {
		WriteDomainError(w, err)
		return
	}

	WriteJSON(w, http.StatusCreated, authResponse{User: toUserPayload(u), Token: token})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (a *api) handleAuthLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "bad_json", "invalid json")
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		WriteDomainError(w, domain.NewValidationError(map[string]string{"username": "required", "password": "required"}))
		return
	}

	now := time.Now()
	ip := clientIP(r)
	if !a.loginLimiter.Allow("ip:"+ip, now) || !a.loginLimiter.Allow("login:"+strings.ToLower(req.Username), now) {
		WriteError(w, http.StatusTooManyRequests, "rate_limited", "too many attempts")
		return
	}

	u, token, err := a.authSvc.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		WriteDomainError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, authResponse{User: toUserPayload(u), Token: token})
}

type appleLoginRequest struct {
	IdentityToken string `json:"identity_token"`
	Username      string `json:"username"`
}

// handleAuthApple exchanges a Sign in with Apple identity token for a
// bearer token, creating the account on first sign-in. A first sign-in
// without a username fails with username_required so the client can
// prompt and retry.
func (a *api) handleAuthApple(w http.ResponseWriter, r *http.Request) {
	var req appleLoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "bad_json", "invalid json")
		return
	}

	identity, err := auth.VerifyAppleIDToken(r.Context(), req.IdentityToken, a.appleClientIDs)
	if err != nil {
		a.logger.Debug("apple token rejected", "err", err)
		WriteDomainError(w, domain.ErrInvalidCredentials)
		return
	}

	a.finishExternalLogin(w, r, identity, req.Username)
}

type googleLoginRequest struct {
	IDToken  string `json:"id_token"`
	Username string `json:"username"`
}

func (a *api) handleAuthGoogle(w http.ResponseWriter, r *http.Request) {
	var req googleLoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "bad_json", "invalid json")
		return
	}

	identity, err := auth.VerifyGoogleIDToken(r.Context(), req.IDToken, a.googleClientID)
	if err != nil {
		a.logger.Debug("google token rejected", "err", err)
		WriteDomainError(w, domain.ErrInvalidCredentials)
		return
	}

	a.finishExternalLogin(w, r, identity, req.Username)
}

func (a *api) finishExternalLogin(w http.ResponseWriter, r *http.Request, identity auth.ProviderIdentity, username string) {
	u, token, created, err := a.authSvc.LoginExternal(r.Context(), identity.Provider, identity.Subject, identity.Email, username)
	if err != nil {
		WriteDomainError(w, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	WriteJSON(w, status, authResponse{User: toUserPayload(u), Token: token})
}
