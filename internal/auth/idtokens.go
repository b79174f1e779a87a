package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/HendrickPhan/go-verify-apple-id-token/validator"
	"google.golang.org/api/idtoken"
)

// ProviderIdentity is the verified identity extracted from a sign-in
// provider's token. Subject is stable per provider and keys the
// external_accounts row.
type ProviderIdentity struct {
	Provider string
	Subject  string
	Email    string
}

func VerifyGoogleIDToken(ctx context.Context, tokenString, expectedAud string) (ProviderIdentity, error) {
	if strings.TrimSpace(tokenString) == "" {
		return ProviderIdentity{}, errors.New("missing id token")
	}
	if strings.TrimSpace(expectedAud) == "" {
		return ProviderIdentity{}, errors.New("missing google client id")
	}

	payload, err := idtoken.Validate(ctx, tokenString, expectedAud)
	if err != nil {
		return ProviderIdentity{}, err
	}
	if payload.Issuer != "accounts.google.com" && payload.Issuer != "https://accounts.google.com" {
		return ProviderIdentity{}, fmt.Errorf("unexpected issuer: %s", payload.Issuer)
	}

	email := ""
	if raw, ok := payload.Claims["email"]; ok {
		if v, ok := raw.(string); ok {
			email = v
		}
	}

	return ProviderIdentity{
		Provider: "google",
		Subject:  payload.Subject,
		Email:    strings.TrimSpace(strings.ToLower(email)),
	}, nil
}

// VerifyAppleIDToken accepts a token minted for any of the configured
// client ids (the app ships separate dev and prod bundle ids).
func VerifyAppleIDToken(ctx context.Context, tokenString string, expectedAuds []string) (ProviderIdentity, error) {
	if strings.TrimSpace(tokenString) == "" {
		return ProviderIdentity{}, errors.New("missing id token")
	}
	if len(expectedAuds) == 0 {
		return ProviderIdentity{}, errors.New("missing apple client ids")
	}

	client := validator.NewClient()

	var lastErr error
	for _, aud := range expectedAuds {
		idToken, err := client.VerifyIdToken(aud, tokenString)
		if err != nil {
			lastErr = err
			continue
		}
		if idToken.Iss != "https://appleid.apple.com" {
			return ProviderIdentity{}, fmt.Errorf("unexpected issuer: %s", idToken.Iss)
		}
		return ProviderIdentity{
			Provider: "apple",
			Subject:  idToken.Sub,
			Email:    strings.TrimSpace(strings.ToLower(idToken.Email)),
		}, nil
	}
	return ProviderIdentity{}, lastErr
}
