package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenCodec mints and verifies the HS256 bearer tokens handed out at
// login. Tokens are stateless: the subject is the user id and expiry is the
// only other claim checked.
type TokenCodec struct {
	secret []byte
	ttl    time.Duration

	// Now is overridable in tests.
	Now func() time.Time
}

func NewTokenCodec(secret []byte, ttl time.Duration) TokenCodec {
	secretCopy := make([]byte, len(secret))
	copy(secretCopy, secret)
	return TokenCodec{secret: secretCopy, ttl: ttl}
}

func (c TokenCodec) Issue(userID string) (string, error) {
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	claims := jwt.MapClaims{
		"user_id": userID,
		"iat":     now().Unix(),
		"exp":     now().Add(c.ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(c.secret)
}

// Verify returns the user id carried by a valid, unexpired token.
func (c TokenCodec) Verify(tokenStr string) (string, bool) {
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return c.secret, nil
	}, jwt.WithTimeFunc(now))
	if err != nil || !token.Valid {
		return "", false
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", false
	}
	userID, ok := claims["user_id"].(string)
	if !ok || userID == "" {
		return "", false
	}
	return userID, true
}
