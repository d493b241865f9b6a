package store

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"

	meridia "github.com/yoku-app/MERIDIA"
)

type claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// SessionFromTokens builds a session from the provider's access token. The
// signature is not checked here: the provider verifies the token on every
// request it receives.
func SessionFromTokens(access, refresh string) (meridia.Session, error) {
	if access == "" {
		return meridia.Session{}, meridia.ErrUnauthorized
	}
	var c claims
	if _, _, err := jwt.NewParser().ParseUnverified(access, &c); err != nil {
		return meridia.Session{}, errors.Wrap(err, "decode access token")
	}
	if c.Subject == "" {
		return meridia.Session{}, meridia.ErrUnauthorized
	}
	s := meridia.Session{
		AccessToken:  access,
		RefreshToken: refresh,
		UserID:       c.Subject,
		Email:        c.Email,
	}
	if c.ExpiresAt != nil {
		s.ExpiresAt = c.ExpiresAt.Time
	}
	return s, nil
}
