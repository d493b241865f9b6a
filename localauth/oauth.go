package localauth

import (
	"context"
	"database/sql"
	"errors"

	"github.com/tinywasm/unixid"

	meridia "github.com/yoku-app/MERIDIA"
)

// BeginOAuth records a single-use state and returns the provider's consent
// URL.
func (s *Store) BeginOAuth(providerName string) (string, error) {
	p := s.provider(providerName)
	if p == nil {
		return "", meridia.ErrProviderNotFound
	}

	u, err := unixid.NewUnixID()
	if err != nil {
		return "", err
	}
	state := u.GetNewID()

	now := s.now()
	if err := s.exec.Exec(
		"INSERT INTO user_oauth_states (state, provider, expires_at, created_at) VALUES (?, ?, ?, ?)",
		state, providerName, now.Add(s.config.StateTTL).Unix(), now.Unix(),
	); err != nil {
		return "", err
	}

	return p.AuthCodeURL(state), nil
}

// CompleteOAuth handles the provider callback. It resolves the identity to
// an existing user, links it to a user with the same email, or creates a
// new user; created reports the latter. A session is opened in every case.
func (s *Store) CompleteOAuth(ctx context.Context, providerName, state, code string) (u meridia.User, created bool, sess meridia.Session, err error) {
	if err := s.consumeState(state, providerName); err != nil {
		return meridia.User{}, false, meridia.Session{}, meridia.ErrInvalidOAuthState
	}

	p := s.provider(providerName)
	if p == nil {
		return meridia.User{}, false, meridia.Session{}, meridia.ErrProviderNotFound
	}

	token, err := p.ExchangeCode(ctx, code)
	if err != nil {
		return meridia.User{}, false, meridia.Session{}, err
	}

	info, err := p.GetUserInfo(ctx, token)
	if err != nil {
		return meridia.User{}, false, meridia.Session{}, err
	}

	a, created, err := s.resolveIdentity(providerName, info)
	if err != nil {
		return meridia.User{}, false, meridia.Session{}, err
	}
	if a.Status == statusSuspended {
		return meridia.User{}, false, meridia.Session{}, meridia.ErrSuspended
	}
	if a.Status == statusPending {
		if err := s.setStatus(a.ID, statusActive); err != nil {
			return meridia.User{}, false, meridia.Session{}, err
		}
	}
	sess, err = s.CreateSession(a.ID)
	return a.User, created, sess, err
}

func (s *Store) resolveIdentity(providerName string, info OAuthUserInfo) (account, bool, error) {
	identity, err := s.GetIdentityByProvider(providerName, info.ID)
	if err == nil {
		a, err := s.accountByID(identity.UserID)
		return a, false, err
	}
	if !errors.Is(err, meridia.ErrNotFound) {
		return account{}, false, err
	}

	if info.Email != "" {
		a, err := s.accountByEmail(info.Email)
		if err == nil {
			return a, false, s.CreateIdentity(a.ID, providerName, info.ID, info.Email)
		}
		if !errors.Is(err, meridia.ErrNotFound) {
			return account{}, false, err
		}
	}

	a, err := s.createUser(info.Email, info.Name, statusActive)
	if err != nil {
		return account{}, false, err
	}
	return a, true, s.CreateIdentity(a.ID, providerName, info.ID, info.Email)
}

func (s *Store) consumeState(state, provider string) error {
	var expiresAt int64
	var dbProvider string
	err := s.exec.QueryRow("SELECT expires_at, provider FROM user_oauth_states WHERE state = ?", state).Scan(&expiresAt, &dbProvider)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return meridia.ErrInvalidOAuthState
		}
		return err
	}

	if dbProvider != provider {
		return meridia.ErrInvalidOAuthState
	}

	// single use, expired or not
	if err := s.exec.Exec("DELETE FROM user_oauth_states WHERE state = ?", state); err != nil {
		return err
	}

	if expiresAt < s.now().Unix() {
		return meridia.ErrInvalidOAuthState
	}

	return nil
}

func (s *Store) PurgeExpiredOAuthStates() error {
	return s.exec.Exec("DELETE FROM user_oauth_states WHERE expires_at < ?", s.now().Unix())
}
