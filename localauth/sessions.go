package localauth

import (
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	meridia "github.com/yoku-app/MERIDIA"
)

const sessionSelect = `SELECT s.id, COALESCE(s.refresh, ''), s.user_id, COALESCE(u.email, ''), s.expires_at
	FROM user_sessions s JOIN users u ON u.id = s.user_id`

func scanSession(sc Scanner) (meridia.Session, error) {
	var sess meridia.Session
	var expires int64
	if err := sc.Scan(&sess.AccessToken, &sess.RefreshToken, &sess.UserID, &sess.Email, &expires); err != nil {
		return meridia.Session{}, err
	}
	sess.ExpiresAt = time.Unix(expires, 0).UTC()
	return sess, nil
}

// CreateSession opens a session for a user. Both tokens are random UUIDs.
func (s *Store) CreateSession(userID string) (meridia.Session, error) {
	a, err := s.accountByID(userID)
	if err != nil {
		return meridia.Session{}, err
	}

	now := s.now()
	sess := meridia.Session{
		AccessToken:  uuid.NewString(),
		RefreshToken: uuid.NewString(),
		UserID:       userID,
		Email:        a.Email,
		ExpiresAt:    now.Add(s.config.SessionTTL).UTC().Truncate(time.Second),
	}

	if err := s.exec.Exec(
		`INSERT INTO user_sessions (id, refresh, user_id, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		sess.AccessToken, sess.RefreshToken, sess.UserID, sess.ExpiresAt.Unix(), now.Unix(),
	); err != nil {
		return meridia.Session{}, err
	}
	s.cache.set(sess)
	return sess, nil
}

// GetSession resolves an access token.
func (s *Store) GetSession(token string) (meridia.Session, error) {
	if token == "" {
		return meridia.Session{}, meridia.ErrUnauthorized
	}
	if sess, ok := s.cache.get(token); ok {
		if sess.Expired(s.now()) {
			s.cache.delete(token)
			return meridia.Session{}, meridia.ErrSessionExpired
		}
		return sess, nil
	}

	sess, err := scanSession(s.exec.QueryRow(sessionSelect+" WHERE s.id = ?", token))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return meridia.Session{}, meridia.ErrUnauthorized
		}
		return meridia.Session{}, err
	}

	if sess.Expired(s.now()) {
		return meridia.Session{}, meridia.ErrSessionExpired
	}

	s.cache.set(sess)
	return sess, nil
}

// Refresh exchanges a refresh token for a new session. The old session is
// closed.
func (s *Store) Refresh(refresh string) (meridia.Session, error) {
	old, err := scanSession(s.exec.QueryRow(sessionSelect+" WHERE s.refresh = ?", refresh))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return meridia.Session{}, meridia.ErrUnauthorized
		}
		return meridia.Session{}, err
	}
	if err := s.DeleteSession(old.AccessToken); err != nil {
		return meridia.Session{}, err
	}
	return s.CreateSession(old.UserID)
}

func (s *Store) DeleteSession(token string) error {
	s.cache.delete(token)
	return s.exec.Exec("DELETE FROM user_sessions WHERE id = ?", token)
}

func (s *Store) PurgeExpiredSessions() error {
	now := s.now()
	s.cache.evict(now, "")
	return s.exec.Exec("DELETE FROM user_sessions WHERE expires_at < ?", now.Unix())
}
