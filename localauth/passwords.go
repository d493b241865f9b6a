package localauth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"

	meridia "github.com/yoku-app/MERIDIA"
)

var PasswordHashCost = bcrypt.DefaultCost

const localProvider = "local"

// SignIn checks an email and password and opens a session.
func (s *Store) SignIn(email, password string) (meridia.User, meridia.Session, error) {
	a, err := s.accountByEmail(email)
	if err != nil {
		return meridia.User{}, meridia.Session{}, meridia.ErrInvalidCredentials
	}
	if err := s.VerifyPassword(a.ID, password); err != nil {
		return meridia.User{}, meridia.Session{}, err
	}
	switch a.Status {
	case statusSuspended:
		return meridia.User{}, meridia.Session{}, meridia.ErrSuspended
	case statusPending:
		return meridia.User{}, meridia.Session{}, meridia.ErrNotConfirmed
	}
	sess, err := s.CreateSession(a.ID)
	if err != nil {
		return meridia.User{}, meridia.Session{}, err
	}
	return a.User, sess, nil
}

// SignOut closes the session of the token.
func (s *Store) SignOut(token string) error {
	return s.DeleteSession(token)
}

func (s *Store) SetPassword(userID, password string) error {
	if len(password) < 8 {
		return meridia.ErrWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), PasswordHashCost)
	if err != nil {
		return err
	}
	return s.upsertIdentity(userID, localProvider, string(hash), "")
}

func (s *Store) VerifyPassword(userID, password string) error {
	identity, err := s.identityOf(userID, localProvider)
	if err != nil {
		if errors.Is(err, meridia.ErrNotFound) {
			return meridia.ErrInvalidCredentials
		}
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(identity.ProviderID), []byte(password)); err != nil {
		return meridia.ErrInvalidCredentials
	}
	return nil
}
