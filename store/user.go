package store

import (
	"context"
	"sync"

	meridia "github.com/yoku-app/MERIDIA"
)

// UserState is the snapshot handed to UserStore subscribers. Nil means
// absent.
type UserState struct {
	User    *meridia.User
	Session *meridia.Session
}

// UserSource loads the profile of the signed-in user.
type UserSource interface {
	SessionUser(ctx context.Context) (meridia.User, error)
}

// UserStore holds the current user and session. It is the TokenSource of
// the remote adapters, so signing out revokes their access at once.
type UserStore struct {
	mu      sync.RWMutex
	user    *meridia.User
	session *meridia.Session
	subs    observers[UserState]
}

var _ meridia.TokenSource = (*UserStore)(nil)

func NewUserStore() *UserStore { return &UserStore{} }

func (s *UserStore) snapshot() UserState {
	var st UserState
	if s.user != nil {
		u := *s.user
		st.User = &u
	}
	if s.session != nil {
		sess := *s.session
		st.Session = &sess
	}
	return st
}

func (s *UserStore) update(fn func()) {
	s.mu.Lock()
	fn()
	st := s.snapshot()
	s.mu.Unlock()
	s.subs.notify(st)
}

func (s *UserStore) SetUser(u meridia.User) {
	s.update(func() { s.user = &u })
}

func (s *UserStore) SetSession(sess meridia.Session) {
	s.update(func() { s.session = &sess })
}

// Clear signs the user out.
func (s *UserStore) Clear() {
	s.update(func() { s.user, s.session = nil, nil })
}

func (s *UserStore) User() (meridia.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return meridia.User{}, false
	}
	return *s.user, true
}

func (s *UserStore) Session() (meridia.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session == nil {
		return meridia.Session{}, false
	}
	return *s.session, true
}

func (s *UserStore) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session == nil {
		return ""
	}
	return s.session.AccessToken
}

// NeedsOnboarding reports whether a user is loaded that has not finished
// the core onboarding.
func (s *UserStore) NeedsOnboarding() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user != nil && !s.user.Onboarded()
}

// Hydrate loads the user of the current session from src.
func (s *UserStore) Hydrate(ctx context.Context, src UserSource) (meridia.User, error) {
	if s.AccessToken() == "" {
		return meridia.User{}, meridia.ErrUnauthorized
	}
	u, err := src.SessionUser(ctx)
	if err != nil {
		return meridia.User{}, err
	}
	s.SetUser(u)
	return u, nil
}

// Subscribe calls fn with a snapshot after every change until the returned
// function is called.
func (s *UserStore) Subscribe(fn func(UserState)) (unsubscribe func()) {
	return s.subs.add(fn)
}
