package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	meridia "github.com/yoku-app/MERIDIA"
)

func sign(t *testing.T, c claims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte("not-checked"))
	require.NoError(t, err)
	return tok
}

func TestSessionFromTokens(t *testing.T) {
	exp := time.Date(2026, 10, 17, 10, 0, 0, 0, time.UTC)
	access := sign(t, claims{
		Email:            "a@b.com",
		RegisteredClaims: jwt.RegisteredClaims{Subject: "u-1", ExpiresAt: jwt.NewNumericDate(exp)},
	})

	s, err := SessionFromTokens(access, "r-1")
	require.NoError(t, err)
	assert.Equal(t, "u-1", s.UserID)
	assert.Equal(t, "a@b.com", s.Email)
	assert.Equal(t, "r-1", s.RefreshToken)
	assert.True(t, s.ExpiresAt.Equal(exp))
	assert.True(t, s.Expired(exp.Add(time.Second)))

	t.Run("no subject", func(t *testing.T) {
		_, err := SessionFromTokens(sign(t, claims{Email: "a@b.com"}), "")
		assert.ErrorIs(t, err, meridia.ErrUnauthorized)
	})
	t.Run("garbage", func(t *testing.T) {
		_, err := SessionFromTokens("not.a.jwt", "")
		assert.Error(t, err)
	})
	t.Run("empty", func(t *testing.T) {
		_, err := SessionFromTokens("", "")
		assert.ErrorIs(t, err, meridia.ErrUnauthorized)
	})
}

func TestUserStore(t *testing.T) {
	s := NewUserStore()
	var seen []UserState
	unsubscribe := s.Subscribe(func(st UserState) { seen = append(seen, st) })

	assert.Empty(t, s.AccessToken())
	assert.False(t, s.NeedsOnboarding(), "nobody signed in")

	s.SetSession(meridia.Session{AccessToken: "tok", UserID: "u-1"})
	s.SetUser(meridia.User{ID: "u-1", Email: "a@b.com"})
	assert.Equal(t, "tok", s.AccessToken())
	assert.True(t, s.NeedsOnboarding())

	now := time.Now()
	s.SetUser(meridia.User{ID: "u-1", OnboardingCompletion: &meridia.OnboardingCompletion{Core: &now}})
	assert.False(t, s.NeedsOnboarding())

	require.Len(t, seen, 3)
	assert.Nil(t, seen[0].User)
	assert.Equal(t, "tok", seen[0].Session.AccessToken)
	assert.Equal(t, "a@b.com", seen[1].User.Email)

	unsubscribe()
	unsubscribe()
	s.Clear()
	assert.Len(t, seen, 3)
	_, ok := s.User()
	assert.False(t, ok)
	assert.Empty(t, s.AccessToken())
}

func TestUserStore_SnapshotsAreCopies(t *testing.T) {
	s := NewUserStore()
	var got UserState
	s.Subscribe(func(st UserState) { got = st })
	s.SetUser(meridia.User{ID: "u-1", Name: "Jane"})

	got.User.Name = "Mallory"
	u, _ := s.User()
	assert.Equal(t, "Jane", u.Name)
}

type source struct {
	user meridia.User
	err  error
}

func (s source) SessionUser(context.Context) (meridia.User, error) { return s.user, s.err }

func TestUserStore_Hydrate(t *testing.T) {
	s := NewUserStore()
	_, err := s.Hydrate(context.Background(), source{user: meridia.User{ID: "u-1"}})
	assert.ErrorIs(t, err, meridia.ErrUnauthorized)

	s.SetSession(meridia.Session{AccessToken: "tok"})
	boom := errors.New("boom")
	_, err = s.Hydrate(context.Background(), source{err: boom})
	assert.ErrorIs(t, err, boom)
	_, ok := s.User()
	assert.False(t, ok)

	u, err := s.Hydrate(context.Background(), source{user: meridia.User{ID: "u-1"}})
	require.NoError(t, err)
	assert.Equal(t, "u-1", u.ID)
	assert.True(t, s.NeedsOnboarding())
}

func TestUserStore_ConcurrentUse(t *testing.T) {
	s := NewUserStore()
	s.Subscribe(func(UserState) {})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				s.SetSession(meridia.Session{AccessToken: "tok"})
				_ = s.AccessToken()
				s.NeedsOnboarding()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, "tok", s.AccessToken())
}

func TestOrganisationStore(t *testing.T) {
	s := NewOrganisationStore()
	var last OrganisationState
	calls := 0
	s.Subscribe(func(st OrganisationState) { last = st; calls++ })

	personal := meridia.Organisation{ID: "o-1", Name: "Me", OrgType: meridia.OrgPersonal}
	acme := meridia.Organisation{ID: "o-2", Name: "Acme", OrgType: meridia.OrgCompany}
	s.SetOrganisations([]meridia.Organisation{personal, acme})

	_, ok := s.Active()
	assert.False(t, ok)

	require.NoError(t, s.SetDefault("o-1"))
	got, ok := s.Active()
	require.True(t, ok)
	assert.Equal(t, "o-1", got.ID, "falls back to the default")

	require.NoError(t, s.SetActive("o-2"))
	got, _ = s.Active()
	assert.Equal(t, "o-2", got.ID)

	assert.ErrorIs(t, s.SetActive("missing"), meridia.ErrNotFound)
	assert.Equal(t, 3, calls, "a failed update notifies nobody")

	s.SetOrganisations([]meridia.Organisation{personal})
	assert.Nil(t, last.Active)
	assert.Equal(t, "o-1", last.Default.ID)

	acme.Name = "Acme Ltd"
	s.Add(acme)
	s.Add(acme)
	assert.Len(t, s.State().List, 2)

	s.Clear()
	assert.Empty(t, s.State().List)
	assert.Nil(t, s.State().Default)
}
