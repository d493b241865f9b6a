package server

import (
	"context"
	"net/url"

	meridia "github.com/yoku-app/MERIDIA"
	"github.com/yoku-app/MERIDIA/api"
	"github.com/yoku-app/MERIDIA/flow"
	"github.com/yoku-app/MERIDIA/localauth"
	"github.com/yoku-app/MERIDIA/supabase"
)

// Backend supplies the remote adapters of the flows and the session
// operations of the HTTP surface.
type Backend interface {
	Auth(tokens meridia.TokenSource) flow.AuthProvider
	Profiles(tokens meridia.TokenSource) flow.ProfileService
	// SessionUser loads the user owning the access token.
	SessionUser(ctx context.Context, token string) (meridia.User, error)
	// CompleteSocial finishes a social sign-in from the callback query.
	CompleteSocial(ctx context.Context, q url.Values) (meridia.Session, error)
	SignIn(ctx context.Context, email, password string) (meridia.Session, error)
	SignOut(ctx context.Context, token string) error
}

// Local serves everything from the in-process store.
type Local struct {
	Store *localauth.Store
}

func (l Local) Auth(tokens meridia.TokenSource) flow.AuthProvider { return l.Store.Provider(tokens) }

func (l Local) Profiles(tokens meridia.TokenSource) flow.ProfileService {
	return l.Store.Provider(tokens)
}

func (l Local) SessionUser(_ context.Context, token string) (meridia.User, error) {
	sess, err := l.Store.GetSession(token)
	if err != nil {
		return meridia.User{}, err
	}
	return l.Store.GetUser(sess.UserID)
}

func (l Local) CompleteSocial(ctx context.Context, q url.Values) (meridia.Session, error) {
	_, _, sess, err := l.Store.CompleteOAuth(ctx, q.Get("provider"), q.Get("state"), q.Get("code"))
	return sess, err
}

func (l Local) SignIn(_ context.Context, email, password string) (meridia.Session, error) {
	_, sess, err := l.Store.SignIn(email, password)
	return sess, err
}

func (l Local) SignOut(_ context.Context, token string) error { return l.Store.SignOut(token) }

// Hosted uses the hosted auth provider for identities and the REST API
// for profiles.
type Hosted struct {
	client *supabase.Client
	api    *api.Client
	// social is shared by every flow, since the callback arrives on a
	// request of its own.
	social *supabase.Auth
	cbURL  string
}

func NewHosted(client *supabase.Client, apiClient *api.Client, callbackURL string) *Hosted {
	return &Hosted{
		client: client,
		api:    apiClient,
		social: supabase.NewAuth(client, nil, callbackURL),
		cbURL:  callbackURL,
	}
}

type sharedSocial struct {
	*supabase.Auth
	social *supabase.Auth
}

func (s sharedSocial) AuthenticateSocial(ctx context.Context, provider string) flow.Response[string] {
	return s.social.AuthenticateSocial(ctx, provider)
}

func (h *Hosted) Auth(tokens meridia.TokenSource) flow.AuthProvider {
	return sharedSocial{Auth: supabase.NewAuth(h.client, tokens, h.cbURL), social: h.social}
}

func (h *Hosted) Profiles(tokens meridia.TokenSource) flow.ProfileService {
	return api.NewProfiles(h.api.WithToken(tokens), h.client)
}

func (h *Hosted) SessionUser(ctx context.Context, token string) (meridia.User, error) {
	return h.api.WithToken(meridia.StaticToken(token)).SessionUser(ctx)
}

func (h *Hosted) CompleteSocial(ctx context.Context, q url.Values) (meridia.Session, error) {
	return h.social.CompleteSocial(ctx, q.Get("pkce"), q.Get("code"))
}

func (h *Hosted) SignIn(ctx context.Context, email, password string) (meridia.Session, error) {
	return h.client.SignInWithPassword(ctx, email, password)
}

func (h *Hosted) SignOut(ctx context.Context, token string) error {
	return h.client.SignOut(ctx, token)
}
