package supabase

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"

	meridia "github.com/yoku-app/MERIDIA"
)

// OTP types understood by /verify and /resend.
const (
	OTPSignup      = "signup"
	OTPPhoneChange = "phone_change"
)

// User is the GoTrue user object.
type User struct {
	ID           string           `json:"id"`
	Email        string           `json:"email"`
	Phone        string           `json:"phone"`
	UserMetadata map[string]any   `json:"user_metadata"`
	Identities   []map[string]any `json:"identities"`
}

// Obfuscated reports whether GoTrue answered a sign-up with a placeholder
// user, which it does when the email already belongs to an account.
func (u *User) Obfuscated() bool {
	return u == nil || u.ID == "" || len(u.UserMetadata) == 0
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at"`
	User         User   `json:"user"`
}

func (t tokenResponse) session() meridia.Session {
	s := meridia.Session{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		UserID:       t.User.ID,
		Email:        t.User.Email,
	}
	switch {
	case t.ExpiresAt > 0:
		s.ExpiresAt = time.Unix(t.ExpiresAt, 0).UTC()
	case t.ExpiresIn > 0:
		s.ExpiresAt = time.Now().Add(time.Duration(t.ExpiresIn) * time.Second).UTC()
	}
	return s
}

// SignUp registers an email and password. With email confirmation enabled
// no session is returned and a code is emailed to the address.
func (c *Client) SignUp(ctx context.Context, email, password string) (*User, error) {
	var out struct {
		User
		Nested *User `json:"user"`
	}
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/v1/signup",
		body:   map[string]string{"email": email, "password": password},
	}, &out)
	if err != nil {
		return nil, err
	}
	if out.Nested != nil {
		return out.Nested, nil
	}
	return &out.User, nil
}

// VerifyOtp confirms a code. target is the email for signup codes and the
// phone number for phone_change codes; token authorizes phone changes.
func (c *Client) VerifyOtp(ctx context.Context, otpType, target, code, token string) (meridia.Session, error) {
	body := map[string]string{"type": otpType, "token": code}
	if otpType == OTPPhoneChange {
		body["phone"] = target
	} else {
		body["email"] = target
	}
	var out tokenResponse
	if err := c.do(ctx, request{method: http.MethodPost, path: "/auth/v1/verify", token: token, body: body}, &out); err != nil {
		return meridia.Session{}, err
	}
	return out.session(), nil
}

func (c *Client) Resend(ctx context.Context, otpType, target, token string) error {
	body := map[string]string{"type": otpType}
	if otpType == OTPPhoneChange {
		body["phone"] = target
	} else {
		body["email"] = target
	}
	return c.do(ctx, request{method: http.MethodPost, path: "/auth/v1/resend", token: token, body: body}, nil)
}

func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (meridia.Session, error) {
	var out tokenResponse
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/v1/token?grant_type=password",
		body:   map[string]string{"email": email, "password": password},
	}, &out)
	if err != nil {
		return meridia.Session{}, err
	}
	return out.session(), nil
}

func (c *Client) RefreshSession(ctx context.Context, refreshToken string) (meridia.Session, error) {
	var out tokenResponse
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/v1/token?grant_type=refresh_token",
		body:   map[string]string{"refresh_token": refreshToken},
	}, &out)
	if err != nil {
		return meridia.Session{}, err
	}
	return out.session(), nil
}

// ExchangeCode completes a PKCE sign-in with the code from the callback.
func (c *Client) ExchangeCode(ctx context.Context, authCode, verifier string) (meridia.Session, error) {
	var out tokenResponse
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/v1/token?grant_type=pkce",
		body:   map[string]string{"auth_code": authCode, "code_verifier": verifier},
	}, &out)
	if err != nil {
		return meridia.Session{}, err
	}
	return out.session(), nil
}

// GetUser returns the user of an access token.
func (c *Client) GetUser(ctx context.Context, token string) (User, error) {
	var u User
	err := c.do(ctx, request{method: http.MethodGet, path: "/auth/v1/user", token: token}, &u)
	return u, err
}

// UpdatePhone starts a phone change. GoTrue texts a phone_change code to
// the new number.
func (c *Client) UpdatePhone(ctx context.Context, token, phone string) error {
	return c.do(ctx, request{
		method: http.MethodPut,
		path:   "/auth/v1/user",
		token:  token,
		body:   map[string]string{"phone": phone},
	}, nil)
}

func (c *Client) SignOut(ctx context.Context, token string) error {
	return c.do(ctx, request{method: http.MethodPost, path: "/auth/v1/logout", token: token}, nil)
}

// AuthorizeURL returns the URL that starts a social sign-in together with
// the PKCE verifier that must be presented to ExchangeCode.
func (c *Client) AuthorizeURL(provider, redirectTo string) (string, string) {
	verifier := oauth2.GenerateVerifier()
	q := url.Values{}
	q.Set("provider", provider)
	q.Set("redirect_to", redirectTo)
	q.Set("code_challenge", oauth2.S256ChallengeFromVerifier(verifier))
	q.Set("code_challenge_method", "s256")
	q.Set("access_type", "offline")
	q.Set("prompt", "consent")
	return c.baseURL + "/auth/v1/authorize?" + q.Encode(), verifier
}
