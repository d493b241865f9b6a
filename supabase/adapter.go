package supabase

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	meridia "github.com/yoku-app/MERIDIA"
	"github.com/yoku-app/MERIDIA/flow"
)

const verifierTTL = 10 * time.Minute

// Auth runs the flow operations against GoTrue. Phone operations act on
// the session of the token source.
type Auth struct {
	client      *Client
	tokens      meridia.TokenSource
	callbackURL string

	mu        sync.Mutex
	verifiers map[string]pending
}

type pending struct {
	verifier string
	expires  time.Time
}

var _ flow.AuthProvider = (*Auth)(nil)

// NewAuth returns an adapter. callbackURL is where the provider sends the
// user back after a social sign-in, e.g. https://yoku.app/api/auth/token/callback.
func NewAuth(c *Client, tokens meridia.TokenSource, callbackURL string) *Auth {
	if tokens == nil {
		tokens = meridia.StaticToken("")
	}
	return &Auth{client: c, tokens: tokens, callbackURL: callbackURL, verifiers: map[string]pending{}}
}

// RegisterCredentials signs the user up. An address that already belongs
// to an account is reported on the email field.
func (a *Auth) RegisterCredentials(ctx context.Context, c flow.Credentials) flow.Ack {
	u, err := a.client.SignUp(ctx, c.Email, c.Password)
	if err != nil {
		return flow.Fail[struct{}](a.failure(err))
	}
	if u.Obfuscated() {
		return flow.Fail[struct{}](flow.ConflictError(flow.FieldEmail, "An account with this email already exists."))
	}
	return flow.Done()
}

func (a *Auth) ConfirmOtp(ctx context.Context, c flow.Confirmation) flow.Response[meridia.Session] {
	sess, err := a.client.VerifyOtp(ctx, OTPSignup, c.Email, c.OTP, "")
	if err != nil {
		return flow.Fail[meridia.Session](a.failure(err))
	}
	return flow.Ok(sess)
}

func (a *Auth) ResendOtp(ctx context.Context, email string) flow.Ack {
	if err := a.client.Resend(ctx, OTPSignup, email, ""); err != nil {
		return flow.Fail[struct{}](a.failure(err))
	}
	return flow.Done()
}

// AuthenticateSocial returns the authorize URL. The PKCE verifier is kept
// under a key carried in the callback URL; CompleteSocial redeems it.
func (a *Auth) AuthenticateSocial(ctx context.Context, provider string) flow.Response[string] {
	key := uuid.NewString()
	redirect, err := url.Parse(a.callbackURL)
	if err != nil {
		return flow.Fail[string](a.failure(err))
	}
	q := redirect.Query()
	q.Set("pkce", key)
	redirect.RawQuery = q.Encode()

	authURL, verifier := a.client.AuthorizeURL(provider, redirect.String())

	now := time.Now()
	a.mu.Lock()
	for k, p := range a.verifiers {
		if now.After(p.expires) {
			delete(a.verifiers, k)
		}
	}
	a.verifiers[key] = pending{verifier: verifier, expires: now.Add(verifierTTL)}
	a.mu.Unlock()

	return flow.Ok(authURL)
}

// CompleteSocial exchanges the code of a social sign-in callback.
func (a *Auth) CompleteSocial(ctx context.Context, key, code string) (meridia.Session, error) {
	a.mu.Lock()
	p, ok := a.verifiers[key]
	delete(a.verifiers, key)
	a.mu.Unlock()
	if !ok || time.Now().After(p.expires) {
		return meridia.Session{}, meridia.ErrInvalidOAuthState
	}
	return a.client.ExchangeCode(ctx, code, p.verifier)
}

// SendPhoneOtp asks GoTrue to change the phone of the signed-in user,
// which texts a code to the number. Sending to the same number again
// resends the code.
func (a *Auth) SendPhoneOtp(ctx context.Context, phone string) flow.Ack {
	token := a.tokens.AccessToken()
	if token == "" {
		return flow.Fail[struct{}](flow.AuthError(http.StatusUnauthorized, "unauthorized", "Unauthorized"))
	}
	if err := a.client.UpdatePhone(ctx, token, phone); err != nil {
		return flow.Fail[struct{}](a.failure(err))
	}
	return flow.Done()
}

func (a *Auth) VerifyPhoneOtp(ctx context.Context, phone, otp string) flow.Ack {
	token := a.tokens.AccessToken()
	if token == "" {
		return flow.Fail[struct{}](flow.AuthError(http.StatusUnauthorized, "unauthorized", "Unauthorized"))
	}
	if _, err := a.client.VerifyOtp(ctx, OTPPhoneChange, phone, otp, token); err != nil {
		return flow.Fail[struct{}](a.failure(err))
	}
	return flow.Done()
}

// fields maps GoTrue error codes to the form field they concern.
var fields = map[string]string{
	"email_address_invalid": flow.FieldEmail,
	"email_exists":          flow.FieldEmail,
	"user_already_exists":   flow.FieldEmail,
	"weak_password":         flow.FieldPassword,
	"otp_expired":           flow.FieldOTP,
	"phone_exists":          flow.FieldPhone,
}

func (a *Auth) failure(err error) *flow.ErrorInfo {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		a.client.log.Warn("supabase unreachable", zap.Error(err))
		return flow.NetworkError(err)
	}
	field := fields[apiErr.Code]
	switch {
	case apiErr.Code == "email_exists" || apiErr.Code == "user_already_exists" || apiErr.Code == "phone_exists":
		info := flow.ConflictError(field, apiErr.Message)
		info.Code = apiErr.Code
		return info
	case apiErr.Status == http.StatusUnprocessableEntity && field != "":
		return &flow.ErrorInfo{Kind: flow.KindValidation, Status: apiErr.Status, Code: apiErr.Code, Message: apiErr.Message, Field: field}
	case apiErr.Status >= 500:
		a.client.log.Warn("supabase failed", zap.Int("status", apiErr.Status), zap.String("message", apiErr.Message))
		info := flow.NetworkError(err)
		info.Status, info.Code = apiErr.Status, apiErr.Code
		return info
	}
	info := flow.AuthError(apiErr.Status, apiErr.Code, apiErr.Message)
	info.Field = field
	return info
}
