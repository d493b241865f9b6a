package localauth

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	meridia "github.com/yoku-app/MERIDIA"
	"github.com/yoku-app/MERIDIA/flow"
)

// Provider runs the flow operations against the store. Operations on an
// existing account (phone, profile, avatar) act on the session of the
// token source.
type Provider struct {
	store  *Store
	tokens meridia.TokenSource
}

func (s *Store) Provider(tokens meridia.TokenSource) *Provider {
	if tokens == nil {
		tokens = meridia.StaticToken("")
	}
	return &Provider{store: s, tokens: tokens}
}

var (
	_ flow.AuthProvider   = (*Provider)(nil)
	_ flow.ProfileService = (*Provider)(nil)
)

func normalizeEmail(email string) string { return strings.ToLower(strings.TrimSpace(email)) }

// RegisterCredentials creates a pending account and emails it a code.
// Registering again before confirming replaces the password and the code.
func (p *Provider) RegisterCredentials(ctx context.Context, c flow.Credentials) flow.Ack {
	email := normalizeEmail(c.Email)
	a, err := p.store.accountByEmail(email)
	switch {
	case err == nil && a.Status != statusPending:
		return flow.Fail[struct{}](p.failure(meridia.ErrEmailTaken))
	case errors.Is(err, meridia.ErrNotFound):
		a, err = p.store.createUser(email, "", statusPending)
	}
	if err != nil {
		return flow.Fail[struct{}](p.failure(err))
	}
	if err := p.store.SetPassword(a.ID, c.Password); err != nil {
		return flow.Fail[struct{}](p.failure(err))
	}
	if err := p.store.issueCode(ctx, a.ID, PurposeSignup, email); err != nil {
		return flow.Fail[struct{}](p.failure(err))
	}
	return flow.Done()
}

// ConfirmOtp activates the account the code was sent to and signs it in.
func (p *Provider) ConfirmOtp(ctx context.Context, c flow.Confirmation) flow.Response[meridia.Session] {
	userID, err := p.store.consumeCode("", PurposeSignup, normalizeEmail(c.Email), c.OTP)
	if err != nil {
		return flow.Fail[meridia.Session](p.failure(err))
	}
	if err := p.store.setStatus(userID, statusActive); err != nil {
		return flow.Fail[meridia.Session](p.failure(err))
	}
	sess, err := p.store.CreateSession(userID)
	if err != nil {
		return flow.Fail[meridia.Session](p.failure(err))
	}
	return flow.Ok(sess)
}

// ResendOtp succeeds for unknown and confirmed addresses too, so that the
// answer does not reveal which emails are registered.
func (p *Provider) ResendOtp(ctx context.Context, email string) flow.Ack {
	email = normalizeEmail(email)
	a, err := p.store.accountByEmail(email)
	if errors.Is(err, meridia.ErrNotFound) || (err == nil && a.Status != statusPending) {
		return flow.Done()
	}
	if err != nil {
		return flow.Fail[struct{}](p.failure(err))
	}
	if err := p.store.issueCode(ctx, a.ID, PurposeSignup, email); err != nil {
		return flow.Fail[struct{}](p.failure(err))
	}
	return flow.Done()
}

func (p *Provider) AuthenticateSocial(ctx context.Context, provider string) flow.Response[string] {
	url, err := p.store.BeginOAuth(provider)
	if err != nil {
		return flow.Fail[string](p.failure(err))
	}
	return flow.Ok(url)
}

func (p *Provider) SendPhoneOtp(ctx context.Context, phone string) flow.Ack {
	sess, err := p.store.GetSession(p.tokens.AccessToken())
	if err != nil {
		return flow.Fail[struct{}](p.failure(err))
	}
	if err := p.store.issueCode(ctx, sess.UserID, PurposePhone, phone); err != nil {
		return flow.Fail[struct{}](p.failure(err))
	}
	return flow.Done()
}

// VerifyPhoneOtp saves the phone number once its code is confirmed.
func (p *Provider) VerifyPhoneOtp(ctx context.Context, phone, otp string) flow.Ack {
	sess, err := p.store.GetSession(p.tokens.AccessToken())
	if err != nil {
		return flow.Fail[struct{}](p.failure(err))
	}
	if _, err := p.store.consumeCode(sess.UserID, PurposePhone, phone, otp); err != nil {
		return flow.Fail[struct{}](p.failure(err))
	}
	if err := p.store.setPhone(sess.UserID, phone); err != nil {
		return flow.Fail[struct{}](p.failure(err))
	}
	return flow.Done()
}

func (p *Provider) UpdateProfile(ctx context.Context, u meridia.User) flow.Response[meridia.User] {
	if err := p.authorize(u.ID); err != nil {
		return flow.Fail[meridia.User](p.failure(err))
	}
	saved, err := p.store.UpdateProfile(u)
	if err != nil {
		return flow.Fail[meridia.User](p.failure(err))
	}
	return flow.Ok(saved)
}

func (p *Provider) UploadAvatar(ctx context.Context, userID string, image []byte) flow.Response[string] {
	if err := p.authorize(userID); err != nil {
		return flow.Fail[string](p.failure(err))
	}
	url, err := p.store.SaveAvatar(userID, image)
	if err != nil {
		return flow.Fail[string](p.failure(err))
	}
	return flow.Ok(url)
}

// authorize requires a live session belonging to userID.
func (p *Provider) authorize(userID string) error {
	sess, err := p.store.GetSession(p.tokens.AccessToken())
	if err != nil {
		return err
	}
	if sess.UserID != userID {
		return meridia.ErrUnauthorized
	}
	return nil
}

// failure translates store errors into what the flows show.
func (p *Provider) failure(err error) *flow.ErrorInfo {
	switch {
	case errors.Is(err, meridia.ErrEmailTaken):
		return flow.ConflictError(flow.FieldEmail, "An account with this email already exists.")
	case errors.Is(err, meridia.ErrInvalidCode), errors.Is(err, meridia.ErrCodeExpired):
		return &flow.ErrorInfo{Kind: flow.KindAuth, Status: 403, Code: "otp_expired", Message: "Token has expired or is invalid", Field: flow.FieldOTP}
	case errors.Is(err, meridia.ErrUnauthorized), errors.Is(err, meridia.ErrSessionExpired):
		return flow.AuthError(401, "unauthorized", "Unauthorized")
	case errors.Is(err, meridia.ErrProviderNotFound):
		return flow.AuthError(400, "validation_failed", "Unsupported provider: provider is not enabled")
	case errors.Is(err, meridia.ErrWeakPassword):
		return &flow.ErrorInfo{Kind: flow.KindValidation, Status: 422, Code: "weak_password", Message: "Password should be at least 8 characters.", Field: flow.FieldPassword}
	case errors.Is(err, meridia.ErrInvalidImage):
		return &flow.ErrorInfo{Kind: flow.KindValidation, Status: 400, Code: "invalid_image", Message: "Please upload an image", Field: flow.FieldAvatarURL}
	case errors.Is(err, meridia.ErrNotFound):
		return flow.AuthError(404, "user_not_found", "User not found")
	}
	p.store.log.Error("local auth operation failed", zap.Error(err))
	return flow.NetworkError(err)
}
