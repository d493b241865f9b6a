package flow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	meridia "github.com/yoku-app/MERIDIA"
)

func TestRegistration_ValidCredentialsAdvanceToConfirmation(t *testing.T) {
	remote := newMockRemote()
	var transitions []State
	f := NewRegistration(remote)
	f.Steps().Observe(func(s State) { transitions = append(transitions, s) })

	f.SetEmail("a@b.com")
	f.SetPassword("Abcdef1!")
	r := f.Register(context.Background())

	require.True(t, r.OK(), "result: %+v", r)
	assert.Equal(t, State{Step: StepConfirmation, Progress: 60}, f.State())
	assert.Equal(t, []State{{Step: StepConfirmation, Progress: 60}}, transitions)
	assert.Equal(t, []string{"register:a@b.com"}, remote.Calls())
	assert.Equal(t, "a@b.com", f.Email(), "email is retained for confirmation")
	assert.Nil(t, f.Form().Get(FieldPassword))
	assert.Equal(t, StatusSuccess, f.Status())
}

func TestRegistration_InvalidCredentialsNeverReachTheNetwork(t *testing.T) {
	remote := newMockRemote()
	f := NewRegistration(remote)
	f.SetEmail("a@b.com")
	f.SetPassword("abcdefgh")

	r := f.Register(context.Background())

	assert.Equal(t, StatusFailure, r.Status)
	assert.Equal(t, KindValidation, r.Kind)
	assert.Equal(t, FieldPassword, r.Field)
	assert.Len(t, r.Errors, 3)
	assert.Empty(t, remote.Calls())
	assert.Equal(t, StepCredentials, f.State().Step)
	assert.Equal(t, "Password must contain at least one uppercase letter", f.Form().Error(FieldPassword))
}

func TestRegistration_ProviderFailureStaysInPlace(t *testing.T) {
	remote := newMockRemote()
	remote.register = Fail[struct{}](ConflictError(FieldEmail, "An account with this email already exists."))
	f := NewRegistration(remote)
	f.SetEmail("taken@b.com")
	f.SetPassword("Abcdef1!")

	r := f.Register(context.Background())

	assert.Equal(t, StatusFailure, r.Status)
	assert.Equal(t, KindConflict, r.Kind)
	assert.Equal(t, State{Step: StepCredentials, Progress: 10}, f.State())
	assert.Equal(t, "An account with this email already exists.", f.Form().Error(FieldEmail))
	assert.Equal(t, "Abcdef1!", f.Form().Get(FieldPassword), "credentials are untouched")
}

func TestRegistration_ErrorWithoutFieldGoesToBanner(t *testing.T) {
	remote := newMockRemote()
	remote.register = Fail[struct{}](AuthError(429, "over_email_send_rate_limit", "Email rate limit exceeded"))
	f := NewRegistration(remote)
	f.SetEmail("a@b.com")
	f.SetPassword("Abcdef1!")

	r := f.Register(context.Background())

	assert.Equal(t, "Email rate limit exceeded", r.Message)
	assert.Equal(t, "Email rate limit exceeded", f.Form().Banner())
	assert.Empty(t, f.Form().Errors())
}

func TestRegistration_ConfirmCompletesAndHandsOverSession(t *testing.T) {
	remote := newMockRemote()
	var got meridia.Session
	f := NewRegistration(remote, WithSessionHook(func(s meridia.Session) { got = s }))
	f.SetEmail("a@b.com")
	f.SetPassword("Abcdef1!")
	require.True(t, f.Register(context.Background()).OK())

	f.SetOTP("123456")
	r := f.Confirm(context.Background())

	require.True(t, r.OK(), "result: %+v", r)
	assert.Equal(t, State{Step: StepComplete, Progress: 100}, f.State())
	assert.Equal(t, "token", got.AccessToken)
	assert.Equal(t, []string{"register:a@b.com", "confirm:a@b.com:123456"}, remote.Calls())
}

func TestRegistration_ConfirmRejectsMalformedCode(t *testing.T) {
	remote := newMockRemote()
	f := NewRegistration(remote)
	f.SetEmail("a@b.com")
	f.SetPassword("Abcdef1!")
	require.True(t, f.Register(context.Background()).OK())

	f.SetOTP("12ab")
	r := f.Confirm(context.Background())

	assert.Equal(t, KindValidation, r.Kind)
	assert.Equal(t, StepConfirmation, f.State().Step)
	assert.Len(t, remote.Calls(), 1)
}

func TestRegistration_CancelIsIdempotent(t *testing.T) {
	f := NewRegistration(newMockRemote())
	f.SetEmail("a@b.com")
	f.SetPassword("Abcdef1!")
	require.True(t, f.Register(context.Background()).OK())
	f.SetOTP("123456")

	require.NoError(t, f.Cancel())
	once := f.State()
	onceValues := f.Form().Values()

	require.NoError(t, f.Cancel())
	assert.Equal(t, once, f.State())
	assert.Equal(t, onceValues, f.Form().Values())
	assert.Equal(t, State{Step: StepCredentials, Progress: 10}, once)
	assert.Equal(t, "", f.Form().String(FieldOTP))
}

func TestRegistration_ResendKeepsStep(t *testing.T) {
	remote := newMockRemote()
	f := NewRegistration(remote)
	f.SetEmail("a@b.com")
	f.SetPassword("Abcdef1!")
	require.True(t, f.Register(context.Background()).OK())

	r := f.Resend(context.Background())

	assert.True(t, r.OK())
	assert.Equal(t, StepConfirmation, f.State().Step)
	assert.Equal(t, "resend:a@b.com", remote.Calls()[1])
}

func TestRegistration_WrongStepIsRejected(t *testing.T) {
	remote := newMockRemote()
	f := NewRegistration(remote)

	r := f.Confirm(context.Background())
	assert.Equal(t, StatusRejected, r.Status)
	assert.ErrorIs(t, r.Err, ErrWrongStep)

	r = f.Resend(context.Background())
	assert.Equal(t, StatusRejected, r.Status)
	assert.Empty(t, remote.Calls())
}

func TestRegistration_Social(t *testing.T) {
	remote := newMockRemote()
	f := NewRegistration(remote)

	url, r := f.Social(context.Background(), "google")

	assert.True(t, r.OK())
	assert.Equal(t, "https://auth.example.com/authorize", url)
	assert.Equal(t, StepCredentials, f.State().Step)
}
