package flow

import (
	"context"

	meridia "github.com/yoku-app/MERIDIA"
)

// RegistrationFlow drives credentials → confirmation → complete.
type RegistrationFlow struct {
	form  *Form
	steps *Controller
	coord *Coordinator
	auth  AuthProvider
	opts  options
}

func NewRegistration(auth AuthProvider, opts ...Option) *RegistrationFlow {
	o := newOptions(opts)
	form := NewForm(RegistrationSchema(), Record{FieldEmail: "", FieldPassword: "", FieldOTP: ""})
	steps := NewController(RegistrationGraph)
	return &RegistrationFlow{
		form:  form,
		steps: steps,
		coord: NewCoordinator(RegistrationGraph.Name, steps, form, opts...),
		auth:  auth,
		opts:  o,
	}
}

func (f *RegistrationFlow) Form() *Form          { return f.form }
func (f *RegistrationFlow) Steps() *Controller   { return f.steps }
func (f *RegistrationFlow) State() State         { return f.steps.State() }
func (f *RegistrationFlow) Status() Status       { return f.coord.Status() }
func (f *RegistrationFlow) SetEmail(v string)    { f.form.Set(FieldEmail, v) }
func (f *RegistrationFlow) SetPassword(v string) { f.form.Set(FieldPassword, v) }
func (f *RegistrationFlow) SetOTP(v string)      { f.form.Set(FieldOTP, v) }

// Email is retained from the credentials step into the confirmation step.
func (f *RegistrationFlow) Email() string { return f.form.String(FieldEmail) }

// Register submits the credentials. On success only the email is kept and
// the flow waits for the emailed code.
func (f *RegistrationFlow) Register(ctx context.Context) Result {
	return f.coord.hold(StepCredentials, func() Result { return f.register(ctx) })
}

// RegisterWith sets the credentials and submits them. Nothing is written
// to the form when the call is rejected.
func (f *RegistrationFlow) RegisterWith(ctx context.Context, c Credentials) Result {
	return f.coord.hold(StepCredentials, func() Result {
		f.SetEmail(c.Email)
		f.SetPassword(c.Password)
		return f.register(ctx)
	})
}

func (f *RegistrationFlow) register(ctx context.Context) Result {
	if errs := f.form.Validate(FieldEmail, FieldPassword); len(errs) > 0 {
		return f.coord.invalid(StepCredentials, errs)
	}
	password, _ := f.form.Get(FieldPassword).(string)
	creds := Credentials{Email: f.form.String(FieldEmail), Password: password}
	return run(ctx, f.coord, StepCredentials, StepConfirmation,
		func(ctx context.Context) Ack { return f.auth.RegisterCredentials(ctx, creds) },
		func(struct{}) {
			f.form.Reset()
			f.form.Set(FieldEmail, creds.Email)
		},
	)
}

// Confirm verifies the emailed code and completes the registration.
func (f *RegistrationFlow) Confirm(ctx context.Context) Result {
	return f.coord.hold(StepConfirmation, func() Result { return f.confirm(ctx) })
}

// ConfirmWith sets the code and confirms it, like RegisterWith.
func (f *RegistrationFlow) ConfirmWith(ctx context.Context, otp string) Result {
	return f.coord.hold(StepConfirmation, func() Result {
		f.SetOTP(otp)
		return f.confirm(ctx)
	})
}

func (f *RegistrationFlow) confirm(ctx context.Context) Result {
	if errs := f.form.Validate(FieldOTP); len(errs) > 0 {
		return f.coord.invalid(StepConfirmation, errs)
	}
	conf := Confirmation{Email: f.form.String(FieldEmail), OTP: f.form.String(FieldOTP)}
	var session meridia.Session
	r := run(ctx, f.coord, StepConfirmation, StepComplete,
		func(ctx context.Context) Response[meridia.Session] { return f.auth.ConfirmOtp(ctx, conf) },
		func(s meridia.Session) {
			session = s
			f.form.Reset(FieldEmail)
		},
	)
	if r.OK() && f.opts.onSession != nil {
		f.opts.onSession(session)
	}
	return r
}

// Resend asks the provider for a new confirmation code.
func (f *RegistrationFlow) Resend(ctx context.Context) Result {
	email := f.form.String(FieldEmail)
	return Submit(ctx, f.coord, StepConfirmation, StepConfirmation,
		func(ctx context.Context) Ack { return f.auth.ResendOtp(ctx, email) },
		nil,
	)
}

// Cancel returns to the credentials step and drops the code. Cancelling
// while already on the credentials step does nothing.
func (f *RegistrationFlow) Cancel() error {
	return f.steps.Move(StepCredentials, func() {
		f.form.Set(FieldOTP, "")
		f.form.ClearErrors()
	})
}

// Social starts a social provider sign-in and returns the redirect URL.
func (f *RegistrationFlow) Social(ctx context.Context, provider string) (string, Result) {
	var redirect string
	r := Submit(ctx, f.coord, StepCredentials, StepCredentials,
		func(ctx context.Context) Response[string] { return f.auth.AuthenticateSocial(ctx, provider) },
		func(u string) { redirect = u },
	)
	return redirect, r
}
