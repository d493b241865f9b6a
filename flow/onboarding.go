package flow

import (
	"context"
	"sync"
	"time"

	meridia "github.com/yoku-app/MERIDIA"
)

// OnboardingFlow drives user-details → phone-confirmation → complete for a
// freshly confirmed user.
type OnboardingFlow struct {
	form     *Form
	steps    *Controller
	coord    *Coordinator
	auth     AuthProvider
	profiles ProfileService
	opts     options

	mu       sync.Mutex
	base     meridia.User
	sentTo   string
	verified string
}

func NewOnboarding(u meridia.User, auth AuthProvider, profiles ProfileService, opts ...Option) *OnboardingFlow {
	o := newOptions(opts)
	var dob time.Time
	if u.DOB != nil {
		dob = *u.DOB
	}
	form := NewForm(OnboardingSchema(o.now), Record{
		FieldDisplayName: u.Name,
		FieldDOB:         dob,
		FieldPhone:       u.Phone,
		FieldFocus:       "",
		FieldAvatarURL:   u.AvatarURL,
		FieldOTP:         "",
	})
	steps := NewController(OnboardingGraph)
	return &OnboardingFlow{
		form:     form,
		steps:    steps,
		coord:    NewCoordinator(OnboardingGraph.Name, steps, form, opts...),
		auth:     auth,
		profiles: profiles,
		opts:     o,
		base:     u,
	}
}

func (f *OnboardingFlow) Form() *Form        { return f.form }
func (f *OnboardingFlow) Steps() *Controller { return f.steps }
func (f *OnboardingFlow) State() State       { return f.steps.State() }
func (f *OnboardingFlow) Status() Status     { return f.coord.Status() }

func (f *OnboardingFlow) SetDisplayName(v string)    { f.form.Set(FieldDisplayName, v) }
func (f *OnboardingFlow) SetDateOfBirth(v time.Time) { f.form.Set(FieldDOB, v) }
func (f *OnboardingFlow) SetPhone(v string)          { f.form.Set(FieldPhone, v) }
func (f *OnboardingFlow) SetFocus(v string)          { f.form.Set(FieldFocus, v) }
func (f *OnboardingFlow) SetOTP(v string)            { f.form.Set(FieldOTP, v) }

// detailFields are validated when leaving the user-details step.
var detailFields = []string{FieldDisplayName, FieldDOB, FieldPhone, FieldFocus, FieldAvatarURL}

// Details are the values of the user-details step.
type Details struct {
	DisplayName string
	DateOfBirth time.Time
	Phone       string
	Focus       string
}

// Next validates the details. Without a phone number the profile is
// submitted straight away; with one, a confirmation code is sent to it
// (unless one already was) and the flow moves to phone-confirmation.
func (f *OnboardingFlow) Next(ctx context.Context) Result {
	return f.coord.hold(StepUserDetails, func() Result { return f.next(ctx) })
}

// NextWith sets the details and submits them. Nothing is written to the
// form when the call is rejected.
func (f *OnboardingFlow) NextWith(ctx context.Context, d Details) Result {
	return f.coord.hold(StepUserDetails, func() Result {
		f.SetDisplayName(d.DisplayName)
		f.SetDateOfBirth(d.DateOfBirth)
		f.SetPhone(d.Phone)
		f.SetFocus(d.Focus)
		return f.next(ctx)
	})
}

func (f *OnboardingFlow) next(ctx context.Context) Result {
	if errs := f.form.Validate(detailFields...); len(errs) > 0 {
		return f.coord.invalid(StepUserDetails, errs)
	}

	phone := f.form.String(FieldPhone)
	if phone == "" {
		return f.submit(ctx, StepUserDetails)
	}
	if f.alreadySent(phone) {
		if err := f.steps.Transition(StepPhoneConfirmation); err != nil {
			return f.coord.finish(Result{Status: StatusFailure, Step: StepUserDetails, Err: err, Message: genericFailure})
		}
		return f.coord.finish(Result{Status: StatusSuccess, Step: StepUserDetails})
	}
	return run(ctx, f.coord, StepUserDetails, StepPhoneConfirmation,
		func(ctx context.Context) Ack { return f.auth.SendPhoneOtp(ctx, phone) },
		func(struct{}) {
			f.markSent(phone)
			f.form.Set(FieldPhone, phone)
		},
	)
}

// VerifyPhone confirms the phone code and then saves the profile. The two
// remote calls are separate submissions; a phone that was verified before a
// failed save is not verified again.
func (f *OnboardingFlow) VerifyPhone(ctx context.Context) Result {
	return f.coord.hold(StepPhoneConfirmation, func() Result { return f.verifyPhone(ctx) })
}

// VerifyPhoneWith sets the code and verifies it, like NextWith.
func (f *OnboardingFlow) VerifyPhoneWith(ctx context.Context, otp string) Result {
	return f.coord.hold(StepPhoneConfirmation, func() Result {
		f.SetOTP(otp)
		return f.verifyPhone(ctx)
	})
}

func (f *OnboardingFlow) verifyPhone(ctx context.Context) Result {
	phone := f.form.String(FieldPhone)
	if !f.isVerified(phone) {
		if errs := f.form.Validate(FieldOTP); len(errs) > 0 {
			return f.coord.invalid(StepPhoneConfirmation, errs)
		}
		otp := f.form.String(FieldOTP)
		r := run(ctx, f.coord, StepPhoneConfirmation, StepPhoneConfirmation,
			func(ctx context.Context) Ack { return f.auth.VerifyPhoneOtp(ctx, phone, otp) },
			func(struct{}) { f.markVerified(phone) },
		)
		if !r.OK() {
			return r
		}
	}
	return f.submit(ctx, StepPhoneConfirmation)
}

// ResendPhone sends a new code to the phone being confirmed.
func (f *OnboardingFlow) ResendPhone(ctx context.Context) Result {
	phone := f.form.String(FieldPhone)
	return Submit(ctx, f.coord, StepPhoneConfirmation, StepPhoneConfirmation,
		func(ctx context.Context) Ack { return f.auth.SendPhoneOtp(ctx, phone) },
		func(struct{}) { f.markSent(phone) },
	)
}

// Back returns to user-details, keeping the entered details.
func (f *OnboardingFlow) Back() error {
	return f.steps.Move(StepUserDetails, func() {
		f.form.Set(FieldOTP, "")
		f.form.ClearErrors()
	})
}

// AttachAvatar uploads a profile picture and stores its URL in the form.
func (f *OnboardingFlow) AttachAvatar(ctx context.Context, image []byte) Result {
	userID := f.seed().ID
	return Submit(ctx, f.coord, StepUserDetails, StepUserDetails,
		func(ctx context.Context) Response[string] { return f.profiles.UploadAvatar(ctx, userID, image) },
		func(url string) { f.form.Set(FieldAvatarURL, url) },
	)
}

func (f *OnboardingFlow) RemoveAvatar() { f.form.Set(FieldAvatarURL, "") }

// Draft merges the form into the user the flow was started with, as it
// would be saved now.
func (f *OnboardingFlow) Draft() meridia.User {
	u := f.seed()
	u.Name = f.form.String(FieldDisplayName)
	u.Phone = f.form.String(FieldPhone)
	u.AvatarURL = f.form.String(FieldAvatarURL)
	if dob := f.form.Time(FieldDOB); !dob.IsZero() {
		u.DOB = &dob
	}
	if focus, ok := meridia.ParseFocus(f.form.String(FieldFocus)); ok {
		u.Focus = focus
	}
	completion := meridia.OnboardingCompletion{}
	if u.OnboardingCompletion != nil {
		completion = *u.OnboardingCompletion
	}
	now := f.opts.now()
	completion.Core = &now
	u.OnboardingCompletion = &completion
	return u
}

func (f *OnboardingFlow) submit(ctx context.Context, from Step) Result {
	draft := f.Draft()
	var saved meridia.User
	r := run(ctx, f.coord, from, StepComplete,
		func(ctx context.Context) Response[meridia.User] { return f.profiles.UpdateProfile(ctx, draft) },
		func(u meridia.User) {
			saved = u
			f.mu.Lock()
			f.base = u
			f.mu.Unlock()
			f.form.Reset()
		},
	)
	if r.OK() && f.opts.onProfile != nil {
		f.opts.onProfile(saved)
	}
	return r
}

func (f *OnboardingFlow) seed() meridia.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.base
}

func (f *OnboardingFlow) alreadySent(phone string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sentTo == phone
}

func (f *OnboardingFlow) markSent(phone string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sentTo = phone
}

func (f *OnboardingFlow) isVerified(phone string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.verified != "" && f.verified == phone
}

func (f *OnboardingFlow) markVerified(phone string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verified = phone
}
