package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/yoku-app/MERIDIA/flow"
	"github.com/yoku-app/MERIDIA/localauth"
)

func TestIsPublicPath(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"/", true},
		{"/auth/login", true},
		{"/auth/social/google", true},
		{"/api/auth/token/callback", true},
		{"/docs/getting-started", true},
		{"/pricing", true},
		{"/onboarding", false},
		{"/dashboard", false},
		{"/api/auth", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsPublicPath(tt.path), tt.path)
	}
}

func TestPages(t *testing.T) {
	h := newHarness(t)

	for _, path := range []string{"/auth/login", "/auth/register"} {
		w := h.call(t, http.MethodGet, path, "", nil, nil)
		assert.Equal(t, http.StatusOK, w.Code, path)
		assert.Contains(t, w.Body.String(), "<form", path)
	}
	w := h.call(t, http.MethodGet, "/auth/login", "", nil, nil)
	assert.Contains(t, w.Body.String(), `href="/auth/social/idp"`)

	w = h.call(t, http.MethodGet, "/onboarding", "", nil, nil)
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/auth/login", w.Header().Get("Location"))

	token := h.registered(t, "a@b.com")
	req := httptest.NewRequest(http.MethodGet, "/onboarding", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: token})
	rec := httptest.NewRecorder()
	h.srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<form")
}

func TestRegistrationOverHTTP(t *testing.T) {
	h := newHarness(t)

	var v flowView
	w := h.call(t, http.MethodPost, "/flows/register", "", nil, &v)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, flow.State{Step: flow.StepCredentials, Progress: 10}, v.State)
	assert.Equal(t, "registration", v.Flow)
	base := "/flows/register/" + v.ID

	t.Run("weak password", func(t *testing.T) {
		var v flowView
		w := h.call(t, http.MethodPost, base+"/credentials", "", credentialsRequest{Email: "a@b.com", Password: "abcdefgh"}, &v)
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.Equal(t, "Password must contain at least one uppercase letter", v.Errors["password"])
		assert.Equal(t, "validation", v.Result.Kind)
		assert.Equal(t, flow.StepCredentials, v.State.Step)
	})

	t.Run("confirm before credentials", func(t *testing.T) {
		var v flowView
		w := h.call(t, http.MethodPost, base+"/confirm", "", otpRequest{OTP: "123456"}, &v)
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, flow.StatusRejected, v.Result.Status)
	})

	var sent flowView
	w = h.call(t, http.MethodPost, base+"/credentials", "", credentialsRequest{Email: "a@b.com", Password: "Abcdef1!"}, &sent)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, flow.State{Step: flow.StepConfirmation, Progress: 60}, sent.State)
	assert.Equal(t, "a@b.com", sent.Email)
	assert.Empty(t, sent.Errors)

	code := h.inbox.code(localauth.PurposeSignup, "a@b.com")
	require.Len(t, code, 6)

	t.Run("wrong code stays on confirmation", func(t *testing.T) {
		wrong := "000000"
		if code == wrong {
			wrong = "111111"
		}
		var v flowView
		w := h.call(t, http.MethodPost, base+"/confirm", "", otpRequest{OTP: wrong}, &v)
		assert.NotEqual(t, http.StatusOK, w.Code)
		assert.Equal(t, flow.StepConfirmation, v.State.Step)
		assert.NotEmpty(t, v.Errors["otp"]+v.Banner)
	})

	var done flowView
	w = h.call(t, http.MethodPost, base+"/confirm", "", otpRequest{OTP: code}, &done)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, flow.State{Step: flow.StepComplete, Progress: 100}, done.State)
	require.NotNil(t, done.Session)
	assert.NotEmpty(t, done.Session.AccessToken)

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, SessionCookie, cookies[0].Name)
	assert.Equal(t, done.Session.AccessToken, cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)

	w = h.call(t, http.MethodPost, base+"/cancel", "", nil, nil)
	assert.Equal(t, http.StatusConflict, w.Code, "a completed registration cannot be cancelled")

	m := h.call(t, http.MethodGet, "/metrics", "", nil, nil)
	assert.Contains(t, m.Body.String(), `yoku_flow_submissions_total{flow="registration",status="success"} 2`)
	assert.Contains(t, m.Body.String(), `yoku_flow_submissions_total{flow="registration",status="failure"} 2`)
	assert.Contains(t, m.Body.String(), "yoku_flow_active 1")
}

func TestRegistrationCancelAndResend(t *testing.T) {
	h := newHarness(t)
	var v flowView
	h.call(t, http.MethodPost, "/flows/register", "", nil, &v)
	base := "/flows/register/" + v.ID
	h.call(t, http.MethodPost, base+"/credentials", "", credentialsRequest{Email: "c@b.com", Password: "Abcdef1!"}, nil)

	w := h.call(t, http.MethodPost, base+"/resend", "", nil, &v)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, flow.StepConfirmation, v.State.Step)

	for i := 0; i < 2; i++ {
		w = h.call(t, http.MethodPost, base+"/cancel", "", nil, &v)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, flow.State{Step: flow.StepCredentials, Progress: 10}, v.State)
		assert.Equal(t, "c@b.com", v.Email)
	}

	w = h.call(t, http.MethodDelete, base, "", nil, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = h.call(t, http.MethodGet, base, "", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestOnboardingOverHTTP(t *testing.T) {
	h := newHarness(t)

	w := h.call(t, http.MethodPost, "/flows/onboard", "", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = h.call(t, http.MethodPost, "/flows/onboard", "stale-token", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	token := h.registered(t, "a@b.com")
	var v flowView
	w = h.call(t, http.MethodPost, "/flows/onboard", token, nil, &v)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, flow.State{Step: flow.StepUserDetails, Progress: 10}, v.State)
	require.NotNil(t, v.Draft)
	assert.Equal(t, "a@b.com", v.Draft.Email)
	base := "/flows/onboard/" + v.ID

	other := h.registered(t, "other@b.com")
	w = h.call(t, http.MethodGet, base, other, nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code, "flows are private to their session")

	png := append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 32)...)
	req := httptest.NewRequest(http.MethodPut, base+"/avatar", strings.NewReader(string(png)))
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	w = h.call(t, http.MethodGet, base, token, nil, &v)
	require.Equal(t, http.StatusOK, w.Code)
	userID := v.Draft.ID
	assert.Equal(t, "http://example.com/avatars/"+userID, v.Draft.AvatarURL)

	w = h.call(t, http.MethodGet, "/avatars/"+userID, "", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))

	details := detailsRequest{DisplayName: "Jane Doe", DOB: "1994-02-03", Phone: "+447911123456", Focus: "creator"}
	w = h.call(t, http.MethodPost, base+"/details", token, details, &v)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, flow.State{Step: flow.StepPhoneConfirmation, Progress: 60}, v.State)

	code := h.inbox.code(localauth.PurposePhone, "+447911123456")
	require.Len(t, code, 6)

	w = h.call(t, http.MethodPost, base+"/verify", token, otpRequest{OTP: code}, &v)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, flow.StepComplete, v.State.Step)
	require.NotNil(t, v.Profile)
	assert.Equal(t, "Jane Doe", v.Profile.Name)
	assert.True(t, v.Profile.Onboarded())

	saved, err := h.store.GetUser(userID)
	require.NoError(t, err)
	assert.Equal(t, "+447911123456", saved.Phone)
	assert.True(t, saved.Onboarded())

	w = h.call(t, http.MethodPost, base+"/back", token, nil, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestOnboardingValidation(t *testing.T) {
	h := newHarness(t)
	token := h.registered(t, "a@b.com")
	var v flowView
	h.call(t, http.MethodPost, "/flows/onboard", token, nil, &v)
	base := "/flows/onboard/" + v.ID

	w := h.call(t, http.MethodPost, base+"/details", token, detailsRequest{DisplayName: "Al", DOB: "not a date", Focus: "creator"}, &v)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "Display Name is too short", v.Errors["displayName"])
	assert.Equal(t, "Date of Birth is required", v.Errors["dob"])
	assert.Equal(t, flow.StepUserDetails, v.State.Step)

	w = h.call(t, http.MethodPost, base+"/details", token, detailsRequest{DisplayName: "Alan", DOB: "1990-01-01", Focus: "respondent"}, &v)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, flow.StepComplete, v.State.Step, "no phone skips confirmation")

	req := httptest.NewRequest(http.MethodPost, base+"/details", strings.NewReader("{"))
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFlowsExpire(t *testing.T) {
	clock := &manualClock{t: time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)}
	h := newHarness(t, WithClock(clock.now), WithFlowTTL(time.Minute))

	var a, b flowView
	h.call(t, http.MethodPost, "/flows/register", "", nil, &a)
	clock.advance(50 * time.Second)
	h.call(t, http.MethodPost, "/flows/register", "", nil, &b)
	clock.advance(50 * time.Second)

	w := h.call(t, http.MethodGet, "/flows/register/"+a.ID, "", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = h.call(t, http.MethodGet, "/flows/register/"+b.ID, "", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code, "reading a flow keeps it alive")

	clock.advance(2 * time.Minute)
	assert.Equal(t, 1, h.srv.Purge())
	assert.Zero(t, h.srv.Purge())
}

func TestLoginAndLogout(t *testing.T) {
	h := newHarness(t)
	h.registered(t, "a@b.com")

	post := func(form url.Values) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		w := httptest.NewRecorder()
		h.srv.ServeHTTP(w, req)
		return w
	}

	w := post(url.Values{"email": {"a@b.com"}, "password": {"nope"}})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "Invalid email or password")

	w = post(url.Values{"email": {"a@b.com"}, "password": {"Abcdef1!"}})
	require.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/onboarding", w.Header().Get("Location"), "not onboarded yet")
	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	token := cookies[0].Value

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: token})
	rec := httptest.NewRecorder()
	h.srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, -1, rec.Result().Cookies()[0].MaxAge)

	_, err := h.store.GetSession(token)
	assert.Error(t, err)
}

func TestSocialSignIn(t *testing.T) {
	h := newHarness(t)

	w := h.call(t, http.MethodGet, "/auth/social/idp", "", nil, nil)
	require.Equal(t, http.StatusFound, w.Code)
	loc, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "idp.example.com", loc.Host)
	state := loc.Query().Get("state")
	require.NotEmpty(t, state)

	callback := "/api/auth/token/callback?provider=idp&code=abc&state=" + url.QueryEscape(state)
	w = h.call(t, http.MethodGet, callback, "", nil, nil)
	require.Equal(t, http.StatusSeeOther, w.Code, w.Body.String())
	assert.Equal(t, "/onboarding", w.Header().Get("Location"))
	require.Len(t, w.Result().Cookies(), 1)

	u, err := h.store.GetUserByEmail("social@b.com")
	require.NoError(t, err)
	assert.Equal(t, "Sam", u.Name)

	w = h.call(t, http.MethodGet, callback, "", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code, "states are single use")

	w = h.call(t, http.MethodGet, "/api/auth/token/callback?error=access_denied", "", nil, nil)
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/auth/login?error=access_denied", w.Header().Get("Location"))

	w = h.call(t, http.MethodGet, "/auth/social/myspace", "", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	m := h.call(t, http.MethodGet, "/metrics", "", nil, nil)
	assert.Contains(t, m.Body.String(), `yoku_auth_social_callbacks_total{outcome="ok"} 1`)
	assert.Contains(t, m.Body.String(), `yoku_auth_social_callbacks_total{outcome="denied"} 1`)
}

func TestSocialFromRegistrationFlow(t *testing.T) {
	h := newHarness(t)
	var v flowView
	h.call(t, http.MethodPost, "/flows/register", "", nil, &v)

	w := h.call(t, http.MethodPost, "/flows/register/"+v.ID+"/social/idp", "", nil, &v)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, strings.HasPrefix(v.URL, "https://idp.example.com/authorize?state="))
	assert.Equal(t, flow.StepCredentials, v.State.Step)
}

func TestHealthz(t *testing.T) {
	h := newHarness(t)
	w := h.call(t, http.MethodGet, "/healthz", "", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())
}

func TestPurgeEveryStopsWithContext(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener"))
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.srv.PurgeEvery(ctx, time.Millisecond) }()
	time.Sleep(5 * time.Millisecond)
	cancel()
	assert.NoError(t, <-done)
}
