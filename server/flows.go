package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	meridia "github.com/yoku-app/MERIDIA"
	"github.com/yoku-app/MERIDIA/api"
	"github.com/yoku-app/MERIDIA/flow"
)

const maxAvatarBytes = 5 << 20

const entryKey ctxKey = "flow"

type resultView struct {
	flow.Result
	Kind string `json:"kind,omitempty"`
}

type flowView struct {
	ID      string            `json:"id"`
	Flow    string            `json:"flow"`
	State   flow.State        `json:"state"`
	Status  flow.Status       `json:"status"`
	Email   string            `json:"email,omitempty"`
	Errors  map[string]string `json:"errors,omitempty"`
	Banner  string            `json:"banner,omitempty"`
	Result  *resultView       `json:"result,omitempty"`
	Session *meridia.Session  `json:"session,omitempty"`
	Draft   *meridia.User     `json:"draft,omitempty"`
	Profile *meridia.User     `json:"profile,omitempty"`
	URL     string            `json:"url,omitempty"`
}

func viewOf(e *flowEntry, r *flow.Result) flowView {
	v := flowView{ID: e.id}
	if r != nil {
		rv := &resultView{Result: *r}
		if r.Status == flow.StatusFailure {
			rv.Kind = r.Kind.String()
		}
		v.Result = rv
	}
	switch {
	case e.reg != nil:
		v.Flow = flow.RegistrationGraph.Name
		v.State, v.Status = e.reg.State(), e.reg.Status()
		v.Email = e.reg.Email()
		v.Errors, v.Banner = e.reg.Form().Errors(), e.reg.Form().Banner()
		v.Session = e.handedSession()
	case e.onb != nil:
		v.Flow = flow.OnboardingGraph.Name
		v.State, v.Status = e.onb.State(), e.onb.Status()
		v.Errors, v.Banner = e.onb.Form().Errors(), e.onb.Form().Banner()
		d := e.onb.Draft()
		v.Draft = &d
		v.Profile = e.savedProfile()
	}
	if len(v.Errors) == 0 {
		v.Errors = nil
	}
	return v
}

// statusOf maps a remote failure to an HTTP status.
func statusOf(e *flow.ErrorInfo) int {
	if e == nil {
		return http.StatusBadGateway
	}
	switch e.Kind {
	case flow.KindValidation:
		return http.StatusUnprocessableEntity
	case flow.KindConflict:
		return http.StatusConflict
	case flow.KindAuth:
		if e.Status >= 400 && e.Status < 500 {
			return e.Status
		}
		return http.StatusBadRequest
	}
	return http.StatusBadGateway
}

func resultStatus(r flow.Result) int {
	switch r.Status {
	case flow.StatusSuccess:
		return http.StatusOK
	case flow.StatusRejected, flow.StatusStale:
		return http.StatusConflict
	}
	if r.Kind == flow.KindValidation {
		return http.StatusUnprocessableEntity
	}
	var info *flow.ErrorInfo
	if errors.As(r.Err, &info) {
		return statusOf(info)
	}
	return statusOf(&flow.ErrorInfo{Kind: r.Kind})
}

func (s *Server) respond(w http.ResponseWriter, e *flowEntry, r flow.Result) {
	s.writeJSON(w, resultStatus(r), viewOf(e, &r))
}

// loadFlow resolves {id}. Onboarding flows are only visible to the session
// that started them.
func (s *Server) loadFlow(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		e, ok := s.flows.get(chi.URLParam(r, "id"))
		if !ok || (e.owner != "" && e.owner != tokenFrom(r.Context())) {
			s.writeError(w, http.StatusNotFound, "Flow not found")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), entryKey, e)))
	})
}

func entryFrom(r *http.Request) *flowEntry {
	e, _ := r.Context().Value(entryKey).(*flowEntry)
	return e
}

func (s *Server) registration(w http.ResponseWriter, r *http.Request) (*flowEntry, bool) {
	e := entryFrom(r)
	if e == nil || e.reg == nil {
		s.writeError(w, http.StatusNotFound, "Flow not found")
		return nil, false
	}
	return e, true
}

func (s *Server) onboarding(w http.ResponseWriter, r *http.Request) (*flowEntry, bool) {
	e := entryFrom(r)
	if e == nil || e.onb == nil {
		s.writeError(w, http.StatusNotFound, "Flow not found")
		return nil, false
	}
	return e, true
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(v); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

func (s *Server) showFlow(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, viewOf(entryFrom(r), nil))
}

func (s *Server) deleteFlow(w http.ResponseWriter, r *http.Request) {
	s.flows.remove(entryFrom(r).id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) createRegistration(w http.ResponseWriter, r *http.Request) {
	e := s.flows.add("", func(e *flowEntry) {
		e.reg = flow.NewRegistration(s.backend.Auth(nil), s.flowOptions(flow.WithSessionHook(e.setSession))...)
	})
	s.writeJSON(w, http.StatusCreated, viewOf(e, nil))
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) registerCredentials(w http.ResponseWriter, r *http.Request) {
	e, ok := s.registration(w, r)
	if !ok {
		return
	}
	var req credentialsRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.respond(w, e, e.reg.RegisterWith(r.Context(), flow.Credentials{Email: req.Email, Password: req.Password}))
}

type otpRequest struct {
	OTP string `json:"otp"`
}

func (s *Server) confirmRegistration(w http.ResponseWriter, r *http.Request) {
	e, ok := s.registration(w, r)
	if !ok {
		return
	}
	var req otpRequest
	if !s.decode(w, r, &req) {
		return
	}
	res := e.reg.ConfirmWith(r.Context(), req.OTP)
	if res.OK() {
		if sess := e.handedSession(); sess != nil {
			s.setSessionCookie(w, *sess)
		}
	}
	s.respond(w, e, res)
}

func (s *Server) resendRegistration(w http.ResponseWriter, r *http.Request) {
	if e, ok := s.registration(w, r); ok {
		s.respond(w, e, e.reg.Resend(r.Context()))
	}
}

func (s *Server) cancelRegistration(w http.ResponseWriter, r *http.Request) {
	e, ok := s.registration(w, r)
	if !ok {
		return
	}
	if err := e.reg.Cancel(); err != nil {
		s.writeError(w, http.StatusConflict, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, viewOf(e, nil))
}

func (s *Server) socialRegistration(w http.ResponseWriter, r *http.Request) {
	e, ok := s.registration(w, r)
	if !ok {
		return
	}
	authURL, res := e.reg.Social(r.Context(), chi.URLParam(r, "provider"))
	v := viewOf(e, &res)
	v.URL = authURL
	s.writeJSON(w, resultStatus(res), v)
}

func (s *Server) createOnboarding(w http.ResponseWriter, r *http.Request) {
	token := tokenFrom(r.Context())
	u, err := s.backend.SessionUser(r.Context(), token)
	if err != nil {
		if unauthorized(err) {
			s.writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		s.log.Warn("load session user", zap.Error(err))
		s.writeError(w, http.StatusBadGateway, "Failed to load user")
		return
	}
	tokens := meridia.StaticToken(token)
	e := s.flows.add(token, func(e *flowEntry) {
		e.onb = flow.NewOnboarding(u, s.backend.Auth(tokens), s.backend.Profiles(tokens),
			s.flowOptions(flow.WithProfileHook(e.setProfile))...)
	})
	s.writeJSON(w, http.StatusCreated, viewOf(e, nil))
}

func unauthorized(err error) bool {
	var httpErr *api.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Status == http.StatusUnauthorized
	}
	return errors.Is(err, meridia.ErrUnauthorized) || errors.Is(err, meridia.ErrSessionExpired) ||
		errors.Is(err, meridia.ErrNotFound)
}

type detailsRequest struct {
	DisplayName string `json:"displayName"`
	DOB         string `json:"dob"` // YYYY-MM-DD
	Phone       string `json:"phone"`
	Focus       string `json:"focus"`
}

func (s *Server) submitDetails(w http.ResponseWriter, r *http.Request) {
	e, ok := s.onboarding(w, r)
	if !ok {
		return
	}
	var req detailsRequest
	if !s.decode(w, r, &req) {
		return
	}
	dob, _ := time.Parse(time.DateOnly, req.DOB)
	s.respond(w, e, e.onb.NextWith(r.Context(), flow.Details{
		DisplayName: req.DisplayName,
		DateOfBirth: dob,
		Phone:       req.Phone,
		Focus:       req.Focus,
	}))
}

func (s *Server) verifyPhone(w http.ResponseWriter, r *http.Request) {
	e, ok := s.onboarding(w, r)
	if !ok {
		return
	}
	var req otpRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.respond(w, e, e.onb.VerifyPhoneWith(r.Context(), req.OTP))
}

func (s *Server) resendPhone(w http.ResponseWriter, r *http.Request) {
	if e, ok := s.onboarding(w, r); ok {
		s.respond(w, e, e.onb.ResendPhone(r.Context()))
	}
}

func (s *Server) backOnboarding(w http.ResponseWriter, r *http.Request) {
	e, ok := s.onboarding(w, r)
	if !ok {
		return
	}
	if err := e.onb.Back(); err != nil {
		s.writeError(w, http.StatusConflict, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, viewOf(e, nil))
}

func (s *Server) attachAvatar(w http.ResponseWriter, r *http.Request) {
	e, ok := s.onboarding(w, r)
	if !ok {
		return
	}
	image, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxAvatarBytes))
	if err != nil {
		s.writeError(w, http.StatusRequestEntityTooLarge, "Image too large")
		return
	}
	if len(image) == 0 {
		s.writeError(w, http.StatusBadRequest, "Image required")
		return
	}
	s.respond(w, e, e.onb.AttachAvatar(r.Context(), image))
}

func (s *Server) removeAvatar(w http.ResponseWriter, r *http.Request) {
	if e, ok := s.onboarding(w, r); ok {
		e.onb.RemoveAvatar()
		s.writeJSON(w, http.StatusOK, viewOf(e, nil))
	}
}
