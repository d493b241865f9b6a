package server

import (
	"context"
	"errors"
	"html"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	meridia "github.com/yoku-app/MERIDIA"
)

type ctxKey string

const tokenKey ctxKey = "token"

// bearer returns the access token of the request: the Authorization header
// first, then the session cookie.
func bearer(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	if c, err := r.Cookie(SessionCookie); err == nil {
		return c.Value
	}
	return ""
}

func tokenFrom(ctx context.Context) string {
	t, _ := ctx.Value(tokenKey).(string)
	return t
}

// requireSession rejects requests without a token. Pages are redirected
// to the login page, API calls get 401.
func (s *Server) requireSession(page bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearer(r)
			if token == "" {
				if page {
					http.Redirect(w, r, "/auth/login", http.StatusSeeOther)
					return
				}
				s.writeError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), tokenKey, token)))
		})
	}
}

func (s *Server) setSessionCookie(w http.ResponseWriter, sess meridia.Session) {
	c := &http.Cookie{
		Name:     SessionCookie,
		Value:    sess.AccessToken,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
		Path:     "/",
	}
	if !sess.ExpiresAt.IsZero() {
		c.Expires = sess.ExpiresAt
	}
	http.SetCookie(w, c)
}

func (s *Server) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		HttpOnly: true,
		Secure:   s.secure,
		Path:     "/",
		MaxAge:   -1,
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid form")
		return
	}
	sess, err := s.backend.SignIn(r.Context(), r.PostForm.Get("email"), r.PostForm.Get("password"))
	if err != nil {
		s.log.Info("sign-in refused", zap.Error(err))
		s.renderPage(w, http.StatusUnauthorized, "login", "Invalid email or password")
		return
	}
	s.setSessionCookie(w, sess)
	http.Redirect(w, r, s.landing(r.Context(), sess.AccessToken), http.StatusSeeOther)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if token := bearer(r); token != "" {
		if err := s.backend.SignOut(r.Context(), token); err != nil {
			s.log.Warn("sign-out failed", zap.Error(err))
		}
	}
	s.clearSessionCookie(w)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// landing is where a freshly signed-in user goes: onboarding until the core
// profile is complete, the home page afterwards.
func (s *Server) landing(ctx context.Context, token string) string {
	u, err := s.backend.SessionUser(ctx, token)
	if err != nil {
		s.log.Warn("load session user", zap.Error(err))
		return "/"
	}
	if !u.Onboarded() {
		return "/onboarding"
	}
	return "/"
}

func (s *Server) handleSocial(w http.ResponseWriter, r *http.Request) {
	resp := s.backend.Auth(nil).AuthenticateSocial(r.Context(), chi.URLParam(r, "provider"))
	if !resp.OK {
		s.writeError(w, statusOf(resp.Error), resp.Error.Message)
		return
	}
	http.Redirect(w, r, resp.Data, http.StatusFound)
}

func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if desc := q.Get("error_description"); desc != "" || q.Get("error") != "" {
		if desc == "" {
			desc = q.Get("error")
		}
		s.callbacks.WithLabelValues("denied").Inc()
		http.Redirect(w, r, "/auth/login?error="+url.QueryEscape(desc), http.StatusSeeOther)
		return
	}
	sess, err := s.backend.CompleteSocial(r.Context(), q)
	if err != nil {
		s.callbacks.WithLabelValues("failed").Inc()
		s.log.Info("social sign-in failed", zap.Error(err))
		status := http.StatusBadGateway
		if errors.Is(err, meridia.ErrInvalidOAuthState) || errors.Is(err, meridia.ErrProviderNotFound) {
			status = http.StatusBadRequest
		}
		s.writeError(w, status, "Social sign-in failed")
		return
	}
	s.callbacks.WithLabelValues("ok").Inc()
	s.setSessionCookie(w, sess)
	http.Redirect(w, r, s.landing(r.Context(), sess.AccessToken), http.StatusSeeOther)
}

func (s *Server) handleAvatar(w http.ResponseWriter, r *http.Request) {
	contentType, data, err := s.avatars.Avatar(chi.URLParam(r, "id"))
	if err != nil {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "no-cache")
	w.Write(data)
}

func (s *Server) renderPage(w http.ResponseWriter, status int, name, notice string) {
	s.pageMu.Lock()
	p := s.pages[name]
	body := p.RenderHTML()
	s.pageMu.Unlock()
	if notice != "" {
		body = `<p role="alert">` + html.EscapeString(notice) + `</p>` + body
	}
	s.writeHTML(w, status, p.ModuleTitle(), body)
}

func (s *Server) handlePage(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.renderPage(w, http.StatusOK, name, r.URL.Query().Get("error"))
	}
}
