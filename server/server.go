// Package server exposes the registration and onboarding flows over HTTP,
// together with sign-in, social callbacks and server-rendered form pages.
package server

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/yoku-app/MERIDIA/flow"
	"github.com/yoku-app/MERIDIA/localauth"
)

// SessionCookie holds the access token of browser sessions.
const SessionCookie = "yoku_session"

// publicRoutes are reachable without a session, together with "/" itself.
var publicRoutes = []string{
	"/auth",
	"/api/auth/token/callback",
	"/docs",
	"/contact",
	"/about",
	"/pricing",
	"/features",
	"/resources",
}

// IsPublicPath reports whether path may be visited without signing in.
func IsPublicPath(path string) bool {
	if path == "/" {
		return true
	}
	for _, p := range publicRoutes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

type Server struct {
	backend   Backend
	flows     *registry
	log       *zap.Logger
	now       func() time.Time
	ttl       time.Duration
	providers []string
	secure    bool
	avatars   *localauth.Store

	pageMu sync.Mutex
	pages  map[string]page

	registry    *prometheus.Registry
	submissions *prometheus.CounterVec
	callbacks   *prometheus.CounterVec

	router chi.Router
}

type Option func(*Server)

func WithLogger(l *zap.Logger) Option { return func(s *Server) { s.log = l } }

func WithClock(now func() time.Time) Option { return func(s *Server) { s.now = now } }

// WithFlowTTL sets how long an untouched flow is kept. Default: 30m.
func WithFlowTTL(d time.Duration) Option { return func(s *Server) { s.ttl = d } }

// WithProviders lists the social providers offered on the login page.
func WithProviders(names ...string) Option { return func(s *Server) { s.providers = names } }

// WithSecureCookies marks the session cookie Secure, for HTTPS origins.
func WithSecureCookies(on bool) Option { return func(s *Server) { s.secure = on } }

func New(b Backend, opts ...Option) *Server {
	s := &Server{
		backend: b,
		log:     zap.NewNop(),
		now:     time.Now,
		ttl:     30 * time.Minute,
	}
	for _, o := range opts {
		o(s)
	}
	if l, ok := b.(Local); ok {
		s.avatars = l.Store
	}
	s.flows = newRegistry(s.ttl, s.now)
	s.pages = map[string]page{}
	for _, p := range newPages(s.providers) {
		s.pages[p.HandlerName()] = p
	}
	s.initMetrics()
	s.router = s.routes()
	return s
}

func (s *Server) initMetrics() {
	s.registry = prometheus.NewRegistry()
	s.submissions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "yoku",
		Subsystem: "flow",
		Name:      "submissions_total",
		Help:      "Finished flow submissions by flow and status.",
	}, []string{"flow", "status"})
	s.callbacks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "yoku",
		Subsystem: "auth",
		Name:      "social_callbacks_total",
		Help:      "Social sign-in callbacks by outcome.",
	}, []string{"outcome"})
	active := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "yoku",
		Subsystem: "flow",
		Name:      "active",
		Help:      "Flows held in memory.",
	}, func() float64 { return float64(s.flows.len()) })
	s.registry.MustRegister(s.submissions, s.callbacks, active)
}

func (s *Server) observe(name string, r flow.Result) {
	s.submissions.WithLabelValues(name, r.Status.String()).Inc()
}

func (s *Server) flowOptions(extra ...flow.Option) []flow.Option {
	return append([]flow.Option{
		flow.WithLogger(s.log),
		flow.WithClock(s.now),
		flow.WithHook(s.observe),
	}, extra...)
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/", s.handleIndex)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.Write([]byte("ok")) })
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{ErrorHandling: promhttp.ContinueOnError}))

	r.Get("/auth/login", s.handlePage("login"))
	r.Post("/auth/login", s.handleLogin)
	r.Post("/auth/logout", s.handleLogout)
	r.Get("/auth/register", s.handlePage("register"))
	r.Get("/auth/social/{provider}", s.handleSocial)
	r.Get("/api/auth/token/callback", s.handleCallback)

	r.With(s.requireSession(true)).Get("/onboarding", s.handlePage("profile"))

	if s.avatars != nil {
		r.Get("/avatars/{id}", s.handleAvatar)
	}

	r.Route("/flows/register", func(r chi.Router) {
		r.Post("/", s.createRegistration)
		r.Route("/{id}", func(r chi.Router) {
			r.Use(s.loadFlow)
			r.Get("/", s.showFlow)
			r.Post("/credentials", s.registerCredentials)
			r.Post("/confirm", s.confirmRegistration)
			r.Post("/resend", s.resendRegistration)
			r.Post("/cancel", s.cancelRegistration)
			r.Post("/social/{provider}", s.socialRegistration)
			r.Delete("/", s.deleteFlow)
		})
	})
	r.Route("/flows/onboard", func(r chi.Router) {
		r.Use(s.requireSession(false))
		r.Post("/", s.createOnboarding)
		r.Route("/{id}", func(r chi.Router) {
			r.Use(s.loadFlow)
			r.Get("/", s.showFlow)
			r.Post("/details", s.submitDetails)
			r.Post("/verify", s.verifyPhone)
			r.Post("/resend", s.resendPhone)
			r.Post("/back", s.backOnboarding)
			r.Put("/avatar", s.attachAvatar)
			r.Delete("/avatar", s.removeAvatar)
			r.Delete("/", s.deleteFlow)
		})
	})
	return r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.router.ServeHTTP(w, r) }

// Purge drops idle flows and returns how many were removed.
func (s *Server) Purge() int { return s.flows.purge() }

// PurgeEvery purges idle flows until ctx is done.
func (s *Server) PurgeEvery(ctx context.Context, every time.Duration) error {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if n := s.Purge(); n > 0 {
				s.log.Debug("purged idle flows", zap.Int("count", n))
			}
		}
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := s.now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("took", s.now().Sub(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.writeHTML(w, http.StatusOK, "Yoku", `<a href="/auth/login">Login</a> <a href="/auth/register">Register</a>`)
}
