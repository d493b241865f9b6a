package localauth

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

type Config struct {
	SessionTTL time.Duration // default: 24h
	CodeTTL    time.Duration // default: 10m
	StateTTL   time.Duration // default: 10m
	// AvatarBaseURL prefixes the public URL of stored profile pictures,
	// e.g. "http://localhost:8080/avatars".
	AvatarBaseURL  string
	OAuthProviders []OAuthProvider
}

type Option func(*Store)

func WithLogger(l *zap.Logger) Option { return func(s *Store) { s.log = l } }

func WithNotifier(n Notifier) Option { return func(s *Store) { s.notifier = n } }

func WithClock(now func() time.Time) Option { return func(s *Store) { s.now = now } }

// Store is the SQLite-backed account database: users, password and social
// identities, sessions, one-time codes and avatars.
type Store struct {
	exec     Executor
	cache    *sessionCache
	config   Config
	log      *zap.Logger
	notifier Notifier
	now      func() time.Time

	mu        sync.RWMutex
	providers map[string]OAuthProvider
}

// New migrates the schema and loads the live sessions into memory.
func New(exec Executor, cfg Config, opts ...Option) (*Store, error) {
	if cfg.SessionTTL == 0 {
		cfg.SessionTTL = 24 * time.Hour
	}
	if cfg.CodeTTL == 0 {
		cfg.CodeTTL = 10 * time.Minute
	}
	if cfg.StateTTL == 0 {
		cfg.StateTTL = 10 * time.Minute
	}
	s := &Store{
		exec:      exec,
		cache:     newSessionCache(),
		config:    cfg,
		log:       zap.NewNop(),
		now:       time.Now,
		providers: make(map[string]OAuthProvider),
	}
	for _, o := range opts {
		o(s)
	}
	if s.notifier == nil {
		s.notifier = LogNotifier{Log: s.log}
	}
	if err := runMigrations(exec); err != nil {
		return nil, err
	}
	for _, p := range cfg.OAuthProviders {
		s.RegisterProvider(p)
	}
	if err := s.cache.warmUp(exec, s.now()); err != nil {
		return nil, err
	}
	return s, nil
}

// Migrate creates the schema without opening a store.
func Migrate(exec Executor) error { return runMigrations(exec) }

func (s *Store) RegisterProvider(p OAuthProvider) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.providers[p.Name()] = p
}

func (s *Store) provider(name string) OAuthProvider {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.providers[name]
}

// Providers lists the names of the registered social providers.
func (s *Store) Providers() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var names []string
	for name := range s.providers {
		names = append(names, name)
	}
	return names
}

// Purge removes expired sessions, OAuth states and codes.
func (s *Store) Purge() error {
	if err := s.PurgeExpiredSessions(); err != nil {
		return err
	}
	if err := s.PurgeExpiredOAuthStates(); err != nil {
		return err
	}
	return s.PurgeExpiredCodes()
}
