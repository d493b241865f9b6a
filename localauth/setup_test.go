package localauth

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/oauth2"
)

func TestMain(m *testing.M) {
	PasswordHashCost = bcrypt.MinCost
	os.Exit(m.Run())
}

// inbox captures delivered codes by target.
type inbox struct {
	mu    sync.Mutex
	codes map[string]string
	count int
}

func (b *inbox) Deliver(_ context.Context, purpose, target, code string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.codes == nil {
		b.codes = map[string]string{}
	}
	b.codes[purpose+":"+target] = code
	b.count++
	return nil
}

func (b *inbox) code(purpose, target string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.codes[purpose+":"+target]
}

func (b *inbox) delivered() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fixture struct {
	store *Store
	inbox *inbox
	clock *clock
}

func newFixture(t *testing.T, cfg Config) fixture {
	t.Helper()
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
	})
	f := fixture{
		inbox: &inbox{},
		clock: &clock{t: time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)},
	}
	f.store, err = New(db, cfg, WithNotifier(f.inbox), WithClock(f.clock.now))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return f
}

// fakeProvider is an OAuthProvider that skips the network.
type fakeProvider struct {
	name string
	info OAuthUserInfo
}

func (p fakeProvider) Name() string { return p.name }

func (p fakeProvider) AuthCodeURL(state string) string {
	return "https://idp.example.com/authorize?state=" + state
}

func (p fakeProvider) ExchangeCode(_ context.Context, code string) (*oauth2.Token, error) {
	return &oauth2.Token{AccessToken: "idp-" + code}, nil
}

func (p fakeProvider) GetUserInfo(context.Context, *oauth2.Token) (OAuthUserInfo, error) {
	return p.info, nil
}
