package server

import (
	"sync"
	"time"

	"github.com/google/uuid"

	meridia "github.com/yoku-app/MERIDIA"
	"github.com/yoku-app/MERIDIA/flow"
)

// flowEntry is one live flow. Onboarding entries belong to the token that
// created them; registration entries keep the session handed over on
// confirmation.
type flowEntry struct {
	id       string
	reg      *flow.RegistrationFlow
	onb      *flow.OnboardingFlow
	owner    string
	mu       sync.Mutex
	session  *meridia.Session
	profile  *meridia.User
	lastSeen time.Time
}

func (e *flowEntry) setSession(s meridia.Session) {
	e.mu.Lock()
	e.session = &s
	e.mu.Unlock()
}

func (e *flowEntry) handedSession() *meridia.Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session
}

func (e *flowEntry) setProfile(u meridia.User) {
	e.mu.Lock()
	e.profile = &u
	e.mu.Unlock()
}

func (e *flowEntry) savedProfile() *meridia.User {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.profile
}

// registry keeps flows in memory. Entries idle for longer than ttl are
// dropped by purge.
type registry struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]*flowEntry
}

func newRegistry(ttl time.Duration, now func() time.Time) *registry {
	return &registry{ttl: ttl, now: now, entries: map[string]*flowEntry{}}
}

// add builds an entry with build and publishes it once built. build gets
// the entry so that flow hooks can refer to it.
func (r *registry) add(owner string, build func(e *flowEntry)) *flowEntry {
	e := &flowEntry{id: uuid.NewString(), owner: owner}
	build(e)
	r.mu.Lock()
	e.lastSeen = r.now()
	r.entries[e.id] = e
	r.mu.Unlock()
	return e
}

func (r *registry) get(id string) (*flowEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return nil, false
	}
	now := r.now()
	if now.Sub(e.lastSeen) > r.ttl {
		delete(r.entries, id)
		return nil, false
	}
	e.lastSeen = now
	return e, true
}

func (r *registry) remove(id string) {
	r.mu.Lock()
	delete(r.entries, id)
	r.mu.Unlock()
}

func (r *registry) purge() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	n := 0
	for id, e := range r.entries {
		if now.Sub(e.lastSeen) > r.ttl {
			delete(r.entries, id)
			n++
		}
	}
	return n
}

func (r *registry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
