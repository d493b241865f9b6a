package localauth

import (
	"sync"
	"time"

	meridia "github.com/yoku-app/MERIDIA"
)

type sessionCache struct {
	mu    sync.RWMutex
	items map[string]meridia.Session
}

func newSessionCache() *sessionCache {
	return &sessionCache{
		items: make(map[string]meridia.Session),
	}
}

func (c *sessionCache) warmUp(exec Executor, now time.Time) error {
	rows, err := exec.Query(sessionSelect+" WHERE s.expires_at > ?", now.Unix())
	if err != nil {
		return err
	}
	defer rows.Close()

	c.mu.Lock()
	defer c.mu.Unlock()

	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return err
		}
		c.items[sess.AccessToken] = sess
	}
	return rows.Err()
}

func (c *sessionCache) set(s meridia.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[s.AccessToken] = s
}

func (c *sessionCache) get(token string) (meridia.Session, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.items[token]
	return s, ok
}

func (c *sessionCache) delete(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, token)
}

// evict drops sessions that expired before now, or every session of
// userID when one is given.
func (c *sessionCache) evict(now time.Time, userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, v := range c.items {
		if v.Expired(now) || (userID != "" && v.UserID == userID) {
			delete(c.items, k)
		}
	}
}
