package localauth

import (
	"database/sql"
	"errors"

	"github.com/tinywasm/unixid"

	meridia "github.com/yoku-app/MERIDIA"
)

// Identity links a user to a way of signing in. For the "local" provider
// ProviderID holds the bcrypt hash of the password.
type Identity struct {
	ID         string `json:"id"`
	UserID     string `json:"user_id"`
	Provider   string `json:"provider"`
	ProviderID string `json:"-"`
	Email      string `json:"email,omitempty"`
	CreatedAt  int64  `json:"created_at"`
}

const identitySelect = "SELECT id, user_id, provider, provider_id, COALESCE(email, ''), created_at FROM user_identities"

func scanIdentity(sc Scanner) (Identity, error) {
	var i Identity
	if err := sc.Scan(&i.ID, &i.UserID, &i.Provider, &i.ProviderID, &i.Email, &i.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Identity{}, meridia.ErrNotFound
		}
		return Identity{}, err
	}
	return i, nil
}

func (s *Store) CreateIdentity(userID, provider, providerID, email string) error {
	u, err := unixid.NewUnixID()
	if err != nil {
		return err
	}

	return s.exec.Exec(
		`INSERT INTO user_identities (id, user_id, provider, provider_id, email, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		u.GetNewID(), userID, provider, providerID, nullableStr(email), s.now().Unix(),
	)
}

func (s *Store) GetIdentityByProvider(provider, providerID string) (Identity, error) {
	return scanIdentity(s.exec.QueryRow(identitySelect+" WHERE provider = ? AND provider_id = ?", provider, providerID))
}

func (s *Store) identityOf(userID, provider string) (Identity, error) {
	return scanIdentity(s.exec.QueryRow(identitySelect+" WHERE user_id = ? AND provider = ?", userID, provider))
}

func (s *Store) GetUserIdentities(userID string) ([]Identity, error) {
	rows, err := s.exec.Query(identitySelect+" WHERE user_id = ?", userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var identities []Identity
	for rows.Next() {
		i, err := scanIdentity(rows)
		if err != nil {
			return nil, err
		}
		identities = append(identities, i)
	}
	return identities, rows.Err()
}

func (s *Store) upsertIdentity(userID, provider, providerID, email string) error {
	_, err := s.identityOf(userID, provider)
	switch {
	case err == nil:
		return s.exec.Exec("UPDATE user_identities SET provider_id = ?, email = ? WHERE user_id = ? AND provider = ?",
			providerID, nullableStr(email), userID, provider)
	case errors.Is(err, meridia.ErrNotFound):
		return s.CreateIdentity(userID, provider, providerID, email)
	default:
		return err
	}
}

// UnlinkIdentity removes a sign-in method. The last one cannot be removed.
func (s *Store) UnlinkIdentity(userID, provider string) error {
	identities, err := s.GetUserIdentities(userID)
	if err != nil {
		return err
	}

	found := false
	for _, id := range identities {
		if id.Provider == provider {
			found = true
			break
		}
	}
	if !found {
		return meridia.ErrNotFound
	}

	if len(identities) <= 1 {
		return meridia.ErrCannotUnlink
	}

	return s.exec.Exec("DELETE FROM user_identities WHERE user_id = ? AND provider = ?", userID, provider)
}
