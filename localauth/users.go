package localauth

import (
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/tinywasm/unixid"

	meridia "github.com/yoku-app/MERIDIA"
)

const (
	statusPending   = "pending"
	statusActive    = "active"
	statusSuspended = "suspended"
)

// account is a user row together with its lifecycle status.
type account struct {
	meridia.User
	Status string
}

const userSelect = `SELECT id, COALESCE(email, ''), name, COALESCE(phone, ''), dob, COALESCE(focus, ''),
	COALESCE(avatar_url, ''), status, core_at, respondent_at, creator_at, created_at, updated_at FROM users`

// nullableStr converts "" to nil so SQLite stores NULL instead of an empty string.
func nullableStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableTime(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return t.Unix()
}

func fromUnix(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := time.Unix(n.Int64, 0).UTC()
	return &t
}

func scanUser(sc Scanner) (account, error) {
	var a account
	var focus string
	var dob, core, respondent, creator, created, updated sql.NullInt64
	if err := sc.Scan(&a.ID, &a.Email, &a.Name, &a.Phone, &dob, &focus, &a.AvatarURL, &a.Status,
		&core, &respondent, &creator, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return account{}, meridia.ErrNotFound
		}
		return account{}, err
	}
	a.Focus = meridia.Focus(focus)
	a.DOB = fromUnix(dob)
	a.CreatedAt = fromUnix(created)
	a.UpdatedAt = fromUnix(updated)
	if core.Valid || respondent.Valid || creator.Valid {
		a.OnboardingCompletion = &meridia.OnboardingCompletion{
			Core:       fromUnix(core),
			Respondent: fromUnix(respondent),
			Creator:    fromUnix(creator),
		}
	}
	return a, nil
}

func (s *Store) createUser(email, name, status string) (account, error) {
	u, err := unixid.NewUnixID()
	if err != nil {
		return account{}, err
	}

	id := u.GetNewID()
	email = strings.ToLower(strings.TrimSpace(email))
	now := s.now().UTC().Truncate(time.Second)

	if err := s.exec.Exec(
		`INSERT INTO users (id, email, name, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		id, nullableStr(email), name, status, now.Unix(), now.Unix(),
	); err != nil {
		if isUniqueViolation(err) {
			return account{}, meridia.ErrEmailTaken
		}
		return account{}, err
	}
	return account{
		User:   meridia.User{ID: id, Email: email, Name: name, CreatedAt: &now, UpdatedAt: &now},
		Status: status,
	}, nil
}

func (s *Store) accountByID(id string) (account, error) {
	return scanUser(s.exec.QueryRow(userSelect+" WHERE id = ?", id))
}

func (s *Store) accountByEmail(email string) (account, error) {
	return scanUser(s.exec.QueryRow(userSelect+" WHERE email = ?", strings.ToLower(email)))
}

func (s *Store) GetUser(id string) (meridia.User, error) {
	a, err := s.accountByID(id)
	return a.User, err
}

func (s *Store) GetUserByEmail(email string) (meridia.User, error) {
	a, err := s.accountByEmail(email)
	return a.User, err
}

// UpdateProfile saves the editable profile fields of u and returns the
// stored user.
func (s *Store) UpdateProfile(u meridia.User) (meridia.User, error) {
	if _, err := s.accountByID(u.ID); err != nil {
		return meridia.User{}, err
	}
	var oc meridia.OnboardingCompletion
	if u.OnboardingCompletion != nil {
		oc = *u.OnboardingCompletion
	}
	if err := s.exec.Exec(
		`UPDATE users SET name = ?, phone = ?, dob = ?, focus = ?, avatar_url = ?,
		core_at = ?, respondent_at = ?, creator_at = ?, updated_at = ? WHERE id = ?`,
		u.Name, nullableStr(u.Phone), nullableTime(u.DOB), nullableStr(string(u.Focus)), nullableStr(u.AvatarURL),
		nullableTime(oc.Core), nullableTime(oc.Respondent), nullableTime(oc.Creator), s.now().Unix(), u.ID,
	); err != nil {
		return meridia.User{}, err
	}
	return s.GetUser(u.ID)
}

func (s *Store) setStatus(id, status string) error {
	return s.exec.Exec("UPDATE users SET status = ?, updated_at = ? WHERE id = ?", status, s.now().Unix(), id)
}

func (s *Store) setPhone(id, phone string) error {
	return s.exec.Exec("UPDATE users SET phone = ?, updated_at = ? WHERE id = ?", nullableStr(phone), s.now().Unix(), id)
}

// SuspendUser blocks sign-in and drops the user's live sessions.
func (s *Store) SuspendUser(id string) error {
	if err := s.setStatus(id, statusSuspended); err != nil {
		return err
	}
	s.cache.evict(s.now(), id)
	return s.exec.Exec("DELETE FROM user_sessions WHERE user_id = ?", id)
}

func (s *Store) ReactivateUser(id string) error {
	return s.setStatus(id, statusActive)
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "constraint: unique") ||
		strings.Contains(err.Error(), "duplicate key")
}
