package localauth

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"math/big"
	"strconv"
	"strings"

	"github.com/tinywasm/unixid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	meridia "github.com/yoku-app/MERIDIA"
)

// Purposes of a one-time code. The code target is an email address for
// signup and a phone number for phone.
const (
	PurposeSignup = "signup"
	PurposePhone  = "phone"
)

const (
	codeDigits  = 6
	maxAttempts = 5
)

// Notifier delivers one-time codes to their recipient.
type Notifier interface {
	Deliver(ctx context.Context, purpose, target, code string) error
}

// LogNotifier writes codes to the log. It is meant for development.
type LogNotifier struct {
	Log *zap.Logger
}

func (n LogNotifier) Deliver(_ context.Context, purpose, target, code string) error {
	n.Log.Info("one-time code issued",
		zap.String("purpose", purpose),
		zap.String("target", target),
		zap.String("code", code),
	)
	return nil
}

func newCode() (string, error) {
	max := big.NewInt(1)
	for i := 0; i < codeDigits; i++ {
		max.Mul(max, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	s := strconv.FormatInt(n.Int64(), 10)
	return strings.Repeat("0", codeDigits-len(s)) + s, nil
}

// issueCode replaces the outstanding code of the user for purpose with a
// new one for target and delivers it.
func (s *Store) issueCode(ctx context.Context, userID, purpose, target string) error {
	code, err := newCode()
	if err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), PasswordHashCost)
	if err != nil {
		return err
	}
	u, err := unixid.NewUnixID()
	if err != nil {
		return err
	}

	now := s.now()
	if err := s.exec.Exec("DELETE FROM user_codes WHERE user_id = ? AND purpose = ?", userID, purpose); err != nil {
		return err
	}
	if err := s.exec.Exec(
		`INSERT INTO user_codes (id, user_id, purpose, target, hash, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		u.GetNewID(), userID, purpose, target, string(hash), now.Add(s.config.CodeTTL).Unix(), now.Unix(),
	); err != nil {
		return err
	}
	return s.notifier.Deliver(ctx, purpose, target, code)
}

// consumeCode checks code against the outstanding one for purpose and
// target and returns the user it was issued to. An empty userID matches any
// user. A matching code is used up; so is an expired one, or one that was
// guessed wrong too often.
func (s *Store) consumeCode(userID, purpose, target, code string) (string, error) {
	var id, hash string
	var attempts int
	var expiresAt int64
	err := s.exec.QueryRow(
		`SELECT id, user_id, hash, attempts, expires_at FROM user_codes
		WHERE purpose = ? AND target = ? AND (? = '' OR user_id = ?)
		ORDER BY created_at DESC LIMIT 1`,
		purpose, target, userID, userID,
	).Scan(&id, &userID, &hash, &attempts, &expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", meridia.ErrInvalidCode
		}
		return "", err
	}

	if expiresAt < s.now().Unix() {
		if err := s.exec.Exec("DELETE FROM user_codes WHERE id = ?", id); err != nil {
			return "", err
		}
		return "", meridia.ErrCodeExpired
	}

	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(code)) != nil {
		attempts++
		q := "UPDATE user_codes SET attempts = ? WHERE id = ?"
		args := []any{attempts, id}
		if attempts >= maxAttempts {
			q, args = "DELETE FROM user_codes WHERE id = ?", []any{id}
		}
		if err := s.exec.Exec(q, args...); err != nil {
			return "", err
		}
		return "", meridia.ErrInvalidCode
	}

	if err := s.exec.Exec("DELETE FROM user_codes WHERE id = ?", id); err != nil {
		return "", err
	}
	return userID, nil
}

func (s *Store) PurgeExpiredCodes() error {
	return s.exec.Exec("DELETE FROM user_codes WHERE expires_at < ?", s.now().Unix())
}
