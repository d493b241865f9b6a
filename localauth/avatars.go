package localauth

import (
	"database/sql"
	"errors"
	"net/http"
	"strings"

	meridia "github.com/yoku-app/MERIDIA"
)

// SaveAvatar stores a profile picture, replacing any previous one, and
// returns its public URL.
func (s *Store) SaveAvatar(userID string, data []byte) (string, error) {
	if _, err := s.accountByID(userID); err != nil {
		return "", err
	}
	contentType := http.DetectContentType(data)
	if !strings.HasPrefix(contentType, "image/") {
		return "", meridia.ErrInvalidImage
	}
	if err := s.exec.Exec(
		`INSERT INTO user_avatars (user_id, content_type, data, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET content_type = excluded.content_type, data = excluded.data, updated_at = excluded.updated_at`,
		userID, contentType, data, s.now().Unix(),
	); err != nil {
		return "", err
	}
	return strings.TrimRight(s.config.AvatarBaseURL, "/") + "/" + userID, nil
}

// Avatar returns the stored picture of a user and its content type.
func (s *Store) Avatar(userID string) (string, []byte, error) {
	var contentType string
	var data []byte
	err := s.exec.QueryRow("SELECT content_type, data FROM user_avatars WHERE user_id = ?", userID).Scan(&contentType, &data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil, meridia.ErrNotFound
		}
		return "", nil, err
	}
	return contentType, data, nil
}
