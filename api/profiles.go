package api

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	meridia "github.com/yoku-app/MERIDIA"
	"github.com/yoku-app/MERIDIA/flow"
)

// AvatarBucket is the storage bucket of profile pictures.
const AvatarBucket = "profile-picture"

// Uploader stores files in a public bucket.
type Uploader interface {
	Upload(ctx context.Context, token, bucket, path, contentType string, data []byte) error
	PublicURL(bucket, path string) string
}

// Profiles saves onboarding profiles through the API. Avatars are
// transformed by the image service and stored under the user's id.
type Profiles struct {
	api     *Client
	storage Uploader
}

var _ flow.ProfileService = (*Profiles)(nil)

func NewProfiles(api *Client, storage Uploader) *Profiles {
	return &Profiles{api: api, storage: storage}
}

func (p *Profiles) UpdateProfile(ctx context.Context, u meridia.User) flow.Response[meridia.User] {
	saved, err := p.api.UpdateUser(ctx, u)
	if err != nil {
		return flow.Fail[meridia.User](p.failure(err, "Failed to update Profile"))
	}
	return flow.Ok(saved)
}

func (p *Profiles) UploadAvatar(ctx context.Context, userID string, image []byte) flow.Response[string] {
	data, contentType, err := p.api.TransformImage(ctx, image, "avatar", AvatarTransform)
	if err != nil {
		return flow.Fail[string](p.failure(err, "Failed to upload Avatar"))
	}
	if contentType == "" {
		contentType = "image/webp"
	}
	if err := p.storage.Upload(ctx, p.api.tokens.AccessToken(), AvatarBucket, userID, contentType, data); err != nil {
		return flow.Fail[string](p.failure(err, "Failed to upload Avatar"))
	}
	return flow.Ok(p.storage.PublicURL(AvatarBucket, userID))
}

// failure keeps 4xx texts and replaces everything else with banner, the
// message shown for unreachable or failing services.
func (p *Profiles) failure(err error, banner string) *flow.ErrorInfo {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		switch {
		case httpErr.Status == http.StatusConflict:
			return flow.ConflictError("", httpErr.Text)
		case httpErr.Status < 500:
			return flow.AuthError(httpErr.Status, "", httpErr.Text)
		}
		info := flow.NetworkError(err)
		info.Status, info.Message = httpErr.Status, banner
		return info
	}
	p.api.log.Warn("profile request failed", zap.Error(err))
	info := flow.NetworkError(err)
	info.Message = banner
	return info
}
