// Package api is the client of the Yoku REST API.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	meridia "github.com/yoku-app/MERIDIA"
)

// HTTPError is a non-2xx answer, or a request refused before sending it.
type HTTPError struct {
	Status int
	Text   string
}

func (e *HTTPError) Error() string { return e.Text }

var errUnauthorized = &HTTPError{Status: http.StatusUnauthorized, Text: "Unauthorized"}

type Client struct {
	baseURL string
	tokens  meridia.TokenSource
	http    *http.Client
	log     *zap.Logger
	group   singleflight.Group
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.http = h } }

func WithLogger(l *zap.Logger) Option { return func(c *Client) { c.log = l } }

// New returns a client for the API at baseURL, authenticated with the
// bearer token of tokens.
func New(baseURL string, tokens meridia.TokenSource, opts ...Option) *Client {
	if tokens == nil {
		tokens = meridia.StaticToken("")
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/") + "/",
		tokens:  tokens,
		http:    &http.Client{Timeout: 30 * time.Second},
		log:     zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// WithToken returns a copy of the client that uses tokens.
func (c *Client) WithToken(tokens meridia.TokenSource) *Client {
	return New(c.baseURL, tokens, WithHTTPClient(c.http), WithLogger(c.log))
}

func (c *Client) send(ctx context.Context, method, path, contentType string, body io.Reader) (*http.Response, error) {
	token := c.tokens.AccessToken()
	if token == "" {
		return nil, errUnauthorized
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, errors.Wrapf(err, "%s %s", method, path)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "%s %s", method, path)
	}
	c.log.Debug("api request", zap.String("method", method), zap.String("path", path), zap.Int("status", resp.StatusCode))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		text := http.StatusText(resp.StatusCode)
		if text == "" {
			text = resp.Status
		}
		return nil, &HTTPError{Status: resp.StatusCode, Text: text}
	}
	return resp, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return errors.Wrap(err, "encode request")
		}
		body = bytes.NewReader(b)
	}
	resp, err := c.send(ctx, method, path, "application/json", body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(err, "decode %s %s", method, path)
	}
	return nil
}

// SessionUser returns the profile of the signed-in user. Concurrent calls
// with the same token share one request.
func (c *Client) SessionUser(ctx context.Context) (meridia.User, error) {
	v, err, _ := c.group.Do("session:"+c.tokens.AccessToken(), func() (any, error) {
		var u meridia.User
		err := c.doJSON(ctx, http.MethodGet, "user/session/", nil, &u)
		return u, err
	})
	if err != nil {
		return meridia.User{}, err
	}
	return v.(meridia.User), nil
}

func (c *Client) UpdateUser(ctx context.Context, u meridia.User) (meridia.User, error) {
	var out meridia.User
	err := c.doJSON(ctx, http.MethodPut, "user/", u, &out)
	return out, err
}

// CreateOrganisation creates an organisation. Name, description and email
// are required; the id defaults to a new UUID, the type to PERSONAL and
// the counters start at zero.
func (c *Client) CreateOrganisation(ctx context.Context, org meridia.Organisation) (meridia.Organisation, error) {
	if c.tokens.AccessToken() == "" {
		return meridia.Organisation{}, errUnauthorized
	}
	if org.Name == "" || org.Description == "" || org.Email == "" {
		return meridia.Organisation{}, &HTTPError{Status: http.StatusBadRequest, Text: "Missing required fields"}
	}
	if org.ID == "" {
		org.ID = uuid.NewString()
	}
	if org.OrgType == "" {
		org.OrgType = meridia.OrgPersonal
	}
	org.MemberCount = 0
	org.SurveyCreationCount = 0
	org.PublicStatus = false
	org.AverageSurveyReviewRating = 0

	var out meridia.Organisation
	err := c.doJSON(ctx, http.MethodPost, "organisation/", org, &out)
	return out, err
}

type Dimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

type Crop struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// TransformOptions are sent as one JSON-encoded form field per option.
type TransformOptions struct {
	Resize *Dimensions
	Crop   *Crop
	Format string
}

// AvatarTransform shrinks avatars to 256x256 webp before they are stored.
var AvatarTransform = TransformOptions{Resize: &Dimensions{Width: 256, Height: 256}, Format: "webp"}

// TransformImage runs the image service and returns the transformed image
// and its content type.
func (c *Client) TransformImage(ctx context.Context, image []byte, filename string, opts TransformOptions) ([]byte, string, error) {
	if c.tokens.AccessToken() == "" {
		return nil, "", errUnauthorized
	}
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("image", filename)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(image); err != nil {
		return nil, "", err
	}
	fields := []struct {
		key   string
		value any
		set   bool
	}{
		{"resize", opts.Resize, opts.Resize != nil},
		{"crop", opts.Crop, opts.Crop != nil},
		{"format", opts.Format, opts.Format != ""},
	}
	for _, f := range fields {
		if !f.set {
			continue
		}
		b, err := json.Marshal(f.value)
		if err != nil {
			return nil, "", err
		}
		if err := mw.WriteField(f.key, string(b)); err != nil {
			return nil, "", err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}

	resp, err := c.send(ctx, http.MethodPost, "image/transform", mw.FormDataContentType(), &buf)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", errors.Wrap(err, "read transformed image")
	}
	return out, resp.Header.Get("Content-Type"), nil
}
