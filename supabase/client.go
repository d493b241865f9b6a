// Package supabase talks to a hosted Supabase project: the GoTrue auth API
// and the storage API.
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type Client struct {
	baseURL    string
	anonKey    string
	storageURL string
	http       *http.Client
	log        *zap.Logger
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.http = h } }

func WithLogger(l *zap.Logger) Option { return func(c *Client) { c.log = l } }

// WithStorageURL sets the prefix of public object URLs. It defaults to
// {baseURL}/storage/v1/object/public.
func WithStorageURL(u string) Option { return func(c *Client) { c.storageURL = strings.TrimRight(u, "/") } }

func New(baseURL, anonKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		anonKey: anonKey,
		http:    &http.Client{Timeout: 15 * time.Second},
		log:     zap.NewNop(),
	}
	c.storageURL = c.baseURL + "/storage/v1/object/public"
	for _, o := range opts {
		o(c)
	}
	return c
}

// APIError is an error answer of the Supabase API.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return e.Code + ": " + e.Message
	}
	return e.Message
}

func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var body struct {
		Msg              string `json:"msg"`
		Message          string `json:"message"`
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
		ErrorCode        string `json:"error_code"`
	}
	_ = json.Unmarshal(raw, &body)

	e := &APIError{Status: resp.StatusCode, Code: body.ErrorCode}
	for _, m := range []string{body.Msg, body.Message, body.ErrorDescription, body.Error} {
		if m != "" {
			e.Message = m
			break
		}
	}
	if e.Code == "" && body.ErrorDescription != "" {
		e.Code = body.Error
	}
	if e.Message == "" {
		e.Message = http.StatusText(resp.StatusCode)
	}
	return e
}

// request is one call to the API. token, when set, is sent as bearer;
// the anon key is sent otherwise.
type request struct {
	method      string
	path        string
	token       string
	body        any
	raw         io.Reader
	contentType string
	header      http.Header
}

func (c *Client) do(ctx context.Context, r request, out any) error {
	body := r.raw
	contentType := r.contentType
	if r.body != nil {
		b, err := json.Marshal(r.body)
		if err != nil {
			return errors.Wrap(err, "encode request")
		}
		body = bytes.NewReader(b)
		contentType = "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, r.method, c.baseURL+r.path, body)
	if err != nil {
		return errors.Wrapf(err, "supabase %s %s", r.method, r.path)
	}
	for k, v := range r.header {
		req.Header[k] = v
	}
	req.Header.Set("apikey", c.anonKey)
	token := r.token
	if token == "" {
		token = c.anonKey
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "supabase %s %s", r.method, r.path)
	}
	defer resp.Body.Close()

	c.log.Debug("supabase request",
		zap.String("method", r.method),
		zap.String("path", r.path),
		zap.Int("status", resp.StatusCode),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(err, "decode %s %s", r.method, r.path)
	}
	return nil
}
