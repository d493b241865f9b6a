package supabase

import (
	"bytes"
	"context"
	"net/http"
	"strings"
)

// Upload stores data at bucket/path, replacing an existing object.
func (c *Client) Upload(ctx context.Context, token, bucket, path, contentType string, data []byte) error {
	return c.do(ctx, request{
		method:      http.MethodPost,
		path:        "/storage/v1/object/" + bucket + "/" + strings.TrimLeft(path, "/"),
		token:       token,
		raw:         bytes.NewReader(data),
		contentType: contentType,
		header:      http.Header{"X-Upsert": []string{"true"}},
	}, nil)
}

// PublicURL is the address of an object in a public bucket.
func (c *Client) PublicURL(bucket, path string) string {
	return c.storageURL + "/" + bucket + "/" + strings.TrimLeft(path, "/")
}
