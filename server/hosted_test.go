package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	meridia "github.com/yoku-app/MERIDIA"
	"github.com/yoku-app/MERIDIA/api"
	"github.com/yoku-app/MERIDIA/supabase"
)

// upstream plays both the hosted auth service and the REST API.
func upstream(t *testing.T, logouts *atomic.Int32) *httptest.Server {
	t.Helper()
	core := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r := chi.NewRouter()
	r.Post("/auth/v1/token", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if r.URL.Query().Get("grant_type") != "pkce" || body["auth_code"] != "xyz" || body["code_verifier"] == "" {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]string{"error_code": "bad_code_verifier", "msg": "invalid flow state"})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "at-1", "refresh_token": "rt-1", "expires_in": 3600,
			"user": map[string]any{"id": "u-9", "email": "s@b.com"},
		})
	})
	r.Post("/auth/v1/logout", func(w http.ResponseWriter, r *http.Request) {
		logouts.Add(1)
		w.WriteHeader(http.StatusNoContent)
	})
	r.Get("/api/user/session/", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer at-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(meridia.User{ID: "u-9", Email: "s@b.com", OnboardingCompletion: &meridia.OnboardingCompletion{Core: &core}})
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func TestHostedBackend(t *testing.T) {
	var logouts atomic.Int32
	up := upstream(t, &logouts)
	client := supabase.New(up.URL, "anon")
	hosted := NewHosted(client, api.New(up.URL+"/api/", nil), "https://yoku.test/api/auth/token/callback")
	srv := New(hosted)

	get := func(path, token string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		w := httptest.NewRecorder()
		srv.ServeHTTP(w, req)
		return w
	}

	w := get("/auth/social/google", "")
	require.Equal(t, http.StatusFound, w.Code, w.Body.String())
	authorize, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "/auth/v1/authorize", authorize.Path)
	assert.Equal(t, "google", authorize.Query().Get("provider"))
	redirect, err := url.Parse(authorize.Query().Get("redirect_to"))
	require.NoError(t, err)
	assert.Equal(t, "/api/auth/token/callback", redirect.Path)
	key := redirect.Query().Get("pkce")
	require.NotEmpty(t, key)

	w = get("/api/auth/token/callback?code=xyz&pkce="+url.QueryEscape(key), "")
	require.Equal(t, http.StatusSeeOther, w.Code, w.Body.String())
	assert.Equal(t, "/", w.Header().Get("Location"), "onboarded users go home")
	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "at-1", cookies[0].Value)

	w = get("/api/auth/token/callback?code=xyz&pkce="+url.QueryEscape(key), "")
	assert.Equal(t, http.StatusBadRequest, w.Code, "the verifier is redeemed once")

	t.Run("onboarding uses the REST API user", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/flows/onboard", nil)
		req.Header.Set("Authorization", "Bearer at-1")
		w := httptest.NewRecorder()
		srv.ServeHTTP(w, req)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		var v flowView
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
		assert.Equal(t, "u-9", v.Draft.ID)

		req = httptest.NewRequest(http.MethodPost, "/flows/onboard", nil)
		req.Header.Set("Authorization", "Bearer someone-else")
		w = httptest.NewRecorder()
		srv.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: "at-1"})
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, int32(1), logouts.Load())
}
