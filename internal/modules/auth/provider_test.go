package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeGitHub(t *testing.T, user map[string]any) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/login/oauth/access_token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.PostForm.Get("code") != "good-code" {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"error":"bad_verification_code"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"gho_test","token_type":"bearer","scope":"read:user"}`))
	})
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer gho_test" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(user)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestGitHub(srv *httptest.Server) *GitHubProvider {
	return NewGitHubProvider(GitHubConfig{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURL:  "https://app.example.test/auth/callback",
		LogoutURL:    "https://github.example/logout",
		AuthURL:      srv.URL + "/login/oauth/authorize",
		TokenURL:     srv.URL + "/login/oauth/access_token",
		APIBaseURL:   srv.URL,
		HTTPClient:   srv.Client(),
	})
}

func TestGitHubAuthCodeURL(t *testing.T) {
	p := NewGitHubProvider(GitHubConfig{ClientID: "client-id", RedirectURL: "https://app.example.test/auth/callback"})

	u, err := url.Parse(p.AuthCodeURL("st.abc", false))
	require.NoError(t, err)
	assert.Equal(t, "github.com", u.Host)
	assert.Equal(t, "st.abc", u.Query().Get("state"))
	assert.Equal(t, "client-id", u.Query().Get("client_id"))
	assert.Empty(t, u.Query().Get("prompt"))

	u, err = url.Parse(p.AuthCodeURL("st.abc", true))
	require.NoError(t, err)
	assert.Equal(t, "select_account", u.Query().Get("prompt"))
}

func TestGitHubExchange(t *testing.T) {
	srv := fakeGitHub(t, map[string]any{
		"id":         583231,
		"login":      "octocat",
		"name":       "The Octocat",
		"avatar_url": "https://avatars.example/u/583231",
		"html_url":   "https://github.com/octocat",
	})
	p := newTestGitHub(srv)

	prof, err := p.Exchange(context.Background(), "good-code")
	require.NoError(t, err)
	assert.Equal(t, &Profile{
		ID:        "583231",
		Login:     "octocat",
		Name:      "The Octocat",
		AvatarURL: "https://avatars.example/u/583231",
		HTMLURL:   "https://github.com/octocat",
	}, prof)
	assert.Equal(t, "https://github.example/logout", p.LogoutURL())

	_, err = p.Exchange(context.Background(), "bad-code")
	require.ErrorIs(t, err, ErrProviderExchange)
}

func TestGitHubExchangeIncompleteProfile(t *testing.T) {
	srv := fakeGitHub(t, map[string]any{"id": 0, "login": ""})
	_, err := newTestGitHub(srv).Exchange(context.Background(), "good-code")
	require.ErrorIs(t, err, ErrProviderExchange)
}

func TestProfilePayload(t *testing.T) {
	p := Profile{ID: "7", Login: "hubot"}.Payload()
	assert.Equal(t, "7", p.SubjectID)
	assert.Equal(t, "hubot", p.DisplayName)
	assert.Equal(t, "https://github.com/hubot", p.ProfileURL)
	assert.Empty(t, p.SessionID)
}
