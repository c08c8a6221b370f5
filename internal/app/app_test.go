package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mx-space/authgate/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testConfig() *config.Config {
	return &config.Config{
		Env:  config.EnvTest,
		Port: 2333,
		Token: config.TokenConfig{
			Secret: "0123456789abcdef0123456789abcdef",
			TTL:    time.Hour,
		},
		GitHub: config.GitHubConfig{
			ClientID:     "cid",
			ClientSecret: "csecret",
			Scopes:       []string{"read:user"},
			LogoutURL:    "https://github.com/logout",
		},
		Cookie: config.CookieConfig{
			Name:         "authgate_session",
			PreviousName: "authgate_previous",
			InsecureDev:  true,
		},
		Routes: config.RoutesConfig{
			Protected: []string{"/sessions", "/history"},
			AuthOnly:  []string{"/login"},
			LoginPath: "/login",
		},
		Registry:       config.RegistryConfig{Driver: config.DriverMemory},
		Switch:         config.SwitchConfig{LogoutTimeout: time.Second, LogoutMode: "none"},
		AllowedOrigins: []string{"https://app.example.com", "https://*.preview.example.com"},
	}
}

func newTestApp(t *testing.T) *App {
	t.Helper()
	cfg := testConfig()
	require.NoError(t, cfg.Validate())
	a, err := New(context.Background(), zap.NewNop(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { a.Shutdown(context.Background()) })
	return a
}

func serve(a *App, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	a.Router().ServeHTTP(rr, req)
	return rr
}

func TestHealth(t *testing.T) {
	a := newTestApp(t)
	rr := serve(a, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		Registry string `json:"registry"`
		Driver   string `json:"driver"`
		Jobs     []struct {
			Name string `json:"name"`
		} `json:"jobs"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Registry)
	assert.Equal(t, "memory", body.Driver)
	require.Len(t, body.Jobs, 1)
	assert.Equal(t, pruneJob, body.Jobs[0].Name)
}

func TestProtectedRouteRedirectsToLogin(t *testing.T) {
	a := newTestApp(t)
	req := httptest.NewRequest(http.MethodGet, "/history?page=2", nil)
	req.Header.Set("Accept", "text/html")
	rr := serve(a, req)
	require.Equal(t, http.StatusFound, rr.Code)
	assert.Equal(t, "/login?returnTo=%2Fhistory%3Fpage%3D2", rr.Header().Get("Location"))

	req = httptest.NewRequest(http.MethodGet, "/sessions", nil)
	req.Header.Set("Accept", "application/json")
	assert.Equal(t, http.StatusUnauthorized, serve(a, req).Code)
}

func TestLoginPageAndEntry(t *testing.T) {
	a := newTestApp(t)
	rr := serve(a, httptest.NewRequest(http.MethodGet, "/login", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "Sign in with GitHub")

	rr = serve(a, httptest.NewRequest(http.MethodGet, "/auth/github?prompt=select_account", nil))
	require.Equal(t, http.StatusFound, rr.Code)
	assert.Contains(t, rr.Header().Get("Location"), "https://github.com/login/oauth/authorize")
	assert.Contains(t, rr.Header().Get("Location"), "prompt=select_account")
}

func TestDebugHiddenOutsideDevelopment(t *testing.T) {
	a := newTestApp(t)
	rr := serve(a, httptest.NewRequest(http.MethodGet, "/auth/debug", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestCORS(t *testing.T) {
	a := newTestApp(t)
	preflight := func(origin string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodOptions, "/auth/me", nil)
		req.Header.Set("Origin", origin)
		req.Header.Set("Access-Control-Request-Method", http.MethodGet)
		return serve(a, req)
	}

	rr := preflight("https://app.example.com")
	assert.Equal(t, "https://app.example.com", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rr.Header().Get("Access-Control-Allow-Credentials"))

	rr = preflight("https://pr-12.preview.example.com")
	assert.Equal(t, "https://pr-12.preview.example.com", rr.Header().Get("Access-Control-Allow-Origin"))

	rr = preflight("https://evil.example.net")
	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestOriginAllowList(t *testing.T) {
	list := newOriginAllowList([]string{
		"https://app.example.com",
		"https://*.preview.example.com",
		"http://localhost:*",
		"not an origin",
	})
	require.Len(t, list, 3)

	cases := []struct {
		origin string
		want   bool
	}{
		{"https://app.example.com", true},
		{"https://APP.example.com", true},
		{"http://app.example.com", false},
		{"https://app.example.com:8443", false},
		{"https://app.example.com.evil.net", false},
		{"https://pr-12.preview.example.com", true},
		{"https://preview.example.com", false},
		{"https://evilpreview.example.com", false},
		{"http://localhost:5173", true},
		{"http://localhost", true},
		{"https://localhost:5173", false},
		{"http://localhost.evil.net:5173", false},
		{"null", false},
	}
	for _, tc := range cases {
		assert.Equalf(t, tc.want, list.Allow(tc.origin), "%s", tc.origin)
	}
}
