package auth

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/mx-space/authgate/internal/pkg/cookie"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/publicsuffix"
)

type browser struct {
	t      *testing.T
	base   *url.URL
	client *http.Client
}

func newBrowser(t *testing.T, srv *httptest.Server) *browser {
	t.Helper()
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	require.NoError(t, err)
	base, err := url.Parse(srv.URL)
	require.NoError(t, err)
	return &browser{
		t:    t,
		base: base,
		client: &http.Client{
			Jar: jar,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

func (b *browser) do(method, target, accept string) *http.Response {
	b.t.Helper()
	req, err := http.NewRequest(method, b.base.String()+target, nil)
	require.NoError(b.t, err)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	resp, err := b.client.Do(req)
	require.NoError(b.t, err)
	b.t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (b *browser) cookie(name string) string {
	for _, c := range b.client.Jar.Cookies(b.base) {
		if c.Name == name {
			return c.Value
		}
	}
	return ""
}

// signIn walks the OAuth dance for code and returns where the callback
// redirected.
func (b *browser) signIn(entry, code string) string {
	b.t.Helper()
	resp := b.do(http.MethodGet, entry, "text/html")
	require.Equal(b.t, http.StatusFound, resp.StatusCode)
	authorize, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(b.t, err)

	resp = b.do(http.MethodGet, "/auth/callback?code="+code+"&state="+url.QueryEscape(authorize.Query().Get("state")), "text/html")
	require.Equal(b.t, http.StatusFound, resp.StatusCode)
	return resp.Header.Get("Location")
}

func TestSwitchAccountEndToEnd(t *testing.T) {
	e := newEnv(t, envOptions{})
	srv := httptest.NewServer(e.engine)
	defer srv.Close()
	b := newBrowser(t, srv)

	resp := b.do(http.MethodGet, "/history?x=1", "text/html")
	require.Equal(t, http.StatusFound, resp.StatusCode)
	login, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "/login", login.Path)
	assert.Equal(t, "/history?x=1", login.Query().Get("returnTo"))

	landed := b.signIn("/auth/github?returnTo="+url.QueryEscape(login.Query().Get("returnTo")), "alice")
	assert.Equal(t, "/history?x=1", landed)

	resp = b.do(http.MethodGet, landed, "text/html")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "history of 1001", string(body))

	oldToken := b.cookie(cookie.DefaultName)
	require.NotEmpty(t, oldToken)

	resp = b.do(http.MethodPost, "/auth/switch?returnTo="+url.QueryEscape("/history?x=1"), "application/json")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var sw switchResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&sw))
	assert.True(t, strings.HasPrefix(sw.Redirect, "/auth/github?prompt=select_account"))

	assert.Empty(t, b.cookie(cookie.DefaultName), "session cookie is gone after the switch")
	resp = b.do(http.MethodGet, "/history?x=1", "text/html")
	assert.Equal(t, http.StatusFound, resp.StatusCode)

	replay, err := http.NewRequest(http.MethodGet, srv.URL+"/history?x=1", nil)
	require.NoError(t, err)
	replay.Header.Set("Accept", "application/json")
	replay.AddCookie(&http.Cookie{Name: cookie.DefaultName, Value: oldToken})
	replayed, err := srv.Client().Do(replay)
	require.NoError(t, err)
	replayed.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, replayed.StatusCode, "a replayed pre-switch token must not authenticate")

	resp = b.do(http.MethodGet, "/auth/previous", "application/json")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var prev cookie.PreviousIdentity
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&prev))
	assert.Equal(t, "alice", prev.Username)

	landed = b.signIn(sw.Redirect, "bob")
	assert.Equal(t, "/history?x=1", landed)

	resp = b.do(http.MethodGet, "/auth/me", "application/json")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var me meResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&me))
	assert.Equal(t, "bob", me.Username)
	assert.Equal(t, "1002", me.SubjectID)

	assert.Equal(t, "alice", func() string {
		resp := b.do(http.MethodGet, "/auth/previous", "application/json")
		var p cookie.PreviousIdentity
		_ = json.NewDecoder(resp.Body).Decode(&p)
		return p.Username
	}(), "previous identity survives a fresh sign-in")
}

func TestSignInReplacesCurrentSession(t *testing.T) {
	e := newEnv(t, envOptions{})
	srv := httptest.NewServer(e.engine)
	defer srv.Close()
	b := newBrowser(t, srv)

	b.signIn("/auth/github", "alice")
	first := b.cookie(cookie.DefaultName)
	require.NotEmpty(t, first)
	p, err := e.codec.Verify(first)
	require.NoError(t, err)

	b.signIn("/auth/github?prompt=select_account", "alice")
	second := b.cookie(cookie.DefaultName)
	require.NotEqual(t, first, second)

	recs, err := e.registry.List(t.Context(), "1001")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.NotEqual(t, p.SessionID, recs[0].ID)
}
