// Package cookie carries the session token and the non-secret "previous
// identity" record between browser and server.
package cookie

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultName         = "authgate_session"
	DefaultPreviousName = "authgate_previous"
	DefaultLegacyName   = "gh_user"
	NonceName           = "authgate_oauth_state"

	previousMaxAge = 90 * 24 * time.Hour
	nonceMaxAge    = 10 * time.Minute
	maxPreviousLen = 2048
)

var errLooksLikeToken = errors.New("previous identity field looks like a credential")

// PreviousIdentity is the cosmetic "continue as X" record. It never holds a
// session token or provider access token.
type PreviousIdentity struct {
	Username    string `json:"username"`
	DisplayName string `json:"display_name,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

// LegacyUser is the unsigned cookie format written before signed sessions.
type LegacyUser struct {
	ID        string `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url"`
}

// Transport reads and writes the auth cookies.
type Transport struct {
	Name         string
	PreviousName string
	LegacyName   string
	Domain       string
	TTL          time.Duration
	// InsecureDev drops the Secure attribute for plaintext http requests. It
	// has no effect on https requests.
	InsecureDev bool
}

// New returns a Transport with default cookie names.
func New(ttl time.Duration) *Transport {
	return &Transport{
		Name:         DefaultName,
		PreviousName: DefaultPreviousName,
		LegacyName:   DefaultLegacyName,
		TTL:          ttl,
	}
}

// Write sets the session cookie.
func (t *Transport) Write(w http.ResponseWriter, r *http.Request, token string) {
	if w == nil {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     t.Name,
		Value:    strings.TrimSpace(token),
		Path:     "/",
		Domain:   t.Domain,
		MaxAge:   int(t.TTL / time.Second),
		HttpOnly: true,
		Secure:   t.secure(r),
		SameSite: http.SameSiteLaxMode,
	})
}

// Read returns the trimmed session cookie value when present.
func (t *Transport) Read(r *http.Request) (string, bool) {
	return readValue(r, t.Name)
}

// Clear expires the session cookie so browsers evict it immediately.
func (t *Transport) Clear(w http.ResponseWriter, r *http.Request) {
	t.expire(w, r, t.Name, true)
}

// WritePrevious stores the non-secret identity snapshot. It is readable by
// client scripts.
func (t *Transport) WritePrevious(w http.ResponseWriter, r *http.Request, rec PreviousIdentity) error {
	if w == nil {
		return nil
	}
	rec = rec.normalized()
	if rec.Username == "" {
		return errors.New("previous identity requires a username")
	}
	for _, v := range []string{rec.Username, rec.DisplayName, rec.AvatarURL} {
		if looksLikeToken(v) {
			return errLooksLikeToken
		}
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	value := base64.RawURLEncoding.EncodeToString(raw)
	if len(value) > maxPreviousLen {
		return errors.New("previous identity is too large")
	}
	http.SetCookie(w, &http.Cookie{
		Name:     t.PreviousName,
		Value:    value,
		Path:     "/",
		Domain:   t.Domain,
		MaxAge:   int(previousMaxAge / time.Second),
		HttpOnly: false,
		Secure:   t.secure(r),
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// ReadPrevious decodes the previous identity cookie. Corrupt or
// token-bearing values are ignored.
func (t *Transport) ReadPrevious(r *http.Request) (PreviousIdentity, bool) {
	value, ok := readValue(r, t.PreviousName)
	if !ok || len(value) > maxPreviousLen {
		return PreviousIdentity{}, false
	}
	raw, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return PreviousIdentity{}, false
	}
	var rec PreviousIdentity
	if err := json.Unmarshal(raw, &rec); err != nil {
		return PreviousIdentity{}, false
	}
	rec = rec.normalized()
	if rec.Username == "" || looksLikeToken(rec.Username) || looksLikeToken(rec.DisplayName) || looksLikeToken(rec.AvatarURL) {
		return PreviousIdentity{}, false
	}
	return rec, true
}

// ClearPrevious forgets the previous identity.
func (t *Transport) ClearPrevious(w http.ResponseWriter, r *http.Request) {
	t.expire(w, r, t.PreviousName, false)
}

// ReadLegacy decodes the pre-migration unsigned cookie.
func (t *Transport) ReadLegacy(r *http.Request) (LegacyUser, bool) {
	if t.LegacyName == "" {
		return LegacyUser{}, false
	}
	value, ok := readValue(r, t.LegacyName)
	if !ok {
		return LegacyUser{}, false
	}
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(value, "="))
	if err != nil {
		return LegacyUser{}, false
	}
	var u LegacyUser
	if err := json.Unmarshal(raw, &u); err != nil {
		return LegacyUser{}, false
	}
	u.ID = strings.TrimSpace(u.ID)
	u.Login = strings.TrimSpace(u.Login)
	if u.ID == "" || u.Login == "" {
		return LegacyUser{}, false
	}
	return u, true
}

// ClearLegacy expires the legacy cookie.
func (t *Transport) ClearLegacy(w http.ResponseWriter, r *http.Request) {
	if t.LegacyName == "" {
		return
	}
	t.expire(w, r, t.LegacyName, false)
}

// WriteNonce binds an OAuth state nonce to the browser for the callback.
func (t *Transport) WriteNonce(w http.ResponseWriter, r *http.Request, nonce string) {
	http.SetCookie(w, &http.Cookie{
		Name:     NonceName,
		Value:    nonce,
		Path:     "/",
		Domain:   t.Domain,
		MaxAge:   int(nonceMaxAge / time.Second),
		HttpOnly: true,
		Secure:   t.secure(r),
		SameSite: http.SameSiteLaxMode,
	})
}

// ReadNonce returns the OAuth state nonce.
func (t *Transport) ReadNonce(r *http.Request) (string, bool) {
	return readValue(r, NonceName)
}

// ClearNonce expires the OAuth state nonce.
func (t *Transport) ClearNonce(w http.ResponseWriter, r *http.Request) {
	t.expire(w, r, NonceName, true)
}

func (t *Transport) expire(w http.ResponseWriter, r *http.Request, name string, httpOnly bool) {
	if w == nil {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Domain:   t.Domain,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: httpOnly,
		Secure:   t.secure(r),
		SameSite: http.SameSiteLaxMode,
	})
}

func (t *Transport) secure(r *http.Request) bool {
	if !t.InsecureDev {
		return true
	}
	return IsHTTPS(r)
}

// IsHTTPS reports whether the request reached us over TLS, directly or via a
// proxy that sets X-Forwarded-Proto.
func IsHTTPS(r *http.Request) bool {
	if r == nil {
		return false
	}
	if r.TLS != nil {
		return true
	}
	return strings.EqualFold(strings.TrimSpace(r.Header.Get("X-Forwarded-Proto")), "https")
}

func readValue(r *http.Request, name string) (string, bool) {
	if r == nil || name == "" {
		return "", false
	}
	c, err := r.Cookie(name)
	if err != nil || c == nil {
		return "", false
	}
	value := strings.TrimSpace(c.Value)
	if value == "" {
		return "", false
	}
	return value, true
}

func (p PreviousIdentity) normalized() PreviousIdentity {
	return PreviousIdentity{
		Username:    strings.TrimSpace(p.Username),
		DisplayName: strings.TrimSpace(p.DisplayName),
		AvatarURL:   strings.TrimSpace(p.AvatarURL),
	}
}

// looksLikeToken flags JWS-shaped strings and GitHub token prefixes.
func looksLikeToken(v string) bool {
	if v == "" {
		return false
	}
	if strings.Count(v, ".") == 2 && strings.HasPrefix(v, "eyJ") {
		return true
	}
	for _, prefix := range []string{"gho_", "ghp_", "ghu_", "ghs_", "ghr_", "github_pat_"} {
		if strings.HasPrefix(v, prefix) {
			return true
		}
	}
	return false
}
