package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mx-space/authgate/internal/pkg/jwt"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

// ErrProviderExchange is returned when the provider rejects the code or the
// profile cannot be fetched.
var ErrProviderExchange = errors.New("provider exchange failed")

const (
	defaultGitHubAPI = "https://api.github.com"
	providerTimeout  = 15 * time.Second
)

// Profile is the identity returned by the provider.
type Profile struct {
	ID        string
	Login     string
	Name      string
	AvatarURL string
	HTMLURL   string
	Email     string
}

// Payload maps the profile onto a session payload.
func (p Profile) Payload() jwt.SessionPayload {
	profileURL := p.HTMLURL
	if profileURL == "" && p.Login != "" {
		profileURL = "https://github.com/" + p.Login
	}
	return jwt.SessionPayload{
		SubjectID:   p.ID,
		Username:    p.Login,
		DisplayName: displayName(p.Name, p.Login),
		AvatarURL:   p.AvatarURL,
		ProfileURL:  profileURL,
		Email:       p.Email,
	}
}

// Provider is the OAuth authorization-code client.
type Provider interface {
	AuthCodeURL(state string, selectAccount bool) string
	Exchange(ctx context.Context, code string) (*Profile, error)
	LogoutURL() string
}

// GitHubConfig configures GitHubProvider. The URL overrides exist for
// GitHub Enterprise and tests.
type GitHubConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
	LogoutURL    string

	AuthURL    string
	TokenURL   string
	APIBaseURL string
	HTTPClient *http.Client
}

// GitHubProvider signs users in with GitHub.
type GitHubProvider struct {
	oauth     *oauth2.Config
	apiBase   string
	logoutURL string
	client    *http.Client
}

func NewGitHubProvider(cfg GitHubConfig) *GitHubProvider {
	endpoint := github.Endpoint
	if cfg.AuthURL != "" {
		endpoint.AuthURL = cfg.AuthURL
	}
	if cfg.TokenURL != "" {
		endpoint.TokenURL = cfg.TokenURL
	}
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{"read:user", "user:email"}
	}
	apiBase := strings.TrimRight(cfg.APIBaseURL, "/")
	if apiBase == "" {
		apiBase = defaultGitHubAPI
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: providerTimeout}
	}
	return &GitHubProvider{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     endpoint,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopes,
		},
		apiBase:   apiBase,
		logoutURL: cfg.LogoutURL,
		client:    client,
	}
}

// AuthCodeURL returns the authorize URL. selectAccount asks GitHub to show
// the account picker instead of reusing its browser session.
func (p *GitHubProvider) AuthCodeURL(state string, selectAccount bool) string {
	var opts []oauth2.AuthCodeOption
	if selectAccount {
		opts = append(opts, oauth2.SetAuthURLParam("prompt", "select_account"))
	}
	return p.oauth.AuthCodeURL(state, opts...)
}

func (p *GitHubProvider) LogoutURL() string { return p.logoutURL }

// Exchange trades code for an access token and loads the user's profile.
// The access token is discarded afterwards.
func (p *GitHubProvider) Exchange(ctx context.Context, code string) (*Profile, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.client)
	tok, err := p.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProviderExchange, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.apiBase+"/user", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	resp, err := p.oauth.Client(ctx, tok).Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch user: %w", ErrProviderExchange, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, fmt.Errorf("%w: fetch user: status %d", ErrProviderExchange, resp.StatusCode)
	}

	var u struct {
		ID        int64  `json:"id"`
		Login     string `json:"login"`
		Name      string `json:"name"`
		AvatarURL string `json:"avatar_url"`
		HTMLURL   string `json:"html_url"`
		Email     string `json:"email"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&u); err != nil {
		return nil, fmt.Errorf("%w: decode user: %w", ErrProviderExchange, err)
	}
	if u.ID == 0 || strings.TrimSpace(u.Login) == "" {
		return nil, fmt.Errorf("%w: incomplete profile", ErrProviderExchange)
	}
	return &Profile{
		ID:        strconv.FormatInt(u.ID, 10),
		Login:     u.Login,
		Name:      u.Name,
		AvatarURL: u.AvatarURL,
		HTMLURL:   u.HTMLURL,
		Email:     u.Email,
	}, nil
}

func displayName(name, fallback string) string {
	if strings.TrimSpace(name) != "" {
		return strings.TrimSpace(name)
	}
	return fallback
}
