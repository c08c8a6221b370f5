package switchflow

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Outcome is the result of a provider logout attempt. Every outcome leads
// to re-authentication.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeTimedOut  Outcome = "timed_out"
	OutcomeFailed    Outcome = "failed"
	// OutcomeDelegated means the browser performs the logout.
	OutcomeDelegated Outcome = "delegated"
)

// Mode names a ProviderLogout implementation in configuration.
const (
	ModeInterstitial = "interstitial"
	ModeHTTP         = "http"
	ModeNone         = "none"
)

// DefaultGitHubLogoutURL ends the GitHub browser session.
const DefaultGitHubLogoutURL = "https://github.com/logout"

// ProviderLogout ends the provider's own session on a best-effort basis.
type ProviderLogout interface {
	Attempt(ctx context.Context) (Outcome, error)
}

// Delegator is implemented by logouts the browser has to perform.
type Delegator interface {
	LogoutURL() string
}

// Interstitial hands the provider logout to the browser: the handler renders
// a page that loads URL in a hidden frame and then continues.
type Interstitial struct {
	URL string
}

func (i Interstitial) Attempt(context.Context) (Outcome, error) { return OutcomeDelegated, nil }
func (i Interstitial) LogoutURL() string                        { return i.URL }

// HTTPLogout requests URL from the server.
type HTTPLogout struct {
	URL    string
	Client *http.Client
}

func (h HTTPLogout) Attempt(ctx context.Context) (Outcome, error) {
	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.URL, nil)
	if err != nil {
		return OutcomeFailed, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return OutcomeFailed, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode >= http.StatusBadRequest {
		return OutcomeFailed, fmt.Errorf("provider logout: status %d", resp.StatusCode)
	}
	return OutcomeSucceeded, nil
}

// Noop skips the provider logout.
type Noop struct{}

func (Noop) Attempt(context.Context) (Outcome, error) { return OutcomeSucceeded, nil }

// FromMode picks the implementation for a configured mode. Unknown modes
// fall back to Interstitial.
func FromMode(mode, logoutURL string, client *http.Client) ProviderLogout {
	if strings.TrimSpace(logoutURL) == "" {
		logoutURL = DefaultGitHubLogoutURL
	}
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case ModeNone:
		return Noop{}
	case ModeHTTP:
		return HTTPLogout{URL: logoutURL, Client: client}
	default:
		return Interstitial{URL: logoutURL}
	}
}
