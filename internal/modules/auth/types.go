package auth

import (
	"time"

	"github.com/mx-space/authgate/internal/pkg/session"
)

// Login page error codes.
const (
	ErrCodeAccessDenied   = "access_denied"
	ErrCodeMissingCode    = "missing_code"
	ErrCodeStateMismatch  = "state_mismatch"
	ErrCodeExchangeFailed = "exchange_failed"
	ErrCodeSessionFailed  = "session_failed"
)

var loginErrorText = map[string]string{
	ErrCodeAccessDenied:   "Sign-in was cancelled.",
	ErrCodeMissingCode:    "The sign-in response was incomplete. Please try again.",
	ErrCodeStateMismatch:  "Your sign-in link expired or was opened in another browser. Please try again.",
	ErrCodeExchangeFailed: "GitHub could not complete the sign-in. Please try again.",
	ErrCodeSessionFailed:  "We could not start your session. Please try again.",
}

func loginErrorMessage(code string) string {
	if code == "" {
		return ""
	}
	if msg, ok := loginErrorText[code]; ok {
		return msg
	}
	return "Something went wrong. Please try again."
}

type flowDTO struct {
	ReturnTo string `json:"returnTo" form:"returnTo"`
	Forget   bool   `json:"forget"   form:"forget"`
}

type revokeSessionDTO struct {
	SessionID string `json:"session_id" form:"session_id" binding:"required"`
}

type meResponse struct {
	Kind        string     `json:"kind"`
	SubjectID   string     `json:"subject_id"`
	Username    string     `json:"username"`
	DisplayName string     `json:"display_name,omitempty"`
	AvatarURL   string     `json:"avatar_url,omitempty"`
	ProfileURL  string     `json:"profile_url,omitempty"`
	Email       string     `json:"email,omitempty"`
	SessionID   string     `json:"session_id,omitempty"`
	IssuedAt    *time.Time `json:"issued_at,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

type sessionView struct {
	ID         string         `json:"id"`
	Device     session.Device `json:"device"`
	IPAddress  string         `json:"ip_address"`
	CreatedAt  time.Time      `json:"created_at"`
	LastUsedAt time.Time      `json:"last_used_at"`
	ExpiresAt  time.Time      `json:"expires_at"`
	Current    bool           `json:"current"`
}

type switchResponse struct {
	Redirect          string   `json:"redirect"`
	Outcome           string   `json:"outcome,omitempty"`
	ProviderLogoutURL string   `json:"provider_logout_url,omitempty"`
	States            []string `json:"states"`
}

// DebugInfo is what /auth/debug may disclose. It never carries secrets.
type DebugInfo struct {
	Env                      string `json:"env"`
	SecretConfigured         bool   `json:"secret_configured"`
	PreviousSecretConfigured bool   `json:"previous_secret_configured"`
	ProviderConfigured       bool   `json:"provider_configured"`
	RegistryDriver           string `json:"registry_driver"`
	LegacyFallback           bool   `json:"legacy_fallback"`
}
