package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mx-space/authgate/internal/middleware"
	"github.com/mx-space/authgate/internal/pkg/response"
	"go.uber.org/zap"
)

// GET /auth/github?returnTo=...&prompt=select_account
func (h *Handler) begin(c *gin.Context) {
	returnTo := middleware.SanitizeReturnTo(c.Query("returnTo"), h.routes)
	nonce, err := newNonce()
	if err != nil {
		response.InternalError(c, err)
		return
	}
	h.cookies.WriteNonce(c.Writer, c.Request, nonce)

	selectAccount := c.Query("prompt") == "select_account"
	c.Redirect(http.StatusFound, h.provider.AuthCodeURL(encodeState(nonce, returnTo), selectAccount))
}

// GET /auth/callback?code=...&state=...&error=...
func (h *Handler) callback(c *gin.Context) {
	nonce, _ := h.cookies.ReadNonce(c.Request)
	h.cookies.ClearNonce(c.Writer, c.Request)
	returnTo, stateOK := decodeState(c.Query("state"), nonce)
	if stateOK {
		returnTo = middleware.SanitizeReturnTo(returnTo, h.routes)
	} else {
		returnTo = "/"
	}

	if providerErr := strings.TrimSpace(c.Query("error")); providerErr != "" {
		h.log.Info("provider returned error", zap.String("error", providerErr))
		h.loginError(c, ErrCodeAccessDenied, returnTo)
		return
	}
	code := strings.TrimSpace(c.Query("code"))
	if code == "" {
		h.loginError(c, ErrCodeMissingCode, returnTo)
		return
	}
	if !stateOK {
		h.log.Info("oauth state mismatch", zap.Bool("nonce_cookie", nonce != ""))
		h.loginError(c, ErrCodeStateMismatch, "/")
		return
	}

	profile, err := h.provider.Exchange(c.Request.Context(), code)
	if err != nil {
		h.log.Warn("oauth exchange failed", zap.Error(err))
		h.loginError(c, ErrCodeExchangeFailed, returnTo)
		return
	}

	replaced := middleware.CurrentSessionID(c)
	if _, err := h.svc.Establish(c, profile.Payload()); err != nil {
		h.log.Error("session not established", zap.String("subject", profile.ID), zap.Error(err))
		h.loginError(c, ErrCodeSessionFailed, returnTo)
		return
	}
	h.cookies.ClearLegacy(c.Writer, c.Request)
	if replaced != "" {
		if err := h.registry.Revoke(c.Request.Context(), replaced); err != nil {
			h.log.Warn("replaced session not revoked", zap.String("sid", replaced), zap.Error(err))
		}
	}

	h.log.Info("signed in", zap.String("subject", profile.ID), zap.String("login", profile.Login))
	c.Redirect(http.StatusFound, returnTo)
}

func (h *Handler) loginError(c *gin.Context, code, returnTo string) {
	q := url.Values{}
	q.Set("error", code)
	if returnTo != "" && returnTo != "/" {
		q.Set("returnTo", returnTo)
	}
	c.Redirect(http.StatusFound, h.routes.Login()+"?"+q.Encode())
}

func newNonce() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// encodeState binds returnTo to the browser's nonce cookie. The state is
// "<nonce>.<base64url(returnTo)>".
func encodeState(nonce, returnTo string) string {
	return nonce + "." + base64.RawURLEncoding.EncodeToString([]byte(returnTo))
}

// decodeState returns returnTo when state carries the expected nonce.
func decodeState(state, nonce string) (string, bool) {
	if state == "" || nonce == "" {
		return "", false
	}
	got, encoded, ok := strings.Cut(state, ".")
	if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(nonce)) != 1 {
		return "", false
	}
	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return "", false
	}
	return string(raw), true
}
