// Package auth serves the sign-in, sign-out, account switch and session
// management endpoints.
package auth

import (
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mx-space/authgate/internal/middleware"
	"github.com/mx-space/authgate/internal/modules/auth/switchflow"
	"github.com/mx-space/authgate/internal/pkg/cookie"
	"github.com/mx-space/authgate/internal/pkg/jwt"
	"github.com/mx-space/authgate/internal/pkg/response"
	"github.com/mx-space/authgate/internal/pkg/session"
	"go.uber.org/zap"
)

// Options wires a Handler.
type Options struct {
	Service  *Service
	Codec    *jwt.Codec
	Cookies  *cookie.Transport
	Registry session.Registry
	Provider Provider
	Flow     *switchflow.Flow
	Routes   middleware.Routes
	// Debug enables GET /auth/debug. Leave nil in production.
	Debug  *DebugInfo
	Logger *zap.Logger
}

type Handler struct {
	svc      *Service
	codec    *jwt.Codec
	cookies  *cookie.Transport
	registry session.Registry
	provider Provider
	flow     *switchflow.Flow
	routes   middleware.Routes
	debug    *DebugInfo
	log      *zap.Logger
}

func NewHandler(opts Options) *Handler {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		svc:      opts.Service,
		codec:    opts.Codec,
		cookies:  opts.Cookies,
		registry: opts.Registry,
		provider: opts.Provider,
		flow:     opts.Flow,
		routes:   opts.Routes,
		debug:    opts.Debug,
		log:      log,
	}
}

// RegisterRoutes mounts the endpoints. limit guards the OAuth entry points
// and may be nil.
func (h *Handler) RegisterRoutes(r gin.IRouter, limit gin.HandlerFunc) {
	if limit == nil {
		limit = func(c *gin.Context) { c.Next() }
	}

	r.GET(h.routes.Login(), h.loginPage)

	a := r.Group("/auth")
	a.GET("/github", limit, h.begin)
	a.GET("/callback", limit, h.callback)
	a.POST("/logout", h.logout)
	a.POST("/switch", h.switchAccount)
	a.GET("/me", middleware.RequireAuth(), h.me)
	a.GET("/previous", h.previous)
	a.DELETE("/previous", h.forgetPrevious)
	if h.debug != nil {
		a.GET("/debug", h.debugInfo)
	}

	s := r.Group("/sessions", middleware.RequireSignedSession())
	s.GET("", h.listSessions)
	s.POST("/revoke", h.revokeSession)
	s.DELETE("", h.revokeOtherSessions)
}

// GET /login?returnTo=...&error=...
func (h *Handler) loginPage(c *gin.Context) {
	returnTo := middleware.SanitizeReturnTo(c.Query("returnTo"), h.routes)
	data := loginPageData{
		Error:     loginErrorMessage(c.Query("error")),
		SignInURL: entryURL(returnTo, false),
		SwitchURL: entryURL(returnTo, true),
	}
	if prev, ok := h.cookies.ReadPrevious(c.Request); ok {
		data.Previous = &prev
	}
	renderPage(c, http.StatusOK, loginTemplate, data)
}

// GET /auth/me
func (h *Handler) me(c *gin.Context) {
	switch id := middleware.CurrentIdentity(c).(type) {
	case middleware.SignedSession:
		p := id.Payload
		response.OK(c, meResponse{
			Kind:        "signed",
			SubjectID:   p.SubjectID,
			Username:    p.Username,
			DisplayName: p.DisplayName,
			AvatarURL:   p.AvatarURL,
			ProfileURL:  p.ProfileURL,
			Email:       p.Email,
			SessionID:   p.SessionID,
			IssuedAt:    &p.IssuedAt,
			ExpiresAt:   &p.ExpiresAt,
		})
	case middleware.LegacyIdentity:
		response.OK(c, meResponse{
			Kind:        "legacy",
			SubjectID:   id.User.ID,
			Username:    id.User.Login,
			DisplayName: displayName(id.User.Name, id.User.Login),
			AvatarURL:   id.User.AvatarURL,
		})
	default:
		response.Unauthorized(c)
	}
}

// GET /auth/previous
func (h *Handler) previous(c *gin.Context) {
	prev, ok := h.cookies.ReadPrevious(c.Request)
	if !ok {
		response.NotFoundMsg(c, "no previous identity")
		return
	}
	response.OK(c, prev)
}

// DELETE /auth/previous forgets the "continue as" record. It does not touch
// the current session.
func (h *Handler) forgetPrevious(c *gin.Context) {
	h.cookies.ClearPrevious(c.Writer, c.Request)
	response.NoContent(c)
}

// GET /auth/debug
func (h *Handler) debugInfo(c *gin.Context) {
	roundTrip := "ok"
	token, _, err := h.codec.Issue(jwt.SessionPayload{SubjectID: "debug", Username: "debug"}, time.Minute)
	if err == nil {
		_, err = h.codec.Verify(token)
	}
	if err != nil {
		roundTrip = "failed: " + string(jwt.KindOf(err))
	}
	c.JSON(http.StatusOK, gin.H{
		"config":     h.debug,
		"round_trip": roundTrip,
	})
}

func entryURL(returnTo string, selectAccount bool) string {
	q := url.Values{}
	if selectAccount {
		q.Set("prompt", "select_account")
	}
	if returnTo != "" && returnTo != "/" {
		q.Set("returnTo", returnTo)
	}
	if len(q) == 0 {
		return switchflow.DefaultEntry
	}
	return switchflow.DefaultEntry + "?" + q.Encode()
}
