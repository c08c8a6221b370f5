package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mx-space/authgate/internal/middleware"
	"github.com/mx-space/authgate/internal/modules/auth/switchflow"
	"github.com/mx-space/authgate/internal/pkg/cookie"
	"github.com/mx-space/authgate/internal/pkg/response"
	"go.uber.org/zap"
)

// POST /auth/logout
func (h *Handler) logout(c *gin.Context) {
	in := h.flowInput(c)
	if _, err := h.flow.Logout(c.Request.Context(), in); err != nil {
		h.log.Error("logout incomplete", zap.Error(err))
		response.InternalError(c, err)
		return
	}
	if wantsJSON(c) {
		response.OK(c, gin.H{"ok": 1, "redirect": "/"})
		return
	}
	c.Redirect(http.StatusSeeOther, "/")
}

// POST /auth/switch
func (h *Handler) switchAccount(c *gin.Context) {
	in := h.flowInput(c)
	res, err := h.flow.Start(c.Request.Context(), in)
	if err != nil {
		if errors.Is(err, switchflow.ErrRevoke) {
			h.log.Error("switch aborted, session not revoked", zap.Error(err))
		}
		response.InternalError(c, err)
		return
	}

	if wantsJSON(c) {
		states := make([]string, 0, len(res.Trace))
		for _, s := range res.Trace {
			states = append(states, string(s))
		}
		response.OK(c, switchResponse{
			Redirect:          res.RedirectURL,
			Outcome:           string(res.Outcome),
			ProviderLogoutURL: res.ProviderLogoutURL,
			States:            states,
		})
		return
	}
	if res.ProviderLogoutURL != "" {
		renderPage(c, http.StatusOK, interstitialTemplate, interstitialData{
			LogoutURL:   res.ProviderLogoutURL,
			RedirectURL: res.RedirectURL,
			TimeoutMS:   res.Timeout.Milliseconds(),
			TimeoutSec:  int((res.Timeout.Milliseconds() + 999) / 1000),
		})
		return
	}
	c.Redirect(http.StatusSeeOther, res.RedirectURL)
}

func (h *Handler) flowInput(c *gin.Context) switchflow.Input {
	var dto flowDTO
	_ = c.ShouldBind(&dto)
	if dto.ReturnTo == "" {
		dto.ReturnTo = c.Query("returnTo")
	}
	if !dto.Forget {
		dto.Forget = c.Query("forget") == "true" || c.Query("forget") == "1"
	}

	in := switchflow.Input{
		SessionID: middleware.CurrentSessionID(c),
		Forget:    dto.Forget,
		ReturnTo:  middleware.SanitizeReturnTo(dto.ReturnTo, h.routes),
		Sink:      sink{c: c, cookies: h.cookies},
	}
	if prev := previousFrom(middleware.CurrentIdentity(c)); prev != nil {
		in.Previous = prev
	}
	return in
}

// previousFrom keeps only the non-secret display fields.
func previousFrom(id middleware.Identity) *cookie.PreviousIdentity {
	switch v := id.(type) {
	case middleware.SignedSession:
		return &cookie.PreviousIdentity{
			Username:    v.Payload.Username,
			DisplayName: v.Payload.DisplayName,
			AvatarURL:   v.Payload.AvatarURL,
		}
	case middleware.LegacyIdentity:
		return &cookie.PreviousIdentity{
			Username:    v.User.Login,
			DisplayName: v.User.Name,
			AvatarURL:   v.User.AvatarURL,
		}
	}
	return nil
}

func wantsJSON(c *gin.Context) bool {
	accept := strings.ToLower(c.GetHeader("Accept"))
	return strings.Contains(accept, "application/json") && !strings.Contains(accept, "text/html")
}
