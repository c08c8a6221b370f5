package auth

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/mx-space/authgate/internal/middleware"
	"github.com/mx-space/authgate/internal/pkg/response"
	"github.com/mx-space/authgate/internal/pkg/session"
	"go.uber.org/zap"
)

// GET /sessions
func (h *Handler) listSessions(c *gin.Context) {
	current := middleware.CurrentSessionID(c)
	recs, err := h.registry.List(c.Request.Context(), middleware.CurrentSubjectID(c))
	if err != nil {
		response.InternalError(c, err)
		return
	}

	items := make([]sessionView, 0, len(recs))
	for _, r := range recs {
		items = append(items, sessionView{
			ID:         r.ID,
			Device:     r.Device,
			IPAddress:  r.IPAddress,
			CreatedAt:  r.CreatedAt,
			LastUsedAt: r.LastUsedAt,
			ExpiresAt:  r.ExpiresAt,
			Current:    r.ID == current,
		})
	}
	response.OK(c, items)
}

// POST /sessions/revoke {session_id}. Ids that are unknown or belong to
// someone else are reported as revoked without effect.
func (h *Handler) revokeSession(c *gin.Context) {
	var dto revokeSessionDTO
	if err := c.ShouldBind(&dto); err != nil {
		response.BadRequest(c, "session_id is required")
		return
	}
	ctx := c.Request.Context()
	subject := middleware.CurrentSubjectID(c)

	rec, err := h.registry.Get(ctx, dto.SessionID)
	switch {
	case errors.Is(err, session.ErrNotFound):
		response.OK(c, gin.H{"status": true})
		return
	case err != nil:
		response.InternalError(c, err)
		return
	case rec.OwnerSubjectID != subject:
		h.log.Info("foreign session revoke ignored", zap.String("subject", subject))
		response.OK(c, gin.H{"status": true})
		return
	}

	if err := h.registry.Revoke(ctx, dto.SessionID); err != nil {
		response.InternalError(c, err)
		return
	}
	if dto.SessionID == middleware.CurrentSessionID(c) {
		h.cookies.Clear(c.Writer, c.Request)
	}
	response.OK(c, gin.H{"status": true})
}

// DELETE /sessions signs out every other device.
func (h *Handler) revokeOtherSessions(c *gin.Context) {
	err := h.registry.RevokeAllExcept(c.Request.Context(), middleware.CurrentSubjectID(c), middleware.CurrentSessionID(c))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, gin.H{"status": true})
}
