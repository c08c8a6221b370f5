package auth

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mx-space/authgate/internal/pkg/cookie"
	"github.com/mx-space/authgate/internal/pkg/jwt"
	"github.com/mx-space/authgate/internal/pkg/session"
	"go.uber.org/zap"
)

// Service issues sessions: a registry record, a signed token bound to it and
// the cookie carrying the token.
type Service struct {
	codec    *jwt.Codec
	cookies  *cookie.Transport
	registry session.Registry
	log      *zap.Logger
	now      func() time.Time
}

func NewService(codec *jwt.Codec, cookies *cookie.Transport, registry session.Registry, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{codec: codec, cookies: cookies, registry: registry, log: log, now: time.Now}
}

// Establish registers a session for p and writes its cookie. It satisfies
// middleware.Establisher.
func (s *Service) Establish(c *gin.Context, p jwt.SessionPayload) (*jwt.SessionPayload, error) {
	ctx := c.Request.Context()
	ttl := s.codec.TTL()

	sid, err := s.registry.Create(ctx, &session.Record{
		OwnerSubjectID: p.SubjectID,
		Device:         session.ParseDevice(c.Request.UserAgent()),
		IPAddress:      c.ClientIP(),
		ExpiresAt:      s.now().Add(ttl),
	})
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	p.SessionID = sid
	token, issued, err := s.codec.Issue(p, ttl)
	if err != nil {
		if rerr := s.registry.Revoke(ctx, sid); rerr != nil {
			s.log.Warn("orphan session not revoked", zap.String("sid", sid), zap.Error(rerr))
		}
		return nil, fmt.Errorf("issue token: %w", err)
	}
	s.cookies.Write(c.Writer, c.Request, token)
	return &issued, nil
}

// sink applies switch-flow cookie effects to one request.
type sink struct {
	c       *gin.Context
	cookies *cookie.Transport
}

func (s sink) ClearSession() {
	s.cookies.Clear(s.c.Writer, s.c.Request)
	s.cookies.ClearLegacy(s.c.Writer, s.c.Request)
}

func (s sink) SavePrevious(rec cookie.PreviousIdentity) error {
	return s.cookies.WritePrevious(s.c.Writer, s.c.Request, rec)
}

func (s sink) ForgetPrevious() {
	s.cookies.ClearPrevious(s.c.Writer, s.c.Request)
}
