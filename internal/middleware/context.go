package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/mx-space/authgate/internal/pkg/cookie"
	"github.com/mx-space/authgate/internal/pkg/jwt"
)

const (
	ContextKeyIdentity   = "identity"
	ContextKeyRouteClass = "route_class"
)

// Identity is either a SignedSession or a LegacyIdentity.
type Identity interface {
	SubjectID() string
	Username() string
	identity()
}

// SignedSession is an identity proven by a verified session token.
type SignedSession struct {
	Payload jwt.SessionPayload
}

func (s SignedSession) SubjectID() string { return s.Payload.SubjectID }
func (s SignedSession) Username() string  { return s.Payload.Username }
func (SignedSession) identity()           {}

// LegacyIdentity comes from the unsigned pre-migration cookie.
type LegacyIdentity struct {
	User cookie.LegacyUser
}

func (l LegacyIdentity) SubjectID() string { return l.User.ID }
func (l LegacyIdentity) Username() string  { return l.User.Login }
func (LegacyIdentity) identity()           {}

type identityKey struct{}

// WithIdentity returns ctx carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext returns the identity attached by the guard, if any.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok && id != nil
}

func setIdentity(c *gin.Context, id Identity) {
	c.Set(ContextKeyIdentity, id)
	c.Request = c.Request.WithContext(WithIdentity(c.Request.Context(), id))
}

// CurrentIdentity returns the request identity or nil.
func CurrentIdentity(c *gin.Context) Identity {
	v, _ := c.Get(ContextKeyIdentity)
	id, _ := v.(Identity)
	return id
}

// CurrentPayload returns the verified token payload. Legacy identities have
// none.
func CurrentPayload(c *gin.Context) *jwt.SessionPayload {
	if s, ok := CurrentIdentity(c).(SignedSession); ok {
		p := s.Payload
		return &p
	}
	return nil
}

// CurrentSubjectID extracts the authenticated subject from context.
func CurrentSubjectID(c *gin.Context) string {
	if id := CurrentIdentity(c); id != nil {
		return id.SubjectID()
	}
	return ""
}

// CurrentSessionID extracts the registry session id from context.
func CurrentSessionID(c *gin.Context) string {
	if p := CurrentPayload(c); p != nil {
		return p.SessionID
	}
	return ""
}

// IsAuthenticated returns true if the guard attached an identity.
func IsAuthenticated(c *gin.Context) bool {
	return CurrentIdentity(c) != nil
}

// CurrentRouteClass returns the class the guard assigned to the request.
func CurrentRouteClass(c *gin.Context) RouteClass {
	v, _ := c.Get(ContextKeyRouteClass)
	class, _ := v.(RouteClass)
	return class
}
