package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mx-space/authgate/internal/pkg/cookie"
	"github.com/mx-space/authgate/internal/pkg/jwt"
	"github.com/mx-space/authgate/internal/pkg/response"
	"github.com/mx-space/authgate/internal/pkg/session"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// LegacyPolicy controls the unsigned-cookie fallback. It is off once Until
// has passed, and off when Until is zero.
type LegacyPolicy struct {
	Enabled bool
	Until   time.Time
}

// Establisher turns a verified identity into a signed, registered session
// and writes its cookie. The guard uses it to upgrade legacy cookies.
type Establisher interface {
	Establish(c *gin.Context, p jwt.SessionPayload) (*jwt.SessionPayload, error)
}

// GuardConfig wires the route guard.
type GuardConfig struct {
	Codec   *jwt.Codec
	Cookies *cookie.Transport
	// Registry is consulted for tokens carrying a session id. Nil skips the
	// liveness check.
	Registry session.Registry
	Routes   Routes
	Legacy   LegacyPolicy
	// Upgrade, when set, replaces a legacy cookie with a signed session.
	Upgrade Establisher
	Logger  *zap.Logger
	Now     func() time.Time
}

type guard struct {
	GuardConfig
}

// Guard classifies every request and gates Protected and AuthOnly paths.
// Any identity it resolves is attached to the gin and request contexts,
// including on Public paths.
func Guard(cfg GuardConfig) gin.HandlerFunc {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	g := &guard{GuardConfig: cfg}
	tracer := otel.Tracer("github.com/mx-space/authgate/internal/middleware")

	return func(c *gin.Context) {
		class := g.Routes.Classify(c.Request.URL.Path)
		c.Set(ContextKeyRouteClass, class)

		ctx, span := tracer.Start(c.Request.Context(), "authgate.guard")
		c.Request = c.Request.WithContext(ctx)
		id := g.authenticate(c)
		span.SetAttributes(
			attribute.String("route.class", class.String()),
			attribute.Bool("auth.authenticated", id != nil),
		)
		span.End()

		if id != nil {
			setIdentity(c, id)
		}

		switch class {
		case Protected:
			if id == nil {
				g.deny(c)
				return
			}
		case AuthOnly:
			if id != nil {
				c.Redirect(http.StatusFound, SanitizeReturnTo(c.Query("returnTo"), g.Routes))
				c.Abort()
				return
			}
		}
		c.Next()
	}
}

// RequireAuth rejects requests the guard left unauthenticated. It is meant
// for API groups that should answer 401 regardless of route class.
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !IsAuthenticated(c) {
			response.Unauthorized(c)
			return
		}
		c.Next()
	}
}

// RequireSignedSession is RequireAuth for handlers that need a registry
// session id, such as session management.
func RequireSignedSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		if CurrentPayload(c) == nil {
			response.Unauthorized(c)
			return
		}
		c.Next()
	}
}

func (g *guard) authenticate(c *gin.Context) Identity {
	if token := g.extractToken(c); token != "" {
		p, err := g.Codec.Verify(token)
		if err != nil {
			g.Logger.Debug("session token rejected", zap.String("kind", string(jwt.KindOf(err))))
		} else if g.live(c, p) {
			return SignedSession{Payload: *p}
		}
	}
	return g.legacy(c)
}

// live checks the registry for tokens bound to a session. Storage errors
// deny access; touch errors are only logged.
func (g *guard) live(c *gin.Context, p *jwt.SessionPayload) bool {
	if g.Registry == nil || p.SessionID == "" {
		return true
	}
	ctx := c.Request.Context()
	ok, err := session.Active(ctx, g.Registry, p.SessionID, p.SubjectID)
	if err != nil {
		g.Logger.Warn("session lookup failed", zap.String("sid", p.SessionID), zap.Error(err))
		return false
	}
	if !ok {
		g.Logger.Debug("session not active", zap.String("sid", p.SessionID))
		return false
	}
	if err := g.Registry.Touch(ctx, p.SessionID); err != nil {
		g.Logger.Warn("session touch failed", zap.String("sid", p.SessionID), zap.Error(err))
	}
	return true
}

func (g *guard) legacy(c *gin.Context) Identity {
	if !g.Legacy.Enabled || !g.Now().Before(g.Legacy.Until) {
		return nil
	}
	u, ok := g.Cookies.ReadLegacy(c.Request)
	if !ok {
		return nil
	}
	if g.Upgrade != nil {
		p, err := g.Upgrade.Establish(c, jwt.SessionPayload{
			SubjectID:   u.ID,
			Username:    u.Login,
			DisplayName: u.Name,
			AvatarURL:   u.AvatarURL,
			ProfileURL:  "https://github.com/" + u.Login,
		})
		if err == nil {
			g.Cookies.ClearLegacy(c.Writer, c.Request)
			g.Logger.Info("legacy session upgraded", zap.String("subject", u.ID))
			return SignedSession{Payload: *p}
		}
		g.Logger.Warn("legacy session upgrade failed", zap.String("subject", u.ID), zap.Error(err))
	}
	return LegacyIdentity{User: u}
}

// deny sends browsers to the login page and answers API clients with 401.
func (g *guard) deny(c *gin.Context) {
	if wantsRedirect(c.Request) {
		c.Redirect(http.StatusFound, g.Routes.LoginURL(c.Request.URL.RequestURI()))
		c.Abort()
		return
	}
	response.Unauthorized(c)
}

func (g *guard) extractToken(c *gin.Context) string {
	if token, ok := g.Cookies.Read(c.Request); ok {
		return token
	}
	return NormalizeToken(c.GetHeader("Authorization"))
}

// NormalizeToken trims spaces and strips optional Bearer prefix.
func NormalizeToken(raw string) string {
	token := strings.TrimSpace(raw)
	if token == "" {
		return ""
	}
	if strings.HasPrefix(strings.ToLower(token), "bearer ") {
		return strings.TrimSpace(token[7:])
	}
	return token
}

func wantsRedirect(r *http.Request) bool {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		return false
	}
	accept := strings.ToLower(r.Header.Get("Accept"))
	if accept == "" || strings.Contains(accept, "text/html") {
		return true
	}
	return !strings.Contains(accept, "application/json")
}

var errNoEstablisher = errors.New("no session establisher configured")

// EstablishFunc adapts a function to Establisher.
type EstablishFunc func(c *gin.Context, p jwt.SessionPayload) (*jwt.SessionPayload, error)

func (f EstablishFunc) Establish(c *gin.Context, p jwt.SessionPayload) (*jwt.SessionPayload, error) {
	if f == nil {
		return nil, errNoEstablisher
	}
	return f(c, p)
}
