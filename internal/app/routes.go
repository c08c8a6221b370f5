package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mx-space/authgate/internal/middleware"
	"github.com/mx-space/authgate/internal/modules/auth"
	"github.com/mx-space/authgate/internal/pkg/jwt"
	"github.com/mx-space/authgate/internal/pkg/response"
	"github.com/mx-space/authgate/internal/pkg/session"
	"github.com/redis/go-redis/v9"
)

const healthProbeID = "healthz-probe"

func (a *App) registerRoutes(codec *jwt.Codec, rdb *redis.Client) {
	r := a.router
	cfg := a.cfg

	r.NoRoute(func(c *gin.Context) {
		response.NotFound(c)
	})
	r.NoMethod(func(c *gin.Context) {
		response.MethodNotAllowed(c)
	})

	cookies := newCookies(cfg, codec.TTL())
	routes := newRoutes(cfg)
	svc := auth.NewService(codec, cookies, a.registry, a.logger)

	guardCfg := middleware.GuardConfig{
		Codec:    codec,
		Cookies:  cookies,
		Registry: a.registry,
		Routes:   routes,
		Legacy:   middleware.LegacyPolicy{Enabled: cfg.Legacy.Enabled, Until: cfg.Legacy.UntilTime},
		Logger:   a.logger,
	}
	if cfg.Legacy.Upgrade {
		guardCfg.Upgrade = svc
	}

	r.GET("/healthz", a.health)
	r.Use(middleware.Guard(guardCfg))

	var debug *auth.DebugInfo
	if cfg.IsDev() {
		debug = &auth.DebugInfo{
			Env:                      cfg.Env,
			SecretConfigured:         cfg.Token.Secret != "",
			PreviousSecretConfigured: cfg.Token.PreviousSecret != "",
			ProviderConfigured:       cfg.GitHub.ClientID != "" && cfg.GitHub.ClientSecret != "",
			RegistryDriver:           cfg.Registry.Driver,
			LegacyFallback:           cfg.Legacy.Enabled,
		}
	}

	handler := auth.NewHandler(auth.Options{
		Service:  svc,
		Codec:    codec,
		Cookies:  cookies,
		Registry: a.registry,
		Provider: auth.NewGitHubProvider(auth.GitHubConfig{
			ClientID:     cfg.GitHub.ClientID,
			ClientSecret: cfg.GitHub.ClientSecret,
			RedirectURL:  cfg.GitHub.RedirectURI,
			Scopes:       cfg.GitHub.Scopes,
			LogoutURL:    cfg.GitHub.LogoutURL,
		}),
		Flow:   newFlow(cfg, a.registry, a.logger),
		Routes: routes,
		Debug:  debug,
		Logger: a.logger,
	})
	handler.RegisterRoutes(r, middleware.RateLimit(middleware.RateLimitConfig{
		Redis:     rdb,
		PerSecond: cfg.RateLimit.PerSecond,
		Burst:     cfg.RateLimit.Burst,
		Logger:    a.logger,
	}))
}

// GET /healthz reports whether the session registry answers.
func (a *App) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	registry := "ok"
	if _, err := a.registry.Get(ctx, healthProbeID); err != nil && !errors.Is(err, session.ErrNotFound) {
		status = http.StatusServiceUnavailable
		registry = "unavailable"
	}
	c.JSON(status, gin.H{
		"status":   http.StatusText(status),
		"registry": registry,
		"driver":   a.cfg.Registry.Driver,
		"jobs":     a.sched.List(),
	})
}
