// Package app assembles the authgate HTTP server from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/mx-space/authgate/internal/config"
	"github.com/mx-space/authgate/internal/middleware"
	"github.com/mx-space/authgate/internal/modules/auth/switchflow"
	"github.com/mx-space/authgate/internal/pkg/cookie"
	pkgcron "github.com/mx-space/authgate/internal/pkg/cron"
	"github.com/mx-space/authgate/internal/pkg/jwt"
	"github.com/mx-space/authgate/internal/pkg/session"
	"github.com/mx-space/authgate/internal/pkg/telemetry"
	"go.uber.org/zap"
)

const (
	serviceName = "authgate"
	tokenIssuer = "authgate"
)

// App holds all application dependencies.
type App struct {
	cfg      *config.Config
	router   *gin.Engine
	logger   *zap.Logger
	registry session.Registry
	sched    *pkgcron.Scheduler
	cancel   context.CancelFunc
	closers  []func(context.Context) error
}

// New initializes the application: telemetry, registry, codec, routes and
// the prune job.
func New(ctx context.Context, logger *zap.Logger, cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{cfg: cfg, logger: logger}

	shutdownTracing, err := telemetry.Setup(ctx, serviceName, cfg.Telemetry.OTLPEndpoint)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	a.closers = append(a.closers, shutdownTracing)

	store, err := openRegistry(ctx, cfg, logger)
	if err != nil {
		a.close(context.Background())
		return nil, fmt.Errorf("registry: %w", err)
	}
	a.closers = append(a.closers, store.close)
	a.registry = session.Traced(store.registry, cfg.Registry.Driver)

	codec, err := NewCodec(cfg)
	if err != nil {
		a.close(context.Background())
		return nil, err
	}

	if cfg.IsDev() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.HandleMethodNotAllowed = true
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(logger))
	router.Use(cors.New(corsConfig(cfg)))
	a.router = router

	a.sched = pkgcron.New(logger)
	if err := registerCronJobs(a.sched, a.registry, logger); err != nil {
		a.close(context.Background())
		return nil, err
	}
	runCtx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	a.sched.Start(runCtx)

	a.registerRoutes(codec, store.redis)
	return a, nil
}

// NewCodec builds the token codec from cfg.
func NewCodec(cfg *config.Config) (*jwt.Codec, error) {
	codec, err := jwt.NewCodec(
		jwt.Keys{Current: cfg.Token.Secret, Previous: cfg.Token.PreviousSecret},
		jwt.WithTTL(cfg.Token.TTL),
		jwt.WithIssuer(tokenIssuer),
	)
	if err != nil {
		return nil, fmt.Errorf("token codec: %w", err)
	}
	return codec, nil
}

func newCookies(cfg *config.Config, ttl time.Duration) *cookie.Transport {
	t := cookie.New(ttl)
	t.Name = cfg.Cookie.Name
	t.PreviousName = cfg.Cookie.PreviousName
	t.Domain = cfg.Cookie.Domain
	t.InsecureDev = cfg.Cookie.InsecureDev
	if cfg.Legacy.CookieName != "" {
		t.LegacyName = cfg.Legacy.CookieName
	}
	return t
}

func newRoutes(cfg *config.Config) middleware.Routes {
	return middleware.Routes{
		Protected: cfg.Routes.Protected,
		AuthOnly:  cfg.Routes.AuthOnly,
		LoginPath: cfg.Routes.LoginPath,
	}
}

func newFlow(cfg *config.Config, registry session.Registry, logger *zap.Logger) *switchflow.Flow {
	client := &http.Client{Timeout: cfg.Switch.LogoutTimeout}
	return switchflow.New(switchflow.Config{
		Revoker: registry,
		Logout:  switchflow.FromMode(cfg.Switch.LogoutMode, cfg.GitHub.LogoutURL, client),
		Timeout: cfg.Switch.LogoutTimeout,
		Logger:  logger,
	})
}

// Addr returns the listen address.
func (a *App) Addr() string { return fmt.Sprintf(":%d", a.cfg.Port) }

// Router returns the HTTP handler.
func (a *App) Router() http.Handler { return a.router }

// Registry returns the traced session registry.
func (a *App) Registry() session.Registry { return a.registry }

// Shutdown stops the prune job and releases connections.
func (a *App) Shutdown(ctx context.Context) {
	if a.cancel != nil {
		a.cancel()
		a.sched.Wait()
	}
	a.close(ctx)
}

func (a *App) close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			a.logger.Warn("shutdown step failed", zap.Error(err))
		}
	}
	a.closers = nil
}
