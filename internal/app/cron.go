package app

import (
	"context"
	"time"

	pkgcron "github.com/mx-space/authgate/internal/pkg/cron"
	"github.com/mx-space/authgate/internal/pkg/session"
	"go.uber.org/zap"
)

const (
	pruneJob      = "session_prune"
	pruneInterval = 10 * time.Minute
	pruneTimeout  = time.Minute
)

func registerCronJobs(sched *pkgcron.Scheduler, registry session.Registry, logger *zap.Logger) error {
	cronLogger := logger.Named("cron")
	return sched.Register(pkgcron.Job{
		Name:        pruneJob,
		Description: "Delete expired sessions",
		Interval:    pruneInterval,
		Timeout:     pruneTimeout,
		Fn: func(ctx context.Context) error {
			n, err := registry.Prune(ctx)
			if err != nil {
				return err
			}
			if n > 0 {
				cronLogger.Info("expired sessions pruned", zap.Int64("count", n))
			}
			return nil
		},
	})
}
