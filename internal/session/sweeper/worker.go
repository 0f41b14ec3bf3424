// Package sweeper deletes expired session rows in the background.
package sweeper

import (
	"context"
	"time"

	"github.com/smallbiznis/identity/internal/config"
	obscontext "github.com/smallbiznis/identity/internal/observability/context"
	"github.com/smallbiznis/identity/internal/observability/logger"
	"github.com/smallbiznis/identity/internal/observability/metrics"
	"github.com/smallbiznis/identity/internal/ratelimit"
	"github.com/smallbiznis/identity/internal/session/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Lock keeps replicas from sweeping at the same time.
type Lock interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	Release(ctx context.Context, key, token string) error
}

type Params struct {
	fx.In

	Log     *zap.Logger
	Handler domain.Handler
	Session *config.SessionConfigHolder
	Locker  *ratelimit.Locker       `optional:"true"`
	Metrics *metrics.SweeperMetrics `optional:"true"`
	Config  Config                  `optional:"true"`
}

type Worker struct {
	log     *zap.Logger
	handler domain.Handler
	session *config.SessionConfigHolder
	lock    Lock
	metrics *metrics.SweeperMetrics
	cfg     Config
}

func NewWorker(p Params) *Worker {
	var lock Lock
	if p.Locker != nil {
		lock = p.Locker
	}
	return newWorker(p, lock)
}

func newWorker(p Params, lock Lock) *Worker {
	return &Worker{
		log:     p.Log.Named("session.sweeper"),
		handler: p.Handler,
		session: p.Session,
		lock:    lock,
		metrics: p.Metrics,
		cfg:     p.Config.withDefaults(),
	}
}

// RunForever sweeps once per configured interval until ctx is done.
func (w *Worker) RunForever(ctx context.Context) {
	timer := time.NewTimer(w.interval())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		if _, err := w.RunOnce(ctx); err != nil {
			w.log.Warn("session sweep failed", zap.Error(err))
		}
		timer.Reset(w.interval())
	}
}

// RunOnce deletes expired rows unless another replica holds the sweep lock.
// It returns the number of rows removed.
func (w *Worker) RunOnce(parentCtx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(parentCtx, w.cfg.RunTimeout)
	defer cancel()
	ctx, _ = obscontext.EnsureCorrelationID(ctx)
	log := logger.WithContext(ctx, w.log)

	started := time.Now()
	cfg := w.session.Get()

	if w.lock != nil {
		token, ok, err := w.lock.TryLock(ctx, lockKey, cfg.GCLockTTL)
		if err != nil {
			w.fail(started, err)
			return 0, err
		}
		if !ok {
			w.metrics.ObserveRun(metrics.SweepOutcomeSkipped, time.Since(started), 0)
			log.Debug("session sweep skipped; lock held elsewhere")
			return 0, nil
		}
		defer func() {
			if err := w.lock.Release(context.WithoutCancel(ctx), lockKey, token); err != nil {
				log.Warn("release session sweep lock", zap.Error(err))
			}
		}()
	}

	deleted, err := w.handler.GC(ctx, cfg.TTL)
	if err != nil {
		w.fail(started, err)
		return 0, err
	}

	w.metrics.ObserveRun(metrics.SweepOutcomeSwept, time.Since(started), deleted)
	if deleted > 0 {
		log.Info("expired sessions swept", zap.Int64("deleted", deleted))
	}
	return deleted, nil
}

func (w *Worker) fail(started time.Time, err error) {
	w.metrics.ObserveRun(metrics.SweepOutcomeFailed, time.Since(started), 0)
	w.metrics.ObserveError(err)
}

func (w *Worker) interval() time.Duration {
	if d := w.session.Get().GCInterval; d > 0 {
		return d
	}
	return config.DefaultGCInterval
}
