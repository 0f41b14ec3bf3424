// Package hooks fans identity transitions out to every registered domain.Hooks.
package hooks

import (
	"context"
	"fmt"

	"github.com/smallbiznis/identity/internal/identity/domain"
	"github.com/smallbiznis/identity/internal/observability/logger"
	"github.com/smallbiznis/identity/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	EventLogin    = "login"
	EventLogout   = "logout"
	EventDelete   = "delete"
	EventUndelete = "undelete"
)

type Params struct {
	fx.In

	Log     *zap.Logger
	Metrics *metrics.Metrics `optional:"true"`
	Hooks   []domain.Hooks   `group:"identity_hooks"`
}

// Dispatcher invokes hooks in registration order. Failures are logged and counted, never returned.
type Dispatcher struct {
	log     *zap.Logger
	metrics *metrics.Metrics
	hooks   []domain.Hooks
}

func New(p Params) *Dispatcher {
	return NewDispatcher(p.Log, p.Metrics, p.Hooks...)
}

func NewDispatcher(log *zap.Logger, m *metrics.Metrics, hooks ...domain.Hooks) *Dispatcher {
	registered := make([]domain.Hooks, 0, len(hooks))
	for _, h := range hooks {
		if h != nil {
			registered = append(registered, h)
		}
	}
	return &Dispatcher{
		log:     log.Named("identity.hooks"),
		metrics: m,
		hooks:   registered,
	}
}

func (d *Dispatcher) Login(ctx context.Context, user *domain.User) {
	d.fire(ctx, EventLogin, user, func(h domain.Hooks) error { return h.OnLogin(ctx, user) })
}

func (d *Dispatcher) Logout(ctx context.Context, user *domain.User) {
	d.fire(ctx, EventLogout, user, func(h domain.Hooks) error { return h.OnLogout(ctx, user) })
}

func (d *Dispatcher) Delete(ctx context.Context, snapshot domain.User, opts domain.DeleteOptions) {
	d.fire(ctx, EventDelete, &snapshot, func(h domain.Hooks) error { return h.OnDelete(ctx, snapshot, opts) })
}

func (d *Dispatcher) Undelete(ctx context.Context, user *domain.User) {
	d.fire(ctx, EventUndelete, user, func(h domain.Hooks) error { return h.OnUndelete(ctx, user) })
}

func (d *Dispatcher) fire(ctx context.Context, event string, user *domain.User, call func(domain.Hooks) error) {
	if d == nil {
		return
	}
	for _, h := range d.hooks {
		if err := invoke(h, call); err != nil {
			d.metrics.RecordHookFailure(ctx, event)
			var userID int64
			if user != nil {
				userID = user.ID.Int64()
			}
			logger.WithContext(ctx, d.log).Warn("identity hook failed",
				zap.String("event", event),
				zap.String("hook", fmt.Sprintf("%T", h)),
				zap.Int64("user_id", userID),
				zap.Error(err),
			)
		}
	}
}

// invoke turns a panicking hook into an error so later hooks still run.
func invoke(h domain.Hooks, call func(domain.Hooks) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("hook panicked: %v", r)
		}
	}()
	return call(h)
}
