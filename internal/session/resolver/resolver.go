// Package resolver decides who the caller of a request is and runs login and logout.
package resolver

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/identity/internal/clock"
	"github.com/smallbiznis/identity/internal/config"
	identitydomain "github.com/smallbiznis/identity/internal/identity/domain"
	"github.com/smallbiznis/identity/internal/identity/hooks"
	"github.com/smallbiznis/identity/internal/identity/preference"
	"github.com/smallbiznis/identity/internal/observability/logger"
	"github.com/smallbiznis/identity/internal/observability/metrics"
	"github.com/smallbiznis/identity/internal/session/cookie"
	"github.com/smallbiznis/identity/internal/session/domain"
	"github.com/smallbiznis/identity/internal/session/manager"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log      *zap.Logger
	Sessions domain.Repository
	Manager  *manager.Manager
	Users    identitydomain.Service
	Prefs    *preference.Factory
	Hooks    *hooks.Dispatcher
	Config   *config.SessionConfigHolder
	Clock    clock.Clock
	Metrics  *metrics.Metrics `optional:"true"`
}

type Resolver struct {
	log        *zap.Logger
	sessions   domain.Repository
	manager    *manager.Manager
	users      identitydomain.Service
	prefs      *preference.Factory
	hooks      *hooks.Dispatcher
	cfg        *config.SessionConfigHolder
	clock      clock.Clock
	metrics    *metrics.Metrics
	strategies []Strategy
}

func New(p Params) *Resolver {
	return &Resolver{
		log:        p.Log.Named("session.resolver"),
		sessions:   p.Sessions,
		manager:    p.Manager,
		users:      p.Users,
		prefs:      p.Prefs,
		hooks:      p.Hooks,
		cfg:        p.Config,
		clock:      p.Clock,
		metrics:    p.Metrics,
		strategies: DefaultStrategies(),
	}
}

// WithStrategies returns a copy of r using the given precedence.
func (r *Resolver) WithStrategies(strategies ...Strategy) *Resolver {
	clone := *r
	clone.strategies = strategies
	return &clone
}

// Resolve determines the caller. It never fails: lookups that error degrade to the guest.
func (r *Resolver) Resolve(ctx context.Context, req domain.Request, sess *manager.Session, jar cookie.Jar) *Caller {
	in := Input{Request: req, Session: sess, Jar: jar}

	userID, strategy := identitydomain.GuestID, StrategyGuest
	for _, s := range r.strategies {
		if id, ok := s.Resolve(ctx, r, in); ok && id > 0 {
			userID, strategy = id, s.Name()
			break
		}
	}

	user := r.loadOrGuest(ctx, userID)
	r.metrics.RecordResolution(ctx, strategy)

	return &Caller{
		User:     user,
		LoggedIn: isLoggedIn(user.ID),
		Strategy: strategy,
		Prefs:    r.prefs.For(user.ID),
		session:  sess,
		request:  req,
		jar:      jar,
		resolver: r,
	}
}

// Login binds userID to the interactive session. With persistent it first stores a
// remember-me token; if that fails the session is left as it was.
func (r *Resolver) Login(ctx context.Context, sess *manager.Session, jar cookie.Jar, userID snowflake.ID, persistent bool) error {
	if sess == nil || sess.Destroyed() {
		return domain.ErrInvalidSession
	}
	if persistent {
		if !isLoggedIn(userID) {
			return identitydomain.ErrInvalidUserID
		}
		token, err := manager.NewToken()
		if err != nil {
			return fmt.Errorf("generate persistent token: %w", err)
		}
		ttl := r.cfg.Get().PersistentTTL
		if err := r.sessions.CreatePersistent(ctx, token, userID, ttl); err != nil {
			return err
		}
		now := r.clock.Now()
		jar.Set(r.manager.Policy().Set(r.manager.PersistentCookieName(), token, now, now.Add(ttl)))
	}

	sess.UserID = userID
	r.metrics.RecordLogin(ctx, persistent)
	logger.WithContext(ctx, r.log).Info("session bound to user",
		zap.Int64("user_id", userID.Int64()),
		zap.Bool("persistent", persistent),
	)
	return nil
}

// Logout destroys the interactive session and the presented remember-me token.
// With everywhere it also deletes every session row of the user. Every step runs even if
// an earlier one fails; the failures are returned together.
func (r *Resolver) Logout(ctx context.Context, sess *manager.Session, req domain.Request, jar cookie.Jar, everywhere bool) error {
	var userID snowflake.ID
	if sess != nil {
		userID = sess.UserID
	}

	var errs []error
	if err := r.manager.Destroy(ctx, sess, jar); err != nil {
		errs = append(errs, fmt.Errorf("destroy session: %w", err))
	}

	persistName := r.manager.PersistentCookieName()
	if token, ok := req.Cookie(persistName); ok {
		if _, err := r.sessions.DeletePersistent(ctx, token); err != nil {
			errs = append(errs, fmt.Errorf("delete persistent login: %w", err))
		}
		jar.Set(r.manager.Policy().Clear(persistName))
	}

	if everywhere && userID > 0 {
		n, err := r.sessions.DeleteByUser(ctx, userID)
		if err != nil {
			errs = append(errs, fmt.Errorf("revoke user sessions: %w", err))
		} else {
			logger.WithContext(ctx, r.log).Info("revoked all sessions",
				zap.Int64("user_id", userID.Int64()),
				zap.Int64("deleted", n),
			)
		}
	}

	r.metrics.RecordLogout(ctx, everywhere)
	return errors.Join(errs...)
}

func (r *Resolver) loadOrGuest(ctx context.Context, userID snowflake.ID) *identitydomain.User {
	if userID != identitydomain.GuestID {
		user, err := r.users.Load(ctx, userID)
		switch {
		case err == nil && !user.Deleted:
			return user
		case err != nil && !errors.Is(err, identitydomain.ErrUserNotFound):
			logger.WithContext(ctx, r.log).Warn("load resolved user failed", zap.Error(err))
		}
		userID = identitydomain.GuestID
	}

	guest, err := r.users.Load(ctx, identitydomain.GuestID)
	if err != nil {
		return &identitydomain.User{ID: identitydomain.GuestID, Username: "guest", NameFull: "Guest"}
	}
	return guest
}

func isLoggedIn(id snowflake.ID) bool {
	return id > 0 && id != identitydomain.GuestID
}
