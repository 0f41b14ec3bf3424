package resolver

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/identity/internal/observability/logger"
	"github.com/smallbiznis/identity/internal/session/cookie"
	"github.com/smallbiznis/identity/internal/session/domain"
	"github.com/smallbiznis/identity/internal/session/manager"
	"go.uber.org/zap"
)

const (
	StrategyActiveSession    = "active_session"
	StrategyPersistentCookie = "persistent_cookie"
	StrategyGuest            = "guest"
)

// Input is what a strategy may look at.
type Input struct {
	Request domain.Request
	Session *manager.Session
	Jar     cookie.Jar
}

// Strategy resolves a user id or lets the next strategy try.
type Strategy interface {
	Name() string
	Resolve(ctx context.Context, r *Resolver, in Input) (snowflake.ID, bool)
}

// DefaultStrategies is the precedence used in production: the session's bound user,
// then a remember-me cookie. The guest is the implicit last resort.
func DefaultStrategies() []Strategy {
	return []Strategy{ActiveSession{}, PersistentCookie{}}
}

// ActiveSession uses the user already bound to a live session.
type ActiveSession struct{}

func (ActiveSession) Name() string { return StrategyActiveSession }

func (ActiveSession) Resolve(_ context.Context, _ *Resolver, in Input) (snowflake.ID, bool) {
	if in.Session == nil || in.Session.Destroyed() || in.Session.UserID <= 0 {
		return 0, false
	}
	return in.Session.UserID, true
}

// PersistentCookie promotes a valid remember-me token into the interactive session.
type PersistentCookie struct{}

func (PersistentCookie) Name() string { return StrategyPersistentCookie }

func (PersistentCookie) Resolve(ctx context.Context, r *Resolver, in Input) (snowflake.ID, bool) {
	token, ok := in.Request.Cookie(r.manager.PersistentCookieName())
	if !ok || !manager.ValidToken(token) || in.Session == nil || in.Session.Destroyed() {
		return 0, false
	}

	log := logger.WithContext(ctx, r.log)
	rec, err := r.sessions.FindPersistent(ctx, token)
	if err != nil {
		log.Warn("persistent login lookup failed", zap.Error(err))
		return 0, false
	}
	if !rec.HasUser() {
		return 0, false
	}

	userID := *rec.UserID
	if err := r.Login(ctx, in.Session, in.Jar, userID, false); err != nil {
		log.Warn("persistent login promotion failed", zap.Error(err))
		return 0, false
	}
	return userID, true
}
