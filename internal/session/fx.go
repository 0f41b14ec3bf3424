package session

import (
	identitydomain "github.com/smallbiznis/identity/internal/identity/domain"
	"github.com/smallbiznis/identity/internal/session/cookie"
	"github.com/smallbiznis/identity/internal/session/domain"
	"github.com/smallbiznis/identity/internal/session/manager"
	"github.com/smallbiznis/identity/internal/session/resolver"
	"github.com/smallbiznis/identity/internal/session/store"
	"github.com/smallbiznis/identity/internal/session/sweeper"
	"go.uber.org/fx"
)

var Module = fx.Module("session",
	fx.Provide(store.New),
	fx.Provide(
		asRepository,
		asHandler,
		asRevoker,
	),
	fx.Provide(cookie.NewPolicy),
	fx.Provide(manager.New),
	fx.Provide(resolver.New),
	sweeper.Module,
)

func asRepository(s *store.Store) domain.Repository { return s }

func asHandler(s *store.Store) domain.Handler { return s }

func asRevoker(s *store.Store) identitydomain.SessionRevoker { return s }
