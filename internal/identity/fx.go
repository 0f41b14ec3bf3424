package identity

import (
	"github.com/smallbiznis/identity/internal/identity/hooks"
	"github.com/smallbiznis/identity/internal/identity/preference"
	"github.com/smallbiznis/identity/internal/identity/service"
	"go.uber.org/fx"
)

var Module = fx.Module("identity",
	fx.Provide(hooks.New),
	fx.Provide(service.New),
	fx.Provide(preference.NewFactory),
)
