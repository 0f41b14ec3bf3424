package audit

import (
	"github.com/smallbiznis/identity/internal/audit/hooks"
	"github.com/smallbiznis/identity/internal/audit/repository"
	"github.com/smallbiznis/identity/internal/audit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("audit.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
	fx.Provide(hooks.Provide),
)
