package migration

import (
	"context"

	"github.com/smallbiznis/identity/internal/clock"
	"github.com/smallbiznis/identity/internal/seed"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, clk clock.Clock) error {
		if err := Migrate(conn); err != nil {
			return err
		}
		return seed.EnsureReservedUsers(context.Background(), conn, clk)
	}),
)
