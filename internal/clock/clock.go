package clock

import (
	"time"

	"go.uber.org/fx"
)

// Clock supplies the current time. Session expiry and audit timestamps read from it.
type Clock interface {
	Now() time.Time
}

// System reads the wall clock in UTC.
type System struct{}

func (System) Now() time.Time {
	return time.Now().UTC()
}

var Module = fx.Module("clock",
	fx.Provide(func() Clock { return System{} }),
)
