package clock

import (
	"time"

	"go.uber.org/fx"
)

// Clock abstracts time for the clearing and tiering engines, which both
// derive state from wall-clock boundaries (hold window, month rollover).
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

var Module = fx.Module("clock",
	fx.Provide(func() Clock { return SystemClock{} }),
)
