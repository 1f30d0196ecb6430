package clearing

import (
	"github.com/smallbiznis/affiliate/internal/clearing/service"
	"go.uber.org/fx"
)

var Module = fx.Module("clearing.service",
	fx.Provide(service.New),
)
