package tracking

import (
	"github.com/smallbiznis/affiliate/internal/tracking/repository"
	"github.com/smallbiznis/affiliate/internal/tracking/service"
	"go.uber.org/fx"
)

var Module = fx.Module("tracking.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
