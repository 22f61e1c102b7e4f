package usage

import (
	"github.com/smallbiznis/metersync/internal/usage/repository"
	"github.com/smallbiznis/metersync/internal/usage/service"
	"go.uber.org/fx"
)

var Module = fx.Module("usage",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
