package contract

import (
	"github.com/smallbiznis/metersync/internal/contract/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("contract",
	fx.Provide(repository.Provide),
)
