package usage

import (
	"github.com/datavista/metrica/internal/usage/repository"
	"github.com/datavista/metrica/internal/usage/service"
	"go.uber.org/fx"
)

var Module = fx.Module("usage.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
