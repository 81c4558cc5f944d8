package metric

import (
	"github.com/datavista/metrica/internal/metric/repository"
	"github.com/datavista/metrica/internal/metric/service"
	"go.uber.org/fx"
)

var Module = fx.Module("metric.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
