package audit

import (
	"github.com/datavista/metrica/internal/audit/repository"
	"github.com/datavista/metrica/internal/audit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("audit.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
