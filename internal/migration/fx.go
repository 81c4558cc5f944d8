package migration

import (
	auditdomain "github.com/datavista/metrica/internal/audit/domain"
	"github.com/datavista/metrica/internal/config"
	metricdomain "github.com/datavista/metrica/internal/metric/domain"
	usagedomain "github.com/datavista/metrica/internal/usage/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType == "postgres" {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			return RunMigrations(sqlDB)
		}

		// Versioned migrations target postgres; other dialects (sqlite in
		// local development) get the schema straight from the models.
		return conn.AutoMigrate(
			&metricdomain.MetricDefinition{},
			&usagedomain.MetricUsage{},
			&auditdomain.AuditLog{},
		)
	}),
)
