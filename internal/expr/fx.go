package expr

import (
	"github.com/datavista/metrica/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("expr.validator",
	fx.Provide(func(cfg config.Config) Validator {
		return NewSyntacticValidator(cfg.ExpressionMaxLength)
	}),
)
