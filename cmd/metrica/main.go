package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/datavista/metrica/internal/config"
	"github.com/datavista/metrica/internal/migration"
	"github.com/datavista/metrica/internal/observability"
	"github.com/datavista/metrica/internal/server"
	"github.com/datavista/metrica/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
