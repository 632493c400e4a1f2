package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/kassa/internal/clock"
	"github.com/smallbiznis/kassa/internal/config"
	"github.com/smallbiznis/kassa/internal/migration"
	"github.com/smallbiznis/kassa/internal/observability"
	"github.com/smallbiznis/kassa/internal/scheduler"
	"github.com/smallbiznis/kassa/internal/server"
	"github.com/smallbiznis/kassa/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,
		server.Module,
		scheduler.Module,
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
