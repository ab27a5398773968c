package main

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"

	"github.com/smallbiznis/flexwatch/internal/clock"
	"github.com/smallbiznis/flexwatch/internal/config"
	"github.com/smallbiznis/flexwatch/internal/logger"
	"github.com/smallbiznis/flexwatch/internal/server"
	"github.com/smallbiznis/flexwatch/pkg/db"
)

func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
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
