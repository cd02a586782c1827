package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/gigvault/escrow/internal/migration"
	"github.com/gigvault/escrow/internal/observability"
	"github.com/gigvault/escrow/internal/server"
	"github.com/gigvault/escrow/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
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
