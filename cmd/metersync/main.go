package main

import (
	"github.com/smallbiznis/metersync/internal/cache"
	"github.com/smallbiznis/metersync/internal/clock"
	"github.com/smallbiznis/metersync/internal/config"
	"github.com/smallbiznis/metersync/internal/contract"
	"github.com/smallbiznis/metersync/internal/gateway"
	"github.com/smallbiznis/metersync/internal/logger"
	"github.com/smallbiznis/metersync/internal/migration"
	"github.com/smallbiznis/metersync/internal/server"
	syncpkg "github.com/smallbiznis/metersync/internal/sync"
	"github.com/smallbiznis/metersync/internal/usage"
	"github.com/smallbiznis/metersync/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		logger.Module,
		clock.Module,
		db.Module,
		migration.Module,

		// Domains
		usage.Module,
		contract.Module,
		gateway.Module,
		cache.Module,
		syncpkg.Module,

		// HTTP surface
		server.Module,
	)
	app.Run()
}
