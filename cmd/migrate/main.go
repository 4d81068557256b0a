package main

import (
	"github.com/erp/bankrec/internal/infrastructure/config"
	"github.com/erp/bankrec/internal/infrastructure/logger"
	"github.com/erp/bankrec/internal/infrastructure/persistence"
	"go.uber.org/zap"
)

// Applies the schema to the configured database and exits. Deployments that
// separate migration from serving run this before starting the server.
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log := logger.New(&cfg.Log)
	defer func() { _ = log.Sync() }()

	db, err := persistence.NewDatabase(&cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() { _ = db.Close() }()

	if err := persistence.Migrate(db.DB); err != nil {
		log.Fatal("Migration failed", zap.Error(err))
	}
	log.Info("Migration complete",
		zap.String("driver", cfg.Database.Driver),
		zap.String("database", cfg.Database.DBName))
}
