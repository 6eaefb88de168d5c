package main

import (
	"flag"
	"io/fs"
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/coldorg/coldbot/backend/internal/config"
	"github.com/coldorg/coldbot/backend/internal/database"
	"github.com/coldorg/coldbot/backend/internal/migration"
	"github.com/coldorg/coldbot/backend/pkg/utils"
)

var dir = flag.String("dir", "", "Read migrations from this directory instead of the embedded set")

func main() {
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logger := utils.InitLogger(cfg.Log.Level)

	dbManager, err := database.NewManager(&database.Config{
		DatabaseURL: cfg.Database.URL,
		LogLevel:    cfg.Log.Level,
	}, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}
	defer dbManager.Close()

	var files fs.FS = migration.Embedded()
	if *dir != "" {
		files = os.DirFS(*dir)
		logger.WithField("dir", *dir).Info("Using migrations from disk")
	}

	if err := migration.NewRunner(dbManager.DB, files, logger).RunMigrations(); err != nil {
		logger.WithError(err).Fatal("Database migration failed")
	}
}
