package main

import (
	"github.com/forge-games/contribot/internal/api"
	"github.com/forge-games/contribot/internal/config"
	"github.com/forge-games/contribot/internal/logging"
	"github.com/forge-games/contribot/internal/storage"
	"github.com/glebarez/sqlite"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	setupConfig()
	logging.Init()

	cfg := config.New()
	logrus.Debugf("config: %+v", cfg)

	db, err := gorm.Open(openDialector(cfg), &gorm.Config{})
	if err != nil {
		logrus.Fatalf("Failed to connect to database: %v", err)
	}

	store := storage.New(db)
	if err := store.Migrate(); err != nil {
		logrus.Fatalf("Failed to migrate database: %v", err)
	}

	service := api.NewService(store)
	e := echo.New()
	e.GET("/healthz", service.HandleHealth())
	e.GET("/leaderboard", service.HandleLeaderboard())
	if err := e.Start(viper.GetString("api_listen")); err != nil {
		logrus.Fatalf("api server stopped: %v", err)
	}
}

func openDialector(cfg *config.Config) gorm.Dialector {
	if cfg.PostgresDSN != "" {
		return postgres.Open(cfg.PostgresDSN)
	}
	return sqlite.Open(cfg.SQLitePath)
}

func setupConfig() {
	viper.SetDefault("api_listen", ":8080")
	config.SetupCommon()
}
