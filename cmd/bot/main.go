package main

import (
	"context"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/forge-games/contribot/internal/bot"
	"github.com/forge-games/contribot/internal/config"
	"github.com/forge-games/contribot/internal/gemini"
	"github.com/forge-games/contribot/internal/github"
	"github.com/forge-games/contribot/internal/logging"
	"github.com/forge-games/contribot/internal/reconciler"
	"github.com/forge-games/contribot/internal/storage"
	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"gopkg.in/telebot.v4"
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

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	gh := github.New(cfg.GithubToken)
	validateCtx, validateCancel := context.WithTimeout(ctx, 10*time.Second)
	defer validateCancel()
	if err := gh.Validate(validateCtx); err != nil {
		logrus.Fatalf("Invalid GitHub token: %v", err)
	}

	gem := gemini.New(cfg.GeminiAPIKey, cfg.GeminiModel)

	tb, err := telebot.NewBot(telebot.Settings{
		Token: cfg.TelegramToken,
		Poller: &telebot.LongPoller{
			Timeout:        10 * time.Second,
			AllowedUpdates: []string{"message"},
		},
	})
	if err != nil {
		logrus.Fatalf("Failed to create bot: %v", err)
	}

	b := bot.New(cfg, store, gh, gem, tb, cancel)
	rec := reconciler.New(store, gh, b.ActiveRepo, cfg.PollInterval, cfg.FetchWorkers)
	b.SetReconciler(rec)
	b.Register(tb)

	wg := sync.WaitGroup{}
	wg.Add(1)
	go func() {
		defer wg.Done()
		tb.Start()
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		rec.Run(ctx)
	}()

	<-ctx.Done()

	tb.Stop()

	logrus.Info("waiting for services to finish")
	wg.Wait()
}

func openDialector(cfg *config.Config) gorm.Dialector {
	if cfg.PostgresDSN != "" {
		return postgres.Open(cfg.PostgresDSN)
	}
	return sqlite.Open(cfg.SQLitePath)
}

func setupConfig() {
	viper.SetDefault("bot_handle_timeout", "30s")
	config.SetupCommon()
}
