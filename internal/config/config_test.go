package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
)

func setupTestEnv(t *testing.T) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)

	t.Setenv("CONTRIBOT_TELEGRAM_TOKEN", "tg-token")
	t.Setenv("CONTRIBOT_GITHUB_TOKEN", "gh-token")
	t.Setenv("CONTRIBOT_GEMINI_API_KEY", "gem-key")
}

func TestNewReadsEnvironment(t *testing.T) {
	setupTestEnv(t)
	t.Setenv("CONTRIBOT_POSTGRES_DSN", "host=db user=bot dbname=contribot")
	t.Setenv("CONTRIBOT_ADMIN_CHAT_IDS", "7, 42")
	SetupCommon()

	cfg := New()

	if cfg.TelegramToken != "tg-token" {
		t.Fatalf("TelegramToken=%q", cfg.TelegramToken)
	}
	if cfg.GithubToken != "gh-token" {
		t.Fatalf("GithubToken=%q", cfg.GithubToken)
	}
	if cfg.GeminiAPIKey != "gem-key" {
		t.Fatalf("GeminiAPIKey=%q", cfg.GeminiAPIKey)
	}
	if cfg.PostgresDSN != "host=db user=bot dbname=contribot" {
		t.Fatalf("PostgresDSN=%q, env binding dropped", cfg.PostgresDSN)
	}
	if len(cfg.AdminChatIDs) != 2 || cfg.AdminChatIDs[0] != 7 || cfg.AdminChatIDs[1] != 42 {
		t.Fatalf("AdminChatIDs=%v, want [7 42]", cfg.AdminChatIDs)
	}
}

func TestNewDefaults(t *testing.T) {
	setupTestEnv(t)
	SetupCommon()

	cfg := New()

	if cfg.GeminiModel != "gemini-2.5-flash" {
		t.Fatalf("GeminiModel=%q", cfg.GeminiModel)
	}
	if cfg.PollInterval != 5*time.Minute {
		t.Fatalf("PollInterval=%v, want 5m", cfg.PollInterval)
	}
	if cfg.FetchWorkers != 50 {
		t.Fatalf("FetchWorkers=%d, want 50", cfg.FetchWorkers)
	}
	if cfg.SQLitePath != "user_data.db" {
		t.Fatalf("SQLitePath=%q", cfg.SQLitePath)
	}
	if cfg.PostgresDSN != "" {
		t.Fatalf("PostgresDSN=%q, want empty without env", cfg.PostgresDSN)
	}
	if len(cfg.AdminChatIDs) != 0 {
		t.Fatalf("AdminChatIDs=%v, want empty without env", cfg.AdminChatIDs)
	}
}
