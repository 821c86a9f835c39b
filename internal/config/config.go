package config

import (
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

type Config struct {
	TelegramToken    string        `mapstructure:"telegram_token"`
	BotHandleTimeout time.Duration `mapstructure:"bot_handle_timeout"`

	// Parsed from the comma-separated admin_chat_ids value; viper's
	// Unmarshal cannot coerce an env string into an int64 slice.
	AdminChatIDs []int64 `mapstructure:"-"`

	GithubToken string `mapstructure:"github_token"`

	GeminiAPIKey string `mapstructure:"gemini_api_key"`
	GeminiModel  string `mapstructure:"gemini_model"`

	PollInterval time.Duration `mapstructure:"poll_interval"`
	FetchWorkers int           `mapstructure:"fetch_workers"`

	PostgresDSN string `mapstructure:"postgres_dsn"`
	SQLitePath  string `mapstructure:"sqlite_path"`
}

func New() *Config {
	cfg := &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		logrus.Fatalf("unmarshalling config: %v", err)
	}

	for _, part := range strings.Split(viper.GetString("admin_chat_ids"), ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			logrus.Fatalf("parsing admin chat id %q: %v", part, err)
		}
		cfg.AdminChatIDs = append(cfg.AdminChatIDs, id)
	}

	return cfg
}

func SetupCommon() {
	viper.SetDefault("gemini_model", "gemini-2.5-flash")
	viper.SetDefault("poll_interval", "5m")
	viper.SetDefault("fetch_workers", 50)
	viper.SetDefault("sqlite_path", "user_data.db")
	viper.SetEnvPrefix("CONTRIBOT")

	viper.MustBindEnv("telegram_token")
	viper.MustBindEnv("github_token")
	viper.MustBindEnv("gemini_api_key")
	viper.BindEnv("postgres_dsn")
	viper.BindEnv("admin_chat_ids")
	viper.AutomaticEnv()
}
