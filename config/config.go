// Package config loads application configuration from the environment,
// with .env support for local development.
package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	// Quote source
	QuoteWSURL   string   `envconfig:"QUOTE_WS_URL" default:"ws://localhost:9100/ws"`
	Symbols      []string `envconfig:"SYMBOLS" default:"R_10,R_25,R_50,R_75,R_100"`
	HistoryCount int      `envconfig:"HISTORY_COUNT" default:"100"`

	// Analysis engine
	BufferCap            int           `envconfig:"BUFFER_CAP" default:"150"`
	MinSamples           int           `envconfig:"MIN_SAMPLES" default:"20"`
	AnalyzeInterval      time.Duration `envconfig:"ANALYZE_INTERVAL" default:"1s"`
	ReadyMinElapsed      time.Duration `envconfig:"READY_MIN_ELAPSED" default:"3s"`
	ReadyFallbackElapsed time.Duration `envconfig:"READY_FALLBACK_ELAPSED" default:"15s"`
	ConnectStagger       time.Duration `envconfig:"CONNECT_STAGGER" default:"150ms"`
	ReconnectDelay       time.Duration `envconfig:"RECONNECT_DELAY" default:"3s"`

	// Infrastructure
	RedisEnabled  bool   `envconfig:"REDIS_ENABLED" default:"false"`
	RedisAddr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	SQLiteEnabled bool   `envconfig:"SQLITE_ENABLED" default:"true"`
	SQLitePath    string `envconfig:"SQLITE_PATH" default:"data/analysis.db"`

	GatewayAddr string `envconfig:"GATEWAY_ADDR" default:":8080"`
	MetricsAddr string `envconfig:"METRICS_ADDR" default:":9090"`

	// Logging
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	LogFile  string `envconfig:"LOG_FILE" default:""`

	// Notifications
	WebhookURL       string `envconfig:"WEBHOOK_URL" default:""`
	TelegramBotToken string `envconfig:"TELEGRAM_BOT_TOKEN" default:""`
	TelegramChatID   string `envconfig:"TELEGRAM_CHAT_ID" default:""`

	// Trader
	BrokerWSURL    string        `envconfig:"BROKER_WS_URL" default:"ws://localhost:9100/ws"`
	BrokerAPIToken string        `envconfig:"BROKER_API_TOKEN" default:""`
	BrokerTOTPKey  string        `envconfig:"BROKER_TOTP_KEY" default:""`
	TraderSource   string        `envconfig:"TRADER_SOURCE" default:"engine"` // engine | redis
	Stake          string        `envconfig:"STAKE" default:"1.00"`
	Currency       string        `envconfig:"CURRENCY" default:"USD"`
	StakePolicy    string        `envconfig:"STAKE_POLICY" default:"flat"` // flat | multiplier
	LossMultiplier string        `envconfig:"LOSS_MULTIPLIER" default:"2.0"`
	MaxLossStreak  int           `envconfig:"MAX_LOSS_STREAK" default:"4"`
	TradeCooldown  time.Duration `envconfig:"TRADE_COOLDOWN" default:"10s"`
}

// Load reads .env (when present) and then the process environment.
func Load() (*Config, error) {
	// Missing .env is fine in production.
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("process env config: %w", err)
	}
	return &cfg, nil
}
