package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config represents application configuration
type Config struct {
	Trading    TradingConfig    `envconfig:"TRADING"`
	Broker     BrokerConfig     `envconfig:"BROKER"`
	MarketData MarketDataConfig `envconfig:"MARKETDATA"`
	AI         AIConfig         `envconfig:"AI"`
	Database   DatabaseConfig   `envconfig:"DATABASE"`
	Redis      RedisConfig      `envconfig:"REDIS"`
	ClickHouse ClickHouseConfig `envconfig:"CLICKHOUSE"`
	Telegram   TelegramConfig   `envconfig:"TELEGRAM"`
	Discord    DiscordConfig    `envconfig:"DISCORD"`
	Server     ServerConfig     `envconfig:"SERVER"`
	Logging    LoggingConfig    `envconfig:"LOGGING"`
}

// DCADirection controls which price movement direction triggers ladder DCA
type DCADirection string

const (
	DCABoth      DCADirection = "both"
	DCAAdverse   DCADirection = "adverse"
	DCAFavorable DCADirection = "favorable"
)

// TradingConfig represents trading parameters. The tunable subset is
// mutated at runtime through Settings.
type TradingConfig struct {
	Symbol               string        `envconfig:"TRADING_SYMBOL" default:"XAUUSD"`
	PipSize              float64       `envconfig:"TRADING_PIP_SIZE" default:"0.1"`
	BaseLot              float64       `envconfig:"TRADING_BASE_LOT" default:"0.01"`
	MaxPositions         int           `envconfig:"TRADING_MAX_POSITIONS" default:"3"`
	MaxSLDistance        float64       `envconfig:"TRADING_MAX_SL_DISTANCE" default:"6.0"`
	MinConfidence        int           `envconfig:"TRADING_MIN_CONFIDENCE" default:"60"`
	TickInterval         time.Duration `envconfig:"TRADING_TICK_INTERVAL" default:"30s"`
	EntryInterval        time.Duration `envconfig:"TRADING_ENTRY_INTERVAL" default:"15m"`
	GuardianInterval     time.Duration `envconfig:"TRADING_GUARDIAN_INTERVAL" default:"5m"`
	CooldownDuration     time.Duration `envconfig:"TRADING_SL_COOLDOWN" default:"5m"`
	AutoBEPEnabled       bool          `envconfig:"TRADING_AUTO_BEP_ENABLED" default:"true"`
	BEPTriggerPips       float64       `envconfig:"TRADING_AUTO_BEP_PIPS" default:"5.0"`
	DCAStepPips          float64       `envconfig:"TRADING_DCA_STEP_PIPS" default:"20.0"`
	DCADirection         DCADirection  `envconfig:"TRADING_DCA_DIRECTION" default:"both"`
	SessionFilterEnabled bool          `envconfig:"TRADING_SESSION_FILTER_ENABLED" default:"false"`
	AllowedSessions      []string      `envconfig:"TRADING_ALLOWED_SESSIONS" default:"london,newyork,asia,sydney"`
	AutoStart            bool          `envconfig:"TRADING_AUTO_START" default:"false"`
}

// BrokerConfig represents broker adapter selection and bridge endpoint
type BrokerConfig struct {
	Mode      string        `envconfig:"BROKER_MODE" default:"paper"` // paper or bridge
	BridgeURL string        `envconfig:"BROKER_BRIDGE_URL" required:"false"`
	Timeout   time.Duration `envconfig:"BROKER_TIMEOUT" default:"15s"`
}

// MarketDataConfig represents the candle source for AI context
type MarketDataConfig struct {
	CandleSource string `envconfig:"MARKETDATA_CANDLE_SOURCE" default:"broker"` // broker or ccxt
	BybitSymbol  string `envconfig:"MARKETDATA_BYBIT_SYMBOL" default:"XAUT/USDT"`
	APIKey       string `envconfig:"MARKETDATA_BYBIT_API_KEY" required:"false"`
	Secret       string `envconfig:"MARKETDATA_BYBIT_SECRET" required:"false"`
}

// AIConfig represents AI provider configuration. Keys are comma-separated
// to support rotation on rate limits.
type AIConfig struct {
	Provider     string        `envconfig:"AI_PROVIDER" default:"groq"` // groq or deepseek
	GroqKeys     []string      `envconfig:"AI_GROQ_API_KEYS" required:"false"`
	DeepSeekKeys []string      `envconfig:"AI_DEEPSEEK_API_KEYS" required:"false"`
	Timeout      time.Duration `envconfig:"AI_TIMEOUT" default:"30s"`
}

// DatabaseConfig represents database connection parameters
type DatabaseConfig struct {
	Host     string `envconfig:"DB_HOST" default:"localhost"`
	Port     int    `envconfig:"DB_PORT" default:"5432"`
	Name     string `envconfig:"DB_NAME" default:"goldpilot"`
	User     string `envconfig:"DB_USER" required:"true"`
	Password string `envconfig:"DB_PASSWORD" required:"true"`
	SSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`
}

// RedisConfig represents the single-instance lock backend. Empty address
// disables the lock.
type RedisConfig struct {
	Addr     string        `envconfig:"REDIS_ADDR" required:"false"`
	Password string        `envconfig:"REDIS_PASSWORD" required:"false"`
	DB       int           `envconfig:"REDIS_DB" default:"0"`
	LockTTL  time.Duration `envconfig:"REDIS_LOCK_TTL" default:"30s"`
}

// ClickHouseConfig represents the tick archive backend. Empty DSN disables
// archiving.
type ClickHouseConfig struct {
	DSN           string        `envconfig:"CLICKHOUSE_DSN" required:"false"`
	BatchSize     int           `envconfig:"CLICKHOUSE_BATCH_SIZE" default:"100"`
	FlushInterval time.Duration `envconfig:"CLICKHOUSE_FLUSH_INTERVAL" default:"10s"`
}

// TelegramConfig represents Telegram notifier configuration
type TelegramConfig struct {
	BotToken     string `envconfig:"TELEGRAM_BOT_TOKEN" required:"false"`
	ChatID       int64  `envconfig:"TELEGRAM_CHAT_ID" required:"false"`
	TemplatesDir string `envconfig:"TELEGRAM_TEMPLATES_DIR" default:"./templates"`
}

// DiscordConfig represents Discord webhook notifier configuration
type DiscordConfig struct {
	WebhookURL string `envconfig:"DISCORD_WEBHOOK_URL" required:"false"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Port            int           `envconfig:"SERVER_PORT" default:"8080"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"10s"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level string `envconfig:"LOG_LEVEL" default:"info"`
	File  string `envconfig:"LOG_FILE" required:"false"`
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if err := c.Trading.Validate(); err != nil {
		return err
	}

	switch c.Broker.Mode {
	case "paper":
	case "bridge":
		if c.Broker.BridgeURL == "" {
			return fmt.Errorf("broker bridge URL is required in bridge mode")
		}
	default:
		return fmt.Errorf("unknown broker mode: %s", c.Broker.Mode)
	}

	switch c.MarketData.CandleSource {
	case "broker", "ccxt":
	default:
		return fmt.Errorf("unknown candle source: %s", c.MarketData.CandleSource)
	}

	switch c.AI.Provider {
	case "groq":
		if len(c.AI.GroqKeys) == 0 {
			return fmt.Errorf("at least one Groq API key is required")
		}
	case "deepseek":
		if len(c.AI.DeepSeekKeys) == 0 {
			return fmt.Errorf("at least one DeepSeek API key is required")
		}
	default:
		return fmt.Errorf("unknown AI provider: %s", c.AI.Provider)
	}

	return nil
}

// Validate checks trading parameters
func (c *TradingConfig) Validate() error {
	if c.Symbol == "" {
		return fmt.Errorf("trading symbol is required")
	}
	if c.PipSize <= 0 {
		return fmt.Errorf("pip_size must be positive")
	}
	if c.BaseLot <= 0 {
		return fmt.Errorf("base_lot must be positive")
	}
	if c.MaxPositions < 1 {
		return fmt.Errorf("max_positions must be at least 1")
	}
	if c.MinConfidence < 0 || c.MinConfidence > 100 {
		return fmt.Errorf("min_confidence must be between 0 and 100")
	}
	if c.MaxSLDistance <= 0 {
		return fmt.Errorf("max_sl_distance must be positive")
	}
	if c.BEPTriggerPips <= 0 {
		return fmt.Errorf("auto_bep_pips must be positive")
	}
	if c.DCAStepPips <= 0 {
		return fmt.Errorf("dca_step_pips must be positive")
	}
	switch c.DCADirection {
	case DCABoth, DCAAdverse, DCAFavorable:
	default:
		return fmt.Errorf("unknown dca_direction: %s", c.DCADirection)
	}
	return nil
}

// GetDSN returns PostgreSQL connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// IsPaperBroker returns true when the in-memory broker is selected
func (c *Config) IsPaperBroker() bool {
	return c.Broker.Mode == "paper"
}

// Keys returns the configured API keys for the named provider
func (c *AIConfig) Keys(provider string) []string {
	if provider == "deepseek" {
		return c.DeepSeekKeys
	}
	return c.GroqKeys
}
