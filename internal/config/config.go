package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/dantezy/p2p-quoter/internal/p2p"
)

const (
	defaultConfigPath   = "config.yaml"
	defaultPollInterval = 30
	defaultPageSize     = 20
	defaultMaxPages     = 5
	defaultPriceStep    = 0.01
	defaultPriceDigits  = 2
	defaultSellGap      = 0.015
	defaultBuyTag       = "#B"
	defaultSellTag      = "#S"
)

// Database drivers for the order log.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	// Venue credentials
	APIKey    string
	APISecret string
	Testnet   bool
	MyUID     string

	// Telegram control surface (optional)
	TelegramBotToken string
	TelegramChatID   string

	// Runtime
	DryRun     bool
	AutoStart  bool
	LogLevel   string
	StatusAddr string
	ConfigPath string

	// Order log persistence
	DatabaseDriver string
	DatabaseDSN    string

	// Loaded from the YAML file
	P2P      P2PConfig
	Sides    map[p2p.Side]SideConfig
	Messages Messages
}

// P2PConfig holds the global trading parameters.
type P2PConfig struct {
	Token               string  `yaml:"token"`
	Currency            string  `yaml:"currency"`
	Total               float64 `yaml:"total"`
	PollIntervalSeconds int     `yaml:"poll_interval_seconds"`
	PageSize            int     `yaml:"page_size"`
	MaxPages            int     `yaml:"max_pages"`
	PriceGap            float64 `yaml:"price_gap"`
	PriceStep           float64 `yaml:"price_step"`
	PriceDecimals       int32   `yaml:"price_decimals"`
	TerminalStatuses    []int   `yaml:"terminal_statuses"`
	BuyTag              string  `yaml:"buy_tag"`
	SellTag             string  `yaml:"sell_tag"`
}

// PollInterval returns the tick interval.
func (p P2PConfig) PollInterval() time.Duration {
	return time.Duration(p.PollIntervalSeconds) * time.Second
}

// TotalCapital returns the committable capital as a decimal.
func (p P2PConfig) TotalCapital() decimal.Decimal {
	return decimal.NewFromFloat(p.Total)
}

// Step returns the quote adjustment applied on top of the resolved price.
func (p P2PConfig) Step() decimal.Decimal {
	return decimal.NewFromFloat(p.PriceStep)
}

// Tag returns the remark prefix that marks a managed listing of the given side.
func (p P2PConfig) Tag(side p2p.Side) string {
	if side == p2p.SideSell {
		return p.SellTag
	}
	return p.BuyTag
}

// Side returns the configuration of one direction.
func (c *Config) Side(side p2p.Side) SideConfig {
	return c.Sides[side]
}

// Load reads the environment (optionally from .env) and the YAML file at CONFIG_PATH.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		// .env file is optional if env vars are set directly
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load .env file: %w", err)
		}
	}

	cfg := &Config{
		Testnet:        getEnvBool("BYBIT_TESTNET", false),
		DryRun:         getEnvBool("DRY_RUN", true),
		AutoStart:      getEnvBool("AUTO_START", false),
		LogLevel:       getEnvString("LOG_LEVEL", "info"),
		StatusAddr:     os.Getenv("STATUS_ADDR"),
		ConfigPath:     getEnvString("CONFIG_PATH", defaultConfigPath),
		DatabaseDriver: getEnvString("DATABASE_DRIVER", DriverMemory),
		DatabaseDSN:    os.Getenv("DATABASE_DSN"),
	}

	var missingFields []string

	cfg.APIKey = os.Getenv("BYBIT_API_KEY")
	if cfg.APIKey == "" {
		missingFields = append(missingFields, "BYBIT_API_KEY")
	}

	cfg.APISecret = os.Getenv("BYBIT_API_SECRET")
	if cfg.APISecret == "" {
		missingFields = append(missingFields, "BYBIT_API_SECRET")
	}

	cfg.MyUID = os.Getenv("P2P_MY_UID")
	if cfg.MyUID == "" {
		missingFields = append(missingFields, "P2P_MY_UID")
	}

	if len(missingFields) > 0 {
		return nil, fmt.Errorf("missing required config: %v", missingFields)
	}

	// Optional telegram config
	cfg.TelegramBotToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	cfg.TelegramChatID = os.Getenv("TELEGRAM_CHAT_ID")

	if err := cfg.loadFile(cfg.ConfigPath); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadMinimal loads config without requiring API credentials.
// Useful for commands that only read public market data (e.g., scanner).
func LoadMinimal() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load .env file: %w", err)
		}
	}

	cfg := &Config{
		APIKey:     os.Getenv("BYBIT_API_KEY"),
		APISecret:  os.Getenv("BYBIT_API_SECRET"),
		Testnet:    getEnvBool("BYBIT_TESTNET", false),
		MyUID:      os.Getenv("P2P_MY_UID"),
		DryRun:     true,
		LogLevel:   getEnvString("LOG_LEVEL", "info"),
		ConfigPath: getEnvString("CONFIG_PATH", defaultConfigPath),
	}

	if err := cfg.loadFile(cfg.ConfigPath); err != nil {
		return nil, err
	}
	return cfg, nil
}

// HasTelegram returns true if the Telegram control surface is configured
func (c *Config) HasTelegram() bool {
	return c.TelegramBotToken != "" && c.TelegramChatID != ""
}

// Validate performs startup validation of config values. Anything that would
// make the loop misbehave is rejected here rather than inside a tick.
func (c *Config) Validate() error {
	if c.P2P.Token == "" {
		return errors.New("p2p.token is required")
	}
	if c.P2P.Currency == "" {
		return errors.New("p2p.currency is required")
	}
	if c.P2P.PollIntervalSeconds <= 0 {
		return errors.New("p2p.poll_interval_seconds must be greater than 0")
	}
	if c.P2P.Total < 0 {
		return errors.New("p2p.total must be non-negative")
	}
	if c.P2P.PriceGap < 0 {
		return errors.New("p2p.price_gap must be non-negative")
	}
	if c.P2P.PriceStep < 0 {
		return errors.New("p2p.price_step must be non-negative")
	}
	if c.P2P.PageSize <= 0 || c.P2P.MaxPages <= 0 {
		return errors.New("p2p.page_size and p2p.max_pages must be greater than 0")
	}
	if c.P2P.BuyTag == "" || c.P2P.SellTag == "" {
		return errors.New("p2p.buy_tag and p2p.sell_tag must be set")
	}
	if c.P2P.BuyTag == c.P2P.SellTag {
		return errors.New("p2p.buy_tag and p2p.sell_tag must differ")
	}

	for _, side := range p2p.Sides {
		sc, ok := c.Sides[side]
		if !ok {
			return fmt.Errorf("missing side config for %s", side)
		}
		if err := sc.Validate(); err != nil {
			return fmt.Errorf("%s: %w", side, err)
		}
	}

	switch c.DatabaseDriver {
	case DriverMemory:
	case DriverSQLite, DriverPostgres:
		if c.DatabaseDSN == "" {
			return fmt.Errorf("DATABASE_DSN is required for driver %q", c.DatabaseDriver)
		}
	default:
		return fmt.Errorf("unknown DATABASE_DRIVER %q", c.DatabaseDriver)
	}

	return nil
}

func getEnvBool(key string, defaultVal bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return defaultVal
	}
	return parsed
}

func getEnvString(key string, defaultVal string) string {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return defaultVal
	}
	return val
}
