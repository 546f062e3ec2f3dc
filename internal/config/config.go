package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config содержит все настройки приложения
type Config struct {
	Telegram TelegramConfig
	Exchange ExchangeConfig
	Database DatabaseConfig
	Trading  TradingConfig
	Monitor  MonitorConfig
	Notify   NotifyConfig
	Risk     RiskConfig
	Log      LogConfig
	APIPort  int
}

type TelegramConfig struct {
	BotToken  string
	ChatID    int64
	Admins    string // ID через запятую
	Whitelist string
	Lang      string
	RateLimit int // сообщений в секунду от пользователя
}

type ExchangeConfig struct {
	APIKey     string
	APISecret  string
	BaseURL    string
	BinanceURL string
}

type DatabaseConfig struct {
	Driver          string // postgres | sqlite | memory
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	SQLitePath      string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type TradingConfig struct {
	AmountPerTrade     float64
	RiskPercent        float64
	MaxLeverage        int
	DefaultLeverage    int
	TargetStep         float64
	MaxSlippagePercent float64
	DryRun             bool
}

type MonitorConfig struct {
	Interval   time.Duration
	MaxRetries int
	RetryDelay time.Duration
}

type NotifyConfig struct {
	Workers     int
	QueueSize   int
	MinInterval time.Duration
	SendTimeout time.Duration
}

type RiskConfig struct {
	ParamsFile string
	Profile    string
}

type LogConfig struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Load загружает конфигурацию из .env файла и окружения
func Load() (*Config, error) {
	// Загружаем .env файл (если есть)
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	config, err := FromEnv()
	if err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// FromEnv читает переменные окружения без валидации
func FromEnv() (*Config, error) {
	p := &envParser{}

	config := &Config{
		Telegram: TelegramConfig{
			BotToken:  getEnv("TELEGRAM_BOT_TOKEN", ""),
			ChatID:    p.asInt64("TELEGRAM_CHAT_ID", "0"),
			Admins:    getEnv("TG_ADMINS", ""),
			Whitelist: getEnv("TG_CHAT_WHITELIST", ""),
			Lang:      getEnv("DEFAULT_LANG", "en"),
			RateLimit: p.asInt("TG_RATE_LIMIT", "2"),
		},
		Exchange: ExchangeConfig{
			APIKey:     getEnv("BYBIT_API_KEY", ""),
			APISecret:  getEnv("BYBIT_API_SECRET", ""),
			BaseURL:    getEnv("BYBIT_BASE_URL", "https://api.bybit.com"),
			BinanceURL: getEnv("BINANCE_BASE_URL", "https://api.binance.com"),
		},
		Database: DatabaseConfig{
			Driver:          getEnv("DB_DRIVER", "sqlite"),
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            p.asInt("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", ""),
			DBName:          getEnv("DB_NAME", "signalbot"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			SQLitePath:      getEnv("SQLITE_PATH", "data/signalbot.db"),
			MaxOpenConns:    p.asInt("DB_MAX_OPEN_CONNS", "25"),
			MaxIdleConns:    p.asInt("DB_MAX_IDLE_CONNS", "5"),
			ConnMaxLifetime: p.asDuration("DB_CONN_MAX_LIFETIME", "5m"),
		},
		Trading: TradingConfig{
			AmountPerTrade:     p.asFloat("AMOUNT_PER_TRADE", "100"),
			RiskPercent:        p.asFloat("RISK_PERCENT", "2"),
			MaxLeverage:        p.asInt("MAX_LEVERAGE", "20"),
			DefaultLeverage:    p.asInt("DEFAULT_LEVERAGE", "3"),
			TargetStep:         p.asFloat("TARGET_STEP", "0.015"),
			MaxSlippagePercent: p.asFloat("MAX_SLIPPAGE_PERCENT", "1"),
			DryRun:             p.asBool("DRY_RUN", "true"),
		},
		Monitor: MonitorConfig{
			Interval:   p.asDuration("MONITOR_INTERVAL", "30s"),
			MaxRetries: p.asInt("PRICE_MAX_RETRIES", "3"),
			RetryDelay: p.asDuration("PRICE_RETRY_DELAY", "2s"),
		},
		Notify: NotifyConfig{
			Workers:     p.asInt("NOTIFY_WORKERS", "2"),
			QueueSize:   p.asInt("NOTIFY_QUEUE_SIZE", "100"),
			MinInterval: p.asDuration("NOTIFY_MIN_INTERVAL", "1s"),
			SendTimeout: p.asDuration("NOTIFY_SEND_TIMEOUT", "10s"),
		},
		Risk: RiskConfig{
			ParamsFile: getEnv("RISK_PARAMS_FILE", "configs/risk.yaml"),
			Profile:    getEnv("RISK_PROFILE", "moderate"),
		},
		Log: LogConfig{
			Level:      getEnv("LOG_LEVEL", "info"),
			File:       getEnv("LOG_FILE", ""),
			MaxSizeMB:  p.asInt("LOG_MAX_SIZE_MB", "50"),
			MaxBackups: p.asInt("LOG_MAX_BACKUPS", "5"),
			MaxAgeDays: p.asInt("LOG_MAX_AGE_DAYS", "30"),
		},
		APIPort: p.asInt("API_PORT", "8080"),
	}

	if err := errors.Join(p.errs...); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate проверяет обязательные поля конфигурации
func (c *Config) Validate() error {
	if c.Telegram.BotToken == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}
	if !c.Trading.DryRun {
		if c.Exchange.APIKey == "" {
			return fmt.Errorf("BYBIT_API_KEY is required when DRY_RUN=false")
		}
		if c.Exchange.APISecret == "" {
			return fmt.Errorf("BYBIT_API_SECRET is required when DRY_RUN=false")
		}
	}
	switch c.Database.Driver {
	case "postgres":
		if c.Database.Password == "" {
			return fmt.Errorf("DB_PASSWORD is required for postgres")
		}
	case "sqlite":
		if c.Database.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required for sqlite")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown DB_DRIVER %q", c.Database.Driver)
	}
	if c.Trading.AmountPerTrade <= 0 {
		return fmt.Errorf("AMOUNT_PER_TRADE must be positive")
	}
	if c.Trading.RiskPercent <= 0 || c.Trading.RiskPercent > 100 {
		return fmt.Errorf("RISK_PERCENT must be in (0, 100]")
	}
	if c.Trading.MaxLeverage < 1 || c.Trading.MaxLeverage > 125 {
		return fmt.Errorf("MAX_LEVERAGE must be between 1 and 125")
	}
	if c.Trading.DefaultLeverage < 1 || c.Trading.DefaultLeverage > c.Trading.MaxLeverage {
		return fmt.Errorf("DEFAULT_LEVERAGE must be between 1 and MAX_LEVERAGE")
	}
	if c.Trading.TargetStep <= 0 || c.Trading.TargetStep >= 0.5 {
		return fmt.Errorf("TARGET_STEP must be in (0, 0.5)")
	}
	if c.Trading.MaxSlippagePercent < 0 {
		return fmt.Errorf("MAX_SLIPPAGE_PERCENT must not be negative")
	}
	if c.Monitor.Interval < time.Second {
		return fmt.Errorf("MONITOR_INTERVAL must be at least 1s")
	}
	return nil
}

// DSN строка подключения PostgreSQL
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// envParser копит ошибки разбора, чтобы сообщить обо всех сразу
type envParser struct {
	errs []error
}

func (p *envParser) fail(key string, err error) {
	p.errs = append(p.errs, fmt.Errorf("invalid %s: %w", key, err))
}

func (p *envParser) asInt(key, def string) int {
	v, err := strconv.Atoi(getEnv(key, def))
	if err != nil {
		p.fail(key, err)
	}
	return v
}

func (p *envParser) asInt64(key, def string) int64 {
	v, err := strconv.ParseInt(getEnv(key, def), 10, 64)
	if err != nil {
		p.fail(key, err)
	}
	return v
}

func (p *envParser) asFloat(key, def string) float64 {
	v, err := strconv.ParseFloat(getEnv(key, def), 64)
	if err != nil {
		p.fail(key, err)
	}
	return v
}

func (p *envParser) asBool(key, def string) bool {
	v, err := strconv.ParseBool(getEnv(key, def))
	if err != nil {
		p.fail(key, err)
	}
	return v
}

func (p *envParser) asDuration(key, def string) time.Duration {
	v, err := time.ParseDuration(getEnv(key, def))
	if err != nil {
		p.fail(key, err)
	}
	return v
}
