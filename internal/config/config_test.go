package config

import (
	"strings"
	"testing"
	"time"
)

func TestFromEnv_Defaults(t *testing.T) {
	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv() error = %v", err)
	}
	if cfg.Monitor.Interval != 30*time.Second || cfg.Monitor.MaxRetries != 3 {
		t.Errorf("Monitor = %+v", cfg.Monitor)
	}
	if !cfg.Trading.DryRun || cfg.Trading.TargetStep != 0.015 || cfg.Trading.MaxLeverage != 20 {
		t.Errorf("Trading = %+v", cfg.Trading)
	}
	if cfg.Database.Driver != "sqlite" || cfg.Risk.Profile != "moderate" {
		t.Errorf("Database = %+v, Risk = %+v", cfg.Database, cfg.Risk)
	}
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("TELEGRAM_CHAT_ID", "-1001234")
	t.Setenv("AMOUNT_PER_TRADE", "250.5")
	t.Setenv("MONITOR_INTERVAL", "1m")
	t.Setenv("DRY_RUN", "false")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv() error = %v", err)
	}
	if cfg.Telegram.ChatID != -1001234 || cfg.Trading.AmountPerTrade != 250.5 || cfg.Monitor.Interval != time.Minute || cfg.Trading.DryRun {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestFromEnv_ReportsAllErrors(t *testing.T) {
	t.Setenv("DB_PORT", "abc")
	t.Setenv("RISK_PERCENT", "two")

	_, err := FromEnv()
	if err == nil {
		t.Fatal("FromEnv() error = nil")
	}
	for _, key := range []string{"DB_PORT", "RISK_PERCENT"} {
		if !strings.Contains(err.Error(), key) {
			t.Errorf("error %q does not mention %s", err, key)
		}
	}
}

func validConfig(t *testing.T) *Config {
	t.Helper()
	t.Setenv("TELEGRAM_BOT_TOKEN", "token")
	cfg, err := FromEnv()
	if err != nil {
		t.Fatal(err)
	}
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"no token", func(c *Config) { c.Telegram.BotToken = "" }, "TELEGRAM_BOT_TOKEN"},
		{"live without keys", func(c *Config) { c.Trading.DryRun = false }, "BYBIT_API_KEY"},
		{"postgres without password", func(c *Config) { c.Database.Driver = "postgres" }, "DB_PASSWORD"},
		{"unknown driver", func(c *Config) { c.Database.Driver = "mongo" }, "DB_DRIVER"},
		{"zero amount", func(c *Config) { c.Trading.AmountPerTrade = 0 }, "AMOUNT_PER_TRADE"},
		{"risk over 100", func(c *Config) { c.Trading.RiskPercent = 150 }, "RISK_PERCENT"},
		{"default above max", func(c *Config) { c.Trading.DefaultLeverage = 50 }, "DEFAULT_LEVERAGE"},
		{"bad step", func(c *Config) { c.Trading.TargetStep = 0 }, "TARGET_STEP"},
		{"fast interval", func(c *Config) { c.Monitor.Interval = 100 * time.Millisecond }, "MONITOR_INTERVAL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want mention of %s", err, tt.wantErr)
			}
		})
	}
}

func TestDatabaseConfig_DSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: 5433, User: "bot", Password: "secret", DBName: "signals", SSLMode: "require"}
	want := "host=db port=5433 user=bot password=secret dbname=signals sslmode=require"
	if got := d.DSN(); got != want {
		t.Errorf("DSN() = %q, want %q", got, want)
	}
}
