// Package config provides configuration management using viper.
// It supports loading from YAML files and environment variable overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	Timezone  string          `mapstructure:"timezone"`
	Log       LogConfig       `mapstructure:"log"`
	Lock      LockConfig      `mapstructure:"lock"`
	Challenge ChallengeConfig `mapstructure:"challenge"`
	Notify    NotifyConfig    `mapstructure:"notify"`
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	PoolSize        int           `mapstructure:"pool_size"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
}

// LogConfig holds logger configuration.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// LockConfig bounds how long a request waits for another request of the same user.
type LockConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// ChallengeConfig holds daily challenge settlement configuration.
type ChallengeConfig struct {
	Rewards       RewardConfig  `mapstructure:"rewards"`
	StreakBonus   map[int]int64 `mapstructure:"streak_bonus"`
	ActiveDays    int           `mapstructure:"active_days"`
	FanoutWorkers int           `mapstructure:"fanout_workers"`
	FanoutTimeout time.Duration `mapstructure:"fanout_timeout"`
	SeedSalt      string        `mapstructure:"seed_salt"`
}

// RewardConfig holds the fixed per-difficulty claim reward.
type RewardConfig struct {
	Easy   int64 `mapstructure:"easy"`
	Medium int64 `mapstructure:"medium"`
	Hard   int64 `mapstructure:"hard"`
}

// NotifyConfig holds unlock notification configuration.
type NotifyConfig struct {
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig holds the Telegram announcement channel.
type TelegramConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Token   string `mapstructure:"token"`
	ChatID  int64  `mapstructure:"chat_id"`
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name,
	)
}

// Location resolves the configured timezone. Calendar days, daily caps and
// challenge dates are all computed in this location.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Load reads configuration from file and environment variables.
// It looks for config.yaml in the config directory.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// e.g. DATABASE_HOST, CHALLENGE_ACTIVE_DAYS, NOTIFY_TELEGRAM_TOKEN
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Config file is optional, env vars can provide all config
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "gamification")
	v.SetDefault("database.name", "gamification")
	v.SetDefault("database.pool_size", 20)
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")

	v.SetDefault("timezone", "Asia/Shanghai")
	v.SetDefault("log.level", "info")
	v.SetDefault("lock.timeout", "5s")

	v.SetDefault("challenge.rewards.easy", 10)
	v.SetDefault("challenge.rewards.medium", 20)
	v.SetDefault("challenge.rewards.hard", 30)
	v.SetDefault("challenge.streak_bonus", map[string]any{"3": 20, "7": 50})
	v.SetDefault("challenge.active_days", 7)
	v.SetDefault("challenge.fanout_workers", 8)
	v.SetDefault("challenge.fanout_timeout", "2m")
	v.SetDefault("challenge.seed_salt", "daily-challenge")

	v.SetDefault("notify.telegram.enabled", false)
}

// RewardFor returns the claim reward configured for a difficulty name.
func (r RewardConfig) RewardFor(difficulty string) int64 {
	switch strings.ToUpper(difficulty) {
	case "EASY":
		return r.Easy
	case "MEDIUM":
		return r.Medium
	case "HARD":
		return r.Hard
	}
	return 0
}
