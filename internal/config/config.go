package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Settlement Settlement `mapstructure:"settlement"`
	Scheduler  Scheduler  `mapstructure:"scheduler"`
	Logger     Logger     `mapstructure:"logger"`
	Server     Server     `mapstructure:"server"`
	Database   Database   `mapstructure:"database"`
	Quotes     Quotes     `mapstructure:"quotes"`
	Redis      Redis      `mapstructure:"redis"`
	Admin      Admin      `mapstructure:"admin"`
}

// Settlement holds the outcome sampling parameters used when a trade is resolved.
// Fractions are expressed as ratios, e.g. 0.07 for a 7% profit.
type Settlement struct {
	WinProbability float64 `mapstructure:"win_probability"`
	MinProfit      float64 `mapstructure:"min_profit"`
	MaxProfit      float64 `mapstructure:"max_profit"`
	MinLoss        float64 `mapstructure:"min_loss"`
	MaxLoss        float64 `mapstructure:"max_loss"`
}

// Scheduler holds the configuration for the periodic resolution sweep.
type Scheduler struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
	LeaseTTL time.Duration `mapstructure:"lease_ttl"`
}

// Logger holds the configuration for the logger.
type Logger struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Server holds the configuration for the HTTP API.
type Server struct {
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Database holds the configuration for the database.
type Database struct {
	Driver       string `mapstructure:"driver"`
	DSN          string `mapstructure:"dsn"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

// Quotes holds the configuration for the price quote REST client.
type Quotes struct {
	Enabled        bool    `mapstructure:"enabled"`
	BaseURL        string  `mapstructure:"base_url"`
	RateLimit      float64 `mapstructure:"rate_limit"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
}

// Redis holds the connection settings for the sweep lease. An empty Addr disables it.
type Redis struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Admin lists the identities allowed to call administrative endpoints.
type Admin struct {
	Identities []string `mapstructure:"identities"`
}

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (config Config, err error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config") // name of config file (without extension)
	v.SetConfigType("yml")

	// Allow environment variables to override config file
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err = v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return
		}
		// Defaults and environment are enough to run.
		err = nil
	}

	if err = v.Unmarshal(&config); err != nil {
		return
	}
	err = config.Validate()
	return
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("settlement.win_probability", 0.85)
	v.SetDefault("settlement.min_profit", 0.07)
	v.SetDefault("settlement.max_profit", 0.19)
	v.SetDefault("settlement.min_loss", 0.01)
	v.SetDefault("settlement.max_loss", 0.05)

	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.interval", time.Minute)
	v.SetDefault("scheduler.lease_ttl", 50*time.Second)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout", 5*time.Second)

	v.SetDefault("database.driver", DriverSQLite)
	v.SetDefault("database.dsn", "file:settlement.db?_busy_timeout=5000")
	v.SetDefault("database.max_open_conns", 0)
	v.SetDefault("database.max_idle_conns", 2)

	v.SetDefault("quotes.enabled", false)
	v.SetDefault("quotes.base_url", "https://api.binance.com/api/v3")
	v.SetDefault("quotes.rate_limit", 20)      // requests per second
	v.SetDefault("quotes.rate_limit_burst", 5) // burst size

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("admin.identities", []string{})
}

// Validate checks the settlement parameters and the scheduler cadence.
func (c Config) Validate() error {
	if err := c.Settlement.Validate(); err != nil {
		return err
	}
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be positive, got %s", c.Scheduler.Interval)
	}
	switch c.Database.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("unsupported database.driver %q", c.Database.Driver)
	}
	return nil
}

// Validate checks that the sampling ranges are well formed and that a loss can never
// drive a payout below zero.
func (s Settlement) Validate() error {
	if s.WinProbability < 0 || s.WinProbability > 1 {
		return fmt.Errorf("settlement.win_probability must be within [0,1], got %v", s.WinProbability)
	}
	if s.MinProfit < 0 || s.MinProfit > s.MaxProfit {
		return fmt.Errorf("settlement profit range [%v,%v] is invalid", s.MinProfit, s.MaxProfit)
	}
	if s.MinLoss < 0 || s.MinLoss > s.MaxLoss || s.MaxLoss > 1 {
		return fmt.Errorf("settlement loss range [%v,%v] is invalid", s.MinLoss, s.MaxLoss)
	}
	return nil
}

// IsAdmin reports whether identity is one of the configured administrators.
// Comparison ignores case and surrounding whitespace.
func (a Admin) IsAdmin(identity string) bool {
	identity = strings.ToLower(strings.TrimSpace(identity))
	if identity == "" {
		return false
	}
	for _, id := range a.Identities {
		if strings.ToLower(strings.TrimSpace(id)) == identity {
			return true
		}
	}
	return false
}
