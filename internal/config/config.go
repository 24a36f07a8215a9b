package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration for the trading system.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Feed     FeedConfig     `mapstructure:"feed"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Strategy StrategyConfig `mapstructure:"strategy"`
	Backtest BacktestConfig `mapstructure:"backtest"`
}

// ServerConfig configures the dashboard API server.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Addr returns the listen address.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseConfig configures the PostgreSQL/TimescaleDB connection pool.
type DatabaseConfig struct {
	Host        string        `mapstructure:"host"`
	Port        int           `mapstructure:"port"`
	User        string        `mapstructure:"user"`
	Password    string        `mapstructure:"password"`
	Database    string        `mapstructure:"database"`
	SSLMode     string        `mapstructure:"ssl_mode"`
	MaxConns    int           `mapstructure:"max_conns"`
	MinConns    int           `mapstructure:"min_conns"`
	MaxConnLife time.Duration `mapstructure:"max_conn_life"`
}

// ConnectionString builds a pgx-compatible DSN.
func (c DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode)
}

// FeedConfig configures the market data provider.
type FeedConfig struct {
	WebsocketURL   string        `mapstructure:"websocket_url"`
	HistoryURL     string        `mapstructure:"history_url"`
	APIKey         string        `mapstructure:"api_key"`
	BufferSize     int           `mapstructure:"buffer_size"`
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// LoggingConfig configures zerolog output.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Console    bool   `mapstructure:"console"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// AuthConfig configures dashboard authentication.
type AuthConfig struct {
	JWTSecret     string `mapstructure:"jwt_secret"`
	AdminUser     string `mapstructure:"admin_user"`
	AdminPassword string `mapstructure:"admin_password"`
}

// BacktestConfig configures the backtest driver.
type BacktestConfig struct {
	Workers int  `mapstructure:"workers"`
	Force   bool `mapstructure:"force"`
}

// StrategyConfig holds the recognized strategy options. Every field has
// a default; Validate refuses a session before it starts when a value
// is out of range.
type StrategyConfig struct {
	MaxBreakAttempts     int            `mapstructure:"max_break_attempts"`
	MinZoneSpreadCents   int64          `mapstructure:"min_zone_spread_cents"`
	MaxZoneSpreadPercent float64        `mapstructure:"max_zone_spread_percent"`
	BarSizeMinutes       int            `mapstructure:"bar_size_minutes"`
	SessionWindows       SessionWindows `mapstructure:"session_windows"`
	Targets              TargetConfig   `mapstructure:"targets"`
	TrailingStopAt1R     bool           `mapstructure:"trailing_stop_at_1r"`
}

// SessionWindows holds the ET session boundaries as "HH:MM" strings.
type SessionWindows struct {
	ZoneStartTime    string `mapstructure:"zone_start_time"`
	ZoneEndTime      string `mapstructure:"zone_end_time"`
	ExecutionEndTime string `mapstructure:"execution_end_time"`
}

// TargetConfig holds the R-multiple ladder.
type TargetConfig struct {
	Target1RMultiple float64 `mapstructure:"target_1r_multiple"`
	Target2RMultiple float64 `mapstructure:"target_2r_multiple"`
	Target3RMultiple float64 `mapstructure:"target_3r_multiple"`
}

// DefaultStrategy returns the strategy options with all defaults applied.
func DefaultStrategy() StrategyConfig {
	return StrategyConfig{
		MaxBreakAttempts:     5,
		MinZoneSpreadCents:   10,
		MaxZoneSpreadPercent: 3.0,
		BarSizeMinutes:       5,
		SessionWindows: SessionWindows{
			ZoneStartTime:    "09:30",
			ZoneEndTime:      "10:00",
			ExecutionEndTime: "12:00",
		},
		Targets: TargetConfig{
			Target1RMultiple: 1.0,
			Target2RMultiple: 2.0,
			Target3RMultiple: 3.0,
		},
		TrailingStopAt1R: true,
	}
}

// Validate checks the strategy options against their allowed ranges.
func (c StrategyConfig) Validate() error {
	if c.MaxBreakAttempts < 1 {
		return fmt.Errorf("max_break_attempts must be >= 1, got %d", c.MaxBreakAttempts)
	}
	if c.MinZoneSpreadCents < 0 {
		return fmt.Errorf("min_zone_spread_cents must be >= 0, got %d", c.MinZoneSpreadCents)
	}
	if c.MaxZoneSpreadPercent <= 0 {
		return fmt.Errorf("max_zone_spread_percent must be > 0, got %g", c.MaxZoneSpreadPercent)
	}
	if c.BarSizeMinutes != 5 {
		return fmt.Errorf("bar_size_minutes is fixed at 5, got %d", c.BarSizeMinutes)
	}

	zoneStart, err := ParseClock(c.SessionWindows.ZoneStartTime)
	if err != nil {
		return fmt.Errorf("session_windows.zone_start_time: %w", err)
	}
	zoneEnd, err := ParseClock(c.SessionWindows.ZoneEndTime)
	if err != nil {
		return fmt.Errorf("session_windows.zone_end_time: %w", err)
	}
	execEnd, err := ParseClock(c.SessionWindows.ExecutionEndTime)
	if err != nil {
		return fmt.Errorf("session_windows.execution_end_time: %w", err)
	}
	if zoneStart >= zoneEnd {
		return fmt.Errorf("zone window is empty: %s >= %s",
			c.SessionWindows.ZoneStartTime, c.SessionWindows.ZoneEndTime)
	}
	if zoneEnd > execEnd {
		return fmt.Errorf("zone window ends after execution cut-off: %s > %s",
			c.SessionWindows.ZoneEndTime, c.SessionWindows.ExecutionEndTime)
	}

	t := c.Targets
	if t.Target1RMultiple <= 0 || t.Target2RMultiple <= 0 || t.Target3RMultiple <= 0 {
		return fmt.Errorf("target multiples must be > 0")
	}
	if !(t.Target1RMultiple < t.Target2RMultiple && t.Target2RMultiple < t.Target3RMultiple) {
		return fmt.Errorf("target multiples must be strictly increasing, got %g/%g/%g",
			t.Target1RMultiple, t.Target2RMultiple, t.Target3RMultiple)
	}
	return nil
}

// ParseClock parses an "HH:MM" string into minutes after midnight.
func ParseClock(s string) (int, error) {
	var hh, mm int
	if _, err := fmt.Sscanf(s, "%d:%d", &hh, &mm); err != nil {
		return 0, fmt.Errorf("invalid HH:MM %q", s)
	}
	if hh < 0 || hh > 23 || mm < 0 || mm > 59 {
		return 0, fmt.Errorf("invalid HH:MM %q", s)
	}
	return hh*60 + mm, nil
}

// Load reads configuration from the given file (optional) plus
// BREAKOUT_* environment overrides and applies defaults.
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix("BREAKOUT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Strategy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid strategy config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "trader")
	v.SetDefault("database.password", "trader")
	v.SetDefault("database.database", "breakout")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_life", time.Hour)

	v.SetDefault("feed.buffer_size", 256)
	v.SetDefault("feed.ping_interval", 30*time.Second)
	v.SetDefault("feed.connect_timeout", 10*time.Second)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.console", true)
	v.SetDefault("logging.max_size_mb", 100)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.max_age_days", 30)

	v.SetDefault("backtest.workers", 4)
	v.SetDefault("backtest.force", false)

	def := DefaultStrategy()
	v.SetDefault("strategy.max_break_attempts", def.MaxBreakAttempts)
	v.SetDefault("strategy.min_zone_spread_cents", def.MinZoneSpreadCents)
	v.SetDefault("strategy.max_zone_spread_percent", def.MaxZoneSpreadPercent)
	v.SetDefault("strategy.bar_size_minutes", def.BarSizeMinutes)
	v.SetDefault("strategy.session_windows.zone_start_time", def.SessionWindows.ZoneStartTime)
	v.SetDefault("strategy.session_windows.zone_end_time", def.SessionWindows.ZoneEndTime)
	v.SetDefault("strategy.session_windows.execution_end_time", def.SessionWindows.ExecutionEndTime)
	v.SetDefault("strategy.targets.target_1r_multiple", def.Targets.Target1RMultiple)
	v.SetDefault("strategy.targets.target_2r_multiple", def.Targets.Target2RMultiple)
	v.SetDefault("strategy.targets.target_3r_multiple", def.Targets.Target3RMultiple)
	v.SetDefault("strategy.trailing_stop_at_1r", def.TrailingStopAt1R)
}
