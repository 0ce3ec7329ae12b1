// Package config loads the server configuration from a YAML file with
// SCOREKEEPER_ environment overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/courtside/scorekeeper-server-go/internal/game/rules"
)

// EnvPrefix is prepended to every environment override, e.g.
// SCOREKEEPER_DATABASE_URL overrides database.url.
const EnvPrefix = "SCOREKEEPER"

// Config is the complete server configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	// Rules is the ruleset new games start with unless they bring their own.
	Rules rules.Settings `mapstructure:"rules"`
}

// ServerConfig holds the listener configuration.
type ServerConfig struct {
	HTTP HTTPConfig `mapstructure:"http"`
	GRPC GRPCConfig `mapstructure:"grpc"`
	// TickInterval is how often running game clocks are polled.
	TickInterval time.Duration `mapstructure:"tick_interval"`
	// ArchiveDir receives an archive of every game removed from memory.
	ArchiveDir string `mapstructure:"archive_dir"`
}

// HTTPConfig configures the command/query API and the websocket endpoint.
type HTTPConfig struct {
	Address         string        `mapstructure:"address"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
}

// GRPCConfig configures the gRPC health endpoint.
type GRPCConfig struct {
	Address              string `mapstructure:"address"`
	MaxConcurrentStreams uint32 `mapstructure:"max_concurrent_streams"`
	// HealthInterval is how often the event store is pinged for the health
	// status.
	HealthInterval time.Duration `mapstructure:"health_interval"`
}

// LoggingConfig selects the zap logger.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Database drivers.
const (
	DriverNone     = "none"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// DatabaseConfig selects the event store.
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"`
	URL      string `mapstructure:"url"`
	Path     string `mapstructure:"path"`
	MaxConns int32  `mapstructure:"max_conns"`
	// WriteTimeout bounds each background write.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// RedisConfig configures the realtime event stream and box score cache.
type RedisConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	URL          string        `mapstructure:"url"`
	StreamPrefix string        `mapstructure:"stream_prefix"`
	StreamMaxLen int64         `mapstructure:"stream_max_len"`
	BoxScoreTTL  time.Duration `mapstructure:"box_score_ttl"`
	QueueSize    int           `mapstructure:"queue_size"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http.address", ":8080")
	v.SetDefault("server.http.read_timeout", 15*time.Second)
	v.SetDefault("server.http.write_timeout", 15*time.Second)
	v.SetDefault("server.http.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.http.cors_origins", []string{"*"})
	v.SetDefault("server.grpc.address", ":9090")
	v.SetDefault("server.grpc.max_concurrent_streams", 100)
	v.SetDefault("server.grpc.health_interval", 15*time.Second)
	v.SetDefault("server.tick_interval", 200*time.Millisecond)
	v.SetDefault("server.archive_dir", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("database.driver", DriverSQLite)
	v.SetDefault("database.url", "")
	v.SetDefault("database.path", "data/scorekeeper.db")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.write_timeout", 5*time.Second)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.stream_prefix", "scorekeeper.games")
	v.SetDefault("redis.stream_max_len", 10000)
	v.SetDefault("redis.box_score_ttl", 6*time.Hour)
	v.SetDefault("redis.queue_size", 1024)

	d := rules.DefaultSettings()
	v.SetDefault("rules.quarter_length_seconds", d.QuarterLengthSeconds)
	v.SetDefault("rules.overtime_length_seconds", d.OvertimeLengthSeconds)
	v.SetDefault("rules.regulation_quarters", d.RegulationQuarters)
	v.SetDefault("rules.foul_limit_per_player", d.FoulLimitPerPlayer)
	v.SetDefault("rules.team_foul_bonus_threshold", d.TeamFoulBonusThreshold)
	v.SetDefault("rules.double_bonus_threshold", d.DoubleBonusThreshold)
	v.SetDefault("rules.timeouts_per_team", d.TimeoutsPerTeam)
	v.SetDefault("rules.bonus_format", string(d.BonusFormat))
	v.SetDefault("rules.technical_counts_toward_bonus", d.TechnicalCountsTowardBonus)
	v.SetDefault("rules.flagrant_counts_toward_bonus", d.FlagrantCountsTowardBonus)
	v.SetDefault("rules.technical_counts_as_personal", d.TechnicalCountsAsPersonal)
	v.SetDefault("rules.offensive_fouls_award_bonus_free_throws", d.OffensiveFoulsAwardBonusFreeThrows)
	v.SetDefault("rules.reset_team_fouls_in_overtime", d.ResetTeamFoulsInOvertime)
	v.SetDefault("rules.technical_ejection_limit", d.TechnicalEjectionLimit)
}

// Load reads the configuration file at path, applies environment overrides
// and validates the result. A missing file leaves the defaults in place.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration for values the server cannot run with.
func (c *Config) Validate() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: unknown log level %q", rules.ErrConfiguration, c.Logging.Level)
	}
	switch c.Database.Driver {
	case DriverNone:
	case DriverPostgres:
		if c.Database.URL == "" {
			return fmt.Errorf("%w: database.url is required for postgres", rules.ErrConfiguration)
		}
	case DriverSQLite:
		if c.Database.Path == "" {
			return fmt.Errorf("%w: database.path is required for sqlite", rules.ErrConfiguration)
		}
	default:
		return fmt.Errorf("%w: unknown database driver %q", rules.ErrConfiguration, c.Database.Driver)
	}
	if c.Redis.Enabled && c.Redis.URL == "" {
		return fmt.Errorf("%w: redis.url is required when redis is enabled", rules.ErrConfiguration)
	}
	if c.Server.GRPC.HealthInterval <= 0 {
		return fmt.Errorf("%w: server.grpc.health_interval must be positive", rules.ErrConfiguration)
	}
	if c.Server.TickInterval <= 0 {
		return fmt.Errorf("%w: server.tick_interval must be positive", rules.ErrConfiguration)
	}
	return c.Rules.Validate()
}
