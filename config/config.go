package config

import (
	"errors"
	"log/slog"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/spf13/viper"

	"github.com/angeloszaimis/hostproxy/internal/httpserver"
)

const (
	EnvDev     = "dev"
	EnvStaging = "staging"
	EnvProd    = "prod"
)

const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

const (
	ModeSnapshot   = "snapshot"
	ModePerRequest = "per-request"
)

type ServerConfig struct {
	Address      string        `mapstructure:"address"`
	Environment  string        `mapstructure:"environment"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

type AdminConfig struct {
	Address string `mapstructure:"address"`
}

type RoutingConfig struct {
	File           string        `mapstructure:"file"`
	Mode           string        `mapstructure:"mode"`
	ReloadInterval time.Duration `mapstructure:"reload_interval"`
}

type UpstreamConfig struct {
	Scheme  string        `mapstructure:"scheme"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type StrategyConfig struct {
	Type         string `mapstructure:"type"`
	VirtualNodes int    `mapstructure:"virtual_nodes"`
}

type CircuitBreakerConfig struct {
	// Threshold of consecutive transport failures; 0 disables breaking.
	Threshold    int           `mapstructure:"threshold"`
	ResetTimeout time.Duration `mapstructure:"reset_timeout"`
}

type MetricsConfig struct {
	BufferSize int `mapstructure:"buffer_size"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type Config struct {
	Server         ServerConfig         `mapstructure:"server"`
	Admin          AdminConfig          `mapstructure:"admin"`
	Routing        RoutingConfig        `mapstructure:"routing"`
	Upstream       UpstreamConfig       `mapstructure:"upstream"`
	Strategy       StrategyConfig       `mapstructure:"strategy"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
	Metrics        MetricsConfig        `mapstructure:"metrics"`
	Logging        LoggingConfig        `mapstructure:"logging"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.environment", EnvDev)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("admin.address", ":9090")
	v.SetDefault("routing.file", "haproxy.cfg")
	v.SetDefault("routing.mode", ModeSnapshot)
	v.SetDefault("routing.reload_interval", 30*time.Second)
	v.SetDefault("upstream.scheme", "http")
	v.SetDefault("upstream.timeout", 30*time.Second)
	v.SetDefault("strategy.type", "first")
	v.SetDefault("strategy.virtual_nodes", 100)
	v.SetDefault("circuit_breaker.threshold", 0)
	v.SetDefault("circuit_breaker.reset_timeout", 30*time.Second)
	v.SetDefault("metrics.buffer_size", 1000)
	v.SetDefault("logging.level", LogLevelInfo)
	v.SetDefault("logging.format", LogFormatText)
}

// Load reads configuration from file, or from config.yaml in ./config or
// the working directory when file is empty, then applies environment
// overrides. CONFIG_PATH sets the routing file.
func Load(file string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	if err := v.BindEnv("routing.file", "ROUTING_FILE", "CONFIG_PATH"); err != nil {
		return nil, err
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			slog.Error("failed to read config file", slog.String("error", err.Error()))
			return nil, err
		}
		slog.Info("config file not found, using defaults and environment variables")
	} else {
		slog.Info("loaded config file", slog.String("file", v.ConfigFileUsed()))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		slog.Error("failed to unmarshal config", slog.String("error", err.Error()))
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		return nil, err
	}

	return &cfg, nil
}

var positiveDuration = validation.Min(time.Duration(0)).Exclusive()

func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Server),
		validation.Field(&c.Admin),
		validation.Field(&c.Routing),
		validation.Field(&c.Upstream),
		validation.Field(&c.Strategy),
		validation.Field(&c.CircuitBreaker),
		validation.Field(&c.Metrics),
		validation.Field(&c.Logging),
	)
}

func (c ServerConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Address, validation.Required, validation.By(httpserver.ValidateAddress)),
		validation.Field(&c.Environment, validation.Required, validation.In(EnvDev, EnvStaging, EnvProd)),
		validation.Field(&c.ReadTimeout, positiveDuration),
		validation.Field(&c.WriteTimeout, positiveDuration),
		validation.Field(&c.IdleTimeout, positiveDuration),
	)
}

func (c AdminConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Address, validation.Required, validation.By(httpserver.ValidateAddress)),
	)
}

func (c RoutingConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.File, validation.Required),
		validation.Field(&c.Mode, validation.Required, validation.In(ModeSnapshot, ModePerRequest)),
		validation.Field(&c.ReloadInterval, validation.Min(time.Duration(0))),
	)
}

func (c UpstreamConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Scheme, validation.Required, validation.In("http", "https")),
		validation.Field(&c.Timeout, positiveDuration),
	)
}

func (c StrategyConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Type,
			validation.Required,
			validation.In("first", "round-robin", "random", "consistent_hash"),
		),
		validation.Field(&c.VirtualNodes, validation.Required, validation.Min(1)),
	)
}

func (c CircuitBreakerConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Threshold, validation.Min(0)),
		validation.Field(&c.ResetTimeout, positiveDuration),
	)
}

func (c MetricsConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.BufferSize, validation.Required, validation.Min(1)),
	)
}

func (c LoggingConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Level,
			validation.Required,
			validation.In(LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError),
		),
		validation.Field(&c.Format, validation.Required, validation.In(LogFormatText, LogFormatJSON)),
	)
}
