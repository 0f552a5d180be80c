// Package config loads the gateway settings from an optional YAML file,
// a .env file and the process environment, in that order of precedence
// (environment wins).
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment keys.
const (
	EnvConfigPath      = "GATEWAY_CONFIG_PATH"
	EnvGatewayAddr     = "GATEWAY_ADDR"
	EnvBaseEndpoint    = "CONFIG_BASE_ENDPOINT"
	EnvUpstreamTimeout = "UPSTREAM_TIMEOUT"
	EnvShutdownTimeout = "SHUTDOWN_TIMEOUT"
	EnvLogLevel        = "LOG_LEVEL"
	EnvLogFormat       = "LOG_FORMAT"
	EnvGinMode         = "GIN_MODE"
	EnvMetricsEnabled  = "METRICS_ENABLED"
	EnvTracingEnabled  = "TRACING_ENABLED"
	EnvOTLPEndpoint    = "OTLP_ENDPOINT"
	EnvSamplingRate    = "TRACING_SAMPLING_RATE"
)

var ErrMissingBaseEndpoint = errors.New("config.base.endpoint is required")

type Config struct {
	GatewayAddr     string
	BaseEndpoint    string
	UpstreamTimeout time.Duration
	ShutdownTimeout time.Duration
	LogLevel        string
	LogFormat       string
	GinMode         string
	MetricsEnabled  bool
	TracingEnabled  bool
	OTLPEndpoint    string
	SamplingRate    float64
}

// Default returns the settings used when nothing overrides them.
func Default() Config {
	return Config{
		GatewayAddr:     ":8080",
		UpstreamTimeout: 10 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		LogLevel:        "info",
		LogFormat:       "json",
		GinMode:         "release",
		MetricsEnabled:  true,
		SamplingRate:    1.0,
	}
}

// fileConfig mirrors the YAML layout. The upstream address keeps the
// historical property path config.base.endpoint.
type fileConfig struct {
	Config struct {
		Base struct {
			Endpoint string `yaml:"endpoint"`
		} `yaml:"base"`
	} `yaml:"config"`
	Gateway struct {
		Addr            string `yaml:"addr"`
		UpstreamTimeout string `yaml:"upstream_timeout"`
		ShutdownTimeout string `yaml:"shutdown_timeout"`
		GinMode         string `yaml:"gin_mode"`
	} `yaml:"gateway"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Metrics struct {
		Enabled *bool `yaml:"enabled"`
	} `yaml:"metrics"`
	Tracing struct {
		Enabled      *bool    `yaml:"enabled"`
		OTLPEndpoint string   `yaml:"otlp_endpoint"`
		SamplingRate *float64 `yaml:"sampling_rate"`
	} `yaml:"tracing"`
}

// Load reads .env (if present), the YAML file named by GATEWAY_CONFIG_PATH
// (if set) and the environment, then validates the result.
func Load() (Config, error) {
	_ = godotenv.Load() // load .env if it exists

	cfg := Default()
	if path := os.Getenv(EnvConfigPath); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadFile is Load without the .env and environment steps.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	if err := cfg.applyFile(path); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	setString(&c.BaseEndpoint, fc.Config.Base.Endpoint)
	setString(&c.GatewayAddr, fc.Gateway.Addr)
	setString(&c.GinMode, fc.Gateway.GinMode)
	setString(&c.LogLevel, fc.Log.Level)
	setString(&c.LogFormat, fc.Log.Format)
	setString(&c.OTLPEndpoint, fc.Tracing.OTLPEndpoint)
	if err := setDuration(&c.UpstreamTimeout, "gateway.upstream_timeout", fc.Gateway.UpstreamTimeout); err != nil {
		return err
	}
	if err := setDuration(&c.ShutdownTimeout, "gateway.shutdown_timeout", fc.Gateway.ShutdownTimeout); err != nil {
		return err
	}
	if fc.Metrics.Enabled != nil {
		c.MetricsEnabled = *fc.Metrics.Enabled
	}
	if fc.Tracing.Enabled != nil {
		c.TracingEnabled = *fc.Tracing.Enabled
	}
	if fc.Tracing.SamplingRate != nil {
		c.SamplingRate = *fc.Tracing.SamplingRate
	}
	return nil
}

func (c *Config) applyEnv() error {
	setString(&c.GatewayAddr, os.Getenv(EnvGatewayAddr))
	setString(&c.BaseEndpoint, os.Getenv(EnvBaseEndpoint))
	setString(&c.LogLevel, os.Getenv(EnvLogLevel))
	setString(&c.LogFormat, os.Getenv(EnvLogFormat))
	setString(&c.GinMode, os.Getenv(EnvGinMode))
	setString(&c.OTLPEndpoint, os.Getenv(EnvOTLPEndpoint))

	if err := setDuration(&c.UpstreamTimeout, EnvUpstreamTimeout, os.Getenv(EnvUpstreamTimeout)); err != nil {
		return err
	}
	if err := setDuration(&c.ShutdownTimeout, EnvShutdownTimeout, os.Getenv(EnvShutdownTimeout)); err != nil {
		return err
	}
	if err := setBool(&c.MetricsEnabled, EnvMetricsEnabled, os.Getenv(EnvMetricsEnabled)); err != nil {
		return err
	}
	if err := setBool(&c.TracingEnabled, EnvTracingEnabled, os.Getenv(EnvTracingEnabled)); err != nil {
		return err
	}
	if v := os.Getenv(EnvSamplingRate); v != "" {
		rate, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvSamplingRate, err)
		}
		c.SamplingRate = rate
	}
	return nil
}

// Validate checks that the upstream endpoint is an absolute http(s) URL and
// that the timeouts are positive.
func (c Config) Validate() error {
	if c.BaseEndpoint == "" {
		return ErrMissingBaseEndpoint
	}
	u, err := url.Parse(c.BaseEndpoint)
	if err != nil {
		return fmt.Errorf("config.base.endpoint: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("config.base.endpoint must be an absolute http(s) URL, got %q", c.BaseEndpoint)
	}
	if c.UpstreamTimeout <= 0 {
		return fmt.Errorf("upstream timeout must be positive, got %s", c.UpstreamTimeout)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown timeout must be positive, got %s", c.ShutdownTimeout)
	}
	if c.GatewayAddr == "" {
		return errors.New("gateway address is required")
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, key, v string) error {
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}

func setBool(dst *bool, key, v string) error {
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = b
	return nil
}
