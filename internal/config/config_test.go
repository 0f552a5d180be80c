package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, `
config:
  base:
    endpoint: http://products:8001/api/products
gateway:
  addr: ":9090"
  upstream_timeout: 3s
log:
  level: debug
  format: console
metrics:
  enabled: false
tracing:
  enabled: true
  otlp_endpoint: otel:4317
  sampling_rate: 0.5
`)

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "http://products:8001/api/products", cfg.BaseEndpoint)
	assert.Equal(t, ":9090", cfg.GatewayAddr)
	assert.Equal(t, 3*time.Second, cfg.UpstreamTimeout)
	assert.Equal(t, 15*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "console", cfg.LogFormat)
	assert.False(t, cfg.MetricsEnabled)
	assert.True(t, cfg.TracingEnabled)
	assert.Equal(t, "otel:4317", cfg.OTLPEndpoint)
	assert.Equal(t, 0.5, cfg.SamplingRate)
}

func TestLoadFile_Errors(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = LoadFile(writeFile(t, "config: [unterminated"))
	assert.Error(t, err)

	_, err = LoadFile(writeFile(t, "gateway:\n  addr: \":1\"\n"))
	assert.ErrorIs(t, err, ErrMissingBaseEndpoint)

	_, err = LoadFile(writeFile(t, `
config:
  base:
    endpoint: http://products:8001
gateway:
  upstream_timeout: soon
`))
	assert.ErrorContains(t, err, "gateway.upstream_timeout")
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeFile(t, `
config:
  base:
    endpoint: http://from-file:8001
gateway:
  upstream_timeout: 3s
`)
	t.Setenv(EnvConfigPath, path)
	t.Setenv(EnvBaseEndpoint, "https://from-env:8443/products")
	t.Setenv(EnvUpstreamTimeout, "750ms")
	t.Setenv(EnvMetricsEnabled, "false")
	t.Setenv(EnvSamplingRate, "0.25")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://from-env:8443/products", cfg.BaseEndpoint)
	assert.Equal(t, 750*time.Millisecond, cfg.UpstreamTimeout)
	assert.False(t, cfg.MetricsEnabled)
	assert.Equal(t, 0.25, cfg.SamplingRate)
	assert.Equal(t, ":8080", cfg.GatewayAddr)
}

func TestLoad_InvalidEnv(t *testing.T) {
	t.Setenv(EnvConfigPath, "")
	t.Setenv(EnvBaseEndpoint, "http://products:8001")
	t.Setenv(EnvTracingEnabled, "maybe")

	_, err := Load()
	assert.ErrorContains(t, err, EnvTracingEnabled)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "missing endpoint", mutate: func(c *Config) { c.BaseEndpoint = "" }, wantErr: true},
		{name: "relative endpoint", mutate: func(c *Config) { c.BaseEndpoint = "/api/products" }, wantErr: true},
		{name: "unsupported scheme", mutate: func(c *Config) { c.BaseEndpoint = "lb://product-service" }, wantErr: true},
		{name: "zero upstream timeout", mutate: func(c *Config) { c.UpstreamTimeout = 0 }, wantErr: true},
		{name: "negative shutdown timeout", mutate: func(c *Config) { c.ShutdownTimeout = -time.Second }, wantErr: true},
		{name: "empty address", mutate: func(c *Config) { c.GatewayAddr = "" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.BaseEndpoint = "http://localhost:8001/api/products"
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
