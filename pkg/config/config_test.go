package config

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sourceConfig struct {
	URL       string        `env:"CATEGORY_SERVICE_URL" envDefault:"http://localhost:8001/api/v1"`
	Timeout   time.Duration `env:"CATEGORY_FETCH_TIMEOUT" envDefault:"10s"`
	Retries   int           `env:"CATEGORY_MAX_RETRIES" envDefault:"0"`
	WarmStart bool          `env:"WARM_ON_START" envDefault:"true"`
	Origins   []string      `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
}

func (c *sourceConfig) Validate() error {
	if c.Retries < 0 {
		return errors.New("CATEGORY_MAX_RETRIES must not be negative")
	}
	return nil
}

type secretConfig struct {
	Secret string `env:"JWT_SECRET,required"`
}

func TestLoad_Defaults(t *testing.T) {
	var cfg sourceConfig
	require.NoError(t, Load(&cfg, WithEnvironment(map[string]string{})))

	assert.Equal(t, "http://localhost:8001/api/v1", cfg.URL)
	assert.Equal(t, 10*time.Second, cfg.Timeout)
	assert.Zero(t, cfg.Retries)
	assert.True(t, cfg.WarmStart)
	assert.Empty(t, cfg.Origins)
}

func TestLoad_ProcessEnvironment(t *testing.T) {
	t.Setenv("CATEGORY_SERVICE_URL", "http://categories.internal/api/v1")
	t.Setenv("CATEGORY_FETCH_TIMEOUT", "750ms")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://shop.example,https://admin.example")

	var cfg sourceConfig
	require.NoError(t, Load(&cfg))

	assert.Equal(t, "http://categories.internal/api/v1", cfg.URL)
	assert.Equal(t, 750*time.Millisecond, cfg.Timeout)
	assert.Equal(t, []string{"https://shop.example", "https://admin.example"}, cfg.Origins)
}

func TestLoad_Options(t *testing.T) {
	tests := []struct {
		name    string
		opts    []Option
		wantURL string
		wantTry int
	}{
		{
			name:    "explicit environment",
			opts:    []Option{WithEnvironment(map[string]string{"CATEGORY_SERVICE_URL": "http://a", "CATEGORY_MAX_RETRIES": "2"})},
			wantURL: "http://a",
			wantTry: 2,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cfg sourceConfig
			require.NoError(t, Load(&cfg, tt.opts...))
			assert.Equal(t, tt.wantURL, cfg.URL)
			assert.Equal(t, tt.wantTry, cfg.Retries)
		})
	}
}

func TestLoad_WithEnvironmentIgnoresProcessEnv(t *testing.T) {
	t.Setenv("CATEGORY_MAX_RETRIES", "9")

	var cfg sourceConfig
	require.NoError(t, Load(&cfg, WithEnvironment(map[string]string{"CATEGORY_SERVICE_URL": "http://b"})))
	assert.Equal(t, "http://b", cfg.URL)
	assert.Zero(t, cfg.Retries)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		cfg     any
		vars    map[string]string
		wantErr string
	}{
		{"required missing", &secretConfig{}, map[string]string{}, "parse config"},
		{"bad duration", &sourceConfig{}, map[string]string{"CATEGORY_FETCH_TIMEOUT": "soon"}, "parse config"},
		{"bad int", &sourceConfig{}, map[string]string{"CATEGORY_MAX_RETRIES": "many"}, "parse config"},
		{"validate", &sourceConfig{}, map[string]string{"CATEGORY_MAX_RETRIES": "-1"}, "invalid config: CATEGORY_MAX_RETRIES must not be negative"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Load(tt.cfg, WithEnvironment(tt.vars))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_RequiredPresent(t *testing.T) {
	var cfg secretConfig
	require.NoError(t, Load(&cfg, WithEnvironment(map[string]string{"JWT_SECRET": "s3cret"})))
	assert.Equal(t, "s3cret", cfg.Secret)
}
