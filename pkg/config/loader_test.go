package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/togglekit/pkg/config"
)

type storeConfig struct {
	URL      string        `env:"TEST_TOGGLE_STORE_URL" envDefault:"redis://localhost:6379/0"`
	Attempts int           `env:"TEST_TOGGLE_STORE_ATTEMPTS" envDefault:"10"`
	Interval time.Duration `env:"TEST_TOGGLE_STORE_INTERVAL" envDefault:"1s"`
}

type requiredConfig struct {
	Value string `env:"TEST_TOGGLE_REQUIRED,required"`
}

type fileConfig struct {
	Value string `env:"TEST_TOGGLE_FROM_FILE"`
}

func TestLoad(t *testing.T) {
	t.Run("nil pointer", func(t *testing.T) {
		err := config.Load[storeConfig](nil)
		assert.ErrorIs(t, err, config.ErrNilPointer)
	})

	t.Run("defaults and cache", func(t *testing.T) {
		config.Reset()
		t.Setenv("TEST_TOGGLE_STORE_ATTEMPTS", "3")

		var cfg storeConfig
		require.NoError(t, config.Load(&cfg))
		assert.Equal(t, "redis://localhost:6379/0", cfg.URL)
		assert.Equal(t, 3, cfg.Attempts)
		assert.Equal(t, time.Second, cfg.Interval)

		// Cached: environment changes are not picked up until Reset.
		t.Setenv("TEST_TOGGLE_STORE_ATTEMPTS", "7")
		var again storeConfig
		require.NoError(t, config.Load(&again))
		assert.Equal(t, 3, again.Attempts)

		config.Reset()
		var reloaded storeConfig
		require.NoError(t, config.Load(&reloaded))
		assert.Equal(t, 7, reloaded.Attempts)
	})

	t.Run("required variable missing", func(t *testing.T) {
		config.Reset()
		os.Unsetenv("TEST_TOGGLE_REQUIRED")

		var cfg requiredConfig
		err := config.Load(&cfg)
		assert.ErrorIs(t, err, config.ErrParsingConfig)
		assert.Panics(t, func() { config.MustLoad(&cfg) })
	})
}

func TestLoadEnv(t *testing.T) {
	t.Run("loads custom file", func(t *testing.T) {
		config.Reset()
		os.Unsetenv("TEST_TOGGLE_FROM_FILE")
		t.Cleanup(func() { os.Unsetenv("TEST_TOGGLE_FROM_FILE") })

		path := filepath.Join(t.TempDir(), "test.env")
		require.NoError(t, os.WriteFile(path, []byte("TEST_TOGGLE_FROM_FILE=from-file\n"), 0o600))
		require.NoError(t, config.LoadEnv(path))

		var cfg fileConfig
		require.NoError(t, config.Load(&cfg))
		assert.Equal(t, "from-file", cfg.Value)
	})

	t.Run("missing file", func(t *testing.T) {
		err := config.LoadEnv(filepath.Join(t.TempDir(), "missing.env"))
		assert.ErrorIs(t, err, config.ErrLoadingEnvFile)
	})

	t.Run("no paths", func(t *testing.T) {
		assert.NoError(t, config.LoadEnv())
	})
}
