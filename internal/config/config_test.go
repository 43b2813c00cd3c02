package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sensorbench/sensorbench/internal/config"
)

func TestConfig_Load(t *testing.T) {
	t.Run("defaults are valid", func(t *testing.T) {
		cfg := config.Default()
		require.NoError(t, cfg.Validate())
		require.Equal(t, config.DefaultBaudRate, cfg.Device.Baud)
		require.Equal(t, 2500*time.Millisecond, cfg.Recording.Duration)
	})

	t.Run("empty path returns defaults", func(t *testing.T) {
		cfg, err := config.Load("")
		require.NoError(t, err)
		require.Equal(t, config.DefaultBaseDir, cfg.BaseDir)
	})

	t.Run("yaml file overrides defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
base_dir: /tmp/bench
device:
  baud: 9600
  vid: "1a86"
  pid: "7523"
recording:
  duration: 5s
smoothing:
  window: 9
  order: 2
`), 0o644))

		cfg, err := config.Load(path)
		require.NoError(t, err)
		require.Equal(t, "/tmp/bench", cfg.BaseDir)
		require.Equal(t, 9600, cfg.Device.Baud)
		require.Equal(t, "1a86", cfg.Device.VID)
		require.Equal(t, 5*time.Second, cfg.Recording.Duration)
		require.Equal(t, 9, cfg.Smoothing.Window)
		// Untouched keys keep defaults.
		require.Equal(t, config.DefaultListenAddr, cfg.ListenAddr)
	})

	t.Run("environment overrides yaml", func(t *testing.T) {
		t.Setenv("SENSORBENCH_BASE_DIR", "/data/bench")
		t.Setenv("SENSORBENCH_PORT", "/dev/ttyACM9")

		cfg, err := config.Load("")
		require.NoError(t, err)
		require.Equal(t, "/data/bench", cfg.BaseDir)
		require.Equal(t, "/dev/ttyACM9", cfg.Device.Port)
	})

	t.Run("missing file is an error", func(t *testing.T) {
		_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
		require.Error(t, err)
	})
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"empty base dir", func(c *config.Config) { c.BaseDir = "" }},
		{"zero baud", func(c *config.Config) { c.Device.Baud = 0 }},
		{"no port and no vid/pid", func(c *config.Config) { c.Device.Port, c.Device.VID = "", "" }},
		{"zero read timeout", func(c *config.Config) { c.Device.ReadTimeout = 0 }},
		{"zero duration", func(c *config.Config) { c.Recording.Duration = 0 }},
		{"even smoothing window", func(c *config.Config) { c.Smoothing.Window = 10 }},
		{"order not below window", func(c *config.Config) { c.Smoothing.Order = 11 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := config.Default()
			tc.mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}

	t.Run("explicit port without vid/pid is valid", func(t *testing.T) {
		t.Parallel()
		cfg := config.Default()
		cfg.Device.Port = "/dev/ttyACM0"
		cfg.Device.VID, cfg.Device.PID = "", ""
		require.NoError(t, cfg.Validate())
	})
}
