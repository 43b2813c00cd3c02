package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// Wio Terminal USB identifiers (VID 0x2886, PID 0x802D).
	DefaultVID = "2886"
	DefaultPID = "802D"

	DefaultBaudRate    = 115200
	DefaultDuration    = 2500 * time.Millisecond
	DefaultReadTimeout = 100 * time.Millisecond

	DefaultBaseDir     = "samples"
	DefaultListenAddr  = ":8080"
	DefaultMetricsAddr = "127.0.0.1:2112"
)

// DeviceConfig describes how to locate and open the serial device.
type DeviceConfig struct {
	// Port is an explicit serial port path. When empty the device is located
	// by VID/PID auto-detection.
	Port string `yaml:"port"`

	// VID and PID are the USB vendor/product identifiers to auto-detect,
	// as upper- or lower-case hex strings without a 0x prefix.
	VID string `yaml:"vid"`
	PID string `yaml:"pid"`

	// Baud is the serial line speed.
	Baud int `yaml:"baud"`

	// ReadTimeout bounds a single blocking read on the port.
	ReadTimeout time.Duration `yaml:"read_timeout"`
}

// RecordingConfig describes the capture window.
type RecordingConfig struct {
	// Duration is the capture window, measured in device time.
	Duration time.Duration `yaml:"duration"`
}

// SmoothingConfig describes the preview filter.
type SmoothingConfig struct {
	Window int `yaml:"window"`
	Order  int `yaml:"order"`
}

// Config is the full sensorbench configuration.
type Config struct {
	// BaseDir is the root of the labeled recording store.
	BaseDir string `yaml:"base_dir"`

	// ListenAddr is the HTTP API listen address for service mode.
	ListenAddr string `yaml:"listen_addr"`

	// MetricsAddr is the Prometheus metrics listen address.
	MetricsAddr string `yaml:"metrics_addr"`

	Device    DeviceConfig    `yaml:"device"`
	Recording RecordingConfig `yaml:"recording"`
	Smoothing SmoothingConfig `yaml:"smoothing"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		BaseDir:     DefaultBaseDir,
		ListenAddr:  DefaultListenAddr,
		MetricsAddr: DefaultMetricsAddr,
		Device: DeviceConfig{
			VID:         DefaultVID,
			PID:         DefaultPID,
			Baud:        DefaultBaudRate,
			ReadTimeout: DefaultReadTimeout,
		},
		Recording: RecordingConfig{
			Duration: DefaultDuration,
		},
		Smoothing: SmoothingConfig{
			Window: 11,
			Order:  3,
		},
	}
}

// Load returns the defaults overlaid with the YAML file at path (if path is
// non-empty) and then with environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("SENSORBENCH_BASE_DIR"); v != "" {
		cfg.BaseDir = v
	}
	if v := os.Getenv("SENSORBENCH_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("SENSORBENCH_METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
	if v := os.Getenv("SENSORBENCH_PORT"); v != "" {
		cfg.Device.Port = v
	}
}

func (c *Config) Validate() error {
	if c.BaseDir == "" {
		return errors.New("base dir is required")
	}
	if c.Device.Baud <= 0 {
		return errors.New("baud rate must be greater than 0")
	}
	if c.Device.Port == "" && (c.Device.VID == "" || c.Device.PID == "") {
		return errors.New("either an explicit port or a vid/pid pair is required")
	}
	if c.Device.ReadTimeout <= 0 {
		return errors.New("read timeout must be greater than 0")
	}
	if c.Recording.Duration <= 0 {
		return errors.New("recording duration must be greater than 0")
	}
	if c.Smoothing.Window <= 0 || c.Smoothing.Window%2 == 0 {
		return errors.New("smoothing window must be a positive odd number")
	}
	if c.Smoothing.Order < 0 || c.Smoothing.Order >= c.Smoothing.Window {
		return errors.New("smoothing order must be non-negative and below the window")
	}
	return nil
}
