package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Camera types.
const (
	CameraCommand     = "command"      // external still-capture tool writing JPEG to stdout
	CameraTestPattern = "test_pattern" // synthetic frames, no hardware
)

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host          string `yaml:"host" toml:"host"`
	Port          int    `yaml:"port" toml:"port"`
	ReadTimeoutMs int    `yaml:"read_timeout_ms" toml:"read_timeout_ms"` // request header/body read limit; writes are never timed out
}

// StorageConfig describes the storage medium and the naming template.
type StorageConfig struct {
	Root          string `yaml:"root" toml:"root"`                     // mount point of the medium, e.g. /mnt/sdcard
	CounterFile   string `yaml:"counter_file" toml:"counter_file"`     // counter record at the root
	NamePrefix    string `yaml:"name_prefix" toml:"name_prefix"`       // e.g. "picture"
	NameExtension string `yaml:"name_extension" toml:"name_extension"` // e.g. ".jpg"
}

// CameraConfig selects and tunes the sensor.
type CameraConfig struct {
	Type         string   `yaml:"type" toml:"type"`                     // "command" or "test_pattern"
	Command      []string `yaml:"command" toml:"command"`               // program + args, used by type "command"
	PowerDownPin int      `yaml:"power_down_pin" toml:"power_down_pin"` // PWDN line (BCM). 0 = not wired. Active HIGH.
	FlashPin     int      `yaml:"flash_pin" toml:"flash_pin"`           // flash LED (BCM). 0 = not wired.
	KeepAwake    bool     `yaml:"keep_awake" toml:"keep_awake"`         // leave the sensor powered between captures
	WarmupMs     int      `yaml:"warmup_ms" toml:"warmup_ms"`           // delay after power-up before acquiring
	Width        int      `yaml:"width" toml:"width"`                   // test_pattern only
	Height       int      `yaml:"height" toml:"height"`                 // test_pattern only
	JPEGQuality  int      `yaml:"jpeg_quality" toml:"jpeg_quality"`     // test_pattern only
}

// DefaultsConfig contains generic parameters.
type DefaultsConfig struct {
	DebugLevel int  `yaml:"debug_level" toml:"debug_level"` // debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
	MockGPIO   bool `yaml:"mock_gpio" toml:"mock_gpio"`     // use mock GPIO (true=dev/test, false=real Raspberry Pi)
}

// Config aggregates all application configuration.
// It is built once at boot and handed to every component.
type Config struct {
	Server   ServerConfig   `yaml:"server" toml:"server"`
	Storage  StorageConfig  `yaml:"storage" toml:"storage"`
	Camera   CameraConfig   `yaml:"camera" toml:"camera"`
	Defaults DefaultsConfig `yaml:"defaults" toml:"defaults"`
}

// Load reads a YAML (.yaml, .yml) or TOML (.toml) file and returns the
// validated configuration with defaults applied.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("unmarshal yaml: %w", err)
		}
	case ".toml":
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("unmarshal toml: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format %q (want .yaml or .toml)", ext)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults fills zero values with reasonable defaults.
func (c *Config) ApplyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 80
	}
	if c.Server.ReadTimeoutMs <= 0 {
		c.Server.ReadTimeoutMs = 10000
	}
	if c.Storage.CounterFile == "" {
		c.Storage.CounterFile = "filecounter.txt"
	}
	if c.Storage.NamePrefix == "" {
		c.Storage.NamePrefix = "picture"
	}
	if c.Storage.NameExtension == "" {
		c.Storage.NameExtension = ".jpg"
	}
	if c.Camera.Type == "" {
		c.Camera.Type = CameraCommand
	}
}

// Validate checks values that have no sensible default.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Storage.Root == "" {
		return fmt.Errorf("storage.root is required")
	}
	if cf := c.Storage.CounterFile; cf == "." || cf == ".." || strings.ContainsAny(cf, `/\`) {
		return fmt.Errorf("storage.counter_file must be a bare file name, got %q", cf)
	}
	if strings.ContainsAny(c.Storage.NamePrefix+c.Storage.NameExtension, `/\`) {
		return fmt.Errorf("storage.name_prefix and name_extension must not contain path separators")
	}
	if c.isImageName(c.Storage.CounterFile) || c.isImageName(c.Storage.CounterFile+".tmp") {
		return fmt.Errorf("image names collide with storage.counter_file %q", c.Storage.CounterFile)
	}

	switch c.Camera.Type {
	case CameraCommand:
		if len(c.Camera.Command) == 0 {
			return fmt.Errorf("camera.command is required for camera.type %q", CameraCommand)
		}
	case CameraTestPattern:
	default:
		return fmt.Errorf("unsupported camera.type: %q", c.Camera.Type)
	}
	if c.Camera.PowerDownPin < 0 || c.Camera.FlashPin < 0 {
		return fmt.Errorf("camera pins must be >= 0")
	}
	if c.Camera.PowerDownPin != 0 && c.Camera.PowerDownPin == c.Camera.FlashPin {
		return fmt.Errorf("camera.power_down_pin and camera.flash_pin must differ, both are %d", c.Camera.FlashPin)
	}
	if c.Camera.WarmupMs < 0 {
		return fmt.Errorf("camera.warmup_ms must be >= 0, got %d", c.Camera.WarmupMs)
	}

	if c.Defaults.DebugLevel < 0 || c.Defaults.DebugLevel > 4 {
		return fmt.Errorf("defaults.debug_level must be between 0 and 4, got %d", c.Defaults.DebugLevel)
	}
	return nil
}

// isImageName reports whether name has the shape prefix + digits + extension.
// Case is ignored since FAT media fold it.
func (c *Config) isImageName(name string) bool {
	name = strings.ToLower(name)
	prefix := strings.ToLower(c.Storage.NamePrefix)
	ext := strings.ToLower(c.Storage.NameExtension)
	if len(name) <= len(prefix)+len(ext) || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ext) {
		return false
	}
	for _, r := range name[len(prefix) : len(name)-len(ext)] {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// ServerAddress returns the listen address.
func (c *Config) ServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// ReadTimeout returns the HTTP read timeout.
func (c *Config) ReadTimeout() time.Duration {
	return time.Duration(c.Server.ReadTimeoutMs) * time.Millisecond
}

// Warmup returns the sensor warm-up delay.
func (c *Config) Warmup() time.Duration {
	return time.Duration(c.Camera.WarmupMs) * time.Millisecond
}

// FileName derives the stored image name for sequence number n.
func (c *Config) FileName(n int) string {
	return fmt.Sprintf("%s%d%s", c.Storage.NamePrefix, n, c.Storage.NameExtension)
}
