// Package config loads sandsync configuration from a YAML file, with
// SANDSYNC_* environment variables overriding file values.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const EnvPrefix = "SANDSYNC"

type Config struct {
	Logging  LoggingConfig  `mapstructure:"logging" yaml:"logging"`
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
	Client   ClientConfig   `mapstructure:"client" yaml:"client"`
	Transfer TransferConfig `mapstructure:"transfer" yaml:"transfer"`
	Metrics  MetricsConfig  `mapstructure:"metrics" yaml:"metrics"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Output is "stderr", "stdout", or a directory that receives one
	// <node>.log file per process.
	Output string `mapstructure:"output" validate:"required" yaml:"output"`

	NodeID string `mapstructure:"node_id" yaml:"node_id"`
}

type ServerConfig struct {
	Listen       string        `mapstructure:"listen" validate:"required" yaml:"listen"`
	Mount        string        `mapstructure:"mount" validate:"required" yaml:"mount"`
	LeaseTTL     time.Duration `mapstructure:"lease_ttl" validate:"gt=0" yaml:"lease_ttl"`
	CallbackHold time.Duration `mapstructure:"callback_hold" validate:"gt=0" yaml:"callback_hold"`

	// WatchMount wakes waiting clients when files under the mount root are
	// changed directly rather than through the server.
	WatchMount bool `mapstructure:"watch_mount" yaml:"watch_mount"`
}

type ClientConfig struct {
	Server       string        `mapstructure:"server" validate:"required" yaml:"server"`
	Mount        string        `mapstructure:"mount" validate:"required" yaml:"mount"`
	ClientID     string        `mapstructure:"client_id" yaml:"client_id"`
	Deadline     time.Duration `mapstructure:"deadline" validate:"gt=0" yaml:"deadline"`
	ResetTimeout time.Duration `mapstructure:"reset_timeout" validate:"gt=0" yaml:"reset_timeout"`
	ResetJitter  time.Duration `mapstructure:"reset_jitter" validate:"gte=0" yaml:"reset_jitter"`
	Debounce     time.Duration `mapstructure:"debounce" validate:"gte=0" yaml:"debounce"`
}

type TransferConfig struct {
	ChunkSize   int    `mapstructure:"chunk_size" validate:"gt=0,lte=1048576" yaml:"chunk_size"`
	Compression string `mapstructure:"compression" validate:"oneof=none zstd" yaml:"compression"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Listen  string `mapstructure:"listen" validate:"required_if=Enabled true" yaml:"listen"`
}

// DefaultConfigPath is $XDG_CONFIG_HOME/sandsync/config.yaml or the platform
// equivalent, falling back to the working directory.
func DefaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "sandsync.yaml"
	}
	return filepath.Join(dir, "sandsync", "config.yaml")
}

func setupViper(v *viper.Viper, path string) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// Every key needs a default so that environment variables can override
	// keys the file leaves out.
	d := Default()
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.output", d.Logging.Output)
	v.SetDefault("logging.node_id", d.Logging.NodeID)
	v.SetDefault("server.listen", d.Server.Listen)
	v.SetDefault("server.mount", d.Server.Mount)
	v.SetDefault("server.lease_ttl", d.Server.LeaseTTL)
	v.SetDefault("server.callback_hold", d.Server.CallbackHold)
	v.SetDefault("server.watch_mount", d.Server.WatchMount)
	v.SetDefault("client.server", d.Client.Server)
	v.SetDefault("client.mount", d.Client.Mount)
	v.SetDefault("client.client_id", d.Client.ClientID)
	v.SetDefault("client.deadline", d.Client.Deadline)
	v.SetDefault("client.reset_timeout", d.Client.ResetTimeout)
	v.SetDefault("client.reset_jitter", d.Client.ResetJitter)
	v.SetDefault("client.debounce", d.Client.Debounce)
	v.SetDefault("transfer.chunk_size", d.Transfer.ChunkSize)
	v.SetDefault("transfer.compression", d.Transfer.Compression)
	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.listen", d.Metrics.Listen)
}

// Load reads path, applies environment overrides and validates the result.
// A missing file is an error; use LoadOrInit to create one.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
	}

	v := viper.New()
	setupViper(v, path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrInit loads path, first writing the default configuration there if
// the file does not exist. created reports whether it did.
func LoadOrInit(path string) (cfg *Config, created bool, err error) {
	if _, statErr := os.Stat(path); errors.Is(statErr, fs.ErrNotExist) {
		if err := SaveConfig(Default(), path); err != nil {
			return nil, false, err
		}
		created = true
	}

	cfg, err = Load(path)
	return cfg, created, err
}

func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func Validate(cfg *Config) error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}
