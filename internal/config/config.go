// pattern: Imperative Shell

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const appName = "unigen"

type Config struct {
	Theme        string             `yaml:"theme"`
	LogLevel     string             `yaml:"log_level"`
	DataDir      string             `yaml:"data_dir"`
	ControlPlane ControlPlaneConfig `yaml:"control_plane"`
	Kill         KillConfig         `yaml:"kill"`
}

// ControlPlaneConfig tunes the timing of the background control plane.
type ControlPlaneConfig struct {
	SettleDelay  Duration `yaml:"settle_delay"`  // wait after spawning before re-checking the lock
	StartupDelay Duration `yaml:"startup_delay"` // wait before the shutdown monitor first connects
	RetryDelay   Duration `yaml:"retry_delay"`   // wait between monitor reconnect attempts
	GracePeriod  Duration `yaml:"grace_period"`  // in-flight delivery window before the broker closes
}

// KillConfig bounds how long --kill waits for the broker to acknowledge.
type KillConfig struct {
	PollInterval Duration `yaml:"poll_interval"`
	MaxPolls     int      `yaml:"max_polls"`
}

// Duration is a time.Duration written as a Go duration string ("1s", "500ms").
type Duration time.Duration

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return fmt.Errorf("duration: %w", err)
	}
	parsed, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	if parsed < 0 {
		return fmt.Errorf("line %d: negative duration %q", node.Line, s)
	}
	*d = Duration(parsed)
	return nil
}

func DefaultConfig() Config {
	return Config{
		Theme:    "mocha",
		LogLevel: "info",
		ControlPlane: ControlPlaneConfig{
			SettleDelay:  Duration(time.Second),
			StartupDelay: Duration(2 * time.Second),
			RetryDelay:   Duration(time.Second),
			GracePeriod:  Duration(500 * time.Millisecond),
		},
		Kill: KillConfig{
			PollInterval: Duration(10 * time.Millisecond),
			MaxPolls:     200,
		},
	}
}

func Load() (Config, error) {
	return LoadFrom(getConfigPath())
}

// LoadFromDir loads config.yaml from dir.
func LoadFromDir(dir string) (Config, error) {
	return LoadFrom(filepath.Join(dir, "config.yaml"))
}

func LoadFrom(configPath string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return DefaultConfig(), fmt.Errorf("parse %s: %w", configPath, err)
	}

	cfg.fillDefaults()
	return cfg, nil
}

// fillDefaults restores zero values a partial file may have left behind.
func (c *Config) fillDefaults() {
	def := DefaultConfig()
	if c.Theme == "" {
		c.Theme = def.Theme
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	if c.Kill.PollInterval == 0 {
		c.Kill.PollInterval = def.Kill.PollInterval
	}
	if c.Kill.MaxPolls <= 0 {
		c.Kill.MaxPolls = def.Kill.MaxPolls
	}
	if c.ControlPlane.RetryDelay == 0 {
		c.ControlPlane.RetryDelay = def.ControlPlane.RetryDelay
	}
}

// ResolveDataDir returns where logs and state live: data_dir from the file,
// else the explicit config directory, else the default config directory.
func (c *Config) ResolveDataDir(configDir string) string {
	if c.DataDir != "" {
		return expandHome(c.DataDir)
	}
	if configDir != "" {
		return configDir
	}
	return filepath.Dir(getConfigPath())
}

// KillTimeout is the overall confirmation window of --kill.
func (c *Config) KillTimeout() time.Duration {
	return time.Duration(c.Kill.MaxPolls) * c.Kill.PollInterval.Std()
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

func getConfigPath() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, appName, "config.yaml")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".config", appName, "config.yaml")
	}

	return filepath.Join(home, ".config", appName, "config.yaml")
}
