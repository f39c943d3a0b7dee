package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	return configPath
}

func TestLoadFullConfig(t *testing.T) {
	configPath := writeConfig(t, `
theme: latte
log_level: debug
data_dir: /var/lib/unigen
control_plane:
  settle_delay: 250ms
  startup_delay: 0s
  retry_delay: 3s
  grace_period: 1s
kill:
  poll_interval: 20ms
  max_polls: 50
`)

	cfg, err := LoadFrom(configPath)
	if err != nil {
		t.Fatalf("LoadFrom failed: %v", err)
	}

	if cfg.Theme != "latte" {
		t.Errorf("Theme: got %q, want %q", cfg.Theme, "latte")
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel: got %q, want %q", cfg.LogLevel, "debug")
	}
	if cfg.DataDir != "/var/lib/unigen" {
		t.Errorf("DataDir: got %q", cfg.DataDir)
	}

	cp := cfg.ControlPlane
	if cp.SettleDelay.Std() != 250*time.Millisecond {
		t.Errorf("SettleDelay: got %v", cp.SettleDelay.Std())
	}
	if cp.StartupDelay.Std() != 0 {
		t.Errorf("StartupDelay: got %v, want 0", cp.StartupDelay.Std())
	}
	if cp.RetryDelay.Std() != 3*time.Second {
		t.Errorf("RetryDelay: got %v", cp.RetryDelay.Std())
	}
	if cp.GracePeriod.Std() != time.Second {
		t.Errorf("GracePeriod: got %v", cp.GracePeriod.Std())
	}

	if got := cfg.KillTimeout(); got != time.Second {
		t.Errorf("KillTimeout: got %v, want 1s", got)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("LoadFrom failed: %v", err)
	}

	def := DefaultConfig()
	if cfg != def {
		t.Errorf("got %+v, want defaults %+v", cfg, def)
	}
	if cfg.Theme != "mocha" {
		t.Errorf("Theme: got %q, want mocha", cfg.Theme)
	}
	if got := cfg.KillTimeout(); got != 2*time.Second {
		t.Errorf("default KillTimeout: got %v, want 2s", got)
	}
	if cfg.ControlPlane.SettleDelay.Std() != time.Second {
		t.Errorf("default SettleDelay: got %v", cfg.ControlPlane.SettleDelay.Std())
	}
	if cfg.ControlPlane.GracePeriod.Std() != 500*time.Millisecond {
		t.Errorf("default GracePeriod: got %v", cfg.ControlPlane.GracePeriod.Std())
	}
}

func TestLoadPartialConfigKeepsDefaults(t *testing.T) {
	cfg, err := LoadFrom(writeConfig(t, "theme: frappe\n"))
	if err != nil {
		t.Fatalf("LoadFrom failed: %v", err)
	}

	if cfg.Theme != "frappe" {
		t.Errorf("Theme: got %q", cfg.Theme)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel: got %q, want info", cfg.LogLevel)
	}
	if cfg.Kill.MaxPolls != 200 {
		t.Errorf("MaxPolls: got %d, want 200", cfg.Kill.MaxPolls)
	}
	if cfg.ControlPlane.StartupDelay.Std() != 2*time.Second {
		t.Errorf("StartupDelay: got %v, want 2s", cfg.ControlPlane.StartupDelay.Std())
	}
}

func TestLoadEmptyThemeFallsBack(t *testing.T) {
	cfg, err := LoadFrom(writeConfig(t, "theme: \"\"\n"))
	if err != nil {
		t.Fatalf("LoadFrom failed: %v", err)
	}
	if cfg.Theme != "mocha" {
		t.Errorf("Theme: got %q, want mocha", cfg.Theme)
	}
}

func TestLoadInvalidDuration(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"garbage", "control_plane:\n  settle_delay: soon\n"},
		{"negative", "control_plane:\n  grace_period: -1s\n"},
		{"not a scalar", "kill:\n  poll_interval: [1, 2]\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadFrom(writeConfig(t, tt.content))
			if err == nil {
				t.Fatal("expected an error")
			}
			if cfg != DefaultConfig() {
				t.Errorf("failed load should return defaults, got %+v", cfg)
			}
		})
	}
}

func TestLoadMalformedYAML(t *testing.T) {
	_, err := LoadFrom(writeConfig(t, "theme: [unclosed\n"))
	if err == nil {
		t.Fatal("expected a parse error")
	}
	if !strings.Contains(err.Error(), "config.yaml") {
		t.Errorf("error should name the file: %v", err)
	}
}

func TestLoadFromDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("log_level: warn\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromDir(dir)
	if err != nil {
		t.Fatalf("LoadFromDir failed: %v", err)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel: got %q, want warn", cfg.LogLevel)
	}
}

func TestDurationRoundTrip(t *testing.T) {
	in := DefaultConfig()
	data, err := yaml.Marshal(in)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if !strings.Contains(string(data), "grace_period: 500ms") {
		t.Errorf("durations should marshal as strings:\n%s", data)
	}
}

func TestResolveDataDir(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/xdg")

	tests := []struct {
		name      string
		cfg       Config
		configDir string
		want      string
	}{
		{"explicit data dir wins", Config{DataDir: "/data"}, "/cfg", "/data"},
		{"config dir", Config{}, "/cfg", "/cfg"},
		{"default", Config{}, "", filepath.Join("/xdg", "unigen")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.ResolveDataDir(tt.configDir); got != tt.want {
				t.Errorf("ResolveDataDir(%q) = %q, want %q", tt.configDir, got, tt.want)
			}
		})
	}
}

func TestResolveDataDirExpandsHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}

	cfg := Config{DataDir: "~/unigen-data"}
	if got, want := cfg.ResolveDataDir(""), filepath.Join(home, "unigen-data"); got != want {
		t.Errorf("ResolveDataDir = %q, want %q", got, want)
	}
}

func TestGetConfigPathXDG(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
	if got, want := getConfigPath(), filepath.Join("/tmp/xdg", "unigen", "config.yaml"); got != want {
		t.Errorf("getConfigPath() = %q, want %q", got, want)
	}
}
