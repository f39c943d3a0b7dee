package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"unigen/internal/config"
	"unigen/internal/logging"
)

func TestLogManagerInitialization(t *testing.T) {
	tmpDir := t.TempDir()
	logPath := filepath.Join(tmpDir, "nested", "control-plane.log")

	lm, err := logging.NewManager(logging.Config{
		FilePath:   logPath,
		MaxSizeMB:  1,
		MaxBackups: 1,
		MaxAgeDays: 1,
		Level:      "debug",
	})
	if err != nil {
		t.Fatalf("failed to create LogManager: %v", err)
	}
	defer lm.Close()

	lm.For("app").Info("test message")
	_ = lm.Sync()

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("log file was not created: %v", err)
	}
	if !strings.Contains(string(data), `"msg":"test message"`) || !strings.Contains(string(data), `"logger":"app"`) {
		t.Errorf("unexpected log content: %s", data)
	}
}

func TestLogLevel_Precedence(t *testing.T) {
	withLevel := config.DefaultConfig()
	withLevel.LogLevel = "error"
	noLevel := config.DefaultConfig()
	noLevel.LogLevel = ""

	tests := []struct {
		name string
		opts options
		cfg  config.Config
		want string
	}{
		{"debug wins", options{debug: true, logFilter: "warn"}, withLevel, "debug"},
		{"filter over config", options{logFilter: "warn"}, withLevel, "warn"},
		{"config", options{}, withLevel, "error"},
		{"fallback", options{}, noLevel, "info"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := logLevel(tt.opts, tt.cfg); got != tt.want {
				t.Errorf("logLevel() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLoadConfig_FromDir(t *testing.T) {
	dir := t.TempDir()
	yaml := "theme: latte\ncontrol_plane:\n  settle_delay: 250ms\n"
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := loadConfig(dir)
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	if cfg.Theme != "latte" {
		t.Errorf("Theme = %q, want latte", cfg.Theme)
	}
	if got := cfg.ControlPlane.SettleDelay.Std().String(); got != "250ms" {
		t.Errorf("SettleDelay = %s, want 250ms", got)
	}
	if cfg.Kill.MaxPolls != 200 {
		t.Errorf("Kill.MaxPolls = %d, want default 200", cfg.Kill.MaxPolls)
	}
}
