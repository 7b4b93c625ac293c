package config

import (
	"encoding/base32"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

const validConfig = `
auth:
  netid: jdoe2
  duo-secret: super-secret-seed
mail:
  server: imap.example.edu
  address: jdoe2@example.edu
  password: hunter2
poll:
  interval: 2s
  max-wait: 3m
integrations:
  - print
  - clipboard
`

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, validConfig))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Auth.NetID != "jdoe2" {
		t.Errorf("netid = %q", cfg.Auth.NetID)
	}
	if cfg.Mail.Port != 993 {
		t.Errorf("default port = %d, want 993", cfg.Mail.Port)
	}
	if cfg.Poll.Interval.Std() != 2*time.Second {
		t.Errorf("interval = %s, want 2s", cfg.Poll.Interval.Std())
	}
	if cfg.Poll.MaxWait.Std() != 3*time.Minute {
		t.Errorf("max-wait = %s, want 3m", cfg.Poll.MaxWait.Std())
	}
	if len(cfg.Integrations) != 2 || cfg.Integrations[1] != "clipboard" {
		t.Errorf("integrations = %v", cfg.Integrations)
	}
}

func TestLoadConfigDefaultsIntegrations(t *testing.T) {
	minimal := strings.Replace(validConfig, "integrations:\n  - print\n  - clipboard\n", "", 1)
	cfg, err := LoadConfig(writeConfig(t, minimal))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if len(cfg.Integrations) != 1 || cfg.Integrations[0] != "print" {
		t.Errorf("integrations = %v, want [print]", cfg.Integrations)
	}
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv(EnvDuoSecret, "env-seed")
	t.Setenv(EnvMailPassword, "env-password")
	cfg, err := LoadConfig(writeConfig(t, validConfig))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Auth.DuoSecret != "env-seed" {
		t.Errorf("duo secret = %q, want env override", cfg.Auth.DuoSecret)
	}
	if cfg.Mail.Password != "env-password" {
		t.Errorf("mail password = %q, want env override", cfg.Mail.Password)
	}
}

func TestLoadConfigMissingRequiredFields(t *testing.T) {
	tests := []struct {
		name   string
		remove string
	}{
		{"missing netid", "  netid: jdoe2\n"},
		{"missing duo secret", "  duo-secret: super-secret-seed\n"},
		{"missing mail server", "  server: imap.example.edu\n"},
		{"missing mail password", "  password: hunter2\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			broken := strings.Replace(validConfig, tt.remove, "", 1)
			if _, err := LoadConfig(writeConfig(t, broken)); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoadConfigRejectsBadDuration(t *testing.T) {
	broken := strings.Replace(validConfig, "interval: 2s", "interval: soon", 1)
	if _, err := LoadConfig(writeConfig(t, broken)); err == nil {
		t.Error("expected duration parse error")
	}
}

func TestDuoSecretBase32(t *testing.T) {
	a := AuthConfig{DuoSecret: "seed"}
	want := base32.StdEncoding.EncodeToString([]byte("seed"))
	if got := a.DuoSecretBase32(); got != want {
		t.Errorf("DuoSecretBase32 = %q, want %q", got, want)
	}
}
