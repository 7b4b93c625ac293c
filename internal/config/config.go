// Package config loads the netreset YAML configuration and applies
// environment overrides for secrets.
package config

import (
	"encoding/base32"
	"fmt"
	"os"
	"time"

	"github.com/illinilabs/netreset/internal/integration"
	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Auth          AuthConfig           `yaml:"auth"`
	Mail          MailConfig           `yaml:"mail"`
	Endpoints     EndpointsConfig      `yaml:"endpoints"`
	Poll          PollConfig           `yaml:"poll"`
	Integrations  []string             `yaml:"integrations"`
	Integration   integration.Settings `yaml:"integration"`
	ProxyURL      string               `yaml:"proxy-url"`
	LoggingToFile bool                 `yaml:"logging-to-file"`
	Debug         bool                 `yaml:"debug"`
}

// AuthConfig identifies the account being reset and its Duo seed.
type AuthConfig struct {
	NetID string `yaml:"netid"`
	// DuoSecret is the raw Duo HOTP seed as provisioned; it is base32-encoded
	// on demand when passcodes are computed.
	DuoSecret string `yaml:"duo-secret"`
}

// DuoSecretBase32 returns the shared secret in the base32 form the passcode
// generator consumes.
func (a AuthConfig) DuoSecretBase32() string {
	return base32.StdEncoding.EncodeToString([]byte(a.DuoSecret))
}

// MailConfig describes the mailbox that receives the confirmation email.
type MailConfig struct {
	Server    string `yaml:"server"`
	Port      int    `yaml:"port"`
	Address   string `yaml:"address"`
	Password  string `yaml:"password"`
	Subject   string `yaml:"subject"`
	URLPrefix string `yaml:"url-prefix"`
}

// EndpointsConfig optionally overrides the provider base URLs.
type EndpointsConfig struct {
	IDServer string `yaml:"idserver"`
	Duo      string `yaml:"duo"`
}

// PollConfig tunes the mailbox polling loop.
type PollConfig struct {
	Interval Duration `yaml:"interval"`
	MaxWait  Duration `yaml:"max-wait"`
}

// Duration wraps time.Duration so YAML values like "5s" or "10m" parse.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Environment variable names recognized as secret overrides, so credentials
// can be kept out of the config file.
const (
	EnvNetID        = "NETRESET_NETID"
	EnvDuoSecret    = "NETRESET_DUO_SECRET"
	EnvMailAddress  = "NETRESET_MAIL_ADDRESS"
	EnvMailPassword = "NETRESET_MAIL_PASSWORD"
	EnvVaultToken   = "NETRESET_VAULT_TOKEN"
)

// LoadConfig reads, overrides, defaults, and validates the configuration at
// the given path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	cfg.applyEnvOverrides()
	cfg.applyDefaults()
	if err = cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(EnvNetID); v != "" {
		c.Auth.NetID = v
	}
	if v := os.Getenv(EnvDuoSecret); v != "" {
		c.Auth.DuoSecret = v
	}
	if v := os.Getenv(EnvMailAddress); v != "" {
		c.Mail.Address = v
	}
	if v := os.Getenv(EnvMailPassword); v != "" {
		c.Mail.Password = v
	}
	if v := os.Getenv(EnvVaultToken); v != "" {
		c.Integration.Vault.Token = v
	}
}

func (c *Config) applyDefaults() {
	if c.Mail.Port == 0 {
		c.Mail.Port = 993
	}
	if len(c.Integrations) == 0 {
		c.Integrations = []string{"print"}
	}
}

func (c *Config) validate() error {
	switch {
	case c.Auth.NetID == "":
		return fmt.Errorf("auth.netid is required")
	case c.Auth.DuoSecret == "":
		return fmt.Errorf("auth.duo-secret is required")
	case c.Mail.Server == "":
		return fmt.Errorf("mail.server is required")
	case c.Mail.Address == "":
		return fmt.Errorf("mail.address is required")
	case c.Mail.Password == "":
		return fmt.Errorf("mail.password is required")
	}
	return nil
}
