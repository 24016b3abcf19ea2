// Package config loads server configuration from a YAML file and OASIS_*
// environment variables.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. OASIS_STORAGE_ROOT.
const EnvPrefix = "OASIS"

// Config holds all server configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
	Storage StorageConfig `mapstructure:"storage" yaml:"storage"`
	Sharing SharingConfig `mapstructure:"sharing" yaml:"sharing"`
	Auth    AuthConfig    `mapstructure:"auth" yaml:"auth"`
	OIDC    OIDCConfig    `mapstructure:"oidc" yaml:"oidc"`
	Limits  LimitsConfig  `mapstructure:"limits" yaml:"limits"`
}

// ServerConfig controls the HTTP listeners.
type ServerConfig struct {
	ListenAddr      string        `mapstructure:"listen_addr" yaml:"listen_addr" validate:"required"`
	MetricsAddr     string        `mapstructure:"metrics_addr" yaml:"metrics_addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" validate:"gt=0"`

	// TLS (optional; if both set, server uses HTTPS)
	TLSCertFile string `mapstructure:"tls_cert_file" yaml:"tls_cert_file"`
	TLSKeyFile  string `mapstructure:"tls_key_file" yaml:"tls_key_file"`
}

// LoggingConfig controls the zap logger.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" yaml:"format" validate:"oneof=json console"`
	Output string `mapstructure:"output" yaml:"output" validate:"required"`
}

// StorageConfig names the directory served to clients.
type StorageConfig struct {
	Root     string `mapstructure:"root" yaml:"root" validate:"required,dir"`
	SiteName string `mapstructure:"site_name" yaml:"site_name" validate:"required"`
}

// SharingConfig holds the share link signing key.
type SharingConfig struct {
	Secret string        `mapstructure:"secret" yaml:"secret" validate:"required,min=32"`
	MaxTTL time.Duration `mapstructure:"max_ttl" yaml:"max_ttl" validate:"gte=0"`
}

// AuthConfig controls session tokens and where accounts come from.
type AuthConfig struct {
	JWTSecret     string        `mapstructure:"jwt_secret" yaml:"jwt_secret" validate:"required,min=16"`
	TokenTTL      time.Duration `mapstructure:"token_ttl" yaml:"token_ttl" validate:"gt=0"`
	Users         []UserConfig  `mapstructure:"users" yaml:"users" validate:"dive"`
	DatabaseURL   string        `mapstructure:"database_url" yaml:"database_url"`
	AdminPassword string        `mapstructure:"admin_password" yaml:"admin_password"`
}

// UserConfig is a statically configured account.
type UserConfig struct {
	Username     string `mapstructure:"username" yaml:"username" validate:"required"`
	PasswordHash string `mapstructure:"password_hash" yaml:"password_hash" validate:"required,startswith=$2"`
	Admin        bool   `mapstructure:"admin" yaml:"admin"`
}

// OIDCConfig enables bearer tokens from an OpenID Connect provider.
type OIDCConfig struct {
	IssuerURL  string `mapstructure:"issuer_url" yaml:"issuer_url" validate:"omitempty,url"`
	ClientID   string `mapstructure:"client_id" yaml:"client_id"`
	AdminClaim string `mapstructure:"admin_claim" yaml:"admin_claim"`
	AdminValue string `mapstructure:"admin_value" yaml:"admin_value"`
}

// LimitsConfig sets request rates. Zero means unlimited.
type LimitsConfig struct {
	RequestsPerMinute      int `mapstructure:"requests_per_minute" yaml:"requests_per_minute" validate:"gte=0"`
	ShareRequestsPerMinute int `mapstructure:"share_requests_per_minute" yaml:"share_requests_per_minute" validate:"gte=0"`
}

// TLSEnabled reports whether both TLS files are configured.
func (c *Config) TLSEnabled() bool {
	return c.Server.TLSCertFile != "" && c.Server.TLSKeyFile != ""
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (OASIS_*)
//  2. Configuration file
//  3. Default values
//
// An empty configPath skips the file.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	if err := readConfigFile(v, configPath); err != nil {
		return nil, err
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	normalize(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Example: OASIS_SHARING_SECRET=...
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Env overrides only apply to keys viper knows about.
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	}
}

// readConfigFile reads the configuration file if one was given.
func readConfigFile(v *viper.Viper, configPath string) error {
	if configPath == "" {
		return nil
	}
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

func normalize(cfg *Config) {
	cfg.Logging.Level = strings.ToLower(cfg.Logging.Level)
	cfg.Logging.Format = strings.ToLower(cfg.Logging.Format)
}

const redacted = "******"

// Redacted returns a copy safe to print: every secret is masked and the
// database password is removed from its URL.
func (c *Config) Redacted() Config {
	out := *c
	out.Sharing.Secret = mask(c.Sharing.Secret)
	out.Auth.JWTSecret = mask(c.Auth.JWTSecret)
	out.Auth.AdminPassword = mask(c.Auth.AdminPassword)
	out.Auth.DatabaseURL = maskURL(c.Auth.DatabaseURL)

	out.Auth.Users = make([]UserConfig, len(c.Auth.Users))
	for i, u := range c.Auth.Users {
		u.PasswordHash = mask(u.PasswordHash)
		out.Auth.Users[i] = u
	}
	return out
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return redacted
}

func maskURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return redacted
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	q := u.Query()
	if q.Has("password") {
		q.Set("password", "xxxxx")
		u.RawQuery = q.Encode()
	}
	return u.String()
}
