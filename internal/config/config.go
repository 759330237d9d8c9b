package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds all configuration for the cori server.
// Precedence: environment variables > config file > defaults.
type Config struct {
	Database  DatabaseConfig  `toml:"database"`
	Token     TokenConfig     `toml:"token"`
	Approval  ApprovalConfig  `toml:"approval"`
	Server    ServerConfig    `toml:"server"`
	Transport TransportConfig `toml:"transport"`
	Log       LogConfig       `toml:"log"`
}

// DatabaseConfig holds the Postgres connection the SQL emitter runs
// against, via pgxpool.
type DatabaseConfig struct {
	DSN             string `toml:"dsn"`
	MaxConns        int32  `toml:"max_conns"`
	MinConns        int32  `toml:"min_conns"`
	SchemaPath      string `toml:"schema_path"`
	RolePath        string `toml:"role_path"`
	RulesPath       string `toml:"rules_path"`
}

// TokenConfig holds the Ed25519 key material locations for capability
// tokens. The serving path only ever needs RootPublicKeyPath;
// RootPrivateKeyPath is not read by any command ("cori token mint" takes
// the private key path from its own --private-key flag).
type TokenConfig struct {
	RootPublicKeyPath  string        `toml:"root_public_key_path"`
	RootPrivateKeyPath string        `toml:"root_private_key_path"`
	DefaultTTL         time.Duration `toml:"default_ttl"`
	MaxAttenuationTTL  time.Duration `toml:"max_attenuation_ttl"`
}

// ApprovalConfig holds the on-disk approval queue location and default TTL.
type ApprovalConfig struct {
	LogDir     string        `toml:"log_dir"`
	DefaultTTL time.Duration `toml:"default_ttl"`
}

// ServerConfig holds MCP server metadata.
type ServerConfig struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

// TransportConfig holds transport-related settings.
type TransportConfig struct {
	// Mode selects the transport: "stdio" (default) or "http".
	Mode string `toml:"mode"`
	// Port is the HTTP listen port (default: 8443). Only used when Mode is "http".
	Port string `toml:"port"`
	// Host is the HTTP listen address (default: "0.0.0.0"). Only used when Mode is "http".
	Host string `toml:"host"`
	// CORSOrigins is a comma-separated list of allowed CORS origins (default: "*").
	CORSOrigins string `toml:"cors_origins"`
	// MetricsAddr, if non-empty, serves /metrics on this address.
	MetricsAddr string `toml:"metrics_addr"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `toml:"level"`  // debug, info, warn, error
	Format string `toml:"format"` // json (default) or text
}

// Load creates a Config by reading from a TOML config file and environment
// variables. Precedence: environment variables > config file > defaults.
//
// Config file search order (first found wins):
//  1. Path passed via configPath parameter (from --config flag)
//  2. CORI_CONFIG environment variable
//  3. ./cori.toml (current directory)
//  4. ~/.config/cori/cori.toml (XDG-style)
//
// All fields are optional in the config file. Environment variables always
// override file values.
func Load(configPath string) (*Config, error) {
	cfg := &Config{
		Database: DatabaseConfig{
			MaxConns:   10,
			MinConns:   1,
			SchemaPath: "schema.json",
			RolePath:   "role.json",
			RulesPath:  "rules.json",
		},
		Token: TokenConfig{
			RootPublicKeyPath: "cori_root.pub",
			DefaultTTL:        time.Hour,
			MaxAttenuationTTL: 15 * time.Minute,
		},
		Approval: ApprovalConfig{
			LogDir:     "./approvals",
			DefaultTTL: 24 * time.Hour,
		},
		Server: ServerConfig{
			Name:    "cori",
			Version: "0.1.0",
		},
		Transport: TransportConfig{
			Mode:        "stdio",
			Port:        "8443",
			Host:        "0.0.0.0",
			CORSOrigins: "*",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}

	if err := cfg.loadFile(configPath); err != nil {
		return nil, err
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFile finds and parses the TOML config file. If no file is found,
// this is a no-op (config file is optional).
func (c *Config) loadFile(configPath string) error {
	path := resolveConfigPath(configPath)
	if path == "" {
		return nil // no config file found; rely on defaults + env
	}

	if _, err := toml.DecodeFile(path, c); err != nil {
		return fmt.Errorf("reading config file %s: %w", path, err)
	}

	return nil
}

// resolveConfigPath determines which config file to use. Returns empty string
// if no config file is found (config file is optional).
func resolveConfigPath(explicit string) string {
	if explicit != "" {
		return explicit // caller wants this file; let DecodeFile report if missing
	}

	if p := os.Getenv("CORI_CONFIG"); p != "" {
		return p
	}

	if _, err := os.Stat("cori.toml"); err == nil {
		return "cori.toml"
	}

	if home, err := os.UserHomeDir(); err == nil {
		p := home + "/.config/cori/cori.toml"
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	return ""
}

// applyEnv overlays environment variables on top of existing config values.
// An env var only takes effect if it is non-empty.
func (c *Config) applyEnv() {
	envOverride("CORI_DATABASE_DSN", &c.Database.DSN)
	envOverride("CORI_SCHEMA_PATH", &c.Database.SchemaPath)
	envOverride("CORI_ROLE_PATH", &c.Database.RolePath)
	envOverride("CORI_RULES_PATH", &c.Database.RulesPath)

	envOverride("CORI_TOKEN_ROOT_PUBLIC_KEY_PATH", &c.Token.RootPublicKeyPath)
	envOverride("CORI_TOKEN_ROOT_PRIVATE_KEY_PATH", &c.Token.RootPrivateKeyPath)
	envDuration("CORI_TOKEN_DEFAULT_TTL", &c.Token.DefaultTTL)
	envDuration("CORI_TOKEN_MAX_ATTENUATION_TTL", &c.Token.MaxAttenuationTTL)

	envOverride("CORI_APPROVAL_LOG_DIR", &c.Approval.LogDir)
	envDuration("CORI_APPROVAL_DEFAULT_TTL", &c.Approval.DefaultTTL)

	envOverride("CORI_TRANSPORT", &c.Transport.Mode)
	envOverride("CORI_PORT", &c.Transport.Port)
	envOverride("CORI_HOST", &c.Transport.Host)
	envOverride("CORI_CORS_ORIGINS", &c.Transport.CORSOrigins)
	envOverride("CORI_METRICS_ADDR", &c.Transport.MetricsAddr)

	envOverride("CORI_LOG_LEVEL", &c.Log.Level)
	envOverride("CORI_LOG_FORMAT", &c.Log.Format)
}

// Validate checks that required fields are present for the configured
// transport mode.
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return fmt.Errorf("database dsn is required: set database.dsn in config file, or CORI_DATABASE_DSN env var")
	}
	if c.Token.RootPublicKeyPath == "" {
		return fmt.Errorf("token root public key path is required: set token.root_public_key_path, or CORI_TOKEN_ROOT_PUBLIC_KEY_PATH env var")
	}
	switch c.Transport.Mode {
	case "stdio", "http":
	default:
		return fmt.Errorf("invalid transport mode: %q (must be \"stdio\" or \"http\")", c.Transport.Mode)
	}
	return nil
}

// envOverride sets *dst to the value of the named env var, if it is non-empty.
func envOverride(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// envDuration parses the named env var as a Go duration, if non-empty.
func envDuration(key string, dst *time.Duration) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	if d, err := time.ParseDuration(v); err == nil {
		*dst = d
	}
}
