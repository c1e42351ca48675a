package config

import (
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// Config holds all runtime configuration for the GonoPBX server.
// Precedence: CLI flags > env vars > defaults.
type Config struct {
	DataDir       string
	HTTPPort      int
	AsteriskDir   string // directory the generated Asterisk config files are written to
	AsteriskBin   string // asterisk binary used for reload commands
	AMIAddr       string // host:port of the Asterisk Manager Interface
	AMIUsername   string
	AMISecret     string
	MQTTBroker    string // broker URL, e.g. "tcp://localhost:1883"; empty disables MQTT
	MQTTClientID  string
	MQTTUsername  string
	MQTTPassword  string
	JWTSecret     string // hex-encoded 32-byte secret for session token signing
	APIKey        string // static API key for integrations; empty disables
	AdminPassword string // bootstrap password for the initial admin user
	LogLevel      string
	LogFormat     string // log output format: "text" or "json"
}

// defaults
const (
	defaultDataDir      = "./data"
	defaultHTTPPort     = 8080
	defaultAsteriskDir  = "/etc/asterisk"
	defaultAsteriskBin  = "asterisk"
	defaultAMIAddr      = "127.0.0.1:5038"
	defaultAMIUsername  = "gonopbx"
	defaultMQTTClientID = "gonopbx"
	defaultLogLevel     = "info"
	defaultLogFormat    = "text"
)

// envPrefix is the prefix for all GonoPBX environment variables.
const envPrefix = "GONOPBX_"

// Load parses configuration from CLI flags and environment variables.
// Precedence: CLI flags > env vars > defaults.
func Load() (*Config, error) {
	cfg := &Config{}

	fs := flag.NewFlagSet("gonopbx", flag.ContinueOnError)

	fs.StringVar(&cfg.DataDir, "data-dir", defaultDataDir, "data directory for the database")
	fs.IntVar(&cfg.HTTPPort, "http-port", defaultHTTPPort, "HTTP server listen port")
	fs.StringVar(&cfg.AsteriskDir, "asterisk-dir", defaultAsteriskDir, "directory generated Asterisk config files are written to")
	fs.StringVar(&cfg.AsteriskBin, "asterisk-bin", defaultAsteriskBin, "asterisk binary used for reload commands")
	fs.StringVar(&cfg.AMIAddr, "ami-addr", defaultAMIAddr, "host:port of the Asterisk Manager Interface")
	fs.StringVar(&cfg.AMIUsername, "ami-username", defaultAMIUsername, "AMI login username")
	fs.StringVar(&cfg.AMISecret, "ami-secret", "", "AMI login secret")
	fs.StringVar(&cfg.MQTTBroker, "mqtt-broker", "", "MQTT broker URL (e.g. tcp://localhost:1883); empty disables MQTT")
	fs.StringVar(&cfg.MQTTClientID, "mqtt-client-id", defaultMQTTClientID, "MQTT client identifier")
	fs.StringVar(&cfg.MQTTUsername, "mqtt-username", "", "MQTT broker username")
	fs.StringVar(&cfg.MQTTPassword, "mqtt-password", "", "MQTT broker password")
	fs.StringVar(&cfg.JWTSecret, "jwt-secret", "", "hex-encoded 32-byte secret for session token signing (auto-generated if empty)")
	fs.StringVar(&cfg.APIKey, "api-key", "", "static API key accepted via X-API-Key header (empty disables)")
	fs.StringVar(&cfg.AdminPassword, "admin-password", "", "bootstrap password for the initial admin user")
	fs.StringVar(&cfg.LogLevel, "log-level", defaultLogLevel, "log level (debug, info, warn, error)")
	fs.StringVar(&cfg.LogFormat, "log-format", defaultLogFormat, "log output format (text, json)")

	if err := fs.Parse(os.Args[1:]); err != nil {
		return nil, fmt.Errorf("parsing flags: %w", err)
	}

	// Apply env var overrides for any flags not explicitly set on the command line.
	// CLI flags take precedence over env vars.
	applyEnvOverrides(fs, cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides checks environment variables for any flag that was not
// explicitly provided on the command line. This preserves the precedence:
// CLI flags > env vars > defaults.
func applyEnvOverrides(fs *flag.FlagSet, cfg *Config) {
	// Track which flags were explicitly set via CLI.
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})

	// Map of flag name to env var name.
	envMap := map[string]string{
		"data-dir":       envPrefix + "DATA_DIR",
		"http-port":      envPrefix + "HTTP_PORT",
		"asterisk-dir":   envPrefix + "ASTERISK_DIR",
		"asterisk-bin":   envPrefix + "ASTERISK_BIN",
		"ami-addr":       envPrefix + "AMI_ADDR",
		"ami-username":   envPrefix + "AMI_USERNAME",
		"ami-secret":     envPrefix + "AMI_SECRET",
		"mqtt-broker":    envPrefix + "MQTT_BROKER",
		"mqtt-client-id": envPrefix + "MQTT_CLIENT_ID",
		"mqtt-username":  envPrefix + "MQTT_USERNAME",
		"mqtt-password":  envPrefix + "MQTT_PASSWORD",
		"jwt-secret":     envPrefix + "JWT_SECRET",
		"api-key":        envPrefix + "API_KEY",
		"admin-password": envPrefix + "ADMIN_PASSWORD",
		"log-level":      envPrefix + "LOG_LEVEL",
		"log-format":     envPrefix + "LOG_FORMAT",
	}

	for flagName, envVar := range envMap {
		if set[flagName] {
			continue
		}
		val, ok := os.LookupEnv(envVar)
		if !ok || val == "" {
			continue
		}
		switch flagName {
		case "data-dir":
			cfg.DataDir = val
		case "http-port":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.HTTPPort = v
			}
		case "asterisk-dir":
			cfg.AsteriskDir = val
		case "asterisk-bin":
			cfg.AsteriskBin = val
		case "ami-addr":
			cfg.AMIAddr = val
		case "ami-username":
			cfg.AMIUsername = val
		case "ami-secret":
			cfg.AMISecret = val
		case "mqtt-broker":
			cfg.MQTTBroker = val
		case "mqtt-client-id":
			cfg.MQTTClientID = val
		case "mqtt-username":
			cfg.MQTTUsername = val
		case "mqtt-password":
			cfg.MQTTPassword = val
		case "jwt-secret":
			cfg.JWTSecret = val
		case "api-key":
			cfg.APIKey = val
		case "admin-password":
			cfg.AdminPassword = val
		case "log-level":
			cfg.LogLevel = val
		case "log-format":
			cfg.LogFormat = val
		}
	}
}

// validate checks that the config values are sane.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("http-port must be between 1 and 65535, got %d", c.HTTPPort)
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.LogLevel)] {
		return fmt.Errorf("log-level must be one of debug, info, warn, error; got %q", c.LogLevel)
	}
	c.LogLevel = strings.ToLower(c.LogLevel)

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.LogFormat)] {
		return fmt.Errorf("log-format must be one of text, json; got %q", c.LogFormat)
	}
	c.LogFormat = strings.ToLower(c.LogFormat)

	return nil
}

// MQTTEnabled reports whether a broker URL is configured.
func (c *Config) MQTTEnabled() bool {
	return c.MQTTBroker != ""
}

// JWTSecretBytes returns the decoded 32-byte JWT signing secret.
// If no secret is configured, it generates a random 32-byte key and stores
// the hex-encoded value back in the config for the process lifetime.
func (c *Config) JWTSecretBytes() ([]byte, error) {
	if c.JWTSecret == "" {
		key := make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generating jwt secret: %w", err)
		}
		c.JWTSecret = hex.EncodeToString(key)
		slog.Warn("no jwt-secret configured, generated ephemeral key (sessions will not survive restart)")
		return key, nil
	}
	key, err := hex.DecodeString(c.JWTSecret)
	if err != nil {
		return nil, fmt.Errorf("decoding jwt secret: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("jwt secret must decode to 32 bytes, got %d", len(key))
	}
	return key, nil
}

// SlogHandler returns a slog.Handler configured with the appropriate format
// (text or json) and log level.
func (c *Config) SlogHandler(w *os.File) slog.Handler {
	opts := &slog.HandlerOptions{Level: c.SlogLevel()}
	if c.LogFormat == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// SlogLevel returns the slog.Level corresponding to the configured log level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
