package config

import (
	"encoding/hex"
	"log/slog"
	"os"
	"testing"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, env := range []string{
		"GONOPBX_DATA_DIR", "GONOPBX_HTTP_PORT", "GONOPBX_ASTERISK_DIR",
		"GONOPBX_ASTERISK_BIN", "GONOPBX_AMI_ADDR", "GONOPBX_AMI_USERNAME",
		"GONOPBX_AMI_SECRET", "GONOPBX_MQTT_BROKER", "GONOPBX_MQTT_CLIENT_ID",
		"GONOPBX_MQTT_USERNAME", "GONOPBX_MQTT_PASSWORD", "GONOPBX_JWT_SECRET",
		"GONOPBX_API_KEY", "GONOPBX_ADMIN_PASSWORD", "GONOPBX_LOG_LEVEL",
		"GONOPBX_LOG_FORMAT",
	} {
		t.Setenv(env, "")
		os.Unsetenv(env)
	}
}

func TestDefaults(t *testing.T) {
	clearEnv(t)
	os.Args = []string{"gonopbx"}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.DataDir != defaultDataDir {
		t.Errorf("DataDir = %q, want %q", cfg.DataDir, defaultDataDir)
	}
	if cfg.HTTPPort != defaultHTTPPort {
		t.Errorf("HTTPPort = %d, want %d", cfg.HTTPPort, defaultHTTPPort)
	}
	if cfg.AsteriskDir != defaultAsteriskDir {
		t.Errorf("AsteriskDir = %q, want %q", cfg.AsteriskDir, defaultAsteriskDir)
	}
	if cfg.AMIAddr != defaultAMIAddr {
		t.Errorf("AMIAddr = %q, want %q", cfg.AMIAddr, defaultAMIAddr)
	}
	if cfg.LogLevel != defaultLogLevel {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, defaultLogLevel)
	}
	if cfg.MQTTEnabled() {
		t.Error("expected MQTT disabled by default")
	}
}

func TestEnvVarOverride(t *testing.T) {
	clearEnv(t)
	os.Args = []string{"gonopbx"}
	t.Setenv("GONOPBX_HTTP_PORT", "9090")
	t.Setenv("GONOPBX_ASTERISK_DIR", "/tmp/asterisk-test")
	t.Setenv("GONOPBX_MQTT_BROKER", "tcp://broker:1883")
	t.Setenv("GONOPBX_LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.HTTPPort != 9090 {
		t.Errorf("HTTPPort = %d, want 9090", cfg.HTTPPort)
	}
	if cfg.AsteriskDir != "/tmp/asterisk-test" {
		t.Errorf("AsteriskDir = %q, want /tmp/asterisk-test", cfg.AsteriskDir)
	}
	if !cfg.MQTTEnabled() {
		t.Error("expected MQTT enabled when broker is set")
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
}

func TestCLIFlagsPrecedence(t *testing.T) {
	// CLI flags should override env vars.
	clearEnv(t)
	os.Args = []string{"gonopbx", "--http-port", "3000", "--log-level", "warn"}
	t.Setenv("GONOPBX_HTTP_PORT", "9090")
	t.Setenv("GONOPBX_LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.HTTPPort != 3000 {
		t.Errorf("HTTPPort = %d, want 3000 (CLI should override env)", cfg.HTTPPort)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, want warn (CLI should override env)", cfg.LogLevel)
	}
}

func TestValidateInvalidPort(t *testing.T) {
	clearEnv(t)
	os.Args = []string{"gonopbx", "--http-port", "99999"}
	if _, err := Load(); err == nil {
		t.Fatal("expected error for invalid port, got nil")
	}
}

func TestValidateInvalidLogLevel(t *testing.T) {
	clearEnv(t)
	os.Args = []string{"gonopbx", "--log-level", "verbose"}
	if _, err := Load(); err == nil {
		t.Fatal("expected error for invalid log level, got nil")
	}
}

func TestValidateInvalidLogFormat(t *testing.T) {
	clearEnv(t)
	os.Args = []string{"gonopbx", "--log-format", "xml"}
	if _, err := Load(); err == nil {
		t.Fatal("expected error for invalid log format, got nil")
	}
}

func TestJWTSecretBytes_Configured(t *testing.T) {
	secret := make([]byte, 32)
	for i := range secret {
		secret[i] = byte(i)
	}
	cfg := &Config{JWTSecret: hex.EncodeToString(secret)}

	key, err := cfg.JWTSecretBytes()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(key) != 32 {
		t.Errorf("expected 32-byte key, got %d", len(key))
	}
	if key[31] != 31 {
		t.Error("decoded key does not match configured secret")
	}
}

func TestJWTSecretBytes_Generated(t *testing.T) {
	cfg := &Config{}

	key, err := cfg.JWTSecretBytes()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(key) != 32 {
		t.Errorf("expected generated 32-byte key, got %d", len(key))
	}
	if cfg.JWTSecret == "" {
		t.Error("expected generated secret to be stored back in config")
	}
}

func TestJWTSecretBytes_Invalid(t *testing.T) {
	for _, secret := range []string{"not-hex", "abcd"} {
		cfg := &Config{JWTSecret: secret}
		if _, err := cfg.JWTSecretBytes(); err == nil {
			t.Errorf("expected error for jwt secret %q, got nil", secret)
		}
	}
}

func TestSlogLevel(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			cfg := &Config{LogLevel: tt.level}
			if got := cfg.SlogLevel(); got != tt.want {
				t.Errorf("SlogLevel() = %v, want %v", got, tt.want)
			}
		})
	}
}
