package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.ListenAddr != ":8080" {
		t.Errorf("Expected default ListenAddr to be ':8080', got '%s'", config.ListenAddr)
	}

	if config.Network != "mocknet" {
		t.Errorf("Expected default Network to be 'mocknet', got '%s'", config.Network)
	}

	if config.Orchestration.ControlTimeout != 2*time.Minute {
		t.Errorf("Expected default ControlTimeout to be 2m, got %s", config.Orchestration.ControlTimeout)
	}

	if config.Orchestration.GraceDelay != 10*time.Second {
		t.Errorf("Expected default GraceDelay to be 10s, got %s", config.Orchestration.GraceDelay)
	}

	if config.Orchestration.ReadinessWindow != 5*time.Second {
		t.Errorf("Expected default ReadinessWindow to be 5s, got %s", config.Orchestration.ReadinessWindow)
	}

	if config.Orchestration.LogTail != 50 {
		t.Errorf("Expected default LogTail to be 50, got %d", config.Orchestration.LogTail)
	}

	if config.API.IdentityHeader != "X-Remote-User" {
		t.Errorf("Expected default IdentityHeader to be 'X-Remote-User', got '%s'", config.API.IdentityHeader)
	}

	// Test Cloudflare defaults
	if config.Cloudflare.Enabled {
		t.Error("Expected Cloudflare.Enabled to be false by default")
	}

	if config.Cloudflare.AutoGenerate != true {
		t.Error("Expected Cloudflare.AutoGenerate to be true by default")
	}

	if err := config.Validate(); err != nil {
		t.Errorf("Expected default config to be valid, got %v", err)
	}
}

func TestOverrideFromEnv(t *testing.T) {
	t.Setenv("MOCKYARD_PORT", "9090")
	t.Setenv("MOCKYARD_SERVER_ADDRESS", "test-server.com")
	t.Setenv("MOCKYARD_NETWORK", "testnet")
	t.Setenv("MOCKYARD_ENGINE", "api")
	t.Setenv("MOCKYARD_STORE_DRIVER", "postgres")
	t.Setenv("MOCKYARD_STORE_DSN", "postgres://localhost/mockyard")
	t.Setenv("MOCKYARD_INTERPRETERS", "python3.12, python3")
	t.Setenv("MOCKYARD_CONTROL_TIMEOUT", "30s")
	t.Setenv("MOCKYARD_GRACE_DELAY", "0s")
	t.Setenv("MOCKYARD_LOG_TAIL", "100")
	t.Setenv("MOCKYARD_ADMINS", "root,ops")
	t.Setenv("MOCKYARD_STOP_ON_SHUTDOWN", "yes")
	t.Setenv("MOCKYARD_LOG_LEVEL", "DEBUG")
	t.Setenv("MOCKYARD_CLOUDFLARE_ENABLED", "true")
	t.Setenv("MOCKYARD_CLOUDFLARE_API_TOKEN", "test-token")
	t.Setenv("MOCKYARD_CLOUDFLARE_ZONE_ID", "test-zone")
	t.Setenv("MOCKYARD_CLOUDFLARE_BASE_DOMAIN", "test.com")
	t.Setenv("MOCKYARD_CLOUDFLARE_AUTO_GENERATE", "false")

	config := DefaultConfig()
	if err := overrideFromEnv(&config); err != nil {
		t.Fatalf("overrideFromEnv: %v", err)
	}

	if config.ListenAddr != ":9090" {
		t.Errorf("Expected ListenAddr to be ':9090', got '%s'", config.ListenAddr)
	}

	if config.ServerAddress != "test-server.com" {
		t.Errorf("Expected ServerAddress to be 'test-server.com', got '%s'", config.ServerAddress)
	}

	if config.Network != "testnet" || config.Engine.Driver != "api" {
		t.Errorf("Unexpected network/engine %q/%q", config.Network, config.Engine.Driver)
	}

	if config.Store.Driver != "postgres" || config.Store.DSN != "postgres://localhost/mockyard" {
		t.Errorf("Unexpected store %+v", config.Store)
	}

	if !reflect.DeepEqual(config.Orchestration.Interpreters, []string{"python3.12", "python3"}) {
		t.Errorf("Unexpected interpreters %v", config.Orchestration.Interpreters)
	}

	if config.Orchestration.ControlTimeout != 30*time.Second {
		t.Errorf("Expected ControlTimeout to be 30s, got %s", config.Orchestration.ControlTimeout)
	}

	if config.Orchestration.GraceDelay != 0 {
		t.Errorf("Expected GraceDelay to be 0, got %s", config.Orchestration.GraceDelay)
	}

	if config.Orchestration.LogTail != 100 {
		t.Errorf("Expected LogTail to be 100, got %d", config.Orchestration.LogTail)
	}

	if !config.IsAdmin("ops") || config.IsAdmin("alice") {
		t.Errorf("Unexpected admins %v", config.API.Admins)
	}

	if !config.StopOnShutdown {
		t.Error("Expected StopOnShutdown to be true")
	}

	if config.Log.Level != "debug" {
		t.Errorf("Expected Log.Level to be 'debug', got '%s'", config.Log.Level)
	}

	// Test Cloudflare values
	if !config.Cloudflare.Enabled {
		t.Error("Expected Cloudflare.Enabled to be true")
	}

	if config.Cloudflare.APIToken != "test-token" {
		t.Errorf("Expected Cloudflare.APIToken to be 'test-token', got '%s'", config.Cloudflare.APIToken)
	}

	if config.Cloudflare.ZoneID != "test-zone" {
		t.Errorf("Expected Cloudflare.ZoneID to be 'test-zone', got '%s'", config.Cloudflare.ZoneID)
	}

	if config.Cloudflare.BaseDomain != "test.com" {
		t.Errorf("Expected Cloudflare.BaseDomain to be 'test.com', got '%s'", config.Cloudflare.BaseDomain)
	}

	if config.Cloudflare.AutoGenerate {
		t.Error("Expected Cloudflare.AutoGenerate to be false")
	}

	if err := config.Validate(); err != nil {
		t.Errorf("Expected config to be valid, got %v", err)
	}
}

func TestOverrideFromEnvRejectsBadDuration(t *testing.T) {
	t.Setenv("MOCKYARD_POLL_INTERVAL", "soon")

	config := DefaultConfig()
	err := overrideFromEnv(&config)
	if err == nil || !strings.Contains(err.Error(), "MOCKYARD_POLL_INTERVAL") {
		t.Errorf("Expected an error naming MOCKYARD_POLL_INTERVAL, got %v", err)
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mockyard.yaml")
	content := `
listen_addr: "127.0.0.1:7000"
base_dir: data/projects
script_dir: /opt/mockyard/scripts
network: mocks
store:
  driver: memory
orchestration:
  control_timeout: 90s
  readiness_window: 3s
  poll_interval: 250ms
  interpreters: [python3]
api:
  admins: [root]
cloudflare:
  enabled: false
  base_domain: mocks.example.com
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	config, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if config.ListenAddr != "127.0.0.1:7000" {
		t.Errorf("Expected ListenAddr '127.0.0.1:7000', got '%s'", config.ListenAddr)
	}
	if config.BaseDir != filepath.Join(dir, "data", "projects") {
		t.Errorf("Expected BaseDir relative to the config file, got '%s'", config.BaseDir)
	}
	if config.ScriptDir != "/opt/mockyard/scripts" {
		t.Errorf("Expected absolute ScriptDir to be kept, got '%s'", config.ScriptDir)
	}
	if config.Orchestration.ControlTimeout != 90*time.Second {
		t.Errorf("Expected ControlTimeout 90s, got %s", config.Orchestration.ControlTimeout)
	}
	if config.Orchestration.PollInterval != 250*time.Millisecond {
		t.Errorf("Expected PollInterval 250ms, got %s", config.Orchestration.PollInterval)
	}
	// Unset keys keep their defaults
	if config.Orchestration.GraceDelay != 10*time.Second {
		t.Errorf("Expected GraceDelay default, got %s", config.Orchestration.GraceDelay)
	}
	if config.Cloudflare.BaseDomain != "mocks.example.com" || !config.Cloudflare.AutoGenerate {
		t.Errorf("Unexpected cloudflare config %+v", config.Cloudflare)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("Expected an error for a missing config file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown engine", func(c *Config) { c.Engine.Driver = "podman" }},
		{"unknown store", func(c *Config) { c.Store.Driver = "mysql" }},
		{"sqlite without dsn", func(c *Config) { c.Store.DSN = "" }},
		{"bad network name", func(c *Config) { c.Network = "-net" }},
		{"zero control timeout", func(c *Config) { c.Orchestration.ControlTimeout = 0 }},
		{"negative grace", func(c *Config) { c.Orchestration.GraceDelay = -time.Second }},
		{"non numeric port", func(c *Config) { c.Orchestration.ServicePort = "http" }},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }},
		{"proxy without target", func(c *Config) { c.Proxy.Target = "" }},
		{"cloudflare without zone", func(c *Config) {
			c.Cloudflare.Enabled = true
			c.Cloudflare.APIToken = "token"
			c.Cloudflare.BaseDomain = "example.com"
		}},
	}

	for _, test := range tests {
		config := DefaultConfig()
		test.mutate(&config)
		if err := config.Validate(); err == nil {
			t.Errorf("%s: expected validation error", test.name)
		}
	}

	config := DefaultConfig()
	config.Store = StoreConfig{Driver: "memory"}
	if err := config.Validate(); err != nil {
		t.Errorf("memory store without dsn should be valid, got %v", err)
	}
}

func TestEnsurePortFormat(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		// Already in correct format
		{":8080", ":8080"},
		{":80", ":80"},

		// Missing colon
		{"8080", ":8080"},
		{"80", ":80"},

		// Host kept
		{"127.0.0.1:8080", "127.0.0.1:8080"},

		// With whitespace
		{" :8080 ", ":8080"},
		{" 8080 ", ":8080"},
	}

	for _, test := range tests {
		result := ensurePortFormat(test.input)
		if result != test.expected {
			t.Errorf("ensurePortFormat(%q) = %q, expected %q", test.input, result, test.expected)
		}
	}
}

func TestParseEnvInt(t *testing.T) {
	tests := []struct {
		input       string
		expected    int
		expectError bool
	}{
		// Valid integers
		{"10", 10, false},
		{"0", 0, false},
		{"-5", -5, false},

		// Invalid values
		{"abc", 0, true},
		{"", 0, true},
	}

	for _, test := range tests {
		result, err := parseEnvInt(test.input)

		if test.expectError && err == nil {
			t.Errorf("parseEnvInt(%q) expected error, got nil", test.input)
		}

		if !test.expectError && err != nil {
			t.Errorf("parseEnvInt(%q) unexpected error: %v", test.input, err)
		}

		if result != test.expected {
			t.Errorf("parseEnvInt(%q) = %d, expected %d", test.input, result, test.expected)
		}
	}
}

func TestParseEnvBool(t *testing.T) {
	for _, val := range []string{"true", "TRUE", "1", "yes", " on "} {
		if !parseEnvBool(val) {
			t.Errorf("parseEnvBool(%q) = false, expected true", val)
		}
	}
	for _, val := range []string{"false", "0", "no", "maybe"} {
		if parseEnvBool(val) {
			t.Errorf("parseEnvBool(%q) = true, expected false", val)
		}
	}
}
