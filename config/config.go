package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"mockyard/types"
)

// Config holds the application configuration
type Config struct {
	ListenAddr     string `yaml:"listen_addr" validate:"required"`
	ServerAddress  string `yaml:"server_address"` // Public IP or hostname DNS records point at
	BaseDir        string `yaml:"base_dir" validate:"required"`
	ScriptDir      string `yaml:"script_dir" validate:"required"`
	Network        string `yaml:"network" validate:"required,containername"`
	StopOnShutdown bool   `yaml:"stop_on_shutdown"`

	Engine        EngineConfig        `yaml:"engine"`
	Store         StoreConfig         `yaml:"store"`
	Orchestration OrchestrationConfig `yaml:"orchestration"`
	API           APIConfig           `yaml:"api"`
	Proxy         ProxyConfig         `yaml:"proxy"`
	Log           LogConfig           `yaml:"log"`

	Cloudflare types.CloudflareConfig `yaml:"cloudflare"`
}

// EngineConfig selects how the container engine is queried.
type EngineConfig struct {
	Driver string `yaml:"driver" validate:"oneof=cli api"`
	Binary string `yaml:"binary" validate:"required_if=Driver cli"` // CLI binary, "docker" by default
	Host   string `yaml:"host"`                                     // Daemon address for the api driver; DOCKER_HOST when empty
}

// StoreConfig selects the project record backend.
type StoreConfig struct {
	Driver string `yaml:"driver" validate:"oneof=memory sqlite postgres"`
	DSN    string `yaml:"dsn" validate:"required_unless=Driver memory"`
}

// OrchestrationConfig tunes the external scripts and the lifecycle controller.
type OrchestrationConfig struct {
	Interpreters    []string      `yaml:"interpreters"` // Runtime candidates; platform defaults when empty
	ProbeTimeout    time.Duration `yaml:"probe_timeout" validate:"gt=0"`
	ControlTimeout  time.Duration `yaml:"control_timeout" validate:"gt=0"`
	GraceDelay      time.Duration `yaml:"grace_delay" validate:"gte=0"`
	ReadinessWindow time.Duration `yaml:"readiness_window" validate:"gte=0"`
	PollInterval    time.Duration `yaml:"poll_interval" validate:"gt=0"`
	LogTail         int           `yaml:"log_tail" validate:"gt=0"`
	OutputLines     int           `yaml:"output_lines" validate:"gt=0"` // Script output lines kept per run
	ServicePort     string        `yaml:"service_port" validate:"required,numeric"`
	StopConcurrency int           `yaml:"stop_concurrency" validate:"gt=0"`
}

// APIConfig configures caller identity.
type APIConfig struct {
	IdentityHeader string   `yaml:"identity_header" validate:"required"`
	Admins         []string `yaml:"admins"`
}

// ProxyConfig configures the mock traffic reverse proxy.
type ProxyConfig struct {
	Enabled bool   `yaml:"enabled"`
	Target  string `yaml:"target" validate:"required_if=Enabled true"` // {{name}}, {{container}} and {{port}} are substituted
}

// LogConfig configures the global logger.
type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=trace debug info warn error"`
	Format string `yaml:"format" validate:"oneof=console json"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		ListenAddr:    ":8080",
		ServerAddress: "localhost",
		BaseDir:       "projects",
		ScriptDir:     "scripts",
		Network:       "mocknet",
		Engine: EngineConfig{
			Driver: "cli",
			Binary: "docker",
		},
		Store: StoreConfig{
			Driver: "sqlite",
			DSN:    "mockyard.db",
		},
		Orchestration: OrchestrationConfig{
			ProbeTimeout:    5 * time.Second,
			ControlTimeout:  2 * time.Minute,
			GraceDelay:      10 * time.Second,
			ReadinessWindow: 5 * time.Second,
			PollInterval:    time.Second,
			LogTail:         50,
			OutputLines:     500,
			ServicePort:     "8080",
			StopConcurrency: 4,
		},
		API: APIConfig{
			IdentityHeader: "X-Remote-User",
		},
		Proxy: ProxyConfig{
			Enabled: true,
			Target:  "http://{{container}}:{{port}}",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Cloudflare: types.CloudflareConfig{
			Enabled:      false,
			AutoGenerate: true,
		},
	}
}

// LoadConfig loads configuration from a file or environment variables
func LoadConfig(configPath string) (Config, error) {
	config := DefaultConfig()

	// Load from file if provided
	if configPath != "" {
		if err := loadFromFile(&config, configPath); err != nil {
			return config, err
		}
	}

	// Override with environment variables
	if err := overrideFromEnv(&config); err != nil {
		return config, err
	}

	if err := config.Validate(); err != nil {
		return config, err
	}
	return config, nil
}

// Validate checks field constraints and cross-field rules.
func (c Config) Validate() error {
	if err := types.V().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Cloudflare.Enabled && (c.Cloudflare.APIToken == "" || c.Cloudflare.ZoneID == "" || c.Cloudflare.BaseDomain == "") {
		return errors.New("invalid configuration: cloudflare requires api_token, zone_id and base_domain")
	}
	return nil
}

// IsAdmin reports whether identity may see every project.
func (c Config) IsAdmin(identity string) bool {
	for _, a := range c.API.Admins {
		if a == identity {
			return true
		}
	}
	return false
}

// loadFromFile loads configuration from a YAML file
func loadFromFile(config *Config, path string) error {
	bytes, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(bytes, config); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	// Relative directories in a config file are relative to the file.
	dir := filepath.Dir(path)
	for _, p := range []*string{&config.BaseDir, &config.ScriptDir} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(dir, *p)
		}
	}
	return nil
}

// overrideFromEnv overrides configuration with environment variables
func overrideFromEnv(config *Config) error {
	var errs []error

	// Core settings
	if val := os.Getenv("MOCKYARD_PORT"); val != "" {
		config.ListenAddr = ensurePortFormat(val)
	}

	if val := os.Getenv("MOCKYARD_SERVER_ADDRESS"); val != "" {
		config.ServerAddress = val
	}

	if val := os.Getenv("MOCKYARD_BASE_DIR"); val != "" {
		config.BaseDir = val
	}

	if val := os.Getenv("MOCKYARD_SCRIPT_DIR"); val != "" {
		config.ScriptDir = val
	}

	if val := os.Getenv("MOCKYARD_NETWORK"); val != "" {
		config.Network = val
	}

	if val := os.Getenv("MOCKYARD_STOP_ON_SHUTDOWN"); val != "" {
		config.StopOnShutdown = parseEnvBool(val)
	}

	// Engine and store
	if val := os.Getenv("MOCKYARD_ENGINE"); val != "" {
		config.Engine.Driver = val
	}

	if val := os.Getenv("MOCKYARD_ENGINE_BINARY"); val != "" {
		config.Engine.Binary = val
	}

	if val := os.Getenv("MOCKYARD_STORE_DRIVER"); val != "" {
		config.Store.Driver = val
	}

	if val := os.Getenv("MOCKYARD_STORE_DSN"); val != "" {
		config.Store.DSN = val
	}

	// Orchestration
	if val := os.Getenv("MOCKYARD_INTERPRETERS"); val != "" {
		config.Orchestration.Interpreters = splitList(val)
	}

	durations := map[string]*time.Duration{
		"MOCKYARD_CONTROL_TIMEOUT":  &config.Orchestration.ControlTimeout,
		"MOCKYARD_GRACE_DELAY":      &config.Orchestration.GraceDelay,
		"MOCKYARD_READINESS_WINDOW": &config.Orchestration.ReadinessWindow,
		"MOCKYARD_POLL_INTERVAL":    &config.Orchestration.PollInterval,
		"MOCKYARD_PROBE_TIMEOUT":    &config.Orchestration.ProbeTimeout,
	}
	for name, dst := range durations {
		if val := os.Getenv(name); val != "" {
			d, err := time.ParseDuration(val)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				continue
			}
			*dst = d
		}
	}

	if val := os.Getenv("MOCKYARD_LOG_TAIL"); val != "" {
		if n, err := parseEnvInt(val); err == nil {
			config.Orchestration.LogTail = n
		} else {
			errs = append(errs, fmt.Errorf("MOCKYARD_LOG_TAIL: %w", err))
		}
	}

	if val := os.Getenv("MOCKYARD_SERVICE_PORT"); val != "" {
		config.Orchestration.ServicePort = val
	}

	// API and proxy
	if val := os.Getenv("MOCKYARD_IDENTITY_HEADER"); val != "" {
		config.API.IdentityHeader = val
	}

	if val := os.Getenv("MOCKYARD_ADMINS"); val != "" {
		config.API.Admins = splitList(val)
	}

	if val := os.Getenv("MOCKYARD_PROXY_ENABLED"); val != "" {
		config.Proxy.Enabled = parseEnvBool(val)
	}

	if val := os.Getenv("MOCKYARD_PROXY_TARGET"); val != "" {
		config.Proxy.Target = val
	}

	// Logging
	if val := os.Getenv("MOCKYARD_LOG_LEVEL"); val != "" {
		config.Log.Level = strings.ToLower(val)
	}

	if val := os.Getenv("MOCKYARD_LOG_FORMAT"); val != "" {
		config.Log.Format = strings.ToLower(val)
	}

	// Cloudflare settings
	if val := os.Getenv("MOCKYARD_CLOUDFLARE_ENABLED"); val != "" {
		config.Cloudflare.Enabled = parseEnvBool(val)
	}

	if val := os.Getenv("MOCKYARD_CLOUDFLARE_API_TOKEN"); val != "" {
		config.Cloudflare.APIToken = val
	}

	if val := os.Getenv("MOCKYARD_CLOUDFLARE_ZONE_ID"); val != "" {
		config.Cloudflare.ZoneID = val
	}

	if val := os.Getenv("MOCKYARD_CLOUDFLARE_BASE_DOMAIN"); val != "" {
		config.Cloudflare.BaseDomain = val
	}

	if val := os.Getenv("MOCKYARD_CLOUDFLARE_AUTO_GENERATE"); val != "" {
		config.Cloudflare.AutoGenerate = parseEnvBool(val)
	}

	if val := os.Getenv("MOCKYARD_CLOUDFLARE_PROXIED"); val != "" {
		config.Cloudflare.Proxied = parseEnvBool(val)
	}

	return errors.Join(errs...)
}

// ensurePortFormat ensures port is in the format ":8080"
func ensurePortFormat(port string) string {
	port = strings.TrimSpace(port)
	if !strings.Contains(port, ":") {
		return ":" + port
	}
	return port
}

// parseEnvInt parses an integer from an environment variable
func parseEnvInt(val string) (int, error) {
	var result int
	if _, err := fmt.Sscanf(val, "%d", &result); err != nil {
		return 0, err
	}
	return result, nil
}

func parseEnvBool(val string) bool {
	switch strings.ToLower(strings.TrimSpace(val)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

func splitList(val string) []string {
	var out []string
	for _, item := range strings.Split(val, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
