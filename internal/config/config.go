package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	defaultBaseDir    = ".apitester"
	defaultConfigName = "config.yaml"
	defaultDBName     = "apitester.db"
)

// RelayConfig configures the forwarding relay and how clients reach it.
type RelayConfig struct {
	Host               string   `yaml:"host"`
	Port               int      `yaml:"port"`
	URL                string   `yaml:"url"`
	Environment        string   `yaml:"environment"`
	BlockedHosts       []string `yaml:"blocked_hosts"`
	RateLimit          int      `yaml:"rate_limit"`
	RateWindowMinutes  int      `yaml:"rate_window_minutes"`
	TimeoutSeconds     int      `yaml:"timeout_seconds"`
	MaxRedirects       int      `yaml:"max_redirects"`
	InsecureSkipVerify bool     `yaml:"insecure_skip_verify"`
	ServerIP           string   `yaml:"server_ip"`
}

type ServerConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	CORSOrigin string `yaml:"cors_origin"`
}

type GeneratorConfig struct {
	BasePackage            string `yaml:"base_package"`
	EndpointName           string `yaml:"endpoint_name"`
	OnlySuccessful         bool   `yaml:"only_successful"`
	ApplyDefaultValidation bool   `yaml:"apply_default_validation"`
}

// FeaturesConfig switches optional behaviour. It is handed to the code that
// needs it; nothing reads it globally.
type FeaturesConfig struct {
	BDDGeneration   bool `yaml:"bdd_generation"`
	SchemaInference bool `yaml:"schema_inference"`
	ManualSchema    bool `yaml:"manual_schema"`
	OpenAPISchema   bool `yaml:"openapi_schema"`
	ValueSelector   bool `yaml:"value_selector"`
}

type OutputConfig struct {
	Dir string `yaml:"dir"`
}

type FilterConfig struct {
	IgnoreExtensions   []string `yaml:"ignore_extensions"`
	IgnoreContentTypes []string `yaml:"ignore_content_types"`
	IgnorePaths        []string `yaml:"ignore_paths"`
}

type SanitizeConfig struct {
	Headers     []string `yaml:"headers"`
	BodyFields  []string `yaml:"body_fields"`
	Replacement string   `yaml:"replacement"`
}

type StoreConfig struct {
	Path string `yaml:"path"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

type Config struct {
	Relay     RelayConfig     `yaml:"relay"`
	Server    ServerConfig    `yaml:"server"`
	Generator GeneratorConfig `yaml:"generator"`
	Features  FeaturesConfig  `yaml:"features"`
	Output    OutputConfig    `yaml:"output"`
	Filter    FilterConfig    `yaml:"filter"`
	Sanitize  SanitizeConfig  `yaml:"sanitize"`
	Store     StoreConfig     `yaml:"store"`
	Log       LogConfig       `yaml:"log"`
}

// BaseDir returns ~/.apitester.
func BaseDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, defaultBaseDir), nil
}

// Load loads YAML config, then applies env overrides.
func Load(configPath string) (*Config, error) {
	cfg := &Config{}
	cfg.SetDefaults()

	if configPath == "" {
		base, err := BaseDir()
		if err != nil {
			return nil, err
		}
		configPath = filepath.Join(base, defaultConfigName)
	}

	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read config: %w", err)
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

func (c *Config) SetDefaults() {
	if c.Relay.Host == "" {
		c.Relay.Host = "0.0.0.0"
	}
	if c.Relay.Port == 0 {
		c.Relay.Port = 3001
	}
	if c.Relay.Environment == "" {
		c.Relay.Environment = "development"
	}
	if c.Relay.RateLimit == 0 {
		c.Relay.RateLimit = 100
	}
	if c.Relay.RateWindowMinutes == 0 {
		c.Relay.RateWindowMinutes = 15
	}
	if c.Relay.TimeoutSeconds == 0 {
		c.Relay.TimeoutSeconds = 60
	}
	if c.Relay.MaxRedirects == 0 {
		c.Relay.MaxRedirects = 5
	}
	if c.Server.Host == "" {
		c.Server.Host = "127.0.0.1"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 3000
	}
	if c.Generator.BasePackage == "" {
		c.Generator.BasePackage = "com.example.api"
	}
	if c.Features == (FeaturesConfig{}) {
		c.Features = FeaturesConfig{
			BDDGeneration:   true,
			SchemaInference: true,
			ManualSchema:    true,
			OpenAPISchema:   true,
			ValueSelector:   true,
		}
	}
	if c.Output.Dir == "" {
		c.Output.Dir = "./output"
	}
	if len(c.Filter.IgnoreExtensions) == 0 {
		c.Filter.IgnoreExtensions = []string{".js", ".css", ".png", ".jpg", ".gif", ".svg", ".woff", ".woff2", ".ico", ".map"}
	}
	if len(c.Filter.IgnoreContentTypes) == 0 {
		c.Filter.IgnoreContentTypes = []string{"text/html", "text/css", "image/*", "font/*", "application/javascript"}
	}
	if len(c.Filter.IgnorePaths) == 0 {
		c.Filter.IgnorePaths = []string{"/static/", "/assets/", "/favicon"}
	}
	if len(c.Sanitize.Headers) == 0 {
		c.Sanitize.Headers = []string{"Authorization", "Cookie", "Set-Cookie", "X-Api-Key", "X-Auth-Token"}
	}
	if len(c.Sanitize.BodyFields) == 0 {
		c.Sanitize.BodyFields = []string{"password", "secret", "token", "api_key", "access_token", "refresh_token", "credential"}
	}
	if c.Sanitize.Replacement == "" {
		c.Sanitize.Replacement = "***REDACTED***"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// BlockedHostList returns the hostnames the relay refuses to forward to.
// 127.0.0.1 is always blocked; localhost is blocked in development so the
// relay cannot be pointed back at itself.
func (r RelayConfig) BlockedHostList() []string {
	hosts := []string{"127.0.0.1"}
	if strings.EqualFold(r.Environment, "development") {
		hosts = append(hosts, "localhost")
	}
	for _, h := range r.BlockedHosts {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			hosts = append(hosts, h)
		}
	}
	return hosts
}

// ClientURL is the base URL clients use to reach the relay.
func (r RelayConfig) ClientURL() string {
	if u := strings.TrimSpace(r.URL); u != "" {
		return strings.TrimRight(u, "/")
	}
	return fmt.Sprintf("http://127.0.0.1:%d", r.Port)
}

// StorePath resolves the database path, defaulting to ~/.apitester/apitester.db.
func (c *Config) StorePath() (string, error) {
	if strings.TrimSpace(c.Store.Path) != "" {
		return c.Store.Path, nil
	}
	base, err := BaseDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, defaultDBName), nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Output.Dir) == "" {
		return errors.New("output.dir cannot be empty")
	}

	if err := ensureWritableDir(c.Output.Dir); err != nil {
		return fmt.Errorf("output.dir not writable: %w", err)
	}
	return nil
}

// ValidateServe enforces serve-specific requirements.
func (c *Config) ValidateServe() error {
	if err := validPort("server.port", c.Server.Port); err != nil {
		return err
	}
	if err := validPort("relay.port", c.Relay.Port); err != nil {
		return err
	}
	if c.Relay.RateLimit < 0 || c.Relay.RateWindowMinutes <= 0 {
		return errors.New("relay rate limit must be positive")
	}
	return nil
}

// ValidateGenerate enforces generate-specific requirements.
func (c *Config) ValidateGenerate() error {
	if !c.Features.BDDGeneration {
		return errors.New("features.bdd_generation is disabled")
	}
	return c.Validate()
}

func validPort(name string, port int) error {
	if port <= 0 || port > 65535 {
		return fmt.Errorf("%s out of range: %d", name, port)
	}
	return nil
}

func ensureWritableDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".writable-*")
	if err != nil {
		return err
	}
	name := f.Name()
	_ = f.Close()
	return os.Remove(name)
}

func applyEnvOverrides(c *Config) {
	setString(&c.Relay.Host, "APITESTER_RELAY_HOST")
	setInt(&c.Relay.Port, "APITESTER_RELAY_PORT")
	setString(&c.Relay.URL, "APITESTER_RELAY_URL")
	setString(&c.Relay.Environment, "APITESTER_RELAY_ENVIRONMENT")
	setInt(&c.Relay.RateLimit, "APITESTER_RELAY_RATE_LIMIT")
	setInt(&c.Relay.TimeoutSeconds, "APITESTER_RELAY_TIMEOUT_SECONDS")
	setString(&c.Relay.ServerIP, "APITESTER_RELAY_SERVER_IP")
	setString(&c.Server.Host, "APITESTER_SERVER_HOST")
	setInt(&c.Server.Port, "APITESTER_SERVER_PORT")
	setString(&c.Generator.BasePackage, "APITESTER_BASE_PACKAGE")
	setBool(&c.Generator.OnlySuccessful, "APITESTER_ONLY_SUCCESSFUL")
	setBool(&c.Generator.ApplyDefaultValidation, "APITESTER_DEFAULT_VALIDATION")
	setBool(&c.Features.BDDGeneration, "APITESTER_FEATURE_BDD_GENERATION")
	setString(&c.Output.Dir, "APITESTER_OUTPUT_DIR")
	setString(&c.Store.Path, "APITESTER_STORE_PATH")
	setString(&c.Log.Level, "APITESTER_LOG_LEVEL")
	setBool(&c.Log.Pretty, "APITESTER_LOG_PRETTY")
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
