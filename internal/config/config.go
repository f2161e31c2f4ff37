package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the ctxdex configuration.
type Config struct {
	HTTP      HTTPConfig         `yaml:"http"`
	Database  DatabaseConfig     `yaml:"database"`
	Embedding EmbeddingConfig    `yaml:"embedding"`
	Retrieval RetrievalConfig    `yaml:"retrieval"`
	Usage     UsageConfig        `yaml:"usage"`
	Pricing   map[string]float64 `yaml:"pricing"` // model -> USD per million tokens
	Auth      AuthConfig         `yaml:"auth"`
	Logging   LoggingConfig      `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// Database drivers.
const (
	DriverRedis  = "redis"
	DriverSQLite = "sqlite"
)

// DatabaseConfig holds corpus store settings.
type DatabaseConfig struct {
	Driver           string   `yaml:"driver"` // redis, sqlite (default: sqlite)
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	SQLitePath       string   `yaml:"sqlite_path"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// Embedding providers.
const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
	ProviderNone   = "none"
)

// EmbeddingConfig holds embedding settings. Provider "none" answers every call with hash vectors.
type EmbeddingConfig struct {
	Provider            string       `yaml:"provider"`
	APIKey              string       `yaml:"api_key"`
	BaseURL             string       `yaml:"base_url"`
	Model               string       `yaml:"model"`
	Dimensions          int          `yaml:"dimensions"`
	TimeoutMs           int          `yaml:"timeout_ms"`
	DocumentInstruction string       `yaml:"document_instruction"`
	QueryInstruction    string       `yaml:"query_instruction"`
	Cache               bool         `yaml:"cache"`
	Budget              BudgetConfig `yaml:"budget"`
}

// Timeout returns the provider call timeout.
func (e EmbeddingConfig) Timeout() time.Duration {
	return time.Duration(e.TimeoutMs) * time.Millisecond
}

// BudgetConfig holds token budget settings.
type BudgetConfig struct {
	DailyTokenLimit   int64  `yaml:"daily_token_limit"`   // 0 = unlimited
	MonthlyTokenLimit int64  `yaml:"monthly_token_limit"` // 0 = unlimited
	Action            string `yaml:"action"`              // "reject" | "warn" (default)
}

// WeightsConfig holds fusion weights.
type WeightsConfig struct {
	Semantic float64 `yaml:"semantic"`
	Fulltext float64 `yaml:"fulltext"`
	Distance float64 `yaml:"distance"`
}

func (w WeightsConfig) isZero() bool {
	return w.Semantic == 0 && w.Fulltext == 0 && w.Distance == 0
}

// RetrievalConfig holds ranking defaults.
type RetrievalConfig struct {
	CandidatePool       int           `yaml:"candidate_pool"`
	DefaultWeights      WeightsConfig `yaml:"default_weights"`
	DefaultPlaceWeights WeightsConfig `yaml:"default_place_weights"`
}

// Usage sinks.
const (
	SinkLog    = "log"
	SinkSQLite = "sqlite"
	SinkRedis  = "redis"
)

// UsageConfig holds usage accounting settings.
type UsageConfig struct {
	PoolSize      int      `yaml:"pool_size"`
	Sinks         []string `yaml:"sinks"`
	DailyTTLHours int      `yaml:"daily_ttl_hours"`
	MonthlyTTLDay int      `yaml:"monthly_ttl_days"`
	Currency      string   `yaml:"currency"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
// A .env file in the working directory, if present, is loaded first.
func Load(env string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load .env: %w", err)
	}

	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}
	return Parse(data)
}

// Parse expands env variables, decodes YAML, applies defaults and validates.
func Parse(data []byte) (Config, error) {
	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8080
	}
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 10
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.Driver == "" {
		c.Database.Driver = DriverSQLite
	}
	if c.Database.SQLitePath == "" {
		c.Database.SQLitePath = "ctxdex.db"
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Embedding.Provider == "" {
		c.Embedding.Provider = ProviderNone
	}
	if c.Embedding.Dimensions <= 0 {
		c.Embedding.Dimensions = 384
	}
	if c.Embedding.TimeoutMs <= 0 {
		c.Embedding.TimeoutMs = 5000
	}
	if c.Retrieval.CandidatePool <= 0 {
		c.Retrieval.CandidatePool = 20
	}
	if c.Retrieval.DefaultWeights.isZero() {
		c.Retrieval.DefaultWeights = WeightsConfig{Semantic: 0.7, Fulltext: 0.3}
	}
	if c.Retrieval.DefaultPlaceWeights.isZero() {
		c.Retrieval.DefaultPlaceWeights = WeightsConfig{Semantic: 0.4, Fulltext: 0.2, Distance: 0.4}
	}
	if c.Usage.PoolSize <= 0 {
		c.Usage.PoolSize = 4
	}
	if len(c.Usage.Sinks) == 0 {
		c.Usage.Sinks = []string{SinkLog}
	}
	if c.Usage.DailyTTLHours <= 0 {
		c.Usage.DailyTTLHours = 48
	}
	if c.Usage.MonthlyTTLDay <= 0 {
		c.Usage.MonthlyTTLDay = 62
	}
	if c.Usage.Currency == "" {
		c.Usage.Currency = "USD"
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	switch c.Database.Driver {
	case DriverRedis:
		if len(c.Database.Addrs) == 0 {
			return fmt.Errorf("database.addrs is required for driver %q", DriverRedis)
		}
	case DriverSQLite:
	default:
		return fmt.Errorf("database.driver must be %q or %q, got %q", DriverRedis, DriverSQLite, c.Database.Driver)
	}

	switch c.Embedding.Provider {
	case ProviderOpenAI, ProviderOllama:
		if c.Embedding.Model == "" {
			return fmt.Errorf("embedding.model is required for provider %q", c.Embedding.Provider)
		}
	case ProviderNone:
	default:
		return fmt.Errorf("embedding.provider must be openai, ollama or none, got %q", c.Embedding.Provider)
	}
	switch c.Embedding.Budget.Action {
	case "", "warn", "reject":
		// ok
	default:
		return fmt.Errorf(
			"embedding.budget.action must be \"warn\" or \"reject\", got %q",
			c.Embedding.Budget.Action,
		)
	}

	for name, w := range map[string]WeightsConfig{
		"default_weights":       c.Retrieval.DefaultWeights,
		"default_place_weights": c.Retrieval.DefaultPlaceWeights,
	} {
		if w.Semantic < 0 || w.Fulltext < 0 || w.Distance < 0 {
			return fmt.Errorf("retrieval.%s must be non-negative", name)
		}
	}

	for _, s := range c.Usage.Sinks {
		switch s {
		case SinkLog, SinkSQLite:
		case SinkRedis:
			if c.Database.Driver != DriverRedis {
				return fmt.Errorf("usage sink %q requires database.driver %q", SinkRedis, DriverRedis)
			}
		default:
			return fmt.Errorf("unknown usage sink %q", s)
		}
	}
	for model, price := range c.Pricing {
		if price < 0 {
			return fmt.Errorf("pricing.%s must be non-negative", model)
		}
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
