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

	"github.com/kailas-cloud/docqa/internal/domain"
)

// Provider names accepted by llm.provider and embedding.provider.
const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
	ProviderLocal  = "local"
)

// Config holds the docqa configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Auth      AuthConfig      `yaml:"auth"`
	LLM       LLMConfig       `yaml:"llm"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Cache     CacheConfig     `yaml:"cache"`
	Database  DatabaseConfig  `yaml:"database"`
	Retry     RetryConfig     `yaml:"retry"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings. An empty list disables auth.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
	MaxUploadMB     int `yaml:"max_upload_mb"`
}

// LLMConfig holds the generation backend settings.
type LLMConfig struct {
	Provider            string   `yaml:"provider"` // ollama (default) | openai
	Model               string   `yaml:"model"`
	BaseURL             string   `yaml:"base_url"`
	APIKey              string   `yaml:"api_key"`
	Temperature         *float64 `yaml:"temperature"`
	NumCtx              int      `yaml:"num_ctx"`
	NumGPU              int      `yaml:"num_gpu"`
	MaxTokens           int      `yaml:"max_tokens"` // 0 = backend default
	TimeoutSec          int      `yaml:"timeout_sec"`
	ReadinessTimeoutSec int      `yaml:"readiness_timeout_sec"`
}

// EmbeddingConfig holds the embedding backend settings.
type EmbeddingConfig struct {
	Provider            string       `yaml:"provider"` // local (default) | ollama | openai
	Model               string       `yaml:"model"`
	BaseURL             string       `yaml:"base_url"`
	APIKey              string       `yaml:"api_key"`
	Dimensions          int          `yaml:"dimensions"`
	Device              string       `yaml:"device"` // cpu | cuda
	ModelDir            string       `yaml:"model_dir"`
	OnnxFile            string       `yaml:"onnx_file"`
	HFToken             string       `yaml:"hf_token"`
	Normalize           *bool        `yaml:"normalize"`
	DocumentInstruction string       `yaml:"document_instruction"`
	QueryInstruction    string       `yaml:"query_instruction"`
	Budget              BudgetConfig `yaml:"budget"`
}

// BudgetConfig holds token budget settings.
type BudgetConfig struct {
	DailyTokenLimit   int64  `yaml:"daily_token_limit"`   // 0 = unlimited
	MonthlyTokenLimit int64  `yaml:"monthly_token_limit"` // 0 = unlimited
	Action            string `yaml:"action"`              // "reject" | "warn" (default)
}

// ChunkingConfig holds text splitter settings, in characters.
type ChunkingConfig struct {
	Size int `yaml:"size"`
	// Overlap at or above Size is clamped by the splitter.
	Overlap *int `yaml:"overlap"`
}

// RetrievalConfig holds retrieval and source presentation settings.
type RetrievalConfig struct {
	K            int `yaml:"k"`
	ExcerptChars int `yaml:"excerpt_chars"`
}

// CacheConfig holds index cache settings.
type CacheConfig struct {
	MaxEntries int `yaml:"max_entries"` // 0 = unbounded
}

// DatabaseConfig holds the budget store connection settings.
type DatabaseConfig struct {
	Driver           string   `yaml:"driver"` // memory (default) | redis
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// RetryConfig holds the caller-level retry policy for rate-limited providers.
type RetryConfig struct {
	MaxElapsedSec int `yaml:"max_elapsed_sec"` // 0 = no retries
}

// Load reads configuration from a YAML file by environment name (local, docker, prod).
// A .env file in the working directory is loaded first when present.
func Load(env string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load .env: %w", err)
	}

	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("%w: failed to read config %s: %v", domain.ErrConfiguration, configPath, err)
	}

	return Parse(data)
}

// Parse expands environment variables in data, decodes it, applies defaults and validates.
func Parse(data []byte) (Config, error) {
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: failed to parse config: %v", domain.ErrConfiguration, err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
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
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 30
	}
	// Generation can take minutes on CPU; SSE responses stream longer still.
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 300
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.HTTP.MaxUploadMB <= 0 {
		c.HTTP.MaxUploadMB = 50
	}

	if c.LLM.Provider == "" {
		c.LLM.Provider = ProviderOllama
	}
	if c.LLM.BaseURL == "" && c.LLM.Provider == ProviderOllama {
		c.LLM.BaseURL = "http://localhost:11434"
	}
	if c.LLM.Temperature == nil {
		t := 0.5
		c.LLM.Temperature = &t
	}
	if c.LLM.NumCtx <= 0 {
		c.LLM.NumCtx = 4096
	}
	if c.LLM.NumGPU <= 0 {
		c.LLM.NumGPU = 1
	}
	if c.LLM.TimeoutSec <= 0 {
		c.LLM.TimeoutSec = 120
	}
	if c.LLM.ReadinessTimeoutSec <= 0 {
		c.LLM.ReadinessTimeoutSec = 10
	}

	if c.Embedding.Provider == "" {
		c.Embedding.Provider = ProviderLocal
	}
	if c.Embedding.Device == "" {
		c.Embedding.Device = "cpu"
	}
	if c.Embedding.ModelDir == "" {
		c.Embedding.ModelDir = "models"
	}
	if c.Embedding.Normalize == nil {
		n := true
		c.Embedding.Normalize = &n
	}
	if c.Embedding.BaseURL == "" && c.Embedding.Provider == ProviderOllama {
		c.Embedding.BaseURL = "http://localhost:11434"
		if c.LLM.Provider == ProviderOllama {
			c.Embedding.BaseURL = c.LLM.BaseURL
		}
	}

	if c.Chunking.Size <= 0 {
		c.Chunking.Size = 1000
	}
	if c.Chunking.Overlap == nil {
		o := 100
		c.Chunking.Overlap = &o
	}
	if c.Retrieval.K <= 0 {
		c.Retrieval.K = 4
	}
	if c.Retrieval.ExcerptChars <= 0 {
		c.Retrieval.ExcerptChars = 160
	}
	if c.Cache.MaxEntries < 0 {
		c.Cache.MaxEntries = 0
	}

	if c.Database.Driver == "" {
		c.Database.Driver = "memory"
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
}

// Validate checks the configuration for correctness. Every error wraps domain.ErrConfiguration.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return invalid("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}

	switch c.LLM.Provider {
	case ProviderOllama, ProviderOpenAI:
	default:
		return invalid("llm.provider must be %q or %q, got %q", ProviderOllama, ProviderOpenAI, c.LLM.Provider)
	}
	if c.LLM.Model == "" {
		return invalid("llm.model is required")
	}
	if c.LLM.Provider == ProviderOpenAI && c.LLM.APIKey == "" && c.LLM.BaseURL == "" {
		return invalid("llm.api_key is required for the openai provider")
	}
	if t := *c.LLM.Temperature; t < 0 || t > 2 {
		return invalid("llm.temperature must be between 0 and 2, got %g", t)
	}

	switch c.Embedding.Provider {
	case ProviderLocal, ProviderOllama, ProviderOpenAI:
	default:
		return invalid("embedding.provider must be %q, %q or %q, got %q",
			ProviderLocal, ProviderOllama, ProviderOpenAI, c.Embedding.Provider)
	}
	if c.Embedding.Model == "" {
		return invalid("embedding.model is required")
	}
	if c.Embedding.Provider == ProviderOpenAI && c.Embedding.APIKey == "" && c.Embedding.BaseURL == "" {
		return invalid("embedding.api_key is required for the openai provider")
	}
	if c.Embedding.Dimensions < 0 {
		return invalid("embedding.dimensions must not be negative, got %d", c.Embedding.Dimensions)
	}
	switch c.Embedding.Device {
	case "cpu", "cuda":
	default:
		return invalid("embedding.device must be \"cpu\" or \"cuda\", got %q", c.Embedding.Device)
	}
	switch c.Embedding.Budget.Action {
	case "", "warn", "reject":
	default:
		return invalid("embedding.budget.action must be \"warn\" or \"reject\", got %q", c.Embedding.Budget.Action)
	}

	if *c.Chunking.Overlap < 0 {
		return invalid("chunking.overlap must not be negative, got %d", *c.Chunking.Overlap)
	}

	switch c.Database.Driver {
	case "memory":
	case "redis":
		if len(c.Database.Addrs) == 0 {
			return invalid("database.addrs is required for the redis driver")
		}
	default:
		return invalid("database.driver must be \"memory\" or \"redis\", got %q", c.Database.Driver)
	}

	if c.Retry.MaxElapsedSec < 0 {
		return invalid("retry.max_elapsed_sec must not be negative, got %d", c.Retry.MaxElapsedSec)
	}
	return nil
}

// GenerationTimeout returns the default generation deadline.
func (c *Config) GenerationTimeout() time.Duration {
	return time.Duration(c.LLM.TimeoutSec) * time.Second
}

// RetryMaxElapsed returns the 429 retry window, zero when retries are disabled.
func (c *Config) RetryMaxElapsed() time.Duration {
	return time.Duration(c.Retry.MaxElapsedSec) * time.Second
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrConfiguration, fmt.Sprintf(format, args...))
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
