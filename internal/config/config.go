package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Encoder provider names.
const (
	ProviderNone   = ""
	ProviderOpenAI = "openai"
	ProviderONNX   = "onnx"
)

// Config holds the flagsearch configuration.
type Config struct {
	HTTP    HTTPConfig    `yaml:"http"`
	Corpus  CorpusConfig  `yaml:"corpus"`
	Encoder EncoderConfig `yaml:"encoder"`
	Cache   CacheConfig   `yaml:"cache"`
	Auth    AuthConfig    `yaml:"auth"`
	Logging LoggingConfig `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings. No keys disables auth.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int      `yaml:"port"`
	ReadTimeoutSec  int      `yaml:"read_timeout_sec"`
	WriteTimeoutSec int      `yaml:"write_timeout_sec"`
	ShutdownSec     int      `yaml:"shutdown_timeout_sec"`
	CORSOrigins     []string `yaml:"cors_origins"`
	MaxUploadMB     int      `yaml:"max_upload_mb"`
}

// MaxUploadBytes returns the image upload limit in bytes.
func (h HTTPConfig) MaxUploadBytes() int64 {
	return int64(h.MaxUploadMB) << 20
}

// CorpusConfig locates the corpus and bounds result sizes.
type CorpusConfig struct {
	Descriptor  string `yaml:"descriptor"`
	DefaultTopK int    `yaml:"default_top_k"`
	MaxTopK     int    `yaml:"max_top_k"`
}

// EncoderConfig selects the query encoders.
type EncoderConfig struct {
	Text       string       `yaml:"text"`  // openai, onnx or empty (text search disabled)
	Image      string       `yaml:"image"` // onnx or empty (image search disabled)
	TimeoutSec int          `yaml:"timeout_sec"`
	OpenAI     OpenAIConfig `yaml:"openai"`
	ONNX       ONNXConfig   `yaml:"onnx"`
}

// Timeout returns the per-call encoder deadline.
func (e EncoderConfig) Timeout() time.Duration {
	return time.Duration(e.TimeoutSec) * time.Second
}

// OpenAIConfig holds settings for an OpenAI-compatible embeddings endpoint.
type OpenAIConfig struct {
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
	User       string `yaml:"user"`
}

// ONNXConfig holds settings for the in-process CLIP encoders.
type ONNXConfig struct {
	LibraryPath string   `yaml:"library_path"`
	TextModel   string   `yaml:"text_model"`
	Tokenizer   string   `yaml:"tokenizer"`
	TextInputs  []string `yaml:"text_inputs"`
	TextOutput  string   `yaml:"text_output"`
	MaxSeqLen   int      `yaml:"max_seq_len"`
	PadID       int      `yaml:"pad_id"`
	ImageModel  string   `yaml:"image_model"`
	ImageInput  string   `yaml:"image_input"`
	ImageOutput string   `yaml:"image_output"`
	ImageSize   int      `yaml:"image_size"`
	MaxPixels   int      `yaml:"max_pixels"`
	Threads     int      `yaml:"threads"`
}

// CacheConfig holds the Valkey/Redis text encoding cache settings. No addrs disables the cache.
type CacheConfig struct {
	Addrs            []string `yaml:"addrs"`
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	DB               int      `yaml:"db"`
	TTLSec           int      `yaml:"ttl_sec"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// Enabled reports whether a cache is configured.
func (c CacheConfig) Enabled() bool { return len(c.Addrs) > 0 }

// TTL returns the cache entry lifetime.
func (c CacheConfig) TTL() time.Duration { return time.Duration(c.TTLSec) * time.Second }

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	return LoadFile(findConfigPath(env))
}

// LoadFile reads configuration from an explicit path.
func LoadFile(configPath string) (Config, error) {
	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

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
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 30
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.HTTP.CORSOrigins == nil {
		c.HTTP.CORSOrigins = []string{"http://localhost:5173"}
	}
	if c.HTTP.MaxUploadMB <= 0 {
		c.HTTP.MaxUploadMB = 10
	}
	if c.Corpus.Descriptor == "" {
		c.Corpus.Descriptor = filepath.Join("data", "flags.json")
	}
	if c.Corpus.DefaultTopK <= 0 {
		c.Corpus.DefaultTopK = 8
	}
	if c.Corpus.MaxTopK <= 0 {
		c.Corpus.MaxTopK = 100
	}
	if c.Encoder.TimeoutSec <= 0 {
		c.Encoder.TimeoutSec = 10
	}
	if c.Encoder.ONNX.MaxSeqLen <= 0 {
		c.Encoder.ONNX.MaxSeqLen = 77
	}
	if c.Encoder.ONNX.ImageSize <= 0 {
		c.Encoder.ONNX.ImageSize = 224
	}
	if c.Cache.TTLSec <= 0 {
		c.Cache.TTLSec = 7 * 24 * 3600
	}
	if c.Cache.ReadinessTimeout <= 0 {
		c.Cache.ReadinessTimeout = 10
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	for i, o := range c.HTTP.CORSOrigins {
		if strings.TrimSpace(o) == "" {
			return fmt.Errorf("http.cors_origins[%d] is empty", i)
		}
	}
	if c.Corpus.DefaultTopK > c.Corpus.MaxTopK {
		return fmt.Errorf("corpus.default_top_k (%d) exceeds corpus.max_top_k (%d)",
			c.Corpus.DefaultTopK, c.Corpus.MaxTopK)
	}
	return c.Encoder.validate()
}

func (e *EncoderConfig) validate() error {
	switch e.Text {
	case ProviderNone:
	case ProviderOpenAI:
		if e.OpenAI.Model == "" {
			return errors.New("encoder.openai.model is required for the openai text encoder")
		}
	case ProviderONNX:
		if e.ONNX.TextModel == "" || e.ONNX.Tokenizer == "" {
			return errors.New("encoder.onnx.text_model and encoder.onnx.tokenizer are required for the onnx text encoder")
		}
	default:
		return fmt.Errorf("encoder.text must be %q, %q or empty, got %q", ProviderOpenAI, ProviderONNX, e.Text)
	}

	switch e.Image {
	case ProviderNone:
	case ProviderONNX:
		if e.ONNX.ImageModel == "" {
			return errors.New("encoder.onnx.image_model is required for the onnx image encoder")
		}
	default:
		return fmt.Errorf("encoder.image must be %q or empty, got %q", ProviderONNX, e.Image)
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
