// Package config loads, persists, and defaults qmx configuration.
//
// Configuration is an explicit value threaded into the indexing and retrieval
// engines; nothing in this package mutates process-wide state. Precedence is
// flags > environment > config file > defaults, with flag handling left to
// the CLI layer.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default model and host settings for the Ollama backend.
const (
	DefaultOllamaHost    = "http://localhost:11434"
	DefaultEmbedModel    = "nomic-embed-text"
	DefaultExpanderModel = "hf.co/tobil/qmd-query-expansion-1.7B-gguf:Q4_K_M"
	DefaultRerankerModel = "fanyx/Qwen3-Reranker-0.6B-Q8_0:latest"

	// DefaultRequestTimeout bounds every external LLM call and file read.
	DefaultRequestTimeout = 5 * time.Second

	// DefaultIndexName is the database name used when --index is not given.
	DefaultIndexName = "index"
)

// Keyword index backends.
const (
	KeywordBackendFTS5  = "fts5"
	KeywordBackendBleve = "bleve"
)

// Config is the complete qmx configuration.
type Config struct {
	// OllamaHost is the base URL of the Ollama API.
	OllamaHost string `yaml:"ollama_host"`
	// EmbedModel is the embedding model name.
	EmbedModel string `yaml:"embed_model"`
	// ExpanderModel generates query variations for hybrid search.
	ExpanderModel string `yaml:"expander_model"`
	// RerankerModel scores query/candidate relevance for hybrid search.
	RerankerModel string `yaml:"reranker_model"`
	// RequestTimeout bounds each external service call.
	RequestTimeout time.Duration `yaml:"request_timeout"`
	// KeywordBackend selects the full-text backend: fts5 (default) or bleve.
	KeywordBackend string `yaml:"keyword_backend"`
	// DataDir is where index databases live. Defaults to XDG data dir.
	DataDir string `yaml:"data_dir"`
	// LogLevel is the minimum slog level (debug, info, warn, error).
	LogLevel string `yaml:"log_level"`
}

// yamlConfig is the wire form of Config. The timeout travels as a
// human-readable duration string, which yaml cannot do for time.Duration.
type yamlConfig struct {
	OllamaHost     string `yaml:"ollama_host,omitempty"`
	EmbedModel     string `yaml:"embed_model,omitempty"`
	ExpanderModel  string `yaml:"expander_model,omitempty"`
	RerankerModel  string `yaml:"reranker_model,omitempty"`
	RequestTimeout string `yaml:"request_timeout,omitempty"`
	KeywordBackend string `yaml:"keyword_backend,omitempty"`
	DataDir        string `yaml:"data_dir,omitempty"`
	LogLevel       string `yaml:"log_level,omitempty"`
}

func (c *Config) UnmarshalYAML(value *yaml.Node) error {
	var y yamlConfig
	if err := value.Decode(&y); err != nil {
		return err
	}
	c.OllamaHost = y.OllamaHost
	c.EmbedModel = y.EmbedModel
	c.ExpanderModel = y.ExpanderModel
	c.RerankerModel = y.RerankerModel
	c.KeywordBackend = y.KeywordBackend
	c.DataDir = y.DataDir
	c.LogLevel = y.LogLevel
	if y.RequestTimeout != "" {
		d, err := time.ParseDuration(y.RequestTimeout)
		if err != nil {
			return fmt.Errorf("request_timeout: %w", err)
		}
		c.RequestTimeout = d
	}
	return nil
}

func (c Config) MarshalYAML() (any, error) {
	y := yamlConfig{
		OllamaHost:     c.OllamaHost,
		EmbedModel:     c.EmbedModel,
		ExpanderModel:  c.ExpanderModel,
		RerankerModel:  c.RerankerModel,
		KeywordBackend: c.KeywordBackend,
		DataDir:        c.DataDir,
		LogLevel:       c.LogLevel,
	}
	if c.RequestTimeout > 0 {
		y.RequestTimeout = c.RequestTimeout.String()
	}
	return y, nil
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		OllamaHost:     DefaultOllamaHost,
		EmbedModel:     DefaultEmbedModel,
		ExpanderModel:  DefaultExpanderModel,
		RerankerModel:  DefaultRerankerModel,
		RequestTimeout: DefaultRequestTimeout,
		KeywordBackend: KeywordBackendFTS5,
		DataDir:        defaultDataDir(),
		LogLevel:       "info",
	}
}

// Dir returns the qmx config directory ($XDG_CONFIG_HOME/qmx or ~/.config/qmx).
func Dir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "qmx")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".qmx")
	}
	return filepath.Join(home, ".config", "qmx")
}

// Path returns the config file path.
func Path() string {
	return filepath.Join(Dir(), "config.yaml")
}

func defaultDataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "qmx")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".qmx")
	}
	return filepath.Join(home, ".local", "share", "qmx")
}

// Load reads the config file if present, applies environment overrides,
// and fills defaults. A missing or unreadable file is not an error.
func Load() Config {
	cfg := Default()

	data, err := os.ReadFile(Path())
	if err == nil {
		var fileCfg Config
		if yaml.Unmarshal(data, &fileCfg) == nil {
			cfg.merge(fileCfg)
		}
	}

	cfg.applyEnv()
	return cfg
}

// merge overlays non-zero fields from other onto cfg.
func (c *Config) merge(other Config) {
	if other.OllamaHost != "" {
		c.OllamaHost = other.OllamaHost
	}
	if other.EmbedModel != "" {
		c.EmbedModel = other.EmbedModel
	}
	if other.ExpanderModel != "" {
		c.ExpanderModel = other.ExpanderModel
	}
	if other.RerankerModel != "" {
		c.RerankerModel = other.RerankerModel
	}
	if other.RequestTimeout > 0 {
		c.RequestTimeout = other.RequestTimeout
	}
	if other.KeywordBackend != "" {
		c.KeywordBackend = other.KeywordBackend
	}
	if other.DataDir != "" {
		c.DataDir = other.DataDir
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
}

func (c *Config) applyEnv() {
	if v := os.Getenv("OLLAMA_HOST"); v != "" {
		c.OllamaHost = v
	}
	if v := os.Getenv("QMX_EMBED_MODEL"); v != "" {
		c.EmbedModel = v
	}
	if v := os.Getenv("QMX_EXPANDER_MODEL"); v != "" {
		c.ExpanderModel = v
	}
	if v := os.Getenv("QMX_RERANKER_MODEL"); v != "" {
		c.RerankerModel = v
	}
	if v := os.Getenv("QMX_KEYWORD_BACKEND"); v != "" {
		c.KeywordBackend = v
	}
	if v := os.Getenv("QMX_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("QMX_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("QMX_REQUEST_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			c.RequestTimeout = d
		}
	}
}

// Update rewrites the stored config file through mutate. Environment
// overrides are left out so they never get frozen into the file.
func Update(mutate func(*Config)) error {
	cfg := Default()
	if data, err := os.ReadFile(Path()); err == nil {
		var fileCfg Config
		if yaml.Unmarshal(data, &fileCfg) == nil {
			cfg.merge(fileCfg)
		}
	}
	mutate(&cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}
	return Save(cfg)
}

// Save writes the config file, creating the config directory if needed.
func Save(cfg Config) error {
	if err := os.MkdirAll(Dir(), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(Path(), data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Validate checks value ranges that would break the engines.
func (c Config) Validate() error {
	switch c.KeywordBackend {
	case KeywordBackendFTS5, KeywordBackendBleve:
	default:
		return fmt.Errorf("unknown keyword backend %q (valid: fts5, bleve)", c.KeywordBackend)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive, got %s", c.RequestTimeout)
	}
	return nil
}

var indexNameRe = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// DatabasePath resolves a named index to its sqlite file under DataDir.
// The name is restricted to a safe character set so --index cannot escape
// the data directory.
func (c Config) DatabasePath(name string) (string, error) {
	if name == "" {
		name = DefaultIndexName
	}
	if !indexNameRe.MatchString(name) {
		return "", fmt.Errorf("invalid index name %q", name)
	}
	if !strings.HasSuffix(name, ".sqlite") {
		name += ".sqlite"
	}
	return filepath.Join(c.DataDir, name), nil
}

// BleveIndexPath returns the bleve index directory for a database path.
func BleveIndexPath(dbPath string) string {
	return strings.TrimSuffix(dbPath, ".sqlite") + ".bleve"
}

// LockPath returns the indexing lock file for a database path.
func LockPath(dbPath string) string {
	return dbPath + ".lock"
}
