// Package config loads and validates PDFMCP configuration.
//
// Configuration is applied in order of increasing precedence: hardcoded
// defaults, user config (~/.config/pdfmcp/config.yaml), project config
// (pdfmcp.yaml), a .env file, then environment variables. The merged
// result is validated before use.
package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the complete PDFMCP configuration.
type Config struct {
	Version  int            `yaml:"version" json:"version"`
	Corpus   CorpusConfig   `yaml:"corpus" json:"corpus"`
	Chunking ChunkingConfig `yaml:"chunking" json:"chunking"`
	Lexical  LexicalConfig  `yaml:"lexical" json:"lexical"`
	Semantic SemanticConfig `yaml:"semantic" json:"semantic"`
	Fusion   FusionConfig   `yaml:"fusion" json:"fusion"`
	Answer   AnswerConfig   `yaml:"answer" json:"answer"`
	Query    QueryConfig    `yaml:"query" json:"query"`
	Watch    WatchConfig    `yaml:"watch" json:"watch"`
	Server   ServerConfig   `yaml:"server" json:"server"`
}

// CorpusConfig configures document discovery and index storage.
type CorpusConfig struct {
	// DocumentsDir is the directory holding the PDF corpus. Required.
	DocumentsDir string `yaml:"documents_dir" json:"documents_dir"`
	// IndexDir is where persisted index state lives (default: ./.pdfmcp).
	IndexDir string `yaml:"index_dir" json:"index_dir"`
	// Lazy defers the corpus build to the first query instead of
	// building at startup.
	Lazy bool `yaml:"lazy" json:"lazy"`
	// Workers bounds ingestion parallelism. 0 means NumCPU/2, minimum 1.
	Workers int `yaml:"workers" json:"workers"`
}

// ChunkingConfig configures passage extraction.
type ChunkingConfig struct {
	// MaxChars is the maximum chunk length in characters.
	MaxChars int `yaml:"max_chars" json:"max_chars"`
	// Overlap is the number of characters shared between adjacent chunks.
	// Must satisfy 0 < overlap < max_chars.
	Overlap int `yaml:"overlap" json:"overlap"`
}

// LexicalConfig configures the BM25 index.
type LexicalConfig struct {
	// Backend selects the lexical index implementation.
	// Options: "memory" (default, exact scoring) or "bleve".
	Backend string `yaml:"backend" json:"backend"`
	// K1 is the BM25 term-frequency saturation parameter.
	K1 float64 `yaml:"k1" json:"k1"`
	// B is the BM25 length-normalization parameter.
	B float64 `yaml:"b" json:"b"`
}

// SemanticConfig configures the embedding provider and vector index.
type SemanticConfig struct {
	// Provider selects the embedding provider.
	// Options: "openai", "local", "static", or empty for auto-detection
	// (openai when OPENAI_API_KEY is set, otherwise static).
	Provider string `yaml:"provider" json:"provider"`
	// Model is the embedding model name.
	Model string `yaml:"model" json:"model"`
	// Dimensions is the vector dimensionality. 0 auto-detects from the
	// provider.
	Dimensions int `yaml:"dimensions" json:"dimensions"`
	// BatchSize is the number of texts embedded per provider call.
	BatchSize int `yaml:"batch_size" json:"batch_size"`
	// BaseURL is the endpoint for the local OpenAI-compatible provider
	// (default: http://localhost:11434/v1).
	BaseURL string `yaml:"base_url" json:"base_url"`
	// CacheSize is the in-process query-embedding LRU size.
	CacheSize int `yaml:"cache_size" json:"cache_size"`
}

// FusionConfig configures hybrid result fusion.
type FusionConfig struct {
	// LexicalWeight shifts fusion balance toward exact-term matches.
	// Must sum to 1.0 with SemanticWeight.
	LexicalWeight float64 `yaml:"lexical_weight" json:"lexical_weight"`
	// SemanticWeight shifts fusion balance toward conceptual matches.
	SemanticWeight float64 `yaml:"semantic_weight" json:"semantic_weight"`
	// OverfetchFactor multiplies the requested k when querying each
	// source, so fusion has enough candidate overlap to work with.
	OverfetchFactor int `yaml:"overfetch_factor" json:"overfetch_factor"`
}

// AnswerConfig configures optional answer synthesis.
type AnswerConfig struct {
	// Provider selects the generation provider.
	// Options: "openai", "local", or empty to disable answer mode.
	Provider string `yaml:"provider" json:"provider"`
	// Model is the chat model name.
	Model string `yaml:"model" json:"model"`
	// Temperature is the sampling temperature.
	Temperature float64 `yaml:"temperature" json:"temperature"`
	// BaseURL is the endpoint for the local OpenAI-compatible provider.
	BaseURL string `yaml:"base_url" json:"base_url"`
}

// Enabled reports whether answer mode is configured.
func (a AnswerConfig) Enabled() bool {
	return a.Provider != ""
}

// QueryConfig configures query-time behavior.
type QueryConfig struct {
	// DefaultChunks is the chunk count used when the caller leaves
	// max_chunks unset.
	DefaultChunks int `yaml:"default_chunks" json:"default_chunks"`
	// MaxChunks is the hard cap requests are clamped to.
	MaxChunks int `yaml:"max_chunks" json:"max_chunks"`
	// Timeout bounds a single query including both sub-searches.
	Timeout string `yaml:"timeout" json:"timeout"`
}

// WatchConfig configures document-directory watching.
type WatchConfig struct {
	// Enabled turns on fsnotify-driven corpus reloads.
	Enabled bool `yaml:"enabled" json:"enabled"`
	// Debounce is the quiet period collapsing change bursts into one
	// reload.
	Debounce string `yaml:"debounce" json:"debounce"`
}

// ServerConfig configures the MCP server.
type ServerConfig struct {
	Transport string `yaml:"transport" json:"transport"`
	LogLevel  string `yaml:"log_level" json:"log_level"`
}

// NewConfig creates a new Config with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Corpus: CorpusConfig{
			DocumentsDir: "",
			IndexDir:     ".pdfmcp",
			Lazy:         false,
			Workers:      defaultWorkers(),
		},
		Chunking: ChunkingConfig{
			MaxChars: 800,
			Overlap:  120,
		},
		Lexical: LexicalConfig{
			Backend: "memory",
			K1:      1.2,
			B:       0.75,
		},
		Semantic: SemanticConfig{
			Provider:   "", // Auto-detect: openai when OPENAI_API_KEY is set, else static
			Model:      "text-embedding-3-small",
			Dimensions: 0,
			BatchSize:  64,
			BaseURL:    "http://localhost:11434/v1",
			CacheSize:  1000,
		},
		Fusion: FusionConfig{
			LexicalWeight:   0.5,
			SemanticWeight:  0.5,
			OverfetchFactor: 2,
		},
		Answer: AnswerConfig{
			Provider:    "", // Answer mode off unless configured
			Model:       "gpt-4o-mini",
			Temperature: 0.1,
			BaseURL:     "http://localhost:11434/v1",
		},
		Query: QueryConfig{
			DefaultChunks: 5,
			MaxChunks:     20,
			Timeout:       "30s",
		},
		Watch: WatchConfig{
			Enabled:  false,
			Debounce: "2s",
		},
		Server: ServerConfig{
			Transport: "stdio",
			LogLevel:  "info",
		},
	}
}

// defaultWorkers sizes the ingestion pool at half the CPUs, minimum 1.
func defaultWorkers() int {
	n := runtime.NumCPU() / 2
	if n < 1 {
		n = 1
	}
	return n
}

// GetUserConfigPath returns the path to the user/global configuration file.
// It follows the XDG Base Directory specification:
//   - $XDG_CONFIG_HOME/pdfmcp/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/pdfmcp/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "pdfmcp", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "pdfmcp", "config.yaml")
	}
	return filepath.Join(home, ".config", "pdfmcp", "config.yaml")
}

// loadUserConfig loads the user/global configuration file if it exists.
// Returns nil config and nil error if the file doesn't exist.
func loadUserConfig() (*Config, error) {
	configPath := GetUserConfigPath()

	if !fileExists(configPath) {
		return nil, nil
	}

	cfg := NewConfig()
	if err := cfg.loadYAML(configPath); err != nil {
		return nil, fmt.Errorf("failed to load user config from %s: %w", configPath, err)
	}

	return cfg, nil
}

// Load loads configuration for the given working directory.
// It applies configuration in order of increasing precedence:
//  1. Hardcoded defaults
//  2. User/global config (~/.config/pdfmcp/config.yaml)
//  3. Project config (pdfmcp.yaml in dir)
//  4. .env file in dir (loaded into the environment, never overriding it)
//  5. Environment variables
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if userCfg, err := loadUserConfig(); err != nil {
		return nil, err
	} else if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	// godotenv.Load never overrides variables already exported, which
	// keeps real environment variables the highest precedence.
	_ = godotenv.Load(filepath.Join(dir, ".env"))

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// LoadFile loads configuration from an explicit YAML path plus environment
// overrides. Used by the --config flag.
func LoadFile(path string) (*Config, error) {
	cfg := NewConfig()

	if !fileExists(path) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}
	if err := cfg.loadYAML(path); err != nil {
		return nil, err
	}

	_ = godotenv.Load(filepath.Join(filepath.Dir(path), ".env"))
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadFromFile attempts to load configuration from pdfmcp.yaml or .pdfmcp.yaml.
func (c *Config) loadFromFile(dir string) error {
	for _, name := range []string{"pdfmcp.yaml", "pdfmcp.yml", ".pdfmcp.yaml", ".pdfmcp.yml"} {
		path := filepath.Join(dir, name)
		if fileExists(path) {
			return c.loadYAML(path)
		}
	}
	// No config file is fine - use defaults
	return nil
}

// loadYAML loads and merges configuration from a YAML file.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	// Corpus
	if other.Corpus.DocumentsDir != "" {
		c.Corpus.DocumentsDir = other.Corpus.DocumentsDir
	}
	if other.Corpus.IndexDir != "" {
		c.Corpus.IndexDir = other.Corpus.IndexDir
	}
	if other.Corpus.Lazy {
		c.Corpus.Lazy = true
	}
	if other.Corpus.Workers != 0 {
		c.Corpus.Workers = other.Corpus.Workers
	}

	// Chunking
	if other.Chunking.MaxChars != 0 {
		c.Chunking.MaxChars = other.Chunking.MaxChars
	}
	if other.Chunking.Overlap != 0 {
		c.Chunking.Overlap = other.Chunking.Overlap
	}

	// Lexical
	if other.Lexical.Backend != "" {
		c.Lexical.Backend = other.Lexical.Backend
	}
	if other.Lexical.K1 != 0 {
		c.Lexical.K1 = other.Lexical.K1
	}
	if other.Lexical.B != 0 {
		c.Lexical.B = other.Lexical.B
	}

	// Semantic
	if other.Semantic.Provider != "" {
		c.Semantic.Provider = other.Semantic.Provider
	}
	if other.Semantic.Model != "" {
		c.Semantic.Model = other.Semantic.Model
	}
	if other.Semantic.Dimensions != 0 {
		c.Semantic.Dimensions = other.Semantic.Dimensions
	}
	if other.Semantic.BatchSize != 0 {
		c.Semantic.BatchSize = other.Semantic.BatchSize
	}
	if other.Semantic.BaseURL != "" {
		c.Semantic.BaseURL = other.Semantic.BaseURL
	}
	if other.Semantic.CacheSize != 0 {
		c.Semantic.CacheSize = other.Semantic.CacheSize
	}

	// Fusion weights. 0 is not a practical weight, so only non-zero
	// values merge; explicit zeros come in via env overrides.
	if other.Fusion.LexicalWeight != 0 {
		c.Fusion.LexicalWeight = other.Fusion.LexicalWeight
	}
	if other.Fusion.SemanticWeight != 0 {
		c.Fusion.SemanticWeight = other.Fusion.SemanticWeight
	}
	if other.Fusion.OverfetchFactor != 0 {
		c.Fusion.OverfetchFactor = other.Fusion.OverfetchFactor
	}

	// Answer
	if other.Answer.Provider != "" {
		c.Answer.Provider = other.Answer.Provider
	}
	if other.Answer.Model != "" {
		c.Answer.Model = other.Answer.Model
	}
	if other.Answer.Temperature != 0 {
		c.Answer.Temperature = other.Answer.Temperature
	}
	if other.Answer.BaseURL != "" {
		c.Answer.BaseURL = other.Answer.BaseURL
	}

	// Query
	if other.Query.DefaultChunks != 0 {
		c.Query.DefaultChunks = other.Query.DefaultChunks
	}
	if other.Query.MaxChunks != 0 {
		c.Query.MaxChunks = other.Query.MaxChunks
	}
	if other.Query.Timeout != "" {
		c.Query.Timeout = other.Query.Timeout
	}

	// Watch
	if other.Watch.Enabled {
		c.Watch.Enabled = true
	}
	if other.Watch.Debounce != "" {
		c.Watch.Debounce = other.Watch.Debounce
	}

	// Server
	if other.Server.Transport != "" {
		c.Server.Transport = other.Server.Transport
	}
	if other.Server.LogLevel != "" {
		c.Server.LogLevel = other.Server.LogLevel
	}
}

// applyEnvOverrides applies environment variable overrides.
// PDF_DOCUMENTS_DIR and LOG_LEVEL are accepted alongside the PDFMCP_*
// names for compatibility with common deployment environments.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("PDF_DOCUMENTS_DIR"); v != "" {
		c.Corpus.DocumentsDir = v
	}
	if v := os.Getenv("PDFMCP_DOCUMENTS_DIR"); v != "" {
		c.Corpus.DocumentsDir = v
	}
	if v := os.Getenv("PDFMCP_INDEX_DIR"); v != "" {
		c.Corpus.IndexDir = v
	}
	if v := os.Getenv("PDFMCP_LAZY"); v != "" {
		c.Corpus.Lazy = isTruthy(v)
	}

	if v := os.Getenv("PDFMCP_LEXICAL_BACKEND"); v != "" {
		c.Lexical.Backend = v
	}

	if v := os.Getenv("PDFMCP_EMBEDDINGS_PROVIDER"); v != "" {
		c.Semantic.Provider = v
	}
	// PDFMCP_EMBEDDER is an alias for PDFMCP_EMBEDDINGS_PROVIDER
	if v := os.Getenv("PDFMCP_EMBEDDER"); v != "" {
		c.Semantic.Provider = v
	}
	if v := os.Getenv("PDFMCP_EMBEDDINGS_MODEL"); v != "" {
		c.Semantic.Model = v
	}
	if v := os.Getenv("PDFMCP_LOCAL_ENDPOINT"); v != "" {
		c.Semantic.BaseURL = v
		c.Answer.BaseURL = v
	}

	// Fusion weights support explicit zero values via env vars
	if v := os.Getenv("PDFMCP_LEXICAL_WEIGHT"); v != "" {
		if w, err := parseFloat64(v); err == nil && w >= 0 && w <= 1 {
			c.Fusion.LexicalWeight = w
		}
	}
	if v := os.Getenv("PDFMCP_SEMANTIC_WEIGHT"); v != "" {
		if w, err := parseFloat64(v); err == nil && w >= 0 && w <= 1 {
			c.Fusion.SemanticWeight = w
		}
	}

	if v := os.Getenv("PDFMCP_ANSWER_PROVIDER"); v != "" {
		c.Answer.Provider = v
	}
	if v := os.Getenv("PDFMCP_ANSWER_MODEL"); v != "" {
		c.Answer.Model = v
	}

	if v := os.Getenv("PDFMCP_QUERY_TIMEOUT"); v != "" {
		c.Query.Timeout = v
	}

	if v := os.Getenv("PDFMCP_WATCH"); v != "" {
		c.Watch.Enabled = isTruthy(v)
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
	if v := os.Getenv("PDFMCP_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
}

// isTruthy interprets common boolean environment values.
func isTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// parseFloat64 parses a string to float64, used for config parsing.
func parseFloat64(s string) (float64, error) {
	var f float64
	_, err := fmt.Sscanf(strings.TrimSpace(s), "%f", &f)
	return f, err
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.Corpus.DocumentsDir == "" {
		return fmt.Errorf("corpus.documents_dir is required (set PDF_DOCUMENTS_DIR or pdfmcp.yaml)")
	}
	if c.Corpus.Workers < 0 {
		return fmt.Errorf("corpus.workers must be non-negative, got %d", c.Corpus.Workers)
	}

	if c.Chunking.MaxChars <= 0 {
		return fmt.Errorf("chunking.max_chars must be positive, got %d", c.Chunking.MaxChars)
	}
	if c.Chunking.Overlap <= 0 || c.Chunking.Overlap >= c.Chunking.MaxChars {
		return fmt.Errorf("chunking.overlap must satisfy 0 < overlap < max_chars, got %d", c.Chunking.Overlap)
	}

	validBackends := map[string]bool{"memory": true, "bleve": true}
	if !validBackends[strings.ToLower(c.Lexical.Backend)] {
		return fmt.Errorf("lexical.backend must be 'memory' or 'bleve', got %s", c.Lexical.Backend)
	}
	if c.Lexical.K1 <= 0 {
		return fmt.Errorf("lexical.k1 must be positive, got %f", c.Lexical.K1)
	}
	if c.Lexical.B < 0 || c.Lexical.B > 1 {
		return fmt.Errorf("lexical.b must be between 0 and 1, got %f", c.Lexical.B)
	}

	if c.Semantic.Provider != "" { // Empty string triggers auto-detection
		validProviders := map[string]bool{"openai": true, "local": true, "static": true}
		if !validProviders[strings.ToLower(c.Semantic.Provider)] {
			return fmt.Errorf("semantic.provider must be 'openai', 'local', 'static', or empty (auto-detect), got %s", c.Semantic.Provider)
		}
	}
	if c.Semantic.BatchSize <= 0 {
		return fmt.Errorf("semantic.batch_size must be positive, got %d", c.Semantic.BatchSize)
	}

	if c.Fusion.LexicalWeight < 0 || c.Fusion.LexicalWeight > 1 {
		return fmt.Errorf("fusion.lexical_weight must be between 0 and 1, got %f", c.Fusion.LexicalWeight)
	}
	if c.Fusion.SemanticWeight < 0 || c.Fusion.SemanticWeight > 1 {
		return fmt.Errorf("fusion.semantic_weight must be between 0 and 1, got %f", c.Fusion.SemanticWeight)
	}
	sum := c.Fusion.LexicalWeight + c.Fusion.SemanticWeight
	if math.Abs(sum-1.0) > 0.01 {
		return fmt.Errorf("fusion.lexical_weight + fusion.semantic_weight must equal 1.0, got %.2f", sum)
	}
	if c.Fusion.OverfetchFactor < 1 {
		return fmt.Errorf("fusion.overfetch_factor must be at least 1, got %d", c.Fusion.OverfetchFactor)
	}

	if c.Answer.Provider != "" {
		validProviders := map[string]bool{"openai": true, "local": true}
		if !validProviders[strings.ToLower(c.Answer.Provider)] {
			return fmt.Errorf("answer.provider must be 'openai', 'local', or empty (disabled), got %s", c.Answer.Provider)
		}
	}

	if c.Query.MaxChunks < 1 {
		return fmt.Errorf("query.max_chunks must be at least 1, got %d", c.Query.MaxChunks)
	}
	if c.Query.DefaultChunks < 1 || c.Query.DefaultChunks > c.Query.MaxChunks {
		return fmt.Errorf("query.default_chunks must be between 1 and max_chunks, got %d", c.Query.DefaultChunks)
	}
	if _, err := time.ParseDuration(c.Query.Timeout); err != nil {
		return fmt.Errorf("query.timeout is not a valid duration: %q", c.Query.Timeout)
	}

	if c.Watch.Debounce != "" {
		if _, err := time.ParseDuration(c.Watch.Debounce); err != nil {
			return fmt.Errorf("watch.debounce is not a valid duration: %q", c.Watch.Debounce)
		}
	}

	if strings.ToLower(c.Server.Transport) != "stdio" {
		return fmt.Errorf("server.transport must be 'stdio', got %s", c.Server.Transport)
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Server.LogLevel)] {
		return fmt.Errorf("server.log_level must be 'debug', 'info', 'warn', or 'error', got %s", c.Server.LogLevel)
	}

	return nil
}

// QueryTimeout returns the parsed query timeout.
// Call after Validate; an unparseable value falls back to 30s.
func (c *Config) QueryTimeout() time.Duration {
	d, err := time.ParseDuration(c.Query.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// WatchDebounce returns the parsed watch debounce interval.
func (c *Config) WatchDebounce() time.Duration {
	d, err := time.ParseDuration(c.Watch.Debounce)
	if err != nil || d <= 0 {
		return 2 * time.Second
	}
	return d
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// fileExists checks if a file exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
