package embed

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// ProviderType represents an embedding provider
type ProviderType string

const (
	// ProviderOpenAI uses the OpenAI embeddings API (default when
	// OPENAI_API_KEY is set)
	ProviderOpenAI ProviderType = "openai"

	// ProviderLocal uses an OpenAI-compatible local endpoint such as
	// Ollama
	ProviderLocal ProviderType = "local"

	// ProviderStatic uses hash-based embeddings (works offline, lexical
	// search carries most of the ranking quality)
	ProviderStatic ProviderType = "static"
)

// Config selects and tunes an embedding provider.
type Config struct {
	Provider   string // "openai", "local", "static", or "" for auto-detection
	Model      string // Provider-specific model name
	BaseURL    string // Endpoint for the local provider
	Dimensions int    // Override dimension auto-detection
	BatchSize  int    // Texts per provider request
	CacheSize  int    // LRU entries; 0 disables the cache
}

// New creates an embedder from configuration. With no provider
// configured it picks OpenAI when an API key is present and falls back
// to the static embedder otherwise, so indexing always works offline.
// No provider is contacted here; the first embedding request is where
// connectivity problems surface.
func New(_ context.Context, cfg Config) (Embedder, error) {
	provider := ParseProvider(cfg.Provider)

	var embedder Embedder
	switch provider {
	case ProviderOpenAI:
		embedder = NewOpenAIEmbedder(OpenAIConfig{
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			BatchSize:  cfg.BatchSize,
		})

	case ProviderLocal:
		local, err := NewLocalEmbedder(LocalConfig{
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			BatchSize:  cfg.BatchSize,
		})
		if err != nil {
			return nil, err
		}
		embedder = local

	case ProviderStatic:
		embedder = NewStaticEmbedder()

	default:
		return nil, fmt.Errorf("unknown embedding provider %q (valid: %s)",
			cfg.Provider, strings.Join(ValidProviders(), ", "))
	}

	if cfg.CacheSize != 0 {
		embedder = NewCachedEmbedder(embedder, cfg.CacheSize)
	}

	return embedder, nil
}

// ParseProvider converts a string to ProviderType. The empty string
// auto-detects: OpenAI with an API key, static without.
func ParseProvider(s string) ProviderType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "openai":
		return ProviderOpenAI
	case "local", "ollama":
		// "ollama" accepted as an alias since that is what most users run
		return ProviderLocal
	case "static", "none":
		return ProviderStatic
	case "":
		if os.Getenv("OPENAI_API_KEY") != "" {
			return ProviderOpenAI
		}
		return ProviderStatic
	default:
		return ProviderType(s)
	}
}

// String returns the string representation of ProviderType
func (p ProviderType) String() string {
	return string(p)
}

// ValidProviders returns all valid provider names
func ValidProviders() []string {
	return []string{
		string(ProviderOpenAI),
		string(ProviderLocal),
		string(ProviderStatic),
	}
}

// IsValidProvider checks if a provider name is valid
func IsValidProvider(s string) bool {
	switch ParseProvider(s) {
	case ProviderOpenAI, ProviderLocal, ProviderStatic:
		return true
	}
	return false
}

// Info describes a constructed embedder.
type Info struct {
	Provider   ProviderType
	Model      string
	Dimensions int
	Available  bool
}

// GetInfo returns information about an embedder.
func GetInfo(ctx context.Context, embedder Embedder) Info {
	info := Info{
		Model:      embedder.ModelName(),
		Dimensions: embedder.Dimensions(),
		Available:  embedder.Available(ctx),
	}

	inner := embedder
	if cached, ok := embedder.(*CachedEmbedder); ok {
		inner = cached.Inner()
	}

	switch inner.(type) {
	case *OpenAIEmbedder:
		info.Provider = ProviderOpenAI
	case *LocalEmbedder:
		info.Provider = ProviderLocal
	default:
		info.Provider = ProviderStatic
	}

	return info
}
