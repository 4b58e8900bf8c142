package embed

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func unsetAPIKey(t *testing.T) {
	t.Helper()
	t.Setenv("OPENAI_API_KEY", "")
	_ = os.Unsetenv("OPENAI_API_KEY")
}

func TestParseProvider(t *testing.T) {
	unsetAPIKey(t)

	tests := []struct {
		input string
		want  ProviderType
	}{
		{"openai", ProviderOpenAI},
		{"OpenAI", ProviderOpenAI},
		{"local", ProviderLocal},
		{"ollama", ProviderLocal},
		{"static", ProviderStatic},
		{"none", ProviderStatic},
		{"", ProviderStatic}, // no API key in the environment
		{"  static  ", ProviderStatic},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseProvider(tt.input), "input %q", tt.input)
	}
}

func TestParseProvider_AutoDetectsOpenAI(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	assert.Equal(t, ProviderOpenAI, ParseProvider(""))
}

func TestNew_StaticProvider(t *testing.T) {
	e, err := New(context.Background(), Config{Provider: "static", CacheSize: 10})
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	cached, ok := e.(*CachedEmbedder)
	require.True(t, ok, "cache should wrap the embedder")
	_, ok = cached.Inner().(*StaticEmbedder)
	assert.True(t, ok)
	assert.Equal(t, StaticDimensions, e.Dimensions())
}

func TestNew_CacheDisabled(t *testing.T) {
	e, err := New(context.Background(), Config{Provider: "static", CacheSize: 0})
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	_, ok := e.(*StaticEmbedder)
	assert.True(t, ok, "CacheSize 0 should skip the cache wrapper")
}

func TestNew_OpenAIProvider(t *testing.T) {
	e, err := New(context.Background(), Config{
		Provider:  "openai",
		Model:     "text-embedding-3-small",
		CacheSize: 5,
	})
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	assert.Equal(t, "text-embedding-3-small", e.ModelName())
	assert.Equal(t, 1536, e.Dimensions())
}

func TestNew_LocalProvider(t *testing.T) {
	e, err := New(context.Background(), Config{
		Provider:   "local",
		Model:      "nomic-embed-text",
		BaseURL:    "http://localhost:11434/v1",
		Dimensions: 768,
		CacheSize:  5,
	})
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	assert.Equal(t, "nomic-embed-text", e.ModelName())
	assert.Equal(t, 768, e.Dimensions())
}

func TestNew_UnknownProviderErrors(t *testing.T) {
	_, err := New(context.Background(), Config{Provider: "quantum"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quantum")
}

func TestNew_AutoDetectWithoutKeyUsesStatic(t *testing.T) {
	unsetAPIKey(t)

	e, err := New(context.Background(), Config{CacheSize: 0})
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	_, ok := e.(*StaticEmbedder)
	assert.True(t, ok)
}

func TestIsValidProvider(t *testing.T) {
	unsetAPIKey(t)

	assert.True(t, IsValidProvider("openai"))
	assert.True(t, IsValidProvider("local"))
	assert.True(t, IsValidProvider("static"))
	assert.True(t, IsValidProvider(""))
	assert.False(t, IsValidProvider("quantum"))
}

func TestGetInfo(t *testing.T) {
	e, err := New(context.Background(), Config{Provider: "static", CacheSize: 4})
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	info := GetInfo(context.Background(), e)
	assert.Equal(t, ProviderStatic, info.Provider)
	assert.Equal(t, "static", info.Model)
	assert.Equal(t, StaticDimensions, info.Dimensions)
	assert.True(t, info.Available)
}
