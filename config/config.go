// Package config loads runtime configuration from the environment, optionally
// layered with a YAML file.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Embedding providers.
const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

// Vector store backends.
const (
	BackendWeaviate = "weaviate"
	BackendPgvector = "pgvector"
	BackendNeo4j    = "neo4j"
	BackendMemory   = "memory"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Store      StoreConfig      `yaml:"store"`
	Embeddings EmbeddingsConfig `yaml:"embeddings"`
	Chunking   ChunkingConfig   `yaml:"chunking"`

	OllamaHost    string `yaml:"ollama_host"`
	OpenAIAPIKey  string `yaml:"openai_api_key"`
	OpenAIBaseURL string `yaml:"openai_base_url"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type StoreConfig struct {
	Backend string `yaml:"backend"`

	WeaviateURL    string `yaml:"weaviate_url"`
	WeaviateAPIKey string `yaml:"weaviate_api_key"`
	WeaviateClass  string `yaml:"weaviate_class"`

	PostgresDSN string `yaml:"postgres_dsn"`

	Neo4jURI  string `yaml:"neo4j_uri"`
	Neo4jUser string `yaml:"neo4j_username"`
	Neo4jPass string `yaml:"neo4j_password"`
}

type EmbeddingsConfig struct {
	Provider  string `yaml:"provider"`
	Model     string `yaml:"model"`
	Dimension int    `yaml:"dimension"`
}

type ChunkingConfig struct {
	Size    int `yaml:"size"`
	Overlap int `yaml:"overlap"`
}

// Load builds a Config from environment variables, falling back to defaults
// suitable for local development.
func Load() Config {
	return Config{
		Server: ServerConfig{
			Addr: getEnv("SERVER_ADDR", ":8000"),
		},
		Store: StoreConfig{
			Backend:        getEnv("STORE_BACKEND", BackendWeaviate),
			WeaviateURL:    getEnv("WEAVIATE_URL", "http://localhost:8080"),
			WeaviateAPIKey: getEnv("WEAVIATE_API_KEY", ""),
			WeaviateClass:  getEnv("WEAVIATE_CLASS", "DocumentChunk"),
			PostgresDSN:    getEnv("POSTGRES_DSN", "postgres://localhost:5432/docrag?sslmode=disable"),
			Neo4jURI:       getEnv("NEO4J_URI", "neo4j://localhost:7687"),
			Neo4jUser:      getEnv("NEO4J_USERNAME", "neo4j"),
			Neo4jPass:      getEnv("NEO4J_PASSWORD", "password"),
		},
		Embeddings: EmbeddingsConfig{
			Provider:  getEnv("EMBEDDINGS_PROVIDER", ProviderOpenAI),
			Model:     getEnv("EMBEDDINGS_MODEL", "text-embedding-3-small"),
			Dimension: getEnvInt("EMBEDDINGS_DIMENSION", 1536),
		},
		Chunking: ChunkingConfig{
			Size:    getEnvInt("CHUNK_SIZE", 500),
			Overlap: getEnvInt("CHUNK_OVERLAP", 150),
		},
		OllamaHost:    getEnv("OLLAMA_HOST", "http://localhost:11434"),
		OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL: getEnv("OPENAI_BASE_URL", ""),
	}
}

// LoadFile returns the environment configuration overlaid with values from the
// YAML file at path. Fields present in the file take precedence.
func LoadFile(path string) (Config, error) {
	cfg := Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
