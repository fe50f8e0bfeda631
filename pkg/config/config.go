// Package config loads and validates the cortexd configuration from a YAML
// file with CORTEX_-prefixed environment overrides.
package config

import (
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/cortex-mentor/cortex/pkg/errors"
)

// Config represents the complete configuration for cortexd.
type Config struct {
	// LLM configuration
	LLM LLMConfig `yaml:"llm" validate:"required"`

	// Knowledge graph configuration
	Knowledge KnowledgeConfig `yaml:"knowledge" validate:"required"`

	// Vector store configuration
	Vector VectorConfig `yaml:"vector" validate:"required"`

	// Redis queue and broadcast configuration
	Redis RedisConfig `yaml:"redis,omitempty"`

	// HTTP server configuration
	Server ServerConfig `yaml:"server,omitempty"`

	// Speech synthesis configuration (optional; audio delivery is skipped
	// when no endpoint is configured)
	Speech SpeechConfig `yaml:"speech,omitempty"`

	// Web search configuration for the curation sub-pipeline
	Search SearchConfig `yaml:"search,omitempty"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging,omitempty"`
}

// LLMConfig holds configuration for the language model provider.
type LLMConfig struct {
	// Provider name (ollama or anthropic)
	Provider string `yaml:"provider" validate:"required,oneof=ollama anthropic"`

	// Model ID (e.g. llama3.1 or claude-3-haiku)
	ModelID string `yaml:"model_id" validate:"required"`

	// API key, for providers that need one
	APIKey string `yaml:"api_key,omitempty"`

	// Base URL for HTTP providers
	BaseURL string `yaml:"base_url,omitempty"`

	// Embedding model used by the private vector store
	EmbeddingModel string `yaml:"embedding_model,omitempty"`

	// Per-call timeout
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

// KnowledgeConfig locates the markdown knowledge graph on disk.
type KnowledgeConfig struct {
	// Root directory holding insights/ and repositories/
	Root string `yaml:"root" validate:"required"`
}

// VectorConfig holds configuration for both vector stores.
type VectorConfig struct {
	// Path of the private SQLite index
	PrivatePath string `yaml:"private_path" validate:"required"`

	// Base URL of the public REST store
	PublicURL string `yaml:"public_url,omitempty"`

	// Bearer token for the public store
	PublicToken string `yaml:"public_token,omitempty"`

	// Number of results per similarity query
	TopK int `yaml:"top_k,omitempty" validate:"omitempty,min=1"`
}

// RedisConfig holds queue and pub/sub settings.
type RedisConfig struct {
	Addr     string `yaml:"addr,omitempty"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`

	// Name of the task list consumed by the worker
	QueueKey string `yaml:"queue_key,omitempty"`

	// Pub/sub channel carrying delivery payloads
	Channel string `yaml:"channel,omitempty"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Addr string `yaml:"addr,omitempty"`
}

// SpeechConfig holds text-to-speech settings.
type SpeechConfig struct {
	Endpoint string `yaml:"endpoint,omitempty"`
	APIKey   string `yaml:"api_key,omitempty"`
	Voice    string `yaml:"voice,omitempty"`
}

// SearchConfig holds the web search endpoint used during curation.
type SearchConfig struct {
	Endpoint string `yaml:"endpoint,omitempty"`
}

// LoggingConfig controls log level and optional file output.
type LoggingConfig struct {
	Level string `yaml:"level,omitempty" validate:"omitempty,oneof=DEBUG INFO WARN ERROR FATAL"`
	File  string `yaml:"file,omitempty"`
}

// Default returns a configuration with working local defaults.
func Default() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:       "ollama",
			ModelID:        "llama3.1",
			BaseURL:        "http://localhost:11434",
			EmbeddingModel: "nomic-embed-text:v1.5",
			Timeout:        2 * time.Minute,
		},
		Knowledge: KnowledgeConfig{
			Root: "data/knowledge_graph",
		},
		Vector: VectorConfig{
			PrivatePath: "data/knowledge_graph/vector.db",
			TopK:        2,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			QueueKey: "cortex:jobs",
			Channel:  "insights_channel",
		},
		Server: ServerConfig{
			Addr: ":8000",
		},
		Speech: SpeechConfig{
			Voice: "en-US-Neural2-C",
		},
		Logging: LoggingConfig{
			Level: "INFO",
		},
	}
}

// Load reads the configuration file at path, applies environment overrides
// and validates the result. A missing file is not an error; defaults apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// Fall through to defaults.
		case err != nil:
			return nil, errors.Wrap(err, errors.InvalidInput, "failed to read config file")
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, errors.Wrap(err, errors.InvalidInput, "failed to parse config file")
			}
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration against its struct tags.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, errors.ValidationFailed, "invalid configuration")
	}
	return nil
}

// applyEnvOverrides maps CORTEX_* environment variables onto the config.
// Only the settings that differ between environments are overridable.
func applyEnvOverrides(cfg *Config) {
	overrides := map[string]*string{
		"CORTEX_LLM_PROVIDER":        &cfg.LLM.Provider,
		"CORTEX_LLM_MODEL_ID":        &cfg.LLM.ModelID,
		"CORTEX_LLM_API_KEY":         &cfg.LLM.APIKey,
		"CORTEX_LLM_BASE_URL":        &cfg.LLM.BaseURL,
		"CORTEX_KNOWLEDGE_ROOT":      &cfg.Knowledge.Root,
		"CORTEX_VECTOR_PRIVATE_PATH": &cfg.Vector.PrivatePath,
		"CORTEX_VECTOR_PUBLIC_URL":   &cfg.Vector.PublicURL,
		"CORTEX_VECTOR_PUBLIC_TOKEN": &cfg.Vector.PublicToken,
		"CORTEX_REDIS_ADDR":          &cfg.Redis.Addr,
		"CORTEX_REDIS_PASSWORD":      &cfg.Redis.Password,
		"CORTEX_SERVER_ADDR":         &cfg.Server.Addr,
		"CORTEX_SPEECH_ENDPOINT":     &cfg.Speech.Endpoint,
		"CORTEX_SPEECH_API_KEY":      &cfg.Speech.APIKey,
		"CORTEX_SEARCH_ENDPOINT":     &cfg.Search.Endpoint,
		"CORTEX_LOG_LEVEL":           &cfg.Logging.Level,
	}

	for key, target := range overrides {
		if val, ok := os.LookupEnv(key); ok && val != "" {
			*target = val
		}
	}
}
