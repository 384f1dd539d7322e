package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
)

// Config is the process-wide configuration
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	LLM        LLMConfig        `mapstructure:"llm"`
	Moderation ModerationConfig `mapstructure:"moderation"`
	Retry      RetryConfig      `mapstructure:"retry"`
	Memory     MemoryConfig     `mapstructure:"memory"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Incidents  IncidentsConfig  `mapstructure:"incidents"`
	Assistants AssistantsConfig `mapstructure:"assistants"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	UseCases   UseCasesConfig   `mapstructure:"usecases"`
}

type ServerConfig struct {
	Host        string        `mapstructure:"host"`
	Port        int           `mapstructure:"port"`
	BodyLimitMB int           `mapstructure:"body_limit_mb"`
	AppKey      string        `mapstructure:"app_key"`
	SessionTTL  time.Duration `mapstructure:"session_ttl"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

type ProviderConfig struct {
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
	BaseURL string `mapstructure:"base_url"`
}

type OpenAIConfig struct {
	ProviderConfig `mapstructure:",squash"`
	EmbeddingModel string `mapstructure:"embedding_model"`
}

type VertexConfig struct {
	ProjectID       string `mapstructure:"project_id"`
	Location        string `mapstructure:"location"`
	Model           string `mapstructure:"model"`
	CredentialsFile string `mapstructure:"credentials_file"`
}

type LLMConfig struct {
	OpenAI    OpenAIConfig   `mapstructure:"openai"`
	Groq      ProviderConfig `mapstructure:"groq"`
	Anthropic ProviderConfig `mapstructure:"anthropic"`
	Gemini    ProviderConfig `mapstructure:"gemini"`
	Vertex    VertexConfig   `mapstructure:"vertex"`
}

type ModerationConfig struct {
	URL           string        `mapstructure:"url"`
	Model         string        `mapstructure:"model"`
	Timeout       time.Duration `mapstructure:"timeout"`
	Threshold     float64       `mapstructure:"threshold"`
	AllowedTopics []string      `mapstructure:"allowed_topics"`
}

type RetryConfig struct {
	MaxAttempts        int32         `mapstructure:"max_attempts"`
	InitialInterval    time.Duration `mapstructure:"initial_interval"`
	MaxInterval        time.Duration `mapstructure:"max_interval"`
	BackoffCoefficient float64       `mapstructure:"backoff_coefficient"`
}

type MemoryConfig struct {
	// Backend is "buffer" or "redis"
	Backend     string        `mapstructure:"backend"`
	MaxMessages int           `mapstructure:"max_messages"`
	TTL         time.Duration `mapstructure:"ttl"`
}

type RedisConfig struct {
	URL      string `mapstructure:"url"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
}

// Enabled reports whether a Postgres host is configured
func (d DatabaseConfig) Enabled() bool {
	return d.Host != ""
}

// DSN returns a lib/pq connection string
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode)
}

type IncidentsConfig struct {
	URL                string        `mapstructure:"url"`
	Timeout            time.Duration `mapstructure:"timeout"`
	BreakerMaxFailures uint32        `mapstructure:"breaker_max_failures"`
	BreakerTimeout     time.Duration `mapstructure:"breaker_timeout"`
}

type AssistantsConfig struct {
	AssistantID  string        `mapstructure:"assistant_id"`
	BaseURL      string        `mapstructure:"base_url"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

type OTelConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	ServiceName       string `mapstructure:"service_name"`
	CollectorEndpoint string `mapstructure:"collector_endpoint"`
}

type LangfuseConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	SecretKey   string `mapstructure:"secret_key"`
	PublicKey   string `mapstructure:"public_key"`
	Host        string `mapstructure:"host"`
	Environment string `mapstructure:"environment"`
}

type TracingConfig struct {
	OTel     OTelConfig     `mapstructure:"otel"`
	Langfuse LangfuseConfig `mapstructure:"langfuse"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

type UseCasesConfig struct {
	// CatalogFile replaces the embedded catalog when set
	CatalogFile string `mapstructure:"catalog_file"`
}

var (
	mu           sync.RWMutex
	globalConfig *Config
)

// well-known provider variables accepted next to the LLM_* ones
var envAliases = map[string][]string{
	"llm.openai.api_key":      {"OPENAI_API_KEY"},
	"llm.groq.api_key":        {"GROQ_API_KEY"},
	"llm.anthropic.api_key":   {"ANTHROPIC_API_KEY"},
	"llm.gemini.api_key":      {"GEMINI_API_KEY"},
	"llm.vertex.project_id":   {"GOOGLE_CLOUD_PROJECT"},
	"server.app_key":          {"APP_KEY"},
	"assistants.assistant_id": {"ASSISTANT_ID", "CALTRANS_PERSONAL_NARRATIVE_INSIGHTS_ASSISTANT_ID"},
}

// Load reads config.yaml from configPath, ./config or the working directory.
// A missing file leaves defaults and environment variables in effect.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaultValues(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath("./config")
	v.AddConfigPath(".")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, aliases := range envAliases {
		names := append([]string{key, strings.ToUpper(strings.ReplaceAll(key, ".", "_"))}, aliases...)
		if err := v.BindEnv(names...); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	mu.Lock()
	globalConfig = cfg
	mu.Unlock()

	return cfg, nil
}

// Get returns the loaded config, loading defaults on first use
func Get() *Config {
	mu.RLock()
	cfg := globalConfig
	mu.RUnlock()
	if cfg != nil {
		return cfg
	}

	cfg, err := Load("")
	if err != nil {
		v := viper.New()
		setDefaultValues(v)
		cfg = &Config{}
		_ = v.Unmarshal(cfg)
	}
	return cfg
}

func setDefaultValues(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.body_limit_mb", 20)
	v.SetDefault("server.app_key", "")
	v.SetDefault("server.session_ttl", 180*time.Second)

	v.SetDefault("logging.level", "info")

	v.SetDefault("llm.openai.api_key", "")
	v.SetDefault("llm.openai.model", "gpt-4o")
	v.SetDefault("llm.openai.base_url", "")
	v.SetDefault("llm.openai.embedding_model", "text-embedding-3-small")
	v.SetDefault("llm.groq.api_key", "")
	v.SetDefault("llm.groq.model", "llama-3.1-8b-instant")
	v.SetDefault("llm.groq.base_url", "https://api.groq.com/openai/v1")
	v.SetDefault("llm.anthropic.api_key", "")
	v.SetDefault("llm.anthropic.model", "claude-3-7-sonnet-latest")
	v.SetDefault("llm.anthropic.base_url", "")
	v.SetDefault("llm.gemini.api_key", "")
	v.SetDefault("llm.gemini.model", "gemini-2.0-flash")
	v.SetDefault("llm.gemini.base_url", "")
	v.SetDefault("llm.vertex.project_id", "")
	v.SetDefault("llm.vertex.location", "us-central1")
	v.SetDefault("llm.vertex.model", "gemini-1.5-pro")
	v.SetDefault("llm.vertex.credentials_file", "")

	v.SetDefault("moderation.url", "https://api.openai.com/v1/moderations")
	v.SetDefault("moderation.model", "omni-moderation-latest")
	v.SetDefault("moderation.timeout", 3*time.Second)
	v.SetDefault("moderation.threshold", 0.7)
	v.SetDefault("moderation.allowed_topics", []string{})

	v.SetDefault("retry.max_attempts", 5)
	v.SetDefault("retry.initial_interval", 2*time.Second)
	v.SetDefault("retry.max_interval", 60*time.Second)
	v.SetDefault("retry.backoff_coefficient", 2.0)

	v.SetDefault("memory.backend", "buffer")
	v.SetDefault("memory.max_messages", 100)
	v.SetDefault("memory.ttl", 24*time.Hour)

	v.SetDefault("redis.url", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("database.host", "")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "llmatscale")
	v.SetDefault("database.sslmode", "disable")

	v.SetDefault("incidents.url", "https://roads.dot.ca.gov/")
	v.SetDefault("incidents.timeout", 10*time.Second)
	v.SetDefault("incidents.breaker_max_failures", 3)
	v.SetDefault("incidents.breaker_timeout", 30*time.Second)

	v.SetDefault("assistants.assistant_id", "")
	v.SetDefault("assistants.base_url", "https://api.openai.com/v1")
	v.SetDefault("assistants.poll_interval", 500*time.Millisecond)

	v.SetDefault("tracing.otel.enabled", false)
	v.SetDefault("tracing.otel.service_name", "llmatscale")
	v.SetDefault("tracing.otel.collector_endpoint", "localhost:4317")
	v.SetDefault("tracing.langfuse.enabled", false)
	v.SetDefault("tracing.langfuse.secret_key", "")
	v.SetDefault("tracing.langfuse.public_key", "")
	v.SetDefault("tracing.langfuse.host", "")
	v.SetDefault("tracing.langfuse.environment", "development")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)

	v.SetDefault("usecases.catalog_file", "")
}
