package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/clinica-duran/eva/internal/store"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Bird       BirdConfig       `yaml:"bird" mapstructure:"bird"`
	WhatsApp   WhatsAppConfig   `yaml:"whatsapp" mapstructure:"whatsapp"`
	Groq       GroqConfig       `yaml:"groq" mapstructure:"groq"`
	OpenAI     OpenAIConfig     `yaml:"openai" mapstructure:"openai"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Budget     BudgetConfig     `yaml:"budget" mapstructure:"budget"`
	Extract    ExtractConfig    `yaml:"extract" mapstructure:"extract"`
	Normalize  NormalizeConfig  `yaml:"normalize" mapstructure:"normalize"`
	Guardrails GuardrailsConfig `yaml:"guardrails" mapstructure:"guardrails"`
	Dedup      DedupConfig      `yaml:"dedup" mapstructure:"dedup"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string           `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string           `yaml:"database_url" mapstructure:"database_url"`
	Pool        store.PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// BirdConfig holds Bird CRM credentials.
type BirdConfig struct {
	AccessKey   string `yaml:"access_key" mapstructure:"access_key"`
	WorkspaceID string `yaml:"workspace_id" mapstructure:"workspace_id"`
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
}

// WhatsAppConfig holds WhatsApp Cloud API credentials and webhook secrets.
type WhatsAppConfig struct {
	AccessToken   string `yaml:"access_token" mapstructure:"access_token"`
	PhoneNumberID string `yaml:"phone_number_id" mapstructure:"phone_number_id"`
	VerifyToken   string `yaml:"verify_token" mapstructure:"verify_token"`
	AppSecret     string `yaml:"app_secret" mapstructure:"app_secret"`
	BaseURL       string `yaml:"base_url" mapstructure:"base_url"`
}

// GroqConfig holds Groq API settings for primary transcription and
// transcript post-processing.
type GroqConfig struct {
	Key          string `yaml:"key" mapstructure:"key"`
	BaseURL      string `yaml:"base_url" mapstructure:"base_url"`
	WhisperModel string `yaml:"whisper_model" mapstructure:"whisper_model"`
	ChatModel    string `yaml:"chat_model" mapstructure:"chat_model"`
}

// OpenAIConfig holds OpenAI API settings for fallback transcription.
type OpenAIConfig struct {
	Key          string `yaml:"key" mapstructure:"key"`
	BaseURL      string `yaml:"base_url" mapstructure:"base_url"`
	WhisperModel string `yaml:"whisper_model" mapstructure:"whisper_model"`
}

// AnthropicConfig holds Anthropic API settings for reply generation and
// AI name extraction.
type AnthropicConfig struct {
	Key         string `yaml:"key" mapstructure:"key"`
	HaikuModel  string `yaml:"haiku_model" mapstructure:"haiku_model"`
	SonnetModel string `yaml:"sonnet_model" mapstructure:"sonnet_model"`
}

// BudgetConfig configures the per-event processing deadline.
type BudgetConfig struct {
	TotalAllowanceMS int `yaml:"total_allowance_ms" mapstructure:"total_allowance_ms"`
	SafetyBufferMS   int `yaml:"safety_buffer_ms" mapstructure:"safety_buffer_ms"`
}

// Allowance returns the total allowance as a duration.
func (c BudgetConfig) Allowance() time.Duration {
	return time.Duration(c.TotalAllowanceMS) * time.Millisecond
}

// Buffer returns the safety buffer as a duration.
func (c BudgetConfig) Buffer() time.Duration {
	return time.Duration(c.SafetyBufferMS) * time.Millisecond
}

// ExtractConfig configures name extraction thresholds.
type ExtractConfig struct {
	AcceptThreshold float64 `yaml:"accept_threshold" mapstructure:"accept_threshold"`
	ReviewThreshold float64 `yaml:"review_threshold" mapstructure:"review_threshold"`
	ApplyThreshold  float64 `yaml:"apply_threshold" mapstructure:"apply_threshold"`
	MaxMessages     int     `yaml:"max_messages" mapstructure:"max_messages"`
}

// NormalizeConfig configures the batch contact normalization job.
type NormalizeConfig struct {
	MaxConcurrentContacts int `yaml:"max_concurrent_contacts" mapstructure:"max_concurrent_contacts"`
	BatchBudgetMins       int `yaml:"batch_budget_mins" mapstructure:"batch_budget_mins"`
	ContactBudgetSecs     int `yaml:"contact_budget_secs" mapstructure:"contact_budget_secs"`
	PageSize              int `yaml:"page_size" mapstructure:"page_size"`
}

// GuardrailsConfig configures reply safety scanning.
type GuardrailsConfig struct {
	RulesPath string `yaml:"rules_path" mapstructure:"rules_path"`
}

// DedupConfig configures webhook delivery deduplication.
type DedupConfig struct {
	TTLSecs int `yaml:"ttl_secs" mapstructure:"ttl_secs"`
}

// ServerConfig configures the webhook server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("EVA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("bird.base_url", "https://api.bird.com")
	v.SetDefault("whatsapp.base_url", "https://graph.facebook.com/v21.0")
	v.SetDefault("groq.base_url", "https://api.groq.com/openai/v1")
	v.SetDefault("groq.whisper_model", "whisper-large-v3")
	v.SetDefault("groq.chat_model", "llama-3.3-70b-versatile")
	v.SetDefault("openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("openai.whisper_model", "whisper-1")
	v.SetDefault("anthropic.haiku_model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.sonnet_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("budget.total_allowance_ms", 8500)
	v.SetDefault("budget.safety_buffer_ms", 500)
	v.SetDefault("extract.accept_threshold", 0.85)
	v.SetDefault("extract.review_threshold", 0.40)
	v.SetDefault("extract.apply_threshold", 0.60)
	v.SetDefault("extract.max_messages", 10)
	v.SetDefault("normalize.max_concurrent_contacts", 5)
	v.SetDefault("normalize.batch_budget_mins", 9)
	v.SetDefault("normalize.contact_budget_secs", 25)
	v.SetDefault("normalize.page_size", 100)
	v.SetDefault("dedup.ttl_secs", 60)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
