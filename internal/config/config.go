// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level" validate:"oneof=trace debug info warn error"`
	Format   string `yaml:"format" validate:"oneof=json console"`
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type AdminConfig struct {
	Port      int    `yaml:"port" validate:"gte=0,lte=65535"`
	JWTSecret string `yaml:"jwt_secret"`
}

type DatabaseConfig struct {
	URL      string `yaml:"url" validate:"required_unless=Dev true"`
	MaxConns int32  `yaml:"max_conns"`
	Dev      bool   `yaml:"-"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"` // settings cache TTL
}

type AIConfig struct {
	Provider           string        `yaml:"provider" validate:"oneof=openai gemini noop"`
	OpenAIKey          string        `yaml:"openai_key"`
	OpenAIBaseURL      string        `yaml:"openai_base_url"`
	GeminiKey          string        `yaml:"gemini_key"`
	GeminiURL          string        `yaml:"gemini_url"`
	ClassifierModel    string        `yaml:"classifier_model"`
	DetectorModel      string        `yaml:"detector_model"`
	TranscriptionModel string        `yaml:"transcription_model"`
	MaxPromptTokens    int           `yaml:"max_prompt_tokens"`
	Timeout            time.Duration `yaml:"timeout"`
	RatePerSecond      float64       `yaml:"rate_per_second"`
	Burst              int           `yaml:"burst"`
}

type CalendarConfig struct {
	Provider         string        `yaml:"provider" validate:"oneof=google noop"`
	ClientID         string        `yaml:"client_id"`
	ClientSecret     string        `yaml:"client_secret"`
	Timeout          time.Duration `yaml:"timeout"`
	PerUserPerMinute int           `yaml:"per_user_per_minute"`
}

type StageConfig struct {
	Concurrency int `yaml:"concurrency" validate:"gte=1,lte=64"`
}

type PipelineConfig struct {
	Transcribe          StageConfig   `yaml:"transcribe"`
	Enrich              StageConfig   `yaml:"enrich"`
	Calendar            StageConfig   `yaml:"calendar"`
	MaxAttempts         int           `yaml:"max_attempts" validate:"gte=1,lte=20"`
	BackoffBase         time.Duration `yaml:"backoff_base"`
	BackoffMax          time.Duration `yaml:"backoff_max"`
	PollInterval        time.Duration `yaml:"poll_interval" validate:"gt=0"`
	StaleClaimTimeout   time.Duration `yaml:"stale_claim_timeout" validate:"gt=0"`
	ReapInterval        time.Duration `yaml:"reap_interval"`
	SampleInterval      time.Duration `yaml:"sample_interval"`
	EventConfidence     float64       `yaml:"event_confidence" validate:"gte=0,lte=1"`
	RecentContextSize   int           `yaml:"recent_context_size" validate:"gte=0,lte=50"`
	ShutdownGracePeriod time.Duration `yaml:"shutdown_grace_period"`
}

type NotificationsConfig struct {
	TelegramToken string `yaml:"telegram_token"`
	ChannelPrefix string `yaml:"channel_prefix"`
}

type SecurityConfig struct {
	EncryptionKey string `yaml:"encryption_key" validate:"omitempty,len=32"`
}

type Config struct {
	Log           LogConfig           `yaml:"log"`
	Admin         AdminConfig         `yaml:"admin"`
	Database      DatabaseConfig      `yaml:"database"`
	Redis         RedisConfig         `yaml:"redis"`
	AI            AIConfig            `yaml:"ai"`
	Calendar      CalendarConfig      `yaml:"calendar"`
	Pipeline      PipelineConfig      `yaml:"pipeline"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Security      SecurityConfig      `yaml:"security"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads the YAML file at path, applies defaults and validates the result.
// In dev mode a missing file is allowed and every external dependency becomes optional.
func LoadConfig(path string, dev bool) (*Config, error) {
	var cfg Config
	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	case dev && os.IsNotExist(err):
		// run on defaults
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg.Runtime.Dev = dev
	cfg.Database.Dev = dev
	ApplyDefaults(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func ApplyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Admin.Port == 0 {
		cfg.Admin.Port = 8080
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	cfg.Redis.TTL = normalizeTTL(cfg.Redis.TTL)

	if cfg.AI.Provider == "" {
		cfg.AI.Provider = "openai"
		if cfg.Runtime.Dev {
			cfg.AI.Provider = "noop"
		}
	}
	if cfg.AI.ClassifierModel == "" {
		cfg.AI.ClassifierModel = "gpt-4o-mini"
	}
	if cfg.AI.DetectorModel == "" {
		cfg.AI.DetectorModel = cfg.AI.ClassifierModel
	}
	if cfg.AI.TranscriptionModel == "" {
		cfg.AI.TranscriptionModel = "whisper-1"
	}
	if cfg.AI.MaxPromptTokens <= 0 {
		cfg.AI.MaxPromptTokens = 2000
	}
	if cfg.AI.Timeout <= 0 {
		cfg.AI.Timeout = 30 * time.Second
	}
	if cfg.AI.RatePerSecond <= 0 {
		cfg.AI.RatePerSecond = 5
	}
	if cfg.AI.Burst <= 0 {
		cfg.AI.Burst = 5
	}

	if cfg.Calendar.Provider == "" {
		cfg.Calendar.Provider = "google"
		if cfg.Runtime.Dev {
			cfg.Calendar.Provider = "noop"
		}
	}
	if cfg.Calendar.Timeout <= 0 {
		cfg.Calendar.Timeout = 15 * time.Second
	}
	if cfg.Calendar.PerUserPerMinute <= 0 {
		cfg.Calendar.PerUserPerMinute = 10
	}

	p := &cfg.Pipeline
	if p.Transcribe.Concurrency <= 0 {
		p.Transcribe.Concurrency = 2
	}
	if p.Enrich.Concurrency <= 0 {
		p.Enrich.Concurrency = 3
	}
	if p.Calendar.Concurrency <= 0 {
		p.Calendar.Concurrency = 1
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.BackoffBase < 0 { // negative disables backoff
		p.BackoffBase = 0
	} else if p.BackoffBase == 0 {
		p.BackoffBase = 5 * time.Second
	}
	if p.BackoffMax <= 0 {
		p.BackoffMax = 5 * time.Minute
	}
	if p.PollInterval <= 0 {
		p.PollInterval = time.Second
	}
	if p.StaleClaimTimeout <= 0 {
		p.StaleClaimTimeout = 10 * time.Minute
	}
	if p.ReapInterval <= 0 {
		p.ReapInterval = time.Minute
	}
	if p.SampleInterval <= 0 {
		p.SampleInterval = 15 * time.Second
	}
	if p.EventConfidence == 0 {
		p.EventConfidence = 0.7
	}
	if p.RecentContextSize == 0 {
		p.RecentContextSize = 5
	}
	if p.ShutdownGracePeriod <= 0 {
		p.ShutdownGracePeriod = time.Minute
	}

	if cfg.Notifications.ChannelPrefix == "" {
		cfg.Notifications.ChannelPrefix = "thoughts:events:"
	}
}

var validate = validator.New()

// Validate checks struct tags plus the cross-field rules tags cannot express.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if cfg.Runtime.Dev {
		return nil
	}
	switch cfg.AI.Provider {
	case "openai":
		if cfg.AI.OpenAIKey == "" {
			return errors.New("invalid config: ai.openai_key is required for provider openai")
		}
	case "gemini":
		if cfg.AI.GeminiKey == "" {
			return errors.New("invalid config: ai.gemini_key is required for provider gemini")
		}
		// transcription still goes through OpenAI
		if cfg.AI.OpenAIKey == "" {
			return errors.New("invalid config: ai.openai_key is required for transcription")
		}
	}
	if cfg.Calendar.Provider == "google" && (cfg.Calendar.ClientID == "" || cfg.Calendar.ClientSecret == "") {
		return errors.New("invalid config: calendar.client_id and calendar.client_secret are required")
	}
	if cfg.Calendar.Provider == "google" && cfg.Security.EncryptionKey == "" {
		return errors.New("invalid config: security.encryption_key is required to read calendar credentials")
	}
	if cfg.Redis.URL == "" {
		return errors.New("invalid config: redis.url is required")
	}
	return nil
}

func normalizeTTL(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Hour
	}
	return d
}
