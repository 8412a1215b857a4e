package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Config holds the environment driven configuration for the chat stream service.
type Config struct {
	ServiceName      string        `env:"SERVICE_NAME" envDefault:"chat-stream-api"`
	ServiceNamespace string        `env:"SERVICE_NAMESPACE" envDefault:"jan"`
	Environment      string        `env:"ENVIRONMENT" envDefault:"development"`
	HTTPPort         int           `env:"HTTP_PORT" envDefault:"8080"`
	LogLevel         string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat        string        `env:"LOG_FORMAT" envDefault:"json"`
	ShutdownTimeout  time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`

	OTELEnabled  bool   `env:"OTEL_ENABLED" envDefault:"false"`
	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:""`
	OTLPHeaders  string `env:"OTEL_EXPORTER_OTLP_HEADERS" envDefault:""`

	StorageBackend string        `env:"STORAGE_BACKEND" envDefault:"postgres"`
	DatabaseURL    string        `env:"DB_POSTGRESQL_WRITE_DSN"`
	DBMaxIdleConns int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	DBMaxOpenConns int           `env:"DB_MAX_OPEN_CONNS" envDefault:"15"`
	DBConnLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"30m"`
	AutoMigrate    bool          `env:"AUTO_MIGRATE" envDefault:"true"`

	InferenceBaseURL        string        `env:"INFERENCE_BASE_URL"`
	InferenceAPIKey         string        `env:"INFERENCE_API_KEY"`
	InferenceModel          string        `env:"INFERENCE_MODEL"`
	InferenceConnectTimeout time.Duration `env:"INFERENCE_CONNECT_TIMEOUT" envDefault:"10s"`
	InferenceReadTimeout    time.Duration `env:"INFERENCE_READ_TIMEOUT" envDefault:"120s"`

	TokenCeiling      int      `env:"TOKEN_CEILING" envDefault:"22800"`
	TokenSafetyBuffer int      `env:"TOKEN_SAFETY_BUFFER" envDefault:"100"`
	MinResponseTokens int      `env:"MIN_RESPONSE_TOKENS" envDefault:"500"`
	CharsPerToken     float64  `env:"CHARS_PER_TOKEN" envDefault:"4.0"`
	HistoryMaxTurns   int      `env:"HISTORY_MAX_TURNS" envDefault:"10"`
	MessageMaxLength  int      `env:"MESSAGE_MAX_LENGTH" envDefault:"8000"`
	StopSequences     []string `env:"STOP_SEQUENCES" envSeparator:"," envDefault:"\nUser:"`

	StreamKeepAliveInterval time.Duration `env:"STREAM_KEEPALIVE_INTERVAL" envDefault:"15s"`
	SessionSweepMinutes     int           `env:"SESSION_SWEEP_INTERVAL_MINUTES" envDefault:"1"`
	SessionPendingTTL       time.Duration `env:"SESSION_PENDING_TTL" envDefault:"5m"`
	PersistTimeout          time.Duration `env:"PERSIST_TIMEOUT" envDefault:"10s"`

	ModelProfilesFile string `env:"MODEL_PROFILES_FILE" envDefault:""`

	// populated from ModelProfilesFile
	ModelProfiles map[string]ModelProfile
}

// Load parses environment variables into Config and validates it.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env config: %w", err)
	}

	cfg.StopSequences = normalizeStopSequences(cfg.StopSequences)

	if strings.TrimSpace(cfg.ModelProfilesFile) != "" {
		profiles, err := LoadModelProfiles(cfg.ModelProfilesFile)
		if err != nil {
			return nil, err
		}
		cfg.ModelProfiles = profiles
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required values and budget consistency.
func (c *Config) Validate() error {
	switch c.StorageBackend {
	case StorageMemory:
	case StoragePostgres:
		if strings.TrimSpace(c.DatabaseURL) == "" {
			return fmt.Errorf("DB_POSTGRESQL_WRITE_DSN is required")
		}
	default:
		return fmt.Errorf("STORAGE_BACKEND must be %q or %q, got %q", StoragePostgres, StorageMemory, c.StorageBackend)
	}
	if strings.TrimSpace(c.InferenceBaseURL) == "" {
		return fmt.Errorf("INFERENCE_BASE_URL is required")
	}
	if strings.TrimSpace(c.InferenceModel) == "" {
		return fmt.Errorf("INFERENCE_MODEL is required")
	}
	if c.HistoryMaxTurns <= 0 {
		return fmt.Errorf("HISTORY_MAX_TURNS must be positive, got %d", c.HistoryMaxTurns)
	}
	if c.MessageMaxLength <= 0 {
		return fmt.Errorf("MESSAGE_MAX_LENGTH must be positive, got %d", c.MessageMaxLength)
	}
	if c.SessionSweepMinutes <= 0 {
		return fmt.Errorf("SESSION_SWEEP_INTERVAL_MINUTES must be positive, got %d", c.SessionSweepMinutes)
	}
	if c.StreamKeepAliveInterval <= 0 {
		return fmt.Errorf("STREAM_KEEPALIVE_INTERVAL must be positive")
	}
	return c.Generation().Validate()
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// Generation returns the budget settings for the configured model, with any
// matching model profile applied on top of the environment values.
func (c *Config) Generation() GenerationSettings {
	settings := GenerationSettings{
		Model:             c.InferenceModel,
		CharsPerToken:     c.CharsPerToken,
		Ceiling:           c.TokenCeiling,
		SafetyBuffer:      c.TokenSafetyBuffer,
		MinResponseTokens: c.MinResponseTokens,
		StopSequences:     append([]string(nil), c.StopSequences...),
	}
	if profile, ok := c.ModelProfiles[c.InferenceModel]; ok {
		settings = profile.apply(settings)
	}
	return settings
}

// GenerationSettings are the effective token budget parameters for one model.
type GenerationSettings struct {
	Model             string
	CharsPerToken     float64
	Ceiling           int
	SafetyBuffer      int
	MinResponseTokens int
	StopSequences     []string
}

// Validate rejects settings that could never produce a usable budget.
func (g GenerationSettings) Validate() error {
	if g.CharsPerToken <= 0 {
		return fmt.Errorf("chars per token must be positive, got %v", g.CharsPerToken)
	}
	if g.SafetyBuffer < 0 || g.MinResponseTokens <= 0 {
		return fmt.Errorf("safety buffer must be >= 0 and min response tokens > 0")
	}
	if g.Ceiling <= g.SafetyBuffer+g.MinResponseTokens {
		return fmt.Errorf("token ceiling %d must exceed safety buffer %d plus min response %d",
			g.Ceiling, g.SafetyBuffer, g.MinResponseTokens)
	}
	return nil
}

// normalizeStopSequences turns escaped "\n" written in env files into real
// newlines and drops empty entries.
func normalizeStopSequences(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ReplaceAll(s, `\n`, "\n")
		if s == "" {
			continue
		}
		out = append(out, s)
	}
	return out
}
