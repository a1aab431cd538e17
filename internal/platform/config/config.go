package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	faqerrors "github.com/lueurxax/faq-digest/internal/core/errors"
	"github.com/lueurxax/faq-digest/internal/platform/schedule"
)

// Lock backends for the run-level single-flight lock.
const (
	LockBackendMemory   = "memory"
	LockBackendPostgres = "postgres"
	LockBackendRedis    = "redis"
)

type Config struct {
	AppEnv      string `env:"APP_ENV" envDefault:"local"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	PostgresDSN string `env:"POSTGRES_DSN,required"`
	HealthPort  int    `env:"HEALTH_PORT" envDefault:"8080"`

	// Database pool
	DBMaxConnections    int32         `env:"DB_MAX_CONNECTIONS" envDefault:"5"`
	DBMinConnections    int32         `env:"DB_MIN_CONNECTIONS" envDefault:"1"`
	DBMaxConnIdleTime   time.Duration `env:"DB_MAX_CONN_IDLE_TIME" envDefault:"30m"`
	DBMaxConnLifetime   time.Duration `env:"DB_MAX_CONN_LIFETIME" envDefault:"1h"`
	DBHealthCheckPeriod time.Duration `env:"DB_HEALTH_CHECK_PERIOD" envDefault:"1m"`

	// FAQ pipeline
	FAQSchedule             string        `env:"FAQ_SCHEDULE" envDefault:"0 0 * * 1"`
	FAQTimezone             string        `env:"FAQ_TIMEZONE" envDefault:"Asia/Tokyo"`
	FAQSufficiencyThreshold int           `env:"FAQ_SUFFICIENCY_THRESHOLD" envDefault:"50"`
	FAQFallbackSampleSize   int           `env:"FAQ_FALLBACK_SAMPLE_SIZE" envDefault:"50"`
	FAQTopK                 int           `env:"FAQ_TOP_K" envDefault:"5"`
	FAQRunTimeout           time.Duration `env:"FAQ_RUN_TIMEOUT" envDefault:"15m"`

	// LLM providers
	LLMAPIKey           string        `env:"LLM_API_KEY"`
	LLMModel            string        `env:"LLM_MODEL" envDefault:"gpt-4o-mini"`
	GoogleAPIKey        string        `env:"GOOGLE_API_KEY"`
	GoogleLLMModel      string        `env:"GOOGLE_LLM_MODEL" envDefault:"gemini-2.0-flash"`
	AnthropicAPIKey     string        `env:"ANTHROPIC_API_KEY"`
	AnthropicModel      string        `env:"ANTHROPIC_MODEL" envDefault:"claude-haiku-4-5"`
	OpenRouterAPIKey    string        `env:"OPENROUTER_API_KEY"`
	OpenRouterModel     string        `env:"OPENROUTER_MODEL" envDefault:"google/gemini-2.0-flash-001"`
	LLMClusterModel     string        `env:"LLM_CLUSTER_MODEL"`
	LLMNarrativeModel   string        `env:"LLM_NARRATIVE_MODEL"`
	LLMCallTimeout      time.Duration `env:"LLM_CALL_TIMEOUT" envDefault:"60s"`
	RateLimitRPS        int           `env:"LLM_RATE_LIMIT_RPS" envDefault:"1"`
	LLMCircuitThreshold int           `env:"LLM_CIRCUIT_THRESHOLD" envDefault:"5"`
	LLMCircuitTimeout   time.Duration `env:"LLM_CIRCUIT_TIMEOUT" envDefault:"1m"`

	// Single-flight lock
	LockBackend string `env:"LOCK_BACKEND" envDefault:"postgres"`
	RedisURL    string `env:"REDIS_URL"`

	// Snapshot events
	NATSURL     string `env:"NATS_URL"`
	NATSToken   string `env:"NATS_TOKEN"`
	NATSSubject string `env:"NATS_SUBJECT" envDefault:"faq.snapshot.created"`
}

func Load() (*Config, error) {
	_ = godotenv.Load() //nolint:errcheck // .env file is optional, error is expected when not present

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing environment config: %w", err)
	}

	applyLegacyAliases(cfg)

	return cfg, nil
}

// Validate checks settings that would otherwise only fail at the first trigger.
// All failures wrap ErrConfiguration.
func (c *Config) Validate() error {
	if _, err := schedule.LoadLocation(c.FAQTimezone); err != nil {
		return err
	}

	if _, err := schedule.ParseTrigger(c.FAQSchedule, c.FAQTimezone); err != nil {
		return err
	}

	if c.FAQSufficiencyThreshold <= 0 || c.FAQFallbackSampleSize <= 0 || c.FAQTopK <= 0 {
		return fmt.Errorf("%w: sufficiency threshold, fallback sample size and top-k must be positive", faqerrors.ErrConfiguration)
	}

	switch c.LockBackend {
	case LockBackendMemory, LockBackendPostgres:
	case LockBackendRedis:
		if strings.TrimSpace(c.RedisURL) == "" {
			return fmt.Errorf("%w: REDIS_URL is required for redis lock backend", faqerrors.ErrConfiguration)
		}
	default:
		return fmt.Errorf("%w: unknown lock backend %q", faqerrors.ErrConfiguration, c.LockBackend)
	}

	return nil
}

// applyLegacyAliases honours the variable names used by the earlier deployment.
func applyLegacyAliases(cfg *Config) {
	if !hasEnv("FAQ_TIMEZONE") {
		setStringFromEnv("TZ_NAME", &cfg.FAQTimezone)
	}

	if !hasEnv("FAQ_SCHEDULE") {
		setStringFromEnv("FAQ_CRON", &cfg.FAQSchedule)
	}

	if !hasEnv("LLM_API_KEY") {
		setStringFromEnv("OPENAI_API_KEY", &cfg.LLMAPIKey)
	}

	if !hasEnv("GOOGLE_API_KEY") {
		setStringFromEnv("GEMINI_API_KEY", &cfg.GoogleAPIKey)
	}

	if !hasEnv("FAQ_SUFFICIENCY_THRESHOLD") {
		setIntFromEnv("FAQ_MIN_MESSAGES", &cfg.FAQSufficiencyThreshold)
	}
}

func hasEnv(key string) bool {
	_, ok := os.LookupEnv(key)
	return ok
}

func setStringFromEnv(key string, target *string) {
	val, ok := os.LookupEnv(key)
	if !ok {
		return
	}

	val = strings.TrimSpace(val)
	if val == "" {
		return
	}

	*target = val
}

func setIntFromEnv(key string, target *int) {
	val, ok := os.LookupEnv(key)
	if !ok {
		return
	}

	parsed, err := strconv.Atoi(strings.TrimSpace(val))
	if err != nil {
		return
	}

	*target = parsed
}
