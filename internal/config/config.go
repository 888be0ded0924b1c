// Package config loads and validates application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// Server settings.
	Port                int
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	MaxRequestBodyBytes int64

	// Storage. Postgres when DatabaseURL is set, otherwise SQLite at SQLitePath.
	DatabaseURL string
	SQLitePath  string

	// JWT settings.
	JWTPrivateKeyPath string // Path to Ed25519 private key PEM file.
	JWTPublicKeyPath  string // Path to Ed25519 public key PEM file.
	JWTExpiration     time.Duration

	// LLM settings. Provider is "auto", "ollama", "openai" or "none"; auto
	// picks OpenAI when a key is set, else Ollama when a URL is set.
	LLMProvider  string
	OllamaURL    string
	OllamaModel  string
	OpenAIAPIKey string
	OpenAIModel  string
	LLMTimeout   time.Duration

	// OverridesBeforeLLM lets a learned sender correction win over a live
	// LLM verdict.
	OverridesBeforeLLM bool

	// Mail provider settings. MailProvider is "nylas", "gmail" or "none".
	MailProvider       string
	NylasAPIKey        string
	NylasAPIURI        string
	GoogleClientID     string
	GoogleClientSecret string
	GmailRefreshToken  string
	InboundDomain      string

	// Shadow Router settings.
	ShadowConcurrency    int
	OverdueSweepInterval time.Duration
	MailTimeout          time.Duration

	// Shutdown budgets. Zero means wait without a deadline.
	ShutdownHTTPTimeout  time.Duration
	ShutdownDrainTimeout time.Duration

	// Rate limiting for public ingress.
	RateLimitEnabled bool
	RateLimitRPS     float64
	RateLimitBurst   int

	// OTEL settings.
	OTELEndpoint string
	ServiceName  string
	OTELInsecure bool

	LogLevel string
}

// UsePostgres reports whether DATABASE_URL selects the Postgres store.
func (c Config) UsePostgres() bool {
	return c.DatabaseURL != ""
}

// Load reads configuration from environment variables with sensible defaults.
// Malformed values are reported together rather than replaced by defaults.
func Load() (Config, error) {
	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	str := envStr
	num := func(key string, def int) int {
		v, err := envInt(key, def)
		collect(err)
		return v
	}
	flt := func(key string, def float64) float64 {
		v, err := envFloat(key, def)
		collect(err)
		return v
	}
	flag := func(key string, def bool) bool {
		v, err := envBool(key, def)
		collect(err)
		return v
	}
	dur := func(key string, def time.Duration) time.Duration {
		v, err := envDuration(key, def)
		collect(err)
		return v
	}

	cfg := Config{
		Port:                 num("DOCBOX_PORT", 8080),
		ReadTimeout:          dur("DOCBOX_READ_TIMEOUT", 30*time.Second),
		WriteTimeout:         dur("DOCBOX_WRITE_TIMEOUT", 30*time.Second),
		MaxRequestBodyBytes:  int64(num("DOCBOX_MAX_REQUEST_BODY_BYTES", 1*1024*1024)), // 1 MB default
		DatabaseURL:          str("DATABASE_URL", ""),
		SQLitePath:           str("DOCBOX_SQLITE_PATH", "docbox.db"),
		JWTPrivateKeyPath:    str("DOCBOX_JWT_PRIVATE_KEY", ""),
		JWTPublicKeyPath:     str("DOCBOX_JWT_PUBLIC_KEY", ""),
		JWTExpiration:        dur("DOCBOX_JWT_EXPIRATION", 24*time.Hour),
		LLMProvider:          strings.ToLower(str("DOCBOX_LLM_PROVIDER", "auto")),
		OllamaURL:            str("OLLAMA_URL", ""),
		OllamaModel:          str("DOCBOX_OLLAMA_MODEL", "llama3.1"),
		OpenAIAPIKey:         str("OPENAI_API_KEY", ""),
		OpenAIModel:          str("DOCBOX_OPENAI_MODEL", "gpt-4o-mini"),
		LLMTimeout:           dur("DOCBOX_LLM_TIMEOUT", 20*time.Second),
		OverridesBeforeLLM:   flag("DOCBOX_OVERRIDES_BEFORE_LLM", true),
		MailProvider:         strings.ToLower(str("DOCBOX_MAIL_PROVIDER", "none")),
		NylasAPIKey:          str("NYLAS_API_KEY", ""),
		NylasAPIURI:          str("NYLAS_API_URI", "https://api.us.nylas.com"),
		GoogleClientID:       str("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret:   str("GOOGLE_CLIENT_SECRET", ""),
		GmailRefreshToken:    str("DOCBOX_GMAIL_REFRESH_TOKEN", ""),
		InboundDomain:        str("DOCBOX_INBOUND_DOMAIN", "inbound.docbox.local"),
		ShadowConcurrency:    num("DOCBOX_SHADOW_CONCURRENCY", 4),
		OverdueSweepInterval: dur("DOCBOX_OVERDUE_SWEEP_INTERVAL", time.Minute),
		MailTimeout:          dur("DOCBOX_MAIL_TIMEOUT", 15*time.Second),
		ShutdownHTTPTimeout:  dur("DOCBOX_SHUTDOWN_HTTP_TIMEOUT", 10*time.Second),
		ShutdownDrainTimeout: dur("DOCBOX_SHUTDOWN_DRAIN_TIMEOUT", 10*time.Second),
		RateLimitEnabled:     flag("DOCBOX_RATE_LIMIT_ENABLED", true),
		RateLimitRPS:         flt("DOCBOX_RATE_LIMIT_RPS", 5),
		RateLimitBurst:       num("DOCBOX_RATE_LIMIT_BURST", 20),
		OTELEndpoint:         str("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		ServiceName:          str("OTEL_SERVICE_NAME", "docbox"),
		OTELInsecure:         flag("DOCBOX_OTEL_INSECURE", false),
		LogLevel:             strings.ToLower(str("DOCBOX_LOG_LEVEL", "info")),
	}
	if len(errs) > 0 {
		return Config{}, fmt.Errorf("config: %w", errors.Join(errs...))
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks ranges and cross-field requirements.
func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: DOCBOX_PORT must be between 1 and 65535")
	}
	if c.MaxRequestBodyBytes <= 0 {
		return fmt.Errorf("config: DOCBOX_MAX_REQUEST_BODY_BYTES must be positive")
	}
	if !c.UsePostgres() && c.SQLitePath == "" {
		return fmt.Errorf("config: DOCBOX_SQLITE_PATH is required when DATABASE_URL is empty")
	}
	if c.JWTExpiration <= 0 {
		return fmt.Errorf("config: DOCBOX_JWT_EXPIRATION must be positive")
	}
	if (c.JWTPrivateKeyPath == "") != (c.JWTPublicKeyPath == "") {
		return fmt.Errorf("config: DOCBOX_JWT_PRIVATE_KEY and DOCBOX_JWT_PUBLIC_KEY must be set together")
	}
	switch c.LLMProvider {
	case "auto", "none":
	case "ollama":
		if c.OllamaURL == "" {
			return fmt.Errorf("config: OLLAMA_URL is required when DOCBOX_LLM_PROVIDER=ollama")
		}
	case "openai":
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("config: OPENAI_API_KEY is required when DOCBOX_LLM_PROVIDER=openai")
		}
	default:
		return fmt.Errorf("config: DOCBOX_LLM_PROVIDER must be one of auto, ollama, openai, none")
	}
	if c.LLMTimeout <= 0 {
		return fmt.Errorf("config: DOCBOX_LLM_TIMEOUT must be positive")
	}
	switch c.MailProvider {
	case "none":
	case "nylas":
		if c.NylasAPIKey == "" {
			return fmt.Errorf("config: NYLAS_API_KEY is required when DOCBOX_MAIL_PROVIDER=nylas")
		}
	case "gmail":
		if c.GoogleClientID == "" || c.GoogleClientSecret == "" || c.GmailRefreshToken == "" {
			return fmt.Errorf("config: GOOGLE_CLIENT_ID, GOOGLE_CLIENT_SECRET and DOCBOX_GMAIL_REFRESH_TOKEN are required when DOCBOX_MAIL_PROVIDER=gmail")
		}
	default:
		return fmt.Errorf("config: DOCBOX_MAIL_PROVIDER must be one of nylas, gmail, none")
	}
	if c.ShadowConcurrency <= 0 {
		return fmt.Errorf("config: DOCBOX_SHADOW_CONCURRENCY must be positive")
	}
	if c.OverdueSweepInterval <= 0 {
		return fmt.Errorf("config: DOCBOX_OVERDUE_SWEEP_INTERVAL must be positive")
	}
	if c.MailTimeout <= 0 {
		return fmt.Errorf("config: DOCBOX_MAIL_TIMEOUT must be positive")
	}
	if c.ShutdownHTTPTimeout < 0 || c.ShutdownDrainTimeout < 0 {
		return fmt.Errorf("config: shutdown timeouts must not be negative")
	}
	if c.RateLimitEnabled && (c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0) {
		return fmt.Errorf("config: DOCBOX_RATE_LIMIT_RPS and DOCBOX_RATE_LIMIT_BURST must be positive")
	}
	return nil
}

// ResolvedLLMProvider resolves "auto" to the provider that will actually be
// used: openai when a key is set, else ollama when a URL is set, else none.
func (c Config) ResolvedLLMProvider() string {
	if c.LLMProvider != "auto" {
		return c.LLMProvider
	}
	switch {
	case c.OpenAIAPIKey != "":
		return "openai"
	case c.OllamaURL != "":
		return "ollama"
	}
	return "none"
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s=%q is not a valid integer", key, v)
	}
	return n, nil
}

func envFloat(key string, defaultVal float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s=%q is not a valid number", key, v)
	}
	return f, nil
}

func envBool(key string, defaultVal bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s=%q is not a valid boolean", key, v)
	}
	return b, nil
}

func envDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s=%q is not a valid duration", key, v)
	}
	return d, nil
}
