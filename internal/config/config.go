package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"
)

// Config contains all runtime settings for the lead capture service.
type Config struct {
	BindAddr                 string
	ShutdownTimeout          time.Duration
	SessionInactivityTimeout time.Duration
	MetricsNamespace         string
	LogLevel                 string
	LogFormat                string

	AllowAnyOrigin bool
	CORSOrigins    []string

	UIConfigPath string
	UI           UI

	RTCProvider      string
	RTCServerURL     string
	MockDisplayDelay time.Duration

	TokenServiceURL   string
	TokenCallerID     string
	TokenCallerField  string
	TokenFetchTimeout time.Duration
	ParticipantName   string

	AgentIdentity     string
	LeadSubmitTimeout time.Duration

	DatabaseURL       string
	JournalSQLitePath string
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "chatform"),
		LogLevel:         strings.ToLower(envOrDefault("APP_LOG_LEVEL", "info")),
		LogFormat:        strings.ToLower(envOrDefault("APP_LOG_FORMAT", "json")),
		AllowAnyOrigin:   false,
		CORSOrigins:      listFromEnv("APP_CORS_ORIGINS"),
		UIConfigPath:     stringsTrimSpace("APP_UI_CONFIG"),
		UI:               DefaultUI(),
		RTCProvider:      strings.ToLower(envOrDefault("RTC_PROVIDER", "auto")),
		RTCServerURL:     stringsTrimSpace("RTC_SERVER_URL"),
		TokenServiceURL:  strings.TrimRight(envOrDefault("TOKEN_SERVICE_URL", "http://127.0.0.1:8001"), "/"),
		TokenCallerID:    stringsTrimSpace("TOKEN_CALLER_ID"),
		// Revisions of the token service named this field contractor_id or business_id.
		TokenCallerField:         envOrDefault("TOKEN_CALLER_FIELD", "caller_id"),
		ParticipantName:          envOrDefault("PARTICIPANT_NAME", "Website Visitor"),
		AgentIdentity:            envOrDefault("AGENT_IDENTITY", "contractor-leads-bot-agent"),
		DatabaseURL:              stringsTrimSpace("DATABASE_URL"),
		JournalSQLitePath:        stringsTrimSpace("JOURNAL_SQLITE_PATH"),
		ShutdownTimeout:          15 * time.Second,
		SessionInactivityTimeout: 10 * time.Minute,
		TokenFetchTimeout:        10 * time.Second,
		LeadSubmitTimeout:        10 * time.Second,
		MockDisplayDelay:         2 * time.Second,
	}
	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionInactivityTimeout, err = durationFromEnv("APP_SESSION_INACTIVITY_TIMEOUT", cfg.SessionInactivityTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.TokenFetchTimeout, err = durationFromEnv("TOKEN_FETCH_TIMEOUT", cfg.TokenFetchTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.LeadSubmitTimeout, err = durationFromEnv("LEAD_SUBMIT_TIMEOUT", cfg.LeadSubmitTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.MockDisplayDelay, err = durationFromEnv("RTC_MOCK_DISPLAY_DELAY", cfg.MockDisplayDelay)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}

	if cfg.UIConfigPath != "" {
		cfg.UI, err = LoadUI(cfg.UIConfigPath)
		if err != nil {
			return Config{}, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints after defaults are applied.
func (c Config) Validate() error {
	if c.SessionInactivityTimeout < 5*time.Second {
		return fmt.Errorf("APP_SESSION_INACTIVITY_TIMEOUT must be at least 5s")
	}
	if c.TokenFetchTimeout <= 0 {
		return fmt.Errorf("TOKEN_FETCH_TIMEOUT must be positive")
	}
	if c.LeadSubmitTimeout <= 0 {
		return fmt.Errorf("LEAD_SUBMIT_TIMEOUT must be positive")
	}
	if u, err := url.Parse(c.TokenServiceURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("TOKEN_SERVICE_URL must be an http(s) url")
	}
	if strings.TrimSpace(c.TokenCallerField) == "" {
		return fmt.Errorf("TOKEN_CALLER_FIELD must not be empty")
	}
	if strings.TrimSpace(c.AgentIdentity) == "" {
		return fmt.Errorf("AGENT_IDENTITY must not be empty")
	}
	switch c.RTCProvider {
	case "auto", "mock":
	case "livekit":
		if c.RTCServerURL == "" {
			return fmt.Errorf("RTC_PROVIDER=livekit requires RTC_SERVER_URL")
		}
	default:
		return fmt.Errorf("invalid RTC_PROVIDER: %q (expected auto|livekit|mock)", c.RTCProvider)
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("invalid APP_LOG_FORMAT: %q (expected json|text)", c.LogFormat)
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func listFromEnv(key string) []string {
	v := stringsTrimSpace(key)
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
