package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the application configuration
type Config struct {
	Port     string
	LogLevel string

	// Cycle scheduling
	ScrapeInterval       time.Duration
	MinEngagementScore   int
	MaxRequestsPerCycle  int
	EnableOutreach       bool
	OutreachBatchSize    int
	QualifyBatchSize     int
	DefaultSequence      string
	KeywordsPerCommunity int

	// Polite fetcher
	FetchMinDelay time.Duration
	FetchMaxDelay time.Duration
	FetchTimeout  time.Duration

	// Persistence
	SupabaseURL string
	SupabaseKey string

	WebhookSecret string

	// Reasoning service
	LLMBackend           string // Optional explicit override: gemini, vertexai or openrouter
	GoogleAPIKey         string
	GeminiModel          string
	UseVertexAI          bool
	GCPProject           string
	GCPLocation          string
	OpenRouterAPIKey     string
	OpenRouterModel      string
	OpenRouterBaseURL    string
	OpenRouterMaxConc    int
	OpenRouterMinDelayMs int

	// Optional sources
	SerpAPIKey      string
	FirecrawlAPIKey string
	FirecrawlAPIURL string // Optional: custom Firecrawl API URL (leave empty for default)

	// Default outreach delivery, overridden by per-tenant SMTP settings
	SMTPServer     string
	SMTPPort       int
	SMTPUsername   string
	SMTPPassword   string
	SMTPSenderName string
}

// Load reads configuration from environment variables
func Load() *Config {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}

	defaultSequence := os.Getenv("DEFAULT_SEQUENCE")
	if defaultSequence == "" {
		defaultSequence = "saas_demo"
	}

	return &Config{
		Port:     port,
		LogLevel: logLevel,

		ScrapeInterval:       time.Duration(getEnvInt("SCRAPE_INTERVAL_MINUTES", 30)) * time.Minute,
		MinEngagementScore:   getEnvInt("MIN_ENGAGEMENT_SCORE", 2),
		MaxRequestsPerCycle:  getEnvInt("MAX_REQUESTS_PER_CYCLE", 20),
		EnableOutreach:       getEnvBool("ENABLE_AUTONOMOUS_OUTREACH"),
		OutreachBatchSize:    getEnvInt("OUTREACH_BATCH_SIZE", 5),
		QualifyBatchSize:     getEnvInt("QUALIFY_BATCH_SIZE", 100),
		DefaultSequence:      defaultSequence,
		KeywordsPerCommunity: getEnvInt("KEYWORDS_PER_COMMUNITY", 3),

		FetchMinDelay: time.Duration(getEnvInt("FETCH_MIN_DELAY_SECONDS", 3)) * time.Second,
		FetchMaxDelay: time.Duration(getEnvInt("FETCH_MAX_DELAY_SECONDS", 8)) * time.Second,
		FetchTimeout:  time.Duration(getEnvInt("FETCH_TIMEOUT_SECONDS", 15)) * time.Second,

		SupabaseURL: os.Getenv("SUPABASE_URL"),
		SupabaseKey: getEnvWithFallback("SUPABASE_SECRET_KEY", "SUPABASE_KEY"),

		WebhookSecret: os.Getenv("WEBHOOK_SECRET"),

		LLMBackend:           strings.ToLower(os.Getenv("LLM_BACKEND")),
		GoogleAPIKey:         os.Getenv("GOOGLE_API_KEY"),
		GeminiModel:          os.Getenv("GEMINI_MODEL"),
		UseVertexAI:          getEnvBool("GOOGLE_GENAI_USE_VERTEXAI"),
		GCPProject:           os.Getenv("GOOGLE_CLOUD_PROJECT"),
		GCPLocation:          os.Getenv("GOOGLE_CLOUD_LOCATION"),
		OpenRouterAPIKey:     os.Getenv("OPENROUTER_API_KEY"),
		OpenRouterModel:      os.Getenv("OPENROUTER_MODEL"),
		OpenRouterBaseURL:    os.Getenv("OPENROUTER_BASE_URL"),
		OpenRouterMaxConc:    getEnvInt("OPENROUTER_MAX_CONCURRENT", 5),
		OpenRouterMinDelayMs: getEnvInt("OPENROUTER_MIN_DELAY_MS", 100),

		SerpAPIKey:      os.Getenv("SERPAPI_KEY"),
		FirecrawlAPIKey: os.Getenv("FIRECRAWL_API_KEY"),
		FirecrawlAPIURL: os.Getenv("FIRECRAWL_API_URL"), // Optional

		SMTPServer:     os.Getenv("SMTP_SERVER"),
		SMTPPort:       getEnvInt("SMTP_PORT", 587),
		SMTPUsername:   os.Getenv("SMTP_USERNAME"),
		SMTPPassword:   os.Getenv("SMTP_PASSWORD"),
		SMTPSenderName: os.Getenv("SMTP_SENDER_NAME"),
	}
}

// HasLLM reports whether any reasoning backend has credentials
func (c *Config) HasLLM() bool {
	return c.GoogleAPIKey != "" || c.UseVertexAI || c.OpenRouterAPIKey != ""
}

// HasSupabase reports whether the persistence credentials are set
func (c *Config) HasSupabase() bool {
	return c.SupabaseURL != "" && c.SupabaseKey != ""
}

// getEnvWithFallback returns the primary env var, or the fallback when the primary is empty
func getEnvWithFallback(primary, fallback string) string {
	if val := os.Getenv(primary); val != "" {
		return val
	}
	return os.Getenv(fallback)
}

// getEnvInt parses a non-negative integer env var, returning def when unset or invalid
func getEnvInt(key string, def int) int {
	val := os.Getenv(key)
	if val == "" {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(val))
	if err != nil || n < 0 {
		return def
	}
	return n
}

func getEnvBool(key string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "true", "1", "yes":
		return true
	}
	return false
}
