package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// DefaultNewsFeedURL は自動記事取得に使うニュースフィードの既定値。
const DefaultNewsFeedURL = "https://mainichi.jp/rss/etc/mainichi-flash.rss"

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL       string
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration

	// Auth
	JWTSecret string

	// OpenAI
	OpenAIAPIKey          string
	OpenAIBaseURL         string
	OpenAIModel           string
	OpenAITranscribeModel string
	OpenAITTSModel        string

	// Timeouts
	LLMTimeout        time.Duration
	TranscribeTimeout time.Duration
	TTSTimeout        time.Duration

	// Fetch
	FetchTimeout    time.Duration
	FetchMaxSize    int64
	NewsFeedURLs    []string
	ArticleCacheTTL time.Duration

	// Quota
	TrialQuotaMinutes float64
	TrialDays         int

	// Rate Limit
	RateLimitGeneral int
	RateLimitMetered int

	// Worker
	UsageResetCheckInterval time.Duration
	RetentionDays           int
	CleanupInterval         time.Duration

	// Logging
	LogLevel string

	// Server
	ServerPort string
	BaseURL    string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	if cfg.OpenAIAPIKey == "" {
		missing = append(missing, "OPENAI_API_KEY")
	}

	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	if cfg.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.DBMaxOpenConns = getEnvInt("DB_MAX_OPEN_CONNS", 10)
	cfg.DBMaxIdleConns = getEnvInt("DB_MAX_IDLE_CONNS", 5)
	cfg.DBConnMaxLifetime = getEnvDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute)
	cfg.OpenAIBaseURL = getEnvString("OPENAI_BASE_URL", "")
	cfg.OpenAIModel = getEnvString("OPENAI_MODEL", "gpt-4o-mini")
	cfg.OpenAITranscribeModel = getEnvString("OPENAI_TRANSCRIBE_MODEL", "whisper-1")
	cfg.OpenAITTSModel = getEnvString("OPENAI_TTS_MODEL", "tts-1-hd")
	cfg.LLMTimeout = getEnvDuration("LLM_TIMEOUT", 60*time.Second)
	cfg.TranscribeTimeout = getEnvDuration("TRANSCRIBE_TIMEOUT", 120*time.Second)
	cfg.TTSTimeout = getEnvDuration("TTS_TIMEOUT", 60*time.Second)
	cfg.FetchTimeout = getEnvDuration("FETCH_TIMEOUT", 15*time.Second)
	cfg.FetchMaxSize = getEnvInt64("FETCH_MAX_SIZE", 5242880)
	cfg.NewsFeedURLs = getEnvList("NEWS_FEED_URLS", []string{DefaultNewsFeedURL})
	cfg.ArticleCacheTTL = getEnvDuration("ARTICLE_CACHE_TTL", 30*time.Minute)
	cfg.TrialQuotaMinutes = getEnvFloat("TRIAL_QUOTA_MINUTES", 20)
	cfg.TrialDays = getEnvInt("TRIAL_DAYS", 7)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitMetered = getEnvInt("RATE_LIMIT_METERED", 10)
	cfg.UsageResetCheckInterval = getEnvDuration("USAGE_RESET_CHECK_INTERVAL", time.Hour)
	cfg.RetentionDays = getEnvInt("RETENTION_DAYS", 180)
	cfg.CleanupInterval = getEnvDuration("CLEANUP_INTERVAL", 24*time.Hour)
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.BaseURL = getEnvString("BASE_URL", "http://localhost:8080")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 {
		return defaultVal
	}
	return f
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

// getEnvList はカンマ区切りの値を空要素を除いて返す。
func getEnvList(key string, defaultVal []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}
