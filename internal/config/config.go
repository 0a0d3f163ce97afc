package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// OAuth
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string

	// Session
	SessionSecret           string
	SessionMaxAge           int
	SessionRefreshThreshold time.Duration
	SessionCheckInterval    time.Duration

	// Rate Limit（1分あたりのリクエスト数）
	RateLimitGeneral    int
	RateLimitGeneration int

	// Text generation
	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string

	// Image generation
	GeminiAPIKey        string
	ImageModel          string
	ImageGenConcurrency int

	// Video generation。キー未設定のベンダーは無効
	KlingAccessKey  string
	KlingSecretKey  string
	KlingBaseURL    string
	KlingModel      string
	SeedanceAPIKey  string
	SeedanceBaseURL string
	SeedanceModel   string

	// Narration
	ElevenLabsAPIKey  string
	ElevenLabsVoiceID string
	ElevenLabsModelID string

	VendorTimeout time.Duration

	// Storage
	GCSBucket           string
	GCSPublicBaseURL    string
	GCSSignerEmail      string
	GCSSignerPrivateKey string
	UploadMaxSize       int64

	// Video status cache。空の場合はキャッシュなし
	RedisURL            string
	VideoStatusCacheTTL time.Duration

	// Media proxy
	ProxyTimeout time.Duration
	ProxyMaxSize int64

	// Worker
	AssetRetentionDays int
	CleanupSchedule    string

	// Server
	ServerPort string
	BaseURL    string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string
}

// KlingEnabled はKlingの認証情報が揃っているかを返す。
func (c *Config) KlingEnabled() bool {
	return c.KlingAccessKey != "" && c.KlingSecretKey != ""
}

// SeedanceEnabled はSeedanceのAPIキーが設定されているかを返す。
func (c *Config) SeedanceEnabled() bool {
	return c.SeedanceAPIKey != ""
}

// Load は環境変数からConfigを読み込む。
// カレントディレクトリに.envがあれば先に読み込む。既に設定済みの環境変数は上書きしない。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := &Config{}

	// Required fields
	var missing []string
	required := func(key string) string {
		v := os.Getenv(key)
		if v == "" {
			missing = append(missing, key)
		}
		return v
	}

	cfg.DatabaseURL = required("DATABASE_URL")
	cfg.GoogleClientID = required("GOOGLE_CLIENT_ID")
	cfg.GoogleClientSecret = required("GOOGLE_CLIENT_SECRET")
	cfg.GoogleRedirectURL = required("GOOGLE_REDIRECT_URL")
	cfg.SessionSecret = required("SESSION_SECRET")
	cfg.BaseURL = required("BASE_URL")
	cfg.OpenAIAPIKey = required("OPENAI_API_KEY")
	cfg.GeminiAPIKey = required("GEMINI_API_KEY")
	cfg.GCSBucket = required("GCS_BUCKET")

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", 86400)
	cfg.SessionRefreshThreshold = getEnvDuration("SESSION_REFRESH_THRESHOLD", time.Hour)
	cfg.SessionCheckInterval = getEnvDuration("SESSION_CHECK_INTERVAL", 60*time.Second)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitGeneration = getEnvInt("RATE_LIMIT_GENERATION", 20)

	cfg.OpenAIBaseURL = getEnvString("OPENAI_BASE_URL", "")
	cfg.OpenAIModel = getEnvString("OPENAI_MODEL", "gpt-4o-mini")
	cfg.ImageModel = getEnvString("IMAGE_MODEL", "imagen-3.0-generate-002")
	cfg.ImageGenConcurrency = getEnvInt("IMAGE_GEN_CONCURRENCY", 3)

	cfg.KlingAccessKey = getEnvString("KLING_ACCESS_KEY", "")
	cfg.KlingSecretKey = getEnvString("KLING_SECRET_KEY", "")
	cfg.KlingBaseURL = getEnvString("KLING_BASE_URL", "")
	cfg.KlingModel = getEnvString("KLING_MODEL", "")
	cfg.SeedanceAPIKey = getEnvString("SEEDANCE_API_KEY", "")
	cfg.SeedanceBaseURL = getEnvString("SEEDANCE_BASE_URL", "")
	cfg.SeedanceModel = getEnvString("SEEDANCE_MODEL", "")

	cfg.ElevenLabsAPIKey = getEnvString("ELEVENLABS_API_KEY", "")
	cfg.ElevenLabsVoiceID = getEnvString("ELEVENLABS_VOICE_ID", "")
	cfg.ElevenLabsModelID = getEnvString("ELEVENLABS_MODEL_ID", "")
	cfg.VendorTimeout = getEnvDuration("VENDOR_TIMEOUT", 60*time.Second)

	cfg.GCSPublicBaseURL = getEnvString("GCS_PUBLIC_BASE_URL", "")
	cfg.GCSSignerEmail = getEnvString("GCS_SIGNER_EMAIL", "")
	// .envでは改行をエスケープして書くことが多いため復元する
	cfg.GCSSignerPrivateKey = strings.ReplaceAll(getEnvString("GCS_SIGNER_PRIVATE_KEY", ""), `\n`, "\n")
	cfg.UploadMaxSize = getEnvInt64("UPLOAD_MAX_SIZE", 50<<20)

	cfg.RedisURL = getEnvString("REDIS_URL", "")
	cfg.VideoStatusCacheTTL = getEnvDuration("VIDEO_STATUS_CACHE_TTL", 5*time.Second)

	cfg.ProxyTimeout = getEnvDuration("PROXY_TIMEOUT", 30*time.Second)
	cfg.ProxyMaxSize = getEnvInt64("PROXY_MAX_SIZE", 200<<20)

	cfg.AssetRetentionDays = getEnvInt("ASSET_RETENTION_DAYS", 0)
	cfg.CleanupSchedule = getEnvString("CLEANUP_SCHEDULE", "@daily")

	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
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
