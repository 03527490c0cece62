package infra

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv         string
	Port           string
	DatabaseURL    string
	JWTSecret      string
	StoragePath    string
	CacheDir       string
	FrontendURL    string
	GeoIPDBPath    string
	AllowedOrigins []string

	// Remote generative-model service (Trellis via Replicate).
	ReplicateAPIToken string
	ReplicateBaseURL  string
	TrellisModel      string

	// Background removal service.
	RembgURL string

	// Listing copy LLM (DashScope, OpenAI-compatible).
	DashScopeAPIKey  string
	DashScopeBaseURL string
	DashScopeModel   string

	// Vision labeling service.
	VisionAPIKey  string
	VisionBaseURL string

	// Stripe credit purchases.
	StripeSecretKey     string
	StripeWebhookSecret string

	// Conversion tooling.
	FFmpegPath   string
	USDZTool     string
	ARConvertURL string

	TransferChunk int
	// TransferTimeout is generous: generated model files run to hundreds of MB.
	TransferTimeout time.Duration

	PipelineMaxInflight int

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:         getEnv("APP_ENV", "development"),
		Port:           getEnv("PORT", "8080"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		JWTSecret:      os.Getenv("JWT_SECRET"),
		StoragePath:    getEnv("STORAGE_PATH", "./data"),
		CacheDir:       getEnv("CACHE_DIR", "./data/cache"),
		FrontendURL:    getEnv("FRONTEND_URL", "http://localhost:3000"),
		GeoIPDBPath:    os.Getenv("GEOIP_DB_PATH"),
		AllowedOrigins: []string{getEnv("FRONTEND_URL", "http://localhost:3000")},

		ReplicateAPIToken: os.Getenv("REPLICATE_API_TOKEN"),
		ReplicateBaseURL:  getEnv("REPLICATE_BASE_URL", "https://api.replicate.com/v1"),
		TrellisModel:      getEnv("TRELLIS_MODEL", "firtoz/trellis:e8f6c45206993f297372f5436b90350817bd9b4a0d52d2a76df50c1c8afa2b3c"),

		RembgURL: os.Getenv("REMBG_URL"),

		DashScopeAPIKey:  os.Getenv("DASHSCOPE_API_KEY"),
		DashScopeBaseURL: getEnv("DASHSCOPE_BASE_URL", "https://dashscope-intl.aliyuncs.com/compatible-mode/v1"),
		DashScopeModel:   getEnv("DASHSCOPE_MODEL", "qwen-flash"),

		VisionAPIKey:  os.Getenv("VISION_API_KEY"),
		VisionBaseURL: getEnv("VISION_BASE_URL", "https://vision.googleapis.com/v1"),

		StripeSecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),

		FFmpegPath:   getEnv("FFMPEG_PATH", "ffmpeg"),
		USDZTool:     getEnv("USDZ_TOOL", "usdzconvert"),
		ARConvertURL: os.Getenv("AR_CONVERT_URL"),

		TransferChunk:   getEnvInt("TRANSFER_CHUNK_BYTES", 4<<20),
		TransferTimeout: time.Second * time.Duration(getEnvInt("TRANSFER_TIMEOUT_SECONDS", 300)),

		PipelineMaxInflight: getEnvInt("PIPELINE_MAX_INFLIGHT", 4),

		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
