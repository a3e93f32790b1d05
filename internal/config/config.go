package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	MongoURI    string
	DBName      string
	Port        string
	GinMode     string
	CORSOrigins []string

	// Upload limits
	MaxFileSize         int64
	MaxUploadBatch      int
	SyncProcessingLimit int64
	AllowedTypes        []string

	// Gemini / embeddings
	GeminiAPIKey          string
	GeminiChatModel       string
	GoogleEmbeddingsModel string
	GeminiTier            string

	// OpenRouter (large-context fallback)
	OpenRouterAPIKey  string
	OpenRouterBaseURL string
	LargeContextModel string

	// Chunking and retrieval
	VectorDimensions    int
	EmbedBatchSize      int
	MaxChunkTokens      int
	MinChunkLength      int
	SearchTopK          int
	PipelineTopK        int
	BatchCharBudget     int
	MaxBatches          int
	RouteTokenThreshold int

	// Redis / queue
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// Rate limiting
	RateLimitReqs   int
	RateLimitWindow int

	// Reconciliation
	ReconcileIntervalMinutes int

	// Telemetry
	OTLPEndpoint     string
	TracingEnabled   bool
	TraceSampleRatio float64
}

func LoadConfig() (*Config, error) {
	// Load .env file if exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("error loading .env file: %v", err)
		}
	}

	cfg := &Config{
		MongoURI:    getEnv("MONGO_URI", "mongodb://localhost:27017/docchat"),
		DBName:      getEnv("DB_NAME", "docchat"),
		Port:        getEnv("PORT", "8080"),
		GinMode:     getEnv("GIN_MODE", "debug"),
		CORSOrigins: strings.Split(getEnv("CORS_ORIGINS", "http://localhost:3000,http://localhost:8080"), ","),

		MaxFileSize:         getEnvInt64("MAX_FILE_SIZE", 104857600), // 100MB hard cap per file
		MaxUploadBatch:      getEnvInt("MAX_UPLOAD_BATCH", 50),
		SyncProcessingLimit: getEnvInt64("SYNC_PROCESSING_LIMIT", 20971520), // above 20MB goes to the queue
		AllowedTypes:        strings.Split(getEnv("ALLOWED_FILE_TYPES", "application/pdf,text/plain,text/markdown,application/json"), ","),

		GeminiAPIKey:          getEnv("GEMINI_API_KEY", ""),
		GeminiChatModel:       getEnv("GEMINI_CHAT_MODEL", "gemini-2.0-flash"),
		GoogleEmbeddingsModel: getEnv("GOOGLE_EMBEDDINGS_MODEL", "text-embedding-004"),
		GeminiTier:            getEnv("GEMINI_TIER", "free"),

		OpenRouterAPIKey:  getEnv("OPENROUTER_API_KEY", ""),
		OpenRouterBaseURL: getEnv("OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1"),
		LargeContextModel: getEnv("LARGE_CONTEXT_MODEL", "google/gemini-2.5-pro"),

		VectorDimensions:    getEnvInt("VECTOR_DIM", 768),
		EmbedBatchSize:      getEnvInt("EMBED_BATCH_SIZE", 10),
		MaxChunkTokens:      getEnvInt("MAX_CHUNK_TOKENS", 500),
		MinChunkLength:      getEnvInt("MIN_CHUNK_LENGTH", 20),
		SearchTopK:          getEnvInt("SEARCH_TOP_K", 5),
		PipelineTopK:        getEnvInt("PIPELINE_TOP_K", 12),
		BatchCharBudget:     getEnvInt("BATCH_CHAR_BUDGET", 120000),
		MaxBatches:          getEnvInt("MAX_BATCHES", 4),
		RouteTokenThreshold: getEnvInt("ROUTE_TOKEN_THRESHOLD", 30000),

		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		RateLimitReqs:   getEnvInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitWindow: getEnvInt("RATE_LIMIT_WINDOW", 60),

		ReconcileIntervalMinutes: getEnvInt("RECONCILE_INTERVAL_MINUTES", 60),

		OTLPEndpoint:     getEnv("OTLP_ENDPOINT", "localhost:4317"),
		TracingEnabled:   getEnvBool("TRACING_ENABLED", false),
		TraceSampleRatio: getEnvFloat64("TRACE_SAMPLE_RATIO", 0.1),
	}

	// Validate required fields
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required - set it in .env file")
	}

	if cfg.VectorDimensions <= 0 {
		return nil, fmt.Errorf("VECTOR_DIM must be a positive integer")
	}

	return cfg, nil
}

// MaxChunkChars is the character budget for one chunk, using the fixed
// 4 chars/token heuristic shared with the model router.
func (c *Config) MaxChunkChars() int {
	return c.MaxChunkTokens * 4
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
