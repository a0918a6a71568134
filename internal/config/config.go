package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"veritasai-be/pkg/llm"

	"github.com/joho/godotenv"
)

type Config struct {
	App         AppConfig
	Database    DatabaseConfig
	Storage     StorageConfig
	Ai          AIConfig
	Ingestion   IngestionConfig
	Rag         RagConfig
	Jobs        JobsConfig
	VectorIndex VectorIndexConfig
	Otel        OtelConfig
}

type AppConfig struct {
	Port               string
	Environment        string
	LogFilePath        string
	ProgressLogPath    string
	CorsAllowedOrigins string
	NatsURL            string
	RedisURL           string
	JWTSecret          string
}

func (c AppConfig) IsProduction() bool {
	return c.Environment == "production"
}

type DatabaseConfig struct {
	Connection string
}

type StorageConfig struct {
	Driver        string // "local" or "s3"
	LocalRoot     string
	S3Bucket      string
	S3Region      string
	S3AccessKey   string
	S3SecretKey   string
	S3Endpoint    string
	MaxUploadSize int64
}

type AIConfig struct {
	EmbeddingProvider  string
	EmbeddingModel     string
	EmbeddingDimension int
	ChatProvider       string
	ChatModel          string
	Temperature        float64
	MaxTokens          int
	RequestTimeout     time.Duration

	OllamaBaseURL      string
	OpenAIAPIKey       string
	OpenAIBaseURL      string
	DeepSeekAPIKey     string
	AnthropicAPIKey    string
	GroqAPIKey         string
	TogetherAPIKey     string
	HuggingFaceAPIKey  string
	GoogleGeminiAPIKey string
}

type IngestionConfig struct {
	ChunkSize    int
	ChunkOverlap int
	Concurrency  int
	MaxRetries   int
	RetryDelay   time.Duration
	BatchDelay   time.Duration
	RateLimit    float64
	// documents pending or processing longer than this are recovered
	StaleAfter time.Duration
}

type RagConfig struct {
	TopK             int
	MaxContextTokens int
	CacheDriver      string // "memory", "redis" or "none"
	CacheTTL         time.Duration
}

type JobsConfig struct {
	Executor        string // "sync", "watermill" or "nats"
	TopicName       string
	PersistQueueLen int
}

type VectorIndexConfig struct {
	Driver      string // "pgvector" or "chromem"
	ChromemPath string
}

type OtelConfig struct {
	Enabled     bool
	Endpoint    string
	ServiceName string
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, usage system environment")
	}

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "3000"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "logs/app.log"),
			ProgressLogPath:    getEnv("PROGRESS_LOG_FILE_PATH", "logs/progress.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
			NatsURL:            getEnv("NATS_URL", ""),
			RedisURL:           getEnv("REDIS_URL", ""),
			JWTSecret:          getEnv("JWT_SECRET", ""),
		},
		Database: DatabaseConfig{
			Connection: getEnv("DB_CONNECTION_STRING", ""),
		},
		Storage: StorageConfig{
			Driver:        getEnv("STORAGE_DRIVER", "local"),
			LocalRoot:     getEnv("STORAGE_LOCAL_ROOT", "uploads"),
			S3Bucket:      getEnv("S3_BUCKET", ""),
			S3Region:      getEnv("AWS_REGION", ""),
			S3AccessKey:   getEnv("AWS_ACCESS_KEY_ID", ""),
			S3SecretKey:   getEnv("AWS_SECRET_ACCESS_KEY", ""),
			S3Endpoint:    getEnv("S3_ENDPOINT", ""),
			MaxUploadSize: int64(getEnvAsInt("MAX_UPLOAD_SIZE_BYTES", 10*1024*1024)),
		},
		Ai: AIConfig{
			EmbeddingProvider:  getEnv("EMBEDDING_PROVIDER", "ollama"),
			EmbeddingModel:     getEnv("EMBEDDING_MODEL", ""),
			EmbeddingDimension: getEnvAsInt("EMBEDDING_DIMENSION", 0),
			ChatProvider:       getEnv("LLM_PROVIDER", "ollama"),
			ChatModel:          getEnv("LLM_MODEL", ""),
			Temperature:        getEnvAsFloat("LLM_TEMPERATURE", llm.DefaultTemperature),
			MaxTokens:          getEnvAsInt("LLM_MAX_TOKENS", 0),
			RequestTimeout:     getEnvAsDuration("LLM_REQUEST_TIMEOUT", 120*time.Second),

			OllamaBaseURL:      getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
			OpenAIAPIKey:       getEnv("OPENAI_API_KEY", ""),
			OpenAIBaseURL:      getEnv("OPENAI_BASE_URL", ""),
			DeepSeekAPIKey:     getEnv("DEEPSEEK_API_KEY", ""),
			AnthropicAPIKey:    getEnv("ANTHROPIC_API_KEY", ""),
			GroqAPIKey:         getEnv("GROQ_API_KEY", ""),
			TogetherAPIKey:     getEnv("TOGETHER_API_KEY", ""),
			HuggingFaceAPIKey:  getEnv("HUGGINGFACE_API_KEY", ""),
			GoogleGeminiAPIKey: getEnv("GOOGLE_GEMINI_API_KEY", ""),
		},
		Ingestion: IngestionConfig{
			ChunkSize:    getEnvAsInt("CHUNK_SIZE", 1500),
			ChunkOverlap: getEnvAsInt("CHUNK_OVERLAP", 200),
			Concurrency:  getEnvAsInt("EMBEDDING_CONCURRENCY", 3),
			MaxRetries:   getEnvAsInt("EMBEDDING_MAX_RETRIES", 3),
			RetryDelay:   getEnvAsDuration("EMBEDDING_RETRY_DELAY", time.Second),
			BatchDelay:   getEnvAsDuration("EMBEDDING_BATCH_DELAY", 200*time.Millisecond),
			RateLimit:    getEnvAsFloat("EMBEDDING_RATE_LIMIT", 0),
			StaleAfter:   getEnvAsDuration("INGESTION_STALE_AFTER", 30*time.Minute),
		},
		Rag: RagConfig{
			TopK:             getEnvAsInt("RAG_TOP_K", 15),
			MaxContextTokens: getEnvAsInt("RAG_MAX_CONTEXT_TOKENS", 4000),
			CacheDriver:      getEnv("QUERY_CACHE_DRIVER", "memory"),
			CacheTTL:         getEnvAsDuration("QUERY_CACHE_TTL", time.Hour),
		},
		Jobs: JobsConfig{
			Executor:        getEnv("JOB_EXECUTOR", "watermill"),
			TopicName:       getEnv("PROCESS_DOCUMENT_TOPIC_NAME", "PROCESS_DOCUMENT"),
			PersistQueueLen: getEnvAsInt("PERSIST_QUEUE_LENGTH", 256),
		},
		VectorIndex: VectorIndexConfig{
			Driver:      getEnv("VECTOR_INDEX", "pgvector"),
			ChromemPath: getEnv("CHROMEM_PATH", ""),
		},
		Otel: OtelConfig{
			Enabled:     getEnvAsBool("OTEL_ENABLED", false),
			Endpoint:    getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
			ServiceName: getEnv("OTEL_SERVICE_NAME", "veritasai-be"),
		},
	}
}

// ProviderOverrides turns the per-provider keys and URLs into registry
// overrides. Models only override the provider they are configured for.
func (c AIConfig) ProviderOverrides() map[string]llm.ProviderConfig {
	o := map[string]llm.ProviderConfig{
		"ollama":      {BaseURL: c.OllamaBaseURL},
		"openai":      {APIKey: c.OpenAIAPIKey, BaseURL: c.OpenAIBaseURL},
		"deepseek":    {APIKey: c.DeepSeekAPIKey},
		"anthropic":   {APIKey: c.AnthropicAPIKey},
		"groq":        {APIKey: c.GroqAPIKey},
		"together":    {APIKey: c.TogetherAPIKey},
		"huggingface": {APIKey: c.HuggingFaceAPIKey},
		"gemini":      {APIKey: c.GoogleGeminiAPIKey},
	}

	if c.EmbeddingModel != "" || c.EmbeddingDimension > 0 {
		name := strings.ToLower(c.EmbeddingProvider)
		p := o[name]
		p.EmbeddingModel = c.EmbeddingModel
		p.Dimension = c.EmbeddingDimension
		o[name] = p
	}
	if c.ChatModel != "" {
		name := strings.ToLower(c.ChatProvider)
		p := o[name]
		p.ChatModel = c.ChatModel
		o[name] = p
	}
	return o
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseFloat(strValue, 64); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseBool(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	strValue := getEnv(key, "")
	if value, err := time.ParseDuration(strValue); err == nil {
		return value
	}
	return fallback
}
