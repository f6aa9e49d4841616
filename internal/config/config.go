// Package config loads the pipeline's typed configuration from the
// environment (with .env support), mirroring the env-first style used
// throughout the teacher's services.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every tunable enumerated in spec.md §6.
type Config struct {
	AppEnv string

	MaxConcurrentJobs   int
	MaxConcurrentTTS    int
	MaxConcurrentVisual int

	CPUSoftCeiling        float64
	MemorySoftCeiling     float64
	MemoryCleanupCeiling  float64

	CircuitFailureThreshold int
	CircuitCooldown        time.Duration

	RetryMaxAttempts  int
	RetryInitialDelay time.Duration
	RetryMultiplier   float64
	RetryJitter       float64

	ScriptCacheTTL time.Duration
	AudioCacheTTL  time.Duration
	VisualCacheTTL time.Duration

	JobRetention time.Duration

	MaxUploadSizeMB  int64
	AllowedUploadExt []string

	AssetDir  string
	VideoDir  string
	StorePath string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	LLMModel     string
	CohereAPIKey string

	TTSBaseURL string

	VisualSlideURL   string
	VisualDiagramURL string
	VisualGraphURL   string
	VisualFormulaURL string

	HTTPPort         string
	SnapshotInterval time.Duration
	MonitorInterval  time.Duration
}

// Load reads environment variables (after a best-effort .env load) into a
// Config populated with the spec's documented defaults.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		AppEnv: getEnv("APP_ENV", "production"),

		MaxConcurrentJobs:   getInt("MAX_CONCURRENT_JOBS", 3),
		MaxConcurrentTTS:    getInt("MAX_CONCURRENT_TTS", 2),
		MaxConcurrentVisual: getInt("MAX_CONCURRENT_VISUAL", 4),

		CPUSoftCeiling:       getFloat("CPU_SOFT_CEILING", 80),
		MemorySoftCeiling:    getFloat("MEMORY_SOFT_CEILING", 85),
		MemoryCleanupCeiling: getFloat("MEMORY_CLEANUP_CEILING", 70),

		CircuitFailureThreshold: getInt("CIRCUIT_FAILURE_THRESHOLD", 3),
		CircuitCooldown:         getDuration("CIRCUIT_COOLDOWN_SECONDS", 30*time.Second),

		RetryMaxAttempts:  getInt("RETRY_MAX_ATTEMPTS", 3),
		RetryInitialDelay: getDurationMillis("RETRY_INITIAL_DELAY_MS", 500*time.Millisecond),
		RetryMultiplier:   getFloat("RETRY_MULTIPLIER", 2),
		RetryJitter:       getFloat("RETRY_JITTER", 0.1),

		ScriptCacheTTL: getDurationHours("CACHE_SCRIPT_TTL_HOURS", 24*time.Hour),
		AudioCacheTTL:  getDurationHours("CACHE_AUDIO_TTL_HOURS", 24*time.Hour),
		VisualCacheTTL: getDurationHours("CACHE_VISUAL_TTL_HOURS", 24*time.Hour),

		JobRetention: getDurationHours("JOB_RETENTION_HOURS", 24*time.Hour),

		MaxUploadSizeMB:  int64(getInt("MAX_UPLOAD_SIZE_MB", 50)),
		AllowedUploadExt: []string{"txt", "pdf", "md"},

		AssetDir:  getEnv("ASSET_DIR", "assets"),
		VideoDir:  getEnv("VIDEO_DIR", "videos"),
		StorePath: getEnv("JOB_STORE_PATH", "job_store.json"),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getInt("REDIS_DB", 0),

		LLMModel:     getEnv("LLM_MODEL", "command-r-plus"),
		CohereAPIKey: getEnv("COHERE_API_KEY", ""),

		TTSBaseURL: getEnv("TTS_BASE_URL", "http://localhost:8090"),

		VisualSlideURL:   getEnv("VISUAL_SLIDE_URL", "http://localhost:8091/slide"),
		VisualDiagramURL: getEnv("VISUAL_DIAGRAM_URL", "http://localhost:8091/diagram"),
		VisualGraphURL:   getEnv("VISUAL_GRAPH_URL", "http://localhost:8091/graph"),
		VisualFormulaURL: getEnv("VISUAL_FORMULA_URL", "http://localhost:8091/formula"),

		HTTPPort:         getEnv("HTTP_PORT", "8080"),
		SnapshotInterval: getDuration("SNAPSHOT_INTERVAL_SECONDS", 60*time.Second),
		MonitorInterval:  getDuration("MONITOR_INTERVAL_SECONDS", 30*time.Second),
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return time.Duration(n) * time.Second
		}
	}
	return def
}

func getDurationMillis(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return time.Duration(n) * time.Millisecond
		}
	}
	return def
}

func getDurationHours(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return time.Duration(n) * time.Hour
		}
	}
	return def
}
