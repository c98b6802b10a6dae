package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port     string
	GinMode  string
	LogLevel string
	// Empty DATABASE_URL keeps scan records in memory
	DBUrl string
	// Redis/Upstash Configuration
	UpstashRedisURL      string
	UpstashRedisPassword string
	StatusTTLHours       int
	// ClamAV: a unix socket wins over host/port
	ClamAVEnabled        bool
	ClamAVSocket         string
	ClamAVHost           string
	ClamAVPort           int
	ClamAVTimeoutSeconds int
	ClamAVMaxConcurrent  int
	// VirusTotal reputation, disabled without a key
	VirusTotalAPIKey         string
	VirusTotalBaseURL        string
	VirusTotalTimeoutSeconds int
	// Uploads and pipeline
	MaxUploadBytes     int64
	UploadDir          string
	MaxConcurrentScans int
	CodeExtensions     []string
	HeuristicRulesFile string
	// Rate Limiting Configuration
	RateLimitWindowSeconds   int
	RateLimitGlobalThreshold int
	UploadRatePerMinute      int
	AllowedOrigins           []string
	// Quarantine bucket, S3_* credentials are read by pkg/storage
	QuarantineBucket string
	// Security Configuration
	SecurityLogToDB bool // Whether to persist audit events to database
	ShutdownTimeout time.Duration
}

func LoadConfig() (*Config, error) {
	// Local .env only; ignored when the file does not exist
	_ = godotenv.Load()

	cfg := &Config{
		Port:     getEnv("PORT", "8080"),
		GinMode:  getEnv("GIN_MODE", "debug"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		DBUrl:    getEnv("DATABASE_URL", ""),
		// Redis/Upstash Configuration
		UpstashRedisURL:      getEnv("UPSTASH_REDIS_URL", ""),
		UpstashRedisPassword: getEnv("UPSTASH_REDIS_PASSWORD", ""),
		StatusTTLHours:       getEnvInt("SCAN_STATUS_TTL_HOURS", 24),
		// ClamAV
		ClamAVEnabled:        getEnvBool("CLAMAV_ENABLED", true),
		ClamAVSocket:         getEnv("CLAMAV_SOCKET", ""),
		ClamAVHost:           getEnv("CLAMAV_HOST", "localhost"),
		ClamAVPort:           getEnvInt("CLAMAV_PORT", 3310),
		ClamAVTimeoutSeconds: getEnvInt("CLAMAV_TIMEOUT_SECONDS", 60),
		ClamAVMaxConcurrent:  getEnvInt("CLAMAV_MAX_CONCURRENT", 4),
		// VirusTotal
		VirusTotalAPIKey:         getEnv("VIRUSTOTAL_API_KEY", ""),
		VirusTotalBaseURL:        strings.TrimRight(getEnv("VIRUSTOTAL_BASE_URL", ""), "/"),
		VirusTotalTimeoutSeconds: getEnvInt("VIRUSTOTAL_TIMEOUT_SECONDS", 15),
		// Uploads and pipeline
		MaxUploadBytes:     getEnvInt64("MAX_UPLOAD_BYTES", 100*1024*1024), // 100MB
		UploadDir:          getEnv("UPLOAD_DIR", os.TempDir()),
		MaxConcurrentScans: getEnvInt("MAX_CONCURRENT_SCANS", 4),
		CodeExtensions:     getEnvList("CODE_EXTENSIONS"),
		HeuristicRulesFile: getEnv("HEURISTIC_RULES_FILE", ""),
		// Rate Limiting Configuration (with sensible defaults)
		RateLimitWindowSeconds:   getEnvInt("RATE_LIMIT_WINDOW_SECONDS", 60),    // 1 minute window
		RateLimitGlobalThreshold: getEnvInt("RATE_LIMIT_GLOBAL_THRESHOLD", 100), // 100 requests per window
		UploadRatePerMinute:      getEnvInt("UPLOAD_RATE_PER_MINUTE", 10),
		AllowedOrigins:           getEnvList("CORS_ALLOWED_ORIGINS"),
		QuarantineBucket:         getEnv("QUARANTINE_S3_BUCKET", ""),
		SecurityLogToDB:          getEnvBool("SECURITY_LOG_TO_DB", true),
		ShutdownTimeout:          time.Duration(getEnvInt("SHUTDOWN_TIMEOUT_SECONDS", 30)) * time.Second,
	}

	if cfg.DBUrl == "" {
		log.Println("WARNING: DATABASE_URL is missing. Scan results are kept in memory only.")
	}
	if cfg.UpstashRedisURL == "" {
		log.Println("WARNING: UPSTASH_REDIS_URL not configured. Status tracking is in-memory and upload limiting is disabled.")
	}

	return cfg, nil
}

// IsProduction reports whether gin runs in release mode.
func (c *Config) IsProduction() bool {
	return c.GinMode == "release"
}

func (c *Config) RateLimitWindow() time.Duration {
	return time.Duration(c.RateLimitWindowSeconds) * time.Second
}

func (c *Config) ClamAVTimeout() time.Duration {
	return time.Duration(c.ClamAVTimeoutSeconds) * time.Second
}

func (c *Config) VirusTotalTimeout() time.Duration {
	return time.Duration(c.VirusTotalTimeoutSeconds) * time.Second
}

func (c *Config) StatusTTL() time.Duration {
	return time.Duration(c.StatusTTLHours) * time.Hour
}

// ClamAVAddress is the socket path when set, otherwise host:port.
func (c *Config) ClamAVAddress() string {
	if c.ClamAVSocket != "" {
		return c.ClamAVSocket
	}
	return c.ClamAVHost + ":" + strconv.Itoa(c.ClamAVPort)
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt returns an integer environment variable or fallback if not set/invalid
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return fallback
}

// getEnvBool returns a boolean environment variable or fallback if not set/invalid
func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return fallback
}

// getEnvList splits a comma separated variable, dropping empty items.
func getEnvList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
