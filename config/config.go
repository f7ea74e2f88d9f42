package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

type Config struct {
	Port        string `yaml:"port"`
	Environment string `yaml:"environment"`
	LogLevel    string `yaml:"log_level"`
	// Storage
	StoreDriver string `yaml:"store_driver"` // postgres | memory
	DBUrl       string `yaml:"database_url"`
	// Auth
	JWTSecret          string        `yaml:"jwt_secret"`
	TokenTTL           time.Duration `yaml:"token_ttl"`
	LoginMaxAttempts   int           `yaml:"login_max_attempts"`
	LoginAttemptWindow time.Duration `yaml:"login_attempt_window"`
	LoginBlockDuration time.Duration `yaml:"login_block_duration"`
	// CORS
	FrontendURL    string   `yaml:"frontend_url"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	// Redis/Upstash Configuration
	UpstashRedisURL      string `yaml:"redis_url"`
	UpstashRedisPassword string `yaml:"redis_password"`
	// Realtime
	RealtimeBackplane bool   `yaml:"realtime_backplane"` // fan out websocket messages through Redis pub/sub
	RealtimeChannel   string `yaml:"realtime_channel"`
	// Rate Limiting Configuration
	RateLimitWindowSeconds   int `yaml:"rate_limit_window_seconds"`
	RateLimitGlobalThreshold int `yaml:"rate_limit_global_threshold"`
	RateLimitLoginThreshold  int `yaml:"rate_limit_login_threshold"`
	RateLimitApplyThreshold  int `yaml:"rate_limit_apply_threshold"`
	// Observability
	MetricsEnabled bool `yaml:"metrics_enabled"`
}

// LoadConfig reads the environment (and .env when present), then applies the YAML file
// named by CONFIG_FILE on top of it.
func LoadConfig() (*Config, error) {
	// Load .env file (only effective locally, ignored when the file is missing)
	_ = godotenv.Load()

	cfg := &Config{
		Port:        getEnv("PORT", "8083"),
		Environment: getEnv("APP_ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "debug"),
		StoreDriver: strings.ToLower(getEnv("STORE_DRIVER", StoreDriverPostgres)),
		DBUrl:       getEnv("DATABASE_URL", ""),
		JWTSecret:   getEnv("JWT_SECRET", ""),
		TokenTTL:    getEnvDuration("TOKEN_TTL", 24*time.Hour),
		// Failed login lockout
		LoginMaxAttempts:   getEnvInt("LOGIN_MAX_ATTEMPTS", 5),
		LoginAttemptWindow: getEnvDuration("LOGIN_ATTEMPT_WINDOW", 15*time.Minute),
		LoginBlockDuration: getEnvDuration("LOGIN_BLOCK_DURATION", 15*time.Minute),
		// Strip the trailing slash so origin comparisons stay exact
		FrontendURL:    strings.TrimRight(getEnv("FRONTEND_URL", "http://localhost:3000"), "/"),
		AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", "")),
		// Redis/Upstash Configuration
		UpstashRedisURL:      getEnv("UPSTASH_REDIS_URL", ""),
		UpstashRedisPassword: getEnv("UPSTASH_REDIS_PASSWORD", ""),
		RealtimeBackplane:    getEnvBool("REALTIME_BACKPLANE", false),
		RealtimeChannel:      getEnv("REALTIME_CHANNEL", "shramsaathi:realtime"),
		// Rate Limiting Configuration (with sensible defaults)
		RateLimitWindowSeconds:   getEnvInt("RATE_LIMIT_WINDOW_SECONDS", 60),    // 1 minute window
		RateLimitGlobalThreshold: getEnvInt("RATE_LIMIT_GLOBAL_THRESHOLD", 300), // requests per window
		RateLimitLoginThreshold:  getEnvInt("RATE_LIMIT_LOGIN_THRESHOLD", 10),   // login attempts per window
		RateLimitApplyThreshold:  getEnvInt("RATE_LIMIT_APPLY_THRESHOLD", 30),   // applications per window
		MetricsEnabled:           getEnvBool("METRICS_ENABLED", true),
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := applyFile(cfg, path); err != nil {
			return nil, err
		}
	}

	if cfg.StoreDriver != StoreDriverPostgres && cfg.StoreDriver != StoreDriverMemory {
		return nil, fmt.Errorf("config: unknown STORE_DRIVER %q", cfg.StoreDriver)
	}
	if cfg.JWTSecret == "" {
		if cfg.IsProduction() {
			return nil, fmt.Errorf("config: JWT_SECRET is required in production")
		}
		log.Println("WARNING: JWT_SECRET is missing. Using an insecure development secret.")
		cfg.JWTSecret = "dev-insecure-secret"
	}
	if cfg.StoreDriver == StoreDriverPostgres && cfg.DBUrl == "" {
		log.Println("WARNING: DATABASE_URL is missing. Application may fail to connect.")
	}
	if cfg.UpstashRedisURL == "" {
		log.Println("WARNING: UPSTASH_REDIS_URL not configured. Rate limiting will use in-memory fallback.")
	}

	return cfg, nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// Origins returns every origin the CORS middleware should accept.
func (c *Config) Origins() []string {
	origins := append([]string{}, c.AllowedOrigins...)
	if c.FrontendURL != "" {
		origins = append(origins, c.FrontendURL)
	}
	return origins
}

func applyFile(cfg *Config, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()

	if err := yaml.NewDecoder(f).Decode(cfg); err != nil {
		return fmt.Errorf("config: decode %s: %w", path, err)
	}
	return nil
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

// getEnvBool returns a boolean environment variable or fallback if not set/invalid
func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimRight(strings.TrimSpace(part), "/"); p != "" {
			out = append(out, p)
		}
	}
	return out
}
