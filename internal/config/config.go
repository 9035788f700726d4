// Package config provides configuration for the application
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Storage backends
const (
	StorageLocal = "local"
	StorageS3    = "s3"
)

// Config holds all configuration for the application
type Config struct {
	Database DatabaseConfig
	Redis    RedisConfig
	Server   ServerConfig
	Logging  LoggingConfig
	CORS     CORSConfig
	JWT      JWTConfig
	Storage  StorageConfig
	Assets   AssetsConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
}

// RedisConfig holds Redis connection settings.
// An empty Host disables Redis and view debouncing stays in process.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// Enabled reports whether a Redis server is configured
func (c RedisConfig) Enabled() bool {
	return c.Host != ""
}

// Addr returns the host:port of the Redis server
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ServerConfig holds server settings
type ServerConfig struct {
	Port int
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level string
}

// CORSConfig holds CORS settings
type CORSConfig struct {
	AllowedOrigins []string
}

// JWTConfig holds the secret used to verify access tokens
type JWTConfig struct {
	Secret string
}

// StorageConfig selects and configures the blob store
type StorageConfig struct {
	Backend       string
	MediaBasePath string
	MediaBaseURL  string
	S3            S3Config
}

// S3Config holds object storage settings
type S3Config struct {
	Endpoint     string
	Region       string
	Bucket       string
	AccessKey    string
	SecretKey    string
	UsePathStyle bool
}

// AssetsConfig holds asset service limits
type AssetsConfig struct {
	ViewDebounceWindow time.Duration
	TxTimeout          time.Duration
	MaxUploadSize      int64
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// .env is optional, real environment variables take precedence
	_ = godotenv.Load()

	cfg := &Config{}

	// Database configuration
	dbHost := os.Getenv("DB_HOST")
	if dbHost == "" {
		return nil, fmt.Errorf("DB_HOST is required")
	}
	cfg.Database.Host = dbHost

	dbPortStr := os.Getenv("DB_PORT")
	if dbPortStr == "" {
		return nil, fmt.Errorf("DB_PORT is required")
	}
	dbPort, err := strconv.Atoi(dbPortStr)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_PORT: %w", err)
	}
	cfg.Database.Port = dbPort

	dbUser := os.Getenv("DB_USER")
	if dbUser == "" {
		return nil, fmt.Errorf("DB_USER is required")
	}
	cfg.Database.User = dbUser

	dbPassword := os.Getenv("DB_PASSWORD")
	if dbPassword == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}
	cfg.Database.Password = dbPassword

	dbName := os.Getenv("DB_NAME")
	if dbName == "" {
		return nil, fmt.Errorf("DB_NAME is required")
	}
	cfg.Database.DBName = dbName

	// Server configuration
	serverPortStr := os.Getenv("SERVER_PORT")
	if serverPortStr == "" {
		serverPortStr = "8080" // default port
	}
	serverPort, err := strconv.Atoi(serverPortStr)
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_PORT: %w", err)
	}
	cfg.Server.Port = serverPort

	// Logging configuration
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info" // default level
	}
	cfg.Logging.Level = logLevel

	// CORS configuration
	cfg.CORS.AllowedOrigins = parseOrigins(os.Getenv("CORS_ALLOWED_ORIGINS"))

	// JWT configuration
	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	cfg.JWT.Secret = jwtSecret

	// Storage configuration
	if err := loadStorage(cfg); err != nil {
		return nil, err
	}

	// Redis configuration (optional)
	cfg.Redis.Host = os.Getenv("REDIS_HOST")
	redisPortStr := os.Getenv("REDIS_PORT")
	if redisPortStr == "" {
		redisPortStr = "6379" // default
	}
	redisPort, err := strconv.Atoi(redisPortStr)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_PORT: %w", err)
	}
	cfg.Redis.Port = redisPort

	cfg.Redis.Password = os.Getenv("REDIS_PASSWORD") // optional

	redisDBStr := os.Getenv("REDIS_DB")
	if redisDBStr == "" {
		redisDBStr = "0" // default
	}
	redisDB, err := strconv.Atoi(redisDBStr)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}
	cfg.Redis.DB = redisDB

	// Asset service limits
	window, err := durationEnv("VIEW_DEBOUNCE_WINDOW", 300*time.Second)
	if err != nil {
		return nil, err
	}
	cfg.Assets.ViewDebounceWindow = window

	txTimeout, err := durationEnv("TX_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}
	cfg.Assets.TxTimeout = txTimeout

	maxUploadStr := os.Getenv("MAX_UPLOAD_SIZE")
	if maxUploadStr == "" {
		cfg.Assets.MaxUploadSize = 50 * 1024 * 1024 // 50MB
	} else {
		maxUpload, err := strconv.ParseInt(maxUploadStr, 10, 64)
		if err != nil || maxUpload <= 0 {
			return nil, fmt.Errorf("invalid MAX_UPLOAD_SIZE: %q", maxUploadStr)
		}
		cfg.Assets.MaxUploadSize = maxUpload
	}

	return cfg, nil
}

func loadStorage(cfg *Config) error {
	backend := strings.ToLower(os.Getenv("STORAGE_BACKEND"))
	if backend == "" {
		backend = StorageLocal
	}
	cfg.Storage.Backend = backend

	cfg.Storage.MediaBaseURL = os.Getenv("MEDIA_BASE_URL")
	if cfg.Storage.MediaBaseURL == "" {
		cfg.Storage.MediaBaseURL = fmt.Sprintf("http://localhost:%d", cfg.Server.Port)
	}

	switch backend {
	case StorageLocal:
		cfg.Storage.MediaBasePath = os.Getenv("MEDIA_BASE_PATH")
		if cfg.Storage.MediaBasePath == "" {
			return fmt.Errorf("MEDIA_BASE_PATH is required for local storage")
		}
	case StorageS3:
		cfg.Storage.S3.Endpoint = os.Getenv("S3_ENDPOINT") // optional, AWS when empty
		cfg.Storage.S3.Region = os.Getenv("S3_REGION")
		if cfg.Storage.S3.Region == "" {
			cfg.Storage.S3.Region = "us-east-1" // default
		}
		cfg.Storage.S3.Bucket = os.Getenv("S3_BUCKET")
		if cfg.Storage.S3.Bucket == "" {
			return fmt.Errorf("S3_BUCKET is required for s3 storage")
		}
		cfg.Storage.S3.AccessKey = os.Getenv("S3_ACCESS_KEY")
		cfg.Storage.S3.SecretKey = os.Getenv("S3_SECRET_KEY")

		if pathStyle := os.Getenv("S3_USE_PATH_STYLE"); pathStyle != "" {
			v, err := strconv.ParseBool(pathStyle)
			if err != nil {
				return fmt.Errorf("invalid S3_USE_PATH_STYLE: %w", err)
			}
			cfg.Storage.S3.UsePathStyle = v
		}
	default:
		return fmt.Errorf("invalid STORAGE_BACKEND %q: must be %s or %s", backend, StorageLocal, StorageS3)
	}

	return nil
}

// parseOrigins splits a comma separated origin list, defaulting to all origins
func parseOrigins(raw string) []string {
	origins := make([]string, 0)
	for _, origin := range strings.Split(raw, ",") {
		origin = strings.TrimSpace(origin)
		if origin != "" {
			origins = append(origins, origin)
		}
	}
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		// plain integers are seconds
		secs, convErr := strconv.Atoi(raw)
		if convErr != nil {
			return 0, fmt.Errorf("invalid %s: %w", key, err)
		}
		d = time.Duration(secs) * time.Second
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return d, nil
}

// DSN returns the database connection string.
// multiStatements lets golang-migrate apply multi-statement migration files.
func (c *Config) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4&multiStatements=true",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.DBName,
	)
}
