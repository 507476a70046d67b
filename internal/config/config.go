package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Store backends.
const (
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
	BackendNone     = "none"
	BackendS3       = "s3"
	BackendMinIO    = "minio"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	Server     ServerConfig
	Store      StoreConfig
	S3         S3Config
	MinIO      MinIOConfig
	Repository RepositoryConfig
	Activity   ActivityConfig
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string //nolint:gosec // G117: DB connection config
	DBName   string
	SSLMode  string
	MaxConns int
}

// RedisConfig holds Redis connection settings. An empty Addr disables
// Redis; live queries then poll the database.
type RedisConfig struct {
	Addr     string
	Password string //nolint:gosec // G117: Redis connection config
	DB       int
}

// JWTConfig holds JWT authentication settings.
type JWTConfig struct {
	Secret string //nolint:gosec // G117: JWT signing secret config
	TTL    time.Duration
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	CORSOrigins  []string
	RateLimit    float64
	RateBurst    int
}

// StoreConfig selects the storage backends.
type StoreConfig struct {
	DocBackend   string
	BlobBackend  string
	OverflowPath string
}

// S3Config holds S3-compatible object storage settings.
type S3Config struct {
	Endpoint        string
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string //nolint:gosec // G117: object storage credentials
	PublicURL       string
	UsePathStyle    bool
}

// MinIOConfig holds MinIO settings.
type MinIOConfig struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string //nolint:gosec // G117: object storage credentials
	Bucket          string
	Region          string
	UseSSL          bool
}

// RepositoryConfig holds report persistence settings.
type RepositoryConfig struct {
	DocMaxBytes       int
	InlineBudgetBytes int64
	LoadTimeout       time.Duration
	CacheRemoteBlobs  bool
}

// ActivityConfig holds activity feed settings.
type ActivityConfig struct {
	PageSize int
}

// Load reads configuration from environment variables, after loading a
// .env file from the working directory when one exists.
// Defaults are safe for local development only. In production,
// sensitive values (JWT secret, DB password) must be set explicitly.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("ignoring unreadable .env file")
	}

	dbPort, err := getEnvInt("DOSSIER_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	dbMaxConns, err := getEnvInt("DOSSIER_DB_MAX_CONNS", 25)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	redisDB, err := getEnvInt("DOSSIER_REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	jwtTTL, err := getEnvDuration("DOSSIER_JWT_TTL", 12*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	readTimeout, err := getEnvDuration("DOSSIER_SERVER_READ_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	writeTimeout, err := getEnvDuration("DOSSIER_SERVER_WRITE_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	rateLimit, err := getEnvFloat("DOSSIER_RATE_LIMIT", 20)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	rateBurst, err := getEnvInt("DOSSIER_RATE_BURST", 40)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	s3PathStyle, err := getEnvBool("DOSSIER_S3_PATH_STYLE", false)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	minioSSL, err := getEnvBool("DOSSIER_MINIO_USE_SSL", false)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	docMaxBytes, err := getEnvInt("DOSSIER_DOC_MAX_BYTES", 1<<20)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	inlineBudget, err := getEnvInt64("DOSSIER_INLINE_BUDGET_BYTES", 800<<10)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	loadTimeout, err := getEnvDuration("DOSSIER_LOAD_TIMEOUT", 8*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	cacheRemote, err := getEnvBool("DOSSIER_CACHE_REMOTE_BLOBS", false)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	pageSize, err := getEnvInt("DOSSIER_ACTIVITY_PAGE_SIZE", 100)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	corsOrigins := getEnvList("DOSSIER_CORS_ORIGINS", []string{"http://localhost:5173"})

	cfg := &Config{
		Database: DatabaseConfig{
			Host:     getEnv("DOSSIER_DB_HOST", "localhost"),
			Port:     dbPort,
			User:     getEnv("DOSSIER_DB_USER", "dossier"),
			Password: getEnv("DOSSIER_DB_PASSWORD", ""),
			DBName:   getEnv("DOSSIER_DB_NAME", "dossier_dev"),
			SSLMode:  getEnv("DOSSIER_DB_SSLMODE", "disable"),
			MaxConns: dbMaxConns,
		},
		Redis: RedisConfig{
			Addr:     getEnv("DOSSIER_REDIS_ADDR", ""),
			Password: getEnv("DOSSIER_REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		JWT: JWTConfig{
			Secret: getEnv("DOSSIER_JWT_SECRET", ""),
			TTL:    jwtTTL,
		},
		Server: ServerConfig{
			Addr:         getEnv("DOSSIER_SERVER_ADDR", ":8080"),
			ReadTimeout:  readTimeout,
			WriteTimeout: writeTimeout,
			CORSOrigins:  corsOrigins,
			RateLimit:    rateLimit,
			RateBurst:    rateBurst,
		},
		Store: StoreConfig{
			DocBackend:   getEnv("DOSSIER_DOC_BACKEND", BackendPostgres),
			BlobBackend:  getEnv("DOSSIER_BLOB_BACKEND", BackendNone),
			OverflowPath: getEnv("DOSSIER_OVERFLOW_PATH", "dossier-overflow.db"),
		},
		S3: S3Config{
			Endpoint:        getEnv("DOSSIER_S3_ENDPOINT", ""),
			Region:          getEnv("DOSSIER_S3_REGION", "us-east-1"),
			Bucket:          getEnv("DOSSIER_S3_BUCKET", "dossier"),
			AccessKeyID:     getEnv("DOSSIER_S3_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("DOSSIER_S3_SECRET_ACCESS_KEY", ""),
			PublicURL:       getEnv("DOSSIER_S3_PUBLIC_URL", ""),
			UsePathStyle:    s3PathStyle,
		},
		MinIO: MinIOConfig{
			Endpoint:        getEnv("DOSSIER_MINIO_ENDPOINT", "localhost:9000"),
			AccessKeyID:     getEnv("DOSSIER_MINIO_ACCESS_KEY", ""),
			SecretAccessKey: getEnv("DOSSIER_MINIO_SECRET_KEY", ""),
			Bucket:          getEnv("DOSSIER_MINIO_BUCKET", "dossier"),
			Region:          getEnv("DOSSIER_MINIO_REGION", ""),
			UseSSL:          minioSSL,
		},
		Repository: RepositoryConfig{
			DocMaxBytes:       docMaxBytes,
			InlineBudgetBytes: inlineBudget,
			LoadTimeout:       loadTimeout,
			CacheRemoteBlobs:  cacheRemote,
		},
		Activity: ActivityConfig{
			PageSize: pageSize,
		},
	}

	err = cfg.validate()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	return cfg, nil
}

// validate checks required fields and value bounds.
func (c *Config) validate() error {
	// JWT secret is required (no insecure default).
	if c.JWT.Secret == "" {
		return errors.New("DOSSIER_JWT_SECRET is required")
	}
	if len(c.JWT.Secret) < 32 {
		return errors.New("DOSSIER_JWT_SECRET must be at least 32 characters")
	}

	if !slices.Contains([]string{BackendPostgres, BackendMemory}, c.Store.DocBackend) {
		return fmt.Errorf("DOSSIER_DOC_BACKEND must be postgres or memory, got %q", c.Store.DocBackend)
	}
	if !slices.Contains([]string{BackendNone, BackendS3, BackendMinIO, BackendMemory}, c.Store.BlobBackend) {
		return fmt.Errorf("DOSSIER_BLOB_BACKEND must be none, s3, minio or memory, got %q", c.Store.BlobBackend)
	}
	if c.Store.OverflowPath == "" {
		return errors.New("DOSSIER_OVERFLOW_PATH is required")
	}

	if c.Store.DocBackend == BackendPostgres && c.Database.SSLMode == "disable" {
		log.Warn().Msg("DOSSIER_DB_SSLMODE=disable is insecure for production; set to 'require' or 'verify-full'")
	}

	// Bounds checks.
	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("DOSSIER_DB_PORT must be 1-65535, got %d", c.Database.Port)
	}
	if c.Database.MaxConns < 1 {
		return fmt.Errorf("DOSSIER_DB_MAX_CONNS must be >= 1, got %d", c.Database.MaxConns)
	}
	if c.JWT.TTL <= 0 {
		return fmt.Errorf("DOSSIER_JWT_TTL must be positive, got %s", c.JWT.TTL)
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("DOSSIER_SERVER_READ_TIMEOUT must be positive, got %s", c.Server.ReadTimeout)
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("DOSSIER_SERVER_WRITE_TIMEOUT must be positive, got %s", c.Server.WriteTimeout)
	}
	if c.Server.RateLimit <= 0 {
		return fmt.Errorf("DOSSIER_RATE_LIMIT must be positive, got %g", c.Server.RateLimit)
	}
	if c.Server.RateBurst < 1 {
		return fmt.Errorf("DOSSIER_RATE_BURST must be >= 1, got %d", c.Server.RateBurst)
	}
	if c.Repository.DocMaxBytes < 1 {
		return fmt.Errorf("DOSSIER_DOC_MAX_BYTES must be >= 1, got %d", c.Repository.DocMaxBytes)
	}
	if c.Repository.InlineBudgetBytes < 1 || c.Repository.InlineBudgetBytes >= int64(c.Repository.DocMaxBytes) {
		return fmt.Errorf("DOSSIER_INLINE_BUDGET_BYTES must be between 1 and DOSSIER_DOC_MAX_BYTES-1, got %d", c.Repository.InlineBudgetBytes)
	}
	if c.Repository.LoadTimeout <= 0 {
		return fmt.Errorf("DOSSIER_LOAD_TIMEOUT must be positive, got %s", c.Repository.LoadTimeout)
	}
	if c.Activity.PageSize < 1 {
		return fmt.Errorf("DOSSIER_ACTIVITY_PAGE_SIZE must be >= 1, got %d", c.Activity.PageSize)
	}

	return nil
}

// DSN returns the PostgreSQL connection string.
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as int: %w", key, v, err)
	}
	return n, nil
}

func getEnvInt64(key string, fallback int64) (int64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as int64: %w", key, v, err)
	}
	return n, nil
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as float: %w", key, v, err)
	}
	return f, nil
}

func getEnvBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("parsing %s=%q as bool: %w", key, v, err)
	}
	return b, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as duration: %w", key, v, err)
	}
	return d, nil
}

func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
