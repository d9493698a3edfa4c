package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds the configuration for the upload service
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Upload   UploadConfig   `yaml:"upload"`
	GitHub   GitHubConfig   `yaml:"github"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
	ServiceKey   string        `yaml:"service_key"`
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// UploadConfig holds resumable-upload tuning parameters
type UploadConfig struct {
	ScratchDir          string        `yaml:"scratch_dir"`
	ChunkSize           int64         `yaml:"chunk_size"`
	MaxChunkSize        int64         `yaml:"max_chunk_size"`
	MaxUploadSize       int64         `yaml:"max_upload_size"`
	ReleaseAssetMaxSize int64         `yaml:"release_asset_max_size"`
	LFSThreshold        int64         `yaml:"lfs_threshold"`
	InlineBlobMaxSize   int64         `yaml:"inline_blob_max_size"`
	EnableReleaseAssets bool          `yaml:"enable_release_assets"`
	EnableGitLFS        bool          `yaml:"enable_git_lfs"`
	DefaultStrategy     string        `yaml:"default_strategy"`
	IdleChunkTimeout    time.Duration `yaml:"idle_chunk_timeout"`
}

// GitHubConfig holds the remote repository backing the materialized objects
type GitHubConfig struct {
	AccessToken string `yaml:"access_token"`
	Owner       string `yaml:"owner"`
	Repo        string `yaml:"repo"`
	Branch      string `yaml:"branch"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json, console
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:  getEnvDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:  getEnvDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
			ServiceKey:   getEnv("UPLOAD_SERVICE_API_KEY", ""),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "gitvault"),
			Password: getEnv("DB_PASSWORD", "password"),
			DBName:   getEnv("DB_NAME", "gitvault"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Upload: UploadConfig{
			ScratchDir:          getEnv("UPLOAD_TEMP_DIR", "./scratch"),
			ChunkSize:           getEnvInt64("UPLOAD_CHUNK_SIZE", 25<<20),
			MaxChunkSize:        getEnvInt64("UPLOAD_MAX_CHUNK_SIZE", 50<<20),
			MaxUploadSize:       getEnvInt64("UPLOAD_MAX_SIZE", 10<<30),
			ReleaseAssetMaxSize: getEnvInt64("UPLOAD_RELEASE_MAX_BYTES", 2<<30),
			LFSThreshold:        getEnvInt64("UPLOAD_LFS_THRESHOLD", 1<<30),
			InlineBlobMaxSize:   getEnvInt64("UPLOAD_INLINE_MAX_BYTES", 256<<10),
			EnableReleaseAssets: getEnvBool("UPLOAD_ENABLE_RELEASE_ASSETS", true),
			EnableGitLFS:        getEnvBool("UPLOAD_ENABLE_GIT_LFS", false),
			DefaultStrategy:     getEnv("UPLOAD_DEFAULT_STRATEGY", "repo_chunks"),
			IdleChunkTimeout:    getEnvDuration("UPLOAD_IDLE_CHUNK_TIMEOUT", 24*time.Hour),
		},
		GitHub: GitHubConfig{
			AccessToken: getEnv("GITHUB_ACCESS_TOKEN", ""),
			Owner:       getEnv("GITHUB_STORAGE_OWNER", ""),
			Repo:        getEnv("GITHUB_STORAGE_REPO", ""),
			Branch:      getEnv("GITHUB_STORAGE_BRANCH", "main"),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}
}

// Validate checks that the fields required to run the service are populated
func (c *Config) Validate() error {
	if c.Server.ServiceKey == "" {
		return fmt.Errorf("UPLOAD_SERVICE_API_KEY is required")
	}
	if c.GitHub.AccessToken == "" {
		return fmt.Errorf("GITHUB_ACCESS_TOKEN is required")
	}
	if c.GitHub.Owner == "" || c.GitHub.Repo == "" {
		return fmt.Errorf("GITHUB_STORAGE_OWNER and GITHUB_STORAGE_REPO are required")
	}
	if c.Upload.MaxChunkSize < c.Upload.ChunkSize {
		return fmt.Errorf("UPLOAD_MAX_CHUNK_SIZE must be >= UPLOAD_CHUNK_SIZE")
	}
	return nil
}

// DatabaseURL returns a PostgreSQL connection string
func (d *DatabaseConfig) DatabaseURL() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode)
}

// RedisAddr returns the Redis address
func (r *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// Helper functions for environment variable parsing
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

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
