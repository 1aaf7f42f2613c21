// internal/config/config.go
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
)

// RedisConfig configures the distributed batch lock. An empty Address keeps locking in-process.
type RedisConfig struct {
	Address  string
	Password string
	DB       int
}

// Enabled reports whether a Redis address was configured.
func (c RedisConfig) Enabled() bool {
	return c.Address != ""
}

type TypesenseConfig struct {
	Host       string
	Port       int
	APIKey     string
	Collection string
}

// Enabled reports whether committed analyses should be indexed in Typesense.
func (c TypesenseConfig) Enabled() bool {
	return c.Host != "" && c.APIKey != ""
}

// AnalysisConfig holds the tunables of the extraction and persistence pipeline
type AnalysisConfig struct {
	RecommendTopN         int
	MaxParallelism        int
	RetryMaxAttempts      int
	RetryInitialBackoffMs int
	RetryMaxBackoffMs     int
	LockTTLSeconds        int
	TestCompanyName       string
	TestCompetitors       []string
	TestProducts          []string
}

type Config struct {
	Port              string
	Environment       string
	LogLevel          string
	LogFormat         string
	InngestEventKey   string
	InngestSigningKey string
	SlackWebhookURL   string
	DatabaseURL       string
	StoreDriver       string
	SQLitePath        string
	Database          DatabaseConfig
	Redis             RedisConfig
	Typesense         TypesenseConfig
	Analysis          AnalysisConfig
}

// DatabaseConfig describes the Postgres connection
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int
}

// DSN renders the lib/pq keyword/value connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func Load() *Config {
	config := &Config{
		Port:              getEnv("PORT", "8000"),
		Environment:       getEnv("ENVIRONMENT", "development"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		LogFormat:         getEnv("LOG_FORMAT", "json"),
		InngestEventKey:   os.Getenv("INNGEST_EVENT_KEY"),
		InngestSigningKey: os.Getenv("INNGEST_SIGNING_KEY"),
		SlackWebhookURL:   os.Getenv("SLACK_WEBHOOK_URL"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		StoreDriver:       strings.ToLower(getEnv("STORE_DRIVER", "postgres")),
		SQLitePath:        getEnv("SQLITE_PATH", "senso-analysis.db"),
	}

	// Parse database configuration
	dbConfig, err := parseDatabaseConfig()
	if err != nil {
		// If DATABASE_URL parsing fails, try individual env vars as fallback
		dbConfig = DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvInt("DB_PORT", 5432),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", ""),
			Name:            getEnv("DB_NAME", "senso2"),
			SSLMode:         getEnv("DB_SSLMODE", "require"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 25),
			ConnMaxLifetime: getEnvInt("DB_CONN_MAX_LIFETIME", 300),
		}
	}
	config.Database = dbConfig

	config.Redis = RedisConfig{
		Address:  os.Getenv("REDIS_ADDR"),
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       getEnvInt("REDIS_DB", 0),
	}
	config.Typesense = TypesenseConfig{
		Host:       os.Getenv("TYPESENSE_HOST"),
		Port:       getEnvInt("TYPESENSE_PORT", 8108),
		APIKey:     os.Getenv("TYPESENSE_API_KEY"),
		Collection: getEnv("TYPESENSE_COLLECTION", "response_analysis"),
	}
	config.Analysis = AnalysisConfig{
		RecommendTopN:         getEnvInt("ANALYSIS_RECOMMEND_TOP_N", 2),
		MaxParallelism:        getEnvInt("ANALYSIS_MAX_PARALLELISM", 4),
		RetryMaxAttempts:      getEnvInt("ANALYSIS_RETRY_MAX_ATTEMPTS", 3),
		RetryInitialBackoffMs: getEnvInt("ANALYSIS_RETRY_INITIAL_BACKOFF_MS", 200),
		RetryMaxBackoffMs:     getEnvInt("ANALYSIS_RETRY_MAX_BACKOFF_MS", 5000),
		LockTTLSeconds:        getEnvInt("ANALYSIS_LOCK_TTL_SECONDS", 60),
		TestCompanyName:       getEnv("TEST_COMPANY_NAME", "Test Company"),
		TestCompetitors:       getEnvList("TEST_COMPETITORS"),
		TestProducts:          getEnvList("TEST_PRODUCTS"),
	}

	return config
}

func parseDatabaseConfig() (DatabaseConfig, error) {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return DatabaseConfig{}, fmt.Errorf("DATABASE_URL not set")
	}

	parsedURL, err := url.Parse(dbURL)
	if err != nil {
		return DatabaseConfig{}, fmt.Errorf("invalid DATABASE_URL: %w", err)
	}
	if len(parsedURL.Path) < 2 {
		return DatabaseConfig{}, fmt.Errorf("DATABASE_URL has no database name")
	}

	config := DatabaseConfig{
		Host:            parsedURL.Hostname(),
		Port:            5432, // default
		User:            parsedURL.User.Username(),
		Name:            parsedURL.Path[1:], // remove leading slash
		SSLMode:         getEnv("DB_SSLMODE", "require"),
		MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 25),
		ConnMaxLifetime: getEnvInt("DB_CONN_MAX_LIFETIME", 300),
	}

	if password, ok := parsedURL.User.Password(); ok {
		config.Password = password
	}

	if parsedURL.Port() != "" {
		if port, err := strconv.Atoi(parsedURL.Port()); err == nil {
			config.Port = port
		}
	}

	return config, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvList splits a comma separated variable, dropping blanks.
func getEnvList(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
