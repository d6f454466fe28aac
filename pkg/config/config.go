package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	CORS       CORSConfig
	Log        LogConfig
	Vouchers   VoucherConfig
	Admissions AdmissionConfig
	Calendar   CalendarConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// JWTConfig holds the shared secret used to validate staff access tokens.
type JWTConfig struct {
	Secret string
	Issuer string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// VoucherConfig governs e-voucher generation, verification and reservation lifetime.
type VoucherConfig struct {
	SessionSecret     string
	SessionTTL        time.Duration
	CleanupInterval   time.Duration
	NumberLength      int
	PINLength         int
	PINHashCost       int
	MaxBatch          int
	VerifyMaxAttempts int
	VerifyWindow      time.Duration
}

// AdmissionConfig bounds external collaborator calls and notification dispatch.
type AdmissionConfig struct {
	ExternalTimeout time.Duration
	IndexPrefix     string
	NotifyWorkers   int
	NotifyRetries   int
}

// CalendarConfig toggles read caching of academic years.
type CalendarConfig struct {
	CacheEnabled bool
	CacheTTL     time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret: v.GetString("JWT_SECRET"),
		Issuer: v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Vouchers = VoucherConfig{
		SessionSecret:     v.GetString("VOUCHER_SESSION_SECRET"),
		SessionTTL:        parseDuration(v.GetString("VOUCHER_SESSION_TTL"), 15*time.Minute),
		CleanupInterval:   parseDuration(v.GetString("VOUCHER_CLEANUP_INTERVAL"), time.Minute),
		NumberLength:      v.GetInt("VOUCHER_NUMBER_LENGTH"),
		PINLength:         v.GetInt("VOUCHER_PIN_LENGTH"),
		PINHashCost:       v.GetInt("VOUCHER_PIN_HASH_COST"),
		MaxBatch:          v.GetInt("VOUCHER_MAX_BATCH"),
		VerifyMaxAttempts: v.GetInt("VOUCHER_VERIFY_MAX_ATTEMPTS"),
		VerifyWindow:      parseDuration(v.GetString("VOUCHER_VERIFY_WINDOW"), 15*time.Minute),
	}

	cfg.Admissions = AdmissionConfig{
		ExternalTimeout: parseDuration(v.GetString("ADMISSIONS_EXTERNAL_TIMEOUT"), 5*time.Second),
		IndexPrefix:     v.GetString("ADMISSIONS_INDEX_PREFIX"),
		NotifyWorkers:   v.GetInt("ADMISSIONS_NOTIFY_WORKERS"),
		NotifyRetries:   v.GetInt("ADMISSIONS_NOTIFY_RETRIES"),
	}

	cfg.Calendar = CalendarConfig{
		CacheEnabled: v.GetBool("ENABLE_CALENDAR_CACHE"),
		CacheTTL:     parseDuration(v.GetString("CALENDAR_CACHE_TTL"), 5*time.Minute),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "school_admissions")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("VOUCHER_SESSION_SECRET", "dev_voucher_session_secret")
	v.SetDefault("VOUCHER_SESSION_TTL", "15m")
	v.SetDefault("VOUCHER_CLEANUP_INTERVAL", "1m")
	v.SetDefault("VOUCHER_NUMBER_LENGTH", 10)
	v.SetDefault("VOUCHER_PIN_LENGTH", 6)
	v.SetDefault("VOUCHER_PIN_HASH_COST", 6)
	v.SetDefault("VOUCHER_MAX_BATCH", 1000)
	v.SetDefault("VOUCHER_VERIFY_MAX_ATTEMPTS", 10)
	v.SetDefault("VOUCHER_VERIFY_WINDOW", "15m")

	v.SetDefault("ADMISSIONS_EXTERNAL_TIMEOUT", "5s")
	v.SetDefault("ADMISSIONS_INDEX_PREFIX", "IDX")
	v.SetDefault("ADMISSIONS_NOTIFY_WORKERS", 2)
	v.SetDefault("ADMISSIONS_NOTIFY_RETRIES", 3)

	v.SetDefault("ENABLE_CALENDAR_CACHE", true)
	v.SetDefault("CALENDAR_CACHE_TTL", "5m")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
