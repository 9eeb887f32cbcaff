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
	Env         string
	Port        int
	APIPrefix   string
	ServiceName string

	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	CORS      CORSConfig
	Log       LogConfig
	Scheduler SchedulerConfig
	Cache     ResultCacheConfig
}

type DatabaseConfig struct {
	Enabled      bool
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	AutoMigrate  bool
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// JWTConfig controls bearer authentication on write routes.
type JWTConfig struct {
	Enabled bool
	Secret  string
	Issuer  string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// SchedulerConfig tunes the placement engine and its outer surfaces.
type SchedulerConfig struct {
	ProposalTTL  time.Duration
	PhaseABudget time.Duration
	PhaseBBudget time.Duration
	TotalBudget  time.Duration
	MinClassSize int
	MaxClassSize int
	SoftWeight   int
	MaxStudents  int
	JobWorkers   int
	JobBuffer    int
	JobRetries   int
}

// ResultCacheConfig governs the Redis cache of generated schedules.
type ResultCacheConfig struct {
	Enabled bool
	TTL     time.Duration
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
	cfg.ServiceName = v.GetString("SERVICE_NAME")

	cfg.Database = DatabaseConfig{
		Enabled:      v.GetBool("ENABLE_PERSISTENCE"),
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
		AutoMigrate:  v.GetBool("DB_AUTO_MIGRATE"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Enabled: v.GetBool("AUTH_ENABLED"),
		Secret:  v.GetString("JWT_SECRET"),
		Issuer:  v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Scheduler = SchedulerConfig{
		ProposalTTL:  parseDuration(v.GetString("SCHEDULER_PROPOSAL_TTL"), 30*time.Minute),
		PhaseABudget: parseDuration(v.GetString("SCHEDULER_PHASE_A_BUDGET"), 5*time.Second),
		PhaseBBudget: parseDuration(v.GetString("SCHEDULER_PHASE_B_BUDGET"), 10*time.Second),
		TotalBudget:  parseDuration(v.GetString("SCHEDULER_TOTAL_BUDGET"), 15*time.Second),
		MinClassSize: v.GetInt("SCHEDULER_MIN_CLASS_SIZE"),
		MaxClassSize: v.GetInt("SCHEDULER_MAX_CLASS_SIZE"),
		SoftWeight:   v.GetInt("SCHEDULER_SOFT_WEIGHT"),
		MaxStudents:  v.GetInt("SCHEDULER_MAX_STUDENTS"),
		JobWorkers:   v.GetInt("SCHEDULER_JOB_WORKERS"),
		JobBuffer:    v.GetInt("SCHEDULER_JOB_BUFFER"),
		JobRetries:   v.GetInt("SCHEDULER_JOB_RETRIES"),
	}

	cfg.Cache = ResultCacheConfig{
		Enabled: v.GetBool("ENABLE_RESULT_CACHE"),
		TTL:     parseDuration(v.GetString("RESULT_CACHE_TTL"), time.Hour),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")
	v.SetDefault("SERVICE_NAME", "lesson-scheduler-api")

	v.SetDefault("ENABLE_PERSISTENCE", false)
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "lesson_scheduler")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_AUTO_MIGRATE", true)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("AUTH_ENABLED", false)
	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("SCHEDULER_PROPOSAL_TTL", "30m")
	v.SetDefault("SCHEDULER_PHASE_A_BUDGET", "5s")
	v.SetDefault("SCHEDULER_PHASE_B_BUDGET", "10s")
	v.SetDefault("SCHEDULER_TOTAL_BUDGET", "15s")
	v.SetDefault("SCHEDULER_MIN_CLASS_SIZE", 2)
	v.SetDefault("SCHEDULER_MAX_CLASS_SIZE", 3)
	v.SetDefault("SCHEDULER_SOFT_WEIGHT", 3)
	v.SetDefault("SCHEDULER_MAX_STUDENTS", 200)
	v.SetDefault("SCHEDULER_JOB_WORKERS", 2)
	v.SetDefault("SCHEDULER_JOB_BUFFER", 16)
	v.SetDefault("SCHEDULER_JOB_RETRIES", 1)

	v.SetDefault("ENABLE_RESULT_CACHE", false)
	v.SetDefault("RESULT_CACHE_TTL", "1h")
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
