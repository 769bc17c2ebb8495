package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/noah-isme/convalidation-api/pkg/convalidation"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database DatabaseConfig
	Redis    RedisConfig
	CORS     CORSConfig
	Log      LogConfig
	Impact   ImpactConfig
	Matcher  MatcherConfig
	Cache    CacheConfig
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
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// ImpactConfig tunes impact batch evaluation and the optional background queue.
type ImpactConfig struct {
	Workers       int
	QueueEnabled  bool
	QueueWorkers  int
	QueueRetries  int
	DefaultLimits convalidation.CreditLimits
}

// MatcherConfig holds the similarity thresholds used for suggestions and auto-matching.
type MatcherConfig struct {
	SuggestThreshold    float64
	AutoAcceptThreshold float64
	SuggestLimit        int
}

// CacheConfig governs caching of impact summaries.
type CacheConfig struct {
	Enabled bool
	TTL     time.Duration
}

// limitKeys maps DEFAULT_LIMIT_* variables to components.
var limitKeys = map[convalidation.Component]string{
	convalidation.ComponentFundamentalRequired:  "DEFAULT_LIMIT_FUNDAMENTAL_REQUIRED",
	convalidation.ComponentFundamentalOptional:  "DEFAULT_LIMIT_FUNDAMENTAL_OPTIONAL",
	convalidation.ComponentProfessionalRequired: "DEFAULT_LIMIT_PROFESSIONAL_REQUIRED",
	convalidation.ComponentProfessionalOptional: "DEFAULT_LIMIT_PROFESSIONAL_OPTIONAL",
	convalidation.ComponentLeveling:             "DEFAULT_LIMIT_LEVELING",
	convalidation.ComponentThesis:               "DEFAULT_LIMIT_THESIS",
	convalidation.ComponentFreeElective:         "DEFAULT_LIMIT_FREE_ELECTIVE",
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
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
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
		Enabled:  v.GetBool("ENABLE_REDIS"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	limits, err := parseLimits(v)
	if err != nil {
		return nil, err
	}
	cfg.Impact = ImpactConfig{
		Workers:       v.GetInt("IMPACT_WORKERS"),
		QueueEnabled:  v.GetBool("ENABLE_IMPACT_QUEUE"),
		QueueWorkers:  v.GetInt("IMPACT_QUEUE_WORKERS"),
		QueueRetries:  v.GetInt("IMPACT_QUEUE_RETRIES"),
		DefaultLimits: limits,
	}

	cfg.Matcher = MatcherConfig{
		SuggestThreshold:    v.GetFloat64("MATCHER_SUGGEST_THRESHOLD"),
		AutoAcceptThreshold: v.GetFloat64("MATCHER_AUTO_ACCEPT_THRESHOLD"),
		SuggestLimit:        v.GetInt("MATCHER_SUGGEST_LIMIT"),
	}
	if cfg.Matcher.SuggestThreshold > cfg.Matcher.AutoAcceptThreshold {
		return nil, errors.New("MATCHER_SUGGEST_THRESHOLD must not exceed MATCHER_AUTO_ACCEPT_THRESHOLD")
	}

	cfg.Cache = CacheConfig{
		Enabled: v.GetBool("ENABLE_IMPACT_CACHE"),
		TTL:     parseDuration(v.GetString("IMPACT_CACHE_TTL"), 15*time.Minute),
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
	v.SetDefault("DB_NAME", "convalidation")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("ENABLE_REDIS", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("IMPACT_WORKERS", convalidation.DefaultWorkers)
	v.SetDefault("ENABLE_IMPACT_QUEUE", false)
	v.SetDefault("IMPACT_QUEUE_WORKERS", 1)
	v.SetDefault("IMPACT_QUEUE_RETRIES", 3)

	v.SetDefault("MATCHER_SUGGEST_THRESHOLD", convalidation.SuggestThreshold)
	v.SetDefault("MATCHER_AUTO_ACCEPT_THRESHOLD", convalidation.AutoAcceptThreshold)
	v.SetDefault("MATCHER_SUGGEST_LIMIT", convalidation.DefaultSuggestionLimit)

	for _, key := range limitKeys {
		v.SetDefault(key, "")
	}

	v.SetDefault("ENABLE_IMPACT_CACHE", false)
	v.SetDefault("IMPACT_CACHE_TTL", "15m")
}

// parseLimits reads the global default ceilings. Empty values leave a component unlimited.
func parseLimits(v *viper.Viper) (convalidation.CreditLimits, error) {
	var limits convalidation.CreditLimits
	for _, component := range convalidation.Components() {
		key := limitKeys[component]
		raw := strings.TrimSpace(v.GetString(key))
		if raw == "" {
			continue
		}
		value, err := strconv.Atoi(raw)
		if err != nil {
			return limits, errors.New(key + " must be an integer")
		}
		limits.Set(component, convalidation.Limit(value))
	}
	if err := limits.Validate(); err != nil {
		return limits, err
	}
	return limits, nil
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
