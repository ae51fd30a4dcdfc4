package config

import (
	"fmt"
	"log"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string `mapstructure:"PORT"`
	Env         string `mapstructure:"ENV"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32  `mapstructure:"DB_MIN_CONNS"`

	MigrationsDir string `mapstructure:"MIGRATIONS_DIR"`

	// JWTSecret signs admin tokens (HS256). Required outside development.
	JWTSecret string `mapstructure:"JWT_SECRET"`

	CORSOrigins    []string `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS   float64  `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int      `mapstructure:"RATE_LIMIT_BURST"`

	FDAAPIURL      string `mapstructure:"FDA_API_URL"`
	DailyMedAPIURL string `mapstructure:"DAILYMED_API_URL"`
	PubMedAPIURL   string `mapstructure:"PUBMED_API_URL"`

	// SourceCacheTTLHours is how long raw external responses stay valid in
	// api_cache before a live call is made again.
	SourceCacheTTLHours int `mapstructure:"SOURCE_CACHE_TTL_HOURS"`
	// SafetyTTLDays is the default lifetime of a recorded safety assessment.
	SafetyTTLDays int `mapstructure:"SAFETY_TTL_DAYS"`
	// LowConfidenceTTLDays is the shortened lifetime applied when an
	// assessment's confidence score falls below the low-confidence threshold.
	LowConfidenceTTLDays int `mapstructure:"LOW_CONFIDENCE_TTL_DAYS"`

	WorkerEnabled        bool `mapstructure:"WORKER_ENABLED"`
	WorkerPollSeconds    int  `mapstructure:"WORKER_POLL_SECONDS"`
	CleanupIntervalHours int  `mapstructure:"CLEANUP_INTERVAL_HOURS"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("MIGRATIONS_DIR", "migrations")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)
	v.SetDefault("FDA_API_URL", "https://api.fda.gov/drug/label.json")
	v.SetDefault("DAILYMED_API_URL", "https://dailymed.nlm.nih.gov/dailymed/services/v2")
	v.SetDefault("PUBMED_API_URL", "https://eutils.ncbi.nlm.nih.gov/entrez/eutils")
	v.SetDefault("SOURCE_CACHE_TTL_HOURS", 24)
	v.SetDefault("SAFETY_TTL_DAYS", 30)
	v.SetDefault("LOW_CONFIDENCE_TTL_DAYS", 7)
	v.SetDefault("WORKER_ENABLED", true)
	v.SetDefault("WORKER_POLL_SECONDS", 5)
	v.SetDefault("CLEANUP_INTERVAL_HOURS", 1)

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("MIGRATIONS_DIR")
	v.BindEnv("JWT_SECRET")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("RATE_LIMIT_RPS")
	v.BindEnv("RATE_LIMIT_BURST")
	v.BindEnv("FDA_API_URL")
	v.BindEnv("DAILYMED_API_URL")
	v.BindEnv("PUBMED_API_URL")
	v.BindEnv("SOURCE_CACHE_TTL_HOURS")
	v.BindEnv("SAFETY_TTL_DAYS")
	v.BindEnv("LOW_CONFIDENCE_TTL_DAYS")
	v.BindEnv("WORKER_ENABLED")
	v.BindEnv("WORKER_POLL_SECONDS")
	v.BindEnv("CLEANUP_INTERVAL_HOURS")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() {
		log.Println("WARNING: ========================================================")
		log.Println("WARNING: Running in DEVELOPMENT mode (ENV=development).")
		log.Println("WARNING: Admin endpoints accept unauthenticated requests.")
		log.Println("WARNING: Set ENV=production and JWT_SECRET before deploying.")
		log.Println("WARNING: ========================================================")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks that the configuration is safe to run. Outside development
// a JWT secret must be set so the admin surface is actually authenticated,
// and the expiry windows must be sane.
func (c *Config) Validate() error {
	if !c.IsDev() && c.JWTSecret == "" {
		return fmt.Errorf(
			"JWT_SECRET must be set when ENV=%q. "+
				"Refusing to start with unauthenticated admin endpoints", c.Env)
	}

	if c.SafetyTTLDays < 1 {
		return fmt.Errorf("SAFETY_TTL_DAYS must be at least 1, got %d", c.SafetyTTLDays)
	}
	if c.LowConfidenceTTLDays < 1 {
		return fmt.Errorf("LOW_CONFIDENCE_TTL_DAYS must be at least 1, got %d", c.LowConfidenceTTLDays)
	}
	if c.LowConfidenceTTLDays > c.SafetyTTLDays {
		return fmt.Errorf("LOW_CONFIDENCE_TTL_DAYS (%d) must not exceed SAFETY_TTL_DAYS (%d)",
			c.LowConfidenceTTLDays, c.SafetyTTLDays)
	}
	if c.SourceCacheTTLHours < 1 {
		return fmt.Errorf("SOURCE_CACHE_TTL_HOURS must be at least 1, got %d", c.SourceCacheTTLHours)
	}
	if c.WorkerPollSeconds < 1 {
		return fmt.Errorf("WORKER_POLL_SECONDS must be at least 1, got %d", c.WorkerPollSeconds)
	}

	return nil
}
