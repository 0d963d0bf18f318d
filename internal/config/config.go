package config

import (
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	Server    ServerConfig
	MongoDB   MongoDBConfig
	Redis     RedisConfig
	Auth      AuthConfig
	Argon2    Argon2Config
	RateLimit RateLimitConfig
}

type ServerConfig struct {
	Port         string
	Host         string
	Environment  string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type MongoDBConfig struct {
	URI      string
	Database string
	Timeout  time.Duration
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// AuthConfig carries the credential lifecycle policy. Values are policy, not
// protocol: deployments tune them per environment.
type AuthConfig struct {
	SessionTTL            time.Duration
	RefreshIdleTTL        time.Duration
	RefreshAbsoluteTTL    time.Duration
	RememberMeAbsoluteTTL time.Duration
	BindUserAgent         bool
	BindIP                bool
	MaxRefreshFamilies    int
	MinPasswordLength     int
	MinPasswordClasses    int
	TOTPIssuer            string
	ReplayGrace           time.Duration
	StaleLock             time.Duration
	TombstoneTTL          time.Duration
	StoreTimeout          time.Duration
	CookieSecure          bool
	CookieSameSite        string
	GuardSecret           string
	BridgeWindow          time.Duration
	BridgeMaxAttempts     int
}

type Argon2Config struct {
	MemoryKiB   uint32
	Time        uint32
	Parallelism uint8
}

type RateLimitConfig struct {
	Enabled       bool
	UseRedis      bool
	RPS           float64
	Burst         int
	WindowSeconds int
	ResetAttempts int
	ResetWindow   time.Duration
}

// LoadConfig loads configuration from environment variables and .env file
func LoadConfig() (*Config, error) {
	_ = godotenv.Load(".env")

	viper.AutomaticEnv()

	viper.SetDefault("SERVER_PORT", "5002")
	viper.SetDefault("SERVER_HOST", "0.0.0.0")
	viper.SetDefault("SERVER_ENVIRONMENT", "development")
	viper.SetDefault("MONGODB_TIMEOUT", 10)
	viper.SetDefault("MONGODB_DATABASE", "governance")
	viper.SetDefault("SESSION_TTL_MINUTES", 15)
	viper.SetDefault("REFRESH_IDLE_TTL_HOURS", 24)
	viper.SetDefault("REFRESH_ABSOLUTE_TTL_HOURS", 72)
	viper.SetDefault("REMEMBER_ME_ABSOLUTE_TTL_HOURS", 720)
	viper.SetDefault("BIND_USER_AGENT", true)
	viper.SetDefault("BIND_IP", false)
	viper.SetDefault("MAX_REFRESH_FAMILIES", 10)
	viper.SetDefault("MIN_PASSWORD_LENGTH", 10)
	viper.SetDefault("MIN_PASSWORD_CLASSES", 3)
	viper.SetDefault("TOTP_ISSUER", "Software Governance")
	viper.SetDefault("REPLAY_GRACE_SECONDS", 5)
	viper.SetDefault("STALE_LOCK_SECONDS", 3)
	viper.SetDefault("TOMBSTONE_TTL_SECONDS", 30)
	viper.SetDefault("STORE_TIMEOUT_SECONDS", 3)
	viper.SetDefault("COOKIE_SECURE", true)
	viper.SetDefault("COOKIE_SAMESITE", "lax")
	viper.SetDefault("BRIDGE_WINDOW_SECONDS", 8)
	viper.SetDefault("BRIDGE_MAX_ATTEMPTS", 3)
	viper.SetDefault("ARGON2_MEMORY_KIB", 64*1024)
	viper.SetDefault("ARGON2_TIME", 1)
	viper.SetDefault("ARGON2_PARALLELISM", 4)
	viper.SetDefault("RATE_LIMIT_ENABLED", true)
	viper.SetDefault("RATE_LIMIT_RPS", 5.0)
	viper.SetDefault("RATE_LIMIT_BURST", 10)
	viper.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 60)
	viper.SetDefault("RESET_ATTEMPTS", 5)
	viper.SetDefault("RESET_WINDOW_SECONDS", 300)

	cfg := &Config{
		Server: ServerConfig{
			Port:         viper.GetString("SERVER_PORT"),
			Host:         viper.GetString("SERVER_HOST"),
			Environment:  viper.GetString("SERVER_ENVIRONMENT"),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		MongoDB: MongoDBConfig{
			URI:      viper.GetString("MONGODB_URI"),
			Database: viper.GetString("MONGODB_DATABASE"),
			Timeout:  time.Duration(viper.GetInt("MONGODB_TIMEOUT")) * time.Second,
		},
		Redis: RedisConfig{
			Host:     viper.GetString("REDIS_HOST"),
			Port:     viper.GetString("REDIS_PORT"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       0,
		},
		Auth: AuthConfig{
			SessionTTL:            time.Duration(viper.GetInt("SESSION_TTL_MINUTES")) * time.Minute,
			RefreshIdleTTL:        time.Duration(viper.GetInt("REFRESH_IDLE_TTL_HOURS")) * time.Hour,
			RefreshAbsoluteTTL:    time.Duration(viper.GetInt("REFRESH_ABSOLUTE_TTL_HOURS")) * time.Hour,
			RememberMeAbsoluteTTL: time.Duration(viper.GetInt("REMEMBER_ME_ABSOLUTE_TTL_HOURS")) * time.Hour,
			BindUserAgent:         viper.GetBool("BIND_USER_AGENT"),
			BindIP:                viper.GetBool("BIND_IP"),
			MaxRefreshFamilies:    viper.GetInt("MAX_REFRESH_FAMILIES"),
			MinPasswordLength:     viper.GetInt("MIN_PASSWORD_LENGTH"),
			MinPasswordClasses:    viper.GetInt("MIN_PASSWORD_CLASSES"),
			TOTPIssuer:            viper.GetString("TOTP_ISSUER"),
			ReplayGrace:           time.Duration(viper.GetInt("REPLAY_GRACE_SECONDS")) * time.Second,
			StaleLock:             time.Duration(viper.GetInt("STALE_LOCK_SECONDS")) * time.Second,
			TombstoneTTL:          time.Duration(viper.GetInt("TOMBSTONE_TTL_SECONDS")) * time.Second,
			StoreTimeout:          time.Duration(viper.GetInt("STORE_TIMEOUT_SECONDS")) * time.Second,
			CookieSecure:          viper.GetBool("COOKIE_SECURE"),
			CookieSameSite:        viper.GetString("COOKIE_SAMESITE"),
			GuardSecret:           os.Getenv("BRIDGE_GUARD_SECRET"),
			BridgeWindow:          time.Duration(viper.GetInt("BRIDGE_WINDOW_SECONDS")) * time.Second,
			BridgeMaxAttempts:     viper.GetInt("BRIDGE_MAX_ATTEMPTS"),
		},
		Argon2: Argon2Config{
			MemoryKiB:   viper.GetUint32("ARGON2_MEMORY_KIB"),
			Time:        viper.GetUint32("ARGON2_TIME"),
			Parallelism: uint8(viper.GetUint32("ARGON2_PARALLELISM")),
		},
		RateLimit: RateLimitConfig{
			Enabled:       viper.GetBool("RATE_LIMIT_ENABLED"),
			UseRedis:      viper.GetBool("RATE_LIMIT_USE_REDIS"),
			RPS:           viper.GetFloat64("RATE_LIMIT_RPS"),
			Burst:         viper.GetInt("RATE_LIMIT_BURST"),
			WindowSeconds: viper.GetInt("RATE_LIMIT_WINDOW_SECONDS"),
			ResetAttempts: viper.GetInt("RESET_ATTEMPTS"),
			ResetWindow:   time.Duration(viper.GetInt("RESET_WINDOW_SECONDS")) * time.Second,
		},
	}

	// Basic validation
	if cfg.Auth.GuardSecret == "" {
		log.Println("WARNING: BRIDGE_GUARD_SECRET is not set; set a secure value in production")
	}

	return cfg, nil
}
