package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the auth client kit.
// Tags use mapstructure for Viper unmarshalling and env variable binding.
type Config struct {
	APIBaseURL  string `mapstructure:"API_BASE_URL"`
	RefreshPath string `mapstructure:"REFRESH_PATH"`
	LoginAPI    string `mapstructure:"LOGIN_API"`
	LogoutAPI   string `mapstructure:"LOGOUT_API"`
	ProfileAPI  string `mapstructure:"PROFILE_API"`

	LoginPath          string `mapstructure:"LOGIN_PATH"`
	DefaultLandingPath string `mapstructure:"DEFAULT_LANDING_PATH"`
	AccessCookie       string `mapstructure:"ACCESS_COOKIE"`
	RefreshCookie      string `mapstructure:"REFRESH_COOKIE"`

	GraceWindowMS     int      `mapstructure:"GRACE_WINDOW_MS"`
	SensitivePrefixes []string `mapstructure:"SENSITIVE_PREFIXES"`

	SessionFile       string `mapstructure:"SESSION_FILE"`
	SessionKeyHex     string `mapstructure:"SESSION_KEY_HEX"`
	TOTPSecret        string `mapstructure:"TOTP_SECRET"`
	RedisAddr         string `mapstructure:"REDIS_ADDR"`
	RedisKeyPrefix    string `mapstructure:"REDIS_KEY_PREFIX"`
	MongoURI          string `mapstructure:"MONGO_URI"`
	MongoDBName       string `mapstructure:"MONGO_DB_NAME"`
	ClaimsCacheTTLSec int    `mapstructure:"CLAIMS_CACHE_TTL_SEC"`

	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogPretty bool   `mapstructure:"LOG_PRETTY"`
}

// GraceWindow returns the session guard's grace window as a duration.
func (c *Config) GraceWindow() time.Duration {
	return time.Duration(c.GraceWindowMS) * time.Millisecond
}

// ClaimsCacheTTL returns the edge claims-cache TTL as a duration.
func (c *Config) ClaimsCacheTTL() time.Duration {
	return time.Duration(c.ClaimsCacheTTLSec) * time.Second
}

// Load reads configuration from file, environment variables, and defaults.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("authgate")
	v.SetConfigType("yaml")

	v.AddConfigPath("/etc/authgate/")
	v.AddConfigPath("$HOME/.authgate")
	v.AddConfigPath(".")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("API_BASE_URL", "https://api.novunt.com/api/v1")
	v.SetDefault("REFRESH_PATH", "/auth/refresh-token")
	v.SetDefault("LOGIN_API", "/auth/login")
	v.SetDefault("LOGOUT_API", "/auth/logout")
	v.SetDefault("PROFILE_API", "/users/me")
	v.SetDefault("LOGIN_PATH", "/login")
	v.SetDefault("DEFAULT_LANDING_PATH", "/dashboard")
	v.SetDefault("ACCESS_COOKIE", "accessToken")
	v.SetDefault("REFRESH_COOKIE", "refreshToken")
	v.SetDefault("GRACE_WINDOW_MS", 2000)
	v.SetDefault("REDIS_KEY_PREFIX", "authgate")
	v.SetDefault("MONGO_DB_NAME", "novunt_sessions")
	v.SetDefault("CLAIMS_CACHE_TTL_SEC", 300)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_PRETTY", false)

	if err := v.ReadInConfig(); err != nil {
		// ConfigFileNotFoundError is acceptable, means we use
		// defaults/env vars. Other errors should be returned.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	return &cfg, nil
}
