// Package config provides application configuration management using environment variables.
package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig
	Twitch   TwitchConfig
	Spotify  SpotifyConfig
	Discord  DiscordConfig
	CDN      CDNConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Cache    CacheConfig
	Quota    QuotaConfig
	Security SecurityConfig
	Logging  LoggingConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	HTTPPort       string
	Host           string
	Env            string
	PublicBaseURL  string
	AllowedOrigins []string
	RequestTimeout time.Duration
}

// TwitchConfig holds Twitch application and broadcaster settings
type TwitchConfig struct {
	ClientID         string
	ClientSecret     string
	BroadcasterID    string
	BroadcasterLogin string
	AdminID          string
	AdminRedirectURI string
	AdminScopes      []string
	EventSubSecret   string
}

// SpotifyConfig holds the playlist owner's Spotify application credentials
type SpotifyConfig struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	PlaylistID   string
}

// DiscordConfig holds the notification webhook
type DiscordConfig struct {
	WebhookURL string
}

// CDNConfig holds optional edge cache purge settings
type CDNConfig struct {
	PurgeURL string
	ZoneID   string
	APIToken string
	Paths    []string
}

// Enabled reports whether edge purging is configured
func (c CDNConfig) Enabled() bool {
	return c.PurgeURL != "" && c.APIToken != ""
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Host         string
	Port         string
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

// RedisConfig holds the key-value store connection
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// CacheConfig controls the cached playlist and ownership views
type CacheConfig struct {
	Freshness time.Duration
	EntryTTL  time.Duration
}

// QuotaConfig holds the per-tier daily track-add ceilings
type QuotaConfig struct {
	Tier1Daily int
	Tier2Daily int
	Tier3Daily int
	CounterTTL time.Duration
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	TokenEncryptionKey []byte
	StateExpiryMinutes int
	ReconcileInterval  time.Duration
	PendingGrace       time.Duration
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// Load loads configuration from environment variables
// It optionally loads from a .env file if it exists
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	cfg.Server = ServerConfig{
		HTTPPort:       getEnv("HTTP_PORT", "8080"),
		Host:           getEnv("SERVER_HOST", "localhost"),
		Env:            getEnv("ENVIRONMENT", "development"),
		PublicBaseURL:  getEnv("PUBLIC_BASE_URL", "http://localhost:8080"),
		AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", "*"), ","),
		RequestTimeout: time.Duration(getEnvInt("REQUEST_TIMEOUT_SECONDS", 30)) * time.Second,
	}

	cfg.Twitch = TwitchConfig{
		ClientID:         getEnv("TWITCH_CLIENT_ID", ""),
		ClientSecret:     getEnv("TWITCH_CLIENT_SECRET", ""),
		BroadcasterID:    getEnv("TWITCH_BROADCASTER_ID", ""),
		BroadcasterLogin: getEnv("TWITCH_BROADCASTER_LOGIN", "august"),
		AdminID:          getEnv("TWITCH_ADMIN_ID", "194331558"),
		AdminRedirectURI: getEnv("TWITCH_ADMIN_REDIRECT_URI", ""),
		AdminScopes:      splitList(getEnv("TWITCH_ADMIN_SCOPES", "channel:read:subscriptions"), " "),
		EventSubSecret:   getEnv("TWITCH_EVENTSUB_SECRET", ""),
	}

	cfg.Spotify = SpotifyConfig{
		ClientID:     getEnv("SPOTIFY_CLIENT_ID", ""),
		ClientSecret: getEnv("SPOTIFY_CLIENT_SECRET", ""),
		RefreshToken: getEnv("SPOTIFY_REFRESH_TOKEN", ""),
		PlaylistID:   getEnv("SPOTIFY_PLAYLIST_ID", "5ydVffCAhJeKwVdnQWIm5E"),
	}

	cfg.Discord = DiscordConfig{
		WebhookURL: getEnv("DISCORD_WEBHOOK_URL", ""),
	}

	cfg.CDN = CDNConfig{
		PurgeURL: getEnv("CDN_PURGE_URL", ""),
		ZoneID:   getEnv("CDN_ZONE_ID", ""),
		APIToken: getEnv("CDN_API_TOKEN", ""),
		Paths:    splitList(getEnv("CDN_PURGE_PATHS", "/api/spotify/playlist,/api/spotify/ownership"), ","),
	}

	cfg.Database = DatabaseConfig{
		Host:         getEnv("DB_HOST", "localhost"),
		Port:         getEnv("DB_PORT", "5432"),
		User:         getEnv("DB_USER", "fansite"),
		Password:     getEnv("DB_PASSWORD", ""),
		Name:         getEnv("DB_NAME", "fansite_db"),
		SSLMode:      getEnv("DB_SSLMODE", "disable"),
		MaxOpenConns: getEnvInt("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns: getEnvInt("DB_MAX_IDLE_CONNS", 5),
	}

	cfg.Redis = RedisConfig{
		Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
		Password: getEnv("REDIS_PASSWORD", ""),
		DB:       getEnvInt("REDIS_DB", 0),
	}

	cfg.Cache = CacheConfig{
		Freshness: time.Duration(getEnvInt("CACHE_FRESHNESS_SECONDS", 60)) * time.Second,
		EntryTTL:  time.Duration(getEnvInt("CACHE_ENTRY_TTL_HOURS", 24)) * time.Hour,
	}

	cfg.Quota = QuotaConfig{
		Tier1Daily: getEnvInt("QUOTA_TIER1_DAILY", 3),
		Tier2Daily: getEnvInt("QUOTA_TIER2_DAILY", 5),
		Tier3Daily: getEnvInt("QUOTA_TIER3_DAILY", 10),
		CounterTTL: time.Duration(getEnvInt("QUOTA_COUNTER_TTL_HOURS", 48)) * time.Hour,
	}

	encryptionKey, err := hex.DecodeString(getEnv("TOKEN_ENCRYPTION_KEY", ""))
	if err != nil {
		return nil, fmt.Errorf("invalid TOKEN_ENCRYPTION_KEY: must be a hex-encoded string: %w", err)
	}

	cfg.Security = SecurityConfig{
		TokenEncryptionKey: encryptionKey,
		StateExpiryMinutes: getEnvInt("STATE_EXPIRY_MINUTES", 10),
		ReconcileInterval:  time.Duration(getEnvInt("RECONCILE_INTERVAL_MINUTES", 5)) * time.Minute,
		PendingGrace:       time.Duration(getEnvInt("PENDING_GRACE_MINUTES", 2)) * time.Minute,
	}

	cfg.Logging = LoggingConfig{
		Level:  getEnv("LOG_LEVEL", "info"),
		Format: getEnv("LOG_FORMAT", "json"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Twitch.ClientID == "" {
		return fmt.Errorf("TWITCH_CLIENT_ID is required")
	}
	if c.Twitch.ClientSecret == "" {
		return fmt.Errorf("TWITCH_CLIENT_SECRET is required")
	}
	if c.Spotify.PlaylistID == "" {
		return fmt.Errorf("SPOTIFY_PLAYLIST_ID is required")
	}

	if c.Database.User == "" {
		return fmt.Errorf("DB_USER is required")
	}
	if c.Database.Password == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}
	if c.Database.Name == "" {
		return fmt.Errorf("DB_NAME is required")
	}
	if c.Redis.Addr == "" {
		return fmt.Errorf("REDIS_ADDR is required")
	}

	if c.Cache.Freshness <= 0 {
		return fmt.Errorf("CACHE_FRESHNESS_SECONDS must be positive")
	}
	if c.Cache.EntryTTL < c.Cache.Freshness {
		return fmt.Errorf("CACHE_ENTRY_TTL_HOURS must not be shorter than the freshness window")
	}

	if c.Quota.Tier1Daily <= 0 || c.Quota.Tier2Daily < c.Quota.Tier1Daily || c.Quota.Tier3Daily < c.Quota.Tier2Daily {
		return fmt.Errorf("QUOTA_TIER*_DAILY must be positive and ascending by tier")
	}
	if c.Quota.CounterTTL < 24*time.Hour {
		return fmt.Errorf("QUOTA_COUNTER_TTL_HOURS must be at least 24")
	}

	if len(c.Security.TokenEncryptionKey) != 32 {
		return fmt.Errorf("TOKEN_ENCRYPTION_KEY must be exactly 32 bytes (64 hex characters) for AES-256")
	}
	if c.Security.StateExpiryMinutes <= 0 {
		return fmt.Errorf("STATE_EXPIRY_MINUTES must be positive")
	}
	if c.Security.ReconcileInterval <= 0 {
		return fmt.Errorf("RECONCILE_INTERVAL_MINUTES must be positive")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("LOG_LEVEL must be one of: debug, info, warn, error")
	}
	validLogFormats := map[string]bool{"json": true, "console": true}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("LOG_FORMAT must be one of: json, console")
	}

	return nil
}

// GetDSN returns the database connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// getEnv retrieves an environment variable with a fallback default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	value, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return value
}

func splitList(value, sep string) []string {
	var out []string
	for _, part := range strings.Split(value, sep) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
