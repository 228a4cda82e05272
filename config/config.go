package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Token    TokenConfig
	Twitch   TwitchConfig
	Paint    PaintConfig
	TTS      TTSConfig
	AWS      AWSConfig
	Snapshot SnapshotConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string // if set, used as-is
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// TokenConfig holds control-token signing settings.
type TokenConfig struct {
	Secret      string
	ExpireHours int
}

// TwitchConfig holds third-party chat/API settings.
type TwitchConfig struct {
	ClientID     string
	AppToken     string // bearer credential for Helix follower queries
	HelixBaseURL string // override for tests
	ChatURL      string // IRC-over-WebSocket endpoint
	PollInterval time.Duration
}

// PaintConfig holds region-fill engine settings.
type PaintConfig struct {
	Cooldown time.Duration
}

// TTSConfig holds announcement queue settings.
type TTSConfig struct {
	MaxQueue       int
	CharsPerSecond int // playback rate estimate for the fallback timer
	FallbackMargin time.Duration
}

// SnapshotConfig holds persistence write-through settings.
type SnapshotConfig struct {
	SaveQuietPeriod time.Duration
	LoadTimeout     time.Duration
}

// AWSConfig holds S3 settings for background image uploads.
type AWSConfig struct {
	Region               string
	AccessKeyID          string
	SecretAccessKey      string
	BackgroundsBucket    string
	PresignExpireMinutes int
}

// DSN returns the PostgreSQL connection string.
// If DatabaseConfig.URL is set (e.g. DATABASE_URL env), it is used as-is; otherwise built from components.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	readTimeout, _ := strconv.Atoi(getEnv("READ_TIMEOUT_SEC", "30"))
	writeTimeout, _ := strconv.Atoi(getEnv("WRITE_TIMEOUT_SEC", "30"))
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	tokenExpire, _ := strconv.Atoi(getEnv("TOKEN_EXPIRE_HOURS", "720"))

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        readTimeout,
			WriteTimeout:       writeTimeout,
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000"),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", "postgres://localhost:5432/overlay?sslmode=disable"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "overlay"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		Token: TokenConfig{
			Secret:      getEnv("TOKEN_SECRET", "change-me-in-production"),
			ExpireHours: tokenExpire,
		},
		Twitch: TwitchConfig{
			ClientID:     getEnv("TWITCH_CLIENT_ID", ""),
			AppToken:     getEnv("TWITCH_APP_TOKEN", ""),
			HelixBaseURL: getEnv("TWITCH_HELIX_URL", "https://api.twitch.tv/helix"),
			ChatURL:      getEnv("TWITCH_CHAT_URL", "wss://irc-ws.chat.twitch.tv:443"),
			PollInterval: getEnvDuration("TWITCH_FOLLOW_POLL_INTERVAL", 30*time.Second),
		},
		Paint: PaintConfig{
			Cooldown: getEnvDuration("PAINT_COOLDOWN", 60*time.Second),
		},
		TTS: TTSConfig{
			MaxQueue:       getEnvInt("TTS_MAX_QUEUE", 20),
			CharsPerSecond: getEnvInt("TTS_CHARS_PER_SECOND", 15),
			FallbackMargin: getEnvDuration("TTS_FALLBACK_MARGIN", 3*time.Second),
		},
		Snapshot: SnapshotConfig{
			SaveQuietPeriod: getEnvDuration("SNAPSHOT_SAVE_QUIET_PERIOD", time.Second),
			LoadTimeout:     getEnvDuration("SNAPSHOT_LOAD_TIMEOUT", 2*time.Second),
		},
		AWS: AWSConfig{
			Region:               getEnv("AWS_REGION", "us-east-1"),
			AccessKeyID:          getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey:      getEnv("AWS_SECRET_ACCESS_KEY", ""),
			BackgroundsBucket:    getEnv("AWS_S3_BACKGROUNDS_BUCKET", "overlay-backgrounds"),
			PresignExpireMinutes: getEnvInt("AWS_PRESIGN_EXPIRE_MINUTES", 15),
		},
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(v)); err == nil {
			return d
		}
	}
	return fallback
}
