package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/adhocore/gronx"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	AppName  string
	Env      string
	LogLevel string
	Host     string
	Port     int

	StoreDriver string
	SQLitePath  string
	DatabaseURL string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	JWTSecret      string
	InternalAPIKey string
	CORSOrigins    []string

	TypingWindow      time.Duration
	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration
	SendBuffer        int
	SocketRate        float64
	SocketBurst       int

	NotifyWorkers int
	NotifyQueue   int

	VAPIDPublicKey  string
	VAPIDPrivateKey string
	VAPIDSubject    string
	PushTTL         int

	SearchLimit        int
	PinnedDisplayLimit int
	MaxBodyRunes       int

	RetentionEnabled bool
	RetentionCron    string
	RetentionPeriod  time.Duration
}

var defaults = map[string]any{
	"APP_NAME":  "campus realtime",
	"APP_ENV":   "development",
	"LOG_LEVEL": "info",
	"HTTP_HOST": "0.0.0.0",
	"HTTP_PORT": 8000,

	"STORE_DRIVER":      "sqlite",
	"SQLITE_PATH":       "realtime.db",
	"POSTGRES_HOST":     "localhost",
	"POSTGRES_PORT":     "5432",
	"POSTGRES_USER":     "postgres",
	"POSTGRES_PASSWORD": "postgres",
	"POSTGRES_DB":       "campus",

	"REDIS_ADDR":     "",
	"REDIS_PASSWORD": "",
	"REDIS_DB":       0,

	"JWT_SECRET":       "",
	"INTERNAL_API_KEY": "",
	"CORS_ORIGINS":     "http://localhost:3000,http://localhost:5173",

	"TYPING_WINDOW":      "2s",
	"HEARTBEAT_INTERVAL": "25s",
	"HEARTBEAT_TIMEOUT":  "60s",
	"SEND_BUFFER":        256,
	"SOCKET_RATE":        20.0,
	"SOCKET_BURST":       40,

	"NOTIFY_WORKERS": 8,
	"NOTIFY_QUEUE":   1024,

	"VAPID_PUBLIC_KEY":  "",
	"VAPID_PRIVATE_KEY": "",
	"VAPID_SUBJECT":     "mailto:admin@localhost",
	"PUSH_TTL":          86400,

	"SEARCH_LIMIT":         50,
	"PINNED_DISPLAY_LIMIT": 5,
	"MAX_BODY_RUNES":       5000,

	"RETENTION_ENABLED": false,
	"RETENTION_CRON":    "0 3 * * *",
	"RETENTION_PERIOD":  "720h",
}

// Load reads configuration from the environment, an optional .env file and an
// optional YAML file named by CONFIG_FILE. Environment variables win.
func Load() (*Config, error) {
	_ = godotenv.Load(".env")
	return load(viper.New())
}

func load(v *viper.Viper) (*Config, error) {
	for k, def := range defaults {
		v.SetDefault(k, def)
	}
	v.AutomaticEnv()

	if path := v.GetString("CONFIG_FILE"); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(v.GetString("POSTGRES_USER"), v.GetString("POSTGRES_PASSWORD")),
		Host:     fmt.Sprintf("%s:%s", v.GetString("POSTGRES_HOST"), v.GetString("POSTGRES_PORT")),
		Path:     v.GetString("POSTGRES_DB"),
		RawQuery: "sslmode=disable",
	}

	cfg := &Config{
		AppName:  v.GetString("APP_NAME"),
		Env:      v.GetString("APP_ENV"),
		LogLevel: v.GetString("LOG_LEVEL"),
		Host:     v.GetString("HTTP_HOST"),
		Port:     v.GetInt("HTTP_PORT"),

		StoreDriver: strings.ToLower(v.GetString("STORE_DRIVER")),
		SQLitePath:  v.GetString("SQLITE_PATH"),
		DatabaseURL: u.String(),

		RedisAddr:     v.GetString("REDIS_ADDR"),
		RedisPassword: v.GetString("REDIS_PASSWORD"),
		RedisDB:       v.GetInt("REDIS_DB"),

		JWTSecret:      v.GetString("JWT_SECRET"),
		InternalAPIKey: v.GetString("INTERNAL_API_KEY"),
		CORSOrigins:    splitList(v.GetString("CORS_ORIGINS")),

		TypingWindow:      v.GetDuration("TYPING_WINDOW"),
		HeartbeatInterval: v.GetDuration("HEARTBEAT_INTERVAL"),
		HeartbeatTimeout:  v.GetDuration("HEARTBEAT_TIMEOUT"),
		SendBuffer:        v.GetInt("SEND_BUFFER"),
		SocketRate:        v.GetFloat64("SOCKET_RATE"),
		SocketBurst:       v.GetInt("SOCKET_BURST"),

		NotifyWorkers: v.GetInt("NOTIFY_WORKERS"),
		NotifyQueue:   v.GetInt("NOTIFY_QUEUE"),

		VAPIDPublicKey:  v.GetString("VAPID_PUBLIC_KEY"),
		VAPIDPrivateKey: v.GetString("VAPID_PRIVATE_KEY"),
		VAPIDSubject:    v.GetString("VAPID_SUBJECT"),
		PushTTL:         v.GetInt("PUSH_TTL"),

		SearchLimit:        v.GetInt("SEARCH_LIMIT"),
		PinnedDisplayLimit: v.GetInt("PINNED_DISPLAY_LIMIT"),
		MaxBodyRunes:       v.GetInt("MAX_BODY_RUNES"),

		RetentionEnabled: v.GetBool("RETENTION_ENABLED"),
		RetentionCron:    v.GetString("RETENTION_CRON"),
		RetentionPeriod:  v.GetDuration("RETENTION_PERIOD"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required keys and value ranges.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.InternalAPIKey == "" {
		return fmt.Errorf("INTERNAL_API_KEY is required")
	}
	switch c.StoreDriver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("STORE_DRIVER must be sqlite or postgres, got %q", c.StoreDriver)
	}
	if c.TypingWindow <= 0 {
		return fmt.Errorf("TYPING_WINDOW must be positive")
	}
	if c.HeartbeatInterval <= 0 || c.HeartbeatTimeout <= c.HeartbeatInterval {
		return fmt.Errorf("HEARTBEAT_TIMEOUT must exceed HEARTBEAT_INTERVAL")
	}
	if c.NotifyWorkers <= 0 || c.NotifyQueue <= 0 {
		return fmt.Errorf("NOTIFY_WORKERS and NOTIFY_QUEUE must be positive")
	}
	if c.RetentionEnabled && !gronx.IsValid(c.RetentionCron) {
		return fmt.Errorf("invalid RETENTION_CRON expression: %s", c.RetentionCron)
	}
	return nil
}

// PushEnabled reports whether VAPID keys are configured.
func (c *Config) PushEnabled() bool {
	return c.VAPIDPublicKey != "" && c.VAPIDPrivateKey != ""
}

func (c *Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
