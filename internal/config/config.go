package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Store backends.
const (
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
	BackendMemory   = "memory"
)

type AppConfig struct {
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`

	StoreBackend string `env:"STORE_BACKEND" envDefault:"redis"`
	RedisURL     string `env:"REDIS_URL"`
	DatabaseURL  string `env:"DATABASE_URL"`
	SQLitePath   string `env:"SQLITE_PATH" envDefault:"data/turnledger.db"`

	ChatBaseURL   string   `env:"CHAT_BASE_URL"`
	ChatWSURL     string   `env:"CHAT_WS_URL"`
	ChatRoom      string   `env:"CHAT_ROOM"`
	ChatTransport string   `env:"CHAT_TRANSPORT" envDefault:"http"`
	ChatDryRun    bool     `env:"CHAT_DRYRUN" envDefault:"false"`
	BotPrefix     string   `env:"BOT_PREFIX" envDefault:"!Civ_Bot"`
	AllowedRooms  []string `env:"ALLOWED_ROOMS" envSeparator:","`

	XUserID    string `env:"X_USER_ID"`
	XUserEmail string `env:"X_USER_EMAIL"`
	XSessionID string `env:"X_SESSION_ID"`

	NotifyTimeout     time.Duration `env:"NOTIFY_TIMEOUT" envDefault:"5s"`
	MessagesDir       string        `env:"MESSAGES_DIR"`
	MaxUpdateAttempts int           `env:"MAX_UPDATE_ATTEMPTS" envDefault:"5"`

	LogLevel   string `env:"LOG_LEVEL" envDefault:"info"`
	LogConsole bool   `env:"LOG_TO_CONSOLE" envDefault:"true"`
	LogToFile  bool   `env:"LOG_TO_FILE" envDefault:"false"`
	LogFile    string `env:"LOG_FILE" envDefault:"logs/turnledger.log"`
	LogFormat  string `env:"LOG_FORMAT" envDefault:"legacy"`
	LogCaller  bool   `env:"LOG_CALLER" envDefault:"false"`
}

// Load parses the environment and validates backend-specific requirements.
func Load() (*AppConfig, error) {
	cfg, err := env.ParseAs[AppConfig]()
	if err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *AppConfig) normalize() {
	c.StoreBackend = strings.ToLower(strings.TrimSpace(c.StoreBackend))
	c.ChatTransport = strings.ToLower(strings.TrimSpace(c.ChatTransport))
	c.BotPrefix = strings.TrimSpace(c.BotPrefix)
	rooms := c.AllowedRooms[:0]
	for _, r := range c.AllowedRooms {
		if s := strings.TrimSpace(r); s != "" {
			rooms = append(rooms, s)
		}
	}
	c.AllowedRooms = rooms
	if c.MaxUpdateAttempts <= 0 {
		c.MaxUpdateAttempts = 5
	}
	if c.NotifyTimeout <= 0 {
		c.NotifyTimeout = 5 * time.Second
	}
}

// Validate reports the first missing or inconsistent setting.
func (c *AppConfig) Validate() error {
	switch c.StoreBackend {
	case BackendRedis:
		if strings.TrimSpace(c.RedisURL) == "" {
			return errors.New("REDIS_URL is required for the redis store")
		}
	case BackendPostgres:
		if strings.TrimSpace(c.DatabaseURL) == "" {
			return errors.New("DATABASE_URL is required for the postgres store")
		}
	case BackendSQLite:
		if strings.TrimSpace(c.SQLitePath) == "" {
			return errors.New("SQLITE_PATH is required for the sqlite store")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("unsupported STORE_BACKEND %q", c.StoreBackend)
	}

	switch c.ChatTransport {
	case "http", "ws", "auto":
	default:
		return fmt.Errorf("unsupported CHAT_TRANSPORT %q", c.ChatTransport)
	}
	if c.ChatBaseURL != "" && strings.TrimSpace(c.ChatRoom) == "" {
		return errors.New("CHAT_ROOM is required when CHAT_BASE_URL is set")
	}
	if c.ChatTransport != "http" && c.ChatWSURL == "" {
		return errors.New("CHAT_WS_URL is required for ws/auto chat transport")
	}
	if c.BotPrefix == "" {
		return errors.New("BOT_PREFIX must not be empty")
	}
	return nil
}

// ChatHeaders returns the relay identity headers that are set.
func (c *AppConfig) ChatHeaders() map[string]string {
	h := map[string]string{}
	if c.XUserID != "" {
		h["X-User-Id"] = c.XUserID
	}
	if c.XUserEmail != "" {
		h["X-User-Email"] = c.XUserEmail
	}
	if c.XSessionID != "" {
		h["X-Session-Id"] = c.XSessionID
	}
	return h
}
