package config

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/joho/godotenv"
	"github.com/pliu/chatcore/internal/models"
)

type Config struct {
	Addr              string        `env:"ADDR,default=:8080"`
	DBDriver          string        `env:"DB_DRIVER,default=sqlite3"`
	DBDSN             string        `env:"DB_DSN,default=chatcore.db"`
	JWTSecret         string        `env:"JWT_SECRET,required=true"`
	JWTIssuer         string        `env:"JWT_ISSUER"`
	LogLevel          string        `env:"LOG_LEVEL,default=info"`
	LogFormat         string        `env:"LOG_FORMAT,default=text"`
	ReceiptMode       string        `env:"RECEIPT_MODE,default=message"`
	SystemSender      string        `env:"SYSTEM_SENDER,default=system"`
	FanoutQueueSize   int           `env:"FANOUT_QUEUE_SIZE,default=1024"`
	FanoutMaxAttempts int           `env:"FANOUT_MAX_ATTEMPTS,default=3"`
	FanoutRetryDelay  time.Duration `env:"FANOUT_RETRY_DELAY,default=200ms"`
	WSAllowedOrigins  string        `env:"WS_ALLOWED_ORIGINS"`
}

// Load reads an optional .env file, then the process environment.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	// A missing .env is normal outside local development.
	_ = godotenv.Load(files...)

	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.DBDriver {
	case "sqlite3", "postgres":
	default:
		return fmt.Errorf("config error: unsupported DB_DRIVER %q", c.DBDriver)
	}
	if strings.TrimSpace(c.JWTSecret) == "" {
		return fmt.Errorf("config error: JWT_SECRET is required")
	}
	if _, ok := models.ParseReceiptMode(c.ReceiptMode); !ok {
		return fmt.Errorf("config error: RECEIPT_MODE must be %q or %q", models.ReceiptsPerMessage, models.ReceiptsPerRecipient)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("config error: LOG_FORMAT must be text or json")
	}
	if c.FanoutQueueSize < 1 || c.FanoutMaxAttempts < 1 || c.FanoutRetryDelay < 0 {
		return fmt.Errorf("config error: fanout settings must be positive")
	}
	return nil
}

func (c *Config) Receipts() models.ReceiptMode {
	mode, _ := models.ParseReceiptMode(c.ReceiptMode)
	return mode
}

func (c *Config) AllowedOrigins() []string {
	var origins []string
	for _, o := range strings.Split(c.WSAllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (c *Config) Logger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(c.LogLevel)}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
