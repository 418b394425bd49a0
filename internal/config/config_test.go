package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pliu/chatcore/internal/models"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.Addr)
	require.Equal(t, "sqlite3", cfg.DBDriver)
	require.Equal(t, models.ReceiptsPerMessage, cfg.Receipts())
	require.Equal(t, 3, cfg.FanoutMaxAttempts)
	require.Equal(t, 200*time.Millisecond, cfg.FanoutRetryDelay)
	require.Empty(t, cfg.AllowedOrigins())
}

func TestLoadFromDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	content := "JWT_SECRET=from-file\nRECEIPT_MODE=recipient\nWS_ALLOWED_ORIGINS=https://a.example, https://b.example\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("JWT_SECRET")
		os.Unsetenv("RECEIPT_MODE")
		os.Unsetenv("WS_ALLOWED_ORIGINS")
	})

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "from-file", cfg.JWTSecret)
	require.Equal(t, models.ReceiptsPerRecipient, cfg.Receipts())
	require.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins())
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			DBDriver: "sqlite3", JWTSecret: "x", ReceiptMode: "message", LogFormat: "text",
			FanoutQueueSize: 1, FanoutMaxAttempts: 1,
		}
	}
	cfg := valid()
	require.NoError(t, cfg.Validate())

	tests := map[string]func(*Config){
		"driver":   func(c *Config) { c.DBDriver = "mysql" },
		"secret":   func(c *Config) { c.JWTSecret = " " },
		"receipts": func(c *Config) { c.ReceiptMode = "sometimes" },
		"format":   func(c *Config) { c.LogFormat = "xml" },
		"queue":    func(c *Config) { c.FanoutQueueSize = 0 },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			c := valid()
			mutate(&c)
			require.Error(t, c.Validate())
		})
	}
}

func TestLogger(t *testing.T) {
	require.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	require.Equal(t, slog.LevelInfo, ParseLevel("nonsense"))

	var buf bytes.Buffer
	cfg := Config{LogLevel: "warn", LogFormat: "json"}
	log := cfg.Logger(&buf)
	log.Info("hidden")
	log.Warn("shown")
	require.NotContains(t, buf.String(), "hidden")
	require.Contains(t, buf.String(), `"msg":"shown"`)
}
