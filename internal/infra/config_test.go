package infra

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xela07ax/folio-core/internal/domain"
)

const sampleConfig = `
server:
  port: 9090
chat:
  session_timeout: 10m
  idle_after: 2m
audit:
  dead_letter: redis
redis:
  addr: localhost:6379
facts:
  default_brand: folio
  skills:
    - name: Go
      category: backend
      level: expert
      aliases: [golang]
  brands:
    - key: folio
      name: Folio Studio
      contact: hi@folio.example
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig_FileAndDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 10*time.Minute, cfg.Chat.SessionTimeout)
	assert.Equal(t, 2*time.Minute, cfg.Chat.IdleAfter)
	assert.Equal(t, time.Minute, cfg.Chat.SweepInterval, "default")
	assert.Equal(t, 1024, cfg.Bus.HighWater, "default")
	assert.Equal(t, uint(5), cfg.Audit.RetryAttempts, "default")
	assert.Equal(t, "redis", cfg.Audit.DeadLetter)
	assert.False(t, cfg.Server.TrustActorHeader, "default")

	require.Len(t, cfg.Facts.Skills, 1)
	assert.Equal(t, "Go", cfg.Facts.Skills[0].Name)
	assert.Equal(t, domain.SkillLevel("expert"), cfg.Facts.Skills[0].Level)
	assert.Equal(t, []string{"golang"}, cfg.Facts.Skills[0].Aliases)
	assert.Equal(t, "folio", cfg.Facts.DefaultBrand)
	assert.Equal(t, "hi@folio.example", cfg.Facts.Brands[0].Contact)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "7000")
	t.Setenv("CHAT_MAX_MESSAGE_LENGTH", "42")

	cfg, err := LoadConfig(writeConfig(t, sampleConfig))
	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, 42, cfg.Chat.MaxMessageLength)
}

func TestLoadConfig_KeyFromEnv(t *testing.T) {
	t.Setenv("AUTH_PUBLIC_KEY_DATA", "-----BEGIN PUBLIC KEY-----")
	cfg, err := LoadConfig(writeConfig(t, sampleConfig))
	require.NoError(t, err)
	assert.Equal(t, []byte("-----BEGIN PUBLIC KEY-----"), cfg.Auth.PublicKey)
	assert.Nil(t, cfg.Auth.PrivateKey)
}

func TestLoadConfig_Invalid(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, `
chat:
  session_timeout: 1m
  idle_after: 5m
audit:
  dead_letter: kafka
`))
	require.Error(t, err)
	assert.ErrorContains(t, err, "idle_after")
	assert.ErrorContains(t, err, "kafka")

	_, err = LoadConfig(writeConfig(t, "server: [not, a, map"))
	assert.ErrorContains(t, err, "error reading config file")
}

func TestNewLogger(t *testing.T) {
	_, err := NewLogger(LoggerConfig{Level: "debug", Format: "console"})
	assert.NoError(t, err)
	_, err = NewLogger(LoggerConfig{Level: "info"})
	assert.NoError(t, err)
	_, err = NewLogger(LoggerConfig{Level: "loud"})
	assert.Error(t, err)
	_, err = NewLogger(LoggerConfig{Level: "info", Format: "xml"})
	assert.Error(t, err)
}
