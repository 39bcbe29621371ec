package infra

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/xela07ax/folio-core/internal/resolver"
)

// Config: корневая структура конфигурации обоих бинарников.
type Config struct {
	Server   ServerConfig    `mapstructure:"server"`
	Database DatabaseConfig  `mapstructure:"database"`
	Redis    RedisConfig     `mapstructure:"redis"`
	Auth     AuthConfig      `mapstructure:"auth"`
	Chat     ChatConfig      `mapstructure:"chat"`
	Bus      BusConfig       `mapstructure:"bus"`
	Audit    AuditConfig     `mapstructure:"audit"`
	Facts    resolver.Tables `mapstructure:"facts"`
	Logger   LoggerConfig    `mapstructure:"logger"`
}

// ServerConfig описывает настройки HTTP-сервера.
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// RateLimit: сообщений чата в секунду на IP клиента; 0 отключает лимит.
	RateLimit float64 `mapstructure:"rate_limit"`
	RateBurst int     `mapstructure:"rate_burst"`
	// TrustActorHeader: X-Actor-ID выставляет доверенный прокси админки.
	TrustActorHeader bool `mapstructure:"trust_actor_header"`
}

func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig описывает хранилище аудита в PostgreSQL. Пустой URL
// оставляет записи в памяти.
type DatabaseConfig struct {
	URL          string `mapstructure:"url"`
	EnsureSchema bool   `mapstructure:"ensure_schema"`
}

// RedisConfig описывает Redis для очереди недоставленных и Pub/Sub. Пустой
// Addr отключает и то и другое.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig содержит пути к RSA ключам и настройки JWT.
type AuthConfig struct {
	PublicKeyPath  string        `mapstructure:"public_key_path"`
	PrivateKeyPath string        `mapstructure:"private_key_path"` // Только для консоли
	TokenTTL       time.Duration `mapstructure:"token_ttl"`
	PublicKey      []byte
	PrivateKey     []byte
}

type ChatConfig struct {
	SessionTimeout   time.Duration `mapstructure:"session_timeout"`
	IdleAfter        time.Duration `mapstructure:"idle_after"`
	SweepInterval    time.Duration `mapstructure:"sweep_interval"`
	MaxMessageLength int           `mapstructure:"max_message_length"`
}

type BusConfig struct {
	HighWater int `mapstructure:"high_water"`
}

// AuditConfig настраивает повторы записи, предохранитель и очередь недоставленных.
type AuditConfig struct {
	RetryAttempts   uint          `mapstructure:"retry_attempts"`
	RetryBaseDelay  time.Duration `mapstructure:"retry_base_delay"`
	RetryMaxDelay   time.Duration `mapstructure:"retry_max_delay"`
	BreakerRequests uint32        `mapstructure:"breaker_max_requests"`
	BreakerInterval time.Duration `mapstructure:"breaker_interval"`
	BreakerTimeout  time.Duration `mapstructure:"breaker_timeout"`
	BreakerFailures uint32        `mapstructure:"breaker_failures"`
	// DeadLetter выбирает бэкенд очереди: "memory" или "redis".
	DeadLetter string `mapstructure:"dead_letter"`
	PageSize   int    `mapstructure:"page_size"`
}

// LoggerConfig настраивает поведение zap логгера.
type LoggerConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
}

// LoadConfig объединяет файл, ENV и дефолты. При пустом path файл ищется
// как config.yaml в . и ./configs; если файла нет, это не ошибка.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
	}

	// SERVER_PORT=9000 перекроет server.port
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// файла нет: работаем на ENV и дефолтах
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	// PEM может прийти прямо из ENV (Docker/K8s) или из файла по пути из конфига
	cfg.Auth.PublicKey = loadKeyResource(cfg.Auth.PublicKeyPath, "AUTH_PUBLIC_KEY_DATA")
	cfg.Auth.PrivateKey = loadKeyResource(cfg.Auth.PrivateKeyPath, "AUTH_PRIVATE_KEY_DATA")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 5*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.rate_limit", 5.0)
	v.SetDefault("server.rate_burst", 10)
	v.SetDefault("auth.token_ttl", time.Hour)
	v.SetDefault("chat.session_timeout", 30*time.Minute)
	v.SetDefault("chat.idle_after", 5*time.Minute)
	v.SetDefault("chat.sweep_interval", time.Minute)
	v.SetDefault("chat.max_message_length", 2000)
	v.SetDefault("bus.high_water", 1024)
	v.SetDefault("audit.retry_attempts", 5)
	v.SetDefault("audit.retry_base_delay", 50*time.Millisecond)
	v.SetDefault("audit.retry_max_delay", 2*time.Second)
	v.SetDefault("audit.breaker_max_requests", 1)
	v.SetDefault("audit.breaker_interval", time.Minute)
	v.SetDefault("audit.breaker_timeout", 30*time.Second)
	v.SetDefault("audit.breaker_failures", 5)
	v.SetDefault("audit.dead_letter", "memory")
	v.SetDefault("audit.page_size", 200)
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
}

// Validate отклоняет настройки, с которыми сервисы не запустятся.
func (c *Config) Validate() error {
	var errs []error
	if c.Chat.SessionTimeout <= 0 {
		errs = append(errs, errors.New("chat.session_timeout must be positive"))
	}
	if c.Chat.IdleAfter < 0 || (c.Chat.IdleAfter > 0 && c.Chat.IdleAfter >= c.Chat.SessionTimeout) {
		errs = append(errs, errors.New("chat.idle_after must be shorter than chat.session_timeout"))
	}
	if c.Bus.HighWater <= 0 {
		errs = append(errs, errors.New("bus.high_water must be positive"))
	}
	if c.Audit.RetryAttempts == 0 {
		errs = append(errs, errors.New("audit.retry_attempts must be at least 1"))
	}
	switch c.Audit.DeadLetter {
	case "memory":
	case "redis":
		if c.Redis.Addr == "" {
			errs = append(errs, errors.New("audit.dead_letter=redis needs redis.addr"))
		}
	default:
		errs = append(errs, fmt.Errorf("audit.dead_letter: unknown backend %q", c.Audit.DeadLetter))
	}
	return errors.Join(errs...)
}

func loadKeyResource(path string, envDataKey string) []byte {
	if data := os.Getenv(envDataKey); data != "" {
		return []byte(data)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			return data
		}
	}
	return nil
}
