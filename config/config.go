package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/joho/godotenv"
)

var loadEnv sync.Once

// Config returns the value of an environment variable, loading .env on first use.
func Config(key string) string {
	loadEnv.Do(func() {
		// A missing .env is fine, the process environment is used as is.
		_ = godotenv.Load()
	})
	return os.Getenv(key)
}

type Settings struct {
	ServerPort  string
	CORSOrigins string

	DBDriver         string
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	SQLitePath       string

	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	RabbitMQHost     string
	RabbitMQPort     string
	RabbitMQUser     string
	RabbitMQPassword string
	EventQueue       string
	EventLogFile     string

	JWTAccessKey     string
	JWTAccessExpire  int
	JWTRefreshKey    string
	JWTRefreshExpire int

	LogLevel  string
	LogFormat string

	HistoryLimit int
	SocketRate   float64
	SocketBurst  int
}

// Load reads every setting the server needs. Numeric values that fail to
// parse are reported instead of silently falling back to the default.
func Load() (*Settings, error) {
	s := &Settings{
		ServerPort:  withDefault("SERVER_PORT", "8080"),
		CORSOrigins: withDefault("CORS_ORIGINS", "*"),

		DBDriver:         strings.ToLower(withDefault("DB_DRIVER", "postgres")),
		PostgresHost:     Config("POSTGRES_HOST"),
		PostgresPort:     withDefault("POSTGRES_PORT", "5432"),
		PostgresUser:     Config("POSTGRES_USER"),
		PostgresPassword: Config("POSTGRES_PASSWORD"),
		PostgresDB:       Config("POSTGRES_DB"),
		SQLitePath:       withDefault("SQLITE_PATH", "messenger.db"),

		RedisHost:     Config("REDIS_HOST"),
		RedisPort:     withDefault("REDIS_PORT", "6379"),
		RedisPassword: Config("REDIS_PASSWORD"),

		RabbitMQHost:     Config("RABBITMQ_HOST"),
		RabbitMQPort:     withDefault("RABBITMQ_PORT", "5672"),
		RabbitMQUser:     Config("RABBITMQ_USER"),
		RabbitMQPassword: Config("RABBITMQ_PASSWORD"),
		EventQueue:       withDefault("EVENT_QUEUE", "messenger"),
		EventLogFile:     Config("EVENT_LOG_FILE"),

		JWTAccessKey:  Config("JWT_ACCESS_KEY"),
		JWTRefreshKey: Config("JWT_REFRESH_KEY"),

		LogLevel:  withDefault("LOG_LEVEL", "info"),
		LogFormat: withDefault("LOG_FORMAT", "json"),
	}

	var err error
	if s.RedisDB, err = intSetting("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if s.JWTAccessExpire, err = intSetting("JWT_ACCESS_EXPIRE", 15); err != nil {
		return nil, err
	}
	if s.JWTRefreshExpire, err = intSetting("JWT_REFRESH_EXPIRE", 60*24*7); err != nil {
		return nil, err
	}
	if s.HistoryLimit, err = intSetting("HISTORY_LIMIT", 100); err != nil {
		return nil, err
	}
	if s.SocketBurst, err = intSetting("SOCKET_BURST", 40); err != nil {
		return nil, err
	}
	if s.SocketRate, err = floatSetting("SOCKET_RATE", 20); err != nil {
		return nil, err
	}

	switch s.DBDriver {
	case "postgres", "sqlite":
	default:
		return nil, fmt.Errorf("config: unsupported DB_DRIVER %q", s.DBDriver)
	}
	if s.JWTAccessKey == "" {
		return nil, fmt.Errorf("config: JWT_ACCESS_KEY is required")
	}

	return s, nil
}

func (s *Settings) PostgresDSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		s.PostgresHost,
		s.PostgresPort,
		s.PostgresUser,
		s.PostgresPassword,
		s.PostgresDB,
	)
}

func (s *Settings) RedisAddr() string {
	return fmt.Sprintf("%s:%s", s.RedisHost, s.RedisPort)
}

func (s *Settings) RabbitMQURL() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%s/",
		s.RabbitMQUser,
		s.RabbitMQPassword,
		s.RabbitMQHost,
		s.RabbitMQPort,
	)
}

func withDefault(key, def string) string {
	if v := strings.TrimSpace(Config(key)); v != "" {
		return v
	}
	return def
}

func intSetting(key string, def int) (int, error) {
	raw := strings.TrimSpace(Config(key))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return v, nil
}

func floatSetting(key string, def float64) (float64, error) {
	raw := strings.TrimSpace(Config(key))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return v, nil
}
