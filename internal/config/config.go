package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env           string
	Addr          string
	DBDSN         string
	MigrationsDir string
	TokenSecret   string
	TokenTTL      time.Duration
	LogLevel      string

	OperatorToken string

	FCMCredentialsFile string
	FCMProjectID       string

	AppleClientIDs []string
	GoogleClientID string

	LoginRatePerMinute int
	SocketRatePerSec   int
}

// Load reads configuration from the process environment, after layering in
// a .env file when one is present next to the binary.
func Load() (Config, error) {
	_ = godotenv.Load()
	return LoadFromEnv(os.Getenv)
}

func LoadFromEnv(getenv func(string) string) (Config, error) {
	cfg := Config{
		Env:                getenv("APP_ENV"),
		Addr:               getenv("APP_ADDR"),
		DBDSN:              getenv("APP_DB_DSN"),
		MigrationsDir:      getenv("APP_MIGRATIONS_DIR"),
		LogLevel:           getenv("APP_LOG_LEVEL"),
		TokenSecret:        getenv("APP_TOKEN_SECRET"),
		OperatorToken:      getenv("APP_OPERATOR_TOKEN"),
		FCMCredentialsFile: getenv("APP_FCM_CREDENTIALS_FILE"),
		FCMProjectID:       getenv("APP_FCM_PROJECT_ID"),
		GoogleClientID:     getenv("APP_GOOGLE_CLIENT_ID"),
	}

	if cfg.Env == "" {
		cfg.Env = "dev"
	}
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:8080"
	}
	if cfg.MigrationsDir == "" {
		cfg.MigrationsDir = "migrations"
	}

	ttlRaw := getenv("APP_TOKEN_TTL")
	if ttlRaw == "" {
		cfg.TokenTTL = 30 * 24 * time.Hour
	} else {
		ttl, err := time.ParseDuration(ttlRaw)
		if err != nil {
			return Config{}, fmt.Errorf("APP_TOKEN_TTL: %w", err)
		}
		if ttl <= 0 {
			return Config{}, errors.New("APP_TOKEN_TTL: must be > 0")
		}
		cfg.TokenTTL = ttl
	}

	switch cfg.Env {
	case "dev", "prod", "test":
	default:
		return Config{}, errors.New("APP_ENV: must be one of dev, test, prod")
	}

	cfg.AppleClientIDs = parseCSV(getenv("APP_APPLE_CLIENT_IDS"))

	var err error
	cfg.LoginRatePerMinute, err = parsePositiveInt(getenv("APP_LOGIN_RATE_PER_MINUTE"), 10)
	if err != nil {
		return Config{}, fmt.Errorf("APP_LOGIN_RATE_PER_MINUTE: %w", err)
	}
	cfg.SocketRatePerSec, err = parsePositiveInt(getenv("APP_SOCKET_RATE_PER_SEC"), 20)
	if err != nil {
		return Config{}, fmt.Errorf("APP_SOCKET_RATE_PER_SEC: %w", err)
	}

	if cfg.FCMCredentialsFile != "" && cfg.FCMProjectID == "" {
		return Config{}, errors.New("APP_FCM_PROJECT_ID: required when APP_FCM_CREDENTIALS_FILE is set")
	}

	if cfg.IsProd() {
		if cfg.DBDSN == "" {
			return Config{}, errors.New("APP_DB_DSN: required in prod")
		}
		if len(cfg.TokenSecret) < 32 {
			return Config{}, errors.New("APP_TOKEN_SECRET: must be at least 32 bytes in prod")
		}
	}

	return cfg, nil
}

func (c Config) IsProd() bool { return c.Env == "prod" }

func (c Config) PushEnabled() bool { return c.FCMCredentialsFile != "" }

func parseCSV(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	seen := make(map[string]bool, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}

func parsePositiveInt(s string, fallback int) (int, error) {
	if s == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, errors.New("must be > 0")
	}
	return n, nil
}
