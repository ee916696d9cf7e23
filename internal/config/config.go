package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// MinSessionSecretLength はSESSION_SECRETに要求する最小バイト数。
const MinSessionSecretLength = 32

// callbackPath はGoogleからのコールバックを受けるパス。
const callbackPath = "/auth/provider/callback"

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string `env:"DATABASE_URL"`

	// OAuth / OIDC
	GoogleClientID     string `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `env:"GOOGLE_CLIENT_SECRET"`
	GoogleRedirectURL  string `env:"GOOGLE_REDIRECT_URL"`
	GoogleIssuer       string `env:"GOOGLE_ISSUER" envDefault:"https://accounts.google.com"`

	// Session
	SessionSecret string `env:"SESSION_SECRET"`
	SessionMaxAge int    `env:"SESSION_MAX_AGE" envDefault:"86400"` // 秒

	// Server
	ServerPort string `env:"SERVER_PORT" envDefault:"8080"`
	BaseURL    string `env:"BASE_URL"`

	// Cookie（CookieSecureはCOOKIE_SECUREがなければBASE_URLから決める）
	CookieSecure bool
	CookieDomain string `env:"COOKIE_DOMAIN"`

	// Logging
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// 開発用ログイン
	DevLoginEnabled bool `env:"DEV_LOGIN_ENABLED" envDefault:"false"`

	// Rate Limit（req/min）
	AuthRateLimit int `env:"AUTH_RATE_LIMIT" envDefault:"30"`
}

// rawConfig は未設定と明示的なfalseを区別するためCOOKIE_SECUREを文字列で受ける。
type rawConfig struct {
	Config
	CookieSecureRaw string `env:"COOKIE_SECURE"`
}

// Load は環境変数からConfigを読み込む。
// envFilesを指定しない場合はカレントディレクトリの.envを読み込む（存在しなくてもよい）。
// 既に設定済みの環境変数は.envで上書きしない。
// 必須環境変数が未設定の場合は未設定の変数名をすべて含むエラーを返す。
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, path := range envFiles {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
	}

	var raw rawConfig
	if err := env.Parse(&raw); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	cfg := raw.Config

	// Required fields
	var missing []string
	for _, req := range []struct {
		key   string
		value string
	}{
		{"DATABASE_URL", cfg.DatabaseURL},
		{"GOOGLE_CLIENT_ID", cfg.GoogleClientID},
		{"GOOGLE_CLIENT_SECRET", cfg.GoogleClientSecret},
		{"SESSION_SECRET", cfg.SessionSecret},
		{"BASE_URL", cfg.BaseURL},
	} {
		if strings.TrimSpace(req.value) == "" {
			missing = append(missing, req.key)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.GoogleRedirectURL == "" {
		cfg.GoogleRedirectURL = cfg.BaseURL + callbackPath
	}

	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	if raw.CookieSecureRaw != "" {
		secure, err := strconv.ParseBool(raw.CookieSecureRaw)
		if err != nil {
			return nil, fmt.Errorf("invalid COOKIE_SECURE %q: %w", raw.CookieSecureRaw, err)
		}
		cfg.CookieSecure = secure
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if len(c.SessionSecret) < MinSessionSecretLength {
		return fmt.Errorf("SESSION_SECRET must be at least %d bytes", MinSessionSecretLength)
	}
	if c.SessionMaxAge <= 0 {
		return fmt.Errorf("SESSION_MAX_AGE must be positive: %d", c.SessionMaxAge)
	}
	if c.AuthRateLimit <= 0 {
		return fmt.Errorf("AUTH_RATE_LIMIT must be positive: %d", c.AuthRateLimit)
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid LOG_LEVEL %q", c.LogLevel)
	}
	return nil
}
