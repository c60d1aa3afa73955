package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数（および任意の .env ファイル）から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string `env:"DATABASE_URL,required,notEmpty"`

	// Token
	JWTSecret     string        `env:"JWT_SECRET,required,notEmpty"`
	UserTokenTTL  time.Duration `env:"USER_TOKEN_TTL" envDefault:"168h"`
	AdminTokenTTL time.Duration `env:"ADMIN_TOKEN_TTL" envDefault:"12h"`

	// Twilio Verify
	TwilioAccountSID string        `env:"TWILIO_ACCOUNT_SID,required,notEmpty"`
	TwilioAuthToken  string        `env:"TWILIO_AUTH_TOKEN,required,notEmpty"`
	TwilioVerifySID  string        `env:"TWILIO_VERIFY_SID,required,notEmpty"`
	TwilioTimeout    time.Duration `env:"TWILIO_TIMEOUT" envDefault:"10s"`

	// Admin
	AdminLogin    string `env:"ADMIN_LOGIN,required,notEmpty"`
	AdminPassword string `env:"ADMIN_PASSWORD,required,notEmpty"`

	// Registration
	BcryptCost              int           `env:"BCRYPT_COST" envDefault:"10"`
	RequirePhoneAttestation bool          `env:"REQUIRE_PHONE_ATTESTATION" envDefault:"true"`
	PhoneAttestationTTL     time.Duration `env:"PHONE_ATTESTATION_TTL" envDefault:"15m"`
	RedisURL                string        `env:"REDIS_URL"`

	// Password reset
	AppBaseURL     string        `env:"APP_BASE_URL" envDefault:"http://localhost:5500"`
	ResetTokenTTL  time.Duration `env:"RESET_TOKEN_TTL" envDefault:"30m"`
	ResetRetention time.Duration `env:"RESET_RETENTION" envDefault:"168h"`

	// Mail
	SMTPHost     string `env:"SMTP_HOST"`
	SMTPPort     int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPUsername string `env:"SMTP_USERNAME"`
	SMTPPassword string `env:"SMTP_PASSWORD"`
	MailFrom     string `env:"MAIL_FROM" envDefault:"no-reply@localhost"`

	// Rate Limit（req/min/IP）
	RateLimitSMS  int `env:"RATE_LIMIT_SMS" envDefault:"5"`
	RateLimitAuth int `env:"RATE_LIMIT_AUTH" envDefault:"20"`

	// CORS
	CORSAllowedOrigins   []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
	CORSAllowGitHubPages bool     `env:"CORS_ALLOW_GITHUB_PAGES" envDefault:"true"`

	// Worker
	CleanupInterval time.Duration `env:"CLEANUP_INTERVAL" envDefault:"24h"`

	// Server
	Port     string `env:"PORT" envDefault:"3000"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// Load は環境変数からConfigを読み込む。
// カレントディレクトリに .env があればその値も使うが、実際の環境変数が優先される。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	return LoadFrom(".env")
}

// LoadFrom は指定した .env ファイルと環境変数からConfigを読み込む。
// ファイルが存在しない場合は環境変数のみを使う。
func LoadFrom(dotenvPath string) (*Config, error) {
	environment, err := mergedEnvironment(dotenvPath)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, env.Options{Environment: environment}); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	cfg.CORSAllowedOrigins = trimAll(cfg.CORSAllowedOrigins)
	return cfg, nil
}

// mergedEnvironment は .env の値にプロセスの環境変数を上書きしたマップを返す。
func mergedEnvironment(dotenvPath string) (map[string]string, error) {
	merged := map[string]string{}

	if dotenvPath != "" {
		values, err := godotenv.Read(dotenvPath)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read %s: %w", dotenvPath, err)
		}
		for k, v := range values {
			merged[k] = v
		}
	}

	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			merged[k] = v
		}
	}
	return merged, nil
}

func (c *Config) validate() error {
	var problems []string

	if c.UserTokenTTL <= 0 {
		problems = append(problems, "USER_TOKEN_TTL must be positive")
	}
	if c.AdminTokenTTL <= 0 {
		problems = append(problems, "ADMIN_TOKEN_TTL must be positive")
	}
	if c.ResetTokenTTL <= 0 {
		problems = append(problems, "RESET_TOKEN_TTL must be positive")
	}
	if c.PhoneAttestationTTL <= 0 {
		problems = append(problems, "PHONE_ATTESTATION_TTL must be positive")
	}
	if c.CleanupInterval <= 0 {
		problems = append(problems, "CLEANUP_INTERVAL must be positive")
	}
	if c.RateLimitSMS < 0 || c.RateLimitAuth < 0 {
		problems = append(problems, "RATE_LIMIT_* must not be negative")
	}
	if c.SMTPHost != "" && (c.SMTPPort <= 0 || c.SMTPPort > 65535) {
		problems = append(problems, "SMTP_PORT out of range")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// MailEnabled はSMTP送信が設定されているかを返す。
func (c *Config) MailEnabled() bool {
	return c.SMTPHost != ""
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
