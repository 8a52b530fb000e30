package config

import (
	"strings"

	"github.com/caarlos0/env/v10"
)

// Config centraliza la configuración del servicio.
type Config struct {
	HTTPPort    string `env:"HTTP_PORT" envDefault:"8080"`
	Environment string `env:"APP_ENV" envDefault:"development"`
	DatabaseURL string `env:"DATABASE_URL,required"`

	// Secreto para derivar los hashes de búsqueda de tokens de un solo uso.
	// Sin él no se puede emitir ni verificar ningún token.
	TokenSecret string `env:"TOKEN_SECRET,required"`

	JWTSecret            string `env:"JWT_SECRET,required"`
	JWTAccessTTLMinutes  int    `env:"JWT_ACCESS_TTL_MINUTES" envDefault:"15"`
	JWTRefreshTTLMinutes int    `env:"JWT_REFRESH_TTL_MINUTES" envDefault:"43200"`

	SMTPHost     string `env:"SMTP_HOST"`
	SMTPPort     int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPUser     string `env:"SMTP_USER"`
	SMTPPass     string `env:"SMTP_PASS"`
	SMTPFrom     string `env:"SMTP_FROM"`
	SMTPFromName string `env:"SMTP_FROM_NAME"`
	SMTPUseTLS   bool   `env:"SMTP_USE_TLS" envDefault:"false"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// Permite degradar a rate limiting en memoria cuando el backend remoto
	// falta o falla. En producción el default es fallar cerrado.
	RateLimitFallback bool `env:"RATE_LIMIT_FALLBACK" envDefault:"false"`

	SignupLimitMax       int `env:"SIGNUP_LIMIT_MAX" envDefault:"10"`
	SignupLimitWindowMin int `env:"SIGNUP_LIMIT_WINDOW_MINUTES" envDefault:"15"`
	LoginLimitMax        int `env:"LOGIN_LIMIT_MAX" envDefault:"10"`
	LoginLimitWindowMin  int `env:"LOGIN_LIMIT_WINDOW_MINUTES" envDefault:"15"`
	ResendLimitMax       int `env:"RESEND_LIMIT_MAX" envDefault:"3"`
	ResendLimitWindowMin int `env:"RESEND_LIMIT_WINDOW_MINUTES" envDefault:"10"`
	ForgotLimitMax       int `env:"FORGOT_LIMIT_MAX" envDefault:"3"`
	ForgotLimitWindowMin int `env:"FORGOT_LIMIT_WINDOW_MINUTES" envDefault:"15"`

	VerificationTokenTTLMin  int `env:"VERIFICATION_TOKEN_TTL_MINUTES" envDefault:"1440"`
	PasswordResetTokenTTLMin int `env:"PASSWORD_RESET_TOKEN_TTL_MINUTES" envDefault:"60"`
	EmailChangeTokenTTLMin   int `env:"EMAIL_CHANGE_TOKEN_TTL_MINUTES" envDefault:"60"`
}

// LoadConfig carga la configuración desde variables de entorno.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// IsProduction indica si el proceso corre en modo producción.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}
