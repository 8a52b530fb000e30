package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"authcore/internal/config"
	"authcore/internal/db"
	"authcore/internal/email"
	apihttp "authcore/internal/http"
	"authcore/internal/repository"
	"authcore/internal/service"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	ctx := context.Background()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	defer pool.Close()

	// Sin secreto de tokens no se puede derivar ni verificar nada: abortar.
	codec, err := service.NewTokenCodec(cfg.TokenSecret)
	if err != nil {
		logger.Fatal("token codec init", zap.Error(err))
	}

	userRepo := repository.NewPgUserRepository(pool)
	tokenRepo := repository.NewPgTokenRepository(pool)
	hasher := service.NewPasswordHasher()

	emailSender := email.NewDisabledSender("email sender not configured")
	if cfg.SMTPHost != "" {
		sender, err := email.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPFrom, cfg.SMTPFromName, cfg.SMTPUseTLS)
		if err != nil {
			logger.Warn("smtp sender init failed", zap.Error(err))
		} else {
			emailSender = sender
		}
	}

	var (
		redisClient  *redis.Client
		refreshStore service.RefreshTokenStore
	)
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := redisClient.Ping(ctxPing).Err(); err != nil {
			logger.Warn("redis ping failed", zap.Error(err))
		} else {
			refreshStore = service.NewRedisRefreshTokenStore(redisClient)
		}
		cancel()
	}

	// El backend de rate limit se elige una vez por acción y queda cacheado
	// por vida del proceso; en producción sin Redis la bandera de
	// degradación decide entre memoria o fallar cerrado.
	limiters := service.NewLimiterFactory(logger, redisClient, cfg.IsProduction(), cfg.RateLimitFallback)

	jwtSvc := service.NewJWTServiceWithStore(
		cfg.JWTSecret,
		time.Duration(cfg.JWTAccessTTLMinutes)*time.Minute,
		time.Duration(cfg.JWTRefreshTTLMinutes)*time.Minute,
		refreshStore,
	)
	guard := service.NewSessionVersionGuard(userRepo)

	authSvc := service.NewAuthService(logger, userRepo, tokenRepo, hasher, codec, emailSender, limiters, jwtSvc, service.AuthConfig{
		SignupPolicy: service.Policy{Max: cfg.SignupLimitMax, Window: time.Duration(cfg.SignupLimitWindowMin) * time.Minute},
		LoginPolicy:  service.Policy{Max: cfg.LoginLimitMax, Window: time.Duration(cfg.LoginLimitWindowMin) * time.Minute},
		ResendPolicy: service.Policy{Max: cfg.ResendLimitMax, Window: time.Duration(cfg.ResendLimitWindowMin) * time.Minute},
		ForgotPolicy: service.Policy{Max: cfg.ForgotLimitMax, Window: time.Duration(cfg.ForgotLimitWindowMin) * time.Minute},

		VerificationTTL:  time.Duration(cfg.VerificationTokenTTLMin) * time.Minute,
		PasswordResetTTL: time.Duration(cfg.PasswordResetTokenTTLMin) * time.Minute,
		EmailChangeTTL:   time.Duration(cfg.EmailChangeTokenTTLMin) * time.Minute,
	})

	authHandler := apihttp.NewAuthHandler(logger, authSvc)
	router := apihttp.NewRouter(logger, authHandler, jwtSvc, guard, pool)

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Info("starting server", zap.String("port", cfg.HTTPPort))

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("server error", zap.Error(err))
	}
}
