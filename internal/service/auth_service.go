package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"authcore/internal/domain"
	"authcore/internal/email"
	"authcore/internal/repository"
)

const (
	passwordMinLen = 8
	passwordMaxLen = 128
)

// Mensajes externos, uno por variante. Cada flujo colapsa sus errores
// internos a uno de estos; tenerlos en un solo lugar hace auditable que
// ninguna respuesta revela si una cuenta existe.
const (
	msgUnableToCreateAccount = "Unable to create an account with this email"
	msgInvalidCredentials    = "Invalid email or password"
	msgInvalidToken          = "Invalid, expired, or already used link"
	msgWrongPassword         = "Current password is incorrect"
	msgUnableToUseEmail      = "Unable to use this email address"
	msgInvalidEmail          = "Enter a valid email address"
	msgPasswordBounds        = "Password must be between 8 and 128 characters"
	msgSessionExpired        = "Session expired, please log in again"
	msgTryAgainLater         = "Something went wrong, please try again later"
	msgTooManyRequests       = "Too many requests, please try again later"
)

// AuthResult es la forma uniforme que reciben los colaboradores de UI.
// Nunca expone texto de errores internos ni distingue causas enumerables.
type AuthResult struct {
	Success bool         `json:"success"`
	Error   string       `json:"error,omitempty"`
	Field   string       `json:"field,omitempty"`
	RetryAt int64        `json:"retry_at,omitempty"`
	User    *domain.User `json:"user,omitempty"`
	Tokens  *TokenPair   `json:"tokens,omitempty"`
}

func succeed() AuthResult {
	return AuthResult{Success: true}
}

func failWith(msg string) AuthResult {
	return AuthResult{Success: false, Error: msg}
}

func failField(field, msg string) AuthResult {
	return AuthResult{Success: false, Error: msg, Field: field}
}

func failThrottled(d Decision) AuthResult {
	return AuthResult{Success: false, Error: msgTooManyRequests, RetryAt: d.ResetAt}
}

// AuthConfig agrupa las políticas de rate limit y los TTL de tokens.
type AuthConfig struct {
	SignupPolicy Policy
	LoginPolicy  Policy
	ResendPolicy Policy
	ForgotPolicy Policy

	VerificationTTL  time.Duration
	PasswordResetTTL time.Duration
	EmailChangeTTL   time.Duration
}

func (c *AuthConfig) applyDefaults() {
	if c.VerificationTTL <= 0 {
		c.VerificationTTL = 24 * time.Hour
	}
	if c.PasswordResetTTL <= 0 {
		c.PasswordResetTTL = time.Hour
	}
	if c.EmailChangeTTL <= 0 {
		c.EmailChangeTTL = time.Hour
	}
}

// AuthService orquesta los flujos de autenticación: validación, rate limit,
// hashing, tokens de un solo uso y efectos de correo.
type AuthService struct {
	logger   *zap.Logger
	users    repository.UserRepository
	tokens   repository.TokenRepository
	hasher   *PasswordHasher
	codec    *TokenCodec
	sender   email.Sender
	limiters *LimiterFactory
	jwt      *JWTService
	cfg      AuthConfig
}

func NewAuthService(
	logger *zap.Logger,
	users repository.UserRepository,
	tokens repository.TokenRepository,
	hasher *PasswordHasher,
	codec *TokenCodec,
	sender email.Sender,
	limiters *LimiterFactory,
	jwtSvc *JWTService,
	cfg AuthConfig,
) *AuthService {
	cfg.applyDefaults()
	return &AuthService{
		logger:   logger,
		users:    users,
		tokens:   tokens,
		hasher:   hasher,
		codec:    codec,
		sender:   sender,
		limiters: limiters,
		jwt:      jwtSvc,
		cfg:      cfg,
	}
}

// Signup crea la cuenta, emite el token de verificación, envía el correo y
// establece sesión. Un duplicado, por pre-chequeo o por carrera de unicidad
// en el INSERT, produce el mismo mensaje genérico.
func (s *AuthService) Signup(ctx context.Context, ip, emailAddr, password string) AuthResult {
	emailAddr = normalizeEmail(emailAddr)
	if !isValidEmail(emailAddr) {
		return failField("email", msgInvalidEmail)
	}
	if !passwordInBounds(password) {
		return failField("password", msgPasswordBounds)
	}
	if d := s.checkLimits(ctx, "signup", s.cfg.SignupPolicy, ipKey(ip), emailKey(emailAddr)); d != nil {
		return failThrottled(*d)
	}

	if _, err := s.users.GetByEmail(ctx, emailAddr); err == nil {
		return failField("email", msgUnableToCreateAccount)
	} else if !errors.Is(err, pgx.ErrNoRows) {
		s.logger.Error("signup lookup failed", zap.Error(err))
		return failWith(msgTryAgainLater)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		s.logger.Error("password hash failed", zap.Error(err))
		return failWith(msgTryAgainLater)
	}

	user := domain.User{
		ID:           uuid.NewString(),
		Email:        emailAddr,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return failField("email", msgUnableToCreateAccount)
		}
		s.logger.Error("create user failed", zap.Error(err))
		return failWith(msgTryAgainLater)
	}

	// Si el correo no sale, el alta se reporta fallida: nunca éxito
	// silencioso sin verificación enviada.
	if err := s.sendVerification(ctx, user); err != nil {
		s.logger.Warn("send verification failed", zap.Error(err), zap.String("email", emailAddr))
		return failWith(msgTryAgainLater)
	}

	pair, err := s.jwt.GeneratePair(user)
	if err != nil {
		s.logger.Error("session issue failed", zap.Error(err))
		return failWith(msgTryAgainLater)
	}
	return AuthResult{Success: true, User: &user, Tokens: &pair}
}

// Login nunca distingue "usuario inexistente" de "contraseña incorrecta".
func (s *AuthService) Login(ctx context.Context, ip, emailAddr, password string) AuthResult {
	emailAddr = normalizeEmail(emailAddr)
	if emailAddr == "" || password == "" {
		return failWith(msgInvalidCredentials)
	}
	if d := s.checkLimits(ctx, "login", s.cfg.LoginPolicy, ipKey(ip), emailKey(emailAddr)); d != nil {
		return failThrottled(*d)
	}

	user, err := s.users.GetByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return failWith(msgInvalidCredentials)
		}
		s.logger.Error("login lookup failed", zap.Error(err))
		return failWith(msgTryAgainLater)
	}
	if user.PasswordHash == "" || !s.hasher.Verify(password, user.PasswordHash) {
		return failWith(msgInvalidCredentials)
	}

	pair, err := s.jwt.GeneratePair(user)
	if err != nil {
		s.logger.Error("session issue failed", zap.Error(err))
		return failWith(msgTryAgainLater)
	}
	return AuthResult{Success: true, User: &user, Tokens: &pair}
}

// VerifyEmail consume el token y marca el email como verificado. Expirado,
// usado o desconocido producen el mismo mensaje.
func (s *AuthService) VerifyEmail(ctx context.Context, rawToken string) AuthResult {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return failWith(msgInvalidToken)
	}
	now := time.Now().UTC()
	record, err := s.tokens.Consume(ctx, s.codec.Hash(rawToken), domain.TokenKindEmailVerification, now)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return failWith(msgInvalidToken)
		}
		s.logger.Error("verify email consume failed", zap.Error(err))
		return failWith(msgTryAgainLater)
	}
	if err := s.users.VerifyEmail(ctx, record.UserID, now); err != nil {
		s.logger.Error("verify email update failed", zap.Error(err))
		return failWith(msgTryAgainLater)
	}
	return succeed()
}

// ResendVerification reporta éxito exista o no la cuenta y esté o no
// verificada; la única diferencia es el efecto de correo, que el caller no
// observa.
func (s *AuthService) ResendVerification(ctx context.Context, emailAddr string) AuthResult {
	emailAddr = normalizeEmail(emailAddr)
	if emailAddr == "" {
		return succeed()
	}
	if d := s.checkLimits(ctx, "resend_verification", s.cfg.ResendPolicy, emailKey(emailAddr)); d != nil {
		return failThrottled(*d)
	}

	user, err := s.users.GetByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return succeed()
		}
		s.logger.Error("resend lookup failed", zap.Error(err))
		return failWith(msgTryAgainLater)
	}
	if user.EmailVerifiedAt != nil {
		return succeed()
	}
	if err := s.sendVerification(ctx, user); err != nil {
		s.logger.Warn("resend verification failed", zap.Error(err), zap.String("email", emailAddr))
		return failWith(msgTryAgainLater)
	}
	return succeed()
}

// ForgotPassword reporta éxito exista o no la cuenta. El throttling sí se
// reporta, con un mensaje que tampoco revela existencia.
func (s *AuthService) ForgotPassword(ctx context.Context, ip, emailAddr string) AuthResult {
	emailAddr = normalizeEmail(emailAddr)
	if !isValidEmail(emailAddr) {
		return failField("email", msgInvalidEmail)
	}
	if d := s.checkLimits(ctx, "forgot_password", s.cfg.ForgotPolicy, ipKey(ip), emailKey(emailAddr)); d != nil {
		return failThrottled(*d)
	}

	user, err := s.users.GetByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return succeed()
		}
		s.logger.Error("forgot password lookup failed", zap.Error(err))
		return failWith(msgTryAgainLater)
	}

	raw, _, err := s.issueToken(ctx, user.ID, domain.TokenKindPasswordReset, "", s.cfg.PasswordResetTTL)
	if err != nil {
		s.logger.Error("issue reset token failed", zap.Error(err))
		return failWith(msgTryAgainLater)
	}
	if err := s.sender.Send(ctx, passwordResetMessage(user.Email, raw)); err != nil {
		s.logger.Warn("send reset email failed", zap.Error(err), zap.String("email", emailAddr))
		return failWith(msgTryAgainLater)
	}
	return succeed()
}

// ResetPassword valida los límites de la contraseña antes de consumir el
// token: una contraseña inválida no quema el único uso, el mismo token sigue
// sirviendo para reintentar.
func (s *AuthService) ResetPassword(ctx context.Context, rawToken, newPassword string) AuthResult {
	if !passwordInBounds(newPassword) {
		return failField("password", msgPasswordBounds)
	}
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return failWith(msgInvalidToken)
	}

	now := time.Now().UTC()
	record, err := s.tokens.Consume(ctx, s.codec.Hash(rawToken), domain.TokenKindPasswordReset, now)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return failWith(msgInvalidToken)
		}
		s.logger.Error("reset token consume failed", zap.Error(err))
		return failWith(msgTryAgainLater)
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		s.logger.Error("password hash failed", zap.Error(err))
		return failWith(msgTryAgainLater)
	}
	// SetPassword escribe el hash e incrementa session_version en el mismo
	// UPDATE: toda sesión previa queda invalidada junto con el cambio.
	if err := s.users.SetPassword(ctx, record.UserID, hash); err != nil {
		s.logger.Error("set password failed", zap.Error(err))
		return failWith(msgTryAgainLater)
	}
	return succeed()
}

// ChangePassword exige la contraseña vigente del usuario autenticado antes
// de mutar nada.
func (s *AuthService) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) AuthResult {
	if !passwordInBounds(newPassword) {
		return failField("password", msgPasswordBounds)
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		s.logger.Error("change password lookup failed", zap.Error(err))
		return failWith(msgTryAgainLater)
	}
	if !s.hasher.Verify(currentPassword, user.PasswordHash) {
		return failField("current_password", msgWrongPassword)
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		s.logger.Error("password hash failed", zap.Error(err))
		return failWith(msgTryAgainLater)
	}
	if err := s.users.SetPassword(ctx, user.ID, hash); err != nil {
		s.logger.Error("set password failed", zap.Error(err))
		return failWith(msgTryAgainLater)
	}
	return succeed()
}

// RequestEmailChange emite un token hacia la dirección nueva tras verificar
// la contraseña vigente. La unicidad se chequea acá y otra vez al confirmar.
func (s *AuthService) RequestEmailChange(ctx context.Context, userID, currentPassword, newEmail string) AuthResult {
	newEmail = normalizeEmail(newEmail)
	if !isValidEmail(newEmail) {
		return failField("email", msgInvalidEmail)
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		s.logger.Error("email change lookup failed", zap.Error(err))
		return failWith(msgTryAgainLater)
	}
	if !s.hasher.Verify(currentPassword, user.PasswordHash) {
		return failField("current_password", msgWrongPassword)
	}
	if strings.EqualFold(newEmail, user.Email) {
		return failField("email", msgUnableToUseEmail)
	}
	if _, err := s.users.GetByEmail(ctx, newEmail); err == nil {
		return failField("email", msgUnableToUseEmail)
	} else if !errors.Is(err, pgx.ErrNoRows) {
		s.logger.Error("email change uniqueness check failed", zap.Error(err))
		return failWith(msgTryAgainLater)
	}

	raw, _, err := s.issueToken(ctx, user.ID, domain.TokenKindEmailChange, newEmail, s.cfg.EmailChangeTTL)
	if err != nil {
		s.logger.Error("issue email change token failed", zap.Error(err))
		return failWith(msgTryAgainLater)
	}
	if err := s.sender.Send(ctx, emailChangeMessage(newEmail, raw)); err != nil {
		s.logger.Warn("send email change failed", zap.Error(err), zap.String("email", newEmail))
		return failWith(msgTryAgainLater)
	}
	return succeed()
}

// VerifyEmailChange consume el token y confirma el cambio. La unicidad del
// email nuevo se re-chequea al confirmar para cerrar la carrera entre
// solicitud y confirmación; la restricción única del store cubre el resto.
func (s *AuthService) VerifyEmailChange(ctx context.Context, rawToken string) AuthResult {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return failWith(msgInvalidToken)
	}
	now := time.Now().UTC()
	record, err := s.tokens.Consume(ctx, s.codec.Hash(rawToken), domain.TokenKindEmailChange, now)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return failWith(msgInvalidToken)
		}
		s.logger.Error("email change consume failed", zap.Error(err))
		return failWith(msgTryAgainLater)
	}

	if _, err := s.users.GetByEmail(ctx, record.NewEmail); err == nil {
		return failWith(msgUnableToUseEmail)
	} else if !errors.Is(err, pgx.ErrNoRows) {
		s.logger.Error("email change recheck failed", zap.Error(err))
		return failWith(msgTryAgainLater)
	}

	// SetEmail fija el email como verificado (confirmar el token prueba
	// control de la casilla) e incrementa session_version.
	if err := s.users.SetEmail(ctx, record.UserID, record.NewEmail, now); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return failWith(msgUnableToUseEmail)
		}
		s.logger.Error("set email failed", zap.Error(err))
		return failWith(msgTryAgainLater)
	}
	return succeed()
}

// RefreshSession rota el refresh token y re-verifica la versión de sesión
// contra el store antes de emitir un par nuevo.
func (s *AuthService) RefreshSession(ctx context.Context, refreshToken string) AuthResult {
	claims, err := s.jwt.ConsumeRefreshToken(refreshToken)
	if err != nil {
		return failWith(msgSessionExpired)
	}
	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return failWith(msgSessionExpired)
		}
		s.logger.Error("refresh lookup failed", zap.Error(err))
		return failWith(msgTryAgainLater)
	}
	if user.SessionVersion != claims.SessionVersion {
		return failWith(msgSessionExpired)
	}
	pair, err := s.jwt.GeneratePair(user)
	if err != nil {
		s.logger.Error("session issue failed", zap.Error(err))
		return failWith(msgTryAgainLater)
	}
	return AuthResult{Success: true, User: &user, Tokens: &pair}
}

// Logout revoca el refresh token. Siempre reporta éxito.
func (s *AuthService) Logout(_ context.Context, refreshToken string) AuthResult {
	_ = s.jwt.RevokeRefresh(refreshToken)
	return succeed()
}

// issueToken genera un token nuevo y antes invalida todo token abierto del
// mismo usuario y propósito: a lo sumo un token verificable por usuario y
// propósito en todo momento.
func (s *AuthService) issueToken(ctx context.Context, userID string, kind domain.TokenKind, newEmail string, ttl time.Duration) (string, domain.Token, error) {
	raw, err := s.codec.Generate()
	if err != nil {
		return "", domain.Token{}, err
	}
	now := time.Now().UTC()
	if err := s.tokens.InvalidateActive(ctx, userID, kind, now); err != nil {
		return "", domain.Token{}, err
	}
	token := domain.Token{
		ID:          uuid.NewString(),
		UserID:      userID,
		Kind:        kind,
		HashedToken: s.codec.Hash(raw),
		NewEmail:    newEmail,
		ExpiresAt:   now.Add(ttl),
		CreatedAt:   now,
	}
	if err := s.tokens.Insert(ctx, token); err != nil {
		return "", domain.Token{}, err
	}
	return raw, token, nil
}

func (s *AuthService) sendVerification(ctx context.Context, user domain.User) error {
	raw, _, err := s.issueToken(ctx, user.ID, domain.TokenKindEmailVerification, "", s.cfg.VerificationTTL)
	if err != nil {
		return err
	}
	return s.sender.Send(ctx, verificationMessage(user.Email, raw))
}

// checkLimits evalúa todos los identificadores de la acción y niega si
// cualquiera está sobre su límite.
func (s *AuthService) checkLimits(ctx context.Context, action string, policy Policy, identifiers ...string) *Decision {
	limiter := s.limiters.ForAction(action, policy)
	for _, id := range identifiers {
		if strings.TrimSpace(id) == "" {
			continue
		}
		d := limiter.Limit(ctx, id)
		if !d.Allowed {
			return &d
		}
	}
	return nil
}

func verificationMessage(to, rawToken string) email.Message {
	return email.Message{
		To:      to,
		Subject: "Verify your email address",
		Text:    fmt.Sprintf("Use this code to verify your email address: %s\nIf you did not create an account, ignore this message.\n", rawToken),
		HTML:    fmt.Sprintf("<p>Use this code to verify your email address:</p><p><strong>%s</strong></p><p>If you did not create an account, ignore this message.</p>", rawToken),
	}
}

func passwordResetMessage(to, rawToken string) email.Message {
	return email.Message{
		To:      to,
		Subject: "Reset your password",
		Text:    fmt.Sprintf("Use this code to reset your password: %s\nIf you did not request a reset, ignore this message.\n", rawToken),
		HTML:    fmt.Sprintf("<p>Use this code to reset your password:</p><p><strong>%s</strong></p><p>If you did not request a reset, ignore this message.</p>", rawToken),
	}
}

func emailChangeMessage(to, rawToken string) email.Message {
	return email.Message{
		To:      to,
		Subject: "Confirm your new email address",
		Text:    fmt.Sprintf("Use this code to confirm your new email address: %s\nIf you did not request this change, ignore this message.\n", rawToken),
		HTML:    fmt.Sprintf("<p>Use this code to confirm your new email address:</p><p><strong>%s</strong></p><p>If you did not request this change, ignore this message.</p>", rawToken),
	}
}

func normalizeEmail(emailAddr string) string {
	return strings.ToLower(strings.TrimSpace(emailAddr))
}

func isValidEmail(emailAddr string) bool {
	if emailAddr == "" {
		return false
	}
	addr, err := mail.ParseAddress(emailAddr)
	return err == nil && addr.Address == emailAddr
}

func passwordInBounds(password string) bool {
	n := len(password)
	return n >= passwordMinLen && n <= passwordMaxLen
}

func ipKey(ip string) string {
	ip = strings.TrimSpace(ip)
	if ip == "" {
		return ""
	}
	return "ip:" + ip
}

func emailKey(emailAddr string) string {
	if emailAddr == "" {
		return ""
	}
	return "email:" + emailAddr
}
