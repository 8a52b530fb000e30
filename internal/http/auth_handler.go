package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"authcore/internal/service"
)

// AuthHandler mantiene dependencias para los endpoints de autenticación.
type AuthHandler struct {
	logger *zap.Logger
	auth   *service.AuthService
}

// NewAuthHandler crea una instancia de AuthHandler con sus dependencias.
func NewAuthHandler(logger *zap.Logger, auth *service.AuthService) *AuthHandler {
	return &AuthHandler{
		logger: logger,
		auth:   auth,
	}
}

// writeResult traduce el resultado uniforme a un status HTTP. El cuerpo es
// siempre el mismo AuthResult, sin importar el código.
func writeResult(c *gin.Context, result service.AuthResult, successStatus int) {
	switch {
	case result.Success:
		c.JSON(successStatus, result)
	case result.RetryAt > 0:
		c.JSON(http.StatusTooManyRequests, result)
	default:
		c.JSON(http.StatusBadRequest, result)
	}
}

// Signup maneja POST /auth/signup.
func (h *AuthHandler) Signup(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid signup request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid request"})
		return
	}
	writeResult(c, h.auth.Signup(c.Request.Context(), c.ClientIP(), req.Email, req.Password), http.StatusCreated)
}

// Login maneja POST /auth/login.
func (h *AuthHandler) Login(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid login request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid request"})
		return
	}
	writeResult(c, h.auth.Login(c.Request.Context(), c.ClientIP(), req.Email, req.Password), http.StatusOK)
}

// VerifyEmail maneja POST /auth/verify-email.
func (h *AuthHandler) VerifyEmail(c *gin.Context) {
	var req struct {
		Token string `json:"token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid request"})
		return
	}
	writeResult(c, h.auth.VerifyEmail(c.Request.Context(), req.Token), http.StatusOK)
}

// ResendVerification maneja POST /auth/resend-verification. Toma el email de
// la sesión autenticada, nunca del body.
func (h *AuthHandler) ResendVerification(c *gin.Context) {
	claims, ok := GetAuthClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "unauthorized"})
		return
	}
	writeResult(c, h.auth.ResendVerification(c.Request.Context(), claims.Email), http.StatusOK)
}

// ForgotPassword maneja POST /auth/forgot-password.
func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid request"})
		return
	}
	writeResult(c, h.auth.ForgotPassword(c.Request.Context(), c.ClientIP(), req.Email), http.StatusOK)
}

// ResetPassword maneja POST /auth/reset-password.
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req struct {
		Token    string `json:"token" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid request"})
		return
	}
	writeResult(c, h.auth.ResetPassword(c.Request.Context(), req.Token, req.Password), http.StatusOK)
}

// ChangePassword maneja POST /auth/change-password.
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	claims, ok := GetAuthClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "unauthorized"})
		return
	}
	var req struct {
		CurrentPassword string `json:"current_password" binding:"required"`
		NewPassword     string `json:"new_password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid request"})
		return
	}
	writeResult(c, h.auth.ChangePassword(c.Request.Context(), claims.UserID, req.CurrentPassword, req.NewPassword), http.StatusOK)
}

// RequestEmailChange maneja POST /auth/change-email/request.
func (h *AuthHandler) RequestEmailChange(c *gin.Context) {
	claims, ok := GetAuthClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "unauthorized"})
		return
	}
	var req struct {
		CurrentPassword string `json:"current_password" binding:"required"`
		NewEmail        string `json:"new_email" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid request"})
		return
	}
	writeResult(c, h.auth.RequestEmailChange(c.Request.Context(), claims.UserID, req.CurrentPassword, req.NewEmail), http.StatusOK)
}

// VerifyEmailChange maneja POST /auth/change-email/verify.
func (h *AuthHandler) VerifyEmailChange(c *gin.Context) {
	var req struct {
		Token string `json:"token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid request"})
		return
	}
	writeResult(c, h.auth.VerifyEmailChange(c.Request.Context(), req.Token), http.StatusOK)
}

// RefreshSession maneja POST /auth/refresh.
func (h *AuthHandler) RefreshSession(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid request"})
		return
	}
	result := h.auth.RefreshSession(c.Request.Context(), req.RefreshToken)
	if !result.Success && result.RetryAt == 0 {
		c.JSON(http.StatusUnauthorized, result)
		return
	}
	writeResult(c, result, http.StatusOK)
}

// Logout maneja POST /auth/logout.
func (h *AuthHandler) Logout(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid request"})
		return
	}
	writeResult(c, h.auth.Logout(c.Request.Context(), req.RefreshToken), http.StatusOK)
}
