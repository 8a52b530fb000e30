package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"authcore/internal/service"
)

const authClaimsKey = "auth_claims"

// SessionAuthMiddleware valida el access token y compara su versión de
// sesión contra la almacenada. Un token firmado y sin expirar deja de servir
// apenas el usuario cambia credenciales.
func SessionAuthMiddleware(logger *zap.Logger, jwtSvc *service.JWTService, guard *service.SessionVersionGuard) gin.HandlerFunc {
	return func(c *gin.Context) {
		if jwtSvc == nil || guard == nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
			c.Abort()
			return
		}

		header := strings.TrimSpace(c.GetHeader("Authorization"))
		if header == "" || !strings.HasPrefix(strings.ToLower(header), "bearer ") {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			c.Abort()
			return
		}

		token := strings.TrimSpace(header[len("Bearer "):])
		claims, err := jwtSvc.ParseAccessToken(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			c.Abort()
			return
		}

		_, current, err := guard.Check(c.Request.Context(), claims.UserID, claims.SessionVersion)
		if err != nil {
			logger.Error("session version check failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not validate session"})
			c.Abort()
			return
		}
		if !current {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "session no longer valid"})
			c.Abort()
			return
		}

		c.Set(authClaimsKey, claims)
		c.Next()
	}
}

// GetAuthClaims obtiene los claims de la sesión desde el contexto.
func GetAuthClaims(c *gin.Context) (service.Claims, bool) {
	val, ok := c.Get(authClaimsKey)
	if !ok {
		return service.Claims{}, false
	}
	claims, ok := val.(service.Claims)
	return claims, ok
}
