package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/lesson-scheduler-api/internal/middleware"
	"github.com/noah-isme/lesson-scheduler-api/internal/models"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

// actorFromContext names the caller for audit fields; anonymous when auth is off.
func actorFromContext(c *gin.Context) string {
	if claims := claimsFromContext(c); claims != nil {
		return claims.UserID
	}
	return ""
}
