package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/opennewsroom/newsdesk-api/internal/middleware"
	"github.com/opennewsroom/newsdesk-api/internal/models"
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

// ifMatch reads the conditional header guarding writes.
func ifMatch(c *gin.Context) string {
	return c.GetHeader("If-Match")
}
