package httpapi

import (
	"net/http"
	"runtime/debug"

	"partner-portal/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Recover turns a handler panic into a generic error the page can offer to reload from.
func Recover() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if v := recover(); v != nil {
				logger.FromGin(c).Error("handler panic", "panic", v, "stack", string(debug.Stack()))
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "application error", "reload": true})
			}
		}()
		c.Next()
	}
}
