package middleware

import (
	"github.com/gin-gonic/gin"
)

// NoStore marks responses that expose live session state as uncacheable.
func NoStore() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", "no-store")
		c.Next()
	}
}
