package middleware

import "github.com/gin-gonic/gin"

// NoPageCache keeps intermediaries and page caches from storing the response
func NoPageCache() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
		c.Header("Pragma", "no-cache")
		c.Header("Expires", "0")
		c.Header("X-Accel-Expires", "0")
		c.Next()
	}
}
