package access

import (
	"github.com/gin-gonic/gin"
)

const (
	allowMethods = "POST,OPTIONS,GET"
	allowHeaders = "Content-Type,x-api-key"
)

// CORSMiddleware echoes allowlisted origins (never "*"). Headers are set
// before any other check so they are present on error responses too; the
// route's OPTIONS handler answers the preflight itself.
func CORSMiddleware(gate *Gate) gin.HandlerFunc {
	return func(c *gin.Context) {
		if allowOrigin, _ := gate.CheckOrigin(c.GetHeader("Origin")); allowOrigin != "" {
			c.Header("Access-Control-Allow-Origin", allowOrigin)
			c.Header("Vary", "Origin")
			c.Header("Access-Control-Allow-Credentials", "true")
		}
		c.Header("Access-Control-Allow-Methods", allowMethods)
		c.Header("Access-Control-Allow-Headers", allowHeaders)
		c.Next()
	}
}
