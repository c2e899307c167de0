package utils

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// authorizationKey holds the Authorization header once HideAuthorization has
// taken it off the request.
const authorizationKey = "authorization_header"

// HideAuthorization moves the Authorization header into the gin context, so
// request dumps written by the panic recovery log carry no bearer token.
func HideAuthorization() gin.HandlerFunc {
	return func(c *gin.Context) {
		if v := c.GetHeader("Authorization"); v != "" {
			c.Set(authorizationKey, v)
			c.Request.Header.Del("Authorization")
		}
		c.Next()
	}
}

// AuthorizationHeader returns the request's Authorization header, whether or
// not HideAuthorization ran.
func AuthorizationHeader(c *gin.Context) string {
	if v := c.GetString(authorizationKey); v != "" {
		return v
	}
	return c.GetHeader("Authorization")
}

// RecoveryResponse answers a recovered panic with the 500 envelope.
func RecoveryResponse(c *gin.Context, _ interface{}) {
	Error(c, http.StatusInternalServerError, 50000, "internal server error")
	c.Abort()
}
