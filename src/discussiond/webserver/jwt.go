package webserver

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// JWTMiddleware authenticates requests with a bearer token issued by the
// platform's auth service (a collaborator; tokens are never minted here).
// Websocket clients may pass the token as a query parameter instead, since
// browsers cannot set headers on an upgrade request.
func JWTMiddleware(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := ""
		if bearer := c.GetHeader("Authorization"); strings.HasPrefix(bearer, "Bearer ") {
			tokenStr = bearer[7:]
		} else {
			tokenStr = c.Query("token")
		}
		if tokenStr == "" {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
			return secret, nil
		})
		if err != nil || !token.Valid {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		uid, _ := claims["uid"].(float64)
		name, _ := claims["name"].(string)
		if uid <= 0 || name == "" {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		c.Set("userID", uint64(uid))
		c.Set("username", name)
		c.Next()
	}
}

func currentUser(c *gin.Context) (uint64, string) {
	return c.GetUint64("userID"), c.GetString("username")
}
