package auth

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/replyhub/backend/internal/util"
)

// Middleware validates the bearer token and loads the user into the request
// context. WebSocket upgrades may carry the token as a query parameter
// instead, since browsers cannot set headers on the upgrade request.
func (s *Service) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			util.RespondUnauthorized(c, "no token provided")
			c.Abort()
			return
		}

		user, err := s.ValidateToken(token)
		if err != nil {
			util.RespondUnauthorized(c, "invalid token")
			c.Abort()
			return
		}

		c.Set("user_id", user.ID)
		c.Set("user", user)
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	if header != "" {
		return header
	}
	return c.Query("token")
}
