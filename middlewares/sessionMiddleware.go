package middlewares

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sprayline/fieldsuite_backend/appctx"
	"github.com/sprayline/fieldsuite_backend/config"
	"github.com/sprayline/fieldsuite_backend/utils"
)

// SessionPrefix keys the session documents the auth service writes to redis.
const SessionPrefix = "Session:"

// SessionMiddleware resolves the "token" header into a principal. Requests without a token
// pass through; handlers that need a principal reject them.
func SessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := strings.TrimSpace(c.Request.Header.Get("token"))
		if token == "" {
			if auth := c.Request.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
				token = strings.TrimSpace(auth[len("Bearer "):])
			}
		}
		if token == "" {
			c.Next()
			return
		}

		var p appctx.Principal
		exists, err := config.GetRedisObject(SessionPrefix+token, &p)
		if err != nil || !exists || strings.TrimSpace(p.OrganizationId) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "error": gin.H{"code": "UNAUTHORIZED", "message": "unauthorized"}})
			return
		}

		ctx := utils.SetTokenInContext(c.Request.Context(), token)
		ctx = appctx.WithPrincipal(ctx, p)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
