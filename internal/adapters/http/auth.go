package http

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Gather/internal/domain"
)

const userKey = "user_id"

// Authenticator resolves an access token into the caller's identity.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (domain.UserID, error)
}

// TokenIsUser trusts the token as the user id. It suits deployments where a
// gateway in front has already verified the caller.
type TokenIsUser struct{}

func (TokenIsUser) Authenticate(_ context.Context, token string) (domain.UserID, error) {
	return domain.ParseUserID(token)
}

func AccessTokenMiddleware(header string, auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader(header)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing access token", "kind": "unauthenticated"})
			return
		}
		user, err := auth.Authenticate(c.Request.Context(), token)
		if err != nil {
			log.Warn().Err(err).Str("module", "adapters.http").Str("path", c.FullPath()).Msg("access token rejected")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid access token", "kind": "unauthenticated"})
			return
		}
		c.Set(userKey, user)
		c.Next()
	}
}

func userOf(c *gin.Context) domain.UserID {
	v, _ := c.Get(userKey)
	user, _ := v.(domain.UserID)
	return user
}
