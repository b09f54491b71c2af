package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"cipher-chat/internal/identity"
)

// UserIDKey is the gin context key holding the authenticated user id.
const UserIDKey = "userID"

// AuthMiddleware resolves the caller through verifier and stores the user id.
// Every failure is a 401; the body says whether credentials were absent,
// expired or rejected.
func AuthMiddleware(verifier identity.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := verifier.VerifyRequest(c.Request)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": authError(err)})
			return
		}

		c.Set(UserIDKey, userID)
		c.Next()
	}
}

func authError(err error) string {
	switch {
	case errors.Is(err, identity.ErrMissingCredentials):
		return "missing authorization"
	case errors.Is(err, identity.ErrTokenExpired):
		return "token expired"
	default:
		return "invalid token"
	}
}
