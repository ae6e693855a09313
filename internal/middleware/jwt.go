package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-behavior-insights/internal/models"
	appErrors "github.com/noah-isme/sma-behavior-insights/pkg/errors"
	"github.com/noah-isme/sma-behavior-insights/pkg/response"
)

const (
	// ContextUserKey is the gin context key storing JWT claims.
	ContextUserKey = "currentUser"
	// ContextCredentialKey is the gin context key storing the raw bearer token.
	ContextCredentialKey = "credential"
)

type tokenValidator interface {
	ValidateToken(tokenString string) (*models.JWTClaims, error)
}

// JWT protects routes by requiring a valid access token.
func JWT(tokens tokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "invalid authorization header"))
			c.Abort()
			return
		}

		claims, err := tokens.ValidateToken(token)
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		c.Set(ContextUserKey, claims)
		c.Set(ContextCredentialKey, token)
		c.Next()
	}
}

// CredentialFrom returns the bearer token JWT accepted for this request.
func CredentialFrom(c *gin.Context) string {
	if value, exists := c.Get(ContextCredentialKey); exists {
		if token, ok := value.(string); ok {
			return token
		}
	}
	return ""
}

func bearerToken(header string) (string, bool) {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}
