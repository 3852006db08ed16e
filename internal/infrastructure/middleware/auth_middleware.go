package middleware

import (
	"net/http"
	"strings"

	"screenshare/internal/core/domain"
	"screenshare/internal/core/ports"
	"screenshare/pkg/errors"
	"screenshare/pkg/logger"

	"github.com/gin-gonic/gin"
)

const (
	userIDKey   = "user_id"
	usernameKey = "username"
	roleKey     = "role"

	// accessTokenParam carries the token on WebSocket upgrades, where browsers cannot set headers.
	accessTokenParam = "access_token"
)

// AuthMiddleware requires a valid access token in the Authorization header or the access_token query parameter.
func AuthMiddleware(authService ports.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := bearerToken(c)
		if err != nil {
			c.Error(err)
			c.Abort()
			return
		}

		claims, err := authService.ValidateToken(token)
		if err != nil {
			c.Error(errors.WrapError(err, errors.ErrCodeUnauthorized, "invalid access token", http.StatusUnauthorized))
			c.Abort()
			return
		}

		c.Set(userIDKey, claims.UserID)
		c.Set(usernameKey, claims.Username)
		c.Set(roleKey, claims.Role)
		c.Request = c.Request.WithContext(logger.WithUserID(c.Request.Context(), string(claims.UserID)))
		c.Next()
	}
}

func bearerToken(c *gin.Context) (string, error) {
	if header := c.GetHeader("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
			return "", errors.NewUnauthorizedError("invalid authorization header format")
		}
		return parts[1], nil
	}
	if token := c.Query(accessTokenParam); token != "" {
		return token, nil
	}
	return "", errors.NewUnauthorizedError("authorization header required")
}

// RequireRole lets the request through only for the listed roles. It must run after AuthMiddleware.
func RequireRole(roles ...domain.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := Claims(c)
		if !ok {
			c.Error(errors.NewUnauthorizedError("authentication required"))
			c.Abort()
			return
		}
		for _, role := range roles {
			if claims.Role == role {
				c.Next()
				return
			}
		}
		c.Error(errors.NewForbiddenError("insufficient permissions").WithContext("role", claims.Role))
		c.Abort()
	}
}

// Claims returns the caller identity stored by AuthMiddleware.
func Claims(c *gin.Context) (*ports.AccessClaims, bool) {
	userID, ok := c.Get(userIDKey)
	if !ok {
		return nil, false
	}
	id, ok := userID.(domain.UserID)
	if !ok {
		return nil, false
	}
	return &ports.AccessClaims{
		UserID:   id,
		Username: c.GetString(usernameKey),
		Role:     roleFrom(c),
	}, true
}

func roleFrom(c *gin.Context) domain.UserRole {
	v, _ := c.Get(roleKey)
	role, _ := v.(domain.UserRole)
	return role
}
