package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt"
	"go.uber.org/zap"

	"github.com/fatflowers/agentbilling/pkg/logctx"
	"github.com/fatflowers/agentbilling/pkg/response"
)

const (
	AdminRole = "admin"
	// OperatorKey is the gin.Context key holding the subject of the admin token.
	OperatorKey = "operator"
)

// AdminClaims are the claims expected in an admin bearer token.
type AdminClaims struct {
	Role string `json:"role"`
	jwt.StandardClaims
}

// ParseAdminToken validates an HS256 token signed with secret and requires the admin role.
func ParseAdminToken(tokenString, secret string) (*AdminClaims, error) {
	claims := &AdminClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	if claims.Role != AdminRole {
		return nil, fmt.Errorf("role %q is not allowed", claims.Role)
	}
	return claims, nil
}

// AdminAuthMiddleware rejects requests without a valid admin bearer token.
func AdminAuthMiddleware(secret string, base *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer "))
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.ErrorT[any](response.APIResponseCodeUnauthorized, "missing bearer token"))
			return
		}
		claims, err := ParseAdminToken(raw, secret)
		if err != nil {
			logctx.FromGin(c, base).Warnw("admin token rejected", "err", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.ErrorT[any](response.APIResponseCodeUnauthorized, "invalid token"))
			return
		}
		c.Set(OperatorKey, claims.Subject)
		c.Next()
	}
}
