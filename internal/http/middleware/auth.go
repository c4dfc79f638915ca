package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/valyc0/fraudM/internal/platform/apierr"
	"github.com/valyc0/fraudM/internal/platform/ctxutil"
	"github.com/valyc0/fraudM/internal/platform/logger"
)

const subjectKey = "auth_subject"

// AuthMiddleware checks an HS256 bearer token signed with a shared secret.
type AuthMiddleware struct {
	log    *logger.Logger
	secret []byte
	parser *jwt.Parser
}

func NewAuthMiddleware(log *logger.Logger, secret string) *AuthMiddleware {
	return &AuthMiddleware{
		log:    log.With("Middleware", "AuthMiddleware"),
		secret: []byte(secret),
		parser: jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired()),
	}
}

func (am *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := extractBearer(c)
		if tokenString == "" {
			abortUnauthorized(c, errors.New("missing or invalid token"))
			return
		}
		claims := jwt.RegisteredClaims{}
		_, err := am.parser.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (any, error) {
			return am.secret, nil
		})
		if err != nil {
			am.log.Debug("Rejected bearer token", "error", err)
			abortUnauthorized(c, fmt.Errorf("invalid token: %w", err))
			return
		}
		c.Set(subjectKey, claims.Subject)
		ctx := ctxutil.WithSubject(c.Request.Context(), claims.Subject)
		trace.SpanFromContext(ctx).SetAttributes(attribute.String("enduser.id", claims.Subject))
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func abortUnauthorized(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error": gin.H{"message": err.Error(), "code": apierr.CodeUnauthorized},
	})
}

func extractBearer(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
		return strings.TrimSpace(authHeader[7:])
	}
	return ""
}
