package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/questboard/config"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	CharIDKey      = "char_id"
	AdminKeyHeader = "X-Admin-Key"
)

// Auth validates the Bearer JWT token and stores the character id.
func Auth(sec config.SecurityConfig) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		header := ctx.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}
		claims, err := ParseToken(strings.TrimPrefix(header, "Bearer "), sec.JWTSecret)
		if err != nil {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		ctx.Set(CharIDKey, claims.CharID)
		ctx.Next()
	}
}

// GetCharID retrieves the authenticated character ID from the Gin context.
func GetCharID(c *gin.Context) int64 {
	if v, exists := c.Get(CharIDKey); exists {
		return v.(int64)
	}
	return 0
}

// AdminAuth checks the X-Admin-Key header against the configured admin key.
// A bcrypt AdminKeyHash wins over a plain AdminKey; with neither set every
// admin request is refused.
func AdminAuth(srv config.ServerConfig, log *zap.Logger) gin.HandlerFunc {
	hash := []byte(srv.AdminKeyHash)
	plain := []byte(srv.AdminKey)
	if len(hash) == 0 && len(plain) == 0 {
		log.Warn("no admin key configured, admin API disabled")
	}
	return func(c *gin.Context) {
		key := c.GetHeader(AdminKeyHeader)
		ok := false
		switch {
		case key == "":
		case len(hash) > 0:
			ok = bcrypt.CompareHashAndPassword(hash, []byte(key)) == nil
		case len(plain) > 0:
			ok = subtle.ConstantTimeCompare(plain, []byte(key)) == 1
		}
		if !ok {
			log.Warn("admin auth rejected",
				zap.String("client_ip", c.ClientIP()),
				zap.String("trace_id", GetTraceID(c)))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "admin key required"})
			return
		}
		c.Next()
	}
}
