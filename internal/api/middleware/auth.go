package middleware

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"keymint/internal/models"
	"keymint/internal/service"
	"keymint/internal/store"
)

// AdminAuth guards the admin API. The bearer credential is either the admin
// secret itself or an HS256 JWT signed with it (so operator tooling can
// hand out expiring tokens without sharing the secret). Failures are
// rejected with 401 before any store access, and audited.
func AdminAuth(adminSecret string, audit store.AuditStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || !credentialValid(token, adminSecret) {
			service.AsyncAudit(audit, &models.AuditEntry{
				Action:  models.ActionUnauthorized,
				Origin:  c.ClientIP(),
				Details: fmt.Sprintf("IP: %s", c.ClientIP()),
			})
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			c.Abort()
			return
		}

		c.Next()
	}
}

func credentialValid(token, adminSecret string) bool {
	if subtle.ConstantTimeCompare([]byte(token), []byte(adminSecret)) == 1 {
		return true
	}

	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(adminSecret), nil
	})
	return err == nil && parsed.Valid
}
