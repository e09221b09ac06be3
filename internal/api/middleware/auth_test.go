package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdminAuthJWT(t *testing.T) {
	gin.SetMode(gin.TestMode)

	const secret = "super-secret"
	r := gin.New()
	r.Use(AdminAuth(secret, &memAuditStore{}))
	r.GET("/admin/ping", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	sign := func(secret string, exp time.Time) string {
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"sub": "ops",
			"exp": exp.Unix(),
		})
		s, err := token.SignedString([]byte(secret))
		require.NoError(t, err)
		return s
	}

	tests := []struct {
		name  string
		token string
		want  int
	}{
		{"valid token", sign(secret, time.Now().Add(time.Hour)), http.StatusOK},
		{"expired token", sign(secret, time.Now().Add(-time.Hour)), http.StatusUnauthorized},
		{"wrong signing key", sign("other-secret", time.Now().Add(time.Hour)), http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req, _ := http.NewRequest("GET", "/admin/ping", nil)
			req.Header.Set("Authorization", "Bearer "+tt.token)
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}
