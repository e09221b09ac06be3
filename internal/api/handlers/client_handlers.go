package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"keymint/internal/config"
	"keymint/internal/service"
	"keymint/internal/store"
)

type licenseRequest struct {
	Key      string `json:"key" binding:"required"`
	DeviceID string `json:"hwid" binding:"required"`
}

func (r *licenseRequest) normalize() {
	r.Key = strings.TrimSpace(r.Key)
	r.DeviceID = strings.TrimSpace(r.DeviceID)
}

// reasonStatus maps an expected activation failure to its HTTP status.
func reasonStatus(reason service.Reason) int {
	switch reason {
	case service.ReasonNotFound:
		return http.StatusNotFound
	case service.ReasonBlocked, service.ReasonExpired, service.ReasonDeviceMismatch:
		return http.StatusForbidden
	default:
		return http.StatusBadRequest
	}
}

// ActivateHandler handles POST /api/activate
func ActivateHandler(engine *service.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req licenseRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Missing key or hwid"})
			return
		}
		req.normalize()
		if req.Key == "" || req.DeviceID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Missing key or hwid"})
			return
		}

		result, err := engine.Activate(c.Request.Context(), req.Key, req.DeviceID, c.ClientIP())
		if err != nil {
			slog.Error("Activation failed on store", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Service unavailable"})
			return
		}

		if !result.OK {
			c.JSON(reasonStatus(result.Reason), gin.H{
				"success": false,
				"message": result.Message,
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"success":    true,
			"message":    result.Message,
			"type":       result.Class,
			"expires_at": result.ExpiresAt,
		})
	}
}

// VerifyHandler handles POST /api/verify. Invalidity is a 200 with
// valid=false; only malformed input is a 400.
func VerifyHandler(engine *service.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req licenseRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"valid": false, "message": "Missing data"})
			return
		}
		req.normalize()
		if req.Key == "" || req.DeviceID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"valid": false, "message": "Missing data"})
			return
		}

		result, err := engine.Verify(c.Request.Context(), req.Key, req.DeviceID)
		if err != nil {
			slog.Error("Verification failed on store", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"valid": false, "message": "Service unavailable"})
			return
		}

		if !result.OK {
			c.JSON(http.StatusOK, gin.H{"valid": false, "message": result.Message})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"valid":      true,
			"type":       result.Class,
			"expires_at": result.ExpiresAt,
		})
	}
}

// InfoHandler handles POST /api/info
func InfoHandler(engine *service.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req licenseRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Missing key or hwid"})
			return
		}
		req.normalize()

		info, err := engine.Info(c.Request.Context(), req.Key, req.DeviceID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "License not found"})
				return
			}
			slog.Error("Failed to get license info", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Service unavailable"})
			return
		}

		c.JSON(http.StatusOK, info)
	}
}

// VersionHandler handles GET /api/version
func VersionHandler(release config.ReleaseInfo) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, release)
	}
}
