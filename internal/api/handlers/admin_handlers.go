package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"keymint/internal/models"
	"keymint/internal/service"
	"keymint/internal/store"
)

type generateRequest struct {
	Class models.LicenseClass `json:"type"`
	Count int                 `json:"count"`
	Notes string              `json:"notes"`
}

type keyRequest struct {
	Key string `json:"key" binding:"required"`
}

type extendRequest struct {
	Key  string `json:"key" binding:"required"`
	Days int    `json:"days"`
}

// licenseView is the admin listing projection: the device id is masked, the
// status is computed at render time.
type licenseView struct {
	Key         string               `json:"key"`
	DeviceID    *string              `json:"hwid,omitempty"`
	Class       models.LicenseClass  `json:"type"`
	Status      models.LicenseStatus `json:"status"`
	CreatedAt   time.Time            `json:"created_at"`
	ExpiresAt   *time.Time           `json:"expires_at,omitempty"`
	Activated   bool                 `json:"activated"`
	Blocked     bool                 `json:"blocked"`
	ActivatedAt *time.Time           `json:"activation_date,omitempty"`
	Notes       string               `json:"notes,omitempty"`
}

func viewOf(l *models.License, now time.Time) licenseView {
	return licenseView{
		Key:         l.Key,
		DeviceID:    maskTail(l.DeviceID, 16),
		Class:       l.Class,
		Status:      service.StatusOf(l, now),
		CreatedAt:   l.CreatedAt,
		ExpiresAt:   l.ExpiresAt,
		Activated:   l.Activated,
		Blocked:     l.Blocked,
		ActivatedAt: l.ActivatedAt,
		Notes:       l.Notes,
	}
}

// GenerateHandler handles POST /admin/generate
func GenerateHandler(admin *service.Admin) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req generateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		if req.Class == "" {
			req.Class = models.ClassMonthly
		}
		if !req.Class.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Unknown license type: %s", req.Class)})
			return
		}

		keys, err := admin.Generate(c.Request.Context(), req.Class, req.Count, req.Notes, c.ClientIP())
		if err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				slog.Error("Key collision on generation", "error", err)
				c.JSON(http.StatusConflict, gin.H{"error": "Key collision, no keys were skipped"})
				return
			}
			slog.Error("Failed to generate licenses", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate licenses"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"success": true, "keys": keys})
	}
}

// keyMutationHandler wraps the block/unblock/reset/delete family: each is a
// guarded single-record mutation keyed by license key with identical error
// mapping.
func keyMutationHandler(message string, mutate func(*gin.Context, string) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req keyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Key required"})
			return
		}
		req.Key = strings.TrimSpace(req.Key)

		if err := mutate(c, req.Key); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "Key not found"})
				return
			}
			slog.Error("Admin mutation failed", "error", err, "key", req.Key)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Operation failed"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"success": true, "message": message})
	}
}

// BlockHandler handles POST /admin/block
func BlockHandler(admin *service.Admin) gin.HandlerFunc {
	return keyMutationHandler("Key blocked", func(c *gin.Context, key string) error {
		return admin.Block(c.Request.Context(), key, c.ClientIP())
	})
}

// UnblockHandler handles POST /admin/unblock
func UnblockHandler(admin *service.Admin) gin.HandlerFunc {
	return keyMutationHandler("Key unblocked", func(c *gin.Context, key string) error {
		return admin.Unblock(c.Request.Context(), key, c.ClientIP())
	})
}

// ResetHWIDHandler handles POST /admin/reset-hwid
func ResetHWIDHandler(admin *service.Admin) gin.HandlerFunc {
	return keyMutationHandler("HWID reset successful", func(c *gin.Context, key string) error {
		return admin.ResetDevice(c.Request.Context(), key, c.ClientIP())
	})
}

// DeleteHandler handles POST /admin/delete
func DeleteHandler(admin *service.Admin) gin.HandlerFunc {
	return keyMutationHandler("Key deleted", func(c *gin.Context, key string) error {
		return admin.Delete(c.Request.Context(), key, c.ClientIP())
	})
}

// ExtendHandler handles POST /admin/extend
func ExtendHandler(admin *service.Admin) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req extendRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Key required"})
			return
		}
		if req.Days == 0 {
			req.Days = 30
		}
		if req.Days < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Days must be positive"})
			return
		}

		newExpiry, err := admin.Extend(c.Request.Context(), strings.TrimSpace(req.Key), req.Days, c.ClientIP())
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "Key not found"})
				return
			}
			if errors.Is(err, store.ErrNotExtensible) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Lifetime license cannot be extended"})
				return
			}
			slog.Error("Failed to extend license", "error", err, "key", req.Key)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Operation failed"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"success":    true,
			"message":    fmt.Sprintf("Extended by %d days", req.Days),
			"new_expiry": newExpiry,
		})
	}
}

// ListHandler handles GET /admin/list
func ListHandler(admin *service.Admin) gin.HandlerFunc {
	return func(c *gin.Context) {
		filter := models.ListFilter{
			Class:  models.LicenseClass(c.Query("type")),
			Status: models.LicenseStatus(c.Query("status")),
			Search: strings.TrimSpace(c.Query("search")),
			Limit:  parseLimit(c, 100, 500),
		}

		licenses, err := admin.List(c.Request.Context(), filter)
		if err != nil {
			slog.Error("Failed to list licenses", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list licenses"})
			return
		}

		now := time.Now()
		views := make([]licenseView, 0, len(licenses))
		for i := range licenses {
			views = append(views, viewOf(&licenses[i], now))
		}

		c.JSON(http.StatusOK, gin.H{"licenses": views, "count": len(views)})
	}
}

// SearchHandler handles GET /admin/search
func SearchHandler(admin *service.Admin) gin.HandlerFunc {
	return func(c *gin.Context) {
		query := strings.TrimSpace(c.Query("q"))
		if len(query) < 3 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Query too short (min 3 chars)"})
			return
		}

		licenses, err := admin.List(c.Request.Context(), models.ListFilter{Search: query, Limit: 50})
		if err != nil {
			slog.Error("Failed to search licenses", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Search failed"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"results": licenses, "count": len(licenses)})
	}
}

// StatsHandler handles GET /admin/stats
func StatsHandler(statsStore store.StatsStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats, err := statsStore.GetStats(c.Request.Context())
		if err != nil {
			slog.Error("Failed to get stats", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get stats"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"total":           stats.Total,
			"activated":       stats.Activated,
			"blocked":         stats.Blocked,
			"pending":         stats.Pending,
			"expired":         stats.Expired,
			"by_type":         stats.ByClass,
			"activations_24h": stats.Activations24h,
			"activations_7d":  stats.Activations7d,
			"server_time":     time.Now(),
		})
	}
}

// ActivationSeriesHandler handles GET /admin/analytics/activations
func ActivationSeriesHandler(statsStore store.StatsStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		series, err := statsStore.GetActivationSeries(c.Request.Context(), 30)
		if err != nil {
			slog.Error("Failed to get activation series", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get activation series"})
			return
		}
		if series == nil {
			series = []models.ActivationPoint{}
		}
		c.JSON(http.StatusOK, gin.H{"data": series})
	}
}

// LogsHandler handles GET /admin/logs
func LogsHandler(auditStore store.AuditStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := parseLimit(c, 100, 500)
		action := c.Query("action")

		entries, err := auditStore.ListEntries(c.Request.Context(), limit, action)
		if err != nil {
			slog.Error("Failed to list audit log", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list logs"})
			return
		}

		logs := make([]gin.H, 0, len(entries))
		for _, e := range entries {
			logs = append(logs, gin.H{
				"id":          e.ID,
				"timestamp":   e.CreatedAt,
				"action":      e.Action,
				"license_key": maskTail(e.LicenseKey, 16),
				"hwid":        maskTail(e.DeviceID, 16),
				"ip":          e.Origin,
				"details":     e.Details,
			})
		}

		c.JSON(http.StatusOK, gin.H{"logs": logs})
	}
}

// ExportHandler handles GET /admin/export
func ExportHandler(licenseStore store.LicenseStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		licenses, err := licenseStore.List(c.Request.Context(), models.ListFilter{Limit: 500})
		if err != nil {
			slog.Error("Failed to export licenses", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Export failed"})
			return
		}

		if c.DefaultQuery("format", "json") == "text" {
			var b strings.Builder
			b.WriteString("KEY | TYPE | STATUS | EXPIRES\n")
			b.WriteString(strings.Repeat("-", 60) + "\n")
			now := time.Now()
			for i := range licenses {
				l := &licenses[i]
				expires := "LIFETIME"
				if l.ExpiresAt != nil {
					expires = l.ExpiresAt.Format(time.RFC3339)
				}
				fmt.Fprintf(&b, "%s | %s | %s | %s\n",
					l.Key, l.Class, strings.ToUpper(string(service.StatusOf(l, now))), expires)
			}
			c.String(http.StatusOK, b.String())
			return
		}

		c.JSON(http.StatusOK, gin.H{"licenses": licenses})
	}
}
