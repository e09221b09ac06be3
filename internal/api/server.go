package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	"keymint/internal/api/handlers"
	"keymint/internal/api/middleware"
	"keymint/internal/config"
	"keymint/internal/service"
	"keymint/internal/store"
)

type Server struct {
	Router *gin.Engine
	DB     *pgxpool.Pool
	Config config.Config

	LicenseStore store.LicenseStore
	AuditStore   store.AuditStore
	StatsStore   store.StatsStore

	Engine *service.Engine
	Admin  *service.Admin
}

func NewServer(cfg config.Config, db *pgxpool.Pool, ls store.LicenseStore, as store.AuditStore, ss store.StatsStore) *Server {
	r := gin.Default()

	r.Use(middleware.RequestID())
	if len(cfg.TrustedProxies) > 0 {
		r.SetTrustedProxies(cfg.TrustedProxies)
	}

	server := &Server{
		Router:       r,
		DB:           db,
		Config:       cfg,
		LicenseStore: ls,
		AuditStore:   as,
		StatsStore:   ss,
		Engine:       service.NewEngine(ls, as),
		Admin:        service.NewAdmin(ls, as),
	}

	server.setupRoutes()
	return server
}

func (s *Server) setupRoutes() {
	clientRateLimiter := middleware.RateLimitMiddleware(s.Config.RateLimitClient, s.AuditStore)
	adminRateLimiter := middleware.RateLimitMiddleware(s.Config.RateLimitAdmin, s.AuditStore)

	s.Router.GET("/", s.indexHandler)
	s.Router.GET("/health", s.healthHandler)

	// Client endpoints, rate limited per source IP
	client := s.Router.Group("/api")
	client.Use(clientRateLimiter)
	{
		client.POST("/activate", handlers.ActivateHandler(s.Engine))
		client.POST("/verify", handlers.VerifyHandler(s.Engine))
		client.POST("/info", handlers.InfoHandler(s.Engine))
		client.GET("/version", handlers.VersionHandler(s.Config.Release))
	}

	// Admin endpoints, bearer authenticated
	admin := s.Router.Group("/admin")
	admin.Use(adminRateLimiter)
	admin.Use(middleware.AdminAuth(s.Config.AdminSecret, s.AuditStore))
	{
		admin.POST("/generate", handlers.GenerateHandler(s.Admin))
		admin.POST("/block", handlers.BlockHandler(s.Admin))
		admin.POST("/unblock", handlers.UnblockHandler(s.Admin))
		admin.POST("/reset-hwid", handlers.ResetHWIDHandler(s.Admin))
		admin.POST("/extend", handlers.ExtendHandler(s.Admin))
		admin.POST("/delete", handlers.DeleteHandler(s.Admin))

		admin.GET("/list", handlers.ListHandler(s.Admin))
		admin.GET("/search", handlers.SearchHandler(s.Admin))
		admin.GET("/stats", handlers.StatsHandler(s.StatsStore))
		admin.GET("/logs", handlers.LogsHandler(s.AuditStore))
		admin.GET("/export", handlers.ExportHandler(s.LicenseStore))
		admin.GET("/analytics/activations", handlers.ActivationSeriesHandler(s.StatsStore))
	}
}

func (s *Server) indexHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":   "keymint license server",
		"status": "running",
		"endpoints": gin.H{
			"client": []string{"/api/activate", "/api/verify", "/api/info", "/api/version"},
			"admin": []string{
				"/admin/generate", "/admin/list", "/admin/stats", "/admin/block",
				"/admin/unblock", "/admin/reset-hwid", "/admin/extend", "/admin/delete",
				"/admin/search", "/admin/logs", "/admin/export", "/admin/analytics/activations",
			},
			"health": []string{"/health"},
		},
	})
}

func (s *Server) healthHandler(c *gin.Context) {
	count, err := s.LicenseStore.Count(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":         "healthy",
		"database":       "connected",
		"licenses_count": count,
		"timestamp":      time.Now(),
	})
}
