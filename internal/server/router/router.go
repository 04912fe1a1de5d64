package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/mamadbah2/stockcount/internal/server/handlers"
)

// Handlers groups the HTTP adapters the router mounts. Webhook may be nil
// when WhatsApp is not configured.
type Handlers struct {
	Counting *handlers.CountingHandler
	Catalog  *handlers.CatalogHandler
	Webhook  *handlers.WebhookHandler
}

// New wires the Gin engine with required routes and middlewares.
func New(h Handlers, gatherer prometheus.Gatherer, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(zapLoggerMiddleware(logger))

	if h.Webhook != nil {
		r.GET("/webhook", h.Webhook.Verify)
		r.POST("/webhook", h.Webhook.Receive)
		r.POST("/send-message", h.Webhook.SendMessage)
	}
	r.GET("/healthz", h.Counting.Health)
	if gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	api := r.Group("/api")
	{
		api.GET("/items/resolve", h.Counting.ResolveItem)
		api.POST("/items/scan", h.Counting.Scan)

		api.GET("/entries", h.Counting.Entries)
		api.POST("/entries/evaluate", h.Counting.Evaluate)
		api.POST("/entries", h.Counting.Submit)
		api.PATCH("/entries/:id", h.Counting.Edit)
		api.DELETE("/entries/:id", h.Counting.Delete)

		api.GET("/dashboard", h.Counting.Dashboard)
		api.GET("/damage", h.Counting.DamageReports)
		api.POST("/sync", h.Counting.Sync)

		api.GET("/locations/checklist", h.Counting.Checklist)
		api.POST("/locations/:name/empty", h.Counting.MarkEmpty)
		api.POST("/locations/:name/damage", h.Counting.MarkDamaged)
		api.POST("/locations/import", h.Catalog.ImportLocations)
		api.POST("/locations/import/sheet", h.Catalog.ImportLocationsSheet)
		api.DELETE("/locations/states", h.Catalog.ResetLocationStates)

		api.POST("/catalog/import", h.Catalog.ImportCatalog)
		api.POST("/catalog/import/sheet", h.Catalog.ImportCatalogSheet)
		api.POST("/catalog/import/xlsx", h.Catalog.ImportCatalogXLSX)
		api.DELETE("/catalog", h.Catalog.ResetCatalog)

		api.GET("/export.xlsx", h.Catalog.ExportXLSX)
		api.POST("/export/sheet", h.Catalog.ExportSheet)
	}

	if logger != nil {
		logger.Info("router initialized", zap.Int("routes", len(r.Routes())))
	}

	return r
}

func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if member := c.GetHeader(handlers.TeamMemberHeader); member != "" {
			fields = append(fields, zap.String("team_member", member))
		}
		logger.Info("request completed", fields...)
	}
}
