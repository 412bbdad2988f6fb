package api

import (
	"github.com/gin-gonic/gin"
	"github.com/ossprey/licenscope/internal/api/handler"
	"github.com/ossprey/licenscope/internal/api/middleware"
	"github.com/ossprey/licenscope/internal/catalog"
	"github.com/ossprey/licenscope/internal/logger"
	"github.com/ossprey/licenscope/internal/report"
	"github.com/ossprey/licenscope/internal/scan"
	"github.com/ossprey/licenscope/internal/storage"
)

// Deps bundles everything the HTTP layer needs.
type Deps struct {
	Orchestrator *scan.Orchestrator
	Store        report.Store
	Objects      storage.ObjectStorage
	Catalog      *catalog.Catalog
	Logger       *logger.Logger
	Mode         string
	CORS         middleware.CORSConfig
	Upload       handler.ScanHandlerConfig
}

// SetupRouter configures the Gin router with all routes
func SetupRouter(deps Deps) *gin.Engine {
	// Set Gin mode
	switch deps.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	// Add middleware
	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware(deps.Logger))
	r.Use(middleware.CORS(deps.CORS))

	// Create handlers
	healthHandler := handler.NewHealthHandler()
	scanHandler := handler.NewScanHandler(deps.Orchestrator, deps.Store, deps.Objects, deps.Logger, deps.Upload)
	reportHandler := handler.NewReportHandler(deps.Store, deps.Logger)
	catalogHandler := handler.NewCatalogHandler(deps.Catalog)

	// Health check
	r.GET("/health", healthHandler.Health)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		// Scan jobs
		v1.POST("/scans", scanHandler.Create)
		v1.GET("/scans", scanHandler.List)
		v1.GET("/scans/:id/status", scanHandler.Status)
		v1.POST("/scans/:id/cancel", scanHandler.Cancel)
		v1.DELETE("/scans/:id", scanHandler.Delete)

		// Reports
		v1.GET("/scans/:id/report", reportHandler.Report)
		v1.GET("/scans/:id/export", reportHandler.Export)

		// License catalog
		v1.GET("/licenses", catalogHandler.List)
		v1.GET("/licenses/:key", catalogHandler.Get)
	}

	return r
}
