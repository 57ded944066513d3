package router

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"xtracto/internal/config"
	"xtracto/internal/handlers"
	"xtracto/internal/middleware"
	"xtracto/internal/scheduler"
	"xtracto/internal/store"
)

// Setup builds the control-surface router (§4.I, §6).
func Setup(sup *scheduler.Supervisor, s *store.Store) *gin.Engine {
	control := handlers.NewControlHandler(sup, s)

	r := setupBaseRouter()

	r.GET("/api/v1/health", control.Health)
	r.GET("/api/v1/status", control.Status)

	scrape := r.Group("/api/v1/scrape")
	{
		scrape.GET("/100_pages", control.StartBulkCrawl)
		scrape.GET("/loop", control.StartLoop)
		scrape.GET("/agence_brute", control.StartAgenceBrute)
		scrape.GET("/agence_notexisting", control.StartAgenceNotExisting)
		scrape.GET("/process_and_transfer", control.StartImageProcessor)
	}

	r.GET("/api/v1/stop/:task_name", control.Stop)

	return r
}

func setupBaseRouter() *gin.Engine {
	r := gin.New()

	r.Use(otelgin.Middleware("xtracto"))
	r.Use(middleware.Observability())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.RateLimit())

	// Only trust proxy headers from an explicitly configured range; nil
	// means none, preventing IP spoofing when not behind a reverse proxy.
	r.SetTrustedProxies(nil)

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = config.GetAllowedOrigins()
	corsConfig.AllowHeaders = []string{
		"Origin", "Content-Type", "Authorization", "Accept", "User-Agent",
	}
	corsConfig.AllowMethods = []string{"GET", "POST"}
	corsConfig.AllowCredentials = true
	r.Use(cors.New(corsConfig))

	return r
}
