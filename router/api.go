package router

import (
	"database/sql"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"

	"github.com/telcoops/casedesk/handlers"
	"github.com/telcoops/casedesk/internal/config"
	"github.com/telcoops/casedesk/services"
)

// NewGinRouter wires services, handlers and routes.
func NewGinRouter(pg *sql.DB, redisClient *redis.Client) *gin.Engine {
	r := gin.Default()

	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization, X-API-Key")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	})

	// Services
	notifier := services.NewRedisNotificationQueue(pg, redisClient)
	historyService := services.NewHistoryService(pg)
	caseService := services.NewCaseService(pg, historyService, notifier)
	dedupService := services.NewDedupService(pg, config.App.DedupWindowMinutes)
	ruleService := services.NewRuleAssignmentService(pg)
	ingestionService := services.NewIngestionService(caseService, dedupService, ruleService)
	apiKeyService := services.NewAPIKeyService(pg)

	// Handlers
	webhookHandler := handlers.NewWebhookHandler(ingestionService)
	caseHandler := handlers.NewCaseHandler(caseService, historyService)
	ruleHandler := handlers.NewRuleAssignmentHandler(ruleService)

	// Webhook routes. Grafana cannot send custom auth flows, so these sit
	// outside the JWT middleware; deployments gate them at the edge.
	webhooks := r.Group("/webhooks")
	{
		webhooks.GET("/health", webhookHandler.Health)
		webhooks.POST("/grafana/alert", webhookHandler.GrafanaAlert)
		webhooks.POST("/grafana/resolved", webhookHandler.GrafanaResolved)
	}

	// Authenticated API
	api := r.Group("/api")
	api.Use(handlers.AuthMiddleware(apiKeyService))
	{
		api.GET("/cases", caseHandler.List)
		api.POST("/cases", caseHandler.Create)
		api.GET("/cases/stats", caseHandler.GetStats)
		api.GET("/cases/:id", caseHandler.Get)
		api.POST("/cases/:id/assign", caseHandler.Assign)
		api.POST("/cases/:id/acknowledge", caseHandler.Acknowledge)
		api.POST("/cases/:id/resolve", caseHandler.Resolve)
		api.POST("/cases/:id/reopen", caseHandler.Reopen)
		api.POST("/cases/:id/close", caseHandler.Close)
		api.POST("/cases/:id/cancel", caseHandler.Cancel)
		api.GET("/cases/:id/comments", caseHandler.GetComments)
		api.POST("/cases/:id/comments", caseHandler.AddComment)
		api.GET("/cases/:id/activity", caseHandler.GetActivity)
		api.GET("/cases/:id/history", caseHandler.GetHistory)

		api.GET("/rule-assignments", ruleHandler.List)
		api.POST("/rule-assignments", ruleHandler.Create)
		api.GET("/rule-assignments/:id", ruleHandler.Get)
		api.PUT("/rule-assignments/:id", ruleHandler.Update)
		api.DELETE("/rule-assignments/:id", ruleHandler.Delete)
	}

	return r
}
