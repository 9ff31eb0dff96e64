package handlers

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/telcoops/casedesk/db"
	"github.com/telcoops/casedesk/services"
)

// WebhookHandler receives Grafana alert webhooks and feeds the case
// pipeline.
type WebhookHandler struct {
	Ingestion *services.IngestionService
}

func NewWebhookHandler(ingestion *services.IngestionService) *WebhookHandler {
	return &WebhookHandler{Ingestion: ingestion}
}

// GrafanaAlert handles POST /webhooks/grafana/alert. The envelope may mix
// firing and resolved alerts; each is routed by its own status.
func (h *WebhookHandler) GrafanaAlert(c *gin.Context) {
	var payload GrafanaWebhook
	if err := c.ShouldBindJSON(&payload); err != nil {
		log.Printf("WARNING: malformed grafana webhook: %v", err)
		c.JSON(http.StatusBadRequest, db.WebhookResponse{
			Success: false,
			Error:   "invalid webhook payload: " + err.Error(),
		})
		return
	}
	if len(payload.Alerts) == 0 {
		c.JSON(http.StatusOK, db.WebhookResponse{
			Success: true,
			Message: "no alerts in payload",
		})
		return
	}

	log.Printf("INFO: grafana webhook received (status=%s, alerts=%d)", payload.Status, len(payload.Alerts))

	events := make([]services.AlertEvent, 0, len(payload.Alerts))
	for i := range payload.Alerts {
		events = append(events, normalizeAlert(&payload.Alerts[i]))
	}

	touched, failures, err := h.Ingestion.ProcessAlerts(c.Request.Context(), events)
	if err != nil {
		c.JSON(http.StatusInternalServerError, db.WebhookResponse{
			Success: false,
			Error:   err.Error(),
		})
		return
	}

	resp := db.WebhookResponse{
		Success: failures == 0,
		Cases:   touched,
		Count:   len(touched),
	}
	if failures > 0 {
		resp.Message = "some alerts failed processing"
	}
	c.JSON(http.StatusOK, resp)
}

// GrafanaResolved handles POST /webhooks/grafana/resolved for senders that
// split recovery notifications onto their own route.
func (h *WebhookHandler) GrafanaResolved(c *gin.Context) {
	var payload GrafanaWebhook
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, db.WebhookResponse{
			Success: false,
			Error:   "invalid webhook payload: " + err.Error(),
		})
		return
	}

	// Only resolved alerts belong on this route; a mixed payload must not
	// auto-resolve cases whose alerts are still firing.
	events := make([]services.AlertEvent, 0, len(payload.Alerts))
	for i := range payload.Alerts {
		if payload.Alerts[i].Status != "resolved" {
			log.Printf("DEBUG: skipping %s alert on resolved route", payload.Alerts[i].Status)
			continue
		}
		events = append(events, normalizeAlert(&payload.Alerts[i]))
	}

	touched, failures, err := h.Ingestion.ProcessAlerts(c.Request.Context(), events)
	if err != nil {
		c.JSON(http.StatusInternalServerError, db.WebhookResponse{Success: false, Error: err.Error()})
		return
	}

	c.JSON(http.StatusOK, db.WebhookResponse{
		Success: failures == 0,
		Cases:   touched,
		Count:   len(touched),
	})
}

// Health handles GET /webhooks/health.
func (h *WebhookHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
