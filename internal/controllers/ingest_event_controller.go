package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/threadview/threadview/internal/services"
	"github.com/threadview/threadview/pkg/domain"
)

type ingestEventController struct{ svc services.ThreadService }

func NewIngestEventController(svc services.ThreadService) *ingestEventController {
	return &ingestEventController{svc}
}

func (h *ingestEventController) Handle(c *gin.Context) {
	var ev domain.Event
	if err := c.ShouldBindJSON(&ev); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	// The URL is authoritative for the thread id.
	ev.ThreadID = c.Param("id")

	if err := h.svc.Ingest(c.Request.Context(), ev); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}
