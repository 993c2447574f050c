package controllers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/threadview/threadview/internal/services"
	"github.com/threadview/threadview/internal/stream"
	"github.com/threadview/threadview/pkg/domain"
)

type streamController struct {
	svc       services.ThreadService
	heartbeat time.Duration
}

func NewStreamController(svc services.ThreadService, heartbeat time.Duration) *streamController {
	if heartbeat <= 0 {
		heartbeat = 15 * time.Second
	}
	return &streamController{svc: svc, heartbeat: heartbeat}
}

func (h *streamController) Handle(c *gin.Context) {
	threadID := c.Param("id")

	snapshot, sub, cancel, err := h.svc.Subscribe(c.Request.Context(), threadID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	defer cancel()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")

	// First frame is always a full sync so a (re)connecting client can
	// rebuild its state before deltas arrive.
	if err := stream.Encode(c.Writer, domain.NewEvent(domain.EventSync, threadID, snapshot)); err != nil {
		return
	}
	c.Writer.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case ev, ok := <-sub.C():
			if !ok {
				// Evicted for falling behind; the client reconnects and
				// gets a fresh sync frame.
				return
			}
			if err := stream.Encode(c.Writer, ev); err != nil {
				return
			}
			c.Writer.Flush()
		case <-ticker.C:
			if err := stream.WriteHeartbeat(c.Writer); err != nil {
				return
			}
			c.Writer.Flush()
		}
	}
}
