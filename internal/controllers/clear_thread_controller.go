package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/threadview/threadview/internal/services"
)

type clearThreadController struct{ svc services.ThreadService }

func NewClearThreadController(svc services.ThreadService) *clearThreadController {
	return &clearThreadController{svc}
}

func (h *clearThreadController) Handle(c *gin.Context) {
	if err := h.svc.Clear(c.Request.Context(), c.Param("id")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cleared"})
}
