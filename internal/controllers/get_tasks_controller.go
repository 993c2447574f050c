package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/threadview/threadview/internal/services"
)

type getTasksController struct{ svc services.ThreadService }

func NewGetTasksController(svc services.ThreadService) *getTasksController {
	return &getTasksController{svc}
}

func (h *getTasksController) Handle(c *gin.Context) {
	tasks, status, err := h.svc.Tasks(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, services.ErrThreadNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "thread not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"thread_id": c.Param("id"),
		"status":    status,
		"tasks":     tasks,
	})
}
