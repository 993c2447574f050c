package controllers

import (
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"
	"github.com/threadview/threadview/internal/services"
)

type adminThreadsController struct{ svc services.ThreadService }

func NewAdminThreadsController(svc services.ThreadService) *adminThreadsController {
	return &adminThreadsController{svc}
}

func (h *adminThreadsController) Handle(c *gin.Context) {
	stats := h.svc.Stats(c.Request.Context())
	sort.Slice(stats, func(i, j int) bool { return stats[i].ThreadID < stats[j].ThreadID })
	c.JSON(http.StatusOK, gin.H{"threads": stats, "count": len(stats)})
}
