package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/threadview/threadview/internal/services"
	"github.com/threadview/threadview/pkg/domain"
)

type resumeController struct{ svc services.ApprovalService }

func NewResumeController(svc services.ApprovalService) *resumeController {
	return &resumeController{svc}
}

type resumeReq struct {
	Approved    *bool       `json:"approved" binding:"required"`
	UpdatedPlan domain.Plan `json:"updated_plan,omitempty"`
}

func (h *resumeController) Handle(c *gin.Context) {
	var req resumeReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}

	err := h.svc.Resume(c.Request.Context(), c.Param("id"), *req.Approved, req.UpdatedPlan)
	if err != nil {
		if errors.Is(err, services.ErrNoPendingPlan) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "resumed", "approved": *req.Approved})
}
