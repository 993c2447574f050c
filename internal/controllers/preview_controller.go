package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/threadview/threadview/internal/services"
)

type previewController struct {
	threads services.ThreadService
	preview services.PreviewService
}

func NewPreviewController(threads services.ThreadService, preview services.PreviewService) *previewController {
	return &previewController{threads: threads, preview: preview}
}

func (h *previewController) Handle(c *gin.Context) {
	artifact, err := h.threads.Artifact(c.Request.Context(), c.Param("id"), c.Param("artifactID"))
	if err != nil {
		switch {
		case errors.Is(err, services.ErrThreadNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "thread not found"})
		case errors.Is(err, services.ErrArtifactNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "artifact not found"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	rendered, err := h.preview.Render(artifact)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(rendered))
}
