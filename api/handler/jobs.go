package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/storesleuth/models"
	"github.com/use-agent/storesleuth/orchestrator"
)

// SubmitJob returns the handler for POST /api/v1/jobs. The extraction runs in
// the background; the client polls GET /api/v1/jobs/:id or registers a
// webhook_url on the request.
func SubmitJob(orch *orchestrator.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.ExtractRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, models.ExtractResponse{
				Success: false,
				Error: &models.ErrorDetail{
					Kind:    models.ErrKindInvalidInput,
					Message: err.Error(),
				},
			})
			return
		}

		id, err := orch.Submit(req)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, orchestrator.ErrShuttingDown) {
				status = http.StatusServiceUnavailable
			}
			c.JSON(status, models.ExtractResponse{
				Success: false,
				Error: &models.ErrorDetail{
					Kind:    models.ErrKindInternal,
					Message: err.Error(),
				},
			})
			return
		}

		c.JSON(http.StatusAccepted, models.JobAcceptedResponse{
			ID:     id,
			Status: models.JobQueued,
		})
	}
}

// JobStatus returns the handler for GET /api/v1/jobs/:id.
func JobStatus(orch *orchestrator.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")

		snap, err := orch.Status(id)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
			return
		}

		resp := models.JobStatusResponse{Job: snap}
		if snap.Phase == models.JobSucceeded {
			if result, _ := orch.Result(id); result != nil {
				resp.Result = result.Product
			}
		}
		c.JSON(http.StatusOK, resp)
	}
}

// CancelJob returns the handler for DELETE /api/v1/jobs/:id. Cancelling a
// finished job is a no-op that still returns 202.
func CancelJob(orch *orchestrator.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")

		if err := orch.Cancel(id); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"id": id, "status": "cancelling"})
	}
}
