package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/storesleuth/models"
	"github.com/use-agent/storesleuth/orchestrator"
)

// Extract returns the handler for POST /api/v1/extract. The extraction runs
// synchronously on the request context; closing the connection cancels it.
func Extract(orch *orchestrator.Orchestrator) gin.HandlerFunc {
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

		resp, err := orch.Run(c.Request.Context(), req)
		if err != nil {
			status := http.StatusInternalServerError
			if err == orchestrator.ErrShuttingDown {
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

		c.JSON(statusFor(resp), resp)
	}
}

// statusFor maps a finished extraction onto an HTTP status.
func statusFor(resp *models.ExtractResponse) int {
	if resp.Success {
		return http.StatusOK
	}
	if resp.Error == nil {
		return http.StatusInternalServerError
	}
	switch resp.Error.Kind {
	case models.ErrKindInvalidInput:
		return http.StatusBadRequest
	case models.ErrKindFetchTimeout:
		return http.StatusGatewayTimeout
	case models.ErrKindNavigation, models.ErrKindRenderCrash,
		models.ErrKindModelUnavailable, models.ErrKindBlocked:
		return http.StatusBadGateway
	case models.ErrKindUnsupportedPage, models.ErrKindMalformedResponse:
		return http.StatusUnprocessableEntity
	case models.ErrKindPoolExhausted, models.ErrKindRateLimited:
		return http.StatusTooManyRequests
	case models.ErrKindCancelled:
		return 499 // client closed request
	case models.ErrKindUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
