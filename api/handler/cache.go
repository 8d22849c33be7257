package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/storesleuth/cache"
	"github.com/use-agent/storesleuth/models"
)

// InvalidateCache returns the handler for DELETE /api/v1/cache. The target
// URL comes from the "url" query parameter; the entry for its canonical form
// is dropped.
func InvalidateCache(c *cache.Cache) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		url := ctx.Query("url")
		if url == "" {
			ctx.JSON(http.StatusBadRequest, gin.H{
				"error": models.ErrorDetail{
					Kind:    models.ErrKindInvalidInput,
					Message: "url query parameter is required",
				},
			})
			return
		}

		existed := c.Invalidate(url)
		ctx.JSON(http.StatusOK, gin.H{"invalidated": existed})
	}
}
