// Package admin contains maintenance endpoints for administrators
package admin

import (
	"errors"
	"net/http"

	"bitwise74/media-api/internal"
	"bitwise74/media-api/internal/model"
	"bitwise74/media-api/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AdminReindex runs the bulk reindex job synchronously. Options missing from
// the body fall back to the configured ones.
func AdminReindex(c *gin.Context, d *internal.Deps) {
	requestID := c.MustGet("requestID").(string)

	if role, _ := c.MustGet("role").(model.Role); !role.Can(model.CapManageOptions) {
		c.JSON(http.StatusForbidden, gin.H{
			"error":     "You are not allowed to run maintenance jobs",
			"requestID": requestID,
		})
		return
	}

	opts := internal.ReindexOptions()
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&opts); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":     "Invalid request body",
				"requestID": requestID,
			})
			return
		}
	}

	res, err := d.Reindexer.Run(c.Request.Context(), opts)
	if err != nil {
		if errors.Is(err, service.ErrInvalidBatchSize) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":     "Batch size must be between 1 and 1000",
				"requestID": requestID,
			})
			return
		}

		c.JSON(http.StatusInternalServerError, gin.H{
			"error":     "Internal server error",
			"requestID": requestID,
		})

		zap.L().Error("Reindex failed", zap.Error(err), zap.String("requestID", requestID))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    res,
	})
}
