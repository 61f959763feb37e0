package media

import (
	"errors"
	"net/http"

	"bitwise74/media-api/internal"
	"bitwise74/media-api/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func MediaDelete(c *gin.Context, d *internal.Deps) {
	requestID := c.MustGet("requestID").(string)

	f, ok := loadFile(c, d)
	if !ok {
		return
	}

	if !canEdit(c, f) {
		return
	}

	if err := d.Remover.Remove(c.Request.Context(), f.ID); err != nil {
		if errors.Is(err, service.ErrMediaNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":     "The specified file does not exist",
				"requestID": requestID,
			})
			return
		}

		c.JSON(http.StatusInternalServerError, gin.H{
			"error":     "Internal server error",
			"requestID": requestID,
		})

		zap.L().Error("Failed to delete media", zap.Uint("media_id", f.ID), zap.Error(err))
		return
	}

	c.Status(http.StatusNoContent)
}
