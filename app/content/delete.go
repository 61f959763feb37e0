package content

import (
	"net/http"

	"bitwise74/media-api/internal"
	"bitwise74/media-api/internal/model"
	"bitwise74/media-api/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func ContentDelete(c *gin.Context, d *internal.Deps) {
	requestID := c.MustGet("requestID").(string)
	userID := c.MustGet("userID").(string)

	ct, ok := loadContent(c, d)
	if !ok {
		return
	}

	if role, _ := c.MustGet("role").(model.Role); !role.CanEdit(userID, ct.UserID) {
		c.JSON(http.StatusForbidden, gin.H{
			"error":     "You are not allowed to delete this content",
			"requestID": requestID,
		})
		return
	}

	ctx := c.Request.Context()

	if err := d.Tracker.OnContentDeleted(ctx, ct.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":     "Internal server error",
			"requestID": requestID,
		})

		zap.L().Error("Failed to sever content references", zap.Uint("content_id", ct.ID), zap.Error(err))
		return
	}

	if err := d.DB.WithContext(ctx).Delete(&model.Content{}, ct.ID).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":     "Internal server error",
			"requestID": requestID,
		})

		zap.L().Error("Failed to delete content", zap.Uint("content_id", ct.ID), zap.Error(err))
		return
	}

	d.Cache.Delete(service.RenderCacheKey(ct.ID))
	c.Status(http.StatusNoContent)
}
