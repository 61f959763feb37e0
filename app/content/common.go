// Package content contains the endpoints for posts, pages and other bodies
// that embed media
package content

import (
	"errors"
	"net/http"
	"strconv"

	"bitwise74/media-api/internal"
	"bitwise74/media-api/internal/model"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type contentBody struct {
	Type  string `json:"type" binding:"omitempty,max=32,alphanum"`
	Title string `json:"title" binding:"max=255"`
	Body  string `json:"body"`
}

func loadContent(c *gin.Context, d *internal.Deps) (*model.Content, bool) {
	requestID := c.MustGet("requestID").(string)

	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "Invalid content ID",
			"requestID": requestID,
		})
		return nil, false
	}

	var ct model.Content
	err = d.DB.
		WithContext(c.Request.Context()).
		Where("id = ?", id).
		First(&ct).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":     "Content not found",
				"requestID": requestID,
			})
			return nil, false
		}

		c.JSON(http.StatusInternalServerError, gin.H{
			"error":     "Internal server error",
			"requestID": requestID,
		})

		zap.L().Error("Failed to load content", zap.Uint64("content_id", id), zap.Error(err))
		return nil, false
	}

	return &ct, true
}

// index runs the post-save hook. Failing to index never fails the save.
func index(c *gin.Context, d *internal.Deps, id uint) {
	added, removed, err := d.Tracker.OnContentPersisted(c.Request.Context(), id)
	if err != nil {
		zap.L().Error("Failed to index content references", zap.Uint("content_id", id), zap.Error(err))
		return
	}

	zap.L().Debug("Indexed content references",
		zap.Uint("content_id", id),
		zap.Int("added", added),
		zap.Int("removed", removed),
	)
}
