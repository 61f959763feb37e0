package content

import (
	"net/http"

	"bitwise74/media-api/internal"
	"bitwise74/media-api/internal/model"
	"bitwise74/media-api/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func ContentCreate(c *gin.Context, d *internal.Deps) {
	requestID := c.MustGet("requestID").(string)
	userID := c.MustGet("userID").(string)

	if role, _ := c.MustGet("role").(model.Role); !role.Can(model.CapEditPost) {
		c.JSON(http.StatusForbidden, gin.H{
			"error":     "You are not allowed to create content",
			"requestID": requestID,
		})
		return
	}

	var data contentBody
	if err := c.ShouldBindJSON(&data); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "Invalid request body",
			"requestID": requestID,
		})
		return
	}

	ct := model.Content{
		UserID: userID,
		Type:   data.Type,
		Title:  data.Title,
		Body:   d.Tracker.OnSave(c.Request.Context(), data.Body),
	}

	if ct.Type == "" {
		ct.Type = "post"
	}

	if err := d.DB.WithContext(c.Request.Context()).Create(&ct).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":     "Internal server error",
			"requestID": requestID,
		})

		zap.L().Error("Failed to create content", zap.Error(err))
		return
	}

	index(c, d, ct.ID)
	reload(c, d, &ct)

	c.JSON(http.StatusCreated, ct)
}

func ContentUpdate(c *gin.Context, d *internal.Deps) {
	requestID := c.MustGet("requestID").(string)
	userID := c.MustGet("userID").(string)

	ct, ok := loadContent(c, d)
	if !ok {
		return
	}

	if role, _ := c.MustGet("role").(model.Role); !role.CanEdit(userID, ct.UserID) {
		c.JSON(http.StatusForbidden, gin.H{
			"error":     "You are not allowed to edit this content",
			"requestID": requestID,
		})
		return
	}

	var data contentBody
	if err := c.ShouldBindJSON(&data); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "Invalid request body",
			"requestID": requestID,
		})
		return
	}

	updates := map[string]any{
		"title": data.Title,
		"body":  d.Tracker.OnSave(c.Request.Context(), data.Body),
	}

	if data.Type != "" {
		updates["type"] = data.Type
	}

	err := d.DB.
		WithContext(c.Request.Context()).
		Model(&model.Content{ID: ct.ID}).
		Updates(updates).
		Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":     "Internal server error",
			"requestID": requestID,
		})

		zap.L().Error("Failed to update content", zap.Uint("content_id", ct.ID), zap.Error(err))
		return
	}

	d.Cache.Delete(service.RenderCacheKey(ct.ID))
	index(c, d, ct.ID)
	reload(c, d, ct)

	c.JSON(http.StatusOK, ct)
}

func reload(c *gin.Context, d *internal.Deps, ct *model.Content) {
	if err := d.DB.WithContext(c.Request.Context()).Where("id = ?", ct.ID).First(ct).Error; err != nil {
		zap.L().Warn("Failed to reload content", zap.Uint("content_id", ct.ID), zap.Error(err))
	}
}
