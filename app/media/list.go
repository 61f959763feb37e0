package media

import (
	"net/http"
	"strconv"

	"bitwise74/media-api/internal"
	"bitwise74/media-api/internal/model"
	"bitwise74/media-api/pkg/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// MediaList returns a page of the media library. Restricted items are left
// out for callers the access policy would deny.
func MediaList(c *gin.Context, d *internal.Deps) {
	requestID := c.MustGet("requestID").(string)

	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "Invalid page",
			"requestID": requestID,
		})
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultPageSize)))
	if err != nil || limit < 1 || limit > maxPageSize {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "Invalid limit, must be between 1 and 100",
			"requestID": requestID,
		})
		return
	}

	ctx := c.Request.Context()
	caller := middleware.Caller(c)

	// Ask the policy once with an empty restricted record, denied callers
	// never see restricted rows
	probe := &model.File{Restricted: true}
	q := d.DB.WithContext(ctx).Model(&model.File{})
	if !d.Protector.Policy(ctx, caller, probe) {
		q = q.Where("restricted = ?", false)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":     "Internal server error",
			"requestID": requestID,
		})

		zap.L().Error("Failed to count media", zap.Error(err))
		return
	}

	var files []model.File
	err = q.
		Order("id desc").
		Limit(limit).
		Offset((page - 1) * limit).
		Find(&files).
		Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":     "Internal server error",
			"requestID": requestID,
		})

		zap.L().Error("Failed to list media", zap.Error(err))
		return
	}

	out := make([]mediaResponse, 0, len(files))
	for i := range files {
		if files[i].Restricted && !d.Protector.Policy(ctx, caller, &files[i]) {
			continue
		}

		out = append(out, present(d, &files[i]))
	}

	c.JSON(http.StatusOK, gin.H{
		"media": out,
		"total": total,
		"page":  page,
	})
}
