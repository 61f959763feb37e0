// Package media contains the media library endpoints
package media

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

// parseID reads the :id param. It writes the error response itself.
func parseID(c *gin.Context) (uint, bool) {
	requestID := c.MustGet("requestID").(string)

	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "Invalid media ID",
			"requestID": requestID,
		})
		return 0, false
	}

	return uint(id), true
}

// loadFile fetches a media record by the :id param. It writes the error
// response itself.
func loadFile(c *gin.Context, d *internal.Deps) (*model.File, bool) {
	requestID := c.MustGet("requestID").(string)

	id, ok := parseID(c)
	if !ok {
		return nil, false
	}

	var f model.File
	err := d.DB.
		WithContext(c.Request.Context()).
		Where("id = ?", id).
		First(&f).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":     "The specified file does not exist",
				"requestID": requestID,
			})
			return nil, false
		}

		c.JSON(http.StatusInternalServerError, gin.H{
			"error":     "Internal server error",
			"requestID": requestID,
		})

		zap.L().Error("Failed to load media", zap.Uint("media_id", id), zap.Error(err))
		return nil, false
	}

	return &f, true
}

// canEdit requires upload rights and edit rights on this item
func canEdit(c *gin.Context, f *model.File) bool {
	role, _ := c.MustGet("role").(model.Role)
	userID := c.GetString("userID")

	if role.Can(model.CapUploadFiles) && role.CanEdit(userID, f.UserID) {
		return true
	}

	c.JSON(http.StatusForbidden, gin.H{
		"error":     "You are not allowed to edit this file",
		"requestID": c.MustGet("requestID").(string),
	})
	return false
}

type mediaResponse struct {
	*model.File
	URL        string            `json:"url"`
	Sizes      any               `json:"sizes"`
	Srcset     string            `json:"srcset,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

func present(d *internal.Deps, f *model.File) mediaResponse {
	return mediaResponse{
		File:       f,
		URL:        d.URLs.MediaURL(f),
		Sizes:      d.URLs.Sizes(f),
		Srcset:     d.URLs.Srcset(f),
		Attributes: d.URLs.ImageAttributes(f),
	}
}
