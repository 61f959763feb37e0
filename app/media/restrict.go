package media

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"bitwise74/media-api/internal"
	"bitwise74/media-api/internal/model"
	"bitwise74/media-api/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

type restrictBody struct {
	Restrict   *bool `json:"restrict"`
	UpdatePost *bool `json:"update_post"`
}

// boolParam reads a flag from the query first, then the JSON body, else def
func boolParam(c *gin.Context, name string, body *bool, def bool) (bool, error) {
	if raw, ok := c.GetQuery(name); ok {
		return strconv.ParseBool(raw)
	}

	if body != nil {
		return *body, nil
	}

	return def, nil
}

func MediaRestrict(c *gin.Context, d *internal.Deps) {
	requestID := c.MustGet("requestID").(string)
	userID := c.MustGet("userID").(string)

	f, ok := loadFile(c, d)
	if !ok {
		return
	}

	if !canEdit(c, f) {
		return
	}

	var body restrictBody
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":     "Invalid request body",
				"requestID": requestID,
			})
			return
		}
	}

	restrict, err := boolParam(c, "restrict", body.Restrict, true)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "restrict must be a boolean",
			"requestID": requestID,
		})
		return
	}

	updatePost, err := boolParam(c, "update_post", body.UpdatePost, true)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "update_post must be a boolean",
			"requestID": requestID,
		})
		return
	}

	ctx := c.Request.Context()

	if f.StoragePath == "" || !d.Store.Exists(ctx, f.StoragePath) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":     "The attached file does not exist on the server",
			"requestID": requestID,
		})
		return
	}

	result, err := d.Engine.SetRestricted(ctx, f.ID, restrict, service.TransitionOptions{UpdateContent: updatePost})
	if err != nil {
		if errors.Is(err, service.ErrMediaNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":     "The specified file does not exist",
				"requestID": requestID,
			})
			return
		}

		if errors.Is(err, service.ErrConcurrentTransition) {
			c.JSON(http.StatusConflict, gin.H{
				"error":     "The file restriction was changed by another request",
				"requestID": requestID,
			})
			return
		}

		c.JSON(http.StatusInternalServerError, gin.H{
			"error":     "An error occurred while processing the file restriction",
			"requestID": requestID,
		})

		zap.L().Error("Failed to change media restriction", zap.Uint("media_id", f.ID), zap.Error(err), zap.String("requestID", requestID))
		return
	}

	data := gin.H{
		"file_id":  f.ID,
		"restrict": restrict,
	}

	if result == service.ResultNoChange {
		msg := "File is already unrestricted"
		if restrict {
			msg = "File is already restricted"
		}

		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"message": msg,
			"status":  result,
			"data":    data,
		})
		return
	}

	audit := &model.RestrictAudit{
		Restrict:   restrict,
		UserID:     userID,
		Date:       time.Now().Unix(),
		UpdatePost: updatePost,
	}

	err = d.DB.
		WithContext(ctx).
		Model(&model.File{ID: f.ID}).
		Update("restrict_audit", datatypes.NewJSONType(audit)).
		Error
	if err != nil {
		zap.L().Warn("Failed to record restriction audit", zap.Uint("media_id", f.ID), zap.Error(err))
	}

	if err := d.DB.WithContext(ctx).Where("id = ?", f.ID).First(f).Error; err != nil {
		zap.L().Warn("Failed to reload media", zap.Uint("media_id", f.ID), zap.Error(err))
	}

	msg := "File has been successfully unrestricted"
	if restrict {
		msg = "File has been successfully restricted"
	}

	data["url"] = d.URLs.MediaURL(f)

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": msg,
		"status":  result,
		"data":    data,
	})
}
