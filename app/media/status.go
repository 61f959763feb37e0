package media

import (
	"net/http"
	"path"
	"time"

	"bitwise74/media-api/internal"

	"github.com/gin-gonic/gin"
)

func MediaStatus(c *gin.Context, d *internal.Deps) {
	f, ok := loadFile(c, d)
	if !ok {
		return
	}

	if !canEdit(c, f) {
		return
	}

	var (
		exists   bool
		size     int64
		filename string
	)

	if f.StoragePath != "" {
		filename = path.Base(f.StoragePath)
		if info, err := d.Store.Stat(c.Request.Context(), f.StoragePath); err == nil {
			exists = true
			size = info.Size
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"file_id":       f.ID,
			"is_restricted": f.Restricted,
			"url":           d.URLs.MediaURL(f),
			"exists":        exists,
			"filename":      filename,
			"mime_type":     f.MimeType,
			"file_size":     size,
			"upload_date":   time.Unix(f.CreatedAt, 0).UTC().Format(time.RFC3339),
			"modified_date": time.Unix(f.UpdatedAt, 0).UTC().Format(time.RFC3339),
		},
	})
}
