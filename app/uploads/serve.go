// Package uploads serves the public upload tree
package uploads

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strconv"

	"bitwise74/media-api/internal"
	"bitwise74/media-api/internal/storage"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// UploadsServe streams a file from the public tree. The protected directory
// is never reachable this way.
func UploadsServe(c *gin.Context, d *internal.Deps) {
	requestID := c.MustGet("requestID").(string)

	p := storage.Clean(c.Param("path"))
	if p == "" || d.Layout.IsProtectedPath(p) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":     "File not found",
			"requestID": requestID,
		})
		return
	}

	r, info, err := d.Store.Open(c.Request.Context(), p)
	if err != nil {
		if !errors.Is(err, storage.ErrNotExist) {
			zap.L().Error("Failed to open upload", zap.String("path", p), zap.Error(err))
		}

		c.JSON(http.StatusNotFound, gin.H{
			"error":     "File not found",
			"requestID": requestID,
		})
		return
	}
	defer r.Close()

	// Files can move into the protected tree at any time, so caches must
	// revalidate on every request
	etag := `"` + strconv.FormatInt(info.Size, 36) + "-" + strconv.FormatInt(info.ModTime, 36) + `"`
	c.Header("Cache-Control", "no-cache")
	c.Header("ETag", etag)

	if c.GetHeader("If-None-Match") == etag {
		c.Status(http.StatusNotModified)
		return
	}

	head := make([]byte, 3072)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":     "Internal server error",
			"requestID": requestID,
		})

		zap.L().Error("Failed to read upload", zap.String("path", p), zap.Error(err))
		return
	}
	head = head[:n]

	c.DataFromReader(http.StatusOK, info.Size, mimetype.Detect(head).String(), io.MultiReader(bytes.NewReader(head), r), nil)
}
