// Package protected serves restricted media through hash based URLs
package protected

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"path"
	"strconv"

	"bitwise74/media-api/internal"
	"bitwise74/media-api/internal/service"
	"bitwise74/media-api/internal/storage"
	"bitwise74/media-api/pkg/middleware"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	chunkSize = 8192
	sniffSize = 3072
)

func notFound(c *gin.Context) {
	service.ObserveProtectedRequest("not_found")
	c.AbortWithStatusJSON(http.StatusNotFound, gin.H{
		"error":     "File not found",
		"requestID": c.MustGet("requestID").(string),
	})
}

// denied answers with the placeholder image. Nothing about the real file
// leaks into the headers.
func denied(c *gin.Context) {
	service.ObserveProtectedRequest("denied")

	c.Header("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
	c.Writer.Header().Add("Cache-Control", "post-check=0, pre-check=0")
	c.Header("Pragma", "no-cache")
	c.Header("Content-Length", strconv.Itoa(len(service.Placeholder)))
	c.Data(http.StatusOK, "image/gif", service.Placeholder)
	c.Abort()
}

// ProtectedServe resolves GET /protected-files/:token[?type=jpg] and streams
// the file to callers the access policy allows
func ProtectedServe(c *gin.Context, d *internal.Deps) {
	requestID := c.MustGet("requestID").(string)

	token, ok := service.ParseToken(c.Param("token"), c.Query("type"))
	if !ok {
		notFound(c)
		return
	}

	ctx := c.Request.Context()

	located, err := d.Protector.Locate(ctx, token)
	if err != nil {
		notFound(c)
		return
	}

	if !d.Protector.Servable(located) {
		notFound(c)
		return
	}

	if !d.Protector.Allowed(ctx, middleware.Caller(c), located) {
		denied(c)
		return
	}

	r, info, err := d.Store.Open(ctx, located.Path)
	if err != nil {
		if !errors.Is(err, storage.ErrNotExist) {
			zap.L().Error("Failed to open protected file",
				zap.Uint("media_id", located.File.ID),
				zap.Error(err),
				zap.String("requestID", requestID),
			)
		}

		notFound(c)
		return
	}
	defer r.Close()

	head := make([]byte, sniffSize)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		zap.L().Error("Failed to read protected file", zap.Uint("media_id", located.File.ID), zap.Error(err))
		notFound(c)
		return
	}
	head = head[:n]

	service.ObserveProtectedRequest("served")

	h := c.Writer.Header()
	h.Set("Content-Type", mimetype.Detect(head).String())
	h.Set("Content-Disposition", `inline; filename="`+path.Base(located.Path)+`"`)
	h.Set("Content-Length", strconv.FormatInt(info.Size, 10))
	c.Status(http.StatusOK)

	buf := make([]byte, chunkSize)
	src := io.MultiReader(bytes.NewReader(head), r)
	for {
		n, err := src.Read(buf)
		if n > 0 {
			if _, werr := c.Writer.Write(buf[:n]); werr != nil {
				zap.L().Debug("Client went away during protected stream", zap.Error(werr))
				break
			}
			c.Writer.Flush()
		}

		if err != nil {
			if !errors.Is(err, io.EOF) {
				zap.L().Error("Failed to stream protected file", zap.Uint("media_id", located.File.ID), zap.Error(err))
			}
			break
		}
	}

	// Nothing else runs for this request once the bytes are out
	c.Abort()
}
