package content

import (
	"net/http"
	"strconv"

	"bitwise74/media-api/internal"
	"bitwise74/media-api/internal/model"
	"bitwise74/media-api/internal/service"

	"github.com/gin-gonic/gin"
)

// ContentFetch returns a stored content record, served from the render cache
// when possible
func ContentFetch(c *gin.Context, d *internal.Deps) {
	if id, err := strconv.ParseUint(c.Param("id"), 10, 64); err == nil {
		var cached model.Content
		if err := d.Cache.Get(service.RenderCacheKey(uint(id)), &cached); err == nil {
			c.Header("X-Cache", "HIT")
			c.JSON(http.StatusOK, cached)
			return
		}
	}

	ct, ok := loadContent(c, d)
	if !ok {
		return
	}

	d.Cache.Set(service.RenderCacheKey(ct.ID), *ct)

	c.Header("X-Cache", "MISS")
	c.JSON(http.StatusOK, ct)
}
