package media

import (
	"net/http"

	"bitwise74/media-api/internal"
	"bitwise74/media-api/pkg/middleware"

	"github.com/gin-gonic/gin"
)

func MediaFetch(c *gin.Context, d *internal.Deps) {
	requestID := c.MustGet("requestID").(string)

	f, ok := loadFile(c, d)
	if !ok {
		return
	}

	if f.Restricted && !d.Protector.Policy(c.Request.Context(), middleware.Caller(c), f) {
		c.JSON(http.StatusForbidden, gin.H{
			"error":     "You do not have permission to access this media",
			"requestID": requestID,
		})
		return
	}

	c.JSON(http.StatusOK, present(d, f))
}
