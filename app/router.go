// Package app wires the HTTP surface of the media service
package app

import (
	"time"

	"bitwise74/media-api/app/admin"
	"bitwise74/media-api/app/content"
	"bitwise74/media-api/app/media"
	"bitwise74/media-api/app/protected"
	"bitwise74/media-api/app/root"
	"bitwise74/media-api/app/uploads"
	"bitwise74/media-api/app/user"
	"bitwise74/media-api/internal"
	"bitwise74/media-api/pkg/middleware"

	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	gray  = "\x1b[90m"
	reset = "\x1b[0m"
)

// MakeLogger replaces the global zap logger with the coloured development
// logger used by the server and the CLI
func MakeLogger(level string) {
	cfg := zap.NewDevelopmentConfig()
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	cfg.EncoderConfig.EncodeTime = func(t time.Time, pae zapcore.PrimitiveArrayEncoder) {
		pae.AppendString(gray + t.Format("15:04:05.000") + reset)
	}
	cfg.EncoderConfig.EncodeCaller = func(ec zapcore.EntryCaller, pae zapcore.PrimitiveArrayEncoder) {
		pae.AppendString(gray + ec.TrimmedPath() + reset)
	}

	if lvl, err := zapcore.ParseLevel(level); err == nil {
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}

	cfg.DisableStacktrace = true

	log, _ := cfg.Build()
	zap.ReplaceGlobals(log)
}

func NewRouter(d *internal.Deps) *gin.Engine {
	router := gin.New()

	router.Use(
		cors.New(cors.Config{
			AllowOrigins:     viper.GetStringSlice("host.cors"),
			AllowMethods:     []string{"GET", "POST", "PATCH", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
			ExposeHeaders:    []string{"Content-Length", "Content-Disposition"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}),
		gin.Recovery(),
		middleware.NewRequestIDMiddleware(),
		ginzap.GinzapWithConfig(zap.L(), &ginzap.Config{
			TimeFormat: "15:04:05.000",
			UTC:        true,
			Skipper: func(c *gin.Context) bool {
				return c.Request.Method == "HEAD"
			},
			Context: func(c *gin.Context) []zapcore.Field {
				fields := []zapcore.Field{}

				if v := c.GetString("requestID"); v != "" {
					fields = append(fields, zap.String("request_id", v))
				}

				if v := c.GetString("userID"); v != "" {
					fields = append(fields, zap.String("userID", v))
				}

				return fields
			},
		}),
	)

	router.HandleMethodNotAllowed = true
	router.RedirectFixedPath = true
	router.MaxMultipartMemory = 8 << 20

	rateLimit := viper.GetInt("security.rate_limit")
	maxUploadSize := viper.GetInt64("upload.max_size")

	jwt := middleware.NewJWTMiddleware(d.DB, d.JWTSecret, true)
	optionalJWT := middleware.NewJWTMiddleware(d.DB, d.JWTSecret, false)
	rateLimiter := middleware.RateLimiterMiddleware(middleware.RateLimiterConfig{
		RequestsPerSecond: rateLimit,
		Burst:             rateLimit * 2,
		CleanupInterval:   time.Minute,
	})

	// GET /protected-files/:token	-> Serves a restricted file or the placeholder
	router.GET("/"+d.Layout.ProtectedPath+"/:token",
		middleware.NoPageCache(),
		rateLimiter,
		optionalJWT,
		func(c *gin.Context) { protected.ProtectedServe(c, d) },
	)

	// GET /uploads/*path		-> Serves a file from the public upload tree
	router.GET("/uploads/*path", func(c *gin.Context) { uploads.UploadsServe(c, d) })

	// GET /metrics			-> Prometheus metrics
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	m := router.Group("/api", rateLimiter)
	{
		// HEAD /api/heartbeat 		-> Used to check if the server is alive
		m.HEAD("/heartbeat", root.Heartbeat)
	}

	u := m.Group("/users", middleware.BodySizeLimiter(1<<20))
	{
		// POST /api/users/login 	-> Logs in a user and returns a JWT token
		u.POST("/login", func(c *gin.Context) { user.UserLogin(c, d) })
	}

	md := m.Group("/media")
	{
		// GET /api/media		-> Lists media, restricted items only for allowed callers
		md.GET("", optionalJWT, func(c *gin.Context) { media.MediaList(c, d) })

		// GET /api/media/:id		-> Returns a single media item
		md.GET("/:id", optionalJWT, func(c *gin.Context) { media.MediaFetch(c, d) })

		// GET /api/media/:id/status	-> Returns the restriction status of a file
		md.GET("/:id/status", jwt, func(c *gin.Context) { media.MediaStatus(c, d) })

		// PATCH /api/media/:id/restrict	-> Restricts or unrestricts a file
		md.PATCH("/:id/restrict", jwt, middleware.BodySizeLimiter(1<<20), func(c *gin.Context) { media.MediaRestrict(c, d) })

		// POST /api/media		-> Uploads a new file and renders its size variants
		md.POST("", jwt, middleware.BodySizeLimiter(maxUploadSize+1<<20), func(c *gin.Context) { media.MediaUpload(c, d) })

		// DELETE /api/media/:id	-> Deletes a file and everything derived from it
		md.DELETE("/:id", jwt, func(c *gin.Context) { media.MediaDelete(c, d) })
	}

	ct := m.Group("/content")
	{
		// GET /api/content/:id		-> Returns a content record
		ct.GET("/:id", func(c *gin.Context) { content.ContentFetch(c, d) })

		// POST /api/content		-> Creates content and indexes its media references
		ct.POST("", jwt, middleware.BodySizeLimiter(4<<20), func(c *gin.Context) { content.ContentCreate(c, d) })

		// PUT /api/content/:id		-> Updates content and reindexes its media references
		ct.PUT("/:id", jwt, middleware.BodySizeLimiter(4<<20), func(c *gin.Context) { content.ContentUpdate(c, d) })

		// DELETE /api/content/:id	-> Deletes content and severs its media references
		ct.DELETE("/:id", jwt, func(c *gin.Context) { content.ContentDelete(c, d) })
	}

	a := m.Group("/admin", jwt)
	{
		// POST /api/admin/reindex	-> Rebuilds the media reference index
		a.POST("/reindex", func(c *gin.Context) { admin.AdminReindex(c, d) })
	}

	return router
}
