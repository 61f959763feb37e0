package main

import (
	"context"
	"fmt"

	"bitwise74/media-api/app"
	"bitwise74/media-api/config"
	"bitwise74/media-api/internal"
	"bitwise74/media-api/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func main() {
	gin.SetMode(gin.ReleaseMode)

	err := config.Setup()
	if err != nil {
		panic(err)
	}

	app.MakeLogger(viper.GetString("app.log_level"))

	ctx := context.Background()

	d, err := internal.NewDeps(ctx)
	if err != nil {
		zap.L().Fatal("Failed to initialize dependencies", zap.Error(err))
	}
	defer d.Close()

	opts := internal.ReindexOptions()

	// --reindex runs the bulk job once and exits
	if viper.GetBool("reindex") {
		res, err := d.Reindexer.Run(ctx, opts)
		if err != nil {
			zap.L().Fatal("Reindex failed", zap.Error(err))
		}

		zap.L().Info("Reindex done", zap.Int("processed", res.Processed), zap.Int("batches", res.Batches))
		return
	}

	if res, ran, err := d.Reindexer.RunInitialSetup(ctx, opts); err != nil {
		zap.L().Error("Initial reindex failed", zap.Error(err))
	} else if ran {
		zap.L().Info("Initial reindex done", zap.Int("processed", res.Processed), zap.Int("attachments_found", res.Found))
	}

	if t := viper.GetDuration("reindex.interval"); t > 0 {
		service.ReindexSchedule(t, d.Reindexer, opts)
	}

	router := app.NewRouter(d)
	addr := fmt.Sprintf(":%d", viper.GetInt("host.port"))

	zap.L().Info("Server starting", zap.String("addr", addr))

	if viper.GetBool("host.ssl.enabled") {
		err = router.RunTLS(addr, viper.GetString("host.ssl.certificate_path"), viper.GetString("host.ssl.certificate_key_path"))
	} else {
		err = router.Run(addr)
	}

	if err != nil {
		zap.L().Fatal("Server stopped", zap.Error(err))
	}
}
