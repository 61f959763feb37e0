package internal

import (
	"context"
	"fmt"
	"io"
	"time"

	"bitwise74/media-api/db"
	"bitwise74/media-api/internal/cache"
	"bitwise74/media-api/internal/service"
	"bitwise74/media-api/internal/storage"
	"bitwise74/media-api/pkg/security"

	"github.com/chenyahui/gin-cache/persist"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Deps struct {
	DB    *gorm.DB
	Argon *security.ArgonHash
	Store storage.Storage
	Cache *cache.Tiered

	Layout    service.Layout
	IDs       *service.Identity
	URLs      *service.URLs
	Engine    *service.Engine
	Tracker   *service.Tracker
	Protector *service.Protector
	Reindexer *service.Reindexer
	Remover   *service.Remover
	Uploader  *service.Uploader
	Renders   *service.RenderCache

	JWTSecret []byte

	closers []io.Closer
}

type Settings struct {
	Layout        service.Layout
	HashSalt      string
	JWTSecret     string
	LegacyURLs    bool
	ShowIndicator bool
	ReindexPause  time.Duration
	ImageSizes    []service.ImageSize
	Policy        service.AccessPolicy
}

// Build wires every service on top of the given stores
func Build(d *gorm.DB, s storage.Storage, c *cache.Tiered, cfg Settings) *Deps {
	ids := service.NewIdentity(d, c, cfg.HashSalt)
	urls := service.NewURLs(cfg.Layout, d, ids, cfg.ShowIndicator)
	renders := &service.RenderCache{Cache: c}
	tracker := service.NewTracker(d, urls)

	return &Deps{
		DB:        d,
		Argon:     security.New(),
		Store:     s,
		Cache:     c,
		Layout:    urls.Layout,
		IDs:       ids,
		URLs:      urls,
		Engine:    service.NewEngine(d, s, ids, urls, renders),
		Tracker:   tracker,
		Protector: service.NewProtector(d, s, ids, cfg.Policy, cfg.LegacyURLs),
		Reindexer: service.NewReindexer(d, tracker, cfg.ReindexPause),
		Remover:   service.NewRemover(d, s, ids, tracker, urls.Layout),
		Uploader:  service.NewUploader(d, s, urls.Layout, cfg.ImageSizes),
		Renders:   renders,
		JWTSecret: []byte(cfg.JWTSecret),
	}
}

// NewDeps builds the dependency graph from the loaded configuration
func NewDeps(ctx context.Context) (*Deps, error) {
	database, err := db.New()
	if err != nil {
		return nil, err
	}

	var store storage.Storage
	switch viper.GetString("storage.type") {
	case "s3":
		store, err = storage.NewS3(ctx, storage.S3Config{
			AccessKeyID:     viper.GetString("s3.access_key_id"),
			SecretAccessKey: viper.GetString("s3.secret_access_key"),
			Region:          viper.GetString("s3.region"),
			Bucket:          viper.GetString("s3.bucket"),
			Endpoint:        viper.GetString("s3.endpoint"),
			Prefix:          viper.GetString("s3.prefix"),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize S3 client, %w", err)
		}
	default:
		store, err = storage.NewLocal(viper.GetString("uploads.dir"))
		if err != nil {
			return nil, err
		}
	}

	var persistent persist.CacheStore
	var closers []io.Closer

	switch viper.GetString("cache.persistent") {
	case "badger":
		b, err := cache.NewBadgerStore(viper.GetString("cache.badger_path"))
		if err != nil {
			return nil, err
		}
		persistent = b
		closers = append(closers, b)
	case "redis":
		r, err := cache.NewRedisStore(viper.GetString("cache.redis_addr"), viper.GetString("cache.redis_password"), viper.GetInt("cache.redis_db"))
		if err != nil {
			return nil, err
		}
		persistent = r
		closers = append(closers, r)
	}

	c := cache.NewTiered(persistent, viper.GetDuration("cache.fast_ttl"), viper.GetDuration("cache.persistent_ttl"))

	var sizes []service.ImageSize
	if viper.IsSet("upload.sizes") {
		if err := viper.UnmarshalKey("upload.sizes", &sizes); err != nil {
			return nil, fmt.Errorf("failed to read upload.sizes, %w", err)
		}
	}

	d := Build(database, store, c, Settings{
		Layout: service.Layout{
			SiteURL:       viper.GetString("site.url"),
			UploadsURL:    viper.GetString("uploads.base_url"),
			ProtectedDir:  viper.GetString("protected.dir"),
			ProtectedPath: viper.GetString("protected.path"),
		},
		HashSalt:      viper.GetString("security.hash_salt"),
		JWTSecret:     viper.GetString("jwt.secret"),
		LegacyURLs:    viper.GetBool("protected.legacy_urls"),
		ShowIndicator: viper.GetBool("protected.show_indicator"),
		ReindexPause:  viper.GetDuration("reindex.pause"),
		ImageSizes:    sizes,
	})
	d.closers = closers

	zap.L().Debug("Dependencies ready",
		zap.String("storage", viper.GetString("storage.type")),
		zap.String("database", viper.GetString("database.driver")),
		zap.String("cache", viper.GetString("cache.persistent")),
	)

	return d, nil
}

// ReindexOptions returns the configured reindex job options
func ReindexOptions() service.ReindexOptions {
	return service.ReindexOptions{
		BatchSize:    viper.GetInt("reindex.batch_size"),
		ContentTypes: viper.GetStringSlice("reindex.content_types"),
	}
}

func (d *Deps) Close() {
	for _, c := range d.closers {
		if err := c.Close(); err != nil {
			zap.L().Warn("Failed to close dependency", zap.Error(err))
		}
	}

	if sqlDB, err := d.DB.DB(); err == nil {
		sqlDB.Close()
	}
}
