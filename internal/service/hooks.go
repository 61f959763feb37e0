package service

import (
	"context"
	"strconv"

	"bitwise74/media-api/internal/cache"

	"go.uber.org/zap"
)

func RenderCacheKey(contentID uint) string {
	return "content_render_" + strconv.FormatUint(uint64(contentID), 10)
}

// RenderCache drops cached content renders whenever a transition rewrote the body
type RenderCache struct {
	Cache *cache.Tiered
}

func (r *RenderCache) ContentUpdated(_ context.Context, contentID uint) {
	r.Cache.Delete(RenderCacheKey(contentID))
	zap.L().Debug("Invalidated content render", zap.Uint("content_id", contentID))
}
