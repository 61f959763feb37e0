// Package cache provides the two tier key/value cache used for hash lookups
// and content renders. Both tiers implement the gin-cache persist.CacheStore
// interface.
package cache

import (
	"errors"
	"time"

	"github.com/chenyahui/gin-cache/persist"
	"go.uber.org/zap"
)

var ErrMiss = persist.ErrCacheMiss

// Tiered reads the fast tier first and falls back to the persistent tier,
// promoting hits into the fast tier
type Tiered struct {
	Fast       persist.CacheStore
	Persistent persist.CacheStore

	FastTTL       time.Duration
	PersistentTTL time.Duration
}

// NewTiered builds a cache with an in-memory fast tier in front of p.
// A nil p leaves the cache memory only.
func NewTiered(p persist.CacheStore, fastTTL, persistentTTL time.Duration) *Tiered {
	return &Tiered{
		Fast:          persist.NewMemoryStore(fastTTL),
		Persistent:    p,
		FastTTL:       fastTTL,
		PersistentTTL: persistentTTL,
	}
}

// Get loads key into value, which must be a pointer
func (t *Tiered) Get(key string, value any) error {
	if err := t.Fast.Get(key, value); err == nil {
		return nil
	}

	if t.Persistent == nil {
		return ErrMiss
	}

	if err := t.Persistent.Get(key, value); err != nil {
		if !errors.Is(err, persist.ErrCacheMiss) {
			zap.L().Warn("Persistent cache read failed", zap.String("key", key), zap.Error(err))
		}

		return ErrMiss
	}

	// MemoryStore keeps the value as is, so store what the pointer refers to
	if err := t.Fast.Set(key, deref(value), t.FastTTL); err != nil {
		zap.L().Debug("Failed to promote cache entry", zap.String("key", key), zap.Error(err))
	}

	return nil
}

// Set writes both tiers
func (t *Tiered) Set(key string, value any) {
	if err := t.Fast.Set(key, value, t.FastTTL); err != nil {
		zap.L().Debug("Failed to write fast cache", zap.String("key", key), zap.Error(err))
	}

	if t.Persistent == nil {
		return
	}

	if err := t.Persistent.Set(key, value, t.PersistentTTL); err != nil {
		zap.L().Warn("Failed to write persistent cache", zap.String("key", key), zap.Error(err))
	}
}

// Delete removes key from both tiers
func (t *Tiered) Delete(keys ...string) {
	for _, key := range keys {
		_ = t.Fast.Delete(key)

		if t.Persistent != nil {
			if err := t.Persistent.Delete(key); err != nil && !errors.Is(err, persist.ErrCacheMiss) {
				zap.L().Warn("Failed to delete persistent cache entry", zap.String("key", key), zap.Error(err))
			}
		}
	}
}
