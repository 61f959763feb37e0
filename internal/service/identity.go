package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"path"
	"strconv"
	"sync"

	"bitwise74/media-api/internal/cache"
	"bitwise74/media-api/internal/model"
	"bitwise74/media-api/pkg/util"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const saltOption = "hash_salt"

func idCacheKey(hash string) string { return "media_id_" + hash }
func hashCacheKey(id uint) string   { return "media_hash_" + strconv.FormatUint(uint64(id), 10) }

// Identity maps media records to their opaque protected hash and back
type Identity struct {
	DB    *gorm.DB
	Cache *cache.Tiered
	// Secret is the platform wide secret, used as salt when set
	Secret string

	mu   sync.Mutex
	salt string
}

func NewIdentity(db *gorm.DB, c *cache.Tiered, secret string) *Identity {
	return &Identity{DB: db, Cache: c, Secret: secret}
}

// Salt returns the installation salt. Without a platform secret one is
// generated on first use and persisted
func (i *Identity) Salt(ctx context.Context) (string, error) {
	if i.Secret != "" {
		return i.Secret, nil
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	if i.salt != "" {
		return i.salt, nil
	}

	var opt model.Option
	err := i.DB.WithContext(ctx).Where("name = ?", saltOption).First(&opt).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return "", fmt.Errorf("failed to read hash salt, %w", err)
		}

		salt, err := util.GenerateToken(32)
		if err != nil {
			return "", fmt.Errorf("failed to generate hash salt, %w", err)
		}

		err = i.DB.WithContext(ctx).
			Clauses(clause.OnConflict{DoNothing: true}).
			Create(&model.Option{Name: saltOption, Value: salt}).
			Error
		if err != nil {
			return "", fmt.Errorf("failed to persist hash salt, %w", err)
		}

		// Another writer may have won the insert
		if err := i.DB.WithContext(ctx).Where("name = ?", saltOption).First(&opt).Error; err != nil {
			return "", fmt.Errorf("failed to read hash salt, %w", err)
		}

		zap.L().Info("Generated hash salt")
	}

	i.salt = opt.Value
	return i.salt, nil
}

// GenerateHash derives a fresh hash for a file basename
func (i *Identity) GenerateHash(ctx context.Context, basename string) (string, error) {
	salt, err := i.Salt(ctx)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, 8)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to read random bytes, %w", err)
	}

	sum := sha256.Sum256(append([]byte(salt+basename), nonce...))
	return hex.EncodeToString(sum[:]), nil
}

// EnsureHash returns the file's hash, assigning and persisting one on first call.
// An assigned hash never changes.
func (i *Identity) EnsureHash(ctx context.Context, f *model.File) (string, error) {
	if h := f.Hash(); h != "" {
		return h, nil
	}

	name := path.Base(f.Meta.Data().File)
	if name == "." || name == "/" {
		name = path.Base(f.StoragePath)
	}

	h, err := i.GenerateHash(ctx, name)
	if err != nil {
		return "", err
	}

	res := i.DB.WithContext(ctx).
		Model(&model.File{}).
		Where("id = ? AND protected_hash IS NULL", f.ID).
		UpdateColumn("protected_hash", h)
	if res.Error != nil {
		return "", fmt.Errorf("failed to store protected hash, %w", res.Error)
	}

	// Lost a race against another writer, use theirs
	if res.RowsAffected == 0 {
		stored, ok := i.lookupHash(ctx, f.ID)
		if !ok {
			return "", fmt.Errorf("failed to store protected hash, %w", ErrMediaNotFound)
		}

		h = stored
	}

	f.ProtectedHash = &h
	i.Cache.Set(hashCacheKey(f.ID), h)
	i.Cache.Set(idCacheKey(h), f.ID)

	return h, nil
}

// HashFor returns the hash assigned to a media id
func (i *Identity) HashFor(ctx context.Context, id uint) (string, bool) {
	var h string
	if err := i.Cache.Get(hashCacheKey(id), &h); err == nil && h != "" {
		return h, true
	}

	h, ok := i.lookupHash(ctx, id)
	if ok {
		i.Cache.Set(hashCacheKey(id), h)
	}

	return h, ok
}

func (i *Identity) lookupHash(ctx context.Context, id uint) (string, bool) {
	var row struct{ ProtectedHash *string }

	err := i.DB.WithContext(ctx).
		Model(&model.File{}).
		Where("id = ?", id).
		Select("protected_hash").
		Take(&row).
		Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			zap.L().Error("Failed to look up protected hash", zap.Uint("media_id", id), zap.Error(err))
		}

		return "", false
	}

	if row.ProtectedHash == nil || *row.ProtectedHash == "" {
		return "", false
	}

	return *row.ProtectedHash, true
}

// IDForHash resolves a hash through the fast tier, the persistent tier and
// finally the indexed hash column
func (i *Identity) IDForHash(ctx context.Context, hash string) (uint, bool) {
	if hash == "" {
		return 0, false
	}

	var id uint
	if err := i.Cache.Get(idCacheKey(hash), &id); err == nil && id != 0 {
		return id, true
	}

	err := i.DB.WithContext(ctx).
		Model(&model.File{}).
		Where("protected_hash = ?", hash).
		Select("id").
		Take(&id).
		Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			zap.L().Error("Failed to resolve protected hash", zap.Error(err))
		}

		return 0, false
	}

	i.Cache.Set(idCacheKey(hash), id)
	return id, true
}

// Forget drops every cached mapping of a media record
func (i *Identity) Forget(id uint, hash string) {
	keys := []string{hashCacheKey(id)}
	if hash != "" {
		keys = append(keys, idCacheKey(hash))
	}

	i.Cache.Delete(keys...)
}
