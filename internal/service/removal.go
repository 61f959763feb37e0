package service

import (
	"context"
	"errors"
	"fmt"
	"path"

	"bitwise74/media-api/internal/model"
	"bitwise74/media-api/internal/storage"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Remover deletes a media record together with everything derived from it
type Remover struct {
	DB      *gorm.DB
	Store   storage.Storage
	IDs     *Identity
	Tracker *Tracker
	Layout  Layout
}

func NewRemover(db *gorm.DB, s storage.Storage, ids *Identity, t *Tracker, l Layout) *Remover {
	return &Remover{DB: db, Store: s, IDs: ids, Tracker: t, Layout: l.withDefaults()}
}

// Remove severs the reverse index, deletes the stored files of either tree
// and finally the record itself
func (r *Remover) Remove(ctx context.Context, id uint) error {
	var f model.File
	if err := r.DB.WithContext(ctx).Where("id = ?", id).First(&f).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrMediaNotFound
		}

		return fmt.Errorf("failed to load media, %w", err)
	}

	if err := r.Tracker.OnMediaDeleted(ctx, &f); err != nil {
		return fmt.Errorf("failed to sever media references, %w", err)
	}

	if f.Restricted {
		r.removeProtected(ctx, &f)
	} else {
		r.removePublic(ctx, &f)
	}

	if err := r.DB.WithContext(ctx).Delete(&model.File{}, f.ID).Error; err != nil {
		return fmt.Errorf("failed to delete media record, %w", err)
	}

	r.IDs.Forget(f.ID, f.Hash())

	zap.L().Info("Media removed", zap.Uint("media_id", f.ID), zap.Bool("restricted", f.Restricted))
	return nil
}

func (r *Remover) deleteQuiet(ctx context.Context, p string) {
	if err := r.Store.Delete(ctx, p); err != nil && !errors.Is(err, storage.ErrNotExist) {
		zap.L().Warn("Failed to delete media file", zap.String("path", p), zap.Error(err))
	}
}

func (r *Remover) removePublic(ctx context.Context, f *model.File) {
	dir := path.Dir(f.StoragePath)
	meta := f.Meta.Data()

	r.deleteQuiet(ctx, f.StoragePath)
	for _, s := range siblings(f.StoragePath, meta) {
		r.deleteQuiet(ctx, path.Join(dir, s))
	}

	for _, v := range meta.Sizes {
		r.deleteQuiet(ctx, path.Join(dir, v.File))
	}
}

// removeProtected deletes the protected primary, variants from every layout
// the protected tree has used and the directory once empty
func (r *Remover) removeProtected(ctx context.Context, f *model.File) {
	relDir := r.Layout.PublicDirOf(f.StoragePath)
	meta := f.Meta.Data()

	r.deleteQuiet(ctx, f.StoragePath)

	var names []string
	for _, v := range meta.Sizes {
		names = append(names, v.File)
	}

	if f.OriginalPath != nil {
		names = append(names, siblings(*f.OriginalPath, meta)...)
	}

	for _, p := range f.SizePathSnapshot() {
		names = append(names, path.Base(p))
	}

	for _, name := range names {
		for _, p := range r.Layout.LegacyVariantPaths(relDir, name) {
			if r.Store.Exists(ctx, p) {
				r.deleteQuiet(ctx, p)
			}
		}
	}

	dir := path.Dir(f.StoragePath)
	if dir == r.Layout.ProtectedDir {
		return
	}

	entries, err := r.Store.List(ctx, dir)
	if err == nil && len(entries) == 0 {
		if err := r.Store.DeleteDir(ctx, dir); err != nil {
			zap.L().Warn("Failed to remove empty protected directory", zap.String("dir", dir), zap.Error(err))
		}
	}
}
