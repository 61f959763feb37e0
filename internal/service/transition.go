package service

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"bitwise74/media-api/internal/model"
	"bitwise74/media-api/internal/storage"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Result string

const (
	ResultNoChange     Result = "no_change"
	ResultRestricted   Result = "restricted"
	ResultUnrestricted Result = "unrestricted"
)

// transitionColumns are written in a single update once every move is done
var transitionColumns = []string{"storage_path", "restricted", "meta", "original_path", "original_size_paths", "url_map"}

type TransitionOptions struct {
	// UpdateContent fires the content updated side effects for rewritten bodies
	UpdateContent bool
}

// ContentObserver is told about content whose body was rewritten by a transition
type ContentObserver interface {
	ContentUpdated(ctx context.Context, contentID uint)
}

// Engine moves media between the public tree and the protected tree and
// keeps URLs, metadata and referencing content in step
type Engine struct {
	DB       *gorm.DB
	Store    storage.Storage
	IDs      *Identity
	URLs     *URLs
	Observer ContentObserver
}

func NewEngine(db *gorm.DB, s storage.Storage, ids *Identity, urls *URLs, o ContentObserver) *Engine {
	return &Engine{DB: db, Store: s, IDs: ids, URLs: urls, Observer: o}
}

// SetRestricted drives the file into the requested state
func (e *Engine) SetRestricted(ctx context.Context, id uint, restrict bool, opts TransitionOptions) (Result, error) {
	if restrict {
		return e.Protect(ctx, id, opts)
	}

	return e.Unprotect(ctx, id, opts)
}

func (e *Engine) load(ctx context.Context, id uint) (*model.File, error) {
	var f model.File
	if err := e.DB.WithContext(ctx).Where("id = ?", id).First(&f).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMediaNotFound
		}

		return nil, fmt.Errorf("failed to load media, %w", err)
	}

	return &f, nil
}

func (e *Engine) fail(direction string, id uint, step string, err error) error {
	transitionsTotal.WithLabelValues(direction, "failed").Inc()
	zap.L().Error("Media transition failed",
		zap.String("direction", direction),
		zap.Uint("media_id", id),
		zap.String("step", step),
		zap.Error(err),
	)

	return &TransitionError{MediaID: id, Step: step, Err: err}
}

// move is idempotent: a missing source whose destination already exists is
// treated as moved by an earlier interrupted run
func (e *Engine) move(ctx context.Context, src, dst string) error {
	if src == dst {
		return nil
	}

	if !e.Store.Exists(ctx, src) {
		if e.Store.Exists(ctx, dst) {
			return nil
		}

		return fmt.Errorf("failed to move %s, %w", src, storage.ErrNotExist)
	}

	return e.Store.Move(ctx, src, dst)
}

// moveFirst moves the first existing candidate to dst
func (e *Engine) moveFirst(ctx context.Context, candidates []string, dst string) error {
	for _, c := range candidates {
		if e.Store.Exists(ctx, c) {
			return e.Store.Move(ctx, c, dst)
		}
	}

	if e.Store.Exists(ctx, dst) {
		return nil
	}

	return storage.ErrNotExist
}

// siblings lists the unscaled originals stored next to a primary
func siblings(primary string, meta model.Metadata) []string {
	var out []string
	if meta.OriginalImage != "" {
		out = append(out, meta.OriginalImage)
	}

	if s, ok := scaledSibling(path.Base(primary)); ok && s != meta.OriginalImage {
		out = append(out, s)
	}

	return out
}

// Protect moves a public file and its variants into the protected tree.
// A file that is already restricted is left alone. When two runs race on the
// same file the one that commits second fails with ErrConcurrentTransition.
func (e *Engine) Protect(ctx context.Context, id uint, opts TransitionOptions) (Result, error) {
	const dir = "protect"

	f, err := e.load(ctx, id)
	if err != nil {
		return "", err
	}

	if f.Restricted {
		transitionsTotal.WithLabelValues(dir, string(ResultNoChange)).Inc()
		return ResultNoChange, nil
	}

	l := e.URLs.Layout

	if f.StoragePath == "" {
		return "", e.fail(dir, id, "file_path", errors.New("media has no storage path"))
	}

	if l.IsProtectedPath(f.StoragePath) {
		return "", e.fail(dir, id, "file_path", errors.New("unrestricted media stored in protected directory"))
	}

	meta := f.Meta.Data()
	if meta.File == "" {
		return "", e.fail(dir, id, "metadata", errors.New("media has no metadata"))
	}

	hash, err := e.IDs.EnsureHash(ctx, f)
	if err != nil {
		return "", e.fail(dir, id, "hash", err)
	}

	originalPath := f.StoragePath
	relDir := path.Dir(originalPath)
	protDir := l.ProtectedDirFor(relDir)

	oldURL := e.URLs.MediaURL(f)
	oldSizes := e.URLs.Sizes(f)

	snapshot := make(map[string]string, len(meta.Sizes))
	for _, v := range meta.Sizes {
		snapshot[v.Label] = path.Join(relDir, v.File)
	}

	primary := path.Join(protDir, hash)
	if err := e.move(ctx, originalPath, primary); err != nil {
		return "", e.fail(dir, id, "move_primary", err)
	}

	for _, s := range siblings(originalPath, meta) {
		if err := e.move(ctx, path.Join(relDir, s), path.Join(protDir, s)); err != nil {
			zap.L().Warn("Failed to move original image", zap.Uint("media_id", id), zap.String("file", s), zap.Error(err))
		}
	}

	for i, v := range meta.Sizes {
		name := protectedVariantName(hash, v.File)
		if err := e.move(ctx, path.Join(relDir, v.File), path.Join(protDir, name)); err != nil {
			zap.L().Warn("Failed to move size variant", zap.Uint("media_id", id), zap.String("size", v.Label), zap.Error(err))
		}

		meta.Sizes[i].File = name
	}

	meta.File = primary

	f.StoragePath = primary
	f.Restricted = true
	f.OriginalPath = &originalPath
	f.OriginalSizePaths = datatypes.NewJSONType(snapshot)
	f.Meta = datatypes.NewJSONType(meta)

	rewrites := e.diffURLs(f, oldURL, oldSizes)
	f.URLMap = datatypes.NewJSONType(mergeRewrites(f.URLRewrites(), rewrites))

	if err := e.commit(ctx, f); err != nil {
		return "", e.fail(dir, id, "persist", err)
	}

	e.rewriteContent(ctx, f, rewrites, opts)
	e.IDs.Forget(f.ID, hash)

	transitionsTotal.WithLabelValues(dir, string(ResultRestricted)).Inc()
	zap.L().Info("Media restricted", zap.Uint("media_id", id), zap.Int("rewrites", len(rewrites)))

	return ResultRestricted, nil
}

// Unprotect moves a restricted file back to the location recorded when it was
// protected
func (e *Engine) Unprotect(ctx context.Context, id uint, opts TransitionOptions) (Result, error) {
	const dir = "unprotect"

	f, err := e.load(ctx, id)
	if err != nil {
		return "", err
	}

	if !f.Restricted {
		transitionsTotal.WithLabelValues(dir, string(ResultNoChange)).Inc()
		return ResultNoChange, nil
	}

	l := e.URLs.Layout

	if !l.IsProtectedPath(f.StoragePath) {
		return "", e.fail(dir, id, "file_path", errors.New("restricted media is not in the protected directory"))
	}

	if f.OriginalPath == nil || *f.OriginalPath == "" {
		return "", e.fail(dir, id, "original_path", errors.New("no original path recorded"))
	}

	meta := f.Meta.Data()
	if meta.File == "" {
		return "", e.fail(dir, id, "metadata", errors.New("media has no metadata"))
	}

	hash := f.Hash()
	originalPath := *f.OriginalPath
	origDir := path.Dir(originalPath)
	relDir := l.PublicDirOf(f.StoragePath)

	oldURL := e.URLs.MediaURL(f)
	oldSizes := e.URLs.Sizes(f)

	if err := e.move(ctx, f.StoragePath, originalPath); err != nil {
		return "", e.fail(dir, id, "move_primary", err)
	}

	for _, s := range siblings(originalPath, meta) {
		if err := e.moveFirst(ctx, l.LegacyVariantPaths(relDir, s), path.Join(origDir, s)); err != nil {
			zap.L().Warn("Failed to restore original image", zap.Uint("media_id", id), zap.String("file", s), zap.Error(err))
		}
	}

	snapshot := f.SizePathSnapshot()
	for i, v := range meta.Sizes {
		target, ok := snapshot[v.Label]
		if !ok {
			target = path.Join(origDir, restoredVariantName(originalPath, v))
		}

		candidates := l.LegacyVariantPaths(relDir, v.File)
		if name := path.Base(target); name != v.File {
			candidates = append(candidates, l.LegacyVariantPaths(relDir, name)...)
		}

		if err := e.moveFirst(ctx, candidates, target); err != nil {
			zap.L().Warn("Failed to restore size variant", zap.Uint("media_id", id), zap.String("size", v.Label), zap.Error(err))
		}

		meta.Sizes[i].File = path.Base(target)
	}

	meta.File = originalPath

	f.StoragePath = originalPath
	f.Restricted = false
	f.OriginalPath = nil
	f.OriginalSizePaths = datatypes.NewJSONType(map[string]string{})
	f.Meta = datatypes.NewJSONType(meta)

	rewrites := e.diffURLs(f, oldURL, oldSizes)
	f.URLMap = datatypes.NewJSONType(mergeRewrites(f.URLRewrites(), rewrites))

	if err := e.commit(ctx, f); err != nil {
		return "", e.fail(dir, id, "persist", err)
	}

	e.rewriteContent(ctx, f, rewrites, opts)
	e.IDs.Forget(f.ID, hash)

	transitionsTotal.WithLabelValues(dir, string(ResultUnrestricted)).Inc()
	zap.L().Info("Media unrestricted", zap.Uint("media_id", id), zap.Int("rewrites", len(rewrites)))

	return ResultUnrestricted, nil
}

// restoredVariantName rebuilds a public variant name when no snapshot exists for it
func restoredVariantName(originalPath string, v model.SizeVariant) string {
	base := path.Base(originalPath)
	ext := path.Ext(base)
	stem := strings.TrimSuffix(base, ext)

	if wh := sizeSuffix(v.File); wh != "" {
		return stem + "-" + wh + path.Ext(v.File)
	}

	return stem + "-" + strings.TrimPrefix(ext, ".") + path.Ext(v.File)
}

// diffURLs pairs the URLs from before the transition with the current ones
func (e *Engine) diffURLs(f *model.File, oldURL string, oldSizes []VariantURL) map[string]string {
	rewrites := map[string]string{}

	newSizes := e.URLs.Sizes(f)
	for i, old := range oldSizes {
		if i >= len(newSizes) {
			break
		}

		if old.URL != newSizes[i].URL {
			rewrites[old.URL] = newSizes[i].URL
		}
	}

	if newURL := e.URLs.MediaURL(f); newURL != oldURL {
		rewrites[oldURL] = newURL
	}

	return rewrites
}

// commit persists the transition only if no other run has committed the
// same direction since the record was loaded
func (e *Engine) commit(ctx context.Context, f *model.File) error {
	res := e.DB.WithContext(ctx).
		Model(f).
		Where("restricted = ?", !f.Restricted).
		Select(transitionColumns).
		Updates(f)
	if res.Error != nil {
		return res.Error
	}

	if res.RowsAffected == 0 {
		return ErrConcurrentTransition
	}

	return nil
}

// rewriteContent patches every referencing body with this run's rewrites
func (e *Engine) rewriteContent(ctx context.Context, f *model.File, rewrites map[string]string, opts TransitionOptions) {
	if len(rewrites) == 0 {
		return
	}

	for _, cid := range f.UsedIn {
		var c model.Content
		if err := e.DB.WithContext(ctx).Where("id = ?", cid).First(&c).Error; err != nil {
			zap.L().Warn("Failed to load referencing content", zap.Uint("content_id", cid), zap.Error(err))
			continue
		}

		if c.Body == "" {
			continue
		}

		body, n := ApplyRewrites(c.Body, rewrites)
		if n == 0 {
			continue
		}

		err := e.DB.WithContext(ctx).
			Model(&model.Content{ID: c.ID}).
			Update("body", body).
			Error
		if err != nil {
			zap.L().Error("Failed to rewrite content", zap.Uint("content_id", cid), zap.Error(err))
			continue
		}

		contentRewritesTotal.Inc()

		if opts.UpdateContent && e.Observer != nil {
			e.Observer.ContentUpdated(ctx, c.ID)
		}
	}
}
