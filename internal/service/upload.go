package service

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"path"
	"strconv"
	"strings"
	"time"

	"bitwise74/media-api/internal/model"
	"bitwise74/media-api/internal/storage"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Uploader stores new media and renders its size variants
type Uploader struct {
	DB     *gorm.DB
	Store  storage.Storage
	Layout Layout
	Sizes  []ImageSize

	now func() time.Time
}

func NewUploader(db *gorm.DB, s storage.Storage, l Layout, sizes []ImageSize) *Uploader {
	if len(sizes) == 0 {
		sizes = DefaultImageSizes
	}

	return &Uploader{DB: db, Store: s, Layout: l.withDefaults(), Sizes: sizes, now: time.Now}
}

// sanitizeName keeps uploads addressable by URL
func sanitizeName(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	ext := strings.ToLower(path.Ext(name))
	stem := strings.TrimSuffix(name, path.Ext(name))

	stem = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		case r == ' ':
			return '-'
		}

		return -1
	}, stem)

	if stem == "" {
		stem = "file"
	}

	return stem + ext
}

// UniqueName returns a name that is free in dir in both the public and the
// protected tree, appending -N when needed. Every derived name, the stem plus
// one of suffixes plus the extension, must be free as well.
func (u *Uploader) UniqueName(ctx context.Context, dir, name string, suffixes ...string) string {
	ext := path.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	protDir := u.Layout.ProtectedDirFor(dir)

	taken := func(n string) bool {
		return u.Store.Exists(ctx, path.Join(dir, n)) || u.Store.Exists(ctx, path.Join(protDir, n))
	}

	candidate := stem
	for i := 1; ; i++ {
		free := !taken(candidate + ext)
		for _, sfx := range suffixes {
			if !free {
				break
			}
			free = !taken(candidate + sfx + ext)
		}

		if free {
			return candidate + ext
		}

		candidate = stem + "-" + strconv.Itoa(i)
	}
}

type variantImage struct {
	size ImageSize
	img  image.Image
}

func (v variantImage) suffix() string {
	b := v.img.Bounds()
	return "-" + strconv.Itoa(b.Dx()) + "x" + strconv.Itoa(b.Dy())
}

// Do stores data under the current year/month directory and creates the record
func (u *Uploader) Do(ctx context.Context, data []byte, name, mime, userID string) (*model.File, error) {
	dir := u.now().UTC().Format("2006/01")
	name = sanitizeName(name)

	meta := model.Metadata{}
	primary := data

	var (
		scaled   []byte
		variants []variantImage
		suffixes []string
	)

	img, format, err := image.Decode(bytes.NewReader(data))
	if err == nil {
		b := img.Bounds()
		meta.Width, meta.Height = b.Dx(), b.Dy()

		if max(meta.Width, meta.Height) > BigImageThreshold {
			w, h := fitSize(meta.Width, meta.Height, BigImageThreshold, BigImageThreshold)
			scaled, err = encodeImage(scale(img, b, w, h), format)
			if err != nil {
				return nil, err
			}

			meta.Width, meta.Height = w, h
			suffixes = append(suffixes, "-scaled")
		}

		for _, s := range u.Sizes {
			v, ok := makeVariant(img, s)
			if !ok {
				continue
			}

			vi := variantImage{size: s, img: v}
			variants = append(variants, vi)
			suffixes = append(suffixes, vi.suffix())
		}
	}

	name = u.UniqueName(ctx, dir, name, suffixes...)
	ext := path.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	primaryName := name

	var written []string
	cleanup := func() {
		for _, p := range written {
			if err := u.Store.Delete(ctx, p); err != nil {
				zap.L().Error("Failed to cleanup after failed upload", zap.String("path", p), zap.Error(err))
			}
		}
	}

	write := func(p string, b []byte, ct string) error {
		if _, err := u.Store.Write(ctx, p, bytes.NewReader(b), ct); err != nil {
			return err
		}

		written = append(written, p)
		return nil
	}

	if scaled != nil {
		if err := write(path.Join(dir, name), data, mime); err != nil {
			return nil, fmt.Errorf("failed to store original image, %w", err)
		}

		meta.OriginalImage = name
		primaryName = stem + "-scaled" + ext
		primary = scaled
	}

	for _, v := range variants {
		vb, err := encodeImage(v.img, format)
		if err != nil {
			cleanup()
			return nil, err
		}

		vName := stem + v.suffix() + ext
		if err := write(path.Join(dir, vName), vb, mime); err != nil {
			cleanup()
			return nil, fmt.Errorf("failed to store %s variant, %w", v.size.Label, err)
		}

		meta.Sizes = append(meta.Sizes, model.SizeVariant{
			Label:    v.size.Label,
			File:     vName,
			Width:    v.img.Bounds().Dx(),
			Height:   v.img.Bounds().Dy(),
			MimeType: mime,
		})
	}

	rel := path.Join(dir, primaryName)
	if err := write(rel, primary, mime); err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to store upload, %w", err)
	}

	meta.File = rel

	f := &model.File{
		UserID:            userID,
		StoragePath:       rel,
		OriginalName:      name,
		MimeType:          mime,
		Size:              int64(len(primary)),
		Meta:              datatypes.NewJSONType(meta),
		OriginalSizePaths: datatypes.NewJSONType(map[string]string{}),
		URLMap:            datatypes.NewJSONType(map[string]string{}),
		UsedIn:            model.IDSet{},
	}

	if err := u.DB.WithContext(ctx).Create(f).Error; err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to save media record, %w", err)
	}

	zap.L().Debug("Stored upload", zap.Uint("media_id", f.ID), zap.String("path", rel), zap.Int("sizes", len(meta.Sizes)))
	return f, nil
}
