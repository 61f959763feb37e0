package service

import (
	"context"
	"errors"
	"path"
	"regexp"
	"strconv"
	"strings"

	"bitwise74/media-api/internal/model"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var protectedURLRe = regexp.MustCompile(`/([a-f0-9]+)(?:-\d+x\d+)?(?:\?.*)?$`)

// URLs answers the platform's url-generate and url-resolve questions so that
// restricted files are only ever addressed through the protected file server
type URLs struct {
	Layout        Layout
	DB            *gorm.DB
	IDs           *Identity
	ShowIndicator bool
}

func NewURLs(l Layout, db *gorm.DB, ids *Identity, showIndicator bool) *URLs {
	return &URLs{Layout: l.withDefaults(), DB: db, IDs: ids, ShowIndicator: showIndicator}
}

type VariantURL struct {
	Label  string `json:"label"`
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// MediaURL is the url-generate hook for a file's primary URL.
// Anything stored under the protected tree is rewritten to the protected server.
func (u *URLs) MediaURL(f *model.File) string {
	naive := u.Layout.PublicURL(f.StoragePath)

	if !u.Layout.IsProtectedPath(f.StoragePath) {
		return naive
	}

	hash := f.Hash()
	if hash == "" {
		zap.L().Warn("Protected file has no hash", zap.Uint("media_id", f.ID))
		return naive
	}

	if m := sizeURLRe.FindStringSubmatch(naive); m != nil {
		return u.Layout.ProtectedURL(hash, "-"+m[1])
	}

	return u.Layout.ProtectedURL(hash, "")
}

// SizeURL returns the URL of a single variant in the file's current state
func (u *URLs) SizeURL(f *model.File, v model.SizeVariant) string {
	if u.Layout.IsProtectedPath(f.StoragePath) && f.Hash() != "" {
		return u.Layout.ProtectedURL(f.Hash(), variantURLSuffix(v.File))
	}

	return u.Layout.PublicURL(path.Join(path.Dir(f.StoragePath), v.File))
}

// Sizes returns the URL of every variant in metadata order
func (u *URLs) Sizes(f *model.File) []VariantURL {
	meta := f.Meta.Data()

	out := make([]VariantURL, 0, len(meta.Sizes))
	for _, v := range meta.Sizes {
		out = append(out, VariantURL{Label: v.Label, URL: u.SizeURL(f, v), Width: v.Width, Height: v.Height})
	}

	return out
}

// Srcset renders the responsive image candidate list
func (u *URLs) Srcset(f *model.File) string {
	meta := f.Meta.Data()

	var parts []string
	for _, v := range u.Sizes(f) {
		if v.Width > 0 {
			parts = append(parts, v.URL+" "+strconv.Itoa(v.Width)+"w")
		}
	}

	if meta.Width > 0 {
		parts = append(parts, u.MediaURL(f)+" "+strconv.Itoa(meta.Width)+"w")
	}

	return strings.Join(parts, ", ")
}

// ImageAttributes returns extra attributes for rendered image tags
func (u *URLs) ImageAttributes(f *model.File) map[string]string {
	attrs := map[string]string{}
	if f.Restricted && u.ShowIndicator {
		attrs["data-restricted"] = "true"
		attrs["class"] = "restricted-media"
	}

	return attrs
}

// ResolveID is the url-resolve hook mapping any URL that points at a media
// file, protected or public, primary or variant, back to its id
func (u *URLs) ResolveID(ctx context.Context, rawURL string) (uint, bool) {
	if rawURL == "" {
		return 0, false
	}

	if u.Layout.IsProtectedURL(rawURL) {
		i := strings.Index(rawURL, "/"+u.Layout.ProtectedPath+"/")
		m := protectedURLRe.FindStringSubmatch(rawURL[i+len(u.Layout.ProtectedPath)+1:])
		if m == nil {
			return 0, false
		}

		return u.IDs.IDForHash(ctx, m[1])
	}

	rel, ok := u.Layout.RelativePath(rawURL)
	if !ok {
		return 0, false
	}

	db := u.DB.WithContext(ctx)

	var id uint
	for _, col := range []string{"storage_path", "original_path"} {
		err := db.Model(&model.File{}).Where(col+" = ?", rel).Select("id").Take(&id).Error
		if err == nil {
			return id, true
		}

		if !errors.Is(err, gorm.ErrRecordNotFound) {
			zap.L().Error("Failed to resolve media url", zap.String("column", col), zap.Error(err))
			return 0, false
		}
	}

	if id, ok := u.resolveVariant(ctx, rel); ok {
		return id, true
	}

	return u.resolveFromRewrites(ctx, rawURL, rel)
}

// resolveVariant finds a public size variant by basename inside its directory,
// or a recorded pre-protection variant path
func (u *URLs) resolveVariant(ctx context.Context, rel string) (uint, bool) {
	name := path.Base(rel)
	dir := path.Dir(rel)

	var candidates []model.File
	err := u.DB.WithContext(ctx).
		Where("CAST(meta AS TEXT) LIKE ? OR CAST(original_size_paths AS TEXT) LIKE ?", "%"+name+"%", "%"+rel+"%").
		Find(&candidates).
		Error
	if err != nil {
		zap.L().Error("Failed to search media variants", zap.Error(err))
		return 0, false
	}

	for _, f := range candidates {
		for _, p := range f.OriginalSizePaths.Data() {
			if p == rel {
				return f.ID, true
			}
		}

		if path.Dir(f.StoragePath) != dir {
			continue
		}

		for _, v := range f.Meta.Data().Sizes {
			if v.File == name {
				return f.ID, true
			}
		}

		if img := f.Meta.Data().OriginalImage; img != "" && img == name {
			return f.ID, true
		}
	}

	return 0, false
}

// resolveFromRewrites looks the URL up among the keys of recorded rewrite maps
func (u *URLs) resolveFromRewrites(ctx context.Context, rawURL, rel string) (uint, bool) {
	var candidates []model.File
	err := u.DB.WithContext(ctx).
		Where("CAST(url_map AS TEXT) LIKE ?", "%"+rel+"%").
		Find(&candidates).
		Error
	if err != nil {
		zap.L().Error("Failed to search url rewrite maps", zap.Error(err))
		return 0, false
	}

	for _, f := range candidates {
		if _, ok := f.URLMap.Data()[rawURL]; ok {
			return f.ID, true
		}
	}

	return 0, false
}
