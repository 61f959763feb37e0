package service

import (
	"context"
	"encoding/base64"
	"errors"
	"path"
	"strings"

	"bitwise74/media-api/internal/model"
	"bitwise74/media-api/internal/storage"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Placeholder is the 1x1 transparent GIF served instead of restricted bytes
var Placeholder, _ = base64.StdEncoding.DecodeString("R0lGODlhAQABAIAAAAAAAP///yH5BAEAAAAALAAAAAABAAEAAAIBRAA7")

// Caller is whoever asked for a protected file
type Caller struct {
	UserID        string
	Role          model.Role
	Authenticated bool
}

// AccessPolicy decides whether a caller may receive the real bytes of a file
type AccessPolicy func(ctx context.Context, c Caller, f *model.File) bool

// AuthenticatedOnly is the default policy
func AuthenticatedOnly(_ context.Context, c Caller, _ *model.File) bool {
	return c.Authenticated
}

// Token is a parsed protected request path segment
type Token struct {
	Hash string
	// Size is the "WxH" suffix, empty for the primary
	Size string
	// JPG asks for the jpg preview of a non image primary
	JPG bool
}

// ParseToken splits "<hash>[-WxH]"
func ParseToken(raw, typ string) (Token, bool) {
	m := tokenRe.FindStringSubmatch(raw)
	if m == nil {
		return Token{}, false
	}

	return Token{Hash: m[1], Size: m[2], JPG: strings.EqualFold(typ, "jpg")}, true
}

// Located is a resolved request ready to be authorized and streamed
type Located struct {
	File *model.File
	Path string
}

// Protector resolves protected URLs to files on storage
type Protector struct {
	DB     *gorm.DB
	Store  storage.Storage
	IDs    *Identity
	Policy AccessPolicy
	// LegacyURLs keeps protected URLs working after a file was made public again
	LegacyURLs bool
}

func NewProtector(db *gorm.DB, s storage.Storage, ids *Identity, policy AccessPolicy, legacyURLs bool) *Protector {
	if policy == nil {
		policy = AuthenticatedOnly
	}

	return &Protector{DB: db, Store: s, IDs: ids, Policy: policy, LegacyURLs: legacyURLs}
}

// Locate resolves a token to the stored file it addresses.
// Any failure is reported as ErrNotFound.
func (p *Protector) Locate(ctx context.Context, t Token) (*Located, error) {
	id, ok := p.IDs.IDForHash(ctx, t.Hash)
	if !ok {
		return nil, ErrNotFound
	}

	var f model.File
	if err := p.DB.WithContext(ctx).Where("id = ?", id).First(&f).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			zap.L().Error("Failed to load media for protected request", zap.Uint("media_id", id), zap.Error(err))
		}

		return nil, ErrNotFound
	}

	if f.StoragePath == "" {
		return nil, ErrNotFound
	}

	target := p.variantPath(&f, t)
	if !p.Store.Exists(ctx, target) {
		return nil, ErrNotFound
	}

	return &Located{File: &f, Path: target}, nil
}

// variantPath picks the size variant for a WxH suffix, the jpg preview for
// type=jpg, or the primary
func (p *Protector) variantPath(f *model.File, t Token) string {
	dir := path.Dir(f.StoragePath)
	meta := f.Meta.Data()

	if t.Size != "" {
		for _, v := range meta.Sizes {
			if sizeSuffix(v.File) == t.Size {
				return path.Join(dir, v.File)
			}
		}

		return f.StoragePath
	}

	if t.JPG && !isStandardImage(f.OriginalName) {
		if f.Restricted {
			return path.Join(dir, f.Hash()+".jpg")
		}

		base := path.Base(f.StoragePath)
		ext := path.Ext(base)
		return path.Join(dir, strings.TrimSuffix(base, ext)+"-"+strings.TrimPrefix(ext, ".")+".jpg")
	}

	return f.StoragePath
}

// Servable reports whether a located file may be served at all, regardless
// of the caller
func (p *Protector) Servable(l *Located) bool {
	return l.File.Restricted || p.LegacyURLs
}

// Allowed applies the access policy
func (p *Protector) Allowed(ctx context.Context, c Caller, l *Located) bool {
	return p.Policy(ctx, c, l.File)
}
