package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLayoutPaths(t *testing.T) {
	l := Layout{SiteURL: siteURL + "/", UploadsURL: uploadsURL}.withDefaults()

	assert.Equal(t, ".protected", l.ProtectedDirFor("."))
	assert.Equal(t, ".protected/2024/03", l.ProtectedDirFor("2024/03"))
	assert.Equal(t, "2024/03", l.PublicDirOf(".protected/2024/03/abc"))
	assert.Equal(t, ".", l.PublicDirOf(".protected/abc"))

	assert.True(t, l.IsProtectedPath(".protected/2024/03/abc"))
	assert.False(t, l.IsProtectedPath(".protectedness/a"))
	assert.False(t, l.IsProtectedPath("2024/03/photo.jpg"))

	assert.Equal(t, "https://example.com/protected-files/abc-150x150", l.ProtectedURL("abc", "-150x150"))
	assert.True(t, l.IsProtectedURL("https://example.com/protected-files/abc"))

	rel, ok := l.RelativePath(uploadsURL + "/2024/03/photo.jpg?ver=2")
	assert.True(t, ok)
	assert.Equal(t, "2024/03/photo.jpg", rel)

	_, ok = l.RelativePath("https://elsewhere.org/2024/03/photo.jpg")
	assert.False(t, ok)
}

func TestLegacyVariantPaths(t *testing.T) {
	l := Layout{}.withDefaults()

	assert.Equal(t, []string{
		".protected/2024/03/h-150x150.jpg",
		".protected/h-150x150.jpg",
		".protected/2024/h-150x150.jpg",
	}, l.LegacyVariantPaths("2024/03", "h-150x150.jpg"))

	assert.Equal(t, []string{".protected/a.jpg"}, l.LegacyVariantPaths(".", "a.jpg"))
}

func TestVariantNames(t *testing.T) {
	assert.Equal(t, "h-150x150.jpg", protectedVariantName("h", "photo-150x150.jpg"))
	assert.Equal(t, "h.jpg", protectedVariantName("h", "report-pdf.jpg"))
	assert.Equal(t, "-150x150", variantURLSuffix("photo-150x150.jpg"))
	assert.Equal(t, "?type=jpg", variantURLSuffix("report-pdf.jpg"))

	s, ok := scaledSibling("big-scaled.jpg")
	assert.True(t, ok)
	assert.Equal(t, "big.jpg", s)

	_, ok = scaledSibling("big.jpg")
	assert.False(t, ok)
}
