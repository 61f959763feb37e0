package service

import (
	"path"
	"regexp"
	"strings"
)

const (
	DefaultProtectedDir  = ".protected"
	DefaultProtectedPath = "protected-files"
)

var (
	sizeSuffixRe = regexp.MustCompile(`-(\d+x\d+)\.([A-Za-z0-9]+)$`)
	// Naive public URL of a size variant, the capture is the WxH suffix
	sizeURLRe = regexp.MustCompile(`-(\d+x\d+)\.(?:jpe?g|png|gif|webp)$`)
	tokenRe   = regexp.MustCompile(`^([a-f0-9]+)(?:-(\d+x\d+))?$`)

	standardImageExts = []string{".jpg", ".jpeg", ".png", ".gif", ".webp"}
)

// Layout describes where uploads live and how they are addressed
type Layout struct {
	// SiteURL is the root URL of the site without trailing slash
	SiteURL string
	// UploadsURL is the public URL of the upload root without trailing slash
	UploadsURL string
	// ProtectedDir is the subdirectory of the upload root holding restricted files
	ProtectedDir string
	// ProtectedPath is the URL path segment served by the protected file server
	ProtectedPath string
}

func (l Layout) withDefaults() Layout {
	if l.ProtectedDir == "" {
		l.ProtectedDir = DefaultProtectedDir
	}
	if l.ProtectedPath == "" {
		l.ProtectedPath = DefaultProtectedPath
	}

	l.SiteURL = strings.TrimRight(l.SiteURL, "/")
	l.UploadsURL = strings.TrimRight(l.UploadsURL, "/")
	l.ProtectedDir = strings.Trim(l.ProtectedDir, "/")
	l.ProtectedPath = strings.Trim(l.ProtectedPath, "/")
	return l
}

// ProtectedRoot is the prefix every protected URL starts with
func (l Layout) ProtectedRoot() string {
	return l.SiteURL + "/" + l.ProtectedPath + "/"
}

// ProtectedURL builds the URL served by the protected file server.
// suffix is either empty, "-WxH" or "?type=jpg".
func (l Layout) ProtectedURL(hash, suffix string) string {
	return l.ProtectedRoot() + hash + suffix
}

func (l Layout) PublicURL(rel string) string {
	return l.UploadsURL + "/" + strings.TrimPrefix(rel, "/")
}

func (l Layout) IsProtectedPath(rel string) bool {
	return rel == l.ProtectedDir || strings.HasPrefix(rel, l.ProtectedDir+"/")
}

func (l Layout) IsProtectedURL(u string) bool {
	return strings.HasPrefix(u, l.ProtectedRoot()) || strings.Contains(u, "/"+l.ProtectedPath+"/")
}

// RelativePath turns a public upload URL into a path relative to the upload root
func (l Layout) RelativePath(u string) (string, bool) {
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		u = u[:i]
	}

	rel, ok := strings.CutPrefix(u, l.UploadsURL+"/")
	if !ok {
		return "", false
	}

	return rel, rel != ""
}

// ProtectedDirFor returns the protected directory mirroring the public relative dir
func (l Layout) ProtectedDirFor(relDir string) string {
	if relDir == "" || relDir == "." {
		return l.ProtectedDir
	}

	return path.Join(l.ProtectedDir, relDir)
}

// PublicDirOf strips the protected prefix from the directory of a protected path
func (l Layout) PublicDirOf(protectedPath string) string {
	dir := path.Dir(protectedPath)
	if dir == l.ProtectedDir {
		return "."
	}

	return strings.TrimPrefix(dir, l.ProtectedDir+"/")
}

// LegacyVariantPaths lists where a variant file may sit inside the protected
// tree: the structured location, the flat layout used by early installs and the
// year only layout
func (l Layout) LegacyVariantPaths(relDir, name string) []string {
	paths := []string{path.Join(l.ProtectedDirFor(relDir), name)}

	flat := path.Join(l.ProtectedDir, name)
	if flat != paths[0] {
		paths = append(paths, flat)
	}

	if len(relDir) >= 4 && relDir != "." {
		year := path.Join(l.ProtectedDir, relDir[:4], name)
		if year != paths[0] {
			paths = append(paths, year)
		}
	}

	return paths
}

// sizeSuffix extracts "WxH" from names like photo-150x150.jpg
func sizeSuffix(name string) string {
	m := sizeSuffixRe.FindStringSubmatch(name)
	if m == nil {
		return ""
	}

	return m[1]
}

// protectedVariantName is the on disk name of a size variant once protected
func protectedVariantName(hash, name string) string {
	ext := path.Ext(name)
	if ext == "" {
		ext = ".jpg"
	}

	if wh := sizeSuffix(name); wh != "" {
		return hash + "-" + wh + ext
	}

	return hash + ext
}

// variantURLSuffix is the URL suffix addressing a size variant of a protected file
func variantURLSuffix(name string) string {
	if wh := sizeSuffix(name); wh != "" {
		return "-" + wh
	}

	return "?type=jpg"
}

func isStandardImage(name string) bool {
	ext := strings.ToLower(path.Ext(name))
	for _, e := range standardImageExts {
		if ext == e {
			return true
		}
	}

	return false
}

// scaledSibling returns the basename of the unscaled original for a "-scaled" primary
func scaledSibling(name string) (string, bool) {
	ext := path.Ext(name)
	stem := strings.TrimSuffix(name, ext)

	orig, ok := strings.CutSuffix(stem, "-scaled")
	if !ok || orig == "" {
		return "", false
	}

	return orig + ext, true
}
