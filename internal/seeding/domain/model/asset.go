package model

import (
	"path"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// AssetCategory describes how logical keys of one kind map to blob paths
type AssetCategory struct {
	Name      string
	Folder    string
	Sized     bool
	Extension string
}

var (
	// BrandLogos are stored as brands/<slug>/<size>.png
	BrandLogos = AssetCategory{Name: "brands", Folder: "brands", Sized: true, Extension: ".png"}
	// PaymentMethodLogos are stored as payment-methods/<slug>.png
	PaymentMethodLogos = AssetCategory{Name: "payment-methods", Folder: "payment-methods", Extension: ".png"}
)

// DefaultPlaceholderNames are marker files used only to materialize folders
var DefaultPlaceholderNames = []string{".keep", ".placeholder", ".gitkeep"}

// Categories returns the built-in asset categories
func Categories() []AssetCategory {
	return []AssetCategory{BrandLogos, PaymentMethodLogos}
}

// CategoryByName looks up a built-in category
func CategoryByName(name string) (AssetCategory, bool) {
	for _, c := range Categories() {
		if c.Name == name {
			return c, true
		}
	}
	return AssetCategory{}, false
}

// Prefix is the listing prefix of the category
func (c AssetCategory) Prefix() string {
	return c.Folder + "/"
}

// Path returns the deterministic blob path for an already slugified key.
// size is ignored by unsized categories.
func (c AssetCategory) Path(slug string, size int) string {
	if c.Sized {
		return c.Folder + "/" + slug + "/" + strconv.Itoa(size) + c.Extension
	}
	return c.Folder + "/" + slug + c.Extension
}

// KeyPath derives the blob path from a raw logical key
func (c AssetCategory) KeyPath(logicalKey string, size int) string {
	return c.Path(Slugify(logicalKey), size)
}

// Slugify is the single normalization applied to logical keys, both when
// uploading and when reconciling: diacritics are folded, letters lowercased
// and every run of characters outside [a-z0-9] collapses to one '-'.
func Slugify(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	folded = strings.ToLower(folded)

	var b strings.Builder
	b.Grow(len(folded))
	pendingDash := false
	for _, r := range folded {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(r)
			continue
		}
		pendingDash = true
	}
	return b.String()
}

// ParsedAssetPath is the result of reversing an asset path template
type ParsedAssetPath struct {
	Category AssetCategory
	Slug     string
	Size     int
}

// ParseAssetPath reverses Path. ok is false when the path does not match
// any category template exactly; callers must treat such paths as ambiguous.
func ParseAssetPath(p string) (ParsedAssetPath, bool) {
	for _, c := range Categories() {
		if !strings.HasPrefix(p, c.Prefix()) {
			continue
		}
		rest := strings.TrimPrefix(p, c.Prefix())
		if c.Sized {
			segs := strings.Split(rest, "/")
			if len(segs) != 2 || segs[0] == "" || !strings.HasSuffix(segs[1], c.Extension) {
				return ParsedAssetPath{}, false
			}
			size, err := strconv.Atoi(strings.TrimSuffix(segs[1], c.Extension))
			if err != nil || size <= 0 {
				return ParsedAssetPath{}, false
			}
			return ParsedAssetPath{Category: c, Slug: segs[0], Size: size}, true
		}
		if strings.Contains(rest, "/") || !strings.HasSuffix(rest, c.Extension) {
			return ParsedAssetPath{}, false
		}
		slug := strings.TrimSuffix(rest, c.Extension)
		if slug == "" {
			return ParsedAssetPath{}, false
		}
		return ParsedAssetPath{Category: c, Slug: slug}, true
	}
	return ParsedAssetPath{}, false
}

// IsPlaceholder reports whether the object at p is a folder marker
func IsPlaceholder(p string, names []string) bool {
	base := path.Base(p)
	for _, n := range names {
		if base == n {
			return true
		}
	}
	return false
}

// TopLevelFolder returns the first path segment, or "(root)" for files at the root
func TopLevelFolder(p string) string {
	if i := strings.Index(p, "/"); i > 0 {
		return p[:i]
	}
	return "(root)"
}
