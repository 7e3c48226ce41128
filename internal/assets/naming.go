package assets

import (
	"net/url"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Resolution identifies one of the standard downscaled texture sizes.
type Resolution struct {
	Key    string
	Pixels int
	Suffix string
}

// Resolutions lists the standard sizes, ordered smallest to largest. The Key
// doubles as the server-side fileType for the generated file.
var Resolutions = []Resolution{
	{Key: "resolution_0_5K", Pixels: 512, Suffix: "_05k"},
	{Key: "resolution_1K", Pixels: 1024, Suffix: "_1k"},
	{Key: "resolution_2K", Pixels: 2048, Suffix: "_2k"},
	{Key: "resolution_4K", Pixels: 4096, Suffix: "_4k"},
	{Key: "resolution_8K", Pixels: 8192, Suffix: "_8k"},
}

// ClosestResolution returns the standard resolution nearest to the given
// pixel size.
func ClosestResolution(pixels int) Resolution {
	best := Resolutions[0]
	bestDist := -1
	for _, res := range Resolutions {
		dist := pixels - res.Pixels
		if dist < 0 {
			dist = -dist
		}
		if bestDist < 0 || dist < bestDist {
			best = res
			bestDist = dist
		}
	}
	return best
}

func resolutionPixels(fileType string) (int, bool) {
	for _, res := range Resolutions {
		if res.Key == fileType {
			return res.Pixels, true
		}
	}
	return 0, false
}

// ResolutionFile picks the asset file matching the wanted resolution key, or
// the nearest available resolution, falling back to the original blend file.
// The second return value is the resolved fileType.
func ResolutionFile(a *Asset, wanted string) (File, string, bool) {
	var original File
	var haveOriginal bool
	var closest File
	var haveClosest bool
	target, _ := resolutionPixels(wanted)
	bestDist := -1

	for _, f := range a.Files {
		if f.FileType == "blend" {
			original = f
			haveOriginal = true
			if wanted == "blend" {
				return original, "blend", true
			}
		}
		if f.FileType == wanted {
			return f, wanted, true
		}
		if pixels, ok := resolutionPixels(f.FileType); ok && target > 0 {
			dist := target - pixels
			if dist < 0 {
				dist = -dist
			}
			if bestDist < 0 || dist < bestDist {
				closest = f
				haveClosest = true
				bestDist = dist
			}
		}
	}

	if haveClosest {
		return closest, closest.FileType, true
	}
	if haveOriginal {
		return original, "blend", true
	}
	return File{}, "", false
}

const slugMaxLength = 50

var asciiFold = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Slugify normalizes a string for safe filenames: accents folded to ASCII,
// lowercased, disallowed characters collapsed to separators, length capped.
func Slugify(name string) string {
	folded, _, err := transform.String(asciiFold, name)
	if err == nil {
		name = folded
	}
	name = strings.ToLower(name)

	var b strings.Builder
	b.Grow(len(name))
	lastSep := true
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastSep = false
		case r == '-' || r == '_':
			if !lastSep {
				b.WriteRune(r)
				lastSep = true
			}
		default:
			if !lastSep {
				b.WriteByte('_')
				lastSep = true
			}
		}
	}
	slug := strings.Trim(b.String(), "-_")
	if len(slug) > slugMaxLength {
		slug = strings.Trim(slug[:slugMaxLength], "-_")
	}
	return slug
}

// FilenameFromURL extracts the filename portion of a download URL.
func FilenameFromURL(raw string) string {
	if raw == "" {
		return ""
	}
	if parsed, err := url.Parse(raw); err == nil {
		raw = parsed.Path
	}
	if idx := strings.LastIndex(raw, "/"); idx >= 0 {
		raw = raw[idx+1:]
	}
	if idx := strings.Index(raw, "?"); idx >= 0 {
		raw = raw[:idx]
	}
	return raw
}

// LocalFilename converts a server-side file name into the slug-prefixed
// local name used in the download cache.
func LocalFilename(a *Asset, serverName string) string {
	name := strings.ReplaceAll(serverName, "blend_", "")
	name = strings.ReplaceAll(name, "resolution_", "")
	return Slugify(a.Name) + "_" + name
}
