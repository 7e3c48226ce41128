package blender

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// BinaryPath returns the Blender executable inside one release directory,
// following the layout of official archives per platform.
func BinaryPath(root, dirName string) string {
	base := filepath.Join(root, dirName)
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(base, "Contents", "MacOS", "Blender")
	case "windows":
		return filepath.Join(base, "blender.exe")
	default:
		return filepath.Join(base, "blender")
	}
}

// Selection is the outcome of picking a Blender build for an asset: the
// executable to launch and the release tag it belongs to.
type Selection struct {
	Binary string
	Tag    Tag
}

// Select resolves the Blender build for an asset authored with the given
// version. When binaryOverride is set (single-binary mode) it is used
// unconditionally and the requested tag is reported back unchanged.
func Select(dir Directory, requested Tag, binaryOverride string) (Selection, error) {
	if binaryOverride != "" {
		if _, err := os.Stat(binaryOverride); err != nil {
			return Selection{}, fmt.Errorf("blender binary override %s: %w", binaryOverride, err)
		}
		return Selection{Binary: binaryOverride, Tag: requested}, nil
	}

	entry, err := dir.Resolve(requested)
	if err != nil {
		return Selection{}, err
	}
	binary := BinaryPath(dir.Root, entry.DirName)
	if _, err := os.Stat(binary); err != nil {
		return Selection{}, fmt.Errorf("blender %s: executable missing: %w", entry.Tag, err)
	}
	return Selection{Binary: binary, Tag: entry.Tag}, nil
}

// RequiredVersion decides which Blender release an asset asks for. The
// version recorded in the asset metadata and the one stamped into the
// blend file header can disagree after re-uploads; the newer of the two
// wins so features used by either source still load.
func RequiredVersion(metadataVersion string, blendPath string) (Tag, error) {
	var meta Tag
	var haveMeta bool
	if metadataVersion != "" {
		parsed, err := ParseTag(metadataVersion)
		if err == nil {
			meta = parsed
			haveMeta = true
		}
	}

	sniffed, err := SniffBlendVersion(blendPath)
	if err != nil {
		if haveMeta {
			return meta, nil
		}
		return Tag{}, err
	}
	if haveMeta && meta.Compare(sniffed) > 0 {
		return meta, nil
	}
	return sniffed, nil
}
