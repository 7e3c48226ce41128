package blender

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
)

// ErrNoVersions indicates the install directory held no usable Blender
// releases. Tasks wrap it as a configuration failure.
var ErrNoVersions = errors.New("no blender versions found")

// Tag is a Blender release tag ordered numerically on (major, minor).
// A patch component in the source string is accepted and ignored.
type Tag struct {
	Major int
	Minor int
}

// ParseTag parses "4.2" or "4.2.1" into a Tag.
func ParseTag(value string) (Tag, error) {
	parts := strings.Split(strings.TrimSpace(value), ".")
	if len(parts) < 2 || len(parts) > 3 {
		return Tag{}, fmt.Errorf("version tag %q: want major.minor", value)
	}
	major, err := strconv.Atoi(parts[0])
	if err != nil || major < 0 {
		return Tag{}, fmt.Errorf("version tag %q: bad major component", value)
	}
	minor, err := strconv.Atoi(parts[1])
	if err != nil || minor < 0 {
		return Tag{}, fmt.Errorf("version tag %q: bad minor component", value)
	}
	return Tag{Major: major, Minor: minor}, nil
}

// String renders the tag as "major.minor".
func (t Tag) String() string {
	return fmt.Sprintf("%d.%d", t.Major, t.Minor)
}

// Compare orders tags lexicographically on (major, minor).
func (t Tag) Compare(other Tag) int {
	if t.Major != other.Major {
		if t.Major < other.Major {
			return -1
		}
		return 1
	}
	switch {
	case t.Minor < other.Minor:
		return -1
	case t.Minor > other.Minor:
		return 1
	default:
		return 0
	}
}

// Entry is one installed release: its tag and the subdirectory holding it.
type Entry struct {
	Tag     Tag
	DirName string
}

// Directory is the ordered set of installed Blender releases discovered
// under one root path. The selection algorithm never touches the
// filesystem; construction does the scanning.
type Directory struct {
	Root    string
	entries []Entry
}

// NewDirectory builds a Directory from already-known entries, sorted
// ascending. Used by tests and by single-binary mode.
func NewDirectory(root string, entries []Entry) Directory {
	sorted := append([]Entry(nil), entries...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Tag.Compare(sorted[j].Tag) < 0
	})
	return Directory{Root: root, entries: sorted}
}

// ScanInstallDir lists subdirectories of root whose names parse as version
// tags. Non-version entries are ignored; zero usable entries is an error.
func ScanInstallDir(root string) (Directory, error) {
	items, err := os.ReadDir(root)
	if err != nil {
		return Directory{}, fmt.Errorf("read blender install dir %s: %w", root, err)
	}

	entries := make([]Entry, 0, len(items))
	for _, item := range items {
		if !item.IsDir() {
			continue
		}
		tag, err := ParseTag(item.Name())
		if err != nil {
			continue
		}
		entries = append(entries, Entry{Tag: tag, DirName: item.Name()})
	}
	if len(entries) == 0 {
		return Directory{}, fmt.Errorf("%w in %s", ErrNoVersions, root)
	}
	return NewDirectory(root, entries), nil
}

// Entries returns the releases in ascending version order.
func (d Directory) Entries() []Entry {
	return append([]Entry(nil), d.entries...)
}

// Len returns the number of installed releases.
func (d Directory) Len() int { return len(d.entries) }

// Newest returns the highest installed release.
func (d Directory) Newest() (Entry, error) {
	if len(d.entries) == 0 {
		return Entry{}, ErrNoVersions
	}
	return d.entries[len(d.entries)-1], nil
}

// Resolve selects the release to open an asset authored with the requested
// version. An exact match wins. Otherwise the nearest release not newer
// than the requested version is chosen, preferring the larger candidate.
// When every release is newer than requested, the smallest one is used.
func (d Directory) Resolve(requested Tag) (Entry, error) {
	if len(d.entries) == 0 {
		return Entry{}, ErrNoVersions
	}

	var older *Entry
	var newer *Entry
	for i := range d.entries {
		entry := &d.entries[i]
		switch entry.Tag.Compare(requested) {
		case 0:
			return *entry, nil
		case -1:
			older = entry
		case 1:
			if newer == nil {
				newer = entry
			}
		}
	}
	if older != nil {
		return *older, nil
	}
	return *newer, nil
}
