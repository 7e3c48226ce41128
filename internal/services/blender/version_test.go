package blender

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func testDirectory(tags ...string) Directory {
	entries := make([]Entry, 0, len(tags))
	for _, tag := range tags {
		parsed, err := ParseTag(tag)
		if err != nil {
			panic(err)
		}
		entries = append(entries, Entry{Tag: parsed, DirName: tag})
	}
	return NewDirectory("/opt/blenders", entries)
}

func mustTag(t *testing.T, value string) Tag {
	t.Helper()
	tag, err := ParseTag(value)
	if err != nil {
		t.Fatalf("ParseTag(%q): %v", value, err)
	}
	return tag
}

func TestParseTag(t *testing.T) {
	tag := mustTag(t, "4.2")
	if tag.Major != 4 || tag.Minor != 2 {
		t.Fatalf("unexpected tag: %+v", tag)
	}
	if got := mustTag(t, "4.2.1"); got != tag {
		t.Fatalf("patch component should be ignored, got %+v", got)
	}
	for _, bad := range []string{"", "4", "a.b", "4.2.1.0"} {
		if _, err := ParseTag(bad); err == nil {
			t.Errorf("ParseTag(%q) should fail", bad)
		}
	}
}

func TestTagOrderingIsNumeric(t *testing.T) {
	// 2.93 sorts above 2.9 and below 3.0.
	if mustTag(t, "2.9").Compare(mustTag(t, "2.93")) != -1 {
		t.Fatal("2.9 should sort below 2.93")
	}
	if mustTag(t, "2.93").Compare(mustTag(t, "3.0")) != -1 {
		t.Fatal("2.93 should sort below 3.0")
	}
}

func TestResolveExactMatch(t *testing.T) {
	dir := testDirectory("2.93", "3.6", "4.2", "4.5")
	entry, err := dir.Resolve(mustTag(t, "3.6"))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if entry.DirName != "3.6" {
		t.Fatalf("expected exact match, got %s", entry.DirName)
	}
}

func TestResolvePrefersLargerNotNewer(t *testing.T) {
	dir := testDirectory("2.93", "3.6", "4.2", "4.5")
	entry, err := dir.Resolve(mustTag(t, "4.4"))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if entry.DirName != "4.2" {
		t.Fatalf("expected 4.2 for requested 4.4, got %s", entry.DirName)
	}
}

func TestResolveFallsBackToSmallestNewer(t *testing.T) {
	dir := testDirectory("3.6", "4.2")
	entry, err := dir.Resolve(mustTag(t, "2.8"))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if entry.DirName != "3.6" {
		t.Fatalf("expected smallest newer release, got %s", entry.DirName)
	}
}

func TestResolveEmptyDirectory(t *testing.T) {
	var dir Directory
	if _, err := dir.Resolve(mustTag(t, "4.2")); !errors.Is(err, ErrNoVersions) {
		t.Fatalf("expected ErrNoVersions, got %v", err)
	}
}

func TestNewest(t *testing.T) {
	dir := testDirectory("4.2", "2.93", "4.5")
	entry, err := dir.Newest()
	if err != nil {
		t.Fatalf("Newest: %v", err)
	}
	if entry.DirName != "4.5" {
		t.Fatalf("expected 4.5, got %s", entry.DirName)
	}
}

func TestScanInstallDir(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"2.93", "4.2", "downloads", "notes.txt"} {
		if name == "notes.txt" {
			if err := os.WriteFile(filepath.Join(root, name), []byte("x"), 0o644); err != nil {
				t.Fatal(err)
			}
			continue
		}
		if err := os.Mkdir(filepath.Join(root, name), 0o755); err != nil {
			t.Fatal(err)
		}
	}

	dir, err := ScanInstallDir(root)
	if err != nil {
		t.Fatalf("ScanInstallDir: %v", err)
	}
	if dir.Len() != 2 {
		t.Fatalf("expected 2 releases, got %d", dir.Len())
	}
	entries := dir.Entries()
	if entries[0].DirName != "2.93" || entries[1].DirName != "4.2" {
		t.Fatalf("unexpected order: %+v", entries)
	}
}

func TestScanInstallDirEmpty(t *testing.T) {
	root := t.TempDir()
	if err := os.Mkdir(filepath.Join(root, "downloads"), 0o755); err != nil {
		t.Fatal(err)
	}
	if _, err := ScanInstallDir(root); !errors.Is(err, ErrNoVersions) {
		t.Fatalf("expected ErrNoVersions, got %v", err)
	}
}
