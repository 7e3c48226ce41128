// Package report aggregates per-release add-on test results into a single
// summary and renders it as an asset comment.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BlenderKit/blenderkit-asset-tasks/internal/services/blender"
)

// NoResult is the message recorded for releases whose result file is
// missing or unreadable. A crashed Blender leaves no file behind; the
// report must still cover the release.
const NoResult = "no result"

// Entry is the aggregated outcome for one Blender release.
type Entry struct {
	Release string
	// Checks maps check name to its error string; empty string means the
	// check passed. Nil when the release produced no result at all.
	Checks map[string]string
}

// Passed reports whether every check of the release succeeded.
func (e Entry) Passed() bool {
	if e.Checks == nil {
		return false
	}
	for _, message := range e.Checks {
		if message != "" {
			return false
		}
	}
	return true
}

// failures lists the failed checks in stable order.
func (e Entry) failures() []string {
	if e.Checks == nil {
		return []string{NoResult}
	}
	names := make([]string, 0, len(e.Checks))
	for name, message := range e.Checks {
		if message != "" {
			names = append(names, fmt.Sprintf("test '%s' failed: %s", name, message))
		}
	}
	sort.Strings(names)
	return names
}

// Summary is the aggregate over all releases, ordered by version.
type Summary struct {
	Entries []Entry
}

// Passed counts releases with all checks green.
func (s Summary) Passed() int {
	var n int
	for _, entry := range s.Entries {
		if entry.Passed() {
			n++
		}
	}
	return n
}

// Failed counts releases with at least one failed check or no result.
func (s Summary) Failed() int {
	return len(s.Entries) - s.Passed()
}

// Aggregate reads one result file per release. Each path's parent
// directory names the release ("blender-4.2"). Missing or malformed files
// become "no result" entries instead of aborting, so one crashed release
// cannot hide the others. The same inputs always produce the same summary.
func Aggregate(paths []string) Summary {
	entries := make([]Entry, 0, len(paths))
	for _, path := range paths {
		entries = append(entries, readEntry(path))
	}
	sortEntries(entries)
	return Summary{Entries: entries}
}

// AggregateDir walks resultsDir for blender-*/ subdirectories holding a
// result JSON, the layout the addon-test task writes.
func AggregateDir(resultsDir string) (Summary, error) {
	matches, err := filepath.Glob(filepath.Join(resultsDir, "blender-*", "*.json"))
	if err != nil {
		return Summary{}, fmt.Errorf("scan results dir: %w", err)
	}
	if len(matches) == 0 {
		return Summary{}, fmt.Errorf("no result files under %s", resultsDir)
	}
	return Aggregate(matches), nil
}

func readEntry(path string) Entry {
	release := releaseName(path)
	payload, err := os.ReadFile(path)
	if err != nil {
		return Entry{Release: release}
	}
	var checks map[string]string
	if err := json.Unmarshal(payload, &checks); err != nil || checks == nil {
		return Entry{Release: release}
	}
	return Entry{Release: release, Checks: checks}
}

func releaseName(path string) string {
	return filepath.Base(filepath.Dir(path))
}

// sortEntries orders by parsed version when the release name carries one,
// with unparseable names last in lexical order.
func sortEntries(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		ti, iok := releaseTag(entries[i].Release)
		tj, jok := releaseTag(entries[j].Release)
		switch {
		case iok && jok:
			return ti.Compare(tj) < 0
		case iok:
			return true
		case jok:
			return false
		default:
			return entries[i].Release < entries[j].Release
		}
	})
}

func releaseTag(release string) (blender.Tag, bool) {
	trimmed := strings.TrimPrefix(release, "blender-")
	tag, err := blender.ParseTag(trimmed)
	if err != nil {
		return blender.Tag{}, false
	}
	return tag, true
}

// Comment renders the summary as the markdown comment posted on the asset,
// one section per release separated by horizontal rules.
func (s Summary) Comment() string {
	var b strings.Builder
	b.WriteString("We have automatically tested your add-on. Below are the results:")

	for _, entry := range s.Entries {
		if entry.Passed() {
			fmt.Fprintf(&b, "\n***\n**%s**: OK", entry.Release)
			continue
		}
		fmt.Fprintf(&b, "\n***\n**%s**: FAIL", entry.Release)
		for _, failure := range entry.failures() {
			fmt.Fprintf(&b, "\n- %s", failure)
		}
	}

	if s.Failed() > 0 {
		b.WriteString("\n***\nSome tests has failed. Please check your add-on in the failed versions of Blender. It is possible there is a problem.")
	}
	return b.String()
}
