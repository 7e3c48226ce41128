package doctor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/BlenderKit/blenderkit-asset-tasks/internal/config"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	root := t.TempDir()
	cfg := config.Default()
	cfg.Paths.WorkDir = filepath.Join(root, "work")
	cfg.Paths.DownloadCache = filepath.Join(root, "cache")
	cfg.Paths.ResultsDir = filepath.Join(root, "results")
	for _, dir := range []string{cfg.Paths.WorkDir, cfg.Paths.DownloadCache, cfg.Paths.ResultsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	return cfg
}

func statusByName(t *testing.T, results []Status, name string) Status {
	t.Helper()
	for _, status := range results {
		if status.Name == name {
			return status
		}
	}
	t.Fatalf("no status named %q", name)
	return Status{}
}

func TestCheckReportsMissingBlender(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.APIKey = "key"

	results := Check(&cfg)
	blenders := statusByName(t, results, "blender installs")
	if blenders.Available {
		t.Error("no blender configured should fail the check")
	}
	if Healthy(results) {
		t.Error("missing blender is a required failure")
	}
}

func TestCheckSingleBinaryMode(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.APIKey = "key"
	binary := filepath.Join(t.TempDir(), "blender")
	if err := os.WriteFile(binary, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	cfg.Paths.BlenderBinary = binary

	results := Check(&cfg)
	if !statusByName(t, results, "blender installs").Available {
		t.Error("existing blender_binary should pass")
	}
	if !Healthy(results) {
		t.Errorf("expected healthy, got %+v", results)
	}
}

func TestCheckInstallDirListsReleases(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.APIKey = "key"
	root := t.TempDir()
	for _, release := range []string{"3.6", "4.2"} {
		dir := filepath.Join(root, release)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dir, "blender"), []byte("#!/bin/sh\n"), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	cfg.Paths.BlendersDir = root

	blenders := statusByName(t, Check(&cfg), "blender installs")
	if !blenders.Available {
		t.Fatalf("status = %+v", blenders)
	}
	if blenders.Detail != "3.6, 4.2" {
		t.Errorf("detail = %q, want release list", blenders.Detail)
	}
}

func TestOptionalFailuresDoNotBlock(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.APIKey = "key"
	binary := filepath.Join(t.TempDir(), "blender")
	if err := os.WriteFile(binary, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	cfg.Paths.BlenderBinary = binary
	// No caption key, no comment key, no templates dir.

	results := Check(&cfg)
	if !Healthy(results) {
		t.Errorf("optional gaps should not make the host unhealthy: %+v", results)
	}
	if statusByName(t, results, "caption API key").Available {
		t.Error("missing caption key should be reported")
	}
}
