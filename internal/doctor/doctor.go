// Package doctor checks that a host is ready to run asset tasks: Blender
// installs present, template scenes in place, credentials configured.
package doctor

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BlenderKit/blenderkit-asset-tasks/internal/config"
	"github.com/BlenderKit/blenderkit-asset-tasks/internal/services/blender"
)

// Status reports one readiness check.
type Status struct {
	Name      string
	Optional  bool
	Available bool
	Detail    string
}

// Check evaluates the configuration against the host and reports what a
// task run would find. Optional failures do not block task execution.
func Check(cfg *config.Config) []Status {
	var results []Status

	results = append(results, checkBlenders(cfg))
	results = append(results, checkTemplates(cfg))
	results = append(results, checkDir("work directory", cfg.Paths.WorkDir, false))
	results = append(results, checkDir("download cache", cfg.Paths.DownloadCache, false))
	results = append(results, checkDir("results directory", cfg.Paths.ResultsDir, true))

	results = append(results, checkKey("API key", cfg.Server.APIKey, false,
		"set server.api_key or "+config.EnvAPIKey))
	results = append(results, checkKey("comment API key", cfg.Server.CommentAPIKey, true,
		"needed for addon-report; set server.comment_api_key or "+config.EnvCommentAPIKey))
	results = append(results, checkKey("caption API key", cfg.Caption.APIKey, true,
		"needed for caption; set caption.api_key or "+config.EnvCaptionAPIKey))

	return results
}

// Healthy reports whether every required check passed.
func Healthy(results []Status) bool {
	for _, status := range results {
		if !status.Optional && !status.Available {
			return false
		}
	}
	return true
}

func checkBlenders(cfg *config.Config) Status {
	status := Status{Name: "blender installs"}

	if binary := strings.TrimSpace(cfg.Paths.BlenderBinary); binary != "" {
		if _, err := os.Stat(binary); err != nil {
			status.Detail = fmt.Sprintf("blender_binary %s not found", binary)
			return status
		}
		status.Available = true
		status.Detail = "single binary: " + binary
		return status
	}

	root := strings.TrimSpace(cfg.Paths.BlendersDir)
	if root == "" {
		status.Detail = "neither blenders_dir nor blender_binary configured"
		return status
	}
	dir, err := blender.ScanInstallDir(root)
	if err != nil {
		status.Detail = err.Error()
		return status
	}

	tags := make([]string, 0, dir.Len())
	var missing []string
	for _, entry := range dir.Entries() {
		if _, err := os.Stat(blender.BinaryPath(dir.Root, entry.DirName)); err != nil {
			missing = append(missing, entry.Tag.String())
			continue
		}
		tags = append(tags, entry.Tag.String())
	}
	if len(tags) == 0 {
		status.Detail = "no usable executables under " + root
		return status
	}
	status.Available = true
	status.Detail = strings.Join(tags, ", ")
	if len(missing) > 0 {
		status.Detail += " (executable missing for " + strings.Join(missing, ", ") + ")"
	}
	return status
}

func checkTemplates(cfg *config.Config) Status {
	status := Status{Name: "template scenes", Optional: true}
	root := strings.TrimSpace(cfg.Paths.TemplatesDir)
	if root == "" {
		status.Detail = "templates_dir not configured; thumbnail and validations tasks unavailable"
		return status
	}
	scenes := []string{
		"model_thumbnailer.blend",
		"model_validation_static_renders.blend",
		"material_validator_mix.blend",
		"material_turnaround.blend",
	}
	var missing []string
	for _, scene := range scenes {
		if _, err := os.Stat(filepath.Join(root, scene)); err != nil {
			missing = append(missing, scene)
		}
	}
	if len(missing) == len(scenes) {
		status.Detail = "no template scenes under " + root
		return status
	}
	status.Available = true
	status.Detail = root
	if len(missing) > 0 {
		status.Detail += " (missing " + strings.Join(missing, ", ") + ")"
	}
	return status
}

func checkDir(name, path string, optional bool) Status {
	status := Status{Name: name, Optional: optional}
	if strings.TrimSpace(path) == "" {
		status.Detail = "not configured"
		return status
	}
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		status.Detail = path + " does not exist"
		return status
	}
	status.Available = true
	status.Detail = path
	return status
}

func checkKey(name, value string, optional bool, hint string) Status {
	status := Status{Name: name, Optional: optional}
	if strings.TrimSpace(value) == "" {
		status.Detail = hint
		return status
	}
	status.Available = true
	status.Detail = "configured"
	return status
}
