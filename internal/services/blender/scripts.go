package blender

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

//go:embed bg_scripts/*.py
var scriptsFS embed.FS

// Script names accepted by ExtractScript.
const (
	ScriptResolutions    = "resolutions_bg.py"
	ScriptResolutionsHDR = "resolutions_hdr_bg.py"
	ScriptGLTF           = "gltf_bg.py"
	ScriptThumbnail      = "thumbnail_bg.py"
	ScriptUnpack             = "unpack_bg.py"
	ScriptAddonTest          = "addon_test_bg.py"
	ScriptModelValidation    = "model_validation_bg.py"
	ScriptMaterialValidation = "material_validation_bg.py"
)

// ExtractScript writes one embedded background script into dir and returns
// its path. Blender needs the script on disk; it cannot read embedded data.
func ExtractScript(dir, name string) (string, error) {
	payload, err := scriptsFS.ReadFile("bg_scripts/" + name)
	if err != nil {
		return "", fmt.Errorf("unknown background script %s: %w", name, err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return "", fmt.Errorf("extract background script: %w", err)
	}
	return path, nil
}

// ExtractScripts writes every embedded background script into dir.
func ExtractScripts(dir string) error {
	entries, err := fs.ReadDir(scriptsFS, "bg_scripts")
	if err != nil {
		return fmt.Errorf("list background scripts: %w", err)
	}
	for _, entry := range entries {
		if _, err := ExtractScript(dir, entry.Name()); err != nil {
			return err
		}
	}
	return nil
}
