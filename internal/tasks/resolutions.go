package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BlenderKit/blenderkit-asset-tasks/internal/assets"
	"github.com/BlenderKit/blenderkit-asset-tasks/internal/history"
	"github.com/BlenderKit/blenderkit-asset-tasks/internal/services"
	"github.com/BlenderKit/blenderkit-asset-tasks/internal/services/blender"
	"github.com/BlenderKit/blenderkit-asset-tasks/internal/services/blenderkit"
)

// TaskResolutions is the ledger name of the resolutions task.
const TaskResolutions = "resolutions"

// generatedFile is the record the background scripts emit per output file.
type generatedFile struct {
	Type  string `json:"type"`
	Index int    `json:"index"`
	Path  string `json:"file_path"`
}

// Resolutions generates downscaled texture variants for assets that lack
// them and uploads the files back to the asset database.
func (rt *Runtime) Resolutions(ctx context.Context) error {
	params := map[string]string{
		"order":                         "-created",
		"verification_status":           "validated",
		"last_resolution_upload_isnull": "True",
	}
	return rt.forEach(ctx, TaskResolutions, params, rt.resolutionsForAsset)
}

func (rt *Runtime) resolutionsForAsset(ctx context.Context, asset *assets.Asset) (outcome, error) {
	workDir, cleanup, err := rt.workDir(TaskResolutions)
	if err != nil {
		return outcome{}, err
	}
	defer cleanup()

	blendPath, err := rt.DB.DownloadAssetFile(ctx, *asset, "blend", rt.Config.Paths.DownloadCache)
	if err != nil {
		return outcome{}, services.Wrap(services.ErrRemoteAPI, TaskResolutions, "download asset", asset.Name, err)
	}
	defer os.Remove(blendPath)

	selection, err := rt.selectBlender(asset, blendPath)
	if err != nil {
		return outcome{}, err
	}
	out := outcome{Blender: blenderLabel(selection)}

	script := blender.ScriptResolutions
	var template string
	if asset.IsHDR() {
		script = blender.ScriptResolutionsHDR
		template = "" // HDRs load from file_path into a factory scene
	} else {
		// Unpack packed textures first so downscaling sees real files.
		if err := rt.unpackAsset(ctx, TaskResolutions, asset, selection, blendPath, workDir); err != nil {
			return out, err
		}
		template = blendPath
	}

	scriptPath, err := blender.ExtractScript(workDir, script)
	if err != nil {
		return out, services.Wrap(services.ErrConfiguration, TaskResolutions, "extract script", "", err)
	}

	resultPath := filepath.Join(workDir, asset.AssetBaseID+"_resdata.json")
	result, err := rt.Runner.Run(ctx, blender.Invocation{
		Binary:        selection.Binary,
		Script:        scriptPath,
		TemplateBlend: template,
		WorkDir:       workDir,
		Timeout:       rt.processTimeout(),
		Datafile: blender.Datafile{
			FilePath:       blendPath,
			ResultFilepath: resultPath,
			ResultFolder:   workDir,
			AssetData:      assetDataPayload(asset),
		},
		ExpectedOutputs: []string{resultPath},
	})
	if err != nil {
		return out, classifyRunError(TaskResolutions, result, err)
	}

	files, err := readGeneratedFiles(resultPath)
	if err != nil {
		return out, services.Wrap(services.ErrMissingOutput, TaskResolutions, "read result", "", err)
	}
	if len(files) == 0 {
		out.Status = history.StatusSkipped
		out.Message = "no resolutions to generate"
		return out, nil
	}

	if rt.Config.Tasks.SkipUpload {
		out.Status = history.StatusSkipped
		out.Message = fmt.Sprintf("generated %d files, upload skipped", len(files))
		return out, nil
	}

	uploads := make([]blenderkit.UploadFile, 0, len(files))
	for _, file := range files {
		uploads = append(uploads, blenderkit.UploadFile{Type: file.Type, Index: file.Index, Path: file.Path})
	}
	if err := rt.DB.UploadFiles(ctx, asset.ID, uploads); err != nil {
		return out, services.Wrap(services.ErrRemoteAPI, TaskResolutions, "upload resolutions", "", err)
	}
	// Empty patch bumps the asset so search reindexes the new files.
	if err := rt.DB.PatchAssetEmpty(ctx, asset.AssetBaseID); err != nil {
		return out, services.Wrap(services.ErrRemoteAPI, TaskResolutions, "reindex asset", "", err)
	}
	out.Status = history.StatusSuccess
	out.Message = fmt.Sprintf("uploaded %d resolution files", len(uploads))
	return out, nil
}

func (rt *Runtime) unpackAsset(ctx context.Context, task string, asset *assets.Asset, selection blender.Selection, blendPath, workDir string) error {
	scriptPath, err := blender.ExtractScript(workDir, blender.ScriptUnpack)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, task, "extract script", "", err)
	}
	result, err := rt.Runner.Run(ctx, blender.Invocation{
		Binary:        selection.Binary,
		Script:        scriptPath,
		TemplateBlend: blendPath,
		WorkDir:       workDir,
		Timeout:       rt.processTimeout(),
		Datafile: blender.Datafile{
			FilePath:  blendPath,
			AssetData: assetDataPayload(asset),
		},
	})
	if err != nil {
		return classifyRunError(task, result, err)
	}
	return nil
}

// assetDataPayload is the subset of asset metadata the background scripts
// read from the datafile.
func assetDataPayload(asset *assets.Asset) map[string]any {
	payload := map[string]any{
		"id":          asset.ID,
		"assetBaseId": asset.AssetBaseID,
		"name":        asset.Name,
		"assetType":   asset.AssetType,
	}
	if asset.DictParameters != nil {
		payload["dictParameters"] = asset.DictParameters
	}
	return payload
}

func readGeneratedFiles(path string) ([]generatedFile, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read result json: %w", err)
	}
	var files []generatedFile
	if err := json.Unmarshal(payload, &files); err != nil {
		return nil, fmt.Errorf("parse result json: %w", err)
	}
	return files, nil
}
