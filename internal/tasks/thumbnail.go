package tasks

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/BlenderKit/blenderkit-asset-tasks/internal/assets"
	"github.com/BlenderKit/blenderkit-asset-tasks/internal/history"
	"github.com/BlenderKit/blenderkit-asset-tasks/internal/services"
	"github.com/BlenderKit/blenderkit-asset-tasks/internal/services/blender"
	"github.com/BlenderKit/blenderkit-asset-tasks/internal/services/blenderkit"
)

// TaskThumbnail is the ledger name of the thumbnail task.
const TaskThumbnail = "thumbnail"

// modelThumbnailTemplate is the pre-configured scene the render runs in.
const modelThumbnailTemplate = "model_thumbnailer.blend"

// defaultThumbnailParams are the render settings used when the asset's
// markThumbnailRender request does not override them.
var defaultThumbnailParams = map[string]any{
	"thumbnail_use_gpu":              false,
	"thumbnail_samples":              100,
	"thumbnail_resolution":           2048,
	"thumbnail_denoising":            true,
	"thumbnail_background_lightness": 0.9,
	"thumbnail_angle":                "DEFAULT",
	"thumbnail_snap_to":              "GROUND",
}

// Thumbnail re-renders thumbnails for model assets flagged with the
// markThumbnailRender parameter and clears the flag on success.
func (rt *Runtime) Thumbnail(ctx context.Context) error {
	params := map[string]string{
		"asset_type":                 "model",
		"order":                      "-created",
		"markThumbnailRender_isnull": "False",
	}
	return rt.forEach(ctx, TaskThumbnail, params, rt.thumbnailForAsset)
}

func (rt *Runtime) thumbnailForAsset(ctx context.Context, asset *assets.Asset) (outcome, error) {
	template := filepath.Join(rt.Config.Paths.TemplatesDir, modelThumbnailTemplate)
	if _, err := os.Stat(template); err != nil {
		return outcome{}, services.Wrap(services.ErrConfiguration, TaskThumbnail, "locate template scene", template, err)
	}

	workDir, cleanup, err := rt.workDir(TaskThumbnail)
	if err != nil {
		return outcome{}, err
	}
	defer cleanup()

	blendPath, err := rt.DB.DownloadAssetFile(ctx, *asset, "blend", rt.Config.Paths.DownloadCache)
	if err != nil {
		return outcome{}, services.Wrap(services.ErrRemoteAPI, TaskThumbnail, "download asset", asset.Name, err)
	}
	defer os.Remove(blendPath)

	selection, err := rt.selectBlender(asset, blendPath)
	if err != nil {
		return outcome{}, err
	}
	out := outcome{Blender: blenderLabel(selection)}

	scriptPath, err := blender.ExtractScript(workDir, blender.ScriptThumbnail)
	if err != nil {
		return out, services.Wrap(services.ErrConfiguration, TaskThumbnail, "extract script", "", err)
	}

	data := assetDataPayload(asset)
	for key, value := range thumbnailParams(asset) {
		data[key] = value
	}

	resultPath := filepath.Join(workDir, asset.AssetBaseID+"_thumb.jpg")
	result, err := rt.Runner.Run(ctx, blender.Invocation{
		Binary:        selection.Binary,
		Script:        scriptPath,
		TemplateBlend: template,
		WorkDir:       workDir,
		Timeout:       rt.processTimeout(),
		Datafile: blender.Datafile{
			FilePath:       blendPath,
			ResultFilepath: resultPath,
			AssetData:      data,
		},
		ExpectedOutputs: []string{resultPath},
	})
	if err != nil {
		return out, classifyRunError(TaskThumbnail, result, err)
	}

	if rt.Config.Tasks.SkipUpload {
		out.Status = history.StatusSkipped
		out.Message = "thumbnail rendered, upload skipped"
		return out, nil
	}

	files := []blenderkit.UploadFile{{Type: "thumbnail", Index: 0, Path: resultPath}}
	if err := rt.DB.UploadFiles(ctx, asset.ID, files); err != nil {
		return out, services.Wrap(services.ErrRemoteAPI, TaskThumbnail, "upload thumbnail", "", err)
	}
	// Clearing the flag takes the asset out of the render queue.
	if err := rt.DB.PatchParameter(ctx, asset.ID, assets.Parameter{ParameterType: "markThumbnailRender", Value: ""}); err != nil {
		rt.log(TaskThumbnail).Warn("failed to clear markThumbnailRender", "asset", asset.Name, "error", err)
	}
	out.Status = history.StatusSuccess
	out.Message = "thumbnail rendered"
	return out, nil
}

// thumbnailParams merges the defaults with the render settings the asset
// carries in its markThumbnailRender parameter.
func thumbnailParams(asset *assets.Asset) map[string]any {
	params := make(map[string]any, len(defaultThumbnailParams))
	for key, value := range defaultThumbnailParams {
		params[key] = value
	}
	raw := asset.Param("markThumbnailRender", "")
	if raw == "" || raw == "True" || raw == "true" {
		return params
	}
	var requested map[string]any
	if err := json.Unmarshal([]byte(raw), &requested); err != nil {
		return params
	}
	for key, value := range requested {
		if _, known := params[key]; known {
			params[key] = value
		}
	}
	return params
}
