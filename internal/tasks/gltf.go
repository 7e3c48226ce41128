package tasks

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BlenderKit/blenderkit-asset-tasks/internal/assets"
	"github.com/BlenderKit/blenderkit-asset-tasks/internal/history"
	"github.com/BlenderKit/blenderkit-asset-tasks/internal/services"
	"github.com/BlenderKit/blenderkit-asset-tasks/internal/services/blender"
	"github.com/BlenderKit/blenderkit-asset-tasks/internal/services/blenderkit"
)

// TaskGLTF is the ledger name of the gltf task.
const TaskGLTF = "gltf"

// GLTFTarget selects the export flavor.
type GLTFTarget string

const (
	// GLTFWeb is draco-compressed for web viewers.
	GLTFWeb GLTFTarget = "gltf"
	// GLTFGodot skips draco; Godot's importer rejects it.
	GLTFGodot GLTFTarget = "gltf_godot"
)

func (t GLTFTarget) valid() bool {
	return t == GLTFWeb || t == GLTFGodot
}

// GLTF exports validated model assets to GLB and attaches the file to the
// asset, stamping generation date and size parameters.
func (rt *Runtime) GLTF(ctx context.Context, target GLTFTarget) error {
	if !target.valid() {
		return services.Wrap(services.ErrConfiguration, TaskGLTF, "", fmt.Sprintf("unknown target %q", target), nil)
	}
	params := map[string]string{
		"asset_type":               "model",
		"order":                    "-created",
		"verification_status":      "validated",
		"gltfGeneratedDate_isnull": "True",
		// Do not redo assets that already failed; a human looks first.
		"gltfGeneratedError_isnull": "True",
	}
	return rt.forEach(ctx, TaskGLTF, params, func(ctx context.Context, asset *assets.Asset) (outcome, error) {
		return rt.gltfForAsset(ctx, asset, target)
	})
}

func (rt *Runtime) gltfForAsset(ctx context.Context, asset *assets.Asset, target GLTFTarget) (outcome, error) {
	workDir, cleanup, err := rt.workDir(TaskGLTF)
	if err != nil {
		return outcome{}, err
	}
	defer cleanup()

	blendPath, err := rt.DB.DownloadAssetFile(ctx, *asset, "blend", rt.Config.Paths.DownloadCache)
	if err != nil {
		return outcome{}, services.Wrap(services.ErrRemoteAPI, TaskGLTF, "download asset", asset.Name, err)
	}
	defer os.Remove(blendPath)

	selection, err := rt.selectBlender(asset, blendPath)
	if err != nil {
		return outcome{}, err
	}
	out := outcome{Blender: blenderLabel(selection)}

	scriptPath, err := blender.ExtractScript(workDir, blender.ScriptGLTF)
	if err != nil {
		return out, services.Wrap(services.ErrConfiguration, TaskGLTF, "extract script", "", err)
	}

	resultPath := filepath.Join(workDir, asset.AssetBaseID+"_gltf.json")
	result, err := rt.Runner.Run(ctx, blender.Invocation{
		Binary:        selection.Binary,
		Script:        scriptPath,
		TemplateBlend: blendPath,
		WorkDir:       workDir,
		Timeout:       rt.processTimeout(),
		Datafile: blender.Datafile{
			FilePath:       blendPath,
			ResultFilepath: resultPath,
			ResultFolder:   workDir,
			AssetData:      assetDataPayload(asset),
			TargetFormat:   string(target),
		},
		ExpectedOutputs: []string{resultPath},
	})
	if err != nil {
		taskErr := classifyRunError(TaskGLTF, result, err)
		rt.recordGLTFError(ctx, asset, taskErr)
		return out, taskErr
	}

	files, err := readGeneratedFiles(resultPath)
	if err != nil || len(files) == 0 {
		taskErr := services.Wrap(services.ErrMissingOutput, TaskGLTF, "read result", "", err)
		rt.recordGLTFError(ctx, asset, taskErr)
		return out, taskErr
	}

	if rt.Config.Tasks.SkipUpload {
		out.Status = history.StatusSkipped
		out.Message = "gltf generated, upload skipped"
		return out, nil
	}

	uploads := make([]blenderkit.UploadFile, 0, len(files))
	var totalSize int64
	for _, file := range files {
		if info, err := os.Stat(file.Path); err == nil {
			totalSize += info.Size()
		}
		uploads = append(uploads, blenderkit.UploadFile{Type: file.Type, Index: file.Index, Path: file.Path})
	}
	if err := rt.DB.UploadFiles(ctx, asset.ID, uploads); err != nil {
		return out, services.Wrap(services.ErrRemoteAPI, TaskGLTF, "upload gltf", "", err)
	}

	dateParam, sizeParam := gltfParamNames(target)
	patches := []assets.Parameter{
		{ParameterType: dateParam, Value: time.Now().UTC().Format(time.RFC3339)},
		{ParameterType: sizeParam, Value: strconv.FormatInt(totalSize, 10)},
	}
	for _, param := range patches {
		if err := rt.DB.PatchParameter(ctx, asset.ID, param); err != nil {
			return out, services.Wrap(services.ErrRemoteAPI, TaskGLTF, "patch parameter", param.ParameterType, err)
		}
	}
	out.Status = history.StatusSuccess
	out.Message = fmt.Sprintf("exported %s", target)
	return out, nil
}

// recordGLTFError stamps the failure on the asset so nightly runs do not
// retry a known-bad export forever.
func (rt *Runtime) recordGLTFError(ctx context.Context, asset *assets.Asset, taskErr error) {
	if rt.Config.Tasks.SkipUpload {
		return
	}
	message := taskErr.Error()
	if len(message) > 256 {
		message = message[:256]
	}
	param := assets.Parameter{ParameterType: "gltfGeneratedError", Value: message}
	if err := rt.DB.PatchParameter(ctx, asset.ID, param); err != nil {
		rt.log(TaskGLTF).Warn("failed to record gltf error on asset", "error", err)
	}
}

func gltfParamNames(target GLTFTarget) (date, size string) {
	if target == GLTFGodot {
		return "gltfGodotGeneratedDate", "gltfGodotSize"
	}
	return "gltfGeneratedDate", "gltfSizeWeb"
}
