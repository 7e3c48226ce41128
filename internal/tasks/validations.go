package tasks

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BlenderKit/blenderkit-asset-tasks/internal/assets"
	"github.com/BlenderKit/blenderkit-asset-tasks/internal/fileutil"
	"github.com/BlenderKit/blenderkit-asset-tasks/internal/history"
	"github.com/BlenderKit/blenderkit-asset-tasks/internal/services"
	"github.com/BlenderKit/blenderkit-asset-tasks/internal/services/blender"
)

// TaskValidations is the ledger name of the validations task.
const TaskValidations = "validations"

// Template scenes the validation renders run in, looked up under
// templates_dir.
const (
	modelValidationTemplate    = "model_validation_static_renders.blend"
	materialValidationTemplate = "material_validator_mix.blend"
	materialTurnaroundTemplate = "material_turnaround.blend"
)

// validationRendersDir groups stored results per upload under results_dir.
const validationRendersDir = "validation-renders"

// ValidationType selects which asset family to validate.
type ValidationType string

const (
	ValidationModel    ValidationType = "model"
	ValidationMaterial ValidationType = "material"
)

// Validations renders the reviewer preview set for freshly uploaded assets
// and stores it under results_dir, grouped by the upload id of the blend
// file. Models get the static render sheet plus a GLB for the web viewer;
// materials get a preview still and a turnaround animation. Renders always
// use the newest installed Blender: the preview templates track current
// render features, not the asset's authoring version.
func (rt *Runtime) Validations(ctx context.Context, vtype ValidationType) error {
	switch vtype {
	case ValidationModel:
		params := map[string]string{
			"asset_type":          "model",
			"order":               "-last_blend_upload",
			"verification_status": "uploaded",
		}
		return rt.forEach(ctx, TaskValidations, params, rt.modelValidationForAsset)
	case ValidationMaterial:
		params := map[string]string{
			"asset_type":          "material",
			"order":               "created",
			"verification_status": "uploaded",
		}
		return rt.forEach(ctx, TaskValidations, params, rt.materialValidationForAsset)
	default:
		return services.Wrap(services.ErrConfiguration, TaskValidations, "", fmt.Sprintf("unknown validation type %q", vtype), nil)
	}
}

func (rt *Runtime) modelValidationForAsset(ctx context.Context, asset *assets.Asset) (outcome, error) {
	uploadID, err := asset.UploadID()
	if err != nil {
		return outcome{}, services.Wrap(services.ErrRemoteAPI, TaskValidations, "derive upload id", asset.Name, err)
	}
	resultDir := filepath.Join(rt.Config.Paths.ResultsDir, validationRendersDir, uploadID)
	if hasContent(resultDir) {
		return outcome{Status: history.StatusSkipped, Message: "validation renders already present"}, nil
	}

	template, err := rt.validationTemplate(modelValidationTemplate)
	if err != nil {
		return outcome{}, err
	}

	workDir, cleanup, err := rt.workDir(TaskValidations)
	if err != nil {
		return outcome{}, err
	}
	defer cleanup()

	blendPath, err := rt.DB.DownloadAssetFile(ctx, *asset, "blend", rt.Config.Paths.DownloadCache)
	if err != nil {
		return outcome{}, services.Wrap(services.ErrRemoteAPI, TaskValidations, "download asset", asset.Name, err)
	}
	defer os.Remove(blendPath)

	selection, err := rt.newestBlender(TaskValidations)
	if err != nil {
		return outcome{}, err
	}
	out := outcome{Blender: blenderLabel(selection)}

	// The render scenes link the model, so packed textures must be real
	// files first.
	if err := rt.unpackAsset(ctx, TaskValidations, asset, selection, blendPath, workDir); err != nil {
		return out, err
	}

	renderDir := filepath.Join(workDir, "renders")
	if err := os.MkdirAll(renderDir, 0o755); err != nil {
		return out, services.Wrap(services.ErrConfiguration, TaskValidations, "create render dir", "", err)
	}
	scriptPath, err := blender.ExtractScript(workDir, blender.ScriptModelValidation)
	if err != nil {
		return out, services.Wrap(services.ErrConfiguration, TaskValidations, "extract script", "", err)
	}

	resultPath := filepath.Join(workDir, asset.AssetBaseID+"_validation.json")
	result, err := rt.Runner.Run(ctx, blender.Invocation{
		Binary:        selection.Binary,
		Script:        scriptPath,
		TemplateBlend: template,
		WorkDir:       workDir,
		Timeout:       rt.processTimeout(),
		Datafile: blender.Datafile{
			FilePath:       blendPath,
			ResultFilepath: resultPath,
			ResultFolder:   renderDir,
			AssetData:      assetDataPayload(asset),
		},
		ExpectedOutputs: []string{resultPath},
	})
	if err != nil {
		return out, classifyRunError(TaskValidations, result, err)
	}

	files, err := readGeneratedFiles(resultPath)
	if err != nil {
		return out, services.Wrap(services.ErrMissingOutput, TaskValidations, "read result", "", err)
	}

	// GLB for the web-based review viewer, same export the gltf task runs.
	glb, err := rt.exportValidationGLB(ctx, asset, selection, blendPath, workDir, renderDir)
	if err != nil {
		return out, err
	}
	files = append(files, glb...)

	if rt.Config.Tasks.SkipUpload {
		out.Status = history.StatusSkipped
		out.Message = fmt.Sprintf("generated %d validation files, store skipped", len(files))
		return out, nil
	}
	stored, err := storeValidationFiles(resultDir, files)
	if err != nil {
		return out, services.Wrap(services.ErrConfiguration, TaskValidations, "store renders", resultDir, err)
	}
	out.Status = history.StatusSuccess
	out.Message = fmt.Sprintf("stored %d validation files for upload %s", stored, uploadID)
	return out, nil
}

func (rt *Runtime) materialValidationForAsset(ctx context.Context, asset *assets.Asset) (outcome, error) {
	uploadID, err := asset.UploadID()
	if err != nil {
		return outcome{}, services.Wrap(services.ErrRemoteAPI, TaskValidations, "derive upload id", asset.Name, err)
	}
	resultDir := filepath.Join(rt.Config.Paths.ResultsDir, validationRendersDir, uploadID)
	if hasContent(resultDir) {
		return outcome{Status: history.StatusSkipped, Message: "validation renders already present"}, nil
	}

	stillTemplate, err := rt.validationTemplate(materialValidationTemplate)
	if err != nil {
		return outcome{}, err
	}
	turnaroundTemplate, err := rt.validationTemplate(materialTurnaroundTemplate)
	if err != nil {
		return outcome{}, err
	}

	workDir, cleanup, err := rt.workDir(TaskValidations)
	if err != nil {
		return outcome{}, err
	}
	defer cleanup()

	blendPath, err := rt.DB.DownloadAssetFile(ctx, *asset, "blend", rt.Config.Paths.DownloadCache)
	if err != nil {
		return outcome{}, services.Wrap(services.ErrRemoteAPI, TaskValidations, "download asset", asset.Name, err)
	}
	defer os.Remove(blendPath)

	selection, err := rt.newestBlender(TaskValidations)
	if err != nil {
		return outcome{}, err
	}
	out := outcome{Blender: blenderLabel(selection)}

	scriptPath, err := blender.ExtractScript(workDir, blender.ScriptMaterialValidation)
	if err != nil {
		return out, services.Wrap(services.ErrConfiguration, TaskValidations, "extract script", "", err)
	}
	renderDir := filepath.Join(workDir, "renders")
	if err := os.MkdirAll(renderDir, 0o755); err != nil {
		return out, services.Wrap(services.ErrConfiguration, TaskValidations, "create render dir", "", err)
	}

	renders := []struct {
		template string
		output   string
		kind     string
	}{
		{stillTemplate, filepath.Join(renderDir, "Render"+uploadID+".webp"), "validation_render"},
		{turnaroundTemplate, filepath.Join(renderDir, uploadID+"_turnaround.mkv"), "validation_turnaround"},
	}

	files := make([]generatedFile, 0, len(renders))
	for i, render := range renders {
		result, err := rt.Runner.Run(ctx, blender.Invocation{
			Binary:        selection.Binary,
			Script:        scriptPath,
			TemplateBlend: render.template,
			WorkDir:       workDir,
			Timeout:       rt.processTimeout(),
			Datafile: blender.Datafile{
				FilePath:       blendPath,
				ResultFilepath: render.output,
				AssetData:      assetDataPayload(asset),
			},
			ExpectedOutputs: []string{render.output},
		})
		if err != nil {
			return out, classifyRunError(TaskValidations, result, err)
		}
		files = append(files, generatedFile{Type: render.kind, Index: i, Path: render.output})
	}

	if rt.Config.Tasks.SkipUpload {
		out.Status = history.StatusSkipped
		out.Message = fmt.Sprintf("generated %d validation files, store skipped", len(files))
		return out, nil
	}
	stored, err := storeValidationFiles(resultDir, files)
	if err != nil {
		return out, services.Wrap(services.ErrConfiguration, TaskValidations, "store renders", resultDir, err)
	}
	out.Status = history.StatusSuccess
	out.Message = fmt.Sprintf("stored %d validation files for upload %s", stored, uploadID)
	return out, nil
}

// exportValidationGLB runs the GLB export into renderDir so the model shows
// up in the reviewer's web viewer next to its render sheet.
func (rt *Runtime) exportValidationGLB(ctx context.Context, asset *assets.Asset, selection blender.Selection, blendPath, workDir, renderDir string) ([]generatedFile, error) {
	scriptPath, err := blender.ExtractScript(workDir, blender.ScriptGLTF)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, TaskValidations, "extract script", "", err)
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
			ResultFolder:   renderDir,
			AssetData:      assetDataPayload(asset),
			TargetFormat:   string(GLTFWeb),
		},
		ExpectedOutputs: []string{resultPath},
	})
	if err != nil {
		return nil, classifyRunError(TaskValidations, result, err)
	}
	files, err := readGeneratedFiles(resultPath)
	if err != nil {
		return nil, services.Wrap(services.ErrMissingOutput, TaskValidations, "read result", "", err)
	}
	return files, nil
}

func (rt *Runtime) validationTemplate(name string) (string, error) {
	template := filepath.Join(rt.Config.Paths.TemplatesDir, name)
	if _, err := os.Stat(template); err != nil {
		return "", services.Wrap(services.ErrConfiguration, TaskValidations, "locate template scene", template, err)
	}
	return template, nil
}

// hasContent reports whether dir exists and holds at least one entry.
func hasContent(dir string) bool {
	entries, err := os.ReadDir(dir)
	return err == nil && len(entries) > 0
}

// storeValidationFiles copies the generated files into the per-upload
// result folder.
func storeValidationFiles(dir string, files []generatedFile) (int, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, err
	}
	stored := 0
	for _, file := range files {
		if err := fileutil.CopyFile(file.Path, filepath.Join(dir, filepath.Base(file.Path))); err != nil {
			return stored, err
		}
		stored++
	}
	return stored, nil
}
