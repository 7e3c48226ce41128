package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BlenderKit/blenderkit-asset-tasks/internal/assets"
	"github.com/BlenderKit/blenderkit-asset-tasks/internal/fileutil"
	"github.com/BlenderKit/blenderkit-asset-tasks/internal/history"
	"github.com/BlenderKit/blenderkit-asset-tasks/internal/services"
	"github.com/BlenderKit/blenderkit-asset-tasks/internal/services/blender"
)

// TaskAddonTest is the ledger name of the addon-test task.
const TaskAddonTest = "addon-test"

// AddonTest smoke-tests an add-on extension in one Blender release:
// install, enable, disable. The per-check error strings land in a JSON file
// under results_dir keyed by the release, where the report task aggregates
// them. CI runs this once per release in a matrix job.
func (rt *Runtime) AddonTest(ctx context.Context, version string) error {
	params := map[string]string{"asset_type": "addon"}
	return rt.forEach(ctx, TaskAddonTest, params, func(ctx context.Context, asset *assets.Asset) (outcome, error) {
		return rt.addonTestForAsset(ctx, asset, version)
	})
}

func (rt *Runtime) addonTestForAsset(ctx context.Context, asset *assets.Asset, version string) (outcome, error) {
	if asset.Param("extensionId", "") == "" {
		return outcome{}, services.Wrap(services.ErrConfiguration, TaskAddonTest, "", fmt.Sprintf("asset %s has no extensionId parameter", asset.Name), nil)
	}

	selection, err := rt.selectAddonTestBlender(version)
	if err != nil {
		return outcome{}, err
	}
	out := outcome{Blender: blenderLabel(selection)}

	workDir, cleanup, err := rt.workDir(TaskAddonTest)
	if err != nil {
		return out, err
	}
	defer cleanup()

	zipPath, err := rt.DB.DownloadAssetFile(ctx, *asset, "zip_file", rt.Config.Paths.DownloadCache)
	if err != nil {
		return out, services.Wrap(services.ErrRemoteAPI, TaskAddonTest, "download addon", asset.Name, err)
	}
	defer os.Remove(zipPath)

	scriptPath, err := blender.ExtractScript(workDir, blender.ScriptAddonTest)
	if err != nil {
		return out, services.Wrap(services.ErrConfiguration, TaskAddonTest, "extract script", "", err)
	}

	resultPath := filepath.Join(workDir, asset.AssetBaseID+"_resdata.json")
	result, err := rt.Runner.Run(ctx, blender.Invocation{
		Binary:  selection.Binary,
		Script:  scriptPath,
		WorkDir: workDir,
		Timeout: rt.processTimeout(),
		Datafile: blender.Datafile{
			FilePath:       zipPath,
			ResultFilepath: resultPath,
			AssetData:      assetDataPayload(asset),
		},
		ExpectedOutputs: []string{resultPath},
	})
	if err != nil {
		return out, classifyRunError(TaskAddonTest, result, err)
	}

	payload, err := os.ReadFile(resultPath)
	if err != nil {
		return out, services.Wrap(services.ErrMissingOutput, TaskAddonTest, "read result", "", err)
	}
	var checks map[string]string
	if err := json.Unmarshal(payload, &checks); err != nil {
		return out, services.Wrap(services.ErrMissingOutput, TaskAddonTest, "parse result", "", err)
	}

	// Copy the result where the report task picks it up, one directory per
	// release.
	releaseDir := filepath.Join(rt.Config.Paths.ResultsDir, "blender-"+selection.Tag.String())
	if err := os.MkdirAll(releaseDir, 0o755); err != nil {
		return out, services.Wrap(services.ErrConfiguration, TaskAddonTest, "create results dir", "", err)
	}
	if err := fileutil.WriteFileAtomic(filepath.Join(releaseDir, "test_addon_results.json"), payload, 0o644); err != nil {
		return out, services.Wrap(services.ErrConfiguration, TaskAddonTest, "write results", "", err)
	}

	for check, message := range checks {
		if message != "" {
			return out, services.Wrap(services.ErrExternalTool, TaskAddonTest,
				fmt.Sprintf("check %q (blender %s)", check, selection.Tag), message, nil)
		}
	}
	out.Status = history.StatusSuccess
	out.Message = "all checks passed"
	return out, nil
}

// selectAddonTestBlender resolves the release under test: the explicit
// version when given, otherwise the newest installed release.
func (rt *Runtime) selectAddonTestBlender(version string) (blender.Selection, error) {
	if version == "" {
		return rt.newestBlender(TaskAddonTest)
	}
	tag, err := blender.ParseTag(version)
	if err != nil {
		return blender.Selection{}, services.Wrap(services.ErrConfiguration, TaskAddonTest, "parse version", version, err)
	}
	selection, err := blender.Select(rt.Blenders, tag, rt.Config.Paths.BlenderBinary)
	if err != nil {
		return blender.Selection{}, services.Wrap(services.ErrConfiguration, TaskAddonTest, "select blender", "", err)
	}
	return selection, nil
}
