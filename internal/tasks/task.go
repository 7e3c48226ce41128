package tasks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/BlenderKit/blenderkit-asset-tasks/internal/assets"
	"github.com/BlenderKit/blenderkit-asset-tasks/internal/config"
	"github.com/BlenderKit/blenderkit-asset-tasks/internal/fileutil"
	"github.com/BlenderKit/blenderkit-asset-tasks/internal/history"
	"github.com/BlenderKit/blenderkit-asset-tasks/internal/logging"
	"github.com/BlenderKit/blenderkit-asset-tasks/internal/services"
	"github.com/BlenderKit/blenderkit-asset-tasks/internal/services/blender"
	"github.com/BlenderKit/blenderkit-asset-tasks/internal/services/blenderkit"
	"github.com/BlenderKit/blenderkit-asset-tasks/internal/services/llm"
)

// Database is the slice of the asset database client the tasks use.
type Database interface {
	SearchAssets(ctx context.Context, opts blenderkit.SearchOptions) ([]assets.Asset, error)
	DownloadAssetFile(ctx context.Context, asset assets.Asset, fileType, dir string) (string, error)
	UploadFiles(ctx context.Context, assetID string, files []blenderkit.UploadFile) error
	PatchAssetEmpty(ctx context.Context, assetID string) error
	PatchParameter(ctx context.Context, assetID string, param assets.Parameter) error
	MarkForThumbnail(ctx context.Context, assetID string, params map[string]any) error
	CreateComment(ctx context.Context, assetBaseID, comment string, replyTo int) error
}

// Runner launches headless Blender.
type Runner interface {
	Run(ctx context.Context, inv blender.Invocation) (blender.Result, error)
}

// Captioner generates alt-text captions.
type Captioner interface {
	GenerateAltText(ctx context.Context, req llm.CaptionRequest) (string, error)
}

// Commenter posts asset comments. Kept separate from Database because
// comments are posted by a bot account with its own API key.
type Commenter interface {
	CreateComment(ctx context.Context, assetBaseID, comment string, replyTo int) error
}

// Recorder persists run outcomes. Nil-able: history can be disabled.
type Recorder interface {
	Record(ctx context.Context, run history.Run) (int64, error)
	Succeeded(ctx context.Context, task, assetBaseID string) (bool, error)
}

// Runtime bundles everything a task command needs. Built once in the CLI
// and shared by all tasks of the invocation.
type Runtime struct {
	Config    *config.Config
	Logger    *slog.Logger
	DB        Database
	Runner    Runner
	History   Recorder
	Captioner Captioner
	Commenter Commenter
	Blenders  blender.Directory

	// RunID groups the ledger rows of one process invocation.
	RunID string
}

// NewRuntime assembles a Runtime with a fresh run id.
func NewRuntime(cfg *config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		Config: cfg,
		Logger: logger,
		RunID:  uuid.NewString(),
	}
}

func (rt *Runtime) log(task string) *slog.Logger {
	if rt.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return logging.WithComponent(rt.Logger, task)
}

// searchTargets finds the assets a task should process: the single
// configured asset when asset_base_id is set, otherwise the task's own
// search filter capped at max_assets.
func (rt *Runtime) searchTargets(ctx context.Context, params map[string]string) ([]assets.Asset, error) {
	opts := blenderkit.SearchOptions{MaxResults: rt.Config.Tasks.MaxAssets}
	if base := rt.Config.Tasks.AssetBaseID; base != "" {
		opts.Parameters = map[string]string{"asset_base_id": base}
		if assetType, ok := params["asset_type"]; ok {
			opts.Parameters["asset_type"] = assetType
		}
		opts.MaxResults = 1
	} else {
		opts.Parameters = params
	}

	found, err := rt.DB.SearchAssets(ctx, opts)
	if err != nil {
		return nil, services.Wrap(services.ErrRemoteAPI, "", "search assets", "", err)
	}
	return found, nil
}

// selectBlender picks the Blender build for an asset. HDR assets always
// take the newest release since they open in an empty scene; everything
// else resolves against the version the asset was authored with, taking
// the newer of the metadata version and the blend header version.
func (rt *Runtime) selectBlender(asset *assets.Asset, blendPath string) (blender.Selection, error) {
	override := rt.Config.Paths.BlenderBinary

	if asset.IsHDR() {
		return rt.newestBlender("")
	}

	requested, err := blender.RequiredVersion(asset.SourceAppVersion, blendPath)
	if err != nil {
		return blender.Selection{}, services.Wrap(services.ErrExternalTool, "", "read blend header", blendPath, err)
	}
	selection, err := blender.Select(rt.Blenders, requested, override)
	if err != nil {
		if errors.Is(err, blender.ErrNoVersions) {
			return blender.Selection{}, services.Wrap(services.ErrConfiguration, "", "select blender", "no installed releases", err)
		}
		return blender.Selection{}, services.Wrap(services.ErrConfiguration, "", "select blender", "", err)
	}
	return selection, nil
}

// newestBlender picks the highest installed release, honoring the explicit
// binary override. Used where the asset's authoring version does not matter
// (HDRs, validation renders, add-on tests without a pinned release).
func (rt *Runtime) newestBlender(task string) (blender.Selection, error) {
	if override := rt.Config.Paths.BlenderBinary; override != "" {
		return blender.Select(rt.Blenders, blender.Tag{}, override)
	}
	entry, err := rt.Blenders.Newest()
	if err != nil {
		return blender.Selection{}, services.Wrap(services.ErrConfiguration, task, "select blender", "no installed releases", err)
	}
	return blender.Select(rt.Blenders, entry.Tag, "")
}

// classifyRunError maps runner sentinels onto the shared taxonomy.
func classifyRunError(task string, result blender.Result, err error) error {
	switch {
	case errors.Is(err, blender.ErrTimedOut):
		return services.Wrap(services.ErrTimeout, task, "run blender", "", err)
	case errors.Is(err, blender.ErrMissingResult):
		return services.Wrap(services.ErrMissingOutput, task, "run blender", "", err)
	default:
		message := fmt.Sprintf("exit code %d", result.ExitCode)
		if tail := lastLines(result.StderrTail, 5); tail != "" {
			message += ": " + tail
		}
		return services.Wrap(services.ErrExternalTool, task, "run blender", message, err)
	}
}

func lastLines(lines []string, n int) string {
	if len(lines) == 0 {
		return ""
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	joined := ""
	for i, line := range lines {
		if i > 0 {
			joined += " | "
		}
		joined += line
	}
	return joined
}

// outcome is what one asset's run hands back for its ledger row. Tasks set
// Blender as soon as a build is chosen, so failed runs still show which
// release they ran in.
type outcome struct {
	Status  history.Status
	Message string
	Blender string
}

// blenderLabel is the ledger's record of the chosen build. A zero tag means
// an explicit binary override with no version requested, so there is
// nothing useful to store.
func blenderLabel(selection blender.Selection) string {
	if selection.Tag == (blender.Tag{}) {
		return ""
	}
	return selection.Tag.String()
}

// perAsset is one task's work for a single asset. A non-nil error implies a
// failed status; the partial outcome still carries the chosen Blender.
type perAsset func(ctx context.Context, asset *assets.Asset) (outcome, error)

// forEach runs fn over every target asset, records each run in the ledger
// and keeps going past per-asset failures. The returned error is the first
// failure, so the process exit code reflects a partially failed batch.
func (rt *Runtime) forEach(ctx context.Context, task string, params map[string]string, fn perAsset) error {
	logger := rt.log(task)

	targets, err := rt.searchTargets(ctx, params)
	if err != nil {
		return err
	}
	logger.Info("assets to process", "count", len(targets))

	var firstErr error
	for i := range targets {
		asset := &targets[i]
		if len(asset.Files) == 0 {
			logger.Warn("skipping asset without files", "asset", asset.Name)
			continue
		}

		if rt.History != nil && rt.Config.Tasks.AssetBaseID == "" {
			done, err := rt.History.Succeeded(ctx, task, asset.AssetBaseID)
			if err != nil {
				logger.Warn("history lookup failed", "error", err)
			} else if done {
				logger.Info("already processed, skipping", "asset", asset.Name)
				continue
			}
		}

		started := time.Now().UTC()
		out, runErr := fn(ctx, asset)
		if runErr != nil {
			out.Status = services.FailureStatus(runErr)
			out.Message = runErr.Error()
			logger.Error("asset failed", "asset", asset.Name, "error", runErr)
			if firstErr == nil {
				firstErr = runErr
			}
		} else {
			logger.Info("asset done", "asset", asset.Name, "status", out.Status, "duration", time.Since(started).Round(time.Millisecond))
		}

		rt.record(ctx, task, asset, out, started)

		if ctx.Err() != nil {
			if firstErr == nil {
				firstErr = ctx.Err()
			}
			break
		}
	}
	return firstErr
}

func (rt *Runtime) record(ctx context.Context, task string, asset *assets.Asset, out outcome, started time.Time) {
	if rt.History == nil {
		return
	}
	_, err := rt.History.Record(ctx, history.Run{
		RunID:          rt.RunID,
		Task:           task,
		AssetBaseID:    asset.AssetBaseID,
		AssetName:      asset.Name,
		BlenderVersion: out.Blender,
		Status:         out.Status,
		Message:        out.Message,
		StartedAt:      started,
		FinishedAt:     time.Now().UTC(),
	})
	if err != nil {
		rt.log(task).Warn("failed to record run", "error", err)
	}
}

// workDir creates the per-run scratch directory and hands back a cleanup.
func (rt *Runtime) workDir(task string) (string, func(), error) {
	dir, err := fileutil.NewWorkDir(rt.Config.Paths.WorkDir, task)
	if err != nil {
		return "", nil, services.Wrap(services.ErrConfiguration, task, "create work dir", "", err)
	}
	return dir, func() { _ = os.RemoveAll(dir) }, nil
}

func (rt *Runtime) processTimeout() time.Duration {
	if rt.Config.Tasks.ProcessTimeout <= 0 {
		return 0
	}
	return time.Duration(rt.Config.Tasks.ProcessTimeout) * time.Second
}
