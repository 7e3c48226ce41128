package tasks

import (
	"context"
	"time"

	"github.com/BlenderKit/blenderkit-asset-tasks/internal/history"
	"github.com/BlenderKit/blenderkit-asset-tasks/internal/services"
	"github.com/BlenderKit/blenderkit-asset-tasks/internal/tasks/report"
)

// TaskAddonReport is the ledger name of the addon-report task.
const TaskAddonReport = "addon-report"

// AddonReport aggregates the per-release results the addon-test runs left
// under results_dir and posts them as one comment on the asset. Runs after
// the test matrix completes, so a crashed release shows up as "no result"
// rather than silently disappearing from the report.
func (rt *Runtime) AddonReport(ctx context.Context) error {
	logger := rt.log(TaskAddonReport)

	base := rt.Config.Tasks.AssetBaseID
	if base == "" {
		return services.Wrap(services.ErrConfiguration, TaskAddonReport, "", "asset_base_id is required", nil)
	}
	if rt.Commenter == nil {
		return services.Wrap(services.ErrConfiguration, TaskAddonReport, "", "comment API key is not configured", nil)
	}

	started := time.Now().UTC()
	summary, err := report.AggregateDir(rt.Config.Paths.ResultsDir)
	if err != nil {
		return services.Wrap(services.ErrMissingOutput, TaskAddonReport, "aggregate results", rt.Config.Paths.ResultsDir, err)
	}
	logger.Info("aggregated test results", "releases", len(summary.Entries), "passed", summary.Passed(), "failed", summary.Failed())

	comment := summary.Comment()
	if rt.Config.Tasks.SkipUpload {
		logger.Info("skip_upload set, not posting comment")
		logger.Debug("generated comment", "comment", comment)
		rt.recordReport(ctx, base, history.StatusSkipped, "comment generated, posting skipped", started)
		return nil
	}

	if err := rt.Commenter.CreateComment(ctx, base, comment, 0); err != nil {
		wrapped := services.Wrap(services.ErrRemoteAPI, TaskAddonReport, "post comment", "", err)
		rt.recordReport(ctx, base, services.FailureStatus(wrapped), wrapped.Error(), started)
		return wrapped
	}
	logger.Info("comment posted", "asset_base_id", base)
	rt.recordReport(ctx, base, history.StatusSuccess, "test report posted", started)
	return nil
}

func (rt *Runtime) recordReport(ctx context.Context, base string, status history.Status, message string, started time.Time) {
	if rt.History == nil {
		return
	}
	_, err := rt.History.Record(ctx, history.Run{
		RunID:       rt.RunID,
		Task:        TaskAddonReport,
		AssetBaseID: base,
		Status:      status,
		Message:     message,
		StartedAt:   started,
		FinishedAt:  time.Now().UTC(),
	})
	if err != nil {
		rt.log(TaskAddonReport).Warn("failed to record run", "error", err)
	}
}
