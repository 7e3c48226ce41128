package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/BlenderKit/blenderkit-asset-tasks/internal/assets"
	"github.com/BlenderKit/blenderkit-asset-tasks/internal/history"
	"github.com/BlenderKit/blenderkit-asset-tasks/internal/services"
	"github.com/BlenderKit/blenderkit-asset-tasks/internal/services/llm"
)

// TaskCaption is the ledger name of the caption task.
const TaskCaption = "caption"

const (
	captionSourceParam = "imageCaptionInterrogator"
	captionTargetParam = "imageAltTextGen3"
)

// Caption generates SEO alt texts for validated models that already carry
// an interrogator caption but no generated alt text yet, and writes the
// result back as the imageAltTextGen3 parameter.
func (rt *Runtime) Caption(ctx context.Context) error {
	if rt.Captioner == nil {
		return services.Wrap(services.ErrConfiguration, TaskCaption, "", "caption API key is not configured", nil)
	}
	params := map[string]string{
		"order":                        "-created",
		"asset_type":                   "model",
		"verification_status":          "validated",
		captionSourceParam + "_isnull": "False",
		captionTargetParam + "_isnull": "True",
	}
	return rt.captionBatch(ctx, params)
}

// captionBatch mirrors forEach without the files requirement: captions need
// only metadata, so assets without attached files are still processed.
func (rt *Runtime) captionBatch(ctx context.Context, params map[string]string) error {
	logger := rt.log(TaskCaption)

	targets, err := rt.searchTargets(ctx, params)
	if err != nil {
		return err
	}
	logger.Info("assets to caption", "count", len(targets))

	var firstErr error
	for i := range targets {
		asset := &targets[i]
		started := time.Now().UTC()
		out, runErr := rt.captionForAsset(ctx, asset)
		if runErr != nil {
			out.Status = services.FailureStatus(runErr)
			out.Message = runErr.Error()
			logger.Error("asset failed", "asset", asset.Name, "error", runErr)
			if firstErr == nil {
				firstErr = runErr
			}
		} else {
			logger.Info("asset done", "asset", asset.Name, "status", out.Status)
		}
		rt.record(ctx, TaskCaption, asset, out, started)
		if ctx.Err() != nil {
			if firstErr == nil {
				firstErr = ctx.Err()
			}
			break
		}
	}
	return firstErr
}

func (rt *Runtime) captionForAsset(ctx context.Context, asset *assets.Asset) (outcome, error) {
	source := asset.Param(captionSourceParam, "")
	if source == "" {
		return outcome{Status: history.StatusSkipped, Message: "no interrogator caption to work from"}, nil
	}

	altText, err := rt.Captioner.GenerateAltText(ctx, llm.CaptionRequest{
		AssetType:          asset.AssetType,
		Name:               asset.Name,
		Category:           asset.Category,
		UserDescription:    asset.Description,
		MachineDescription: source,
	})
	if err != nil {
		return outcome{}, services.Wrap(services.ErrRemoteAPI, TaskCaption, "generate alt text", asset.Name, err)
	}
	if altText == "" {
		return outcome{}, services.Wrap(services.ErrRemoteAPI, TaskCaption, "generate alt text", "model returned empty text", nil)
	}

	if rt.Config.Tasks.SkipUpload {
		return outcome{Status: history.StatusSkipped, Message: "alt text generated, upload skipped"}, nil
	}
	param := assets.Parameter{ParameterType: captionTargetParam, Value: altText}
	if err := rt.DB.PatchParameter(ctx, asset.ID, param); err != nil {
		return outcome{}, services.Wrap(services.ErrRemoteAPI, TaskCaption, "store alt text", "", err)
	}
	return outcome{Status: history.StatusSuccess, Message: fmt.Sprintf("alt text stored (%d chars)", len(altText))}, nil
}
