package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/BlenderKit/blenderkit-asset-tasks/internal/tasks"
)

func newResolutionsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "resolutions",
		Short: "Generate downscaled texture resolutions for validated assets",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ctx.requireBlender(tasks.TaskResolutions); err != nil {
				return err
			}
			rt, cleanup, err := ctx.buildRuntime(tasks.TaskResolutions)
			if err != nil {
				return err
			}
			defer cleanup()
			return rt.Resolutions(cmd.Context())
		},
	}
}

func newGLTFCommand(ctx *commandContext) *cobra.Command {
	var target string

	cmd := &cobra.Command{
		Use:   "gltf",
		Short: "Export validated models to GLB and attach the file to the asset",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ctx.requireBlender(tasks.TaskGLTF); err != nil {
				return err
			}
			rt, cleanup, err := ctx.buildRuntime(tasks.TaskGLTF)
			if err != nil {
				return err
			}
			defer cleanup()
			return rt.GLTF(cmd.Context(), tasks.GLTFTarget(target))
		},
	}

	cmd.Flags().StringVar(&target, "target", string(tasks.GLTFWeb),
		fmt.Sprintf("Export flavor: %s (draco-compressed) or %s", tasks.GLTFWeb, tasks.GLTFGodot))
	return cmd
}

func newThumbnailCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "thumbnail",
		Short: "Re-render thumbnails for models flagged with markThumbnailRender",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ctx.requireBlender(tasks.TaskThumbnail); err != nil {
				return err
			}
			rt, cleanup, err := ctx.buildRuntime(tasks.TaskThumbnail)
			if err != nil {
				return err
			}
			defer cleanup()
			return rt.Thumbnail(cmd.Context())
		},
	}
}

func newValidationsCommand(ctx *commandContext) *cobra.Command {
	var assetType string

	cmd := &cobra.Command{
		Use:   "validations",
		Short: "Render reviewer validation previews for freshly uploaded assets",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ctx.requireBlender(tasks.TaskValidations); err != nil {
				return err
			}
			rt, cleanup, err := ctx.buildRuntime(tasks.TaskValidations)
			if err != nil {
				return err
			}
			defer cleanup()
			return rt.Validations(cmd.Context(), tasks.ValidationType(assetType))
		},
	}

	cmd.Flags().StringVar(&assetType, "type", string(tasks.ValidationModel),
		fmt.Sprintf("Asset family to validate: %s or %s", tasks.ValidationModel, tasks.ValidationMaterial))
	return cmd
}

func newAddonTestCommand(ctx *commandContext) *cobra.Command {
	var blenderVersion string

	cmd := &cobra.Command{
		Use:   "addon-test",
		Short: "Smoke-test an add-on (install, enable, disable) in one Blender release",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ctx.requireBlender(tasks.TaskAddonTest); err != nil {
				return err
			}
			rt, cleanup, err := ctx.buildRuntime(tasks.TaskAddonTest)
			if err != nil {
				return err
			}
			defer cleanup()
			return rt.AddonTest(cmd.Context(), blenderVersion)
		},
	}

	cmd.Flags().StringVar(&blenderVersion, "blender-version", "", "Blender release to test in, e.g. 4.2 (default: newest installed)")
	return cmd
}

func newAddonReportCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "addon-report",
		Short: "Aggregate addon-test results and post them as an asset comment",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, cleanup, err := ctx.buildRuntime(tasks.TaskAddonReport)
			if err != nil {
				return err
			}
			defer cleanup()
			return rt.AddonReport(cmd.Context())
		},
	}
}

func newCaptionCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "caption",
		Short: "Generate SEO alt texts for validated models from interrogator captions",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, cleanup, err := ctx.buildRuntime(tasks.TaskCaption)
			if err != nil {
				return err
			}
			defer cleanup()
			return rt.Caption(cmd.Context())
		},
	}
}
